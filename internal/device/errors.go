// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package device

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a dispatch failure as seen by callers
type ErrorKind string

const (
	// Unreachable means the television (or bus) could not be reached
	Unreachable ErrorKind = "unreachable"
	// Rejected means the television answered but refused the command
	Rejected ErrorKind = "rejected"
	// Unsupported means the active backend cannot express the command
	Unsupported ErrorKind = "unsupported"
)

// ErrUnsupported is returned by backends for commands they cannot express
var ErrUnsupported = errors.New("command not supported by backend")

// Classified is implemented by backend errors that know their dispatch class
type Classified interface {
	error
	DispatchKind() ErrorKind
}

// DispatchError is the error returned by the dispatcher for a failed command
type DispatchError struct {
	Kind    ErrorKind
	Command Command
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Command, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Command, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Classify maps a backend error to its dispatch class. Errors that carry
// no class are treated as unreachable.
func Classify(err error) ErrorKind {
	if errors.Is(err, ErrUnsupported) {
		return Unsupported
	}
	var c Classified
	if errors.As(err, &c) {
		return c.DispatchKind()
	}
	return Unreachable
}

// KindOf returns the dispatch class of err, or "" when err is not a DispatchError
func KindOf(err error) ErrorKind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
