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

package lgip

import (
	"errors"
	"fmt"
	"net"

	"cecvol/internal/device"
)

// ErrNotPaired is wrapped when an instruction is attempted before the key is confirmed
var ErrNotPaired = errors.New("lgip: session not paired")

// ErrorKind distinguishes protocol failures so callers can decide on retries
type ErrorKind string

const (
	ErrTimeout   ErrorKind = "timeout"
	ErrRejected  ErrorKind = "rejected"
	ErrTransport ErrorKind = "transport"
	ErrDecrypt   ErrorKind = "decrypt"
)

// ProtocolError is returned for every failed exchange with the television
type ProtocolError struct {
	Kind     ErrorKind
	Op       string
	Response string
	Err      error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("lgip %s: %s", e.Op, e.Kind)
	if e.Response != "" {
		msg += fmt.Sprintf(" (response %q)", e.Response)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DispatchKind implements device.Classified
func (e *ProtocolError) DispatchKind() device.ErrorKind {
	if e.Kind == ErrRejected {
		return device.Rejected
	}
	return device.Unreachable
}

// Retryable reports whether a reconnect may help
func (e *ProtocolError) Retryable() bool {
	return e.Kind == ErrTransport || e.Kind == ErrTimeout
}

// KindOf returns the protocol error kind of err, or "" for other errors
func KindOf(err error) ErrorKind {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func ioError(op string, err error) *ProtocolError {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &ProtocolError{Kind: ErrTimeout, Op: op, Err: err}
	}
	return &ProtocolError{Kind: ErrTransport, Op: op, Err: err}
}
