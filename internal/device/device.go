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

// Backend is a transport capable of driving the television
type Backend interface {
	// Name identifies the backend in logs and status output
	Name() string

	// Connect establishes the underlying session if it is not already up
	Connect() error

	// Send executes a single command. It blocks until the television
	// acknowledged the command or the attempt failed.
	Send(cmd Command) error

	// IsConnected reports whether a session is currently established
	IsConnected() bool

	// Capabilities lists the command kinds this backend can execute
	Capabilities() []Kind

	// Close releases the session
	Close() error
}

// Info describes a backend for status endpoints
type Info struct {
	Name         string   `json:"name"`
	Connected    bool     `json:"connected"`
	Capabilities []string `json:"capabilities"`
}

// Describe builds an Info snapshot for b
func Describe(b Backend) Info {
	if b == nil {
		return Info{Name: "none", Capabilities: []string{}}
	}
	caps := make([]string, 0)
	for _, k := range b.Capabilities() {
		caps = append(caps, string(k))
	}
	return Info{
		Name:         b.Name(),
		Connected:    b.IsConnected(),
		Capabilities: caps,
	}
}

// Supports reports whether kind appears in caps
func Supports(caps []Kind, kind Kind) bool {
	for _, c := range caps {
		if c == kind {
			return true
		}
	}
	return false
}
