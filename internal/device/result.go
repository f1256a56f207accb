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

import "time"

// Result records the outcome of one executed command
type Result struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	Kind      Kind          `json:"kind"`
	Backend   string        `json:"backend"`
	Success   bool          `json:"success"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Observer is notified after every executed command
type Observer interface {
	Observe(Result)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Result)

func (f ObserverFunc) Observe(r Result) { f(r) }
