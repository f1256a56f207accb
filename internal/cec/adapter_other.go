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

//go:build !linux

package cec

import (
	"fmt"
	"runtime"
)

// OpenAdapter is only implemented on linux
func OpenAdapter(path string) (Hardware, error) {
	return nil, fmt.Errorf("%w: %s has no CEC device support (%s)", ErrUnavailable, runtime.GOOS, path)
}
