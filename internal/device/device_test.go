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

package device_test

import (
	"errors"
	"fmt"
	"testing"

	"cecvol/internal/device"
	"github.com/stretchr/testify/assert"
)

type classifiedErr struct{ kind device.ErrorKind }

func (e classifiedErr) Error() string                   { return "classified" }
func (e classifiedErr) DispatchKind() device.ErrorKind { return e.kind }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want device.ErrorKind
	}{
		{"unsupported sentinel", device.ErrUnsupported, device.Unsupported},
		{"wrapped unsupported", fmt.Errorf("lg: %w", device.ErrUnsupported), device.Unsupported},
		{"classified rejected", classifiedErr{device.Rejected}, device.Rejected},
		{"wrapped classified", fmt.Errorf("send: %w", classifiedErr{device.Rejected}), device.Rejected},
		{"plain error", errors.New("boom"), device.Unreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, device.Classify(tt.err))
		})
	}
}

func TestDispatchError(t *testing.T) {
	inner := errors.New("connection refused")
	err := &device.DispatchError{Kind: device.Unreachable, Command: device.PowerOff{}, Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, device.Unreachable, device.KindOf(fmt.Errorf("wrap: %w", err)))
	assert.Equal(t, device.ErrorKind(""), device.KindOf(inner))
	assert.Contains(t, err.Error(), "PowerOff")
}

func TestCommandKinds(t *testing.T) {
	cmds := []device.Command{
		device.PowerOn{}, device.PowerOff{}, device.Mute{On: true},
		device.VolumeStep{Steps: -2}, device.SelectInput{Input: 3}, device.WakeOnLan{},
	}
	for i, c := range cmds {
		assert.Equal(t, device.AllKinds[i], c.Kind())
	}
	assert.Equal(t, "VolumeStep(-2)", device.VolumeStep{Steps: -2}.String())
	assert.True(t, device.Supports(device.AllKinds, device.KindMute))
	assert.False(t, device.Supports(nil, device.KindMute))
	assert.Equal(t, "none", device.Describe(nil).Name)
}
