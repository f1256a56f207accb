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

package lgip_test

import (
	"testing"

	"cecvol/internal/device"
	"cecvol/internal/lgcrypto"
	"cecvol/internal/lgip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWaker struct{ wakes int }

func (w *fakeWaker) Wake() error {
	w.wakes++
	return nil
}

func TestBackendGrammar(t *testing.T) {
	tests := []struct {
		name string
		cmd  device.Command
		want []string
	}{
		{"power off", device.PowerOff{}, []string{"POWER off"}},
		{"mute", device.Mute{On: true}, []string{"VOLUME_MUTE on"}},
		{"unmute", device.Mute{On: false}, []string{"VOLUME_MUTE off"}},
		{"volume up", device.VolumeStep{Steps: 2}, []string{"KEY_ACTION volumeup", "KEY_ACTION volumeup"}},
		{"volume down", device.VolumeStep{Steps: -3}, []string{"KEY_ACTION volumedown", "KEY_ACTION volumedown", "KEY_ACTION volumedown"}},
		{"volume zero", device.VolumeStep{Steps: 0}, []string{}},
		{"input", device.SelectInput{Input: 2}, []string{"INPUT_SELECT hdmi2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, lgcrypto.FramingRaw)
			require.NoError(t, h.client.Connect())

			backend := lgip.NewBackend(h.client, nil)
			require.NoError(t, backend.Send(tt.cmd))
			assert.Equal(t, tt.want, h.tv.CommandsExcept("CURRENT_VOL"))
		})
	}
}

func TestBackendUnsupported(t *testing.T) {
	h := newHarness(t, lgcrypto.FramingRaw)
	backend := lgip.NewBackend(h.client, nil)

	assert.ErrorIs(t, backend.Send(device.SelectInput{Input: 5}), device.ErrUnsupported)
	assert.ErrorIs(t, backend.Send(device.SelectInput{Input: 0}), device.ErrUnsupported)
	assert.ErrorIs(t, backend.Send(device.PowerOn{}), device.ErrUnsupported)
	assert.ErrorIs(t, backend.Send(device.WakeOnLan{}), device.ErrUnsupported)
	assert.ErrorIs(t, backend.Send(device.VolumeStep{Steps: device.MaxVolumeSteps + 1}), device.ErrUnsupported)
	assert.ErrorIs(t, backend.Send(device.VolumeStep{Steps: -1 << 30}), device.ErrUnsupported)
	assert.NotContains(t, backend.Capabilities(), device.KindPowerOn)
	assert.Equal(t, 0, h.tv.Accepts(), "unsupported commands never touch the socket")
}

func TestBackendPowerOn(t *testing.T) {
	h := newHarness(t, lgcrypto.FramingRaw)
	waker := &fakeWaker{}
	backend := lgip.NewBackend(h.client, waker)

	require.NoError(t, backend.Send(device.PowerOn{}))
	assert.Equal(t, 1, waker.wakes)
	assert.Contains(t, backend.Capabilities(), device.KindPowerOn)
	assert.False(t, backend.IsConnected())

	require.NoError(t, backend.Connect())
	assert.True(t, backend.IsConnected())
	assert.Equal(t, "lgip", backend.Name())
	require.NoError(t, backend.Close())
	assert.False(t, backend.IsConnected())
}

func TestBackendErrorClass(t *testing.T) {
	h := newHarness(t, lgcrypto.FramingRaw)
	require.NoError(t, h.client.Connect())
	backend := lgip.NewBackend(h.client, nil)

	h.tv.Reply("POWER", "NG")
	err := backend.Send(device.PowerOff{})
	require.Error(t, err)
	assert.Equal(t, device.Rejected, device.Classify(err))

	h.tv.Close()
	err = backend.Send(device.Mute{On: true})
	require.Error(t, err)
	assert.Equal(t, device.Unreachable, device.Classify(err))
}
