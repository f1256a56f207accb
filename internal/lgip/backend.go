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
	"fmt"

	"cecvol/internal/device"
)

// MaxInput is the highest HDMI input LG televisions expose
const MaxInput = 4

// Waker powers the television on; LG sets do not accept commands in standby.
type Waker interface {
	Wake() error
}

// Backend drives an LG television over its network control port
type Backend struct {
	client *Client
	waker  Waker
}

// NewBackend wraps client. waker may be nil, in which case PowerOn is unsupported.
func NewBackend(client *Client, waker Waker) *Backend {
	return &Backend{client: client, waker: waker}
}

// Client returns the underlying protocol client
func (b *Backend) Client() *Client {
	return b.client
}

func (b *Backend) Name() string { return "lgip" }

func (b *Backend) Connect() error { return b.client.Connect() }

func (b *Backend) IsConnected() bool { return b.client.State() == StateReady }

func (b *Backend) Close() error { return b.client.Close() }

func (b *Backend) Capabilities() []device.Kind {
	caps := []device.Kind{
		device.KindPowerOff,
		device.KindMute,
		device.KindVolumeStep,
		device.KindSelectInput,
	}
	if b.waker != nil {
		caps = append(caps, device.KindPowerOn)
	}
	return caps
}

// Send translates cmd into the television's command grammar
func (b *Backend) Send(cmd device.Command) error {
	switch c := cmd.(type) {
	case device.PowerOn:
		if b.waker == nil {
			return fmt.Errorf("power on needs lg.mac_address: %w", device.ErrUnsupported)
		}
		if err := b.waker.Wake(); err != nil {
			return fmt.Errorf("failed to wake television: %w", err)
		}
		return nil
	case device.PowerOff:
		return b.send("POWER off")
	case device.Mute:
		state := "off"
		if c.On {
			state = "on"
		}
		return b.send("VOLUME_MUTE " + state)
	case device.VolumeStep:
		if !c.InRange() {
			return fmt.Errorf("%s: %w", c, device.ErrUnsupported)
		}
		key, steps := "volumeup", c.Steps
		if steps < 0 {
			key, steps = "volumedown", -steps
		}
		for i := 0; i < steps; i++ {
			if err := b.send("KEY_ACTION " + key); err != nil {
				return err
			}
		}
		return nil
	case device.SelectInput:
		if c.Input < 1 || c.Input > MaxInput {
			return fmt.Errorf("hdmi input %d: %w", c.Input, device.ErrUnsupported)
		}
		return b.send(fmt.Sprintf("INPUT_SELECT hdmi%d", c.Input))
	default:
		return fmt.Errorf("%s: %w", cmd, device.ErrUnsupported)
	}
}

// Raw sends instruction verbatim and returns the reply
func (b *Backend) Raw(instruction string) (string, error) {
	return b.client.Command(instruction)
}

func (b *Backend) send(instruction string) error {
	_, err := b.client.Command(instruction)
	return err
}
