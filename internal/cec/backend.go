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

package cec

import (
	"fmt"
	"sync/atomic"

	"cecvol/internal/device"
)

// MaxInput is the highest port a first-level physical address can carry
const MaxInput = 0xF

// BackendOptions selects where volume keys go and whether inputs can be routed
type BackendOptions struct {
	VolumeTarget LogicalAddress
	InputRouting bool
}

// Backend drives the television with CEC frames through a Driver
type Backend struct {
	driver *Driver
	opts   BackendOptions
	closed atomic.Bool
}

// NewBackend wraps an open driver
func NewBackend(driver *Driver, opts BackendOptions) *Backend {
	return &Backend{driver: driver, opts: opts}
}

// Driver returns the underlying bus driver
func (b *Backend) Driver() *Driver {
	return b.driver
}

func (b *Backend) Name() string { return "cec" }

// Connect is a no-op; the adapter is configured when the driver opens.
func (b *Backend) Connect() error {
	if b.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (b *Backend) IsConnected() bool { return !b.closed.Load() }

func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.driver.Close()
}

func (b *Backend) Capabilities() []device.Kind {
	caps := []device.Kind{
		device.KindPowerOn,
		device.KindPowerOff,
		device.KindMute,
		device.KindVolumeStep,
	}
	if b.opts.InputRouting {
		caps = append(caps, device.KindSelectInput)
	}
	return caps
}

// Send translates cmd into CEC frames
func (b *Backend) Send(cmd device.Command) error {
	src := b.source()

	switch c := cmd.(type) {
	case device.PowerOn:
		return b.driver.SendFrame(NewFrame(src, AddressTV, OpcodeImageViewOn))
	case device.PowerOff:
		return b.driver.SendFrame(NewFrame(src, AddressTV, OpcodeStandby))
	case device.Mute:
		if c.On {
			return b.press(KeycodeMuteFunction)
		}
		return b.press(KeycodeRestoreVolume)
	case device.VolumeStep:
		if !c.InRange() {
			return fmt.Errorf("%s: %w", c, device.ErrUnsupported)
		}
		key, steps := KeycodeVolumeUp, c.Steps
		if steps < 0 {
			key, steps = KeycodeVolumeDown, -steps
		}
		for i := 0; i < steps; i++ {
			if err := b.press(key); err != nil {
				return err
			}
		}
		return nil
	case device.SelectInput:
		if !b.opts.InputRouting {
			return fmt.Errorf("input routing disabled: %w", device.ErrUnsupported)
		}
		if c.Input < 1 || c.Input > MaxInput {
			return fmt.Errorf("hdmi input %d: %w", c.Input, device.ErrUnsupported)
		}
		if err := b.driver.SendFrame(NewFrame(src, AddressTV, OpcodeImageViewOn)); err != nil {
			return err
		}
		pa := uint16(c.Input) << 12
		return b.driver.SendFrame(NewFrame(src, AddressBroadcast, OpcodeActiveSource, byte(pa>>8), byte(pa)))
	default:
		return fmt.Errorf("%s: %w", cmd, device.ErrUnsupported)
	}
}

func (b *Backend) press(key Keycode) error {
	src := b.source()
	if err := b.driver.SendFrame(NewFrame(src, b.opts.VolumeTarget, OpcodeUserControlPressed, byte(key))); err != nil {
		return err
	}
	return b.driver.SendFrame(NewFrame(src, b.opts.VolumeTarget, OpcodeUserControlReleased))
}

func (b *Backend) source() LogicalAddress {
	return b.driver.Handle().LogicalAddress
}
