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

import "fmt"

// Kind names a command variant
type Kind string

const (
	KindPowerOn     Kind = "power_on"
	KindPowerOff    Kind = "power_off"
	KindMute        Kind = "mute"
	KindVolumeStep  Kind = "volume_step"
	KindSelectInput Kind = "select_input"
	KindWakeOnLan   Kind = "wake_on_lan"
)

// AllKinds lists every command kind
var AllKinds = []Kind{
	KindPowerOn,
	KindPowerOff,
	KindMute,
	KindVolumeStep,
	KindSelectInput,
	KindWakeOnLan,
}

// Command is a backend-independent instruction. The set of variants is
// closed; only types in this package implement it.
type Command interface {
	Kind() Kind
	String() string
	isCommand()
}

// PowerOn turns the television on
type PowerOn struct{}

// PowerOff puts the television in standby
type PowerOff struct{}

// Mute sets the mute state
type Mute struct {
	On bool
}

// MaxVolumeSteps bounds a single VolumeStep in either direction
const MaxVolumeSteps = 100

// VolumeStep changes the volume by Steps; negative lowers it
type VolumeStep struct {
	Steps int
}

// InRange reports whether Steps is within MaxVolumeSteps
func (c VolumeStep) InRange() bool {
	return c.Steps >= -MaxVolumeSteps && c.Steps <= MaxVolumeSteps
}

// SelectInput switches to HDMI input Input (1-based)
type SelectInput struct {
	Input int
}

// WakeOnLan wakes the companion machine
type WakeOnLan struct{}

func (PowerOn) Kind() Kind     { return KindPowerOn }
func (PowerOff) Kind() Kind    { return KindPowerOff }
func (Mute) Kind() Kind        { return KindMute }
func (VolumeStep) Kind() Kind  { return KindVolumeStep }
func (SelectInput) Kind() Kind { return KindSelectInput }
func (WakeOnLan) Kind() Kind   { return KindWakeOnLan }

func (PowerOn) String() string       { return "PowerOn" }
func (PowerOff) String() string      { return "PowerOff" }
func (c Mute) String() string        { return fmt.Sprintf("Mute(%t)", c.On) }
func (c VolumeStep) String() string  { return fmt.Sprintf("VolumeStep(%d)", c.Steps) }
func (c SelectInput) String() string { return fmt.Sprintf("SelectInput(%d)", c.Input) }
func (WakeOnLan) String() string     { return "WakeOnLan" }

func (PowerOn) isCommand()     {}
func (PowerOff) isCommand()    {}
func (Mute) isCommand()        {}
func (VolumeStep) isCommand()  {}
func (SelectInput) isCommand() {}
func (WakeOnLan) isCommand()   {}
