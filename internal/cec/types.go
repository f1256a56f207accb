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

import "fmt"

// LogicalAddress is the 4-bit bus address of a device
type LogicalAddress uint8

const (
	AddressTV               LogicalAddress = 0x0
	AddressRecordingDevice1 LogicalAddress = 0x1
	AddressRecordingDevice2 LogicalAddress = 0x2
	AddressTuner1           LogicalAddress = 0x3
	AddressPlaybackDevice1  LogicalAddress = 0x4
	AddressAudioSystem      LogicalAddress = 0x5
	AddressTuner2           LogicalAddress = 0x6
	AddressTuner3           LogicalAddress = 0x7
	AddressPlaybackDevice2  LogicalAddress = 0x8
	AddressRecordingDevice3 LogicalAddress = 0x9
	AddressTuner4           LogicalAddress = 0xA
	AddressPlaybackDevice3  LogicalAddress = 0xB
	AddressReserved1        LogicalAddress = 0xC
	AddressReserved2        LogicalAddress = 0xD
	AddressFreeUse          LogicalAddress = 0xE
	AddressBroadcast        LogicalAddress = 0xF
)

var addressNames = map[LogicalAddress]string{
	AddressTV:               "tv",
	AddressRecordingDevice1: "recording1",
	AddressRecordingDevice2: "recording2",
	AddressTuner1:           "tuner1",
	AddressPlaybackDevice1:  "playback1",
	AddressAudioSystem:      "audio",
	AddressTuner2:           "tuner2",
	AddressTuner3:           "tuner3",
	AddressPlaybackDevice2:  "playback2",
	AddressRecordingDevice3: "recording3",
	AddressTuner4:           "tuner4",
	AddressPlaybackDevice3:  "playback3",
	AddressReserved1:        "reserved1",
	AddressReserved2:        "reserved2",
	AddressFreeUse:          "free",
	AddressBroadcast:        "broadcast",
}

func (a LogicalAddress) String() string {
	if name, ok := addressNames[a]; ok {
		return name
	}
	return fmt.Sprintf("invalid(%d)", uint8(a))
}

// Opcode identifies a CEC message
type Opcode uint8

const (
	OpcodeFeatureAbort          Opcode = 0x00
	OpcodeImageViewOn           Opcode = 0x04
	OpcodeTextViewOn            Opcode = 0x0D
	OpcodeStandby               Opcode = 0x36
	OpcodeUserControlPressed    Opcode = 0x44
	OpcodeUserControlReleased   Opcode = 0x45
	OpcodeGiveOSDName           Opcode = 0x46
	OpcodeSetOSDName            Opcode = 0x47
	OpcodeRoutingChange         Opcode = 0x80
	OpcodeActiveSource          Opcode = 0x82
	OpcodeGivePhysicalAddress   Opcode = 0x83
	OpcodeReportPhysicalAddress Opcode = 0x84
	OpcodeRequestActiveSource   Opcode = 0x85
	OpcodeSetStreamPath         Opcode = 0x86
	OpcodeDeviceVendorID        Opcode = 0x87
	OpcodeGiveDeviceVendorID    Opcode = 0x8C
	OpcodeGiveDevicePowerStatus Opcode = 0x8F
	OpcodeReportPowerStatus     Opcode = 0x90
	OpcodeInactiveSource        Opcode = 0x9D
	OpcodeCECVersion            Opcode = 0x9E
	OpcodeGetCECVersion         Opcode = 0x9F
)

var opcodeNames = map[Opcode]string{
	OpcodeFeatureAbort:          "feature_abort",
	OpcodeImageViewOn:           "image_view_on",
	OpcodeTextViewOn:            "text_view_on",
	OpcodeStandby:               "standby",
	OpcodeUserControlPressed:    "user_control_pressed",
	OpcodeUserControlReleased:   "user_control_released",
	OpcodeGiveOSDName:           "give_osd_name",
	OpcodeSetOSDName:            "set_osd_name",
	OpcodeRoutingChange:         "routing_change",
	OpcodeActiveSource:          "active_source",
	OpcodeGivePhysicalAddress:   "give_physical_address",
	OpcodeReportPhysicalAddress: "report_physical_address",
	OpcodeRequestActiveSource:   "request_active_source",
	OpcodeSetStreamPath:         "set_stream_path",
	OpcodeDeviceVendorID:        "device_vendor_id",
	OpcodeGiveDeviceVendorID:    "give_device_vendor_id",
	OpcodeGiveDevicePowerStatus: "give_device_power_status",
	OpcodeReportPowerStatus:     "report_power_status",
	OpcodeInactiveSource:        "inactive_source",
	OpcodeCECVersion:            "cec_version",
	OpcodeGetCECVersion:         "get_cec_version",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", uint8(o))
}

// Keycode is a User Control Pressed operand
type Keycode uint8

const (
	KeycodePower            Keycode = 0x40
	KeycodeVolumeUp         Keycode = 0x41
	KeycodeVolumeDown       Keycode = 0x42
	KeycodeMute             Keycode = 0x43
	KeycodeMuteFunction     Keycode = 0x65
	KeycodeRestoreVolume    Keycode = 0x66
	KeycodePowerOffFunction Keycode = 0x6C
)

// DeviceType is the role the adapter claims on the bus
type DeviceType string

const (
	DeviceTypeRecording DeviceType = "recording"
	DeviceTypePlayback  DeviceType = "playback"
)

// LGVendorID is required by LG sets before they honour user control keys
const LGVendorID uint32 = 0x00E091

// PhysicalAddressInvalid is reported by adapters not attached to a sink
const PhysicalAddressInvalid uint16 = 0xFFFF

// FormatPhysicalAddress renders a physical address as a.b.c.d
func FormatPhysicalAddress(pa uint16) string {
	return fmt.Sprintf("%d.%d.%d.%d", pa>>12, (pa>>8)&0xF, (pa>>4)&0xF, pa&0xF)
}
