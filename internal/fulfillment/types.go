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

package fulfillment

import "encoding/json"

// Intents
const (
	IntentSync       = "action.devices.SYNC"
	IntentQuery      = "action.devices.QUERY"
	IntentExecute    = "action.devices.EXECUTE"
	IntentDisconnect = "action.devices.DISCONNECT"
)

// CommandPrefix is optional on command names
const CommandPrefix = "action.devices.commands."

// Per-command status values
const (
	StatusSuccess = "SUCCESS"
	StatusOffline = "OFFLINE"
	StatusError   = "ERROR"
)

// Error codes
const (
	ErrorCodeNotSupported     = "notSupported"
	ErrorCodeUnsupportedInput = "unsupportedInput"
	ErrorCodeDeviceOffline    = "deviceOffline"
	ErrorCodeTransientError   = "transientError"
	ErrorCodeValueOutOfRange  = "valueOutOfRange"
)

// Request is the fulfillment envelope
type Request struct {
	RequestID string  `json:"requestId"`
	Inputs    []Input `json:"inputs"`
}

// Input is one intent with its payload
type Input struct {
	Intent  string       `json:"intent"`
	Payload InputPayload `json:"payload"`
}

// InputPayload carries EXECUTE commands or QUERY devices
type InputPayload struct {
	Commands []ExecuteCommand `json:"commands,omitempty"`
	Devices  []DeviceID       `json:"devices,omitempty"`
}

// ExecuteCommand applies executions to a set of devices
type ExecuteCommand struct {
	Devices   []DeviceID  `json:"devices"`
	Execution []Execution `json:"execution"`
}

// DeviceID names a device
type DeviceID struct {
	ID string `json:"id"`
}

// Execution is one named command with raw params
type Execution struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the fulfillment reply
type Response struct {
	RequestID string      `json:"requestId"`
	Payload   interface{} `json:"payload"`
}

// ErrorPayload reports a whole-request failure
type ErrorPayload struct {
	ErrorCode   string `json:"errorCode"`
	DebugString string `json:"debugString,omitempty"`
}

// ExecutePayload lists one result per execution
type ExecutePayload struct {
	Commands []CommandResult `json:"commands"`
}

// CommandResult is the outcome of one execution
type CommandResult struct {
	IDs         []string    `json:"ids"`
	Status      string      `json:"status"`
	ErrorCode   string      `json:"errorCode,omitempty"`
	DebugString string      `json:"debugString,omitempty"`
	States      DeviceState `json:"states"`
}

// DeviceState is the reported device state
type DeviceState struct {
	Online bool `json:"online"`
}

// QueryPayload reports state per device id
type QueryPayload struct {
	Devices map[string]QueryState `json:"devices"`
}

// QueryState is the QUERY answer for one device
type QueryState struct {
	Online bool   `json:"online"`
	Status string `json:"status"`
}

// SyncPayload describes the devices served here
type SyncPayload struct {
	AgentUserID string       `json:"agentUserId"`
	Devices     []SyncDevice `json:"devices"`
}

// SyncDevice is a device description for SYNC
type SyncDevice struct {
	ID              string                 `json:"id"`
	Type            string                 `json:"type"`
	Traits          []string               `json:"traits"`
	Name            SyncName               `json:"name"`
	WillReportState bool                   `json:"willReportState"`
	RoomHint        string                 `json:"roomHint,omitempty"`
	DeviceInfo      SyncDeviceInfo         `json:"deviceInfo"`
	Attributes      map[string]interface{} `json:"attributes"`
}

// SyncName holds the device names
type SyncName struct {
	Name      string   `json:"name"`
	Nicknames []string `json:"nicknames,omitempty"`
}

// SyncDeviceInfo identifies the hardware
type SyncDeviceInfo struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// AvailableInput is one entry of availableInputs
type AvailableInput struct {
	Key   string       `json:"key"`
	Names []InputNames `json:"names"`
}

// InputNames lists synonyms for an input in one language
type InputNames struct {
	Lang        string   `json:"lang"`
	NameSynonym []string `json:"name_synonym"`
}

type onOffParams struct {
	On *bool `json:"on"`
}

type volumeRelativeParams struct {
	RelativeSteps *int `json:"relativeSteps"`
}

type muteParams struct {
	Mute *bool `json:"mute"`
}

type setInputParams struct {
	NewInput *string `json:"newInput"`
}
