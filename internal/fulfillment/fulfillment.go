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

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cecvol/internal/device"
	"cecvol/internal/logger"
	"github.com/rs/zerolog"
)

// ErrMalformedRequest is returned by Parse for bodies that are not a valid envelope
var ErrMalformedRequest = errors.New("malformed fulfillment request")

// MaxInput is the highest input accepted by SetInput
const MaxInput = 4

// Dispatcher executes envelopes of commands
type Dispatcher interface {
	ExecuteBatch(ctx context.Context, cmds []device.Command) []error
	Status() device.Info
}

// Options describes the device served by a Handler
type Options struct {
	DeviceID    string
	DeviceName  string
	AgentUserID string
}

// Handler answers fulfillment requests
type Handler struct {
	dispatcher Dispatcher
	opts       Options
	logger     zerolog.Logger
}

// NewHandler creates a handler that executes through d
func NewHandler(d Dispatcher, opts Options) *Handler {
	if opts.DeviceID == "" {
		opts.DeviceID = "1"
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "cecvol"
	}
	if opts.AgentUserID == "" {
		opts.AgentUserID = "cecvol-user"
	}
	return &Handler{dispatcher: d, opts: opts, logger: logger.Component("fulfillment")}
}

// Parse decodes and checks a request body
func Parse(body []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if req.RequestID == "" {
		return nil, fmt.Errorf("%w: requestId is required", ErrMalformedRequest)
	}
	if len(req.Inputs) == 0 {
		return nil, fmt.Errorf("%w: inputs are required", ErrMalformedRequest)
	}
	for i, in := range req.Inputs {
		if in.Intent == "" {
			return nil, fmt.Errorf("%w: inputs[%d].intent is required", ErrMalformedRequest, i)
		}
	}
	return &req, nil
}

// Handle answers the first input of req
func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	in := req.Inputs[0]
	if len(req.Inputs) > 1 {
		h.logger.Warn().
			Str("request_id", req.RequestID).
			Int("inputs", len(req.Inputs)).
			Msg("Only the first input is handled")
	}

	resp := &Response{RequestID: req.RequestID}
	switch in.Intent {
	case IntentSync:
		resp.Payload = h.sync()
	case IntentQuery:
		resp.Payload = h.query(in.Payload.Devices)
	case IntentExecute:
		resp.Payload = h.execute(ctx, req.RequestID, in.Payload.Commands)
	case IntentDisconnect:
		resp.Payload = struct{}{}
	default:
		resp.Payload = ErrorPayload{ErrorCode: ErrorCodeNotSupported, DebugString: "unknown intent " + in.Intent}
	}
	return resp
}

type pending struct {
	index int
	cmd   device.Command
}

func (h *Handler) execute(ctx context.Context, requestID string, commands []ExecuteCommand) ExecutePayload {
	var (
		results  []CommandResult
		resolved []pending
	)

	for _, c := range commands {
		ids := make([]string, 0, len(c.Devices))
		for _, d := range c.Devices {
			ids = append(ids, d.ID)
		}
		for _, e := range c.Execution {
			result := CommandResult{IDs: ids, States: DeviceState{Online: true}}
			cmd, code, err := Resolve(e)
			if err != nil {
				result.Status = StatusError
				result.ErrorCode = code
				result.DebugString = err.Error()
			} else {
				resolved = append(resolved, pending{index: len(results), cmd: cmd})
			}
			results = append(results, result)
		}
	}

	if len(resolved) > 0 {
		cmds := make([]device.Command, len(resolved))
		for i, p := range resolved {
			cmds[i] = p.cmd
		}
		errs := h.dispatcher.ExecuteBatch(ctx, cmds)
		for i, p := range resolved {
			apply(&results[p.index], errs[i])
		}
	}

	h.logger.Info().
		Str("request_id", requestID).
		Int("executions", len(results)).
		Int("dispatched", len(resolved)).
		Msg("Executed fulfillment request")

	return ExecutePayload{Commands: results}
}

func apply(result *CommandResult, err error) {
	if err == nil {
		result.Status = StatusSuccess
		return
	}
	result.DebugString = err.Error()
	switch device.KindOf(err) {
	case device.Unreachable:
		result.Status = StatusOffline
		result.ErrorCode = ErrorCodeDeviceOffline
		result.States.Online = false
	case device.Unsupported:
		result.Status = StatusError
		result.ErrorCode = ErrorCodeNotSupported
	default:
		result.Status = StatusError
		result.ErrorCode = ErrorCodeTransientError
	}
}

// Resolve maps an execution to a command. On failure it returns the error
// code to report alongside the error.
func Resolve(e Execution) (device.Command, string, error) {
	name := strings.TrimPrefix(e.Command, CommandPrefix)

	switch name {
	case "OnOff":
		var p onOffParams
		if err := decodeParams(e, &p); err != nil || p.On == nil {
			return nil, ErrorCodeNotSupported, fmt.Errorf("%s: params.on is required", name)
		}
		if *p.On {
			return device.PowerOn{}, "", nil
		}
		return device.PowerOff{}, "", nil
	case "volumeRelative":
		var p volumeRelativeParams
		if err := decodeParams(e, &p); err != nil || p.RelativeSteps == nil {
			return nil, ErrorCodeNotSupported, fmt.Errorf("%s: params.relativeSteps is required", name)
		}
		step := device.VolumeStep{Steps: *p.RelativeSteps}
		if !step.InRange() {
			return nil, ErrorCodeValueOutOfRange, fmt.Errorf("%s: relativeSteps %d exceeds %d", name, step.Steps, device.MaxVolumeSteps)
		}
		return step, "", nil
	case "mute":
		var p muteParams
		if err := decodeParams(e, &p); err != nil || p.Mute == nil {
			return nil, ErrorCodeNotSupported, fmt.Errorf("%s: params.mute is required", name)
		}
		return device.Mute{On: *p.Mute}, "", nil
	case "SetInput":
		var p setInputParams
		if err := decodeParams(e, &p); err != nil || p.NewInput == nil {
			return nil, ErrorCodeUnsupportedInput, fmt.Errorf("%s: params.newInput is required", name)
		}
		input, ok := ParseInput(*p.NewInput)
		if !ok {
			return nil, ErrorCodeUnsupportedInput, fmt.Errorf("unsupported input %q", *p.NewInput)
		}
		return device.SelectInput{Input: input}, "", nil
	case "wol":
		return device.WakeOnLan{}, "", nil
	default:
		return nil, ErrorCodeNotSupported, fmt.Errorf("unknown command %q", e.Command)
	}
}

// ParseInput accepts "1".."4" and "HDMI 1".."HDMI 4"
func ParseInput(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if rest, found := strings.CutPrefix(s, "HDMI"); found {
		s = strings.TrimSpace(rest)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > MaxInput {
		return 0, false
	}
	return n, true
}

func decodeParams(e Execution, v interface{}) error {
	if len(e.Params) == 0 {
		return nil
	}
	return json.Unmarshal(e.Params, v)
}

func (h *Handler) query(devices []DeviceID) QueryPayload {
	online := h.dispatcher.Status().Connected
	status := StatusSuccess
	if !online {
		status = StatusOffline
	}

	payload := QueryPayload{Devices: make(map[string]QueryState)}
	for _, d := range devices {
		payload.Devices[d.ID] = QueryState{Online: online, Status: status}
	}
	if len(devices) == 0 {
		payload.Devices[h.opts.DeviceID] = QueryState{Online: online, Status: status}
	}
	return payload
}

func (h *Handler) sync() SyncPayload {
	inputs := make([]AvailableInput, 0, MaxInput)
	for i := 1; i <= MaxInput; i++ {
		inputs = append(inputs, AvailableInput{
			Key:   strconv.Itoa(i),
			Names: []InputNames{{Lang: "en", NameSynonym: []string{fmt.Sprintf("HDMI %d", i)}}},
		})
	}

	return SyncPayload{
		AgentUserID: h.opts.AgentUserID,
		Devices: []SyncDevice{{
			ID:   h.opts.DeviceID,
			Type: "action.devices.types.REMOTECONTROL",
			Traits: []string{
				"action.devices.traits.InputSelector",
				"action.devices.traits.OnOff",
				"action.devices.traits.Volume",
			},
			Name:            SyncName{Name: h.opts.DeviceName, Nicknames: []string{"tv", "cec"}},
			WillReportState: false,
			RoomHint:        "living room",
			DeviceInfo:      SyncDeviceInfo{Manufacturer: "cecvol", Model: h.dispatcher.Status().Name},
			Attributes: map[string]interface{}{
				"availableInputs":          inputs,
				"commandOnlyInputSelector": true,
				"orderedInputs":            false,
				"commandOnlyOnOff":         true,
				"queryOnlyOnOff":           false,
				"volumeMaxLevel":           device.MaxVolumeSteps,
				"volumeCanMuteAndUnmute":   true,
				"volumeDefaultPercentage":  12,
				"levelStepSize":            1,
				"commandOnlyVolume":        true,
			},
		}},
	}
}
