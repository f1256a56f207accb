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

// Package cectest provides scripted CEC hardware for tests.
package cectest

import (
	"sync"
	"time"

	"cecvol/internal/cec"
)

// Hardware is a cec.Hardware whose transmit outcomes are scripted and whose
// incoming frames are injected by the test.
type Hardware struct {
	mutex      sync.Mutex
	handle     cec.Handle
	configErr  error
	configured []cec.AdapterConfig
	outcomes   []error
	absent     map[cec.LogicalAddress]bool
	attempts   [][]byte
	sent       []cec.Frame
	incoming   chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
}

// NewHardware returns hardware that registers as recording device 1 at 1.0.0.0
func NewHardware() *Hardware {
	return &Hardware{
		handle:   cec.Handle{LogicalAddress: cec.AddressRecordingDevice1, PhysicalAddress: 0x1000},
		absent:   make(map[cec.LogicalAddress]bool),
		incoming: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

// SetHandle changes the addresses returned by Configure
func (h *Hardware) SetHandle(handle cec.Handle) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.handle = handle
}

// FailConfigure makes Configure return err
func (h *Hardware) FailConfigure(err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.configErr = err
}

// Script queues transmit outcomes, consumed one per attempt; nil is success.
// Once the script is exhausted every transmit succeeds.
func (h *Hardware) Script(outcomes ...error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.outcomes = append(h.outcomes, outcomes...)
}

// Absent makes polls and frames to addr go unacknowledged
func (h *Hardware) Absent(addrs ...cec.LogicalAddress) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, a := range addrs {
		h.absent[a] = true
	}
}

// Inject queues a frame for Receive
func (h *Hardware) Inject(f cec.Frame) {
	raw, err := f.Encode()
	if err != nil {
		panic(err)
	}
	h.incoming <- raw
}

// Attempts returns the raw bytes of every transmit attempt
func (h *Hardware) Attempts() [][]byte {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([][]byte(nil), h.attempts...)
}

// Sent returns the frames that were acknowledged
func (h *Hardware) Sent() []cec.Frame {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]cec.Frame(nil), h.sent...)
}

// Configured returns every configuration requested
func (h *Hardware) Configured() []cec.AdapterConfig {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]cec.AdapterConfig(nil), h.configured...)
}

// Closed reports whether Close was called
func (h *Hardware) Closed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

func (h *Hardware) Configure(cfg cec.AdapterConfig) (cec.Handle, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.configured = append(h.configured, cfg)
	if h.configErr != nil {
		return cec.Handle{}, h.configErr
	}
	return h.handle, nil
}

func (h *Hardware) Transmit(raw []byte) error {
	if h.Closed() {
		return cec.ErrClosed
	}
	f, err := cec.DecodeFrame(raw)
	if err != nil {
		return err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.attempts = append(h.attempts, append([]byte(nil), raw...))

	if len(h.outcomes) > 0 {
		outcome := h.outcomes[0]
		h.outcomes = h.outcomes[1:]
		if outcome != nil {
			return outcome
		}
	} else if h.absent[f.Destination] {
		return cec.ErrNotAcknowledged
	}
	h.sent = append(h.sent, f)
	return nil
}

func (h *Hardware) Receive(timeout time.Duration) ([]byte, error) {
	select {
	case <-h.closed:
		return nil, cec.ErrClosed
	case raw := <-h.incoming:
		return raw, nil
	case <-time.After(timeout):
		return nil, cec.ErrReceiveTimeout
	}
}

func (h *Hardware) Close() error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}
