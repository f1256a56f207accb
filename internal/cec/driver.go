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
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cecvol/internal/logger"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Options configures a Driver
type Options struct {
	Config AdapterConfig

	// BusyRetries is the total number of transmit attempts for a busy bus
	BusyRetries int
	BusyDelay   time.Duration

	ReceiveTimeout time.Duration
	FrameBuffer    int

	Sleep func(time.Duration)
}

func (o *Options) setDefaults() {
	if o.Config.OSDName == "" {
		o.Config.OSDName = "cecvol"
	}
	if o.Config.VendorID == 0 {
		o.Config.VendorID = LGVendorID
	}
	if o.Config.DeviceType == "" {
		o.Config.DeviceType = DeviceTypeRecording
	}
	if o.BusyRetries < 1 {
		o.BusyRetries = 3
	}
	if o.BusyDelay == 0 {
		o.BusyDelay = 50 * time.Millisecond
	}
	if o.ReceiveTimeout == 0 {
		o.ReceiveTimeout = time.Second
	}
	if o.FrameBuffer == 0 {
		o.FrameBuffer = 64
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
}

// Observation is what the driver last learned about one bus address
type Observation struct {
	Address         LogicalAddress `json:"-"`
	Name            string         `json:"address"`
	PhysicalAddress string         `json:"physical_address,omitempty"`
	VendorID        uint32         `json:"vendor_id,omitempty"`
	OSDName         string         `json:"osd_name,omitempty"`
	PowerStatus     string         `json:"power_status,omitempty"`
	LastOpcode      string         `json:"last_opcode,omitempty"`
	Present         bool           `json:"present"`
	Frames          int            `json:"frames"`
	LastSeen        time.Time      `json:"last_seen"`
}

var powerStatusNames = map[byte]string{
	0: "on",
	1: "standby",
	2: "standby_to_on",
	3: "on_to_standby",
}

// Driver owns the adapter handle. SendFrame is synchronous; received frames
// are diagnostic and never drive control flow.
type Driver struct {
	hw     Hardware
	opts   Options
	handle Handle
	logger zerolog.Logger

	txMutex   sync.Mutex
	frames    chan Frame
	seenMutex sync.Mutex
	seen      *lru.Cache[LogicalAddress, Observation]

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open configures hw and starts the receive loop. Any failure is returned
// wrapped in ErrUnavailable and hw is closed.
func Open(hw Hardware, opts Options) (*Driver, error) {
	opts.setDefaults()
	log := logger.Component("cec")

	handle, err := hw.Configure(opts.Config)
	if err != nil {
		hw.Close()
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}

	seen, err := lru.New[LogicalAddress, Observation](int(AddressBroadcast) + 1)
	if err != nil {
		hw.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	d := &Driver{
		hw:     hw,
		opts:   opts,
		handle: handle,
		logger: log,
		frames: make(chan Frame, opts.FrameBuffer),
		seen:   seen,
		done:   make(chan struct{}),
	}

	log.Info().
		Str("logical_address", handle.LogicalAddress.String()).
		Str("physical_address", FormatPhysicalAddress(handle.PhysicalAddress)).
		Str("osd_name", opts.Config.OSDName).
		Msg("CEC adapter configured")

	d.wg.Add(1)
	go d.receiveLoop()

	return d, nil
}

// Handle returns the addresses the adapter registered
func (d *Driver) Handle() Handle {
	return d.handle
}

// Frames delivers received frames. The channel is closed by Close; frames
// are dropped while it is full.
func (d *Driver) Frames() <-chan Frame {
	return d.frames
}

// SendFrame transmits f, retrying only while the bus is busy
func (d *Driver) SendFrame(f Frame) error {
	raw, err := f.Encode()
	if err != nil {
		return err
	}

	select {
	case <-d.done:
		return &BusError{Frame: f, Err: ErrClosed}
	default:
	}

	d.txMutex.Lock()
	defer d.txMutex.Unlock()

	for attempt := 1; ; attempt++ {
		err = d.hw.Transmit(raw)
		if err == nil {
			d.logger.Debug().Str("frame", f.String()).Int("attempt", attempt).Msg("Frame acknowledged")
			return nil
		}
		if !errors.Is(err, ErrBusy) || attempt >= d.opts.BusyRetries {
			break
		}
		d.logger.Debug().Str("frame", f.String()).Int("attempt", attempt).Msg("Bus busy, retrying")
		d.opts.Sleep(d.opts.BusyDelay)
	}

	if errors.Is(err, ErrHardwareFault) {
		d.logger.Error().Err(err).Str("frame", f.String()).Msg("CEC hardware fault")
	}
	return &BusError{Frame: f, Err: err}
}

// Poll sends a header-only frame to addr and reports whether it was acknowledged
func (d *Driver) Poll(addr LogicalAddress) (bool, error) {
	err := d.SendFrame(PollFrame(d.handle.LogicalAddress, addr))
	switch {
	case err == nil:
		d.update(addr, func(o *Observation) { o.Present = true })
		return true, nil
	case errors.Is(err, ErrNotAcknowledged):
		return false, nil
	default:
		return false, err
	}
}

// PollAll polls every address except our own and the broadcast address
func (d *Driver) PollAll() (map[LogicalAddress]bool, error) {
	present := make(map[LogicalAddress]bool)
	for addr := AddressTV; addr < AddressBroadcast; addr++ {
		if addr == d.handle.LogicalAddress {
			continue
		}
		ok, err := d.Poll(addr)
		if err != nil {
			return present, err
		}
		present[addr] = ok
	}
	return present, nil
}

// Observations returns a snapshot of known devices ordered by address
func (d *Driver) Observations() []Observation {
	out := make([]Observation, 0, d.seen.Len())
	for _, addr := range d.seen.Keys() {
		if o, ok := d.seen.Peek(addr); ok {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Close stops the receive loop and releases the adapter
func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.hw.Close()
		d.wg.Wait()
		close(d.frames)
		d.logger.Info().Msg("CEC adapter closed")
	})
	return err
}

func (d *Driver) receiveLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return
		default:
		}

		raw, err := d.hw.Receive(d.opts.ReceiveTimeout)
		if err != nil {
			switch {
			case errors.Is(err, ErrReceiveTimeout):
				continue
			case errors.Is(err, ErrClosed):
				return
			default:
				d.logger.Warn().Err(err).Msg("CEC receive failed")
				select {
				case <-d.done:
					return
				case <-time.After(d.opts.ReceiveTimeout):
				}
				continue
			}
		}

		f, err := DecodeFrame(raw)
		if err != nil {
			d.logger.Debug().Err(err).Msg("Dropping undecodable frame")
			continue
		}
		d.observe(f)

		select {
		case d.frames <- f:
		default:
			d.logger.Debug().Str("frame", f.String()).Msg("Frame buffer full, dropping")
		}
	}
}

func (d *Driver) observe(f Frame) {
	d.update(f.Source, func(o *Observation) {
		o.Present = true
		o.Frames++
		if f.IsPoll() {
			return
		}
		o.LastOpcode = f.Opcode.String()
		switch f.Opcode {
		case OpcodeReportPhysicalAddress, OpcodeActiveSource:
			if len(f.Operands) >= 2 {
				o.PhysicalAddress = FormatPhysicalAddress(uint16(f.Operands[0])<<8 | uint16(f.Operands[1]))
			}
		case OpcodeSetOSDName:
			o.OSDName = string(f.Operands)
		case OpcodeDeviceVendorID:
			if len(f.Operands) >= 3 {
				o.VendorID = uint32(f.Operands[0])<<16 | uint32(f.Operands[1])<<8 | uint32(f.Operands[2])
			}
		case OpcodeReportPowerStatus:
			if len(f.Operands) >= 1 {
				o.PowerStatus = powerStatusNames[f.Operands[0]]
			}
		}
	})
}

func (d *Driver) update(addr LogicalAddress, fn func(*Observation)) {
	d.seenMutex.Lock()
	defer d.seenMutex.Unlock()

	o, ok := d.seen.Get(addr)
	if !ok {
		o = Observation{Address: addr, Name: addr.String()}
	}
	fn(&o)
	o.LastSeen = time.Now()
	d.seen.Add(addr, o)
}
