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
	"time"

	"cecvol/internal/device"
	"cecvol/internal/logger"
	"github.com/rs/zerolog"
)

var (
	// ErrUnavailable means the bus service could not be opened or configured
	ErrUnavailable = errors.New("cec: hardware unavailable")
	// ErrNotAcknowledged means no device acknowledged the frame
	ErrNotAcknowledged = errors.New("cec: frame not acknowledged")
	// ErrBusy means the bus was busy or arbitration was lost
	ErrBusy = errors.New("cec: bus busy")
	// ErrHardwareFault means the adapter reported an error on transmit
	ErrHardwareFault = errors.New("cec: hardware fault")
	// ErrReceiveTimeout means no frame arrived within the receive timeout
	ErrReceiveTimeout = errors.New("cec: receive timeout")
	// ErrClosed is returned by hardware that has been closed
	ErrClosed = errors.New("cec: adapter closed")
)

// BusError carries the sentinel for a failed transmit together with its frame
type BusError struct {
	Frame Frame
	Err   error
}

func (e *BusError) Error() string { return e.Frame.String() + ": " + e.Err.Error() }

func (e *BusError) Unwrap() error { return e.Err }

// DispatchKind implements device.Classified. Every bus failure means the
// television could not be reached from here.
func (e *BusError) DispatchKind() device.ErrorKind { return device.Unreachable }

// AdapterConfig is what the driver asks the adapter to claim
type AdapterConfig struct {
	OSDName    string
	VendorID   uint32
	DeviceType DeviceType
}

// Handle is the identity the adapter holds on the bus
type Handle struct {
	LogicalAddress  LogicalAddress
	PhysicalAddress uint16
}

// Hardware is the low-level bus service. Transmit blocks until the frame
// was acknowledged or failed.
type Hardware interface {
	Configure(cfg AdapterConfig) (Handle, error)
	Transmit(raw []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

// LogOnly is a Hardware that logs frames instead of sending them, for
// hosts without an adapter.
type LogOnly struct {
	closed chan struct{}
	logger zerolog.Logger
}

// NewLogOnly creates a logging fake adapter
func NewLogOnly() *LogOnly {
	return &LogOnly{closed: make(chan struct{}), logger: logger.Component("cec")}
}

func (l *LogOnly) Configure(cfg AdapterConfig) (Handle, error) {
	l.logger.Info().
		Str("osd_name", cfg.OSDName).
		Str("device_type", string(cfg.DeviceType)).
		Msg("Faking adapter configuration")
	return Handle{LogicalAddress: AddressRecordingDevice1, PhysicalAddress: 0x1000}, nil
}

func (l *LogOnly) Transmit(raw []byte) error {
	f, err := DecodeFrame(raw)
	if err != nil {
		return err
	}
	l.logger.Info().Str("frame", f.String()).Msg("Faking transmit")
	return nil
}

func (l *LogOnly) Receive(timeout time.Duration) ([]byte, error) {
	select {
	case <-l.closed:
		return nil, ErrClosed
	case <-time.After(timeout):
		return nil, ErrReceiveTimeout
	}
}

func (l *LogOnly) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}
