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

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cecvol/internal/device"
	"cecvol/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNoBackend is the cause reported when no television backend is configured
var ErrNoBackend = errors.New("no television backend configured")

// Waker sends the wake signal to the companion machine
type Waker interface {
	Wake() error
}

// Options configures a Dispatcher. Backend and Waker may be nil.
type Options struct {
	Backend   device.Backend
	Waker     Waker
	Metrics   Metrics
	Observers []device.Observer
	Workers   int
	QueueSize int
}

// Dispatcher routes commands to the configured backend, one envelope at a time
type Dispatcher struct {
	backend   device.Backend
	waker     Waker
	metrics   Metrics
	observers []device.Observer
	pool      *pool
	logger    zerolog.Logger

	// held for a whole envelope; the backend session is only touched under it
	mutex sync.Mutex
}

// New creates a dispatcher and starts its workers
func New(opts Options) *Dispatcher {
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Workers < 1 {
		opts.Workers = 2
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 16
	}

	return &Dispatcher{
		backend:   opts.Backend,
		waker:     opts.Waker,
		metrics:   opts.Metrics,
		observers: opts.Observers,
		pool:      newPool(opts.Workers, opts.QueueSize),
		logger:    logger.Component("dispatcher"),
	}
}

// AddObserver registers o for every subsequent result
func (d *Dispatcher) AddObserver(o device.Observer) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.observers = append(d.observers, o)
}

// Backend returns the configured backend, or nil
func (d *Dispatcher) Backend() device.Backend {
	return d.backend
}

// Status describes the backend. It does not wait for an envelope in flight.
func (d *Dispatcher) Status() device.Info {
	return device.Describe(d.backend)
}

// Execute runs a single command
func (d *Dispatcher) Execute(ctx context.Context, cmd device.Command) error {
	return d.ExecuteBatch(ctx, []device.Command{cmd})[0]
}

// Wake sends the wake signal, independent of the television backend
func (d *Dispatcher) Wake(ctx context.Context) error {
	return d.Execute(ctx, device.WakeOnLan{})
}

// ExecuteBatch runs cmds in order without interleaving another envelope.
// The result has one entry per command. If ctx ends first every entry not
// yet known carries ctx's error; the envelope still runs to completion.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, cmds []device.Command) []error {
	results := make([]error, len(cmds))
	if len(cmds) == 0 {
		return results
	}

	var (
		resultMutex sync.Mutex
		done        int
	)
	err := d.pool.submit(ctx, func() {
		d.mutex.Lock()
		defer d.mutex.Unlock()

		for i, cmd := range cmds {
			err := d.executeLocked(cmd)
			resultMutex.Lock()
			results[i] = err
			done = i + 1
			resultMutex.Unlock()
		}
	})
	if err == nil {
		return results
	}

	resultMutex.Lock()
	defer resultMutex.Unlock()
	out := make([]error, len(cmds))
	copy(out, results[:done])
	for i := done; i < len(out); i++ {
		out[i] = err
	}
	return out
}

func (d *Dispatcher) executeLocked(cmd device.Command) error {
	start := time.Now()
	kind := cmd.Kind()
	d.metrics.CommandExecuted(kind)

	err := d.forward(cmd)

	backendName := "none"
	if d.backend != nil {
		backendName = d.backend.Name()
		d.metrics.BackendConnected(d.backend.IsConnected())
	}
	if kind == device.KindWakeOnLan {
		backendName = "wol"
	}

	result := device.Result{
		ID:        uuid.New().String(),
		Command:   cmd.String(),
		Kind:      kind,
		Backend:   backendName,
		Success:   err == nil,
		Duration:  time.Since(start),
		Timestamp: start,
	}

	var dispatchErr *device.DispatchError
	if err != nil {
		dispatchErr = &device.DispatchError{Kind: device.Classify(err), Command: cmd, Err: err}
		result.ErrorKind = dispatchErr.Kind
		result.Error = err.Error()
		d.metrics.CommandFailed(kind, dispatchErr.Kind)
		d.logger.Warn().
			Str("command", cmd.String()).
			Str("backend", backendName).
			Str("class", string(dispatchErr.Kind)).
			Err(err).
			Msg("Command failed")
	} else {
		d.logger.Info().
			Str("command", cmd.String()).
			Str("backend", backendName).
			Dur("duration", result.Duration).
			Msg("Command executed")
	}

	for _, o := range d.observers {
		o.Observe(result)
	}

	if dispatchErr != nil {
		return dispatchErr
	}
	return nil
}

func (d *Dispatcher) forward(cmd device.Command) error {
	if _, ok := cmd.(device.WakeOnLan); ok {
		if d.waker == nil {
			return fmt.Errorf("wake.mac_address not configured: %w", device.ErrUnsupported)
		}
		return d.waker.Wake()
	}

	if d.backend == nil {
		return ErrNoBackend
	}
	if !device.Supports(d.backend.Capabilities(), cmd.Kind()) {
		return fmt.Errorf("%s on %s: %w", cmd, d.backend.Name(), device.ErrUnsupported)
	}
	return d.backend.Send(cmd)
}

// Close waits for queued envelopes and closes the backend
func (d *Dispatcher) Close() error {
	d.pool.close()

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.backend == nil {
		return nil
	}
	return d.backend.Close()
}
