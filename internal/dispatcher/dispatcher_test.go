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

package dispatcher_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cecvol/internal/device"
	"cecvol/internal/dispatcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rejection struct{}

func (rejection) Error() string                   { return "television said NG" }
func (rejection) DispatchKind() device.ErrorKind { return device.Rejected }

type fakeBackend struct {
	mutex     sync.Mutex
	calls     []string
	caps      []device.Kind
	failures  map[device.Kind]error
	delay     time.Duration
	connected bool
	closed    bool
	gate      chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		caps:      []device.Kind{device.KindPowerOn, device.KindPowerOff, device.KindMute, device.KindVolumeStep, device.KindSelectInput},
		failures:  make(map[device.Kind]error),
		connected: true,
	}
}

func (b *fakeBackend) Name() string                 { return "fake" }
func (b *fakeBackend) Connect() error               { return nil }
func (b *fakeBackend) IsConnected() bool            { return b.connected }
func (b *fakeBackend) Capabilities() []device.Kind { return b.caps }

func (b *fakeBackend) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBackend) Send(cmd device.Command) error {
	if b.gate != nil {
		<-b.gate
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.calls = append(b.calls, cmd.String())
	return b.failures[cmd.Kind()]
}

func (b *fakeBackend) Calls() []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]string(nil), b.calls...)
}

type fakeWaker struct {
	mutex sync.Mutex
	wakes int
	err   error
}

func (w *fakeWaker) Wake() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.wakes++
	return w.err
}

func newDispatcher(t *testing.T, opts dispatcher.Options) *dispatcher.Dispatcher {
	t.Helper()
	d := dispatcher.New(opts)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestExecuteBatchOrder(t *testing.T) {
	backend := newFakeBackend()
	d := newDispatcher(t, dispatcher.Options{Backend: backend})

	errs := d.ExecuteBatch(context.Background(), []device.Command{
		device.VolumeStep{Steps: 1},
		device.VolumeStep{Steps: 1},
		device.Mute{On: true},
	})

	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, []string{"VolumeStep(1)", "VolumeStep(1)", "Mute(true)"}, backend.Calls())
}

func TestExecuteBatchNoInterleaving(t *testing.T) {
	backend := newFakeBackend()
	backend.delay = 5 * time.Millisecond
	d := newDispatcher(t, dispatcher.Options{Backend: backend, Workers: 4})

	first := []device.Command{device.VolumeStep{Steps: 1}, device.VolumeStep{Steps: 1}, device.Mute{On: true}}
	second := []device.Command{device.PowerOff{}, device.SelectInput{Input: 3}, device.Mute{On: false}}

	var wg sync.WaitGroup
	for _, batch := range [][]device.Command{first, second} {
		wg.Add(1)
		go func(cmds []device.Command) {
			defer wg.Done()
			for _, err := range d.ExecuteBatch(context.Background(), cmds) {
				assert.NoError(t, err)
			}
		}(batch)
	}
	wg.Wait()

	calls := backend.Calls()
	require.Len(t, calls, 6)
	joined := strings.Join(calls, ",")
	a := "VolumeStep(1),VolumeStep(1),Mute(true)"
	b := "PowerOff,SelectInput(3),Mute(false)"
	assert.True(t, joined == a+","+b || joined == b+","+a, "interleaved: %s", joined)
}

func TestNoDeduplication(t *testing.T) {
	backend := newFakeBackend()
	d := newDispatcher(t, dispatcher.Options{Backend: backend})

	require.NoError(t, d.Execute(context.Background(), device.Mute{On: true}))
	require.NoError(t, d.Execute(context.Background(), device.Mute{On: true}))
	require.NoError(t, d.Execute(context.Background(), device.VolumeStep{Steps: 0}))

	assert.Equal(t, []string{"Mute(true)", "Mute(true)", "VolumeStep(0)"}, backend.Calls())
}

func TestErrorClasses(t *testing.T) {
	backend := newFakeBackend()
	backend.caps = []device.Kind{device.KindPowerOff, device.KindMute}
	backend.failures[device.KindPowerOff] = rejection{}
	backend.failures[device.KindMute] = errors.New("connection reset")
	d := newDispatcher(t, dispatcher.Options{Backend: backend})

	errs := d.ExecuteBatch(context.Background(), []device.Command{
		device.PowerOff{},
		device.Mute{On: true},
		device.SelectInput{Input: 1},
	})

	assert.Equal(t, device.Rejected, device.KindOf(errs[0]))
	assert.Equal(t, device.Unreachable, device.KindOf(errs[1]))
	assert.Equal(t, device.Unsupported, device.KindOf(errs[2]))
	assert.ErrorIs(t, errs[2], device.ErrUnsupported)

	var de *device.DispatchError
	require.ErrorAs(t, errs[0], &de)
	assert.Equal(t, device.PowerOff{}, de.Command)

	assert.Equal(t, []string{"PowerOff", "Mute(true)"}, backend.Calls(), "unsupported commands never reach the backend")
}

func TestNoBackend(t *testing.T) {
	waker := &fakeWaker{}
	d := newDispatcher(t, dispatcher.Options{Waker: waker})

	err := d.Execute(context.Background(), device.PowerOff{})
	assert.Equal(t, device.Unreachable, device.KindOf(err))
	assert.ErrorIs(t, err, dispatcher.ErrNoBackend)

	require.NoError(t, d.Wake(context.Background()))
	assert.Equal(t, 1, waker.wakes)
	assert.Equal(t, "none", d.Status().Name)
}

func TestWake(t *testing.T) {
	t.Run("inside a batch", func(t *testing.T) {
		backend := newFakeBackend()
		waker := &fakeWaker{}
		d := newDispatcher(t, dispatcher.Options{Backend: backend, Waker: waker})

		errs := d.ExecuteBatch(context.Background(), []device.Command{device.WakeOnLan{}, device.PowerOn{}})
		assert.NoError(t, errs[0])
		assert.NoError(t, errs[1])
		assert.Equal(t, 1, waker.wakes)
		assert.Equal(t, []string{"PowerOn"}, backend.Calls())
	})

	t.Run("no television backend", func(t *testing.T) {
		waker := &fakeWaker{}
		d := newDispatcher(t, dispatcher.Options{Waker: waker})

		require.NoError(t, d.Wake(context.Background()))
		errs := d.ExecuteBatch(context.Background(), []device.Command{device.WakeOnLan{}})
		require.Len(t, errs, 1)
		assert.NoError(t, errs[0])
		assert.Equal(t, 2, waker.wakes)
	})

	t.Run("not configured", func(t *testing.T) {
		d := newDispatcher(t, dispatcher.Options{Backend: newFakeBackend()})
		assert.Equal(t, device.Unsupported, device.KindOf(d.Wake(context.Background())))
	})

	t.Run("send failure", func(t *testing.T) {
		waker := &fakeWaker{err: errors.New("network is unreachable")}
		d := newDispatcher(t, dispatcher.Options{Waker: waker})
		assert.Equal(t, device.Unreachable, device.KindOf(d.Wake(context.Background())))
	})
}

func TestObservers(t *testing.T) {
	backend := newFakeBackend()
	backend.failures[device.KindPowerOff] = rejection{}

	var (
		mutex   sync.Mutex
		results []device.Result
	)
	d := newDispatcher(t, dispatcher.Options{
		Backend: backend,
		Observers: []device.Observer{device.ObserverFunc(func(r device.Result) {
			mutex.Lock()
			defer mutex.Unlock()
			results = append(results, r)
		})},
	})

	d.ExecuteBatch(context.Background(), []device.Command{device.Mute{On: true}, device.PowerOff{}})

	mutex.Lock()
	defer mutex.Unlock()
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, "Mute(true)", results[0].Command)
	assert.Equal(t, "fake", results[0].Backend)
	assert.NotEmpty(t, results[0].ID)
	assert.False(t, results[1].Success)
	assert.Equal(t, device.Rejected, results[1].ErrorKind)
	assert.NotEqual(t, results[0].ID, results[1].ID)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := dispatcher.NewPrometheusMetrics(reg)
	require.NoError(t, err)

	backend := newFakeBackend()
	backend.failures[device.KindPowerOff] = rejection{}
	d := newDispatcher(t, dispatcher.Options{Backend: backend, Metrics: metrics})

	d.ExecuteBatch(context.Background(), []device.Command{
		device.VolumeStep{Steps: 1},
		device.VolumeStep{Steps: -1},
		device.PowerOff{},
	})

	expected := `
# HELP cecvol_commands_total Commands executed, by kind.
# TYPE cecvol_commands_total counter
cecvol_commands_total{kind="mute"} 0
cecvol_commands_total{kind="power_off"} 1
cecvol_commands_total{kind="power_on"} 0
cecvol_commands_total{kind="select_input"} 0
cecvol_commands_total{kind="volume_step"} 2
cecvol_commands_total{kind="wake_on_lan"} 0
# HELP cecvol_command_errors_total Failed commands, by kind and error class.
# TYPE cecvol_command_errors_total counter
cecvol_command_errors_total{class="rejected",kind="power_off"} 1
# HELP cecvol_backend_connected 1 while the television backend holds a session.
# TYPE cecvol_backend_connected gauge
cecvol_backend_connected 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"cecvol_commands_total", "cecvol_command_errors_total", "cecvol_backend_connected"))
}

func TestContextAbandon(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})
	d := newDispatcher(t, dispatcher.Options{Backend: backend})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	errs := d.ExecuteBatch(ctx, []device.Command{device.PowerOff{}, device.Mute{On: true}})
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
	assert.ErrorIs(t, errs[1], context.DeadlineExceeded)

	// the abandoned envelope still runs once the backend answers
	close(backend.gate)
	assert.Eventually(t, func() bool { return len(backend.Calls()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestClose(t *testing.T) {
	backend := newFakeBackend()
	d := dispatcher.New(dispatcher.Options{Backend: backend})

	require.NoError(t, d.Close())
	assert.True(t, backend.closed)
	assert.ErrorIs(t, d.Execute(context.Background(), device.PowerOff{}), dispatcher.ErrClosed)
}
