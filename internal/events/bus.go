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

package events

import (
	"sync"
	"time"

	"cecvol/internal/cec"
	"cecvol/internal/device"
	"cecvol/internal/logger"
	"github.com/rs/zerolog"
)

// Event types
const (
	TypeCommand = "command"
	TypeCEC     = "cec"
)

// Event is one item on the bus
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Command   *device.Result `json:"command,omitempty"`
	Frame     *FrameEvent    `json:"frame,omitempty"`
}

// FrameEvent is a received CEC frame in JSON form
type FrameEvent struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Opcode      string `json:"opcode,omitempty"`
	Operands    []byte `json:"operands,omitempty"`
	Text        string `json:"text"`
}

// NewFrameEvent converts f
func NewFrameEvent(f cec.Frame) *FrameEvent {
	e := &FrameEvent{
		Source:      f.Source.String(),
		Destination: f.Destination.String(),
		Operands:    f.Operands,
		Text:        f.String(),
	}
	if !f.IsPoll() {
		e.Opcode = f.Opcode.String()
	}
	return e
}

// Bus fans events out to subscribers. Slow subscribers lose events.
type Bus struct {
	mutex  sync.RWMutex
	subs   map[int]chan Event
	nextID int
	logger zerolog.Logger
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event), logger: logger.Component("events")}
}

// Subscribe returns a channel of events and a function that ends the subscription
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mutex.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mutex.Lock()
			delete(b.subs, id)
			b.mutex.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscriptions
func (b *Bus) Subscribers() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subs)
}

// Publish delivers e to every subscriber without blocking
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mutex.RLock()
	defer b.mutex.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Debug().Int("subscriber", id).Str("type", e.Type).Msg("Subscriber lagging, event dropped")
		}
	}
}

// Observe publishes a command result; it lets the bus observe the dispatcher.
func (b *Bus) Observe(r device.Result) {
	b.Publish(Event{Type: TypeCommand, Timestamp: r.Timestamp, Command: &r})
}

// PublishFrame publishes a received CEC frame
func (b *Bus) PublishFrame(f cec.Frame) {
	b.Publish(Event{Type: TypeCEC, Frame: NewFrameEvent(f)})
}

// Forward publishes every frame from frames until the channel closes
func (b *Bus) Forward(frames <-chan cec.Frame) {
	for f := range frames {
		b.PublishFrame(f)
	}
}
