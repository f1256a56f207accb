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
	"net/http"
	"sync/atomic"
	"time"

	"cecvol/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Stream serves bus events of one type over websocket, one JSON message per event
type Stream struct {
	bus        *Bus
	eventType  string
	maxClients int32
	clients    atomic.Int32
	logger     zerolog.Logger
}

// NewStream creates a websocket handler for events of eventType; "" streams everything.
func NewStream(bus *Bus, eventType string) *Stream {
	return &Stream{
		bus:        bus,
		eventType:  eventType,
		maxClients: 16,
		logger:     logger.Component("stream"),
	}
}

// SetMaxClients limits concurrent websocket clients
func (s *Stream) SetMaxClients(n int) {
	s.maxClients = int32(n)
}

// Clients returns the number of connected clients
func (s *Stream) Clients() int {
	return int(s.clients.Load())
}

func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// reserve the slot before upgrading so concurrent handshakes cannot overshoot
	if s.clients.Add(1) > s.maxClients {
		s.clients.Add(-1)
		s.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("Max stream clients reached, rejecting connection")
		http.Error(w, "too many stream clients", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.clients.Add(-1)
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	events, cancel := s.bus.Subscribe(64)

	defer func() {
		cancel()
		conn.Close()
		s.clients.Add(-1)
		s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Stream client disconnected")
	}()

	s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Stream client connected")

	// the reader only notices the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Warn().Err(err).Msg("Stream connection error")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if s.eventType != "" && e.Type != s.eventType {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug().Err(err).Msg("Stream write failed")
				return
			}
		}
	}
}
