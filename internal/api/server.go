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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"cecvol/internal/cec"
	"cecvol/internal/device"
	"cecvol/internal/fulfillment"
	"cecvol/internal/logger"
	"cecvol/internal/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the per-request id
const RequestIDHeader = "X-Request-ID"

const maxBodySize = 64 << 10

// StatusSource reports the backend state
type StatusSource interface {
	Status() device.Info
}

// History lists journal entries, newest first
type History interface {
	Recent(limit int) ([]*store.JournalEntry, error)
}

// DeviceLister reports what was seen on the CEC bus
type DeviceLister interface {
	Observations() []cec.Observation
}

// Options wires the server. History, Devices and Stream may be nil.
type Options struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Status       StatusSource
	Fulfillment  *fulfillment.Handler
	History      History
	Devices      DeviceLister
	Stream       http.Handler
	Gatherer     prometheus.Gatherer
}

// Server is the HTTP front of the service
type Server struct {
	opts    Options
	router  *mux.Router
	server  *http.Server
	started time.Time
	logger  zerolog.Logger
}

// NewServer builds the router
func NewServer(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		opts:    opts,
		started: time.Now(),
		logger:  logger.Component("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.requestIDMiddleware)
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/fulfillment", s.handleFulfillment).Methods("POST")
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	metrics := promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})
	router.Handle("/varz", metrics).Methods("GET")
	router.Handle("/metrics", metrics).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/status", s.handleStatus).Methods("GET")
	apiRouter.HandleFunc("/history", s.handleHistory).Methods("GET")
	apiRouter.HandleFunc("/cec/devices", s.handleCECDevices).Methods("GET")
	if s.opts.Stream != nil {
		apiRouter.Handle("/cec/stream", s.opts.Stream).Methods("GET")
	}

	return router
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.opts.Address,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().
		Str("address", s.opts.Address).
		Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Middleware
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", w.Header().Get(RequestIDHeader)).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

// Response helpers
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleFulfillment(w http.ResponseWriter, r *http.Request) {
	if s.opts.Fulfillment == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Fulfillment is not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	req, err := fulfillment.Parse(body)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rejected fulfillment request")
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, s.opts.Fulfillment.Handle(r.Context(), req))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	backend := device.Describe(nil)
	if s.opts.Status != nil {
		backend = s.opts.Status.Status()
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"service":    "cecvol",
		"backend":    backend,
		"started_at": s.started.UTC().Format(time.RFC3339),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.sendError(w, http.StatusNotFound, "Command journal is disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			s.sendError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := s.opts.History.Recent(limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read journal")
		s.sendError(w, http.StatusInternalServerError, "Failed to read journal")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleCECDevices(w http.ResponseWriter, r *http.Request) {
	devices := []cec.Observation{}
	if s.opts.Devices != nil {
		devices = s.opts.Devices.Observations()
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
	})
}
