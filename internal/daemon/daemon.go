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

package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cecvol/internal/api"
	"cecvol/internal/cec"
	"cecvol/internal/config"
	"cecvol/internal/device"
	"cecvol/internal/dispatcher"
	"cecvol/internal/events"
	"cecvol/internal/fulfillment"
	"cecvol/internal/logger"
	"cecvol/internal/store"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Daemon owns every long-lived component of the service
type Daemon struct {
	config     *config.Config
	db         *store.Database
	driver     *cec.Driver
	dispatcher *dispatcher.Dispatcher
	bus        *events.Bus
	mqtt       mqtt.Client
	unsubMQTT  func()
	server     *api.Server
	registry   *prometheus.Registry
	logger     zerolog.Logger

	running bool
	mutex   sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds the daemon from cfg. Nothing is served until Start.
func New(cfg *config.Config) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		config:   cfg,
		bus:      events.NewBus(),
		registry: prometheus.NewRegistry(),
		logger:   logger.Component("daemon"),
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := d.build(); err != nil {
		d.release()
		cancel()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) build() error {
	cfg := d.config

	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := dispatcher.NewPrometheusMetrics(d.registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	db, err := OpenDatabase(cfg)
	if err != nil {
		return err
	}
	d.db = db

	backend, err := d.buildBackend()
	if err != nil {
		return err
	}

	observers := []device.Observer{d.bus}
	if cfg.Database.Enabled {
		observers = append(observers, d.db)
	}

	opts := dispatcher.Options{
		Backend:   backend,
		Metrics:   metrics,
		Observers: observers,
		Workers:   cfg.Dispatcher.Workers,
		QueueSize: cfg.Dispatcher.QueueSize,
	}
	waker, err := NewWaker(cfg)
	if err != nil {
		return err
	}
	if waker != nil {
		opts.Waker = waker
	}
	d.dispatcher = dispatcher.New(opts)

	if cfg.MQTT.Enabled {
		client, err := events.ConnectMQTT(events.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			return err
		}
		d.mqtt = client
		ch, unsubscribe := d.bus.Subscribe(64)
		d.unsubMQTT = unsubscribe
		go events.NewRelay(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS).Run(ch)
	}

	serverOpts := api.Options{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		Status:       d.dispatcher,
		Fulfillment: fulfillment.NewHandler(d.dispatcher, fulfillment.Options{
			DeviceID:   cfg.Server.DeviceID,
			DeviceName: cfg.Server.DeviceName,
		}),
		Stream:   events.NewStream(d.bus, events.TypeCEC),
		Gatherer: d.registry,
	}
	if cfg.Database.Enabled {
		serverOpts.History = d.db
	}
	if d.driver != nil {
		serverOpts.Devices = d.driver
	}
	d.server = api.NewServer(serverOpts)

	return nil
}

// buildBackend returns nil for the "none" backend
func (d *Daemon) buildBackend() (device.Backend, error) {
	cfg := d.config

	switch cfg.Backend {
	case config.BackendLGIP:
		keys, err := NewKeyStore(cfg, d.db)
		if err != nil {
			return nil, err
		}
		backend, err := NewLGBackend(cfg, keys)
		if err != nil {
			return nil, err
		}
		d.logger.Info().
			Str("address", backend.Client().Address()).
			Str("keys", cfg.Keys.Backend).
			Msg("Using LG network control backend")
		return backend, nil

	case config.BackendCEC:
		driver, err := OpenCECDriver(cfg)
		if err != nil {
			return nil, err
		}
		d.driver = driver
		go d.bus.Forward(driver.Frames())

		if cfg.CEC.PollOnStart {
			d.pollBus()
		}
		d.logger.Info().
			Str("device", cfg.CEC.Device).
			Bool("fake", cfg.CEC.Fake).
			Str("logical_address", driver.Handle().LogicalAddress.String()).
			Msg("Using CEC backend")
		return NewCECBackend(cfg, driver), nil

	default:
		d.logger.Warn().Msg("No backend configured, commands will be reported unreachable")
		return nil, nil
	}
}

func (d *Daemon) pollBus() {
	present, err := d.driver.PollAll()
	if err != nil {
		d.logger.Warn().Err(err).Msg("Bus poll failed")
		return
	}
	for addr, ok := range present {
		if ok {
			d.logger.Info().Str("address", addr.String()).Msg("Device present on bus")
		}
	}
}

// Handler exposes the HTTP handler without listening
func (d *Daemon) Handler() http.Handler {
	return d.server.Handler()
}

// Dispatcher returns the command dispatcher
func (d *Daemon) Dispatcher() *dispatcher.Dispatcher {
	return d.dispatcher
}

// Start serves HTTP and blocks until a shutdown signal, Stop, or a server error
func (d *Daemon) Start() error {
	d.mutex.Lock()
	if d.running {
		d.mutex.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.mutex.Unlock()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- d.server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	d.logger.Info().
		Str("address", d.config.Server.Address).
		Str("backend", d.dispatcher.Status().Name).
		Bool("journal", d.config.Database.Enabled).
		Bool("mqtt", d.mqtt != nil).
		Msg("cecvol daemon started")

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		return d.Stop()
	case <-d.ctx.Done():
		return d.Stop()
	case err := <-serverErr:
		d.Stop()
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	}
}

// Stop shuts down the server, drains the dispatcher and releases hardware.
// It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.ctx.Err() != nil && !d.running {
		return nil
	}
	d.running = false
	d.cancel()

	d.logger.Info().Msg("Stopping daemon")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Error stopping API server")
	}

	d.release()
	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// release closes whatever build managed to create
func (d *Daemon) release() {
	if d.dispatcher != nil {
		if err := d.dispatcher.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Error closing backend")
		}
	} else if d.driver != nil {
		d.driver.Close()
	}
	if d.unsubMQTT != nil {
		d.unsubMQTT()
	}
	if d.mqtt != nil {
		d.mqtt.Publish(d.config.MQTT.TopicPrefix+"/status", 0, true, "offline").WaitTimeout(time.Second)
		d.mqtt.Disconnect(250)
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Error closing database")
		}
	}
}
