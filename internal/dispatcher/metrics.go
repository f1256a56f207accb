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
	"cecvol/internal/device"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives dispatcher counters
type Metrics interface {
	CommandExecuted(kind device.Kind)
	CommandFailed(kind device.Kind, class device.ErrorKind)
	BackendConnected(connected bool)
}

type noopMetrics struct{}

func (noopMetrics) CommandExecuted(device.Kind) {}
func (noopMetrics) CommandFailed(device.Kind, device.ErrorKind) {}
func (noopMetrics) BackendConnected(bool) {}

// PrometheusMetrics exports dispatcher counters as prometheus collectors
type PrometheusMetrics struct {
	commands  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	connected prometheus.Gauge
}

// NewPrometheusMetrics creates the collectors and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cecvol_commands_total",
			Help: "Commands executed, by kind.",
		}, []string{"kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cecvol_command_errors_total",
			Help: "Failed commands, by kind and error class.",
		}, []string{"kind", "class"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cecvol_backend_connected",
			Help: "1 while the television backend holds a session.",
		}),
	}

	for _, c := range []prometheus.Collector{m.commands, m.errors, m.connected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// pre-create series so every kind shows up at zero
	for _, k := range device.AllKinds {
		m.commands.WithLabelValues(string(k))
	}

	return m, nil
}

func (m *PrometheusMetrics) CommandExecuted(kind device.Kind) {
	m.commands.WithLabelValues(string(kind)).Inc()
}

func (m *PrometheusMetrics) CommandFailed(kind device.Kind, class device.ErrorKind) {
	m.errors.WithLabelValues(string(kind), string(class)).Inc()
}

func (m *PrometheusMetrics) BackendConnected(connected bool) {
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
