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
	"encoding/json"
	"fmt"
	"time"

	"cecvol/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// MQTTClient is the part of mqtt.Client the relay uses
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// MQTTOptions configures the broker connection
type MQTTOptions struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// ConnectMQTT dials the broker; availability is announced on <prefix>/status.
func ConnectMQTT(opts MQTTOptions) (mqtt.Client, error) {
	log := logger.Component("mqtt")
	availTopic := fmt.Sprintf("%s/status", opts.TopicPrefix)

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetWill(availTopic, "offline", 0, true)
	clientOpts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info().Str("broker", opts.Broker).Msg("Connected to MQTT broker")
		c.Publish(availTopic, 0, true, "online")
	})
	clientOpts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connection failed: %w", token.Error())
	}
	return client, nil
}

// Relay republishes bus events to MQTT: command results on <prefix>/command,
// CEC frames on <prefix>/cec.
type Relay struct {
	client MQTTClient
	prefix string
	qos    byte
	logger zerolog.Logger
}

// NewRelay creates a relay publishing through client
func NewRelay(client MQTTClient, prefix string, qos byte) *Relay {
	return &Relay{client: client, prefix: prefix, qos: qos, logger: logger.Component("mqtt")}
}

// Topic returns the topic events of eventType are published on
func (r *Relay) Topic(eventType string) string {
	return fmt.Sprintf("%s/%s", r.prefix, eventType)
}

// Run publishes events until the channel closes
func (r *Relay) Run(events <-chan Event) {
	for e := range events {
		if err := r.Publish(e); err != nil {
			r.logger.Warn().Err(err).Str("type", e.Type).Msg("Failed to relay event")
		}
	}
}

// Publish sends one event
func (r *Relay) Publish(e Event) error {
	if !r.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	token := r.client.Publish(r.Topic(e.Type), r.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", r.Topic(e.Type))
	}
	return token.Error()
}
