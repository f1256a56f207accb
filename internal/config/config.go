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

package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in the backend field
const (
	BackendLGIP = "lgip"
	BackendCEC  = "cec"
	BackendNone = "none"
)

// Config represents the complete service configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    string           `yaml:"backend"`
	LG         LGConfig         `yaml:"lg"`
	CEC        CECConfig        `yaml:"cec"`
	Wake       WakeConfig       `yaml:"wake"`
	Keys       KeysConfig       `yaml:"keys"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Logging    LoggingConfig    `yaml:"logging"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string `yaml:"address"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	DeviceID     string `yaml:"device_id"`
	DeviceName   string `yaml:"device_name"`
}

// LGConfig contains LG network control settings
type LGConfig struct {
	Host            string      `yaml:"host"`
	Port            int         `yaml:"port"`
	Keycode         string      `yaml:"keycode"`
	ClientID        string      `yaml:"client_id"`
	MACAddress      string      `yaml:"mac_address"`
	Timeout         string      `yaml:"timeout"`
	DialTimeout     string      `yaml:"dial_timeout"`
	KeyCheckCommand string      `yaml:"key_check_command"`
	Framing         string      `yaml:"framing"`
	KDF             KDFConfig   `yaml:"kdf"`
	Retry           RetryConfig `yaml:"retry"`
}

// KDFConfig holds key derivation parameters. Salt is hex encoded.
type KDFConfig struct {
	Salt       string `yaml:"salt"`
	Iterations int    `yaml:"iterations"`
	KeyLength  int    `yaml:"key_length"`
}

// RetryConfig holds reconnect backoff settings
type RetryConfig struct {
	InitialDelay string  `yaml:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
}

// CECConfig contains CEC adapter settings
type CECConfig struct {
	Device       string `yaml:"device"`
	Fake         bool   `yaml:"fake"`
	OSDName      string `yaml:"osd_name"`
	VendorID     uint32 `yaml:"vendor_id"`
	DeviceType   string `yaml:"device_type"`
	VolumeTarget int    `yaml:"volume_target"`
	InputRouting *bool  `yaml:"input_routing"`
	BusyRetries  int    `yaml:"busy_retries"`
	BusyDelay    string `yaml:"busy_delay"`
	PollOnStart  bool   `yaml:"poll_on_start"`
}

// WakeConfig contains Wake-on-LAN settings for the companion machine
type WakeConfig struct {
	MACAddress string `yaml:"mac_address"`
	Broadcast  string `yaml:"broadcast"`
}

// KeysConfig selects where LG session keys are persisted
type KeysConfig struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	File    string `yaml:"file"`
}

// DatabaseConfig contains the journal database settings
type DatabaseConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// MQTTConfig contains event relay settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DispatcherConfig sizes the dispatcher worker pool
type DispatcherConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Load reads, expands and validates a YAML configuration file
func Load(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes. ${VAR} references are expanded from the environment.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Save writes configuration to a YAML file
func Save(config *Config, filepath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewDefault creates a configuration with every default filled in
func NewDefault() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "0.0.0.0:8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Server.DeviceID == "" {
		c.Server.DeviceID = "1"
	}
	if c.Server.DeviceName == "" {
		c.Server.DeviceName = "cecvol"
	}

	if c.Backend == "" {
		c.Backend = BackendCEC
	}

	if c.LG.Host == "" {
		c.LG.Host = "LGWebOSTV.local"
	}
	if c.LG.Port == 0 {
		c.LG.Port = 9761
	}
	if c.LG.Timeout == "" {
		c.LG.Timeout = "2s"
	}
	if c.LG.DialTimeout == "" {
		c.LG.DialTimeout = "500ms"
	}
	if c.LG.KeyCheckCommand == "" {
		c.LG.KeyCheckCommand = "CURRENT_VOL"
	}
	if c.LG.Framing == "" {
		c.LG.Framing = "raw"
	}
	if c.LG.KDF.Salt == "" {
		c.LG.KDF.Salt = "6361b80e9bdca6638d0720f2cc568fb9"
	}
	if c.LG.KDF.Iterations == 0 {
		c.LG.KDF.Iterations = 1 << 14
	}
	if c.LG.KDF.KeyLength == 0 {
		c.LG.KDF.KeyLength = 16
	}
	if c.LG.Retry.InitialDelay == "" {
		c.LG.Retry.InitialDelay = "250ms"
	}
	if c.LG.Retry.MaxDelay == "" {
		c.LG.Retry.MaxDelay = "4s"
	}
	if c.LG.Retry.Multiplier == 0 {
		c.LG.Retry.Multiplier = 2.0
	}

	if c.CEC.Device == "" {
		c.CEC.Device = "/dev/cec0"
	}
	if c.CEC.OSDName == "" {
		c.CEC.OSDName = "cecvol"
	}
	if c.CEC.VendorID == 0 {
		c.CEC.VendorID = 0x00e091
	}
	if c.CEC.DeviceType == "" {
		c.CEC.DeviceType = "recording"
	}
	if c.CEC.InputRouting == nil {
		enabled := true
		c.CEC.InputRouting = &enabled
	}
	if c.CEC.BusyRetries == 0 {
		c.CEC.BusyRetries = 3
	}
	if c.CEC.BusyDelay == "" {
		c.CEC.BusyDelay = "50ms"
	}

	if c.Wake.Broadcast == "" {
		c.Wake.Broadcast = "255.255.255.255:9"
	}

	if c.Keys.Backend == "" {
		c.Keys.Backend = "file"
	}
	if c.Keys.File == "" {
		c.Keys.File = "cecvol_keys.yml"
	}

	if c.Database.Path == "" {
		c.Database.Path = "cecvol.db"
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "cecvol"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "cecvol"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = 2
	}
	if c.Dispatcher.QueueSize == 0 {
		c.Dispatcher.QueueSize = 16
	}
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	durations := map[string]string{
		"server.read_timeout":    c.Server.ReadTimeout,
		"server.write_timeout":   c.Server.WriteTimeout,
		"lg.timeout":             c.LG.Timeout,
		"lg.dial_timeout":        c.LG.DialTimeout,
		"lg.retry.initial_delay": c.LG.Retry.InitialDelay,
		"lg.retry.max_delay":     c.LG.Retry.MaxDelay,
		"cec.busy_delay":         c.CEC.BusyDelay,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s format: %w", name, err)
		}
	}

	switch c.Backend {
	case BackendLGIP, BackendCEC, BackendNone:
	default:
		return fmt.Errorf("backend must be one of %q, %q or %q", BackendLGIP, BackendCEC, BackendNone)
	}

	if c.LG.Port <= 0 || c.LG.Port > 65535 {
		return fmt.Errorf("lg.port out of range: %d", c.LG.Port)
	}
	if c.LG.Framing != "raw" && c.LG.Framing != "base64" {
		return fmt.Errorf("lg.framing must be 'raw' or 'base64'")
	}
	if _, err := hex.DecodeString(c.LG.KDF.Salt); err != nil {
		return fmt.Errorf("lg.kdf.salt must be hex: %w", err)
	}
	if c.LG.KDF.Iterations <= 0 || c.LG.KDF.KeyLength <= 0 {
		return fmt.Errorf("lg.kdf iterations and key_length must be positive")
	}
	switch c.LG.KDF.KeyLength {
	case 16, 24, 32:
	default:
		return fmt.Errorf("lg.kdf.key_length must be 16, 24 or 32")
	}
	if c.LG.Retry.Multiplier < 1 {
		return fmt.Errorf("lg.retry.multiplier must be at least 1")
	}
	if c.LG.MACAddress != "" {
		if _, err := net.ParseMAC(c.LG.MACAddress); err != nil {
			return fmt.Errorf("invalid lg.mac_address: %w", err)
		}
	}

	if c.CEC.DeviceType != "recording" && c.CEC.DeviceType != "playback" {
		return fmt.Errorf("cec.device_type must be 'recording' or 'playback'")
	}
	if c.CEC.VolumeTarget < 0 || c.CEC.VolumeTarget > 14 {
		return fmt.Errorf("cec.volume_target must be a logical address between 0 and 14")
	}
	if c.CEC.BusyRetries < 1 {
		return fmt.Errorf("cec.busy_retries must be at least 1")
	}
	if len(c.CEC.OSDName) > 14 {
		return fmt.Errorf("cec.osd_name must be at most 14 characters")
	}

	if c.Wake.MACAddress != "" {
		if _, err := net.ParseMAC(c.Wake.MACAddress); err != nil {
			return fmt.Errorf("invalid wake.mac_address: %w", err)
		}
	}

	if c.Keys.Backend != "file" && c.Keys.Backend != "sqlite" {
		return fmt.Errorf("keys.backend must be 'file' or 'sqlite'")
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, level := range validLevels {
		if c.Logging.Level == level {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("invalid logging level: %s (must be one of: %v)", c.Logging.Level, validLevels)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("logging format must be 'console' or 'json'")
	}

	if c.Dispatcher.Workers < 1 || c.Dispatcher.QueueSize < 1 {
		return fmt.Errorf("dispatcher workers and queue_size must be positive")
	}

	return nil
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// GetReadTimeout returns the HTTP read timeout
func (c *Config) GetReadTimeout() time.Duration { return duration(c.Server.ReadTimeout) }

// GetWriteTimeout returns the HTTP write timeout
func (c *Config) GetWriteTimeout() time.Duration { return duration(c.Server.WriteTimeout) }

// GetTimeout returns the per-command acknowledgement timeout
func (c LGConfig) GetTimeout() time.Duration { return duration(c.Timeout) }

// GetDialTimeout returns the TCP connect timeout
func (c LGConfig) GetDialTimeout() time.Duration { return duration(c.DialTimeout) }

// GetSalt returns the decoded KDF salt
func (c KDFConfig) GetSalt() []byte {
	salt, _ := hex.DecodeString(c.Salt)
	return salt
}

// GetInitialDelay returns the first reconnect delay
func (c RetryConfig) GetInitialDelay() time.Duration { return duration(c.InitialDelay) }

// GetMaxDelay returns the reconnect delay cap
func (c RetryConfig) GetMaxDelay() time.Duration { return duration(c.MaxDelay) }

// GetBusyDelay returns the wait between bus busy retries
func (c CECConfig) GetBusyDelay() time.Duration { return duration(c.BusyDelay) }

// InputRoutingEnabled reports whether SelectInput is allowed over CEC
func (c CECConfig) InputRoutingEnabled() bool {
	return c.InputRouting == nil || *c.InputRouting
}
