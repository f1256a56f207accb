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
	"fmt"

	"cecvol/internal/cec"
	"cecvol/internal/config"
	"cecvol/internal/lgcrypto"
	"cecvol/internal/lgip"
	"cecvol/internal/store"
	"cecvol/internal/wol"
)

// OpenDatabase opens the SQLite database when either the journal or the
// sqlite key backend needs it. It returns nil when neither does.
func OpenDatabase(cfg *config.Config) (*store.Database, error) {
	if !cfg.Database.Enabled && cfg.Keys.Backend != "sqlite" {
		return nil, nil
	}
	db, err := store.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	return db, nil
}

// NewKeyStore selects the session key store. db is only used for the
// sqlite backend and must be non-nil in that case.
func NewKeyStore(cfg *config.Config, db *store.Database) (lgip.KeyStore, error) {
	switch cfg.Keys.Backend {
	case "sqlite":
		if db == nil {
			return nil, fmt.Errorf("keys.backend sqlite needs an open database")
		}
		return db, nil
	default:
		return store.NewFileKeyStore(cfg.Keys.File), nil
	}
}

// NewLGClient builds the LG-IP protocol client from cfg.LG
func NewLGClient(cfg *config.Config, keys lgip.KeyStore) (*lgip.Client, error) {
	framing, err := lgcrypto.ParseFraming(cfg.LG.Framing)
	if err != nil {
		return nil, err
	}

	return lgip.NewClient(lgip.Options{
		Host:            cfg.LG.Host,
		Port:            cfg.LG.Port,
		ClientID:        cfg.LG.ClientID,
		Timeout:         cfg.LG.GetTimeout(),
		DialTimeout:     cfg.LG.GetDialTimeout(),
		KeyCheckCommand: cfg.LG.KeyCheckCommand,
		Framing:         framing,
		KeyParams: lgcrypto.KeyParams{
			Salt:       cfg.LG.KDF.GetSalt(),
			Iterations: cfg.LG.KDF.Iterations,
			KeyLength:  cfg.LG.KDF.KeyLength,
		},
		Backoff: lgip.Backoff{
			InitialDelay: cfg.LG.Retry.GetInitialDelay(),
			MaxDelay:     cfg.LG.Retry.GetMaxDelay(),
			Multiplier:   cfg.LG.Retry.Multiplier,
		},
		KeyStore:    keys,
		PairingCode: lgip.StaticCode(cfg.LG.Keycode),
	}), nil
}

// NewLGBackend builds the LG-IP backend. PowerOn is available when
// lg.mac_address is set.
func NewLGBackend(cfg *config.Config, keys lgip.KeyStore) (*lgip.Backend, error) {
	client, err := NewLGClient(cfg, keys)
	if err != nil {
		return nil, err
	}
	if cfg.LG.MACAddress == "" {
		return lgip.NewBackend(client, nil), nil
	}
	sender, err := wol.NewSender(cfg.LG.MACAddress, cfg.Wake.Broadcast)
	if err != nil {
		return nil, err
	}
	return lgip.NewBackend(client, sender), nil
}

// NewWaker returns the Wake-on-LAN sender for the companion machine, or nil
// when wake.mac_address is unset.
func NewWaker(cfg *config.Config) (*wol.Sender, error) {
	if cfg.Wake.MACAddress == "" {
		return nil, nil
	}
	return wol.NewSender(cfg.Wake.MACAddress, cfg.Wake.Broadcast)
}

// OpenCECDriver opens the adapter named by cec.device, or a logging fake
// when cec.fake is set, and starts the driver on it.
func OpenCECDriver(cfg *config.Config) (*cec.Driver, error) {
	var hw cec.Hardware
	if cfg.CEC.Fake {
		hw = cec.NewLogOnly()
	} else {
		adapter, err := cec.OpenAdapter(cfg.CEC.Device)
		if err != nil {
			return nil, err
		}
		hw = adapter
	}

	return cec.Open(hw, cec.Options{
		Config: cec.AdapterConfig{
			OSDName:    cfg.CEC.OSDName,
			VendorID:   cfg.CEC.VendorID,
			DeviceType: cec.DeviceType(cfg.CEC.DeviceType),
		},
		BusyRetries: cfg.CEC.BusyRetries,
		BusyDelay:   cfg.CEC.GetBusyDelay(),
	})
}

// NewCECBackend wraps driver with the configured key routing
func NewCECBackend(cfg *config.Config, driver *cec.Driver) *cec.Backend {
	return cec.NewBackend(driver, cec.BackendOptions{
		VolumeTarget: cec.LogicalAddress(cfg.CEC.VolumeTarget),
		InputRouting: cfg.CEC.InputRoutingEnabled(),
	})
}
