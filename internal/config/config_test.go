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

package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"cecvol/internal/config"
	"cecvol/internal/lgcrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.NewDefault()
	require.NoError(t, c.Validate())

	assert.Equal(t, config.BackendCEC, c.Backend)
	assert.Equal(t, 9761, c.LG.Port)
	assert.Equal(t, "LGWebOSTV.local", c.LG.Host)
	assert.Equal(t, lgcrypto.DefaultKeyParams().Salt, c.LG.KDF.GetSalt())
	assert.Equal(t, 16384, c.LG.KDF.Iterations)
	assert.Equal(t, uint32(0x00e091), c.CEC.VendorID)
	assert.True(t, c.CEC.InputRoutingEnabled())
	assert.Equal(t, 3, c.CEC.BusyRetries)
	assert.Equal(t, 2*time.Second, c.LG.GetTimeout())
	assert.Equal(t, 250*time.Millisecond, c.LG.Retry.GetInitialDelay())
	assert.Equal(t, "255.255.255.255:9", c.Wake.Broadcast)
}

func TestParse(t *testing.T) {
	t.Run("expands environment", func(t *testing.T) {
		t.Setenv("CECVOL_TEST_KEYCODE", "0J8FOLOW")
		c, err := config.Parse([]byte(`
backend: lgip
lg:
  keycode: ${CECVOL_TEST_KEYCODE}
  mac_address: "aa:bb:cc:dd:ee:ff"
cec:
  input_routing: false
`))
		require.NoError(t, err)
		assert.Equal(t, config.BackendLGIP, c.Backend)
		assert.Equal(t, "0J8FOLOW", c.LG.Keycode)
		assert.False(t, c.CEC.InputRoutingEnabled())
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		cases := map[string]string{
			"backend":   "backend: bluetooth",
			"duration":  "lg:\n  timeout: soon",
			"framing":   "lg:\n  framing: hex",
			"salt":      "lg:\n  kdf:\n    salt: zz",
			"mac":       "wake:\n  mac_address: nope",
			"mqtt":      "mqtt:\n  enabled: true",
			"log level": "logging:\n  level: loud",
			"osd name":  "cec:\n  osd_name: fifteen_chars__",
		}
		for name, doc := range cases {
			_, err := config.Parse([]byte(doc))
			assert.Error(t, err, name)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := config.Parse([]byte("server: [unterminated"))
		assert.Error(t, err)
	})
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cecvol.yml")

	c := config.NewDefault()
	c.Backend = config.BackendNone
	c.Wake.MACAddress = "01:02:03:04:05:06"
	require.NoError(t, config.Save(c, path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
