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

package lgip_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"cecvol/internal/lgcrypto"
	"cecvol/internal/lgip"
	"cecvol/internal/lgip/lgiptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pairingCode = "1234"

type memKeys struct {
	mutex sync.Mutex
	keys  map[string][]byte
	saves int
}

func newMemKeys() *memKeys {
	return &memKeys{keys: map[string][]byte{}}
}

func (m *memKeys) Load(id string) ([]byte, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	k, ok := m.keys[id]
	return k, ok, nil
}

func (m *memKeys) Save(id string, key []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.keys[id] = key
	m.saves++
	return nil
}

type harness struct {
	tv     *lgiptest.SimulatedTV
	keys   *memKeys
	client *lgip.Client
	sleeps []time.Duration
	codes  int
}

func newHarness(t *testing.T, framing lgcrypto.Framing, configure ...func(*lgip.Options)) *harness {
	t.Helper()
	tv, err := lgiptest.NewSimulatedTV(pairingCode, "", framing)
	require.NoError(t, err)
	t.Cleanup(func() { tv.Close() })

	h := &harness{tv: tv, keys: newMemKeys()}
	opts := lgip.Options{
		Host:        tv.Host(),
		Port:        tv.Port(),
		Timeout:     300 * time.Millisecond,
		DialTimeout: time.Second,
		Framing:     framing,
		KeyStore:    h.keys,
		PairingCode: func() (string, error) {
			h.codes++
			return pairingCode, nil
		},
		Sleep: func(d time.Duration) { h.sleeps = append(h.sleeps, d) },
	}
	for _, c := range configure {
		c(&opts)
	}
	h.client = lgip.NewClient(opts)
	t.Cleanup(func() { h.client.Close() })
	return h
}

func (h *harness) keyID() string {
	return h.tv.Host() + "|"
}

func TestColdStartPairing(t *testing.T) {
	h := newHarness(t, lgcrypto.FramingRaw)

	assert.Equal(t, lgip.StateDisconnected, h.client.State())
	resp, err := h.client.Command("INPUT_SELECT hdmi2")
	require.NoError(t, err)
	assert.Equal(t, "OK", resp)

	assert.Equal(t, lgip.StateReady, h.client.State())
	assert.Equal(t, lgip.Paired, h.client.PairingState())
	assert.Equal(t, 1, h.codes)
	assert.Equal(t, 1, h.tv.Accepts())
	assert.Equal(t, []string{"CURRENT_VOL", "INPUT_SELECT hdmi2"}, h.tv.Commands())

	key, ok, _ := h.keys.Load(h.keyID())
	require.True(t, ok, "session key persisted after pairing")
	assert.Equal(t, h.tv.Key(), key)
	assert.False(t, h.client.LastActivity().IsZero())
}

func TestCachedKey(t *testing.T) {
	t.Run("valid key skips pairing", func(t *testing.T) {
		h := newHarness(t, lgcrypto.FramingRaw)
		require.NoError(t, h.keys.Save(h.keyID(), h.tv.Key()))

		require.NoError(t, h.client.Connect())
		assert.Equal(t, 0, h.codes)
		assert.Equal(t, 1, h.tv.Accepts())
		assert.Equal(t, []string{"CURRENT_VOL"}, h.tv.Commands())
	})

	t.Run("stale key falls back to pairing", func(t *testing.T) {
		h := newHarness(t, lgcrypto.FramingRaw)
		stale := lgcrypto.DeriveSessionKey("9999", "", lgcrypto.DefaultKeyParams())
		require.NoError(t, h.keys.Save(h.keyID(), stale))

		require.NoError(t, h.client.Connect())
		assert.Equal(t, 1, h.codes)
		assert.Equal(t, 2, h.tv.Accepts())

		key, _, _ := h.keys.Load(h.keyID())
		assert.Equal(t, h.tv.Key(), key)
	})

	t.Run("stale key during a command", func(t *testing.T) {
		h := newHarness(t, lgcrypto.FramingRaw)
		stale := lgcrypto.DeriveSessionKey("9999", "", lgcrypto.DefaultKeyParams())
		require.NoError(t, h.keys.Save(h.keyID(), stale))

		resp, err := h.client.Command("INPUT_SELECT hdmi2")
		require.NoError(t, err)
		assert.Equal(t, "OK", resp)
		assert.Equal(t, 1, h.codes)
		assert.Equal(t, 2, h.tv.Accepts())
		// the key check under the stale key never decrypts, so only the
		// paired key check and the command are seen
		assert.Equal(t, []string{"CURRENT_VOL", "INPUT_SELECT hdmi2"}, h.tv.Commands())
		assert.Equal(t, lgip.Paired, h.client.PairingState())

		key, _, _ := h.keys.Load(h.keyID())
		assert.Equal(t, h.tv.Key(), key)
	})
}

func TestPairingWithoutCode(t *testing.T) {
	h := newHarness(t, lgcrypto.FramingRaw, func(o *lgip.Options) {
		o.PairingCode = lgip.StaticCode("")
	})

	err := h.client.Connect()
	require.Error(t, err)
	assert.Equal(t, lgip.ErrRejected, lgip.KindOf(err))
	assert.Equal(t, lgip.StateDisconnected, h.client.State())
	assert.Equal(t, 0, h.keys.saves)
}

func TestUnreachableTelevision(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	dials := 0
	client := lgip.NewClient(lgip.Options{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		PairingCode: lgip.StaticCode(pairingCode),
		Dial: func(network, address string, timeout time.Duration) (net.Conn, error) {
			dials++
			return net.DialTimeout(network, address, timeout)
		},
		Sleep: func(time.Duration) { t.Fatal("no backoff expected when the first connect fails") },
	})

	_, err = client.Command("POWER off")
	require.Error(t, err)
	assert.Equal(t, lgip.ErrTransport, lgip.KindOf(err))
	assert.Equal(t, 1, dials)
	assert.Equal(t, lgip.StateDisconnected, client.State())
}

func TestReconnect(t *testing.T) {
	t.Run("idle socket closed by television", func(t *testing.T) {
		h := newHarness(t, lgcrypto.FramingRaw)
		require.NoError(t, h.client.Connect())

		h.tv.DropConnections()
		_, err := h.client.Command("VOLUME_MUTE on")
		require.NoError(t, err)

		assert.Equal(t, 2, h.tv.Accepts())
		assert.Equal(t, []time.Duration{250 * time.Millisecond}, h.sleeps)
		assert.Equal(t, []string{"VOLUME_MUTE on"}, h.tv.CommandsExcept("CURRENT_VOL"))
	})

	t.Run("dropped mid exchange is resent once", func(t *testing.T) {
		h := newHarness(t, lgcrypto.FramingRaw)
		require.NoError(t, h.client.Connect())

		h.tv.Inject(lgiptest.FaultDrop)
		_, err := h.client.Command("POWER off")
		require.NoError(t, err)

		assert.Equal(t, 2, h.tv.Accepts())
		assert.Equal(t, []string{"POWER off", "POWER off"}, h.tv.CommandsExcept("CURRENT_VOL"))
		assert.Equal(t, 1, h.codes, "cached key reused on reconnect")
	})

	t.Run("timeout", func(t *testing.T) {
		h := newHarness(t, lgcrypto.FramingRaw)
		require.NoError(t, h.client.Connect())

		h.tv.Inject(lgiptest.FaultStall)
		_, err := h.client.Command("KEY_ACTION volumeup")
		require.NoError(t, err)
		assert.Len(t, h.sleeps, 1)
		assert.Equal(t, 2, h.tv.Accepts())
	})

	t.Run("second failure is surfaced", func(t *testing.T) {
		h := newHarness(t, lgcrypto.FramingRaw)
		require.NoError(t, h.client.Connect())

		h.tv.Inject(lgiptest.FaultDrop, lgiptest.FaultNone, lgiptest.FaultDrop)
		_, err := h.client.Command("POWER off")
		require.Error(t, err)
		assert.Equal(t, lgip.ErrTransport, lgip.KindOf(err))
		assert.Equal(t, 2, h.tv.Accepts())
		assert.Equal(t, lgip.StateDisconnected, h.client.State())
	})

	t.Run("backoff grows and resets", func(t *testing.T) {
		h := newHarness(t, lgcrypto.FramingRaw, func(o *lgip.Options) {
			o.Backoff = lgip.Backoff{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
		})
		require.NoError(t, h.client.Connect())

		for i := 0; i < 3; i++ {
			h.tv.Inject(lgiptest.FaultDrop, lgiptest.FaultNone, lgiptest.FaultDrop)
			_, err := h.client.Command("POWER off")
			require.Error(t, err)
			require.NoError(t, h.client.Connect())
		}
		_, err := h.client.Command("POWER off")
		require.NoError(t, err)

		h.tv.Inject(lgiptest.FaultDrop)
		_, err = h.client.Command("POWER off")
		require.NoError(t, err)

		assert.Equal(t, []time.Duration{
			100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond,
			100 * time.Millisecond,
		}, h.sleeps)
	})
}

func TestRejectedIsNotRetried(t *testing.T) {
	h := newHarness(t, lgcrypto.FramingRaw)
	require.NoError(t, h.client.Connect())

	h.tv.Inject(lgiptest.FaultReject)
	_, err := h.client.Command("POWER off")
	require.Error(t, err)

	var perr *lgip.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, lgip.ErrRejected, perr.Kind)
	assert.Equal(t, "NG", perr.Response)

	assert.Equal(t, 1, h.tv.Accepts())
	assert.Empty(t, h.sleeps)
	assert.Equal(t, lgip.StateReady, h.client.State())
	assert.Equal(t, []string{"POWER off"}, h.tv.CommandsExcept("CURRENT_VOL"))
}

func TestDesynchronizedFrame(t *testing.T) {
	h := newHarness(t, lgcrypto.FramingRaw)
	require.NoError(t, h.client.Connect())

	h.tv.Inject(lgiptest.FaultTruncate)
	_, err := h.client.Command("VOLUME_MUTE off")
	require.Error(t, err)
	assert.Equal(t, lgip.ErrDecrypt, lgip.KindOf(err))
	assert.ErrorIs(t, err, lgcrypto.ErrTruncated)
	assert.Equal(t, lgip.StateDisconnected, h.client.State())
	assert.Empty(t, h.sleeps, "decrypt errors are not retried")

	_, err = h.client.Command("VOLUME_MUTE off")
	require.NoError(t, err)
	assert.Equal(t, 2, h.tv.Accepts())
	assert.Equal(t, lgip.StateReady, h.client.State())
}

func TestBase64Framing(t *testing.T) {
	h := newHarness(t, lgcrypto.FramingBase64)

	resp, err := h.client.Command("CURRENT_VOL")
	require.NoError(t, err)
	assert.Equal(t, "VOL:11", resp)
	assert.Equal(t, 1, h.tv.Accepts())
}

func TestRepair(t *testing.T) {
	h := newHarness(t, lgcrypto.FramingRaw)
	require.NoError(t, h.client.Connect())
	require.NoError(t, h.client.Pair())

	assert.Equal(t, 2, h.codes)
	assert.Equal(t, 2, h.keys.saves)
	assert.Equal(t, lgip.StateReady, h.client.State())
}

func TestClientIDSalt(t *testing.T) {
	tv, err := lgiptest.NewSimulatedTV(pairingCode, "lounge", lgcrypto.FramingRaw)
	require.NoError(t, err)
	defer tv.Close()

	keys := newMemKeys()
	client := lgip.NewClient(lgip.Options{
		Host:        tv.Host(),
		Port:        tv.Port(),
		ClientID:    "lounge",
		KeyStore:    keys,
		PairingCode: lgip.StaticCode(pairingCode),
	})
	defer client.Close()

	require.NoError(t, client.Connect())
	key, ok, _ := keys.Load(tv.Host() + "|lounge")
	require.True(t, ok)
	assert.Equal(t, tv.Key(), key)
}
