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

package lgcrypto_test

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	"cecvol/internal/lgcrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestDeriveSessionKey(t *testing.T) {
	params := lgcrypto.DefaultKeyParams()

	t.Run("vendor keycode", func(t *testing.T) {
		key := lgcrypto.DeriveSessionKey("0J8FOLOW", "", params)
		assert.Equal(t, mustHex(t, "a47389da2c83d09a9c8d05a828e7f65c"), key)
	})

	t.Run("numeric pairing code", func(t *testing.T) {
		key := lgcrypto.DeriveSessionKey("1234", "", params)
		assert.Equal(t, mustHex(t, "d1031a63de5212ef849129fc836cd0a5"), key)
	})

	t.Run("deterministic per client id", func(t *testing.T) {
		a := lgcrypto.DeriveSessionKey("1234", "kitchen", params)
		b := lgcrypto.DeriveSessionKey("1234", "kitchen", params)
		c := lgcrypto.DeriveSessionKey("1234", "lounge", params)
		assert.Equal(t, a, b)
		assert.NotEqual(t, a, c)
		assert.NotEqual(t, lgcrypto.DeriveSessionKey("1234", "", params), a)
		assert.Len(t, a, 16)
	})
}

func TestEncryptWithIV(t *testing.T) {
	key := lgcrypto.DeriveSessionKey("0J8FOLOW", "", lgcrypto.DefaultKeyParams())
	iv := mustHex(t, "82f29e11c100d53f7b14fe1829c342f9")

	frame, err := lgcrypto.EncryptWithIV(key, iv, []byte("VOLUME_CONTROL 11\r"))
	require.NoError(t, err)

	want := mustHex(t, "5409f10bd39b4167c3981fb1712e1ca8"+
		"523d1571e87efbc444baccc0b6cab0eb"+
		"dc805341a118a4b38d7a4ef49417b70d")
	assert.Equal(t, want, frame)

	_, err = lgcrypto.EncryptWithIV(key, iv[:8], []byte("x"))
	assert.Error(t, err)
}

func TestDecrypt(t *testing.T) {
	key := lgcrypto.DeriveSessionKey("0J8FOLOW", "", lgcrypto.DefaultKeyParams())

	t.Run("television reply", func(t *testing.T) {
		frame := mustHex(t, "c0bb0547986f205deb6735ad074589d5fade82cd0d1150b0da7fc02eb7242426")
		plain, err := lgcrypto.Decrypt(key, frame)
		require.NoError(t, err)
		assert.Equal(t, "OK\n", string(plain))
	})

	t.Run("round trip", func(t *testing.T) {
		for _, msg := range []string{"", "\n", "A\nB", "OK\n", "POWER off\r", "POWER off\r\n", "exactly sixteen!", "KEY_ACTION volumeup\r"} {
			frame, err := lgcrypto.Encrypt(key, []byte(msg))
			require.NoError(t, err)
			assert.Zero(t, len(frame)%lgcrypto.BlockSize)

			plain, err := lgcrypto.Decrypt(key, frame)
			require.NoError(t, err)
			assert.Equal(t, msg, string(plain))
		}
	})

	t.Run("round trip every length", func(t *testing.T) {
		data := make([]byte, 2*lgcrypto.MaxFrameSize)
		for i := range data {
			data[i] = byte(i)
			if i%7 == 3 {
				data[i] = '\n'
			}
		}
		for n := 0; n <= len(data); n++ {
			frame, err := lgcrypto.Encrypt(key, data[:n])
			require.NoError(t, err)
			plain, err := lgcrypto.Decrypt(key, frame)
			require.NoError(t, err, "length %d", n)
			require.Equal(t, data[:n], plain, "length %d", n)
		}
	})

	t.Run("terminator does not excuse bad padding", func(t *testing.T) {
		iv := mustHex(t, "82f29e11c100d53f7b14fe1829c342f9")
		payload := []byte("OK\n\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00")

		block, err := aes.NewCipher(key)
		require.NoError(t, err)
		frame := make([]byte, 2*lgcrypto.BlockSize)
		block.Encrypt(frame[:lgcrypto.BlockSize], iv)
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(frame[lgcrypto.BlockSize:], payload)

		_, err = lgcrypto.Decrypt(key, frame)
		assert.ErrorIs(t, err, lgcrypto.ErrBadPadding)
	})

	t.Run("truncated frames", func(t *testing.T) {
		for _, n := range []int{0, 1, 15, 16, 17, 31, 33} {
			_, err := lgcrypto.Decrypt(key, make([]byte, n))
			assert.ErrorIs(t, err, lgcrypto.ErrTruncated, "length %d", n)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		frame, err := lgcrypto.Encrypt(key, []byte("VOLUME_MUTE on\r"))
		require.NoError(t, err)
		other := lgcrypto.DeriveSessionKey("9999", "", lgcrypto.DefaultKeyParams())
		plain, err := lgcrypto.Decrypt(other, frame)
		if err == nil {
			assert.NotEqual(t, "VOLUME_MUTE on\r", string(plain))
		} else {
			assert.ErrorIs(t, err, lgcrypto.ErrBadPadding)
		}
	})
}

func TestFraming(t *testing.T) {
	frame := bytes.Repeat([]byte{0xab}, 32)

	t.Run("raw", func(t *testing.T) {
		f, err := lgcrypto.ParseFraming("")
		require.NoError(t, err)
		assert.Equal(t, lgcrypto.FramingRaw, f)

		wire := f.Encode(frame)
		assert.Equal(t, frame, wire)
		got, err := f.ReadFrame(bufio.NewReader(bytes.NewReader(wire)))
		require.NoError(t, err)
		assert.Equal(t, frame, got)
	})

	t.Run("base64", func(t *testing.T) {
		f, err := lgcrypto.ParseFraming("base64")
		require.NoError(t, err)

		wire := f.Encode(frame)
		assert.Equal(t, byte('\n'), wire[len(wire)-1])
		got, err := f.ReadFrame(bufio.NewReader(bytes.NewReader(wire)))
		require.NoError(t, err)
		assert.Equal(t, frame, got)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := lgcrypto.ParseFraming("hex")
		assert.Error(t, err)
	})
}
