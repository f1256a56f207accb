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

package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cecvol/internal/device"
	"cecvol/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyStore interface {
	Load(id string) ([]byte, bool, error)
	Save(id string, key []byte) error
	Delete(id string) error
}

func exerciseKeyStore(t *testing.T, s keyStore) {
	t.Helper()

	_, ok, err := s.Load("tv|")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save("tv|", []byte{1, 2, 3, 4}))
	require.NoError(t, s.Save("other|kitchen", []byte{9}))

	key, ok, err := s.Load("tv|")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, key)

	require.NoError(t, s.Save("tv|", []byte{5, 6}))
	key, _, err = s.Load("tv|")
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6}, key)

	require.NoError(t, s.Delete("tv|"))
	_, ok, err = s.Load("tv|")
	require.NoError(t, err)
	assert.False(t, ok)

	key, ok, err = s.Load("other|kitchen")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{9}, key)
}

func TestFileKeyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yml")
	s := store.NewFileKeyStore(path)
	exerciseKeyStore(t, s)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	t.Run("survives reopen", func(t *testing.T) {
		reopened := store.NewFileKeyStore(path)
		key, ok, err := reopened.Load("other|kitchen")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte{9}, key)
	})

	t.Run("corrupt file", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yml")
		require.NoError(t, os.WriteFile(bad, []byte("sessions: [nope"), 0600))
		_, _, err := store.NewFileKeyStore(bad).Load("tv|")
		assert.Error(t, err)
	})
}

func TestDatabase(t *testing.T) {
	db, err := store.NewDatabase(filepath.Join(t.TempDir(), "cecvol.db"))
	require.NoError(t, err)
	defer db.Close()

	t.Run("session keys", func(t *testing.T) {
		exerciseKeyStore(t, db)
	})

	t.Run("journal", func(t *testing.T) {
		base := time.Now().Add(-time.Minute)
		db.Observe(device.Result{
			Command: "PowerOff", Kind: device.KindPowerOff, Backend: "lgip",
			Success: true, Duration: 40 * time.Millisecond, Timestamp: base,
		})
		db.Observe(device.Result{
			Command: "SelectInput(2)", Kind: device.KindSelectInput, Backend: "cec",
			ErrorKind: device.Unsupported, Error: "input routing disabled", Timestamp: base.Add(time.Second),
		})

		entries, err := db.Recent(10)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, "SelectInput(2)", entries[0].Command)
		assert.Equal(t, "failed", entries[0].Status)
		assert.Equal(t, "unsupported", entries[0].ErrorKind)
		assert.NotEmpty(t, entries[0].ID)

		assert.Equal(t, "PowerOff", entries[1].Command)
		assert.Equal(t, "success", entries[1].Status)
		assert.Equal(t, int64(40), entries[1].DurationMS)

		limited, err := db.Recent(1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}
