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

// Package store persists LG session keys and the command journal.
package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionKey is one persisted LG session key
type SessionKey struct {
	Key       string    `yaml:"key"`
	CreatedAt time.Time `yaml:"created_at"`
}

type keyFile struct {
	Sessions map[string]SessionKey `yaml:"sessions"`
}

// FileKeyStore keeps session keys in a YAML file readable only by the owner.
type FileKeyStore struct {
	path  string
	mutex sync.Mutex
}

// NewFileKeyStore returns a store backed by path. The file is created on first save.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Load returns the key stored under id.
func (s *FileKeyStore) Load(id string) ([]byte, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	kf, err := s.read()
	if err != nil {
		return nil, false, err
	}
	entry, ok := kf.Sessions[id]
	if !ok {
		return nil, false, nil
	}
	key, err := hex.DecodeString(entry.Key)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt session key for %s: %w", id, err)
	}
	return key, true, nil
}

// Save stores key under id. The file is replaced atomically.
func (s *FileKeyStore) Save(id string, key []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	kf, err := s.read()
	if err != nil {
		return err
	}
	kf.Sessions[id] = SessionKey{
		Key:       hex.EncodeToString(key),
		CreatedAt: time.Now().UTC(),
	}

	data, err := yaml.Marshal(kf)
	if err != nil {
		return fmt.Errorf("failed to marshal key file: %w", err)
	}
	return writeAtomic(s.path, data)
}

// Delete removes the key stored under id.
func (s *FileKeyStore) Delete(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	kf, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := kf.Sessions[id]; !ok {
		return nil
	}
	delete(kf.Sessions, id)

	data, err := yaml.Marshal(kf)
	if err != nil {
		return fmt.Errorf("failed to marshal key file: %w", err)
	}
	return writeAtomic(s.path, data)
}

func (s *FileKeyStore) read() (*keyFile, error) {
	kf := &keyFile{Sessions: map[string]SessionKey{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return kf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if err := yaml.Unmarshal(data, kf); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	if kf.Sessions == nil {
		kf.Sessions = map[string]SessionKey{}
	}
	return kf, nil
}

// writeAtomic writes data next to path and renames it into place
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp key file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict key file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close key file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace key file: %w", err)
	}
	return nil
}
