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

package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"cecvol/internal/device"
	"cecvol/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// JournalEntry is one row of the command journal
type JournalEntry struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Kind       string    `json:"kind"`
	Backend    string    `json:"backend"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Database handles SQLite operations for keys and the journal
type Database struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewDatabase opens (or creates) the database at dbPath
func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	database := &Database{db: db, logger: logger.New()}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS session_keys (
			id TEXT PRIMARY KEY,
			key TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS command_journal (
			id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			kind TEXT NOT NULL,
			backend TEXT NOT NULL,
			status TEXT NOT NULL,
			error_kind TEXT,
			error TEXT,
			duration_ms INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_command_journal_created_at ON command_journal(created_at)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Load returns the session key stored under id
func (d *Database) Load(id string) ([]byte, bool, error) {
	var encoded string
	err := d.db.QueryRow(`SELECT key FROM session_keys WHERE id = ?`, id).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session key: %w", err)
	}
	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt session key for %s: %w", id, err)
	}
	return key, true, nil
}

// Save stores key under id, replacing any previous key
func (d *Database) Save(id string, key []byte) error {
	query := `INSERT INTO session_keys (id, key, created_at) VALUES (?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET key = excluded.key, created_at = excluded.created_at`
	if _, err := d.db.Exec(query, id, hex.EncodeToString(key), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save session key: %w", err)
	}
	return nil
}

// Delete removes the session key stored under id
func (d *Database) Delete(id string) error {
	if _, err := d.db.Exec(`DELETE FROM session_keys WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session key: %w", err)
	}
	return nil
}

// Record appends a dispatch result to the journal
func (d *Database) Record(r device.Result) error {
	id := r.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := "success"
	if !r.Success {
		status = "failed"
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	query := `INSERT INTO command_journal
			  (id, command, kind, backend, status, error_kind, error, duration_ms, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := d.db.Exec(query, id, r.Command, string(r.Kind), r.Backend, status,
		string(r.ErrorKind), r.Error, r.Duration.Milliseconds(), ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// Observe implements device.Observer. Failures are logged, never returned.
func (d *Database) Observe(r device.Result) {
	if err := d.Record(r); err != nil {
		d.logger.Error().Err(err).Str("command", r.Command).Msg("Failed to journal command")
	}
}

// Recent returns up to limit journal entries, newest first
func (d *Database) Recent(limit int) ([]*JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, command, kind, backend, status, COALESCE(error_kind, ''), COALESCE(error, ''),
			  duration_ms, created_at FROM command_journal ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := make([]*JournalEntry, 0)
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Command, &e.Kind, &e.Backend, &e.Status,
			&e.ErrorKind, &e.Error, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
