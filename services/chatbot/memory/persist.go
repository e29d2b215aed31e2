// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// =============================================================================
// Optional BadgerDB Persistence
// =============================================================================

// PersistentStore keeps session transcripts in an embedded BadgerDB so a
// service restart does not drop active conversations.
//
// # Description
//
// Off by default; enabled by setting MEMORY_PERSIST_DIR. Each session is one
// key ("session/<id>") holding the JSON-encoded turn slice. Writes happen
// after each committed turn, which is cheap at chat cadence.
//
// # Limitations
//
//   - Single-process only; Badger holds an exclusive directory lock.
//   - Transcripts are stored in plaintext.
type PersistentStore struct {
	db *badger.DB
}

// OpenPersistentStore opens (or creates) the Badger database at dir.
func OpenPersistentStore(dir string) (*PersistentStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Badger's own logger is too chatty for this workload
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store at %s: %w", dir, err)
	}
	slog.Info("Session persistence enabled", "dir", dir)
	return &PersistentStore{db: db}, nil
}

func sessionKey(id string) []byte {
	return []byte("session/" + id)
}

// Save writes the full transcript for a session.
func (p *PersistentStore) Save(id string, turns []Turn) error {
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(id), payload)
	})
}

// Load returns the persisted transcript for a session, or nil if none exists.
func (p *PersistentStore) Load(id string) ([]Turn, error) {
	var turns []Turn
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &turns)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return turns, nil
}

// Delete removes the persisted transcript for a session.
func (p *PersistentStore) Delete(id string) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Close flushes and closes the database. Call during graceful shutdown.
func (p *PersistentStore) Close() error {
	return p.db.Close()
}
