// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/metrics"
)

// Key prefixes for BadgerDB storage
const (
	stateKeyPrefix = "state:"
	credentialsKey = "credentials"
)

// ErrNoCredentials is returned when no credentials have been stored.
var ErrNoCredentials = errors.New("no stored credentials")

// BadgerStore persists state blobs and credentials.
type BadgerStore struct {
	db        *badger.DB
	encryptor *CredentialEncryptor
}

// Open opens (or creates) the database at path. inMemory ignores path.
func Open(path string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// SetEncryptor seals sensitive credential fields with e from now on. A nil
// encryptor stores them in the clear.
func (s *BadgerStore) SetEncryptor(e *CredentialEncryptor) {
	s.encryptor = e
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// LoadState reads every state blob.
func (s *BadgerStore) LoadState(_ context.Context) (*State, error) {
	blobs := make(map[string][]byte)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(stateKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", item.Key(), err)
			}
			blobs[string(item.Key()[len(prefix):])] = val
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return NewStateFrom(blobs), nil
}

// SaveState writes the given blobs in one transaction.
func (s *BadgerStore) SaveState(_ context.Context, blobs map[string][]byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for k, v := range blobs {
			if err := txn.Set([]byte(stateKeyPrefix+k), v); err != nil {
				return fmt.Errorf("set state %s: %w", k, err)
			}
		}
		return nil
	})
}

// Flush writes state when it is modified. On failure the modified flag is
// raised again so the next flush retries.
func (s *BadgerStore) Flush(ctx context.Context, state *State) error {
	blobs, ok := state.TakeModified()
	if !ok {
		return nil
	}
	if err := s.SaveState(ctx, blobs); err != nil {
		state.MarkModified()
		metrics.StateFlushes.WithLabelValues("error").Inc()
		return err
	}
	metrics.StateFlushes.WithLabelValues("ok").Inc()
	logging.Debug().Int("keys", len(blobs)).Msg("Persistent state flushed")
	return nil
}

// SaveCredentials stores the identity credential map.
func (s *BadgerStore) SaveCredentials(_ context.Context, creds map[string]string) error {
	sealed, err := s.encryptor.sealCredentials(creds)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(credentialsKey), data)
	})
}

// LoadCredentials returns the stored credential map or ErrNoCredentials.
// Credentials sealed under a different key fail with ErrDecryptionFailed.
func (s *BadgerStore) LoadCredentials(_ context.Context) (map[string]string, error) {
	var creds map[string]string

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credentialsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoCredentials
		}
		if err != nil {
			return fmt.Errorf("get credentials: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &creds)
		})
	})
	if err != nil {
		return nil, err
	}
	opened, err := s.encryptor.openCredentials(creds)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	return opened, nil
}

// DeleteCredentials forgets stored credentials, e.g. after authentication
// was lost.
func (s *BadgerStore) DeleteCredentials(_ context.Context) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(credentialsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
