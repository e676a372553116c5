// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/steambridge/internal/logging"
)

const outboxKeyPrefix = "outbox:"

// ErrOutboxEntryNotFound is returned when an entry was already delivered or
// expired.
var ErrOutboxEntryNotFound = errors.New("outbox entry not found")

// OutboxEntry is a host event waiting for redelivery.
type OutboxEntry struct {
	// ID doubles as the message ID so the broker can drop duplicates. IDs
	// are UUIDv7, so key order is creation order.
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"last_error,omitempty"`
}

// AppendOutbox stores e. Entries expire after ttl even if never delivered;
// ttl <= 0 keeps them until deleted.
func (s *BadgerStore) AppendOutbox(_ context.Context, e OutboxEntry, ttl time.Duration) error {
	data, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal outbox entry: %w", err)
	}
	entry := badger.NewEntry([]byte(outboxKeyPrefix+e.ID), data)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
}

// PendingOutbox returns up to limit entries, oldest first. limit <= 0 returns
// every entry.
func (s *BadgerStore) PendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	var entries []OutboxEntry

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(outboxKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			var e OutboxEntry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable outbox entry")
				continue
			}

			entries = append(entries, e)
			if limit > 0 && len(entries) == limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// RecordOutboxAttempt counts a failed redelivery of id. The entry keeps its
// remaining time to live.
func (s *BadgerStore) RecordOutboxAttempt(_ context.Context, id, lastError string) (OutboxEntry, error) {
	var e OutboxEntry
	key := []byte(outboxKeyPrefix + id)

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrOutboxEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("get outbox entry: %w", err)
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		}); err != nil {
			return fmt.Errorf("unmarshal outbox entry: %w", err)
		}

		e.Attempts++
		e.LastError = lastError
		data, err := json.Marshal(&e)
		if err != nil {
			return fmt.Errorf("marshal outbox entry: %w", err)
		}

		updated := badger.NewEntry(key, data)
		if exp := item.ExpiresAt(); exp > 0 {
			remaining := time.Until(time.Unix(int64(exp), 0))
			if remaining <= 0 {
				return txn.Delete(key)
			}
			updated = updated.WithTTL(remaining)
		}
		return txn.SetEntry(updated)
	})
	return e, err
}

// DeleteOutbox removes a delivered or abandoned entry.
func (s *BadgerStore) DeleteOutbox(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(outboxKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
