// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openMemoryStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := Open("", true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newEntry(t *testing.T, topic string) OutboxEntry {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatal(err)
	}
	return OutboxEntry{
		ID:        id.String(),
		Topic:     topic,
		Payload:   []byte(`{"game":{"game_id":"440"}}`),
		CreatedAt: time.Now().UTC(),
	}
}

func TestOutboxOrderAndLimit(t *testing.T) {
	t.Parallel()

	store := openMemoryStore(t)
	ctx := context.Background()

	var ids []string
	for _, topic := range []string{"a", "b", "c"} {
		e := newEntry(t, topic)
		ids = append(ids, e.ID)
		if err := store.AppendOutbox(ctx, e, time.Hour); err != nil {
			t.Fatalf("AppendOutbox: %v", err)
		}
	}

	all, err := store.PendingOutbox(ctx, 0)
	if err != nil {
		t.Fatalf("PendingOutbox: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, e := range all {
		if e.ID != ids[i] {
			t.Errorf("entry %d = %s, want %s", i, e.ID, ids[i])
		}
	}

	two, err := store.PendingOutbox(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(two) != 2 || two[0].Topic != "a" {
		t.Errorf("limited = %+v", two)
	}
}

func TestOutboxAttemptAndDelete(t *testing.T) {
	t.Parallel()

	store := openMemoryStore(t)
	ctx := context.Background()
	e := newEntry(t, "steambridge.games.added")
	if err := store.AppendOutbox(ctx, e, 0); err != nil {
		t.Fatal(err)
	}

	got, err := store.RecordOutboxAttempt(ctx, e.ID, "nats: timeout")
	if err != nil {
		t.Fatalf("RecordOutboxAttempt: %v", err)
	}
	if got.Attempts != 1 || got.LastError != "nats: timeout" {
		t.Errorf("entry after attempt = %+v", got)
	}

	if err := store.DeleteOutbox(ctx, e.ID); err != nil {
		t.Fatalf("DeleteOutbox: %v", err)
	}
	if err := store.DeleteOutbox(ctx, e.ID); err != nil {
		t.Errorf("second DeleteOutbox = %v, want nil", err)
	}
	if _, err := store.RecordOutboxAttempt(ctx, e.ID, "x"); !errors.Is(err, ErrOutboxEntryNotFound) {
		t.Errorf("attempt on deleted entry = %v, want ErrOutboxEntryNotFound", err)
	}

	pending, err := store.PendingOutbox(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}
