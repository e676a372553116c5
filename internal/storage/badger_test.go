// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package storage

import (
	"context"
	"errors"
	"os"
	"testing"
)

// createTestStore opens a BadgerStore in a temp directory.
func createTestStore(t *testing.T) (*BadgerStore, string) {
	t.Helper()

	dir, err := os.MkdirTemp("", "badger-state-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := Open(dir, false)
	if err != nil {
		t.Fatalf("Failed to open BadgerDB: %v", err)
	}
	return store, dir
}

func TestStateModifiedFlag(t *testing.T) {
	t.Parallel()

	s := NewStateFrom(map[string][]byte{KeyGames: []byte("[]")})
	if s.Modified() {
		t.Fatal("loaded state should not be modified")
	}
	if _, ok := s.TakeModified(); ok {
		t.Fatal("TakeModified on clean state should report false")
	}

	s.Set(KeyMachineID, []byte("abc"))
	blobs, ok := s.TakeModified()
	if !ok || len(blobs) != 2 {
		t.Fatalf("TakeModified = %v, %v; want both blobs", blobs, ok)
	}
	if s.Modified() {
		t.Fatal("TakeModified should clear the flag")
	}
}

func TestBadgerStoreFlushAndReload(t *testing.T) {
	store, dir := createTestStore(t)
	ctx := context.Background()

	state := NewState()
	state.Set(KeyGames, []byte(`[{"appid":570,"title":"Dota 2","shared":false}]`))
	if err := store.Flush(ctx, state); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if state.Modified() {
		t.Fatal("successful flush should leave state clean")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	games, ok := loaded.Get(KeyGames)
	if !ok || string(games) != `[{"appid":570,"title":"Dota 2","shared":false}]` {
		t.Fatalf("games blob = %q, %v", games, ok)
	}
}

func TestBadgerStoreFlushSkipsCleanState(t *testing.T) {
	store, _ := createTestStore(t)
	defer store.Close()

	if err := store.Flush(context.Background(), NewState()); err != nil {
		t.Fatalf("Flush clean state: %v", err)
	}
}

func TestBadgerStoreCredentials(t *testing.T) {
	store, err := Open("", true)
	if err != nil {
		t.Fatalf("Open in-memory: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, err := store.LoadCredentials(ctx); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("LoadCredentials on empty store = %v, want ErrNoCredentials", err)
	}

	creds := map[string]string{"steam_id": "76561197960287930", "refresh_token": "tok"}
	if err := store.SaveCredentials(ctx, creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	got, err := store.LoadCredentials(ctx)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got["steam_id"] != "76561197960287930" || got["refresh_token"] != "tok" {
		t.Errorf("credentials = %v", got)
	}

	if err := store.DeleteCredentials(ctx); err != nil {
		t.Fatalf("DeleteCredentials: %v", err)
	}
	if err := store.DeleteCredentials(ctx); err != nil {
		t.Fatalf("DeleteCredentials twice: %v", err)
	}
	if _, err := store.LoadCredentials(ctx); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("LoadCredentials after delete = %v, want ErrNoCredentials", err)
	}
}
