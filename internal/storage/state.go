// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package storage persists the session's keyed state blobs (the owned games
// snapshot, the local machine ID) and the stored credentials in BadgerDB.
//
// Components write to an in-memory State and raise its modified flag; a
// flusher copies modified state to disk on an interval and at shutdown.
package storage

import "sync"

// Well-known state keys.
const (
	KeyGames     = "games"
	KeyMachineID = "machine_id"
)

// State is the in-memory persistent cache: keyed blobs plus a modified flag.
type State struct {
	mu       sync.RWMutex
	blobs    map[string][]byte
	modified bool
}

// NewState returns an empty, unmodified state.
func NewState() *State {
	return &State{blobs: make(map[string][]byte)}
}

// NewStateFrom wraps loaded blobs without raising the modified flag.
func NewStateFrom(blobs map[string][]byte) *State {
	s := NewState()
	for k, v := range blobs {
		s.blobs[k] = v
	}
	return s
}

// Get returns the blob stored under key.
func (s *State) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.blobs[key]
	return v, ok
}

// Set stores a blob and marks the state modified.
func (s *State) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = value
	s.modified = true
}

// Modified reports whether the state changed since the last flush.
func (s *State) Modified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// TakeModified returns a copy of every blob and clears the modified flag, or
// false when nothing changed.
func (s *State) TakeModified() (map[string][]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.modified {
		return nil, false
	}
	s.modified = false
	out := make(map[string][]byte, len(s.blobs))
	for k, v := range s.blobs {
		out[k] = v
	}
	return out, true
}

// MarkModified raises the modified flag, e.g. after a failed flush.
func (s *State) MarkModified() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modified = true
}
