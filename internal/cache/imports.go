// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/steambridge/internal/models"
)

// ImportCache holds per-app payloads that are refreshed on request.
//
// BeginImport is an atomic test-and-set of the import-in-progress flag: the
// caller that wins issues the refresh, every other caller rides along by
// waiting on the same Readiness. Each import installs a fresh Readiness, and
// only the caller that started a cycle may abandon it.
type ImportCache[T any] struct {
	name         string
	mu           sync.Mutex
	items        map[uint32]T
	inProgress   bool
	startedAt    time.Time
	staleAfter   time.Duration
	trackPending bool
	pending      map[uint32]struct{}
	ready        *Readiness
}

// StatsCache holds achievement unlocks per app.
type StatsCache = ImportCache[models.GameStats]

// TimesCache holds playtime per app.
type TimesCache = ImportCache[models.GameTimes]

// NewStatsCache returns an empty statistics cache.
func NewStatsCache() *StatsCache {
	return newImportCache[models.GameStats]("stats")
}

// NewTimesCache returns an empty playtime cache.
func NewTimesCache() *TimesCache {
	return newImportCache[models.GameTimes]("times")
}

func newImportCache[T any](name string) *ImportCache[T] {
	return &ImportCache[T]{
		name:  name,
		items: make(map[uint32]T),
		ready: NewReadiness(),
	}
}

// BeginImport starts an import cycle unless one is already in flight. It
// returns the readiness of the cycle the caller belongs to and whether the
// caller started it. With ids the cycle completes when every id has been Put;
// with nil ids it completes on Complete. An empty, non-nil id list completes
// immediately.
func (c *ImportCache[T]) BeginImport(ids []uint32) (*Readiness, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inProgress && (c.staleAfter <= 0 || time.Since(c.startedAt) < c.staleAfter) {
		return c.ready, false
	}

	c.inProgress = true
	c.startedAt = time.Now()
	c.ready = NewReadiness()
	c.trackPending = ids != nil
	c.pending = make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		c.pending[id] = struct{}{}
	}
	if c.trackPending && len(c.pending) == 0 {
		c.finishLocked()
	}
	return c.ready, true
}

// SetStaleAfter lets BeginImport replace a cycle that has been in flight for
// at least d, e.g. after its starter was canceled and responses never came.
// Zero disables replacement.
func (c *ImportCache[T]) SetStaleAfter(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staleAfter = d
}

// ImportInProgress reports whether an import cycle is in flight.
func (c *ImportCache[T]) ImportInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inProgress
}

// Put stores one payload and completes the cycle when it was the last
// pending id.
func (c *ImportCache[T]) Put(id uint32, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[id] = v
	if !c.inProgress || !c.trackPending {
		return
	}
	delete(c.pending, id)
	if len(c.pending) == 0 {
		c.finishLocked()
	}
}

// Complete ends the current cycle regardless of pending ids.
func (c *ImportCache[T]) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inProgress {
		c.finishLocked()
	}
}

// AbandonImport clears the in-progress flag without setting readiness, so a
// later request can start a new cycle after responses went missing. It is a
// no-op unless cycle is still the one in flight.
func (c *ImportCache[T]) AbandonImport(cycle *Readiness) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inProgress || c.ready != cycle {
		return
	}
	c.inProgress = false
	c.pending = nil
}

func (c *ImportCache[T]) finishLocked() {
	c.inProgress = false
	c.pending = nil
	c.ready.Set()
}

// Get returns the payload for id.
func (c *ImportCache[T]) Get(id uint32) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[id]
	return v, ok
}

// Ready returns the current cycle's readiness signal.
func (c *ImportCache[T]) Ready() *Readiness {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// WaitReady waits on the readiness of the cycle current at call time.
func (c *ImportCache[T]) WaitReady(ctx context.Context, timeout time.Duration) error {
	return c.WaitCycle(ctx, c.Ready(), timeout)
}

// WaitCycle waits on the readiness returned by BeginImport.
func (c *ImportCache[T]) WaitCycle(ctx context.Context, cycle *Readiness, timeout time.Duration) error {
	return waitReady(ctx, c.name, cycle, timeout)
}
