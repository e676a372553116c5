// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/steambridge/internal/models"
)

// GamesCache is the owned-games catalog.
//
// New apps enter the "added" queue only while the addition gate is open,
// which happens when the host first enumerates owned games. An app is queued
// at most once: it is queued only on first insertion and ConsumeAdded drains
// the queue.
type GamesCache struct {
	mu         sync.Mutex
	apps       map[uint32]models.App
	order      []uint32
	added      []models.App
	gateOpen   bool
	enumerated bool
	ready      *Readiness
}

// NewGamesCache returns an empty catalog.
func NewGamesCache() *GamesCache {
	return &GamesCache{
		apps:  make(map[uint32]models.App),
		ready: NewReadiness(),
	}
}

// Update merges apps into the catalog. complete marks the end of an
// authoritative license enumeration and sets readiness.
func (c *GamesCache) Update(apps []models.App, complete bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, app := range apps {
		existing, ok := c.apps[app.AppID]
		if !ok {
			c.order = append(c.order, app.AppID)
			if c.gateOpen {
				c.added = append(c.added, app)
			}
		}
		if !ok || existing != app {
			c.apps[app.AppID] = app
		}
	}

	if complete {
		c.ready.Set()
	}
}

// OpenAdditionGate starts queueing newly inserted apps.
func (c *GamesCache) OpenAdditionGate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gateOpen = true
}

// MarkEnumerated records that the host completed a full enumeration.
func (c *GamesCache) MarkEnumerated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enumerated = true
}

// Enumerated reports whether a full enumeration has completed.
func (c *GamesCache) Enumerated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enumerated
}

// ConsumeAdded drains the added queue.
func (c *GamesCache) ConsumeAdded() []models.App {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.added) == 0 {
		return nil
	}
	out := c.added
	c.added = nil
	return out
}

// OwnedGames returns every cached app in insertion order.
func (c *GamesCache) OwnedGames() []models.App {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.App, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.apps[id])
	}
	return out
}

// SharedGames returns apps reachable through family sharing.
func (c *GamesCache) SharedGames() []models.App {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.App
	for _, id := range c.order {
		if app := c.apps[id]; app.Shared {
			out = append(out, app)
		}
	}
	return out
}

// Len returns the number of cached apps.
func (c *GamesCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Ready returns the catalog readiness signal.
func (c *GamesCache) Ready() *Readiness {
	return c.ready
}

// WaitReady blocks until the first complete license enumeration.
func (c *GamesCache) WaitReady(ctx context.Context, timeout time.Duration) error {
	return waitReady(ctx, "games", c.ready, timeout)
}

// Dump serializes the catalog in insertion order.
func (c *GamesCache) Dump() ([]byte, error) {
	return json.Marshal(c.OwnedGames())
}

// Loads restores a snapshot produced by Dump. Loaded apps are not queued as
// added since the host already knows them, and readiness is left untouched.
func (c *GamesCache) Loads(data []byte) error {
	var apps []models.App
	if err := json.Unmarshal(data, &apps); err != nil {
		return fmt.Errorf("decode games snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, app := range apps {
		if _, ok := c.apps[app.AppID]; !ok {
			c.order = append(c.order, app.AppID)
		}
		c.apps[app.AppID] = app
	}
	return nil
}
