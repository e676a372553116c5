// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package cache

import (
	"testing"

	"github.com/tomtom215/steambridge/internal/models"
)

func apps(ids ...uint32) []models.App {
	out := make([]models.App, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.App{AppID: id, Title: "Game"})
	}
	return out
}

func TestGamesCacheReadyOnCompleteEnumeration(t *testing.T) {
	t.Parallel()

	c := NewGamesCache()
	c.Update(apps(10, 20), false)
	if c.Ready().IsSet() {
		t.Fatal("partial update must not set readiness")
	}
	c.Update(apps(30), true)
	if !c.Ready().IsSet() {
		t.Fatal("complete update must set readiness")
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
}

func TestGamesCacheAddedQueueRequiresGate(t *testing.T) {
	t.Parallel()

	c := NewGamesCache()
	c.Update(apps(1, 2), true)
	if got := c.ConsumeAdded(); len(got) != 0 {
		t.Fatalf("ConsumeAdded before gate = %v, want empty", got)
	}

	c.OpenAdditionGate()
	c.Update(apps(2, 3), false)
	got := c.ConsumeAdded()
	if len(got) != 1 || got[0].AppID != 3 {
		t.Fatalf("ConsumeAdded = %v, want only app 3", got)
	}
}

func TestGamesCacheDrainIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewGamesCache()
	c.OpenAdditionGate()
	c.Update(apps(5, 6), false)

	if got := c.ConsumeAdded(); len(got) != 2 {
		t.Fatalf("first drain = %d entries, want 2", len(got))
	}
	if got := c.ConsumeAdded(); len(got) != 0 {
		t.Fatalf("second drain = %v, want empty", got)
	}

	c.Update(apps(5, 6), false)
	if got := c.ConsumeAdded(); len(got) != 0 {
		t.Fatalf("re-delivered apps were queued again: %v", got)
	}
	if c.Len() != 2 {
		t.Errorf("drained apps must stay in the catalog, Len = %d", c.Len())
	}
}

func TestGamesCacheSharedGames(t *testing.T) {
	t.Parallel()

	c := NewGamesCache()
	c.Update([]models.App{
		{AppID: 1, Title: "Owned"},
		{AppID: 2, Title: "Borrowed", Shared: true},
	}, true)

	shared := c.SharedGames()
	if len(shared) != 1 || shared[0].AppID != 2 {
		t.Fatalf("SharedGames = %v, want app 2", shared)
	}
}

func TestGamesCacheDumpLoads(t *testing.T) {
	t.Parallel()

	src := NewGamesCache()
	src.Update([]models.App{
		{AppID: 292030, Title: "The Witcher 3"},
		{AppID: 570, Title: "Dota 2"},
		{AppID: 440, Title: "Team Fortress 2", Shared: true},
	}, true)

	data, err := src.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	dst := NewGamesCache()
	if err := dst.Loads(data); err != nil {
		t.Fatalf("Loads: %v", err)
	}

	got := dst.OwnedGames()
	if len(got) != 3 || got[0].AppID != 292030 || got[2].AppID != 440 || !got[2].Shared {
		t.Fatalf("OwnedGames after Loads = %v, want insertion order preserved", got)
	}
	if dst.Ready().IsSet() {
		t.Error("Loads must not set readiness")
	}

	dst.OpenAdditionGate()
	dst.Update(apps(570), true)
	if added := dst.ConsumeAdded(); len(added) != 0 {
		t.Errorf("previously persisted app queued as new: %v", added)
	}
}

func TestGamesCacheLoadsRejectsGarbage(t *testing.T) {
	t.Parallel()

	if err := NewGamesCache().Loads([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestGamesCacheEnumerated(t *testing.T) {
	t.Parallel()

	c := NewGamesCache()
	if c.Enumerated() {
		t.Fatal("new cache should not be enumerated")
	}
	c.MarkEnumerated()
	if !c.Enumerated() {
		t.Fatal("MarkEnumerated had no effect")
	}
}
