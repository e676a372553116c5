// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/metrics"
	"github.com/tomtom215/steambridge/internal/models"
)

// PresenceUpdate is emitted when a friend's presence changes.
type PresenceUpdate struct {
	UserID string
	Info   models.FriendInfo
}

// FriendsCache holds the friend list and persona records.
//
// Presence changes of friends are published on Updates. Sends never block:
// when the buffer is full the update is dropped and counted, and the next
// change for that friend carries the newer state anyway.
type FriendsCache struct {
	mu      sync.Mutex
	friends map[string]struct{}
	infos   map[string]models.FriendInfo
	ready   *Readiness
	updates chan PresenceUpdate
}

// NewFriendsCache returns an empty cache whose update channel holds buffer
// events.
func NewFriendsCache(buffer int) *FriendsCache {
	if buffer < 1 {
		buffer = 1
	}
	return &FriendsCache{
		friends: make(map[string]struct{}),
		infos:   make(map[string]models.FriendInfo),
		ready:   NewReadiness(),
		updates: make(chan PresenceUpdate, buffer),
	}
}

// SetFriends replaces the friend list and sets readiness.
func (c *FriendsCache) SetFriends(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.friends = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c.friends[id] = struct{}{}
	}
	c.ready.Set()
}

// UpdateInfo stores a persona record and publishes a presence update when a
// friend's state or game changed.
func (c *FriendsCache) UpdateInfo(id string, info models.FriendInfo) {
	c.mu.Lock()
	prev, known := c.infos[id]
	c.infos[id] = info
	_, isFriend := c.friends[id]
	c.mu.Unlock()

	if !isFriend || (known && !presenceChanged(prev, info)) {
		return
	}

	select {
	case c.updates <- PresenceUpdate{UserID: id, Info: info}:
		metrics.PresenceEvents.WithLabelValues("delivered").Inc()
	default:
		metrics.PresenceEvents.WithLabelValues("dropped").Inc()
		logging.Warn().Str("user_id", id).Msg("Presence update dropped, consumer is behind")
	}
}

func presenceChanged(a, b models.FriendInfo) bool {
	if a.State != b.State || a.GameID != b.GameID || a.GameName != b.GameName {
		return true
	}
	if len(a.RichPresence) != len(b.RichPresence) {
		return true
	}
	for k, v := range a.RichPresence {
		if b.RichPresence[k] != v {
			return true
		}
	}
	return false
}

// IDs returns the friend list sorted.
func (c *FriendsCache) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.friends))
	for id := range c.friends {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsFriend reports whether id is on the friend list.
func (c *FriendsCache) IsFriend(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.friends[id]
	return ok
}

// Info returns the persona record for id.
func (c *FriendsCache) Info(id string) (models.FriendInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.infos[id]
	return info, ok
}

// Infos returns the known persona records among ids.
func (c *FriendsCache) Infos(ids []string) map[string]models.FriendInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]models.FriendInfo, len(ids))
	for _, id := range ids {
		if info, ok := c.infos[id]; ok {
			out[id] = info
		}
	}
	return out
}

// Updates returns the outbound presence channel.
func (c *FriendsCache) Updates() <-chan PresenceUpdate {
	return c.updates
}

// WaitReady blocks until the friend list has been received.
func (c *FriendsCache) WaitReady(ctx context.Context, timeout time.Duration) error {
	return waitReady(ctx, "friends", c.ready, timeout)
}
