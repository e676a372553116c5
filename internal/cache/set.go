// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package cache

// Set groups the caches of one session. It is created once per session and
// shared by reference between the protocol session, the scheduler and the
// orchestrator.
type Set struct {
	UserInfo *UserInfoCache
	Games    *GamesCache
	Stats    *StatsCache
	Times    *TimesCache
	Friends  *FriendsCache
}

// NewSet returns empty caches. presenceBuffer sizes the friends update channel.
func NewSet(presenceBuffer int) *Set {
	return &Set{
		UserInfo: NewUserInfoCache(),
		Games:    NewGamesCache(),
		Stats:    NewStatsCache(),
		Times:    NewTimesCache(),
		Friends:  NewFriendsCache(presenceBuffer),
	}
}
