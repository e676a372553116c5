// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package models

// App is a catalog entry as delivered by the protocol session.
type App struct {
	AppID  uint32 `json:"appid"`
	Title  string `json:"title"`
	Shared bool   `json:"shared"`
}

// AchievementRecord is one unlock inside a GameStats payload.
type AchievementRecord struct {
	Name       string `json:"name"`
	UnlockTime int64  `json:"unlock_time"`
}

// GameStats holds the unlocked achievements of one app.
type GameStats struct {
	AppID        uint32              `json:"appid"`
	Achievements []AchievementRecord `json:"achievements"`
}

// GameTimes holds minutes played and the unix time of the last session.
type GameTimes struct {
	AppID      uint32 `json:"appid"`
	TimePlayed int64  `json:"time_played"`
	LastPlayed int64  `json:"last_played"`
}

// PersonaState is the protocol's online status code.
type PersonaState int

// Persona states as numbered on the wire.
const (
	PersonaOffline        PersonaState = 0
	PersonaOnline         PersonaState = 1
	PersonaBusy           PersonaState = 2
	PersonaAway           PersonaState = 3
	PersonaSnooze         PersonaState = 4
	PersonaLookingToTrade PersonaState = 5
	PersonaLookingToPlay  PersonaState = 6
	PersonaInvisible      PersonaState = 7
)

// FriendInfo is a peer's persona record. AvatarHash is hex encoded.
type FriendInfo struct {
	Name         string            `json:"name"`
	AvatarHash   string            `json:"avatar_hash"`
	State        PersonaState      `json:"state"`
	GameID       uint64            `json:"game_id,omitempty"`
	GameName     string            `json:"game_name,omitempty"`
	RichPresence map[string]string `json:"rich_presence,omitempty"`
}
