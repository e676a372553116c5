// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package models defines the shapes exchanged between Steambridge and its
// host (games, achievements, presence, authentication steps), the records
// delivered by the protocol session, and the error taxonomy shared by every
// component.
package models

import "strconv"

// LicenseType describes how the account holds a game.
type LicenseType string

// License types reported to the host.
const (
	LicenseSinglePurchase   LicenseType = "SinglePurchase"
	LicenseOtherUserLicense LicenseType = "OtherUserLicense"
	LicenseUnknown          LicenseType = "Unknown"
)

// LicenseInfo accompanies every Game.
type LicenseInfo struct {
	LicenseType LicenseType `json:"license_type"`
	Owner       string      `json:"owner,omitempty"`
}

// Game is an owned entitlement in the host's shape.
type Game struct {
	GameID      string      `json:"game_id"`
	GameTitle   string      `json:"game_title"`
	DLCs        []string    `json:"dlcs"`
	LicenseInfo LicenseInfo `json:"license_info"`
}

// SubscriptionDiscovery tells the host whether a subscription was found
// automatically or entered by the user.
type SubscriptionDiscovery string

// Discovery modes.
const (
	SubscriptionDiscoveryAutomatic  SubscriptionDiscovery = "automatic"
	SubscriptionDiscoveryUserEnable SubscriptionDiscovery = "user_enabled"
)

// FamilySharingSubscription is the only subscription the network exposes.
const FamilySharingSubscription = "Steam Family Sharing"

// Subscription is a named group of games the account can play without owning.
type Subscription struct {
	SubscriptionName string                `json:"subscription_name"`
	Owned            bool                  `json:"owned"`
	EndTime          *int64                `json:"end_time,omitempty"`
	Discovery        SubscriptionDiscovery `json:"subscription_discovery"`
}

// SubscriptionGame is one game reachable through a subscription.
type SubscriptionGame struct {
	GameID    string `json:"game_id"`
	GameTitle string `json:"game_title"`
}

// Achievement is one unlocked achievement.
type Achievement struct {
	UnlockTime      int64  `json:"unlock_time"`
	AchievementID   string `json:"achievement_id,omitempty"`
	AchievementName string `json:"achievement_name"`
}

// GameTime reports minutes played and the last session start. Nil fields mean
// the network did not report a value.
type GameTime struct {
	GameID         string `json:"game_id"`
	TimePlayed     *int64 `json:"time_played"`
	LastPlayedTime *int64 `json:"last_played_time"`
}

// GameLibrarySettings reports user tags and the hidden flag. Nil fields mean
// no collection data was available.
type GameLibrarySettings struct {
	GameID string   `json:"game_id"`
	Tags   []string `json:"tags"`
	Hidden *bool    `json:"hidden"`
}

// UserInfo describes a friend.
type UserInfo struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	ProfileLink string `json:"profile_url,omitempty"`
}

// PresenceState is the coarse online status.
type PresenceState string

// Presence states.
const (
	PresenceUnknown PresenceState = "unknown"
	PresenceOnline  PresenceState = "online"
	PresenceOffline PresenceState = "offline"
	PresenceAway    PresenceState = "away"
)

// UserPresence is what the host shows for a friend.
type UserPresence struct {
	PresenceState PresenceState `json:"presence_state"`
	GameID        string        `json:"game_id,omitempty"`
	GameTitle     string        `json:"game_title,omitempty"`
	InGameStatus  string        `json:"in_game_status,omitempty"`
	FullStatus    string        `json:"full_status,omitempty"`
}

// OwnedGame returns the host shape of an owned app.
func OwnedGame(appID uint32, title string) Game {
	return Game{
		GameID:      strconv.FormatUint(uint64(appID), 10),
		GameTitle:   title,
		DLCs:        []string{},
		LicenseInfo: LicenseInfo{LicenseType: LicenseSinglePurchase},
	}
}
