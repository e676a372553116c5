// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package backend

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tomtom215/steambridge/internal/models"
)

const (
	// lastPlayedUnsupported is reported for games that do not track sessions.
	lastPlayedUnsupported = 86400

	profileBaseURL    = "https://steamcommunity.com/profiles/"
	avatarURLTemplate = "https://steamcdn-a.akamaihd.net/steamcommunity/public/images/avatars/%s/%s_full.jpg"
	noAvatarSet       = "0000000000000000000000000000000000000000"
	defaultAvatarHash = "fef49e7fa7e1997310d705b2a6158ff8dc1cdfeb"
)

func avatarURL(hash string) string {
	if hash == "" || hash == noAvatarSet {
		hash = defaultAvatarHash
	}
	prefix := hash
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return fmt.Sprintf(avatarURLTemplate, prefix, hash)
}

func userInfoFromFriend(id string, info models.FriendInfo) models.UserInfo {
	return models.UserInfo{
		UserID:      id,
		UserName:    info.Name,
		AvatarURL:   avatarURL(info.AvatarHash),
		ProfileLink: profileBaseURL + id,
	}
}

// achievementsFromStats trims names, keeping the raw name when trimming
// would leave nothing.
func achievementsFromStats(stats models.GameStats) []models.Achievement {
	out := make([]models.Achievement, 0, len(stats.Achievements))
	for _, a := range stats.Achievements {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			name = a.Name
		}
		out = append(out, models.Achievement{UnlockTime: a.UnlockTime, AchievementName: name})
	}
	return out
}

func gameTimeFromTimes(gameID string, t models.GameTimes) models.GameTime {
	played := t.TimePlayed
	gt := models.GameTime{GameID: gameID, TimePlayed: &played}
	if t.LastPlayed != lastPlayedUnsupported {
		last := t.LastPlayed
		gt.LastPlayedTime = &last
	}
	return gt
}

// librarySettings maps collections to tags. A collection named "hidden" in
// any case sets the hidden flag instead of a tag. Without collection data
// both fields are nil.
func librarySettings(gameID string, appID uint32, collections map[string][]uint32) models.GameLibrarySettings {
	if collections == nil {
		return models.GameLibrarySettings{GameID: gameID}
	}

	tags := []string{}
	hidden := false
	for name, members := range collections {
		if !containsApp(members, appID) {
			continue
		}
		if strings.EqualFold(name, "hidden") {
			hidden = true
		} else {
			tags = append(tags, name)
		}
	}
	sort.Strings(tags)
	return models.GameLibrarySettings{GameID: gameID, Tags: tags, Hidden: &hidden}
}

func containsApp(members []uint32, appID uint32) bool {
	for _, m := range members {
		if m == appID {
			return true
		}
	}
	return false
}

// presenceFromInfo maps a persona record to the host's presence shape.
func presenceFromInfo(info models.FriendInfo) models.UserPresence {
	p := models.UserPresence{}
	switch info.State {
	case models.PersonaOffline, models.PersonaInvisible:
		p.PresenceState = models.PresenceOffline
	case models.PersonaAway, models.PersonaSnooze:
		p.PresenceState = models.PresenceAway
	case models.PersonaOnline, models.PersonaBusy, models.PersonaLookingToTrade, models.PersonaLookingToPlay:
		p.PresenceState = models.PresenceOnline
	default:
		p.PresenceState = models.PresenceUnknown
	}

	if info.GameID != 0 {
		p.GameID = strconv.FormatUint(info.GameID, 10)
	}
	p.GameTitle = info.GameName
	if status, ok := info.RichPresence["status"]; ok {
		p.InGameStatus = status
	}
	if display, ok := info.RichPresence["steam_display"]; ok {
		p.FullStatus = display
	} else if p.GameTitle != "" {
		p.FullStatus = p.GameTitle
	}
	return p
}
