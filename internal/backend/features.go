// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package backend

import (
	"context"
	"sort"
	"strconv"

	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/metrics"
	"github.com/tomtom215/steambridge/internal/models"
	"github.com/tomtom215/steambridge/internal/storage"
)

func (b *Backend) requireAuth() error {
	if !b.caches.UserInfo.HasIdentity() {
		return models.ErrAuthenticationRequired
	}
	return nil
}

// GetOwnedGames waits for the catalog and returns it. The first call opens
// the addition gate, and every call marks the catalog as enumerated so the
// scheduler may start forwarding new games.
func (b *Backend) GetOwnedGames(ctx context.Context) ([]models.Game, error) {
	if err := b.requireAuth(); err != nil {
		return nil, err
	}
	if err := b.caches.Games.WaitReady(ctx, b.cfg.CatalogTimeout); err != nil {
		return nil, err
	}
	b.caches.Games.OpenAdditionGate()
	defer b.caches.Games.MarkEnumerated()

	apps := b.caches.Games.OwnedGames()
	games := make([]models.Game, 0, len(apps))
	for _, app := range apps {
		games = append(games, models.OwnedGame(app.AppID, app.Title))
	}

	snapshot, err := b.caches.Games.Dump()
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to serialize games snapshot")
	} else {
		b.state.Set(storage.KeyGames, snapshot)
	}

	return games, nil
}

// GetSubscriptions reports the family sharing subscription, owned when any
// shared game is in the catalog.
func (b *Backend) GetSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	if err := b.requireAuth(); err != nil {
		return nil, err
	}
	if !b.caches.Games.Enumerated() {
		if err := b.caches.Games.WaitReady(ctx, b.cfg.CatalogTimeout); err != nil {
			return nil, err
		}
	}
	return []models.Subscription{{
		SubscriptionName: models.FamilySharingSubscription,
		Owned:            len(b.caches.Games.SharedGames()) > 0,
		Discovery:        models.SubscriptionDiscoveryAutomatic,
	}}, nil
}

// GetSubscriptionGames lists the games reachable through family sharing.
func (b *Backend) GetSubscriptionGames(_ context.Context, name string) ([]models.SubscriptionGame, error) {
	if err := b.requireAuth(); err != nil {
		return nil, err
	}
	if name != models.FamilySharingSubscription {
		return nil, models.Unknownf("unknown subscription %q", name)
	}
	shared := b.caches.Games.SharedGames()
	games := make([]models.SubscriptionGame, 0, len(shared))
	for _, app := range shared {
		games = append(games, models.SubscriptionGame{
			GameID:    strconv.FormatUint(uint64(app.AppID), 10),
			GameTitle: app.Title,
		})
	}
	return games, nil
}

// PrepareAchievements refreshes statistics for gameIDs and waits for them.
// While an import is in flight, callers wait on it instead of starting
// another. Only the caller that started a cycle abandons it, and only on
// timeout; a canceled caller leaves the cycle to complete for the others.
func (b *Backend) PrepareAchievements(ctx context.Context, gameIDs []string) error {
	if err := b.requireAuth(); err != nil {
		return err
	}
	ids, err := parseAppIDs(gameIDs)
	if err != nil {
		return err
	}
	session, err := b.currentSession()
	if err != nil {
		return err
	}

	cycle, started := b.caches.Stats.BeginImport(ids)
	if started {
		if err := session.RefreshGameStats(ctx, ids); err != nil {
			b.caches.Stats.AbandonImport(cycle)
			return err
		}
	} else {
		metrics.ImportsSkipped.WithLabelValues("stats").Inc()
		logging.Ctx(ctx).Info().Msg("Game stats import already in progress")
	}

	if err := b.caches.Stats.WaitCycle(ctx, cycle, b.cfg.ImportTimeout); err != nil {
		if started && ctx.Err() == nil {
			b.caches.Stats.AbandonImport(cycle)
		}
		return err
	}
	logging.Ctx(ctx).Info().Int("games", len(ids)).Msg("Finished achievements context prepare")
	return nil
}

// GetUnlockedAchievements returns the cached unlocks of gameID.
func (b *Backend) GetUnlockedAchievements(_ context.Context, gameID string) ([]models.Achievement, error) {
	if err := b.requireAuth(); err != nil {
		return nil, err
	}
	id, err := parseAppID(gameID)
	if err != nil {
		return nil, err
	}
	stats, ok := b.caches.Stats.Get(id)
	if !ok {
		return []models.Achievement{}, nil
	}
	return achievementsFromStats(stats), nil
}

// PrepareGameTimes refreshes playtimes and waits for them.
func (b *Backend) PrepareGameTimes(ctx context.Context) error {
	if err := b.requireAuth(); err != nil {
		return err
	}
	session, err := b.currentSession()
	if err != nil {
		return err
	}

	cycle, started := b.caches.Times.BeginImport(nil)
	if started {
		if err := session.RefreshGameTimes(ctx); err != nil {
			b.caches.Times.AbandonImport(cycle)
			return err
		}
	} else {
		metrics.ImportsSkipped.WithLabelValues("times").Inc()
		logging.Ctx(ctx).Info().Msg("Game times import already in progress")
	}

	if err := b.caches.Times.WaitCycle(ctx, cycle, b.cfg.ImportTimeout); err != nil {
		if started && ctx.Err() == nil {
			b.caches.Times.AbandonImport(cycle)
		}
		return err
	}
	logging.Ctx(ctx).Info().Msg("Finished game times context prepare")
	return nil
}

// GetGameTime returns the cached playtime of gameID. Values the network did
// not report are nil.
func (b *Backend) GetGameTime(_ context.Context, gameID string) (models.GameTime, error) {
	if err := b.requireAuth(); err != nil {
		return models.GameTime{}, err
	}
	id, err := parseAppID(gameID)
	if err != nil {
		return models.GameTime{}, err
	}
	times, ok := b.caches.Times.Get(id)
	if !ok {
		return models.GameTime{GameID: gameID}, nil
	}
	return gameTimeFromTimes(gameID, times), nil
}

// PrepareLibrarySettings fetches collection memberships.
func (b *Backend) PrepareLibrarySettings(ctx context.Context) (map[string][]uint32, error) {
	if err := b.requireAuth(); err != nil {
		return nil, err
	}
	session, err := b.currentSession()
	if err != nil {
		return nil, err
	}
	return session.RetrieveCollections(ctx)
}

// GetLibrarySettings derives tags and the hidden flag of gameID from
// collections as returned by PrepareLibrarySettings.
func (b *Backend) GetLibrarySettings(gameID string, collections map[string][]uint32) (models.GameLibrarySettings, error) {
	id, err := parseAppID(gameID)
	if err != nil {
		return models.GameLibrarySettings{}, err
	}
	return librarySettings(gameID, id, collections), nil
}

// GetFriends lists friends with their avatars and nicknames.
func (b *Backend) GetFriends(ctx context.Context) ([]models.UserInfo, error) {
	if err := b.requireAuth(); err != nil {
		return nil, err
	}
	session, err := b.currentSession()
	if err != nil {
		return nil, err
	}

	ids, err := session.GetFriends(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := session.GetFriendsInfo(ctx, ids)
	if err != nil {
		return nil, err
	}
	nicknames, err := session.GetFriendsNicknames(ctx)
	if err != nil {
		return nil, err
	}

	friendIDs := make([]string, 0, len(infos))
	for id := range infos {
		friendIDs = append(friendIDs, id)
	}
	sort.Strings(friendIDs)

	friends := make([]models.UserInfo, 0, len(friendIDs))
	for _, id := range friendIDs {
		friend := userInfoFromFriend(id, infos[id])
		if nick, ok := nicknames[id]; ok {
			friend.UserName += " (" + nick + ")"
		}
		friends = append(friends, friend)
	}
	return friends, nil
}

// PreparePresence fetches persona records for userIDs.
func (b *Backend) PreparePresence(ctx context.Context, userIDs []string) (map[string]models.FriendInfo, error) {
	if err := b.requireAuth(); err != nil {
		return nil, err
	}
	session, err := b.currentSession()
	if err != nil {
		return nil, err
	}
	return session.GetFriendsInfo(ctx, userIDs)
}

// GetUserPresence returns the presence of userID from records fetched by
// PreparePresence. Only friends have presence.
func (b *Backend) GetUserPresence(userID string, infos map[string]models.FriendInfo) (models.UserPresence, error) {
	info, ok := infos[userID]
	if !ok {
		return models.UserPresence{}, models.Unknownf("user %s not in friend list (presence is only available for friends)", userID)
	}
	return presenceFromInfo(info), nil
}

func parseAppID(gameID string) (uint32, error) {
	id, err := strconv.ParseUint(gameID, 10, 32)
	if err != nil {
		return 0, models.Unknownf("invalid game id %q", gameID)
	}
	return uint32(id), nil
}

func parseAppIDs(gameIDs []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(gameIDs))
	for _, g := range gameIDs {
		id, err := parseAppID(g)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
