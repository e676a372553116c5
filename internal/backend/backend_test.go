// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package backend

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/steambridge/internal/cache"
	"github.com/tomtom215/steambridge/internal/models"
	"github.com/tomtom215/steambridge/internal/profile"
	"github.com/tomtom215/steambridge/internal/protocol"
	"github.com/tomtom215/steambridge/internal/storage"
)

const testSteamID = "76561197960287930"

// fakeSession stands in for the protocol session. onRun plays the network:
// it runs inside Run and its return value ends the run loop, or Run blocks
// until canceled when onRun is nil or returns errBlock.
type fakeSession struct {
	onRun  func(ctx context.Context) error
	closed chan struct{}
	once   sync.Once

	// With holdResponses set, refreshes are sent but the network stays
	// silent until the test delivers responses itself.
	holdResponses atomic.Bool
	statsCalls    atomic.Int32
	timesCalls    atomic.Int32
	caches        *cache.Set

	friends     []string
	infos       map[string]models.FriendInfo
	nicknames   map[string]string
	collections map[string][]uint32
}

var errBlock = errors.New("block")

func newFakeSession(caches *cache.Set) *fakeSession {
	return &fakeSession{caches: caches, closed: make(chan struct{})}
}

func (f *fakeSession) Run(ctx context.Context) error {
	if f.onRun != nil {
		if err := f.onRun(ctx); !errors.Is(err, errBlock) {
			return err
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.closed:
		return nil
	}
}

func (f *fakeSession) Close() {
	f.once.Do(func() { close(f.closed) })
}

func (f *fakeSession) WaitClosed(context.Context) error { return nil }

func (f *fakeSession) OnAuthenticationLost(func(string)) {}

func (f *fakeSession) RefreshGameStats(_ context.Context, ids []uint32) error {
	f.statsCalls.Add(1)
	if !f.holdResponses.Load() {
		f.deliverStats(ids...)
	}
	return nil
}

func (f *fakeSession) deliverStats(ids ...uint32) {
	for _, id := range ids {
		f.caches.Stats.Put(id, models.GameStats{AppID: id, Achievements: []models.AchievementRecord{
			{Name: "  First Blood ", UnlockTime: 1700000000},
			{Name: "   ", UnlockTime: 1700000100},
		}})
	}
}

func (f *fakeSession) RefreshGameTimes(context.Context) error {
	f.timesCalls.Add(1)
	if !f.holdResponses.Load() {
		f.deliverTimes()
	}
	return nil
}

func (f *fakeSession) deliverTimes() {
	f.caches.Times.Put(10, models.GameTimes{AppID: 10, TimePlayed: 120, LastPlayed: 1700000000})
	f.caches.Times.Put(20, models.GameTimes{AppID: 20, TimePlayed: 5, LastPlayed: lastPlayedUnsupported})
	f.caches.Times.Complete()
}

func (f *fakeSession) GetFriends(context.Context) ([]string, error) { return f.friends, nil }

func (f *fakeSession) GetFriendsInfo(_ context.Context, ids []string) (map[string]models.FriendInfo, error) {
	out := make(map[string]models.FriendInfo)
	for _, id := range ids {
		if info, ok := f.infos[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

func (f *fakeSession) GetFriendsNicknames(context.Context) (map[string]string, error) {
	return f.nicknames, nil
}

func (f *fakeSession) RetrieveCollections(context.Context) (map[string][]uint32, error) {
	return f.collections, nil
}

type fakeHost struct {
	mu       sync.Mutex
	stored   []map[string]string
	presence []models.UserPresence
	lost     []string
}

func (h *fakeHost) AddGame(context.Context, models.Game) error { return nil }

func (h *fakeHost) UpdateUserPresence(_ context.Context, _ string, p models.UserPresence) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presence = append(h.presence, p)
	return nil
}

func (h *fakeHost) StoreCredentials(_ context.Context, creds map[string]string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stored = append(h.stored, creds)
	return nil
}

func (h *fakeHost) LostAuthentication(_ context.Context, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lost = append(h.lost, reason)
	return nil
}

func (h *fakeHost) storedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stored)
}

type publicChecker struct{}

func (publicChecker) CheckIsPublic(context.Context, string) (profile.Visibility, error) {
	return profile.Public, nil
}

type harness struct {
	backend *Backend
	caches  *cache.Set
	state   *storage.State
	host    *fakeHost
	session *fakeSession
}

func newHarness(t *testing.T, cfg Config, onRun func(*cache.Set) func(context.Context) error) *harness {
	t.Helper()
	h := &harness{
		caches: cache.NewSet(8),
		state:  storage.NewState(),
		host:   &fakeHost{},
	}
	h.session = newFakeSession(h.caches)
	if onRun != nil {
		h.session.onRun = onRun(h.caches)
	}
	h.backend = New(cfg, h.caches, h.state, protocol.NewQueues(),
		func() Session { return h.session }, publicChecker{}, h.host)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.backend.Shutdown(ctx)
	})
	return h
}

func storedCredentials() map[string]string {
	return map[string]string{
		cache.CredentialSteamID:         testSteamID,
		cache.CredentialAccountUsername: "gabe",
		cache.CredentialPersonaName:     "Gabe",
		cache.CredentialRefreshToken:    "token",
	}
}

func TestResumeSucceedsWhenIdentityInitializes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ResumeTimeout: 2 * time.Second}, func(c *cache.Set) func(context.Context) error {
		return func(context.Context) error {
			go func() {
				time.Sleep(50 * time.Millisecond)
				c.UserInfo.SetLogon(testSteamID, "token")
				c.UserInfo.SetAccountInfo(testSteamID, "Gabe")
			}()
			return errBlock
		}
	})

	res, err := h.backend.Authenticate(context.Background(), storedCredentials())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.Authentication == nil || res.Authentication.UserID != testSteamID || res.Authentication.UserName != "Gabe" {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.host.storedCount() != 1 {
		t.Errorf("stored credentials %d times, want 1", h.host.storedCount())
	}
}

func TestResumePropagatesRunLoopError(t *testing.T) {
	t.Parallel()

	runErr := models.Unrecognizedf("bad frame")
	h := newHarness(t, Config{ResumeTimeout: 2 * time.Second}, func(*cache.Set) func(context.Context) error {
		return func(context.Context) error { return runErr }
	})

	_, err := h.backend.Authenticate(context.Background(), storedCredentials())
	if !errors.Is(err, runErr) {
		t.Fatalf("err = %v, want %v", err, runErr)
	}
	if h.caches.UserInfo.HasIdentity() {
		t.Error("identity should be reset after failed resume")
	}
}

func TestResumeSilentCloseIsUnknown(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ResumeTimeout: 2 * time.Second}, func(*cache.Set) func(context.Context) error {
		return func(context.Context) error { return nil }
	})

	_, err := h.backend.Authenticate(context.Background(), storedCredentials())
	if !errors.Is(err, models.ErrUnknown) {
		t.Fatalf("err = %v, want ErrUnknown", err)
	}
}

func TestResumeTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ResumeTimeout: 50 * time.Millisecond}, nil)

	_, err := h.backend.Authenticate(context.Background(), storedCredentials())
	if !errors.Is(err, models.ErrBackendTimeout) {
		t.Fatalf("err = %v, want ErrBackendTimeout", err)
	}
	if h.caches.UserInfo.HasIdentity() {
		t.Error("identity should be reset after timeout")
	}
}

func TestAuthenticateWithoutCredentialsReturnsLoginStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	res, err := h.backend.Authenticate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !res.IsStep() {
		t.Fatalf("expected a login step, got %+v", res)
	}
}

func TestPassLoginCredentialsRejectsEmptyEndURI(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	_, err := h.backend.PassLoginCredentials(context.Background(), "", models.LoginCredentials{})
	if !errors.Is(err, models.ErrUnknown) {
		t.Fatalf("err = %v, want ErrUnknown", err)
	}
}

func TestFeaturesRequireAuthentication(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	ctx := context.Background()
	b := h.backend

	calls := map[string]func() error{
		"owned games": func() error { _, err := b.GetOwnedGames(ctx); return err },
		"subscriptions": func() error {
			_, err := b.GetSubscriptions(ctx)
			return err
		},
		"subscription games": func() error {
			_, err := b.GetSubscriptionGames(ctx, models.FamilySharingSubscription)
			return err
		},
		"achievements prepare": func() error { return b.PrepareAchievements(ctx, []string{"10"}) },
		"achievements":         func() error { _, err := b.GetUnlockedAchievements(ctx, "10"); return err },
		"game times prepare":   func() error { return b.PrepareGameTimes(ctx) },
		"game time":            func() error { _, err := b.GetGameTime(ctx, "10"); return err },
		"library prepare":      func() error { _, err := b.PrepareLibrarySettings(ctx); return err },
		"friends":              func() error { _, err := b.GetFriends(ctx); return err },
		"presence prepare":     func() error { _, err := b.PreparePresence(ctx, []string{testSteamID}); return err },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, models.ErrAuthenticationRequired) {
			t.Errorf("%s: err = %v, want ErrAuthenticationRequired", name, err)
		}
	}
}

// loggedIn returns a harness whose session is running with a known identity.
func loggedIn(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := newHarness(t, cfg, nil)
	h.backend.startRun()
	h.caches.UserInfo.SetLogon(testSteamID, "token")
	h.caches.UserInfo.SetAccountInfo(testSteamID, "Gabe")
	return h
}

func TestGetOwnedGamesOpensGateAndPersists(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{CatalogTimeout: time.Second})
	h.caches.Games.Update([]models.App{{AppID: 10, Title: "Ten"}, {AppID: 20, Title: "Twenty", Shared: true}}, true)

	games, err := h.backend.GetOwnedGames(context.Background())
	if err != nil {
		t.Fatalf("GetOwnedGames: %v", err)
	}
	want := []models.Game{models.OwnedGame(10, "Ten"), models.OwnedGame(20, "Twenty")}
	if !reflect.DeepEqual(games, want) {
		t.Errorf("games = %+v, want %+v", games, want)
	}
	if !h.caches.Games.Enumerated() {
		t.Error("catalog should be marked enumerated")
	}
	if _, ok := h.state.Get(storage.KeyGames); !ok {
		t.Error("games snapshot should be persisted")
	}

	h.caches.Games.Update([]models.App{{AppID: 30, Title: "Thirty"}}, false)
	if added := h.caches.Games.ConsumeAdded(); len(added) != 1 || added[0].AppID != 30 {
		t.Errorf("added = %+v, want app 30", added)
	}
}

func TestGetOwnedGamesTimesOut(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{CatalogTimeout: 30 * time.Millisecond})
	if _, err := h.backend.GetOwnedGames(context.Background()); !errors.Is(err, models.ErrBackendTimeout) {
		t.Fatalf("err = %v, want ErrBackendTimeout", err)
	}
}

func TestSubscriptions(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{CatalogTimeout: time.Second})
	h.caches.Games.Update([]models.App{{AppID: 10, Title: "Ten"}, {AppID: 20, Title: "Twenty", Shared: true}}, true)
	ctx := context.Background()

	subs, err := h.backend.GetSubscriptions(ctx)
	if err != nil {
		t.Fatalf("GetSubscriptions: %v", err)
	}
	if len(subs) != 1 || !subs[0].Owned || subs[0].SubscriptionName != models.FamilySharingSubscription {
		t.Errorf("subscriptions = %+v", subs)
	}

	games, err := h.backend.GetSubscriptionGames(ctx, models.FamilySharingSubscription)
	if err != nil {
		t.Fatalf("GetSubscriptionGames: %v", err)
	}
	if want := []models.SubscriptionGame{{GameID: "20", GameTitle: "Twenty"}}; !reflect.DeepEqual(games, want) {
		t.Errorf("games = %+v, want %+v", games, want)
	}

	if _, err := h.backend.GetSubscriptionGames(ctx, "Game Pass"); !errors.Is(err, models.ErrUnknown) {
		t.Errorf("unknown subscription err = %v, want ErrUnknown", err)
	}
}

func TestAchievementsImport(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{ImportTimeout: time.Second})
	ctx := context.Background()

	if err := h.backend.PrepareAchievements(ctx, []string{"10"}); err != nil {
		t.Fatalf("PrepareAchievements: %v", err)
	}
	got, err := h.backend.GetUnlockedAchievements(ctx, "10")
	if err != nil {
		t.Fatalf("GetUnlockedAchievements: %v", err)
	}
	want := []models.Achievement{
		{UnlockTime: 1700000000, AchievementName: "First Blood"},
		{UnlockTime: 1700000100, AchievementName: "   "},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("achievements = %+v, want %+v", got, want)
	}

	if got, _ := h.backend.GetUnlockedAchievements(ctx, "99"); len(got) != 0 {
		t.Errorf("unknown game achievements = %+v, want empty", got)
	}
	if err := h.backend.PrepareAchievements(ctx, []string{"abc"}); !errors.Is(err, models.ErrUnknown) {
		t.Errorf("invalid id err = %v, want ErrUnknown", err)
	}
}

func TestAchievementsImportInProgressRidesAlong(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{ImportTimeout: 5 * time.Second})
	if _, started := h.caches.Stats.BeginImport([]uint32{10}); !started {
		t.Fatal("BeginImport should start a cycle")
	}

	done := make(chan error, 1)
	go func() { done <- h.backend.PrepareAchievements(context.Background(), []string{"10"}) }()

	time.Sleep(20 * time.Millisecond)
	h.session.deliverStats(10)

	if err := <-done; err != nil {
		t.Fatalf("PrepareAchievements = %v, want nil", err)
	}
	if n := h.session.statsCalls.Load(); n != 0 {
		t.Errorf("refresh issued %d times while import in flight", n)
	}
}

func TestOverlappingPreparesShareOneRefresh(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prepare func(*Backend) error
		calls   func(*fakeSession) int32
		deliver func(*fakeSession)
	}{
		{
			name:    "achievements",
			prepare: func(b *Backend) error { return b.PrepareAchievements(context.Background(), []string{"10"}) },
			calls:   func(f *fakeSession) int32 { return f.statsCalls.Load() },
			deliver: func(f *fakeSession) { f.deliverStats(10) },
		},
		{
			name:    "game times",
			prepare: func(b *Backend) error { return b.PrepareGameTimes(context.Background()) },
			calls:   func(f *fakeSession) int32 { return f.timesCalls.Load() },
			deliver: func(f *fakeSession) { f.deliverTimes() },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := loggedIn(t, Config{ImportTimeout: 5 * time.Second})
			h.session.holdResponses.Store(true)

			done := make(chan error, 2)
			go func() { done <- tt.prepare(h.backend) }()
			waitFor(t, func() bool { return tt.calls(h.session) == 1 })
			go func() { done <- tt.prepare(h.backend) }()

			time.Sleep(50 * time.Millisecond)
			tt.deliver(h.session)

			for i := 0; i < 2; i++ {
				if err := <-done; err != nil {
					t.Errorf("prepare %d = %v, want nil", i, err)
				}
			}
			if n := tt.calls(h.session); n != 1 {
				t.Errorf("refresh issued %d times, want 1", n)
			}
		})
	}
}

func TestRideAlongGivingUpKeepsImportAlive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctx     func(*testing.T) context.Context
		wantErr error
	}{
		{
			name: "canceled",
			ctx: func(*testing.T) context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr: context.Canceled,
		},
		{
			name: "deadline",
			ctx: func(t *testing.T) context.Context {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
				t.Cleanup(cancel)
				return ctx
			},
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := loggedIn(t, Config{ImportTimeout: 5 * time.Second})
			h.session.holdResponses.Store(true)

			first := make(chan error, 1)
			go func() { first <- h.backend.PrepareAchievements(context.Background(), []string{"10"}) }()
			waitFor(t, func() bool { return h.session.statsCalls.Load() == 1 })

			err := h.backend.PrepareAchievements(tt.ctx(t), []string{"10"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ride-along err = %v, want %v", err, tt.wantErr)
			}
			if !h.caches.Stats.ImportInProgress() {
				t.Fatal("ride-along must not abandon the in-flight import")
			}

			h.session.deliverStats(10)
			select {
			case err := <-first:
				if err != nil {
					t.Fatalf("first caller = %v, want nil", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("first caller still waiting after the response arrived")
			}
		})
	}
}

func TestStartingCallerCanceledLeavesImportToOthers(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{ImportTimeout: 5 * time.Second})
	h.session.holdResponses.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- h.backend.PrepareGameTimes(ctx) }()
	waitFor(t, func() bool { return h.session.timesCalls.Load() == 1 })

	second := make(chan error, 1)
	go func() { second <- h.backend.PrepareGameTimes(context.Background()) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("starting caller err = %v, want context.Canceled", err)
	}

	h.session.deliverTimes()
	if err := <-second; err != nil {
		t.Fatalf("ride-along = %v, want nil", err)
	}
	if n := h.session.timesCalls.Load(); n != 1 {
		t.Errorf("refresh issued %d times, want 1", n)
	}
}

func TestLateResponseSatisfiesLaterCall(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{ImportTimeout: time.Second})
	h.session.holdResponses.Store(true)
	if _, started := h.caches.Stats.BeginImport([]uint32{10}); !started {
		t.Fatal("BeginImport should start a cycle")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := h.backend.PrepareAchievements(ctx, []string{"10"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("early caller err = %v, want context.DeadlineExceeded", err)
	}

	later := make(chan error, 1)
	go func() { later <- h.backend.PrepareAchievements(context.Background(), []string{"10"}) }()

	time.Sleep(20 * time.Millisecond)
	h.session.deliverStats(10)

	if err := <-later; err != nil {
		t.Fatalf("later caller = %v, want nil", err)
	}
	if n := h.session.statsCalls.Load(); n != 0 {
		t.Errorf("refresh issued %d times, want the in-flight one reused", n)
	}
	got, _ := h.backend.GetUnlockedAchievements(context.Background(), "10")
	if len(got) != 2 {
		t.Errorf("achievements = %+v, want the late response", got)
	}
}

func TestRideAlongTimeoutKeepsImportAlive(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{ImportTimeout: 30 * time.Millisecond})
	cycle, _ := h.caches.Stats.BeginImport([]uint32{10})

	err := h.backend.PrepareAchievements(context.Background(), []string{"10"})
	if !errors.Is(err, models.ErrBackendTimeout) {
		t.Fatalf("err = %v, want ErrBackendTimeout", err)
	}
	if !h.caches.Stats.ImportInProgress() {
		t.Fatal("ride-along timeout must not abandon the in-flight import")
	}

	h.session.deliverStats(10)
	if !cycle.IsSet() {
		t.Fatal("late response should complete the in-flight import")
	}
}

func TestStartingCallerTimeoutAbandonsImport(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{ImportTimeout: 30 * time.Millisecond})
	h.session.holdResponses.Store(true)

	err := h.backend.PrepareAchievements(context.Background(), []string{"10"})
	if !errors.Is(err, models.ErrBackendTimeout) {
		t.Fatalf("err = %v, want ErrBackendTimeout", err)
	}
	if h.caches.Stats.ImportInProgress() {
		t.Fatal("timed out import should be abandoned by the caller that started it")
	}

	h.session.holdResponses.Store(false)
	if err := h.backend.PrepareAchievements(context.Background(), []string{"10"}); err != nil {
		t.Fatalf("retry = %v, want nil", err)
	}
	if n := h.session.statsCalls.Load(); n != 2 {
		t.Errorf("refresh issued %d times, want 2", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGameTimes(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{ImportTimeout: time.Second})
	ctx := context.Background()

	if err := h.backend.PrepareGameTimes(ctx); err != nil {
		t.Fatalf("PrepareGameTimes: %v", err)
	}

	tests := []struct {
		id       string
		played   *int64
		lastSeen *int64
	}{
		{"10", ptr(int64(120)), ptr(int64(1700000000))},
		{"20", ptr(int64(5)), nil},
		{"30", nil, nil},
	}
	for _, tt := range tests {
		got, err := h.backend.GetGameTime(ctx, tt.id)
		if err != nil {
			t.Fatalf("GetGameTime(%s): %v", tt.id, err)
		}
		want := models.GameTime{GameID: tt.id, TimePlayed: tt.played, LastPlayedTime: tt.lastSeen}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("GetGameTime(%s) = %+v, want %+v", tt.id, got, want)
		}
	}
}

func ptr[T any](v T) *T { return &v }

func TestLibrarySettings(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{})
	h.session.collections = map[string][]uint32{
		"Favorites": {10, 20},
		"RPG":       {10},
		"HIDDEN":    {20},
	}
	collections, err := h.backend.PrepareLibrarySettings(context.Background())
	if err != nil {
		t.Fatalf("PrepareLibrarySettings: %v", err)
	}

	tests := []struct {
		name        string
		id          string
		collections map[string][]uint32
		want        models.GameLibrarySettings
	}{
		{"tagged", "10", collections, models.GameLibrarySettings{GameID: "10", Tags: []string{"Favorites", "RPG"}, Hidden: ptr(false)}},
		{"hidden", "20", collections, models.GameLibrarySettings{GameID: "20", Tags: []string{"Favorites"}, Hidden: ptr(true)}},
		{"untagged", "30", collections, models.GameLibrarySettings{GameID: "30", Tags: []string{}, Hidden: ptr(false)}},
		{"no context", "10", nil, models.GameLibrarySettings{GameID: "10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.backend.GetLibrarySettings(tt.id, tt.collections)
			if err != nil {
				t.Fatalf("GetLibrarySettings: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGetFriends(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{})
	h.session.friends = []string{"2", "1"}
	h.session.infos = map[string]models.FriendInfo{
		"1": {Name: "Alice", AvatarHash: "abcdef0123"},
		"2": {Name: "Bob", AvatarHash: noAvatarSet},
	}
	h.session.nicknames = map[string]string{"2": "Bobby"}

	got, err := h.backend.GetFriends(context.Background())
	if err != nil {
		t.Fatalf("GetFriends: %v", err)
	}
	want := []models.UserInfo{
		{
			UserID:      "1",
			UserName:    "Alice",
			AvatarURL:   "https://steamcdn-a.akamaihd.net/steamcommunity/public/images/avatars/ab/abcdef0123_full.jpg",
			ProfileLink: "https://steamcommunity.com/profiles/1",
		},
		{
			UserID:      "2",
			UserName:    "Bob (Bobby)",
			AvatarURL:   "https://steamcdn-a.akamaihd.net/steamcommunity/public/images/avatars/fe/" + defaultAvatarHash + "_full.jpg",
			ProfileLink: "https://steamcommunity.com/profiles/2",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("friends = %+v, want %+v", got, want)
	}
}

func TestUserPresence(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{})
	h.session.infos = map[string]models.FriendInfo{
		"1": {State: models.PersonaOnline, GameID: 570, GameName: "Dota 2",
			RichPresence: map[string]string{"status": "In match", "steam_display": "Ranked: 12 min"}},
	}
	infos, err := h.backend.PreparePresence(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("PreparePresence: %v", err)
	}

	got, err := h.backend.GetUserPresence("1", infos)
	if err != nil {
		t.Fatalf("GetUserPresence: %v", err)
	}
	want := models.UserPresence{
		PresenceState: models.PresenceOnline,
		GameID:        "570",
		GameTitle:     "Dota 2",
		InGameStatus:  "In match",
		FullStatus:    "Ranked: 12 min",
	}
	if got != want {
		t.Errorf("presence = %+v, want %+v", got, want)
	}

	if _, err := h.backend.GetUserPresence("2", infos); !errors.Is(err, models.ErrUnknown) {
		t.Errorf("non-friend err = %v, want ErrUnknown", err)
	}
}

func TestPresenceFromInfoStates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state models.PersonaState
		want  models.PresenceState
	}{
		{models.PersonaOffline, models.PresenceOffline},
		{models.PersonaInvisible, models.PresenceOffline},
		{models.PersonaAway, models.PresenceAway},
		{models.PersonaSnooze, models.PresenceAway},
		{models.PersonaOnline, models.PresenceOnline},
		{models.PersonaBusy, models.PresenceOnline},
		{models.PersonaLookingToPlay, models.PresenceOnline},
		{models.PersonaState(42), models.PresenceUnknown},
	}
	for _, tt := range tests {
		if got := presenceFromInfo(models.FriendInfo{State: tt.state}).PresenceState; got != tt.want {
			t.Errorf("state %d: got %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestPresenceUpdatesForwardedToHost(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{})
	h.caches.Friends.SetFriends([]string{"1"})
	h.caches.Friends.UpdateInfo("1", models.FriendInfo{State: models.PersonaAway})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.host.mu.Lock()
		n := len(h.host.presence)
		h.host.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("presence update was not forwarded")
}

func TestShutdownStopsRunLoop(t *testing.T) {
	t.Parallel()

	h := loggedIn(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.backend.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	h.backend.runMu.Lock()
	r := h.backend.run
	h.backend.runMu.Unlock()
	if !r.exited() {
		t.Error("run loop still active after shutdown")
	}
}
