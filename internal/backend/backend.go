// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package backend is the session orchestrator. It owns the caches, starts
// the protocol session's run loop, drives login and resume, answers feature
// queries from the caches, and reconciles with the host on every tick.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/steambridge/internal/auth"
	"github.com/tomtom215/steambridge/internal/cache"
	"github.com/tomtom215/steambridge/internal/host"
	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/models"
	"github.com/tomtom215/steambridge/internal/profile"
	"github.com/tomtom215/steambridge/internal/protocol"
	"github.com/tomtom215/steambridge/internal/storage"
	syncer "github.com/tomtom215/steambridge/internal/sync"
	"github.com/tomtom215/steambridge/internal/validation"
)

// Session is the protocol session as seen by the orchestrator.
type Session interface {
	Run(ctx context.Context) error
	Close()
	WaitClosed(ctx context.Context) error
	OnAuthenticationLost(fn func(reason string))

	RefreshGameStats(ctx context.Context, appIDs []uint32) error
	RefreshGameTimes(ctx context.Context) error
	GetFriends(ctx context.Context) ([]string, error)
	GetFriendsInfo(ctx context.Context, ids []string) (map[string]models.FriendInfo, error)
	GetFriendsNicknames(ctx context.Context) (map[string]string, error)
	RetrieveCollections(ctx context.Context) (map[string][]uint32, error)
}

// SessionFactory builds a fresh session. A session runs once, so every
// login or resume attempt after a run loop exit needs a new one.
type SessionFactory func() Session

// Config holds the orchestrator's bounds.
type Config struct {
	CatalogTimeout time.Duration
	ResumeTimeout  time.Duration
	ImportTimeout  time.Duration
	Auth           auth.Config
	Sync           syncer.Config
}

// Backend is one bridged account session.
type Backend struct {
	cfg        Config
	caches     *cache.Set
	state      *storage.State
	host       host.Host
	newSession SessionFactory
	auth       *auth.Controller
	scheduler  *syncer.Scheduler

	runMu sync.Mutex
	run   *runLoop

	presenceCancel context.CancelFunc
	presenceDone   chan struct{}
}

// runLoop tracks one session's Run goroutine.
type runLoop struct {
	session Session
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func (r *runLoop) exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// New creates the orchestrator. queues must be the queue pair the sessions
// built by newSession read from. The games snapshot in state, if any, is
// loaded into the catalog.
func New(cfg Config, caches *cache.Set, state *storage.State, queues *protocol.Queues,
	newSession SessionFactory, profiles profile.Checker, h host.Host) *Backend {
	if cfg.CatalogTimeout <= 0 {
		cfg.CatalogTimeout = 90 * time.Second
	}
	if cfg.ResumeTimeout <= 0 {
		cfg.ResumeTimeout = 30 * time.Second
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = 10 * time.Minute
	}

	b := &Backend{
		cfg:        cfg,
		caches:     caches,
		state:      state,
		host:       h,
		newSession: newSession,
		scheduler:  syncer.NewScheduler(cfg.Sync, caches, state, h),
	}
	b.auth = auth.NewController(cfg.Auth, caches.UserInfo, queues, profiles, b.storeCredentials)

	caches.Stats.SetStaleAfter(cfg.ImportTimeout)
	caches.Times.SetStaleAfter(cfg.ImportTimeout)

	if snapshot, ok := state.Get(storage.KeyGames); ok {
		if err := caches.Games.Loads(snapshot); err != nil {
			logging.Warn().Err(err).Msg("Ignoring unreadable games snapshot")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.presenceCancel = cancel
	b.presenceDone = make(chan struct{})
	go b.forwardPresence(ctx)

	return b
}

// Authenticated reports whether the session holds an identity.
func (b *Backend) Authenticated() bool {
	return b.caches.UserInfo.HasIdentity()
}

// Caches exposes the session caches.
func (b *Backend) Caches() *cache.Set {
	return b.caches
}

// startRun starts a run loop unless one is active and returns it.
func (b *Backend) startRun() *runLoop {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.run != nil && !b.run.exited() {
		return b.run
	}

	session := b.newSession()
	session.OnAuthenticationLost(b.authenticationLost)

	ctx, cancel := context.WithCancel(context.Background())
	r := &runLoop{session: session, cancel: cancel, done: make(chan struct{})}
	go func() {
		r.err = session.Run(ctx)
		close(r.done)
	}()
	b.run = r
	return r
}

func (b *Backend) currentSession() (Session, error) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.run == nil {
		return nil, models.ErrAuthenticationRequired
	}
	return b.run.session, nil
}

// cancelRun cancels r and waits for Run to return. Cancellation is the
// expected outcome and is not reported.
func cancelRun(ctx context.Context, r *runLoop) {
	r.cancel()
	select {
	case <-r.done:
		if r.err != nil && !errors.Is(r.err, context.Canceled) {
			logging.Ctx(ctx).Warn().Err(r.err).Msg("Run loop ended with error during cancellation")
		}
	case <-ctx.Done():
	}
}

// Authenticate starts a login. Without stored credentials it starts the run
// loop and returns the login page step. With stored credentials it resumes
// the session, see resume.
func (b *Backend) Authenticate(ctx context.Context, stored map[string]string) (models.AuthResult, error) {
	if stored == nil {
		b.startRun()
		return b.auth.Start(), nil
	}
	return b.resume(ctx, stored)
}

// resume races identity readiness against the run loop exiting.
func (b *Backend) resume(ctx context.Context, stored map[string]string) (models.AuthResult, error) {
	b.caches.UserInfo.FromCredentials(stored)
	r := b.startRun()

	timer := time.NewTimer(b.cfg.ResumeTimeout)
	defer timer.Stop()

	select {
	case <-b.caches.UserInfo.Initialized().Done():
		b.storeCredentials(ctx, b.caches.UserInfo.ToCredentials())
		userID := b.caches.UserInfo.SteamID()
		logging.Ctx(ctx).Info().Str("steam_id", userID).Msg("Resumed session from stored credentials")
		return models.Authenticated(userID, b.caches.UserInfo.PersonaName()), nil

	case <-r.done:
		b.caches.UserInfo.Reset()
		if r.err != nil {
			logging.Ctx(ctx).Error().Err(r.err).Msg("Unable to authenticate to the network")
			return models.AuthResult{}, r.err
		}
		return models.AuthResult{}, models.Unknownf("unexpected, silent websocket close")

	case <-timer.C:
		logging.Ctx(ctx).Warn().Dur("timeout", b.cfg.ResumeTimeout).Msg("Failed to log on within timeout")
		cancelRun(ctx, r)
		b.caches.UserInfo.Reset()
		return models.AuthResult{}, models.Timeoutf("logon not confirmed within %s", b.cfg.ResumeTimeout)

	case <-ctx.Done():
		cancelRun(context.Background(), r)
		b.caches.UserInfo.Reset()
		return models.AuthResult{}, ctx.Err()
	}
}

// PassLoginCredentials advances the interactive login.
func (b *Backend) PassLoginCredentials(ctx context.Context, _ string, creds models.LoginCredentials) (models.AuthResult, error) {
	if verr := validation.ValidateStruct(creds); verr != nil {
		return models.AuthResult{}, models.Unknownf("invalid login credentials: %s", verr.Error())
	}
	b.startRun()
	return b.auth.PassLoginCredentials(ctx, creds)
}

func (b *Backend) storeCredentials(ctx context.Context, creds map[string]string) {
	if err := b.host.StoreCredentials(ctx, creds); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to store credentials")
		return
	}
	b.caches.UserInfo.ClearChanged()
}

func (b *Backend) authenticationLost(reason string) {
	ctx := context.Background()
	if err := b.host.LostAuthentication(ctx, reason); err != nil {
		logging.Warn().Err(err).Msg("Failed to report lost authentication")
	}
}

func (b *Backend) forwardPresence(ctx context.Context) {
	defer close(b.presenceDone)
	updates := b.caches.Friends.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if err := b.host.UpdateUserPresence(ctx, u.UserID, presenceFromInfo(u.Info)); err != nil {
				logging.Warn().Err(err).Str("user_id", u.UserID).Msg("Failed to forward presence")
			}
		}
	}
}

// Tick runs one reconciliation step. It never blocks on game forwarding.
func (b *Backend) Tick(ctx context.Context) {
	b.scheduler.Tick(ctx)
}

// Scheduler exposes the reconciliation scheduler.
func (b *Backend) Scheduler() *syncer.Scheduler {
	return b.scheduler
}

// Shutdown closes the session and stops every background task, waiting for
// each to acknowledge. Expected cancellations are not reported.
func (b *Backend) Shutdown(ctx context.Context) error {
	var errs []error

	b.runMu.Lock()
	r := b.run
	b.runMu.Unlock()

	if r != nil {
		r.session.Close()
		if err := r.session.WaitClosed(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for session close: %w", err))
		}
	}

	if err := b.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}

	if r != nil {
		cancelRun(ctx, r)
	}

	b.presenceCancel()
	select {
	case <-b.presenceDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("stop presence forwarding: %w", ctx.Err()))
	}

	return errors.Join(errs...)
}
