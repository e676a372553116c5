// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package sync reconciles the session with the host on a periodic tick:
// newly owned games are forwarded and changed credentials are persisted.
package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/tomtom215/steambridge/internal/cache"
	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/metrics"
	"github.com/tomtom215/steambridge/internal/models"
	"github.com/tomtom215/steambridge/internal/storage"
)

// Host is the subset of the host the scheduler reports to.
type Host interface {
	AddGame(ctx context.Context, game models.Game) error
	StoreCredentials(ctx context.Context, creds map[string]string) error
}

// Config tunes forwarding.
type Config struct {
	// BatchSize is the number of games forwarded between pauses. Default 50.
	BatchSize int
	// Pause is the wait after each batch. Default 5s.
	Pause time.Duration
}

// Scheduler runs one reconciliation step per Tick. Tick never blocks on
// forwarding: games are handed to a background task, and a new task starts
// only once the previous one has finished.
type Scheduler struct {
	caches *cache.Set
	state  *storage.State
	host   Host

	batchSize int
	pause     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error

	mu         gosync.Mutex
	forwarding bool
	stopped    bool
	wg         gosync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler over caches and state.
func NewScheduler(cfg Config, caches *cache.Set, state *storage.State, host Host) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Pause <= 0 {
		cfg.Pause = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		caches:    caches,
		state:     state,
		host:      host,
		batchSize: cfg.BatchSize,
		pause:     cfg.Pause,
		sleep:     sleepContext,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Tick runs one reconciliation step.
func (s *Scheduler) Tick(ctx context.Context) {
	s.startForwarding()
	s.storeChangedCredentials(ctx)
}

func (s *Scheduler) startForwarding() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.forwarding || !s.caches.Games.Enumerated() {
		return
	}

	added := s.caches.Games.ConsumeAdded()
	if len(added) == 0 {
		return
	}

	snapshot, err := s.caches.Games.Dump()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to serialize games snapshot")
	} else {
		s.state.Set(storage.KeyGames, snapshot)
	}

	s.forwarding = true
	s.wg.Add(1)
	go s.forward(s.ctx, added)
}

func (s *Scheduler) forward(ctx context.Context, apps []models.App) {
	defer func() {
		s.mu.Lock()
		s.forwarding = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	logging.Info().Int("count", len(apps)).Msg("Forwarding new games")

	for i, app := range apps {
		if ctx.Err() != nil {
			logging.Info().Int("remaining", len(apps)-i).Msg("Game forwarding canceled")
			return
		}

		if err := s.host.AddGame(ctx, models.OwnedGame(app.AppID, app.Title)); err != nil {
			logging.Warn().Err(err).Uint32("app_id", app.AppID).Msg("Failed to forward game")
		} else {
			metrics.GamesForwarded.Inc()
		}

		if i%s.batchSize == s.batchSize-1 {
			metrics.ForwardPauses.Inc()
			if err := s.sleep(ctx, s.pause); err != nil {
				return
			}
		}
	}
}

func (s *Scheduler) storeChangedCredentials(ctx context.Context) {
	creds, changed := s.caches.UserInfo.TakeChanged()
	if !changed {
		return
	}
	if err := s.host.StoreCredentials(ctx, creds); err != nil {
		logging.Warn().Err(err).Msg("Failed to store credentials, retrying next tick")
		s.caches.UserInfo.MarkChanged()
	}
}

// Forwarding reports whether a forwarding task is running.
func (s *Scheduler) Forwarding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwarding
}

// Wait blocks until the running forwarding task, if any, has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stop cancels forwarding and waits for the task to acknowledge, or for ctx.
// Later ticks only persist credentials.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
