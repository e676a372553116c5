// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package services

import (
	"context"
	"time"

	"github.com/tomtom215/steambridge/internal/logging"
)

// Ticker is driven once per interval.
type Ticker interface {
	Tick(ctx context.Context)
}

// TickService drives the reconciliation tick. Tick never blocks on game
// forwarding, so a slow host does not delay the next tick.
type TickService struct {
	ticker   Ticker
	interval time.Duration
}

// NewTickService calls t.Tick every interval.
func NewTickService(t Ticker, interval time.Duration) *TickService {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickService{ticker: t, interval: interval}
}

// Serve implements suture.Service.
func (s *TickService) Serve(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.ticker.Tick(ctx)
		}
	}
}

func (s *TickService) String() string {
	return "session-tick"
}

// Flusher persists modified state.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushFunc adapts a function to Flusher.
type FlushFunc func(ctx context.Context) error

// Flush calls f.
func (f FlushFunc) Flush(ctx context.Context) error {
	return f(ctx)
}

// FlushService flushes state every interval and once more on shutdown.
// Flush errors are logged and retried on the next interval.
type FlushService struct {
	flusher  Flusher
	interval time.Duration
}

// NewFlushService calls f.Flush every interval.
func NewFlushService(f Flusher, interval time.Duration) *FlushService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &FlushService{flusher: f, interval: interval}
}

// Serve implements suture.Service.
func (s *FlushService) Serve(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.flusher.Flush(finalCtx); err != nil {
				logging.Error().Err(err).Msg("Final state flush failed")
			}
			cancel()
			return ctx.Err()
		case <-t.C:
			if err := s.flusher.Flush(ctx); err != nil {
				logging.Warn().Err(err).Msg("State flush failed, will retry")
			}
		}
	}
}

func (s *FlushService) String() string {
	return "state-flush"
}
