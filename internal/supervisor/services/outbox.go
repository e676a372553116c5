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

// Redeliverer retries events the broker did not accept.
type Redeliverer interface {
	RedeliverPending(ctx context.Context) (int, error)
}

// OutboxService runs a redelivery pass every interval and once at start, so
// events queued before a restart go out as soon as the broker is reachable.
type OutboxService struct {
	redeliverer Redeliverer
	interval    time.Duration
}

// NewOutboxService calls r.RedeliverPending every interval.
func NewOutboxService(r Redeliverer, interval time.Duration) *OutboxService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &OutboxService{redeliverer: r, interval: interval}
}

// Serve implements suture.Service.
func (s *OutboxService) Serve(ctx context.Context) error {
	s.pass(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.pass(ctx)
		}
	}
}

func (s *OutboxService) pass(ctx context.Context) {
	if _, err := s.redeliverer.RedeliverPending(ctx); err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Msg("Event redelivery failed, will retry")
	}
}

func (s *OutboxService) String() string {
	return "event-outbox"
}
