// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/metrics"
	"github.com/tomtom215/steambridge/internal/storage"
)

// Outbox persists events the broker did not accept.
type Outbox interface {
	AppendOutbox(ctx context.Context, e storage.OutboxEntry, ttl time.Duration) error
	PendingOutbox(ctx context.Context, limit int) ([]storage.OutboxEntry, error)
	RecordOutboxAttempt(ctx context.Context, id, lastError string) (storage.OutboxEntry, error)
	DeleteOutbox(ctx context.Context, id string) error
}

// OutboxConfig bounds redelivery.
type OutboxConfig struct {
	// MaxAttempts is the number of failed redeliveries before an entry is
	// dropped. Default 20.
	MaxAttempts int
	// MaxAge is the entry time to live. Zero keeps entries until delivered
	// or dropped.
	MaxAge time.Duration
	// BatchSize caps entries per redelivery pass. Default 100.
	BatchSize int
}

// WithOutbox enables durable delivery of game and auth-lost events.
// Presence and credential announcements are not queued: a stale copy has no
// value once newer state exists.
func (h *EventHost) WithOutbox(o Outbox, cfg OutboxConfig) *EventHost {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	h.outbox = o
	h.outboxCfg = cfg
	return h
}

// RedeliverPending publishes queued events oldest first and returns how many
// were delivered. It stops at the first failure so a down broker costs one
// attempt per pass.
func (h *EventHost) RedeliverPending(ctx context.Context) (int, error) {
	if h.outbox == nil {
		return 0, nil
	}

	entries, err := h.outbox.PendingOutbox(ctx, h.outboxCfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}

	delivered := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		sendErr := h.send(ctx, e.ID, e.Topic, e.Payload, e.Metadata)
		if sendErr == nil {
			if err := h.outbox.DeleteOutbox(ctx, e.ID); err != nil {
				return delivered, fmt.Errorf("delete delivered entry %s: %w", e.ID, err)
			}
			delivered++
			metrics.OutboxEvents.WithLabelValues("redelivered").Inc()
			continue
		}

		updated, err := h.outbox.RecordOutboxAttempt(ctx, e.ID, sendErr.Error())
		if errors.Is(err, storage.ErrOutboxEntryNotFound) {
			continue
		}
		if err != nil {
			return delivered, fmt.Errorf("record attempt for %s: %w", e.ID, err)
		}
		if updated.Attempts >= h.outboxCfg.MaxAttempts {
			if err := h.outbox.DeleteOutbox(ctx, e.ID); err != nil {
				return delivered, fmt.Errorf("drop entry %s: %w", e.ID, err)
			}
			metrics.OutboxEvents.WithLabelValues("expired").Inc()
			logging.Error().
				Str("id", e.ID).
				Str("topic", e.Topic).
				Int("attempts", updated.Attempts).
				Msg("Dropping event after repeated delivery failures")
		}
		return delivered, sendErr
	}

	if delivered > 0 {
		logging.Info().Int("delivered", delivered).Msg("Redelivered queued events")
	}
	return delivered, nil
}
