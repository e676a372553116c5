// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	steamIDKey       contextKey = "steam_id"
)

// GenerateCorrelationID returns the first 8 characters of a random UUID.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID attaches a correlation ID to ctx.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID attaches a freshly generated correlation ID to ctx.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation ID or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithSteamID attaches the authenticated account ID to ctx so that
// every event logged through Ctx carries it.
func ContextWithSteamID(ctx context.Context, steamID string) context.Context {
	return context.WithValue(ctx, steamIDKey, steamID)
}

// SteamIDFromContext returns the account ID or "".
func SteamIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(steamIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with the context's correlation and
// account IDs.
//
//	logging.Ctx(ctx).Info().Msg("owned games requested")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	if id := SteamIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("steam_id", id)
	}
	l := logCtx.Logger()
	return &l
}

// WithComponent creates a child logger tagged with a component field.
//
//	log := logging.WithComponent("scheduler")
//	log.Info().Int("games", n).Msg("forwarding new games")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
