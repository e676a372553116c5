// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package host delivers session output to the client application: newly
// discovered games, friend presence changes, credentials to persist and the
// loss of authentication.
//
// EventHost persists credentials locally and publishes everything else as
// Watermill messages, on NATS JetStream in production and on an in-process
// channel when no broker is configured.
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/steambridge/internal/breaker"
	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/metrics"
	"github.com/tomtom215/steambridge/internal/models"
	"github.com/tomtom215/steambridge/internal/storage"
)

// Host receives session output.
type Host interface {
	AddGame(ctx context.Context, game models.Game) error
	UpdateUserPresence(ctx context.Context, userID string, presence models.UserPresence) error
	StoreCredentials(ctx context.Context, creds map[string]string) error
	LostAuthentication(ctx context.Context, reason string) error
}

// CredentialStore persists the identity record.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, creds map[string]string) error
	DeleteCredentials(ctx context.Context) error
}

// Topic suffixes, appended to the configured prefix.
const (
	TopicGameAdded        = "games.added"
	TopicPresenceUpdated  = "presence.updated"
	TopicCredentialsSaved = "credentials.stored"
	TopicAuthLost         = "auth.lost"
)

// GameAddedEvent announces a game the host has not seen yet.
type GameAddedEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Game      models.Game `json:"game"`
}

// PresenceEvent carries a friend's new presence.
type PresenceEvent struct {
	Timestamp time.Time           `json:"timestamp"`
	UserID    string              `json:"user_id"`
	Presence  models.UserPresence `json:"presence"`
}

// CredentialsStoredEvent announces a credentials update. The secrets
// themselves never leave the local store.
type CredentialsStoredEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SteamID   string    `json:"steam_id"`
}

// AuthLostEvent announces that the session must be re-authenticated.
type AuthLostEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// EventHost implements Host on a Watermill publisher.
type EventHost struct {
	publisher message.Publisher
	prefix    string
	creds     CredentialStore
	breaker   *breaker.Breaker
	outbox    Outbox
	outboxCfg OutboxConfig
	local     Broadcaster
}

// Broadcaster mirrors events to local listeners.
type Broadcaster interface {
	Broadcast(msgType string, data []byte)
}

// WithBroadcaster mirrors every published event to b, whatever the broker
// outcome.
func (h *EventHost) WithBroadcaster(b Broadcaster) *EventHost {
	h.local = b
	return h
}

// NewEventHost publishes on pub under topics prefixed with prefix.
func NewEventHost(pub message.Publisher, prefix string, creds CredentialStore) *EventHost {
	return &EventHost{
		publisher: pub,
		prefix:    prefix,
		creds:     creds,
		breaker:   breaker.New("host-events", breaker.Settings{}),
	}
}

// Topic returns the full topic name for suffix.
func (h *EventHost) Topic(suffix string) string {
	if h.prefix == "" {
		return suffix
	}
	return h.prefix + "." + suffix
}

// AddGame publishes a game added event.
func (h *EventHost) AddGame(ctx context.Context, game models.Game) error {
	return h.publish(ctx, TopicGameAdded, GameAddedEvent{Timestamp: time.Now().UTC(), Game: game}, true)
}

// UpdateUserPresence publishes a presence event.
func (h *EventHost) UpdateUserPresence(ctx context.Context, userID string, presence models.UserPresence) error {
	return h.publish(ctx, TopicPresenceUpdated, PresenceEvent{
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Presence:  presence,
	}, false)
}

// StoreCredentials saves creds and announces the update.
func (h *EventHost) StoreCredentials(ctx context.Context, creds map[string]string) error {
	if err := h.creds.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	metrics.CredentialsStored.Inc()
	return h.publish(ctx, TopicCredentialsSaved, CredentialsStoredEvent{
		Timestamp: time.Now().UTC(),
		SteamID:   creds["steam_id"],
	}, false)
}

// LostAuthentication forgets stored credentials and announces the loss.
func (h *EventHost) LostAuthentication(ctx context.Context, reason string) error {
	if err := h.creds.DeleteCredentials(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to delete stored credentials")
	}
	return h.publish(ctx, TopicAuthLost, AuthLostEvent{Timestamp: time.Now().UTC(), Reason: reason}, true)
}

// publish sends one event. A durable event that cannot be published is
// queued in the outbox, when one is configured, and reported as delivered.
func (h *EventHost) publish(ctx context.Context, suffix string, payload interface{}, durable bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize %s event: %w", suffix, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}
	metadata := map[string]string{}
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		metadata["correlation_id"] = cid
	}

	if h.local != nil {
		h.local.Broadcast(suffix, data)
	}

	topic := h.Topic(suffix)
	err = h.send(ctx, id.String(), topic, data, metadata)
	if err == nil || !durable || h.outbox == nil {
		return err
	}

	queueErr := h.outbox.AppendOutbox(ctx, storage.OutboxEntry{
		ID:        id.String(),
		Topic:     topic,
		Payload:   data,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
		LastError: err.Error(),
	}, h.outboxCfg.MaxAge)
	if queueErr != nil {
		return fmt.Errorf("%w (outbox: %v)", err, queueErr)
	}
	metrics.OutboxEvents.WithLabelValues("queued").Inc()
	logging.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("Event queued for redelivery")
	return nil
}

func (h *EventHost) send(ctx context.Context, id, topic string, data []byte, metadata map[string]string) error {
	msg := message.NewMessage(id, data)
	msg.SetContext(ctx)
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}

	_, err := h.breaker.Execute(func() (interface{}, error) {
		return nil, h.publisher.Publish(topic, msg)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (h *EventHost) Close() error {
	return h.publisher.Close()
}
