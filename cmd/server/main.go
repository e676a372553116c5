// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package main is the entry point for the Steambridge server.
//
// Steambridge keeps one game network account session alive on behalf of a
// host application: it logs in (interactively or from stored credentials),
// serves the account's library, achievements, playtime, friends and presence
// over a local HTTP API, and forwards newly acquired games to the host as
// events.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, config file, environment (Koanf v2)
//  2. Storage: BadgerDB state blobs and stored credentials
//  3. Events: NATS JetStream publisher (external or embedded), or an
//     in-process channel
//  4. Session: connection manager directory, protocol session factory
//  5. Backend: login controller, caches, sync scheduler
//  6. Supervisor tree: state flush, event outbox, session tick, WebSocket
//     hub, HTTP API
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervisor tree, log the session off, flush
// state and close storage.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	_ "github.com/tomtom215/steambridge/docs" // Swagger docs served at /swagger
	"github.com/tomtom215/steambridge/internal/api"
	"github.com/tomtom215/steambridge/internal/auth"
	"github.com/tomtom215/steambridge/internal/backend"
	"github.com/tomtom215/steambridge/internal/cache"
	"github.com/tomtom215/steambridge/internal/config"
	"github.com/tomtom215/steambridge/internal/host"
	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/profile"
	"github.com/tomtom215/steambridge/internal/protocol"
	"github.com/tomtom215/steambridge/internal/storage"
	"github.com/tomtom215/steambridge/internal/supervisor"
	"github.com/tomtom215/steambridge/internal/supervisor/services"
	syncer "github.com/tomtom215/steambridge/internal/sync"
	"github.com/tomtom215/steambridge/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Steambridge stopped with error")
	}
}

//nolint:gocyclo // sequential setup steps
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().Msg("Starting Steambridge with supervisor tree")

	store, err := storage.Open(cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	encryptor, err := storage.NewCredentialEncryptor(cfg.Storage.CredentialKey)
	if err != nil {
		return fmt.Errorf("credential encryption: %w", err)
	}
	if encryptor != nil {
		store.SetEncryptor(encryptor)
		logging.Info().Msg("Stored refresh tokens are encrypted at rest")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state, err := store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	stored, err := store.LoadCredentials(ctx)
	switch {
	case errors.Is(err, storage.ErrNoCredentials):
		stored = nil
	case err != nil:
		logging.Warn().Err(err).Msg("Ignoring unreadable stored credentials")
		stored = nil
	}

	publisher, embedded, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	if embedded != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := embedded.Shutdown(shutdownCtx); err != nil {
				logging.Error().Err(err).Msg("Error stopping embedded NATS server")
			}
		}()
	}
	hub := websocket.NewHub(256)
	eventHost := host.NewEventHost(publisher, cfg.Events.TopicPrefix, store).
		WithOutbox(store, host.OutboxConfig{
			MaxAttempts: cfg.Events.OutboxMaxAttempts,
			MaxAge:      cfg.Events.OutboxMaxAge,
		}).
		WithBroadcaster(hub)
	defer func() {
		if err := eventHost.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event publisher")
		}
	}()

	caches := cache.NewSet(cfg.Cache.PresenceBuffer)
	queues := protocol.NewQueues()
	machineID := protocol.MachineID(state)

	var servers protocol.ServerLister = protocol.StaticServers(cfg.Network.Servers)
	if cfg.Network.DirectoryURL != "" {
		servers = protocol.NewDirectory(cfg.Network.DirectoryURL, cfg.Network.Servers, cfg.Network.DialTimeout)
	}
	sessionCfg := protocol.Config{
		Servers:        servers,
		UseTLS:         cfg.Network.UseTLS,
		DialTimeout:    cfg.Network.DialTimeout,
		RequestTimeout: cfg.Network.RequestTimeout,
		PingInterval:   cfg.Network.PingInterval,
		FriendsTimeout: cfg.Cache.FriendsReadyTimeout,
	}
	newSession := func() backend.Session {
		return protocol.NewSession(sessionCfg, caches, queues, machineID)
	}

	checker := profile.NewHTTPChecker(profile.Config{
		BaseURL:        cfg.Profile.CommunityBaseURL,
		Timeout:        cfg.Profile.Timeout,
		RequestsPerSec: cfg.Profile.RequestsPerSec,
		Burst:          cfg.Profile.Burst,
	})

	b := backend.New(backend.Config{
		CatalogTimeout: cfg.Cache.CatalogReadyTimeout,
		ResumeTimeout:  cfg.Auth.ResumeTimeout,
		ImportTimeout:  cfg.Cache.ImportReadyTimeout,
		Auth: auth.Config{
			LoginPageBaseURL:     cfg.Auth.LoginPageBaseURL,
			HandshakeTimeout:     cfg.Auth.HandshakeTimeout,
			IdentityTimeout:      cfg.Cache.IdentityReadyTimeout,
			MaxTwoFactorAttempts: cfg.Auth.MaxTwoFactorAttempts,
		},
		Sync: syncer.Config{
			BatchSize: cfg.Sync.ForwardBatchSize,
			Pause:     cfg.Sync.ForwardPause,
		},
	}, caches, state, queues, newSession, checker, eventHost)

	if stored != nil {
		res, err := b.Authenticate(ctx, stored)
		if err != nil {
			logging.Warn().Err(err).Msg("Could not resume from stored credentials, interactive login required")
		} else if res.Authentication != nil {
			logging.Info().Str("steam_id", res.Authentication.UserID).Msg("Session resumed")
		}
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddStorageService(services.NewFlushService(services.FlushFunc(func(ctx context.Context) error {
		return store.Flush(ctx, state)
	}), cfg.Storage.FlushInterval))
	tree.AddStorageService(services.NewOutboxService(eventHost, cfg.Events.RetryInterval))
	tree.AddSessionService(services.NewTickService(b, cfg.Sync.TickInterval))

	handler := api.NewHandler(b).WithEventStream(websocket.Handler(hub, cfg.Server.CORSOrigins))
	router := api.NewRouter(handler, api.MiddlewareConfig{
		RateLimitRequests: cfg.Server.RateLimitReqs,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		CORSOrigins:       cfg.Server.CORSOrigins,
	})
	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		// Import waits can take minutes.
		WriteTimeout: cfg.Cache.ImportReadyTimeout + time.Minute,
	}
	tree.AddAPIService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	logging.Info().Str("addr", server.Addr).Msg("Host API listening")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}

	logging.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := b.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Backend shutdown incomplete")
	}
	if err := store.Flush(shutdownCtx, state); err != nil {
		logging.Error().Err(err).Msg("Final state flush failed")
	}
	return nil
}

// newPublisher selects the event transport. The embedded server, when
// started, is returned so the caller can stop it after the publisher closes.
func newPublisher(ctx context.Context, cfg *config.Config) (message.Publisher, *host.EmbeddedServer, error) {
	logger := host.NewLogger()
	if !cfg.Events.Enabled {
		logging.Info().Msg("Event broker disabled, using in-process publisher")
		return host.NewInProcessPublisher(logger), nil, nil
	}

	url := cfg.Events.NATSURL
	var embedded *host.EmbeddedServer
	if cfg.Events.Embedded {
		var err error
		embedded, err = host.NewEmbeddedServer(host.EmbeddedConfig{StoreDir: cfg.Events.StoreDir})
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		url = embedded.ClientURL()

		streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = host.EnsureStream(streamCtx, url, host.StreamConfig{
			Name:        cfg.Events.Stream,
			TopicPrefix: cfg.Events.TopicPrefix,
		})
		cancel()
		if err != nil {
			_ = embedded.Shutdown(context.Background())
			return nil, nil, fmt.Errorf("provision event stream: %w", err)
		}
		logging.Info().Str("url", url).Str("stream", cfg.Events.Stream).Msg("Embedded NATS JetStream server started")
	}

	pub, err := host.NewNATSPublisher(host.NATSConfig{URL: url}, logger)
	if err != nil {
		if embedded != nil {
			_ = embedded.Shutdown(context.Background())
		}
		return nil, nil, fmt.Errorf("connect event broker: %w", err)
	}
	logging.Info().Str("url", url).Msg("Publishing host events to NATS JetStream")
	return pub, embedded, nil
}
