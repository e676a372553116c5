// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package config loads Steambridge configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence
// (environment wins).
//
// Every timeout the session core relies on is configurable here: the login
// handshake wait, the stored-credential resume race, the catalog and import
// readiness bounds, and the forwarding batch pause.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Network NetworkConfig `koanf:"network"`
	Auth    AuthConfig    `koanf:"auth"`
	Cache   CacheConfig   `koanf:"cache"`
	Sync    SyncConfig    `koanf:"sync"`
	Profile ProfileConfig `koanf:"profile"`
	Storage StorageConfig `koanf:"storage"`
	Events  EventsConfig  `koanf:"events"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// NetworkConfig controls how the protocol session finds and talks to a
// connection manager.
type NetworkConfig struct {
	// DirectoryURL returns {"servers": ["host:port", ...]}.
	DirectoryURL string `koanf:"directory_url" validate:"omitempty,url"`

	// Servers is used when the directory is unreachable or empty.
	Servers []string `koanf:"servers" validate:"dive,hostname_port"`

	// UseTLS selects wss:// over ws://.
	UseTLS bool `koanf:"use_tls"`

	DialTimeout    time.Duration `koanf:"dial_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	PingInterval   time.Duration `koanf:"ping_interval" validate:"gt=0"`
}

// AuthConfig controls the login state machine and the stored-credential resume.
type AuthConfig struct {
	// HandshakeTimeout bounds each wait for a handshake result. A timeout is
	// treated as "no action required".
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"gt=0"`

	// ResumeTimeout bounds the race between identity readiness and run loop exit.
	ResumeTimeout time.Duration `koanf:"resume_timeout" validate:"gt=0"`

	// MaxTwoFactorAttempts is how many rejected codes are tolerated before the
	// flow returns to the credentials page.
	MaxTwoFactorAttempts int `koanf:"max_two_factor_attempts" validate:"min=1,max=10"`

	// LoginPageBaseURL hosts the login, two-factor and profile prompt pages.
	LoginPageBaseURL string `koanf:"login_page_base_url" validate:"required,url"`
}

// CacheConfig holds readiness bounds.
type CacheConfig struct {
	CatalogReadyTimeout  time.Duration `koanf:"catalog_ready_timeout" validate:"gt=0"`
	IdentityReadyTimeout time.Duration `koanf:"identity_ready_timeout" validate:"gt=0"`
	ImportReadyTimeout   time.Duration `koanf:"import_ready_timeout" validate:"gt=0"`
	FriendsReadyTimeout  time.Duration `koanf:"friends_ready_timeout" validate:"gt=0"`

	// PresenceBuffer is the capacity of the outbound presence channel. Events
	// beyond it are dropped and counted.
	PresenceBuffer int `koanf:"presence_buffer" validate:"min=1"`
}

// SyncConfig controls the periodic synchronization tick.
type SyncConfig struct {
	TickInterval     time.Duration `koanf:"tick_interval" validate:"gt=0"`
	ForwardBatchSize int           `koanf:"forward_batch_size" validate:"min=1"`
	ForwardPause     time.Duration `koanf:"forward_pause" validate:"gte=0"`
}

// ProfileConfig controls the public profile visibility checker.
type ProfileConfig struct {
	CommunityBaseURL string        `koanf:"community_base_url" validate:"required,url"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSec   float64       `koanf:"requests_per_sec" validate:"gt=0"`
	Burst            int           `koanf:"burst" validate:"min=1"`
}

// StorageConfig controls persistence of the keyed state blobs and credentials.
type StorageConfig struct {
	Path          string        `koanf:"path"`
	InMemory      bool          `koanf:"in_memory"`
	FlushInterval time.Duration `koanf:"flush_interval" validate:"gt=0"`

	// CredentialKey is a base64 master key. When set, the refresh token is
	// encrypted at rest.
	CredentialKey string `koanf:"credential_key" validate:"omitempty,base64"`
}

// EventsConfig controls host event delivery.
type EventsConfig struct {
	Enabled     bool   `koanf:"enabled"`
	NATSURL     string `koanf:"nats_url"`
	TopicPrefix string `koanf:"topic_prefix" validate:"required"`

	// Embedded runs a JetStream server in-process instead of dialing NATSURL.
	Embedded bool   `koanf:"embedded"`
	StoreDir string `koanf:"store_dir"`
	// Stream is provisioned on the embedded server to capture host topics.
	Stream string `koanf:"stream" validate:"required"`

	// Events that fail to publish are kept in the outbox and redelivered
	// every RetryInterval until OutboxMaxAttempts or OutboxMaxAge is reached.
	RetryInterval     time.Duration `koanf:"retry_interval" validate:"gt=0"`
	OutboxMaxAttempts int           `koanf:"outbox_max_attempts" validate:"min=1"`
	OutboxMaxAge      time.Duration `koanf:"outbox_max_age" validate:"gt=0"`
}

// ServerConfig controls the local host API.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, the lowest configuration layer.
func defaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			DirectoryURL:   "https://api.steampowered.com/ISteamDirectory/GetCMListForConnect/v1/?cellid=0&cmtype=websockets",
			Servers:        []string{},
			UseTLS:         true,
			DialTimeout:    10 * time.Second,
			RequestTimeout: 30 * time.Second,
			PingInterval:   30 * time.Second,
		},
		Auth: AuthConfig{
			HandshakeTimeout:     20 * time.Second,
			ResumeTimeout:        30 * time.Second,
			MaxTwoFactorAttempts: 3,
			LoginPageBaseURL:     "http://127.0.0.1:3858/login",
		},
		Cache: CacheConfig{
			CatalogReadyTimeout:  90 * time.Second,
			IdentityReadyTimeout: 30 * time.Second,
			ImportReadyTimeout:   10 * time.Minute,
			FriendsReadyTimeout:  30 * time.Second,
			PresenceBuffer:       256,
		},
		Sync: SyncConfig{
			TickInterval:     time.Second,
			ForwardBatchSize: 50,
			ForwardPause:     5 * time.Second,
		},
		Profile: ProfileConfig{
			CommunityBaseURL: "https://steamcommunity.com",
			Timeout:          30 * time.Second,
			RequestsPerSec:   1,
			Burst:            2,
		},
		Storage: StorageConfig{
			Path:          "/data/steambridge",
			InMemory:      false,
			FlushInterval: 30 * time.Second,
		},
		Events: EventsConfig{
			Enabled:     false,
			NATSURL:     "nats://127.0.0.1:4222",
			TopicPrefix: "steambridge",
			Embedded:    false,
			StoreDir:    "/data/steambridge/jetstream",
			Stream:      "STEAMBRIDGE",

			RetryInterval:     30 * time.Second,
			OutboxMaxAttempts: 20,
			OutboxMaxAge:      7 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            3858,
			ReadTimeout:     30 * time.Second,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
