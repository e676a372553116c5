// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/steambridge/config.yaml",
	"/etc/steambridge/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from three layers:
//  1. built-in defaults
//  2. an optional YAML file
//  3. environment variables
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated environment values.
var sliceConfigPaths = []string{
	"network.servers",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}
		parts := strings.Split(raw, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				values = append(values, p)
			}
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"steam_directory_url":     "network.directory_url",
	"steam_servers":           "network.servers",
	"steam_use_tls":           "network.use_tls",
	"steam_dial_timeout":      "network.dial_timeout",
	"steam_request_timeout":   "network.request_timeout",
	"steam_ping_interval":     "network.ping_interval",
	"auth_handshake_timeout":  "auth.handshake_timeout",
	"auth_resume_timeout":     "auth.resume_timeout",
	"auth_max_2fa_attempts":   "auth.max_two_factor_attempts",
	"auth_login_page_url":     "auth.login_page_base_url",
	"cache_catalog_timeout":   "cache.catalog_ready_timeout",
	"cache_identity_timeout":  "cache.identity_ready_timeout",
	"cache_import_timeout":    "cache.import_ready_timeout",
	"cache_friends_timeout":   "cache.friends_ready_timeout",
	"cache_presence_buffer":   "cache.presence_buffer",
	"sync_tick_interval":      "sync.tick_interval",
	"sync_forward_batch_size": "sync.forward_batch_size",
	"sync_forward_pause":      "sync.forward_pause",
	"profile_base_url":        "profile.community_base_url",
	"profile_timeout":         "profile.timeout",
	"profile_rate":            "profile.requests_per_sec",
	"profile_burst":           "profile.burst",
	"storage_path":            "storage.path",
	"storage_in_memory":       "storage.in_memory",
	"storage_flush_interval":  "storage.flush_interval",
	"storage_credential_key":  "storage.credential_key",
	"events_enabled":          "events.enabled",
	"nats_url":                "events.nats_url",
	"events_topic_prefix":     "events.topic_prefix",
	"events_embedded":         "events.embedded",
	"events_store_dir":        "events.store_dir",
	"events_stream":           "events.stream",
	"events_retry_interval":   "events.retry_interval",
	"events_outbox_attempts":  "events.outbox_max_attempts",
	"events_outbox_max_age":   "events.outbox_max_age",
	"http_host":               "server.host",
	"http_port":               "server.port",
	"http_read_timeout":       "server.read_timeout",
	"rate_limit_requests":     "server.rate_limit_reqs",
	"rate_limit_window":       "server.rate_limit_window",
	"cors_origins":            "server.cors_origins",
	"log_level":               "logging.level",
	"log_format":              "logging.format",
	"log_caller":              "logging.caller",
}

// envTransformFunc maps an environment variable to its koanf path. Unknown
// variables map to "" and are ignored by the env provider.
//
//	HTTP_PORT          -> server.port
//	SYNC_FORWARD_PAUSE -> sync.forward_pause
func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}
