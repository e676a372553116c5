// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package protocol

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/steambridge/internal/breaker"
	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/models"
)

const maxDirectoryResponseBytes = 1 << 20

// ServerLister yields connection manager endpoints ("host:port") in the
// order they should be tried.
type ServerLister interface {
	Servers(ctx context.Context) ([]string, error)
}

// Directory resolves connection manager endpoints from the public directory
// service, falling back to a static list when the directory is unreachable.
type Directory struct {
	url        string
	static     []string
	httpClient *http.Client
	breaker    *breaker.Breaker
}

// NewDirectory creates a directory client. url may be empty, in which case
// only the static list is used.
func NewDirectory(url string, static []string, timeout time.Duration) *Directory {
	return &Directory{
		url:        url,
		static:     static,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker.New("cm-directory", breaker.Settings{ConsecutiveFailures: 3}),
	}
}

type directoryResponse struct {
	Response struct {
		ServerList []struct {
			Endpoint string `json:"endpoint"`
			Type     string `json:"type"`
		} `json:"serverlist"`
		Success bool   `json:"success"`
		Message string `json:"message"`
	} `json:"response"`
}

// Servers returns websocket endpoints from the directory, or the static list
// when the lookup fails or comes back empty.
func (d *Directory) Servers(ctx context.Context) ([]string, error) {
	if d.url != "" {
		servers, err := breaker.Do(d.breaker, func() ([]string, error) {
			return d.fetch(ctx)
		})
		if err == nil && len(servers) > 0 {
			return servers, nil
		}
		if err != nil {
			logging.Warn().Err(err).Msg("Connection manager directory lookup failed, using static servers")
		}
	}

	if len(d.static) == 0 {
		return nil, models.Unknownf("no connection manager servers available")
	}
	out := make([]string, len(d.static))
	copy(out, d.static)
	return out, nil
}

func (d *Directory) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDirectoryResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read directory response: %w", err)
	}

	var parsed directoryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, models.Unrecognizedf("decode directory response: %v", err)
	}
	if !parsed.Response.Success {
		return nil, fmt.Errorf("directory lookup unsuccessful: %s", parsed.Response.Message)
	}

	servers := make([]string, 0, len(parsed.Response.ServerList))
	for _, s := range parsed.Response.ServerList {
		if s.Endpoint == "" {
			continue
		}
		if s.Type != "" && !strings.EqualFold(s.Type, "websockets") {
			continue
		}
		servers = append(servers, s.Endpoint)
	}
	return servers, nil
}

// StaticServers is a ServerLister over a fixed endpoint list.
type StaticServers []string

// Servers returns the list.
func (s StaticServers) Servers(context.Context) ([]string, error) {
	if len(s) == 0 {
		return nil, models.Unknownf("no connection manager servers available")
	}
	return []string(s), nil
}
