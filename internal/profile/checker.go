// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package profile checks whether a community profile exposes the game
// details the library sync depends on.
package profile

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/steambridge/internal/breaker"
	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/validation"
)

const maxPageBytes = 4 << 20

// Visibility is the outcome of a profile check.
type Visibility int

// Check outcomes. Unknown accompanies every error.
const (
	Unknown Visibility = iota
	Public
	NotPublic
	NoGameDetails
	DoesNotExist
	MalformedID
)

// String returns a log label for v.
func (v Visibility) String() string {
	switch v {
	case Unknown:
		return "unknown"
	case Public:
		return "public"
	case NotPublic:
		return "not_public"
	case NoGameDetails:
		return "no_game_details"
	case DoesNotExist:
		return "does_not_exist"
	case MalformedID:
		return "malformed_id"
	default:
		return fmt.Sprintf("visibility(%d)", int(v))
	}
}

// Checker reports a profile's visibility. An error means the check itself
// failed and says nothing about the profile.
type Checker interface {
	CheckIsPublic(ctx context.Context, steamID string) (Visibility, error)
}

// Config configures an HTTPChecker.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// HTTPChecker reads the community site's XML profile and games pages.
type HTTPChecker struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *breaker.Breaker
}

// NewHTTPChecker creates a checker against cfg.BaseURL.
func NewHTTPChecker(cfg Config) *HTTPChecker {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPChecker{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker:    breaker.New("community-profile", breaker.Settings{}),
	}
}

type profilePage struct {
	XMLName      xml.Name
	SteamID64    string `xml:"steamID64"`
	PrivacyState string `xml:"privacyState"`
	Error        string `xml:"error"`
}

type gamesPage struct {
	XMLName xml.Name
	Games   []struct {
		AppID string `xml:"appID"`
	} `xml:"games>game"`
	Error string `xml:"error"`
}

// CheckIsPublic runs the profile check for steamID.
func (c *HTTPChecker) CheckIsPublic(ctx context.Context, steamID string) (Visibility, error) {
	if !validation.IsSteamID64(steamID) {
		return MalformedID, nil
	}

	var profile profilePage
	if err := c.fetchXML(ctx, fmt.Sprintf("%s/profiles/%s/?xml=1", c.baseURL, steamID), &profile); err != nil {
		return Unknown, err
	}
	if profile.Error != "" {
		if strings.Contains(strings.ToLower(profile.Error), "could not be found") {
			return DoesNotExist, nil
		}
		return Unknown, fmt.Errorf("profile page error: %s", strings.TrimSpace(profile.Error))
	}
	if !strings.EqualFold(strings.TrimSpace(profile.PrivacyState), "public") {
		logging.Debug().Str("steam_id", steamID).Str("privacy_state", profile.PrivacyState).Msg("Profile is not public")
		return NotPublic, nil
	}

	var games gamesPage
	if err := c.fetchXML(ctx, fmt.Sprintf("%s/profiles/%s/games/?tab=all&xml=1", c.baseURL, steamID), &games); err != nil {
		return Unknown, err
	}
	if games.Error != "" || len(games.Games) == 0 {
		return NoGameDetails, nil
	}
	return Public, nil
}

func (c *HTTPChecker) fetchXML(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := breaker.Do(c.breaker, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("request %s: HTTP %d", url, resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	})
	if err != nil {
		return err
	}

	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
