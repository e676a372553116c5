// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package auth drives the interactive login flow.
//
// The host shows a login page, the user completes a form, and the page
// redirects to a URL carrying the form fields. The host hands that URL back
// through PassLoginCredentials and receives either the final Authentication
// or the next page to show. Login failures are steps, not errors.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/steambridge/internal/cache"
	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/metrics"
	"github.com/tomtom215/steambridge/internal/models"
	"github.com/tomtom215/steambridge/internal/profile"
	"github.com/tomtom215/steambridge/internal/protocol"
)

// State is a login flow state.
type State int

// Login flow states.
const (
	AwaitingCredentials State = iota
	AwaitingTwoFactorEmail
	AwaitingTwoFactorMobile
	AwaitingPublicProfileDecision
	Succeeded
)

// String returns a log label for s.
func (s State) awaitingCode() bool {
	return s == AwaitingTwoFactorEmail || s == AwaitingTwoFactorMobile
}

func (s State) String() string {
	switch s {
	case AwaitingCredentials:
		return "awaiting_credentials"
	case AwaitingTwoFactorEmail:
		return "awaiting_two_factor_email"
	case AwaitingTwoFactorMobile:
		return "awaiting_two_factor_mobile"
	case AwaitingPublicProfileDecision:
		return "awaiting_public_profile_decision"
	case Succeeded:
		return "succeeded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handshaker is the credential channel pair of the protocol session.
type Handshaker interface {
	Submit(ctx context.Context, s protocol.CredentialSubmission) error
	Await(ctx context.Context, timeout time.Duration) (protocol.HandshakeResult, error)
}

// CredentialStore persists the identity record after a successful logon.
type CredentialStore func(ctx context.Context, creds map[string]string)

// Config configures a Controller.
type Config struct {
	LoginPageBaseURL     string
	HandshakeTimeout     time.Duration
	IdentityTimeout      time.Duration
	MaxTwoFactorAttempts int
}

// Controller is the login state machine. Calls are serialized: a second call
// waits until the first has produced its step.
type Controller struct {
	mu sync.Mutex

	identity *cache.UserInfoCache
	queues   Handshaker
	profiles profile.Checker
	store    CredentialStore
	steps    StepBuilder

	handshakeTimeout     time.Duration
	identityTimeout      time.Duration
	maxTwoFactorAttempts int

	state             State
	password          string
	twoFactorAttempts int
}

// NewController creates a controller in AwaitingCredentials.
func NewController(cfg Config, identity *cache.UserInfoCache, queues Handshaker, profiles profile.Checker, store CredentialStore) *Controller {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 20 * time.Second
	}
	if cfg.IdentityTimeout <= 0 {
		cfg.IdentityTimeout = cfg.HandshakeTimeout
	}
	if cfg.MaxTwoFactorAttempts <= 0 {
		cfg.MaxTwoFactorAttempts = 3
	}
	return &Controller{
		identity:             identity,
		queues:               queues,
		profiles:             profiles,
		store:                store,
		steps:                NewStepBuilder(cfg.LoginPageBaseURL),
		handshakeTimeout:     cfg.HandshakeTimeout,
		identityTimeout:      cfg.IdentityTimeout,
		maxTwoFactorAttempts: cfg.MaxTwoFactorAttempts,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start resets the flow and returns the login page step.
func (c *Controller) Start() models.AuthResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return c.steps.Step(StartLogin, EndLoginFinished)
}

func (c *Controller) resetLocked() {
	c.state = AwaitingCredentials
	c.password = ""
	c.twoFactorAttempts = 0
}

// PassLoginCredentials advances the flow with the redirect the login page
// finished on.
func (c *Controller) PassLoginCredentials(ctx context.Context, creds models.LoginCredentials) (models.AuthResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	endURI, err := url.Parse(creds.EndURI)
	if err != nil {
		return models.AuthResult{}, models.Unknownf("parse end uri: %v", err)
	}
	params := endURI.Query()

	var (
		path    string
		result  models.AuthResult
		stepErr error
	)
	switch {
	case strings.Contains(creds.EndURI, markerTwoFactorMobile):
		path = "two_factor_mobile"
		result, stepErr = c.handleTwoFactor(ctx, params, AwaitingTwoFactorMobile)
	case strings.Contains(creds.EndURI, markerTwoFactorMail):
		path = "two_factor_email"
		result, stepErr = c.handleTwoFactor(ctx, params, AwaitingTwoFactorEmail)
	case strings.Contains(creds.EndURI, markerPublicPrompt):
		path = "public_prompt"
		result, stepErr = c.handlePublicPrompt(ctx, params)
	case strings.Contains(creds.EndURI, markerLogin):
		path = "login"
		result, stepErr = c.handleLogin(ctx, params)
	default:
		return models.AuthResult{}, models.Unknownf("unexpected login redirect %q", endURI.Path)
	}

	// The password outlives a step only while a two-factor code is pending.
	if stepErr != nil || !c.state.awaitingCode() {
		c.password = ""
	}

	outcome := "step"
	switch {
	case stepErr != nil:
		outcome = "error"
	case result.Authentication != nil:
		outcome = "authenticated"
	}
	metrics.LoginOutcomes.WithLabelValues(path, outcome).Inc()
	logging.Ctx(ctx).Info().
		Str("path", path).
		Str("outcome", outcome).
		Str("state", c.state.String()).
		Msg("Login step completed")

	return result, stepErr
}

func (c *Controller) handleLogin(ctx context.Context, params url.Values) (models.AuthResult, error) {
	if !params.Has("username") || !params.Has("password") {
		c.resetLocked()
		return c.steps.Step(StartLoginFailed, EndLoginFinished), nil
	}

	c.resetLocked()
	c.identity.SetAccountUsername(params.Get("username"))
	c.password = params.Get("password")

	result, err := c.exchange(ctx, protocol.CredentialSubmission{Password: c.password})
	if err != nil {
		return models.AuthResult{}, err
	}

	switch result {
	case protocol.NoActionRequired:
		c.password = ""
		c.storeCredentials(ctx)
		return c.checkPublicProfile(ctx)
	case protocol.EmailTwoFactorRequired:
		c.state = AwaitingTwoFactorEmail
		return c.steps.Step(StartTwoFactorMail, EndTwoFactorMailFinished), nil
	case protocol.PhoneTwoFactorRequired:
		c.state = AwaitingTwoFactorMobile
		return c.steps.Step(StartTwoFactorMobile, EndTwoFactorMobileFinished), nil
	default:
		c.resetLocked()
		return c.steps.Step(StartLoginFailed, EndLoginFinished), nil
	}
}

func (c *Controller) handleTwoFactor(ctx context.Context, params url.Values, channel State) (models.AuthResult, error) {
	start, failed, end := StartTwoFactorMobile, StartTwoFactorMobileFailed, EndTwoFactorMobileFinished
	if channel == AwaitingTwoFactorEmail {
		start, failed, end = StartTwoFactorMail, StartTwoFactorMailFailed, EndTwoFactorMailFinished
	}

	if c.password == "" || !c.state.awaitingCode() {
		logging.Ctx(ctx).Warn().Str("state", c.state.String()).Msg("Two-factor code without a pending login")
		c.resetLocked()
		return c.steps.Step(StartLoginFailed, EndLoginFinished), nil
	}

	if channel == AwaitingTwoFactorEmail && params.Has("resend") {
		if _, err := c.exchange(ctx, protocol.CredentialSubmission{Password: c.password}); err != nil {
			return models.AuthResult{}, err
		}
		return c.steps.Step(start, end), nil
	}

	if !params.Has("code") {
		return c.steps.Step(failed, end), nil
	}

	result, err := c.exchange(ctx, protocol.CredentialSubmission{
		Password:      c.password,
		TwoFactorCode: params.Get("code"),
	})
	if err != nil {
		return models.AuthResult{}, err
	}

	if result == protocol.NoActionRequired {
		c.password = ""
		c.storeCredentials(ctx)
		return c.succeed(ctx), nil
	}

	c.twoFactorAttempts++
	if c.twoFactorAttempts >= c.maxTwoFactorAttempts {
		logging.Ctx(ctx).Warn().Int("attempts", c.twoFactorAttempts).Msg("Too many two-factor attempts, restarting login")
		c.resetLocked()
		return c.steps.Step(StartLoginFailed, EndLoginFinished), nil
	}
	return c.steps.Step(failed, end), nil
}

func (c *Controller) handlePublicPrompt(ctx context.Context, params url.Values) (models.AuthResult, error) {
	fallback, err := parseBool(params.Get("public_profile_fallback"))
	if err != nil {
		return models.AuthResult{}, models.Unknownf("public_profile_fallback: %v", err)
	}
	if fallback {
		return c.checkPublicProfile(ctx)
	}
	return c.succeed(ctx), nil
}

func (c *Controller) checkPublicProfile(ctx context.Context) (models.AuthResult, error) {
	steamID := c.identity.SteamID()
	visibility, err := c.profiles.CheckIsPublic(ctx, steamID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("steam_id", steamID).Msg("Profile visibility check failed")
		c.state = AwaitingPublicProfileDecision
		return c.steps.Step(StartPromptUnknownError, EndPublicPromptFinished), nil
	}

	switch visibility {
	case profile.Public:
		return c.succeed(ctx), nil
	case profile.NotPublic:
		c.state = AwaitingPublicProfileDecision
		return c.steps.Step(StartPromptProfileNotPublic, EndPublicPromptFinished), nil
	case profile.NoGameDetails:
		c.state = AwaitingPublicProfileDecision
		return c.steps.Step(StartPromptNoPublicGames, EndPublicPromptFinished), nil
	case profile.DoesNotExist:
		return models.AuthResult{}, models.Unrecognizedf("profile %s does not exist", steamID)
	case profile.MalformedID:
		return models.AuthResult{}, models.Unrecognizedf("malformed account id %q", steamID)
	default:
		c.state = AwaitingPublicProfileDecision
		return c.steps.Step(StartPromptUnknownError, EndPublicPromptFinished), nil
	}
}

// exchange submits one round and waits for its result.
func (c *Controller) exchange(ctx context.Context, sub protocol.CredentialSubmission) (protocol.HandshakeResult, error) {
	if err := c.queues.Submit(ctx, sub); err != nil {
		return protocol.OtherFailure, fmt.Errorf("submit credentials: %w", err)
	}
	return c.queues.Await(ctx, c.handshakeTimeout)
}

func (c *Controller) succeed(ctx context.Context) models.AuthResult {
	c.state = Succeeded
	if err := c.identity.WaitReady(ctx, c.identityTimeout); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Persona name not known yet")
	}
	return models.Authenticated(c.identity.SteamID(), c.identity.PersonaName())
}

func (c *Controller) storeCredentials(ctx context.Context) {
	if c.store != nil {
		c.store(ctx, c.identity.ToCredentials())
	}
}

// parseBool accepts the usual spellings of a form checkbox value.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "t", "true", "on", "1":
		return true, nil
	case "n", "no", "f", "false", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid truth value %q", s)
	}
}
