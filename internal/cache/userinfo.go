// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/steambridge/internal/logging"
)

// Credential map keys.
const (
	CredentialSteamID         = "steam_id"
	CredentialAccountUsername = "account_username"
	CredentialPersonaName     = "persona_name"
	CredentialRefreshToken    = "refresh_token"
)

// UserInfoCache is the session's identity record.
//
// It becomes initialized once the account ID, persona name and refresh token
// are all known. Every mutation that changes a persisted field raises the
// changed flag, which the scheduler consumes with TakeChanged.
type UserInfoCache struct {
	mu              sync.Mutex
	steamID         string
	accountUsername string
	personaName     string
	refreshToken    string
	changed         bool
	initialized     *Readiness
}

// NewUserInfoCache returns an empty identity record.
func NewUserInfoCache() *UserInfoCache {
	return &UserInfoCache{initialized: NewReadiness()}
}

// SteamID returns the account's Steam64 ID or "" when unknown.
func (c *UserInfoCache) SteamID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steamID
}

// PersonaName returns the display name.
func (c *UserInfoCache) PersonaName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.personaName
}

// AccountUsername returns the login name.
func (c *UserInfoCache) AccountUsername() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountUsername
}

// RefreshToken returns the token used for password-less logon.
func (c *UserInfoCache) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshToken
}

// HasIdentity reports whether an account ID is known.
func (c *UserInfoCache) HasIdentity() bool {
	return c.SteamID() != ""
}

// SetAccountUsername records the login name captured from the login form.
func (c *UserInfoCache) SetAccountUsername(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(&c.accountUsername, username)
}

// SetLogon records the account ID and refresh token from a successful logon.
func (c *UserInfoCache) SetLogon(steamID, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(&c.steamID, steamID)
	if refreshToken != "" {
		c.setLocked(&c.refreshToken, refreshToken)
	}
	c.checkInitializedLocked()
}

// SetAccountInfo records the account ID and persona name from an account
// info message.
func (c *UserInfoCache) SetAccountInfo(steamID, personaName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if steamID != "" {
		c.setLocked(&c.steamID, steamID)
	}
	c.setLocked(&c.personaName, personaName)
	c.checkInitializedLocked()
}

func (c *UserInfoCache) setLocked(field *string, value string) {
	if *field != value {
		*field = value
		c.changed = true
	}
}

func (c *UserInfoCache) checkInitializedLocked() {
	if c.steamID != "" && c.personaName != "" && c.refreshToken != "" {
		c.initialized.Set()
	}
}

// Initialized returns the identity readiness signal.
func (c *UserInfoCache) Initialized() *Readiness {
	return c.initialized
}

// WaitReady blocks until the identity is initialized.
func (c *UserInfoCache) WaitReady(ctx context.Context, timeout time.Duration) error {
	return waitReady(ctx, "identity", c.initialized, timeout)
}

// ToCredentials snapshots the persisted fields.
func (c *UserInfoCache) ToCredentials() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credentialsLocked()
}

func (c *UserInfoCache) credentialsLocked() map[string]string {
	return map[string]string{
		CredentialSteamID:         c.steamID,
		CredentialAccountUsername: c.accountUsername,
		CredentialPersonaName:     c.personaName,
		CredentialRefreshToken:    c.refreshToken,
	}
}

// TakeChanged returns a snapshot and clears the changed flag when it is set.
func (c *UserInfoCache) TakeChanged() (map[string]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.changed {
		return nil, false
	}
	c.changed = false
	return c.credentialsLocked(), true
}

// MarkChanged raises the changed flag again, e.g. after a failed store.
func (c *UserInfoCache) MarkChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed = true
}

// ClearChanged drops the changed flag after credentials were stored by
// another path.
func (c *UserInfoCache) ClearChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed = false
}

// FromCredentials restores the record from stored credentials. It does not
// mark the record initialized: that only happens once the network confirms
// the identity. When the stored map lacks an account ID and the refresh token
// is a JWT, the token's subject is used.
func (c *UserInfoCache) FromCredentials(creds map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.steamID = creds[CredentialSteamID]
	c.accountUsername = creds[CredentialAccountUsername]
	c.personaName = creds[CredentialPersonaName]
	c.refreshToken = creds[CredentialRefreshToken]
	c.changed = false

	c.inspectRefreshTokenLocked()
}

// inspectRefreshTokenLocked reads the unverified claims of a JWT refresh token.
// The token is issued and verified by the network, never by us.
func (c *UserInfoCache) inspectRefreshTokenLocked() {
	if c.refreshToken == "" {
		return
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.refreshToken, &claims); err != nil {
		logging.Debug().Err(err).Msg("Stored refresh token is not a JWT")
		return
	}

	if c.steamID == "" && claims.Subject != "" {
		c.steamID = claims.Subject
		c.changed = true
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		logging.Warn().
			Time("expired_at", claims.ExpiresAt.Time).
			Msg("Stored refresh token has expired, logon will likely fail")
	}
}

// Reset forgets the identity. Used when a resume attempt fails.
func (c *UserInfoCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steamID = ""
	c.accountUsername = ""
	c.personaName = ""
	c.refreshToken = ""
	c.changed = false
}
