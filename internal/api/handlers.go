// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/steambridge/internal/models"
)

// Backend is the session orchestrator as seen by the host API.
type Backend interface {
	Authenticated() bool
	Authenticate(ctx context.Context, stored map[string]string) (models.AuthResult, error)
	PassLoginCredentials(ctx context.Context, step string, creds models.LoginCredentials) (models.AuthResult, error)

	GetOwnedGames(ctx context.Context) ([]models.Game, error)
	GetSubscriptions(ctx context.Context) ([]models.Subscription, error)
	GetSubscriptionGames(ctx context.Context, name string) ([]models.SubscriptionGame, error)
	PrepareAchievements(ctx context.Context, gameIDs []string) error
	GetUnlockedAchievements(ctx context.Context, gameID string) ([]models.Achievement, error)
	PrepareGameTimes(ctx context.Context) error
	GetGameTime(ctx context.Context, gameID string) (models.GameTime, error)
	PrepareLibrarySettings(ctx context.Context) (map[string][]uint32, error)
	GetLibrarySettings(gameID string, collections map[string][]uint32) (models.GameLibrarySettings, error)
	GetFriends(ctx context.Context) ([]models.UserInfo, error)
	PreparePresence(ctx context.Context, userIDs []string) (map[string]models.FriendInfo, error)
	GetUserPresence(userID string, infos map[string]models.FriendInfo) (models.UserPresence, error)
}

// Handler serves the host API.
type Handler struct {
	backend Backend
	events  http.Handler
	started time.Time
}

// NewHandler returns a handler backed by b.
func NewHandler(b Backend) *Handler {
	return &Handler{backend: b, started: time.Now()}
}

// WithEventStream serves the live event stream with events, typically a
// websocket.Handler.
func (h *Handler) WithEventStream(events http.Handler) *Handler {
	h.events = events
	return h
}

// AuthRequest starts a login, resuming from stored credentials when given.
type AuthRequest struct {
	StoredCredentials map[string]string `json:"stored_credentials"`
}

// StepRequest completes an interactive login step.
type StepRequest struct {
	Step        string                  `json:"step"`
	Credentials models.LoginCredentials `json:"credentials"`
}

// PrepareRequest names the games to import.
type PrepareRequest struct {
	GameIDs []string `json:"game_ids" validate:"dive,numeric"`
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status        string  `json:"status"`
	Authenticated bool    `json:"authenticated"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Health reports liveness and whether an identity is held.
//
// @Summary Health check
// @Description Reports liveness and whether a Steam identity is held
// @Tags System
// @Produce json
// @Success 200 {object} models.APIResponse{data=api.HealthStatus}
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	respondData(w, HealthStatus{
		Status:        "ok",
		Authenticated: h.backend.Authenticated(),
		UptimeSeconds: time.Since(h.started).Seconds(),
	}, start)
}

// Authenticate handles POST /api/v1/auth.
//
// @Summary Start login
// @Description Starts a login, resuming from stored credentials when given
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body api.AuthRequest false "Stored credentials"
// @Success 200 {object} models.APIResponse{data=models.AuthResult}
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /auth [post]
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req AuthRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	res, err := h.backend.Authenticate(r.Context(), req.StoredCredentials)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, res, start)
}

// PassLoginCredentials handles POST /api/v1/auth/step.
//
// @Summary Complete login step
// @Description Submits the end URI of an interactive login step
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body api.StepRequest true "Step and credentials"
// @Success 200 {object} models.APIResponse{data=models.AuthResult}
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /auth/step [post]
func (h *Handler) PassLoginCredentials(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req StepRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	res, err := h.backend.PassLoginCredentials(r.Context(), req.Step, req.Credentials)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, res, start)
}

// OwnedGames handles GET /api/v1/games.
//
// @Summary List owned games
// @Description Waits for license enumeration and returns every owned game
// @Tags Library
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.Game}
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /games [get]
func (h *Handler) OwnedGames(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	games, err := h.backend.GetOwnedGames(r.Context())
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, games, start)
}

// Subscriptions handles GET /api/v1/subscriptions.
//
// @Summary List subscriptions
// @Tags Library
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.Subscription}
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /subscriptions [get]
func (h *Handler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	subs, err := h.backend.GetSubscriptions(r.Context())
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, subs, start)
}

// SubscriptionGames handles GET /api/v1/subscriptions/{name}/games.
//
// @Summary List subscription games
// @Tags Library
// @Produce json
// @Param name path string true "Subscription name"
// @Success 200 {object} models.APIResponse{data=[]models.SubscriptionGame}
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /subscriptions/{name}/games [get]
func (h *Handler) SubscriptionGames(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	games, err := h.backend.GetSubscriptionGames(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, games, start)
}

// PrepareAchievements handles POST /api/v1/achievements/prepare.
//
// @Summary Import achievements
// @Description Refreshes achievement unlocks for the given games
// @Tags Achievements
// @Accept json
// @Produce json
// @Param request body api.PrepareRequest true "Game IDs"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /achievements/prepare [post]
func (h *Handler) PrepareAchievements(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req PrepareRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.backend.PrepareAchievements(r.Context(), req.GameIDs); err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, map[string]int{"prepared": len(req.GameIDs)}, start)
}

// UnlockedAchievements handles GET /api/v1/achievements/{gameID}.
//
// @Summary Get unlocked achievements
// @Tags Achievements
// @Produce json
// @Param gameID path string true "Steam app ID"
// @Success 200 {object} models.APIResponse{data=[]models.Achievement}
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /achievements/{gameID} [get]
func (h *Handler) UnlockedAchievements(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	achievements, err := h.backend.GetUnlockedAchievements(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, achievements, start)
}

// PrepareGameTimes handles POST /api/v1/playtime/prepare. Playtime is
// fetched for the whole library, so game_ids only shapes the response.
//
// @Summary Import playtime
// @Tags Playtime
// @Accept json
// @Produce json
// @Param request body api.PrepareRequest false "Game IDs"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /playtime/prepare [post]
func (h *Handler) PrepareGameTimes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req PrepareRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.backend.PrepareGameTimes(r.Context()); err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, map[string]int{"prepared": len(req.GameIDs)}, start)
}

// GameTime handles GET /api/v1/playtime/{gameID}.
//
// @Summary Get playtime
// @Tags Playtime
// @Produce json
// @Param gameID path string true "Steam app ID"
// @Success 200 {object} models.APIResponse{data=models.GameTime}
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /playtime/{gameID} [get]
func (h *Handler) GameTime(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	gt, err := h.backend.GetGameTime(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, gt, start)
}

// LibrarySettings handles GET /api/v1/library-settings/{gameID}.
//
// @Summary Get library settings
// @Description Returns user collection tags and the hidden flag
// @Tags Library
// @Produce json
// @Param gameID path string true "Steam app ID"
// @Success 200 {object} models.APIResponse{data=models.GameLibrarySettings}
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /library-settings/{gameID} [get]
func (h *Handler) LibrarySettings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	collections, err := h.backend.PrepareLibrarySettings(r.Context())
	if err != nil {
		respondBackendError(w, err)
		return
	}
	settings, err := h.backend.GetLibrarySettings(chi.URLParam(r, "gameID"), collections)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, settings, start)
}

// Friends handles GET /api/v1/friends.
//
// @Summary List friends
// @Tags Friends
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.UserInfo}
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /friends [get]
func (h *Handler) Friends(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	friends, err := h.backend.GetFriends(r.Context())
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, friends, start)
}

// UserPresence handles GET /api/v1/presence/{userID}.
//
// @Summary Get friend presence
// @Tags Friends
// @Produce json
// @Param userID path string true "Steam64 ID"
// @Success 200 {object} models.APIResponse{data=models.UserPresence}
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 504 {object} models.APIResponse "Steam did not answer in time"
// @Router /presence/{userID} [get]
func (h *Handler) UserPresence(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID := chi.URLParam(r, "userID")
	infos, err := h.backend.PreparePresence(r.Context(), []string{userID})
	if err != nil {
		respondBackendError(w, err)
		return
	}
	presence, err := h.backend.GetUserPresence(userID, infos)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondData(w, presence, start)
}

// Events handles GET /api/v1/events.
//
// @Summary Stream host events
// @Description Upgrades to a WebSocket mirroring games.added, presence.updated, credentials.stored and auth.lost events
// @Tags Events
// @Success 101 {string} string "Switching Protocols"
// @Failure 503 {object} models.APIResponse "Event stream not enabled"
// @Router /events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "event stream not enabled", nil)
		return
	}
	h.events.ServeHTTP(w, r)
}
