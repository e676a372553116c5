// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package api serves the host API over HTTP using the chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// NewRouter wires every host API route.
func NewRouter(h *Handler, cfg MiddlewareConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DocExpansion("list"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(RequestMetrics())

		r.Get("/health", h.Health)
		r.Get("/events", h.Events)

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(cfg))

			r.Post("/auth", h.Authenticate)
			r.Post("/auth/step", h.PassLoginCredentials)

			r.Get("/games", h.OwnedGames)
			r.Get("/subscriptions", h.Subscriptions)
			r.Get("/subscriptions/{name}/games", h.SubscriptionGames)
			r.Post("/achievements/prepare", h.PrepareAchievements)
			r.Get("/achievements/{gameID}", h.UnlockedAchievements)
			r.Post("/playtime/prepare", h.PrepareGameTimes)
			r.Get("/playtime/{gameID}", h.GameTime)
			r.Get("/library-settings/{gameID}", h.LibrarySettings)
			r.Get("/friends", h.Friends)
			r.Get("/presence/{userID}", h.UserPresence)
		})
	})

	return r
}
