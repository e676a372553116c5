// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// @title Steambridge API
// @version 1.0
// @description Host API for the Steam session bridge: login, library, achievements, playtime and friends.
// @description
// @description ## Login
// @description
// @description `POST /auth` starts a login. When it answers with `next_step`, open `auth_params.start_uri`
// @description in a browser window and post the final redirect URL to `/auth/step` as `credentials.end_uri`.
// @description
// @description ## Errors
// @description
// @description Every error uses the shared envelope with one of the codes
// @description `AUTHENTICATION_REQUIRED`, `BACKEND_TIMEOUT`, `UNRECOGNIZED_BACKEND_RESPONSE` or `UNKNOWN_ERROR`.
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:3858
// @BasePath /api/v1
//
// @tag.name Auth
// @tag.description Interactive login and stored-credential resume
//
// @tag.name Library
// @tag.description Owned games, family sharing and library collections
//
// @tag.name Friends
// @tag.description Friend list and presence
//
// @tag.name Events
// @tag.description Live WebSocket stream of host events

package main
