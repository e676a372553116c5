// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package auth

import (
	"strings"

	"github.com/tomtom215/steambridge/internal/models"
)

// StartURI selects the login page view the host opens.
type StartURI string

// Login page views.
const (
	StartLogin                  StartURI = "index.html?view=login"
	StartLoginFailed            StartURI = "index.html?view=login&errored=true"
	StartTwoFactorMail          StartURI = "index.html?view=steamguard"
	StartTwoFactorMailFailed    StartURI = "index.html?view=steamguard&errored=true"
	StartTwoFactorMobile        StartURI = "index.html?view=steamauthenticator"
	StartTwoFactorMobileFailed  StartURI = "index.html?view=steamauthenticator&errored=true"
	StartPromptProfileNotPublic StartURI = "index.html?view=pp_prompt__profile_is_not_public"
	StartPromptNoPublicGames    StartURI = "index.html?view=pp_prompt__not_public_game_details_or_user_has_no_games"
	StartPromptUnknownError     StartURI = "index.html?view=pp_prompt__unknown_error"
)

// EndURI is the redirect pattern that completes a step. Each pattern
// contains the marker PassLoginCredentials routes on.
type EndURI string

// Completion patterns.
const (
	EndLoginFinished           EndURI = ".*login_finished.*"
	EndTwoFactorMailFinished   EndURI = ".*two_factor_mail_finished.*"
	EndTwoFactorMobileFinished EndURI = ".*two_factor_mobile_finished.*"
	EndPublicPromptFinished    EndURI = ".*public_prompt_finished.*"
)

// Completion markers PassLoginCredentials routes on.
const (
	markerTwoFactorMobile = "two_factor_mobile_finished"
	markerTwoFactorMail   = "two_factor_mail_finished"
	markerPublicPrompt    = "public_prompt_finished"
	markerLogin           = "login_finished"
)

const (
	windowTitle  = "Login to Steam"
	windowWidth  = 500
	windowHeight = 460
)

// StepBuilder renders next-step descriptors against the login page base URL.
type StepBuilder struct {
	baseURL string
}

// NewStepBuilder returns a builder for pages served under baseURL.
func NewStepBuilder(baseURL string) StepBuilder {
	return StepBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// Step returns the descriptor for start and end.
func (b StepBuilder) Step(start StartURI, end EndURI) models.AuthResult {
	return models.Step(models.NextStep{
		NextStep: models.StepWebSession,
		AuthParams: models.WebSessionParams{
			WindowTitle:  windowTitle,
			WindowWidth:  windowWidth,
			WindowHeight: windowHeight,
			StartURI:     b.baseURL + "/" + string(start),
			EndURIRegex:  string(end),
		},
	})
}
