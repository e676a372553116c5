// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package models

// Authentication is the terminal success result of a login or resume.
type Authentication struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// StepWebSession is the only step kind the login flow emits.
const StepWebSession = "web_session"

// WebSessionParams tells the host which page to open and which redirect
// completes the step.
type WebSessionParams struct {
	WindowTitle  string `json:"window_title"`
	WindowWidth  int    `json:"window_width"`
	WindowHeight int    `json:"window_height"`
	StartURI     string `json:"start_uri"`
	EndURIRegex  string `json:"end_uri_regex"`
}

// NextStep asks the host for another interactive round. It is a normal
// outcome of a login call, never an error.
type NextStep struct {
	NextStep   string           `json:"next_step"`
	AuthParams WebSessionParams `json:"auth_params"`
}

// AuthResult is returned by every login entry point: exactly one of the two
// fields is set.
type AuthResult struct {
	Authentication *Authentication `json:"authentication,omitempty"`
	NextStep       *NextStep       `json:"next_step,omitempty"`
}

// Authenticated wraps a terminal success.
func Authenticated(userID, userName string) AuthResult {
	return AuthResult{Authentication: &Authentication{UserID: userID, UserName: userName}}
}

// Step wraps a next-step descriptor.
func Step(step NextStep) AuthResult {
	return AuthResult{NextStep: &step}
}

// IsStep reports whether the result asks for another interactive round.
func (r AuthResult) IsStep() bool {
	return r.NextStep != nil
}

// LoginCredentials is the host's completion payload for a step. EndURI is the
// URL the login page redirected to, carrying the form fields as query
// parameters.
type LoginCredentials struct {
	EndURI string `json:"end_uri" validate:"required"`
}
