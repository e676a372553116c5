// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package models

import "time"

// APIResponse wraps every host API response.
//
//	{"status":"success","data":[...],"metadata":{"timestamp":"2026-01-02T15:04:05Z"}}
//	{"status":"error","error":{"code":"AUTHENTICATION_REQUIRED","message":"..."},"metadata":{...}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries the response timestamp and handler duration.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is the error payload of a failed response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
