// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package protocol

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/steambridge/internal/models"
)

// Client to server message types.
const (
	MsgHello          = "hello"
	MsgLogon          = "logon"
	MsgLogonToken     = "logon_token"
	MsgGetGameStats   = "get_game_stats"
	MsgGetPlaytimes   = "get_playtimes"
	MsgGetFriendsInfo = "get_friends_info"
	MsgGetNicknames   = "get_nicknames"
	MsgGetCollections = "get_collections"
	MsgLogoff         = "logoff"
)

// Server to client message types.
const (
	MsgLogonResult  = "logon_result"
	MsgAccountInfo  = "account_info"
	MsgLicenses     = "licenses"
	MsgFriendsList  = "friends_list"
	MsgPersonaState = "persona_state"
	MsgGameStats    = "game_stats"
	MsgPlaytimes    = "playtimes"
	MsgFriendsInfo  = "friends_info"
	MsgNicknames    = "nicknames"
	MsgCollections  = "collections"
	MsgLoggedOff    = "logged_off"
	MsgError        = "error"
)

// Logon result codes.
const (
	LogonOK                 = "ok"
	LogonEmailCodeRequired  = "email_code_required"
	LogonMobileCodeRequired = "mobile_code_required"
)

// Two-factor code kinds sent with a logon.
const (
	CodeTypeEmail  = "email"
	CodeTypeMobile = "mobile"
)

// Envelope frames every message on the socket. JobID correlates a response
// with the request that asked for it and is zero for pushed messages.
type Envelope struct {
	Type  string          `json:"type"`
	JobID uint64          `json:"job_id,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// Encode builds an envelope around body.
func Encode(msgType string, jobID uint64, body interface{}) ([]byte, error) {
	env := Envelope{Type: msgType, JobID: jobID}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", msgType, err)
		}
		env.Body = raw
	}
	return json.Marshal(env)
}

// Decode parses an envelope body into out. Shape errors are reported as
// unrecognized backend responses.
func (e Envelope) Decode(out interface{}) error {
	if len(e.Body) == 0 {
		return models.Unrecognizedf("%s message has no body", e.Type)
	}
	if err := json.Unmarshal(e.Body, out); err != nil {
		return models.Unrecognizedf("decode %s body: %v", e.Type, err)
	}
	return nil
}

type helloBody struct {
	MachineID string `json:"machine_id"`
}

type logonBody struct {
	AccountName   string `json:"account_name"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"two_factor_code,omitempty"`
	CodeType      string `json:"code_type,omitempty"`
}

type logonTokenBody struct {
	AccountName  string `json:"account_name"`
	SteamID      string `json:"steam_id"`
	RefreshToken string `json:"refresh_token"`
}

type logonResultBody struct {
	Result       string `json:"result"`
	SteamID      string `json:"steam_id,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type accountInfoBody struct {
	SteamID     string `json:"steam_id"`
	PersonaName string `json:"persona_name"`
}

type licensesBody struct {
	Apps     []models.App `json:"apps"`
	Complete bool         `json:"complete"`
}

type friendsListBody struct {
	SteamIDs []string `json:"steam_ids"`
}

type personaStateBody struct {
	SteamID string            `json:"steam_id"`
	Info    models.FriendInfo `json:"info"`
}

type gameStatsRequest struct {
	AppIDs []uint32 `json:"app_ids"`
}

type gameStatsBody struct {
	AppID        uint32                     `json:"app_id"`
	Achievements []models.AchievementRecord `json:"achievements"`
}

type playtimeEntry struct {
	AppID      uint32 `json:"app_id"`
	TimePlayed int64  `json:"time_played"`
	LastPlayed int64  `json:"last_played"`
}

type playtimesBody struct {
	Games    []playtimeEntry `json:"games"`
	Complete bool            `json:"complete"`
}

type friendsInfoRequest struct {
	SteamIDs []string `json:"steam_ids"`
}

type friendsInfoBody struct {
	Friends map[string]models.FriendInfo `json:"friends"`
}

type nicknamesBody struct {
	Nicknames map[string]string `json:"nicknames"`
}

type collectionsBody struct {
	Collections map[string][]uint32 `json:"collections"`
}

type loggedOffBody struct {
	Reason string `json:"reason"`
}

type errorBody struct {
	Message string `json:"message"`
}
