// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package protocol

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/steambridge/internal/cache"
	"github.com/tomtom215/steambridge/internal/models"
	"github.com/tomtom215/steambridge/internal/storage"
)

// fakeCM is a scripted connection manager. handle runs on the server's read
// goroutine for every message the client sends.
type fakeCM struct {
	server *httptest.Server

	mu       sync.Mutex
	received []Envelope
}

func newFakeCM(t *testing.T, handle func(conn *websocket.Conn, env Envelope)) *fakeCM {
	t.Helper()

	f := &fakeCM{}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/cmsocket/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			f.mu.Lock()
			f.received = append(f.received, env)
			f.mu.Unlock()
			handle(conn, env)
		}
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCM) addr() string {
	return strings.TrimPrefix(f.server.URL, "http://")
}

func (f *fakeCM) messages(msgType string) []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Envelope
	for _, env := range f.received {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

func reply(conn *websocket.Conn, msgType string, jobID uint64, body interface{}) {
	data, err := Encode(msgType, jobID, body)
	if err != nil {
		panic(err)
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func acceptToken(conn *websocket.Conn, env Envelope) bool {
	if env.Type != MsgLogonToken {
		return false
	}
	reply(conn, MsgLogonResult, 0, logonResultBody{Result: LogonOK, SteamID: "76561197960287930", RefreshToken: "tok"})
	reply(conn, MsgAccountInfo, 0, accountInfoBody{SteamID: "76561197960287930", PersonaName: "Gabe"})
	return true
}

func newTestSession(f *fakeCM, caches *cache.Set) (*Session, *Queues) {
	queues := NewQueues()
	s := NewSession(Config{
		Servers:        StaticServers{f.addr()},
		DialTimeout:    2 * time.Second,
		RequestTimeout: 2 * time.Second,
		PingInterval:   time.Second,
		FriendsTimeout: 2 * time.Second,
	}, caches, queues, "machine-1")
	return s, queues
}

func startRun(t *testing.T, s *Session) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	t.Cleanup(func() {
		s.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.WaitClosed(ctx)
	})
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not exit")
		return nil
	}
}

func TestSessionPasswordLogonWithEmailCode(t *testing.T) {
	t.Parallel()

	f := newFakeCM(t, func(conn *websocket.Conn, env Envelope) {
		if env.Type != MsgLogon {
			return
		}
		var body logonBody
		_ = json.Unmarshal(env.Body, &body)
		switch {
		case body.TwoFactorCode == "":
			reply(conn, MsgLogonResult, 0, logonResultBody{Result: LogonEmailCodeRequired})
		case body.TwoFactorCode == "ABCDE" && body.CodeType == CodeTypeEmail:
			reply(conn, MsgLogonResult, 0, logonResultBody{Result: LogonOK, SteamID: "76561197960287930", RefreshToken: "tok"})
			reply(conn, MsgAccountInfo, 0, accountInfoBody{SteamID: "76561197960287930", PersonaName: "Gabe"})
			reply(conn, MsgLicenses, 0, licensesBody{Apps: []models.App{{AppID: 10, Title: "Counter-Strike"}}, Complete: true})
		default:
			reply(conn, MsgLogonResult, 0, logonResultBody{Result: "invalid_code"})
		}
	})

	caches := cache.NewSet(8)
	caches.UserInfo.SetAccountUsername("gabe")
	s, queues := newTestSession(f, caches)
	errCh := startRun(t, s)
	ctx := context.Background()

	if err := queues.Submit(ctx, CredentialSubmission{Password: "hunter2"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r, _ := queues.Await(ctx, 5*time.Second); r != EmailTwoFactorRequired {
		t.Fatalf("first result = %v, want email two factor", r)
	}

	if err := queues.Submit(ctx, CredentialSubmission{Password: "hunter2", TwoFactorCode: "ABCDE"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r, _ := queues.Await(ctx, 5*time.Second); r != NoActionRequired {
		t.Fatalf("second result = %v, want no action required", r)
	}

	if err := caches.UserInfo.WaitReady(ctx, 5*time.Second); err != nil {
		t.Fatalf("identity not ready: %v", err)
	}
	if err := caches.Games.WaitReady(ctx, 5*time.Second); err != nil {
		t.Fatalf("games not ready: %v", err)
	}
	if got := caches.UserInfo.PersonaName(); got != "Gabe" {
		t.Errorf("persona = %q", got)
	}

	hello := f.messages(MsgHello)
	if len(hello) != 1 {
		t.Fatalf("hello messages = %d, want 1", len(hello))
	}
	var hb helloBody
	_ = json.Unmarshal(hello[0].Body, &hb)
	if hb.MachineID != "machine-1" {
		t.Errorf("machine id = %q", hb.MachineID)
	}
	logons := f.messages(MsgLogon)
	var lb logonBody
	_ = json.Unmarshal(logons[0].Body, &lb)
	if lb.AccountName != "gabe" {
		t.Errorf("account name = %q", lb.AccountName)
	}

	s.Close()
	if err := waitRun(t, errCh); err != nil {
		t.Errorf("Run after Close = %v, want nil", err)
	}
}

func TestSessionTokenLogonRejected(t *testing.T) {
	t.Parallel()

	f := newFakeCM(t, func(conn *websocket.Conn, env Envelope) {
		if env.Type == MsgLogonToken {
			reply(conn, MsgLogonResult, 0, logonResultBody{Result: "access_denied"})
		}
	})

	caches := cache.NewSet(8)
	caches.UserInfo.FromCredentials(map[string]string{
		cache.CredentialSteamID:      "76561197960287930",
		cache.CredentialRefreshToken: "not-a-jwt",
	})
	s, _ := newTestSession(f, caches)
	errCh := startRun(t, s)

	if err := waitRun(t, errCh); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Run = %v, want ErrInvalidCredentials", err)
	}
}

func TestSessionJobRequests(t *testing.T) {
	t.Parallel()

	f := newFakeCM(t, func(conn *websocket.Conn, env Envelope) {
		if acceptToken(conn, env) {
			reply(conn, MsgFriendsList, 0, friendsListBody{SteamIDs: []string{"76561197960287931"}})
			return
		}
		switch env.Type {
		case MsgGetFriendsInfo:
			reply(conn, MsgFriendsInfo, env.JobID, friendsInfoBody{Friends: map[string]models.FriendInfo{
				"76561197960287931": {Name: "Robin", State: models.PersonaOnline},
			}})
		case MsgGetNicknames:
			reply(conn, MsgNicknames, env.JobID, nicknamesBody{Nicknames: map[string]string{"76561197960287931": "rob"}})
		case MsgGetCollections:
			reply(conn, MsgError, env.JobID, errorBody{Message: "cloud storage unavailable"})
		case MsgGetPlaytimes:
			reply(conn, MsgPlaytimes, 0, playtimesBody{Games: []playtimeEntry{{AppID: 10, TimePlayed: 42, LastPlayed: 1700000000}}, Complete: true})
		}
	})

	caches := cache.NewSet(8)
	caches.UserInfo.FromCredentials(map[string]string{cache.CredentialRefreshToken: "tok"})
	s, _ := newTestSession(f, caches)
	startRun(t, s)
	ctx := context.Background()

	if err := caches.UserInfo.WaitReady(ctx, 5*time.Second); err != nil {
		t.Fatalf("identity not ready: %v", err)
	}

	friends, err := s.GetFriends(ctx)
	if err != nil || len(friends) != 1 {
		t.Fatalf("GetFriends = %v, %v", friends, err)
	}

	infos, err := s.GetFriendsInfo(ctx, friends)
	if err != nil {
		t.Fatalf("GetFriendsInfo: %v", err)
	}
	if infos["76561197960287931"].Name != "Robin" {
		t.Errorf("infos = %v", infos)
	}
	if _, ok := caches.Friends.Info("76561197960287931"); !ok {
		t.Error("friend info not cached")
	}

	nicks, err := s.GetFriendsNicknames(ctx)
	if err != nil || nicks["76561197960287931"] != "rob" {
		t.Errorf("GetFriendsNicknames = %v, %v", nicks, err)
	}

	if _, err := s.RetrieveCollections(ctx); !errors.Is(err, models.ErrUnrecognizedBackendResponse) {
		t.Errorf("RetrieveCollections err = %v, want unrecognized response", err)
	}

	caches.Times.BeginImport(nil)
	if err := s.RefreshGameTimes(ctx); err != nil {
		t.Fatalf("RefreshGameTimes: %v", err)
	}
	if err := caches.Times.WaitReady(ctx, 5*time.Second); err != nil {
		t.Fatalf("times not ready: %v", err)
	}
	if got, ok := caches.Times.Get(10); !ok || got.TimePlayed != 42 {
		t.Errorf("times[10] = %+v, %v", got, ok)
	}
}

func TestSessionRequestTimeout(t *testing.T) {
	t.Parallel()

	f := newFakeCM(t, func(conn *websocket.Conn, env Envelope) {
		acceptToken(conn, env)
	})

	caches := cache.NewSet(8)
	caches.UserInfo.FromCredentials(map[string]string{cache.CredentialRefreshToken: "tok"})
	s, _ := newTestSession(f, caches)
	s.cfg.RequestTimeout = 50 * time.Millisecond
	startRun(t, s)
	ctx := context.Background()

	if err := caches.UserInfo.WaitReady(ctx, 5*time.Second); err != nil {
		t.Fatalf("identity not ready: %v", err)
	}
	if _, err := s.GetFriendsNicknames(ctx); !errors.Is(err, models.ErrBackendTimeout) {
		t.Errorf("err = %v, want backend timeout", err)
	}
}

func TestSessionLoggedOff(t *testing.T) {
	t.Parallel()

	f := newFakeCM(t, func(conn *websocket.Conn, env Envelope) {
		if acceptToken(conn, env) {
			reply(conn, MsgLoggedOff, 0, loggedOffBody{Reason: "logged_in_elsewhere"})
		}
	})

	caches := cache.NewSet(8)
	caches.UserInfo.FromCredentials(map[string]string{cache.CredentialRefreshToken: "tok"})
	s, _ := newTestSession(f, caches)

	lost := make(chan string, 1)
	s.OnAuthenticationLost(func(reason string) { lost <- reason })
	errCh := startRun(t, s)

	if err := waitRun(t, errCh); !errors.Is(err, ErrLoggedOff) {
		t.Fatalf("Run = %v, want ErrLoggedOff", err)
	}
	select {
	case reason := <-lost:
		if reason != "logged_in_elsewhere" {
			t.Errorf("reason = %q", reason)
		}
	default:
		t.Error("authentication lost handler not called")
	}
}

func TestSessionDialFailure(t *testing.T) {
	t.Parallel()

	s := NewSession(Config{Servers: StaticServers{"127.0.0.1:1"}, DialTimeout: time.Second}, cache.NewSet(1), NewQueues(), "m")
	err := s.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connect to connection manager") {
		t.Fatalf("Run = %v, want dial error", err)
	}
	if err := s.WaitClosed(context.Background()); err != nil {
		t.Errorf("WaitClosed = %v", err)
	}
}

func TestSessionCancelReturnsContextError(t *testing.T) {
	t.Parallel()

	f := newFakeCM(t, func(*websocket.Conn, Envelope) {})
	s, _ := newTestSession(f, cache.NewSet(1))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := waitRun(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestWaitClosedBeforeRun(t *testing.T) {
	t.Parallel()

	s := NewSession(Config{Servers: StaticServers{"x:1"}}, cache.NewSet(1), NewQueues(), "m")
	if err := s.WaitClosed(context.Background()); err != nil {
		t.Errorf("WaitClosed = %v", err)
	}
}

func TestMachineIDStable(t *testing.T) {
	t.Parallel()

	state := storage.NewState()
	first := MachineID(state)
	if first == "" || !state.Modified() {
		t.Fatalf("MachineID = %q, modified = %v", first, state.Modified())
	}
	if second := MachineID(state); second != first {
		t.Errorf("MachineID changed: %q then %q", first, second)
	}
}
