// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/steambridge/internal/cache"
	"github.com/tomtom215/steambridge/internal/logging"
	"github.com/tomtom215/steambridge/internal/metrics"
	"github.com/tomtom215/steambridge/internal/models"
)

const writeTimeout = 10 * time.Second

var (
	// ErrNotConnected is returned by requests issued while no connection is up.
	ErrNotConnected = errors.New("protocol session not connected")

	// ErrLoggedOff ends the run loop when the server revokes the session.
	ErrLoggedOff = errors.New("logged off by server")

	// ErrInvalidCredentials ends the run loop when a stored refresh token is
	// rejected.
	ErrInvalidCredentials = errors.New("stored credentials rejected")

	// ErrClosed is returned by requests interrupted by Close.
	ErrClosed = errors.New("protocol session closed")
)

// Config configures a Session.
type Config struct {
	Servers        ServerLister
	UseTLS         bool
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	PingInterval   time.Duration
	FriendsTimeout time.Duration
}

// Session is the long-lived connection to a connection manager.
//
// Run owns the connection: it dials, greets the server, logs on from the
// credential queue or from a stored refresh token, and dispatches pushed
// messages into the caches. Request methods may be called from any goroutine
// while Run is active.
type Session struct {
	cfg       Config
	caches    *cache.Set
	queues    *Queues
	machineID string

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	jobMu   sync.Mutex
	jobs    map[uint64]chan Envelope
	nextJob atomic.Uint64

	callbackMu sync.RWMutex
	onAuthLost func(reason string)

	codeMu   sync.Mutex
	codeType string

	tokenLogon atomic.Bool
	loggedOn   atomic.Bool

	runMu    sync.Mutex
	started  bool
	done     chan struct{}
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewSession creates a session bound to caches and queues. It does not
// connect until Run is called.
func NewSession(cfg Config, caches *cache.Set, queues *Queues, machineID string) *Session {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.FriendsTimeout <= 0 {
		cfg.FriendsTimeout = 30 * time.Second
	}
	return &Session{
		cfg:       cfg,
		caches:    caches,
		queues:    queues,
		machineID: machineID,
		jobs:      make(map[uint64]chan Envelope),
		done:      make(chan struct{}),
		stopChan:  make(chan struct{}),
	}
}

// OnAuthenticationLost registers the handler called when the server ends an
// established session.
func (s *Session) OnAuthenticationLost(fn func(reason string)) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.onAuthLost = fn
}

func (s *Session) authenticationLost(reason string) {
	s.callbackMu.RLock()
	fn := s.onAuthLost
	s.callbackMu.RUnlock()
	if fn != nil {
		fn(reason)
	}
}

// Run connects and serves the session until ctx is canceled, Close is
// called, or the connection fails in a way that cannot be recovered.
//
// A Session runs at most once. Run returns nil after Close or a normal close
// from the server, ctx.Err() after cancellation, and otherwise the error that
// ended the loop. Once logged on, dropped connections are re-established with
// exponential backoff (1s doubling to 32s) and a token logon.
func (s *Session) Run(ctx context.Context) (err error) {
	s.runMu.Lock()
	if s.started {
		s.runMu.Unlock()
		return errors.New("protocol session already started")
	}
	s.started = true
	s.runMu.Unlock()

	defer close(s.done)
	defer func() {
		metrics.RecordRunLoopExit(err, errors.Is(err, context.Canceled))
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	reconnectDelay := 1 * time.Second
	maxReconnectDelay := 32 * time.Second

	for {
		err := s.runConnection(ctx)
		if s.stopped() {
			logging.Info().Msg("Protocol session stopped")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			logging.Info().Msg("Connection manager closed the session")
			return nil
		}
		if !s.loggedOn.Load() || errors.Is(err, ErrLoggedOff) || errors.Is(err, ErrInvalidCredentials) {
			return err
		}

		logging.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("Protocol connection lost, reconnecting")
		select {
		case <-ctx.Done():
			if s.stopped() {
				return nil
			}
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
		reconnectDelay *= 2
		if reconnectDelay > maxReconnectDelay {
			reconnectDelay = maxReconnectDelay
		}
	}
}

func (s *Session) stopped() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

// runConnection serves one connection until it fails or ctx ends.
func (s *Session) runConnection(ctx context.Context) error {
	servers, err := s.cfg.Servers.Servers(ctx)
	if err != nil {
		return err
	}

	conn, server, err := s.dial(ctx, servers)
	if err != nil {
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	metrics.SessionConnected.Set(1)
	logging.Info().Str("server", server).Msg("Connected to connection manager")

	readErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr <- s.readLoop(conn)
	}()

	defer func() {
		s.closeConnection()
		wg.Wait()
		metrics.SessionConnected.Set(0)
	}()

	if err := s.send(ctx, MsgHello, 0, helloBody{MachineID: s.machineID}); err != nil {
		return err
	}
	if err := s.logonWithToken(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case sub := <-s.queues.Submissions():
			if err := s.logonWithPassword(ctx, sub); err != nil {
				s.queues.Publish(OtherFailure)
				return err
			}
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return fmt.Errorf("send ping: %w", err)
			}
		}
	}
}

func (s *Session) dial(ctx context.Context, servers []string) (*websocket.Conn, string, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  s.cfg.DialTimeout,
		EnableCompression: true,
	}

	var lastErr error
	for _, server := range servers {
		conn, resp, err := dialer.DialContext(ctx, s.endpointURL(server), nil)
		if resp != nil {
			resp.Body.Close()
		}
		if err == nil {
			return conn, server, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		if resp != nil {
			lastErr = fmt.Errorf("websocket dial %s failed (HTTP %d): %w", server, resp.StatusCode, err)
		} else {
			lastErr = fmt.Errorf("websocket dial %s: %w", server, err)
		}
		logging.Warn().Err(lastErr).Msg("Connection manager unreachable, trying next")
	}
	if lastErr == nil {
		lastErr = errors.New("empty server list")
	}
	return nil, "", fmt.Errorf("connect to connection manager: %w", lastErr)
}

func (s *Session) endpointURL(server string) string {
	scheme := "ws"
	if s.cfg.UseTLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/cmsocket/", scheme, server)
}

func (s *Session) closeConnection() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return
	}

	s.writeMu.Lock()
	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		logging.Debug().Err(err).Msg("Failed to send close frame")
	}

	if err := s.conn.Close(); err != nil {
		logging.Debug().Err(err).Msg("Error closing protocol connection")
	}
	s.conn = nil
}

func (s *Session) readLoop(conn *websocket.Conn) error {
	readTimeout := 2 * s.cfg.PingInterval
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.Warn().Err(err).Msg("Discarding malformed protocol message")
			continue
		}

		if err := s.handleMessage(env); err != nil {
			return err
		}
	}
}

// handleMessage routes one message. Only errors that end the session are
// returned; malformed bodies are logged and skipped.
func (s *Session) handleMessage(env Envelope) error {
	metrics.ProtocolMessages.WithLabelValues("in", env.Type).Inc()

	if env.JobID != 0 && s.deliverJob(env) {
		return nil
	}

	var err error
	switch env.Type {
	case MsgLogonResult:
		return s.handleLogonResult(env)
	case MsgAccountInfo:
		var body accountInfoBody
		if err = env.Decode(&body); err == nil {
			s.caches.UserInfo.SetAccountInfo(body.SteamID, body.PersonaName)
		}
	case MsgLicenses:
		var body licensesBody
		if err = env.Decode(&body); err == nil {
			s.caches.Games.Update(body.Apps, body.Complete)
		}
	case MsgFriendsList:
		var body friendsListBody
		if err = env.Decode(&body); err == nil {
			s.caches.Friends.SetFriends(body.SteamIDs)
		}
	case MsgPersonaState:
		var body personaStateBody
		if err = env.Decode(&body); err == nil {
			s.caches.Friends.UpdateInfo(body.SteamID, body.Info)
		}
	case MsgGameStats:
		var body gameStatsBody
		if err = env.Decode(&body); err == nil {
			s.caches.Stats.Put(body.AppID, models.GameStats{AppID: body.AppID, Achievements: body.Achievements})
		}
	case MsgPlaytimes:
		var body playtimesBody
		if err = env.Decode(&body); err == nil {
			for _, g := range body.Games {
				s.caches.Times.Put(g.AppID, models.GameTimes{AppID: g.AppID, TimePlayed: g.TimePlayed, LastPlayed: g.LastPlayed})
			}
			if body.Complete {
				s.caches.Times.Complete()
			}
		}
	case MsgLoggedOff:
		var body loggedOffBody
		_ = env.Decode(&body)
		logging.Warn().Str("reason", body.Reason).Msg("Logged off by connection manager")
		s.authenticationLost(body.Reason)
		return fmt.Errorf("%w: %s", ErrLoggedOff, body.Reason)
	case MsgError:
		var body errorBody
		_ = env.Decode(&body)
		logging.Warn().Str("message", body.Message).Msg("Connection manager reported an error")
	default:
		logging.Debug().Str("type", env.Type).Msg("Ignoring unhandled protocol message")
	}

	if err != nil {
		logging.Warn().Err(err).Str("type", env.Type).Msg("Discarding protocol message")
	}
	return nil
}

func (s *Session) handleLogonResult(env Envelope) error {
	var body logonResultBody
	if err := env.Decode(&body); err != nil {
		if s.tokenLogon.Load() {
			return err
		}
		logging.Warn().Err(err).Msg("Malformed logon result")
		s.queues.Publish(OtherFailure)
		return nil
	}

	if s.tokenLogon.Load() {
		if body.Result != LogonOK {
			if s.loggedOn.Load() {
				s.authenticationLost(body.Result)
			}
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, body.Result)
		}
		s.caches.UserInfo.SetLogon(body.SteamID, body.RefreshToken)
		s.loggedOn.Store(true)
		logging.Info().Str("steam_id", body.SteamID).Msg("Logged on with stored credentials")
		return nil
	}

	switch body.Result {
	case LogonOK:
		s.caches.UserInfo.SetLogon(body.SteamID, body.RefreshToken)
		s.loggedOn.Store(true)
		logging.Info().Str("steam_id", body.SteamID).Msg("Logged on")
		s.queues.Publish(NoActionRequired)
	case LogonEmailCodeRequired:
		s.setCodeType(CodeTypeEmail)
		s.queues.Publish(EmailTwoFactorRequired)
	case LogonMobileCodeRequired:
		s.setCodeType(CodeTypeMobile)
		s.queues.Publish(PhoneTwoFactorRequired)
	default:
		logging.Info().Str("result", body.Result).Msg("Logon failed")
		s.queues.Publish(OtherFailure)
	}
	return nil
}

func (s *Session) setCodeType(t string) {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()
	s.codeType = t
}

func (s *Session) currentCodeType() string {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()
	return s.codeType
}

func (s *Session) logonWithToken(ctx context.Context) error {
	token := s.caches.UserInfo.RefreshToken()
	if token == "" {
		return nil
	}
	s.tokenLogon.Store(true)
	return s.send(ctx, MsgLogonToken, 0, logonTokenBody{
		AccountName:  s.caches.UserInfo.AccountUsername(),
		SteamID:      s.caches.UserInfo.SteamID(),
		RefreshToken: token,
	})
}

func (s *Session) logonWithPassword(ctx context.Context, sub CredentialSubmission) error {
	body := logonBody{
		AccountName: s.caches.UserInfo.AccountUsername(),
		Password:    sub.Password,
	}
	if sub.TwoFactorCode != "" {
		body.TwoFactorCode = sub.TwoFactorCode
		body.CodeType = s.currentCodeType()
	}
	s.tokenLogon.Store(false)
	return s.send(ctx, MsgLogon, 0, body)
}

func (s *Session) send(ctx context.Context, msgType string, jobID uint64, body interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(msgType, jobID, body)
	if err != nil {
		return err
	}

	s.connMu.RLock()
	defer s.connMu.RUnlock()
	if s.conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msgType, err)
	}
	metrics.ProtocolMessages.WithLabelValues("out", msgType).Inc()
	return nil
}

// request sends a job and waits for the response carrying its job ID.
func (s *Session) request(ctx context.Context, msgType string, body interface{}, want string) (Envelope, error) {
	id := s.nextJob.Add(1)
	ch := make(chan Envelope, 1)

	s.jobMu.Lock()
	s.jobs[id] = ch
	s.jobMu.Unlock()
	defer func() {
		s.jobMu.Lock()
		delete(s.jobs, id)
		s.jobMu.Unlock()
	}()

	if err := s.send(ctx, msgType, id, body); err != nil {
		return Envelope{}, err
	}

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case env := <-ch:
		if env.Type == MsgError {
			var e errorBody
			_ = env.Decode(&e)
			return Envelope{}, models.Unrecognizedf("%s failed: %s", msgType, e.Message)
		}
		if env.Type != want {
			return Envelope{}, models.Unrecognizedf("%s answered with %s, want %s", msgType, env.Type, want)
		}
		return env, nil
	case <-timer.C:
		return Envelope{}, models.Timeoutf("%s not answered within %s", msgType, s.cfg.RequestTimeout)
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-s.stopChan:
		return Envelope{}, ErrClosed
	}
}

func (s *Session) deliverJob(env Envelope) bool {
	s.jobMu.Lock()
	ch, ok := s.jobs[env.JobID]
	s.jobMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- env:
	default:
	}
	return true
}

// RefreshGameStats asks for the achievement statistics of appIDs. Results
// arrive as game_stats messages into the statistics cache.
func (s *Session) RefreshGameStats(ctx context.Context, appIDs []uint32) error {
	return s.send(ctx, MsgGetGameStats, 0, gameStatsRequest{AppIDs: appIDs})
}

// RefreshGameTimes asks for playtimes of every owned app. Results arrive as
// playtimes messages into the playtime cache.
func (s *Session) RefreshGameTimes(ctx context.Context) error {
	return s.send(ctx, MsgGetPlaytimes, 0, nil)
}

// GetFriends waits for the friend list and returns its IDs.
func (s *Session) GetFriends(ctx context.Context) ([]string, error) {
	if err := s.caches.Friends.WaitReady(ctx, s.cfg.FriendsTimeout); err != nil {
		return nil, err
	}
	return s.caches.Friends.IDs(), nil
}

// GetFriendsInfo fetches persona records for ids and stores them in the
// friends cache.
func (s *Session) GetFriendsInfo(ctx context.Context, ids []string) (map[string]models.FriendInfo, error) {
	env, err := s.request(ctx, MsgGetFriendsInfo, friendsInfoRequest{SteamIDs: ids}, MsgFriendsInfo)
	if err != nil {
		return nil, err
	}
	var body friendsInfoBody
	if err := env.Decode(&body); err != nil {
		return nil, err
	}
	for id, info := range body.Friends {
		s.caches.Friends.UpdateInfo(id, info)
	}
	return body.Friends, nil
}

// GetFriendsNicknames returns the nicknames the user gave to friends.
func (s *Session) GetFriendsNicknames(ctx context.Context) (map[string]string, error) {
	env, err := s.request(ctx, MsgGetNicknames, nil, MsgNicknames)
	if err != nil {
		return nil, err
	}
	var body nicknamesBody
	if err := env.Decode(&body); err != nil {
		return nil, err
	}
	return body.Nicknames, nil
}

// RetrieveCollections returns library collections by name with their app IDs.
func (s *Session) RetrieveCollections(ctx context.Context) (map[string][]uint32, error) {
	env, err := s.request(ctx, MsgGetCollections, nil, MsgCollections)
	if err != nil {
		return nil, err
	}
	var body collectionsBody
	if err := env.Decode(&body); err != nil {
		return nil, err
	}
	return body.Collections, nil
}

// Close logs off and stops Run. It is safe to call more than once.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.send(ctx, MsgLogoff, 0, nil); err != nil && !errors.Is(err, ErrNotConnected) {
			logging.Debug().Err(err).Msg("Failed to send logoff")
		}
		close(s.stopChan)
	})
}

// WaitClosed blocks until Run has returned. It returns at once when Run was
// never started.
func (s *Session) WaitClosed(ctx context.Context) error {
	s.runMu.Lock()
	started := s.started
	s.runMu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
