// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

// Package websocket streams host events to local clients over WebSocket.
//
// Every event the host publishes (new games, friend presence, lost
// authentication) is also broadcast to connected clients as
//
//	{"type":"games.added","data":{...}}
//
// so a local UI can follow the session without a NATS subscription.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/steambridge/internal/logging"
)

// Message is one frame sent to clients.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client-initiated keepalive frames.
const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Hub tracks connected clients and fans out broadcasts.
type Hub struct {
	mu        sync.Mutex
	clients   map[*Client]struct{}
	broadcast chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub returns a hub whose broadcast queue holds buffer messages.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 256
	}
	return &Hub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan Message, buffer),
		done:      make(chan struct{}),
	}
}

// Broadcast queues data for every client. It never blocks: when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msgType string, data []byte) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- Message{Type: msgType, Data: data}:
	default:
		logging.Warn().Str("type", msgType).Msg("WebSocket broadcast dropped, queue full")
	}
}

// register adds c unless the hub has stopped.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.clients[c] = struct{}{}
	logging.Info().Int("total_clients", len(h.clients)).Msg("websocket client connected")
	return true
}

// unregister removes c and closes its send queue.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		logging.Info().Int("total_clients", len(h.clients)).Msg("websocket client disconnected")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve delivers broadcasts until ctx ends, then disconnects every client.
// It implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.stop()
			return ctx.Err()
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) String() string {
	return "websocket-hub"
}

// fanOut sends msg to clients in connection order. Clients whose queue is
// full are disconnected.
func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedLocked() {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			logging.Warn().Uint64("client_id", c.id).Msg("Disconnecting slow websocket client")
		}
	}
}

func (h *Hub) stop() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		close(h.done)
		n := len(h.clients)
		for _, c := range h.sortedLocked() {
			delete(h.clients, c)
			close(c.send)
		}
		logging.Info().Str("component", "websocket-hub").Int("clients_closed", n).Msg("websocket hub stopped")
	})
}

func (h *Hub) sortedLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}
