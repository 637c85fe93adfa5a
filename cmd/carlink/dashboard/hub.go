// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package dashboard

import (
	"encoding/json"
	"sync"

	"github.com/hashicorp/go-hclog"
)

const clientBuffer = 64

// Event is one message on the /events stream.
type Event struct {
	Type      string    `json:"type"`
	Connected *bool     `json:"connected,omitempty"`
	Message   string    `json:"message,omitempty"`
	Line      string    `json:"line,omitempty"`
	State     *Snapshot `json:"state,omitempty"`
}

// Hub fans link notifications and state pushes out to websocket clients.
// A client that cannot keep up is dropped.
type Hub struct {
	log hclog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

func NewHub(logger hclog.Logger) *Hub {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Hub{
		log:     logger,
		clients: map[*client]struct{}{},
	}
}

func (h *Hub) ConnectionChanged(connected bool, message string) {
	h.Broadcast(Event{Type: "connection", Connected: &connected, Message: message})
}

func (h *Hub) LineReceived(line string) {
	h.Broadcast(Event{Type: "line", Line: line})
}

// Broadcast sends e to every client without blocking.
func (h *Hub) Broadcast(e Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.log.Error("failed to encode event", "type", e.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Debug("dropping slow client")
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) subscribe() *client {
	c := &client{send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
