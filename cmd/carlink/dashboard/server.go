// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/toitlang/carlink/cmd/carlink/input"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
	"golang.org/x/net/websocket"
)

// Link is the part of the connection manager the dashboard uses.
type Link interface {
	link.Sender
	State() link.ConnectionState
}

// Controls is the part of the input dispatcher the dashboard uses.
type Controls interface {
	Press(c input.Control) error
	Release(c input.Control)
}

// Snapshot is the read-only view served to clients.
type Snapshot struct {
	Connection link.ConnectionState `json:"connection"`
	Vehicle    vehicle.State        `json:"vehicle"`
	Derived    vehicle.Derived      `json:"derived"`
}

// Server is an HTTP control surface on top of the bridge.
type Server struct {
	hub      *Hub
	store    *vehicle.Store
	link     Link
	controls Controls
	refresh  time.Duration
	log      hclog.Logger
}

func NewServer(hub *Hub, store *vehicle.Store, l Link, controls Controls, refresh time.Duration, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{
		hub:      hub,
		store:    store,
		link:     l,
		controls: controls,
		refresh:  refresh,
		log:      logger,
	}
}

func (s *Server) Snapshot() Snapshot {
	state := s.store.Snapshot()
	return Snapshot{
		Connection: s.link.State(),
		Vehicle:    state,
		Derived:    state.Derive(s.store.Limits()),
	}
}

// Run pushes a state event to clients on every refresh where something
// changed, until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	var lastVersion uint64
	var lastConn link.ConnectionState
	first := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		_, version := s.store.SnapshotVersion()
		conn := s.link.State()
		if !first && version == lastVersion && conn == lastConn {
			continue
		}
		first = false
		lastVersion, lastConn = version, conn
		snap := s.Snapshot()
		s.hub.Broadcast(Event{Type: "state", State: &snap})
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/command/", s.handleCommand)
	mux.HandleFunc("/control/", s.handleControl)
	mux.Handle("/events", websocket.Handler(s.handleEvents))
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// handleCommand serves POST /command/<NAME>.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cmd, err := link.ParseCommand(strings.TrimPrefix(r.URL.Path, "/command/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.link.Send(cmd); err != nil {
		s.log.Debug("command not sent", "command", cmd, "error", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleControl serves POST /control/<control>/<press|release>.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/control/"), "/"), "/")
	if len(parts) != 2 {
		writeError(w, http.StatusBadRequest, errors.New("expected /control/<control>/<press|release>"))
		return
	}
	c, err := input.ParseControl(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch parts[1] {
	case "press":
		if err := s.controls.Press(c); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
	case "release":
		s.controls.Release(c)
	default:
		writeError(w, http.StatusBadRequest, errors.New("action must be press or release"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleEvents(ws *websocket.Conn) {
	c := s.hub.subscribe()
	defer s.hub.unsubscribe(c)

	// The client never talks; a failed read means it went away.
	go func() {
		io.Copy(io.Discard, ws)
		s.hub.unsubscribe(c)
	}()

	snap := s.Snapshot()
	if err := websocket.JSON.Send(ws, Event{Type: "state", State: &snap}); err != nil {
		return
	}
	for msg := range c.send {
		ws.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := ws.Write(msg); err != nil {
			return
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Add("Content-Type", "text/html")
	w.Write([]byte(indexPage))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

const indexPage = `<html>
<head><title>carlink</title></head>
<body>
	<h1>carlink</h1>
	<pre id="state">connecting...</pre>
	<pre id="lines"></pre>
	<script>
	const ws = new WebSocket("ws://" + location.host + "/events");
	const lines = [];
	ws.onmessage = (m) => {
		const e = JSON.parse(m.data);
		if (e.type === "state") {
			document.getElementById("state").textContent = JSON.stringify(e.state, null, 2);
		} else if (e.type === "line") {
			lines.push(e.line);
			if (lines.length > 20) lines.shift();
			document.getElementById("lines").textContent = lines.join("\n");
		}
	};
	</script>
</body>
</html>
`
