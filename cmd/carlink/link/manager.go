// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

// FramePrefix marks lines that are meant for display only.
const FramePrefix = "---"

// Status is the connection status of the manager.
type Status int

const (
	Disconnected Status = iota
	Searching
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Searching:
		return "searching"
	case Connected:
		return "connected"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for _, st := range []Status{Disconnected, Searching, Connected} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection status '%s'", text)
}

// ConnectionState is a snapshot of the link.
type ConnectionState struct {
	Status    Status `json:"status" yaml:"status"`
	Port      string `json:"port,omitempty" yaml:"port,omitempty"`
	Session   string `json:"session,omitempty" yaml:"session,omitempty"`
	LastError string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Config holds the timing and handshake parameters of a Manager.
type Config struct {
	Baud         int
	ReadTimeout  time.Duration
	Backoff      time.Duration
	BootSettle   time.Duration
	ProbeWindow  time.Duration
	PollInterval time.Duration
	Probe        Command
	// Expect, if non-empty, must appear in the probe response for a
	// candidate to be accepted. Empty accepts any response.
	Expect    string
	Preferred string
	Filter    bool
}

// Manager discovers the device, keeps the link up and feeds inbound
// telemetry into a vehicle store.
type Manager struct {
	cfg      Config
	store    *vehicle.Store
	log      hclog.Logger
	observer Observer
	open     Opener
	list     Lister

	mu    sync.Mutex
	state ConnectionState
	port  Port

	writeMu sync.Mutex
}

type Option func(*Manager)

func WithLogger(l hclog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

func WithOpener(o Opener) Option {
	return func(m *Manager) { m.open = o }
}

func WithLister(l Lister) Option {
	return func(m *Manager) { m.list = l }
}

func NewManager(cfg Config, store *vehicle.Store, opts ...Option) *Manager {
	if cfg.Probe == "" {
		cfg.Probe = QueryStatus
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		log:      hclog.NewNullLogger(),
		observer: NopObserver{},
		open:     OpenSerial,
		list:     ListSerial,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool {
	return m.State().Status == Connected
}

// Send writes cmd followed by a newline to the active port. A failed write
// does not demote the link; the read loop notices a dead port.
func (m *Manager) Send(cmd Command) error {
	m.mu.Lock()
	port := m.port
	m.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := writeAll(port, []byte(string(cmd)+"\n")); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, cmd, err)
	}
	if err := drain(port); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, cmd, err)
	}
	return nil
}

// Run scans for the device and services the link until ctx is done.
// Cancelling ctx closes the active port so that a pending read returns.
func (m *Manager) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { m.closeActive() })
	defer stop()

	for ctx.Err() == nil {
		port, reader, err := m.discover(ctx)
		if err != nil {
			if errors.Is(err, ErrScanExhausted) {
				m.log.Debug("scan exhausted", "backoff", m.cfg.Backoff)
				sleep(ctx, m.cfg.Backoff)
			}
			continue
		}
		m.serve(ctx, port, reader)
	}

	m.closeActive()
	m.setState(ConnectionState{Status: Disconnected})
	return nil
}

// discover probes every candidate port once, in order, and returns the first
// that answers.
func (m *Manager) discover(ctx context.Context) (Port, *lineReader, error) {
	m.setState(ConnectionState{Status: Searching, LastError: m.State().LastError})
	m.observer.ConnectionChanged(false, "searching for device")

	ports, err := m.list()
	if err != nil {
		m.log.Warn("failed to list serial ports", "error", err)
		return nil, nil, fmt.Errorf("%w: %w", ErrScanExhausted, err)
	}

	for _, name := range Candidates(ports, m.cfg.Preferred, m.cfg.Filter) {
		port, pending, err := m.tryCandidate(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			m.log.Debug("candidate rejected", "port", name, "error", err)
			continue
		}
		if err := port.SetReadTimeout(m.cfg.ReadTimeout); err != nil {
			m.log.Debug("candidate rejected", "port", name, "error", err)
			port.Close()
			continue
		}

		session := uuid.New().String()
		m.mu.Lock()
		m.port = port
		m.state = ConnectionState{Status: Connected, Port: name, Session: session}
		m.mu.Unlock()
		m.log.Info("connected", "port", name, "session", session)
		m.observer.ConnectionChanged(true, "connected: "+name)
		return port, newLineReader(port, pending), nil
	}
	return nil, nil, ErrScanExhausted
}

// tryCandidate opens a port, lets the board boot and sends the probe. It
// returns whatever the device answered with.
func (m *Manager) tryCandidate(ctx context.Context, name string) (Port, []byte, error) {
	m.log.Debug("probing", "port", name)
	port, err := m.open(name, m.cfg.Baud)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %s: %w", ErrPortOpen, name, err)
	}

	// Many boards reset when the port is opened.
	if !sleep(ctx, m.cfg.BootSettle) {
		port.Close()
		return nil, nil, ctx.Err()
	}

	pending, err := m.probe(ctx, port)
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	return port, pending, nil
}

func (m *Manager) probe(ctx context.Context, port Port) ([]byte, error) {
	if err := writeAll(port, []byte(string(m.cfg.Probe)+"\n")); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProbeTimeout, err)
	}
	if err := drain(port); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProbeTimeout, err)
	}

	deadline := time.Now().Add(m.cfg.ProbeWindow)
	var got []byte
	chunk := make([]byte, 256)
	for ctx.Err() == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := port.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProbeTimeout, err)
		}
		n, err := port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProbeTimeout, err)
		}
		if n == 0 {
			break
		}
		got = append(got, chunk[:n]...)
		if m.cfg.Expect == "" || bytes.Contains(got, []byte(m.cfg.Expect)) {
			return got, nil
		}
	}
	if len(got) > 0 {
		return nil, fmt.Errorf("%w: response lacks '%s'", ErrProbeTimeout, m.cfg.Expect)
	}
	return nil, ErrProbeTimeout
}

// serve runs the read loop until the port fails or ctx is done.
func (m *Manager) serve(ctx context.Context, port Port, reader *lineReader) {
	for ctx.Err() == nil {
		raw, ok, err := reader.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.lost(port, fmt.Errorf("%w: %w", ErrRead, err))
			return
		}
		if !ok {
			sleep(ctx, m.cfg.PollInterval)
			continue
		}
		m.handleLine(cleanLine(raw))
	}
}

func (m *Manager) handleLine(line string) {
	if line == "" {
		return
	}
	m.observer.LineReceived(line)
	if strings.HasPrefix(line, FramePrefix) {
		return
	}
	m.store.Apply(line)
}

func (m *Manager) lost(port Port, err error) {
	m.mu.Lock()
	name := m.state.Port
	if m.port == port {
		m.port = nil
	}
	m.state = ConnectionState{Status: Disconnected, LastError: err.Error()}
	m.mu.Unlock()

	port.Close()
	m.log.Warn("connection lost", "port", name, "error", err)
	m.observer.ConnectionChanged(false, "connection lost: "+err.Error())
}

func (m *Manager) closeActive() {
	m.mu.Lock()
	port := m.port
	m.port = nil
	m.mu.Unlock()
	if port != nil {
		port.Close()
	}
}

func (m *Manager) setState(s ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration passed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
