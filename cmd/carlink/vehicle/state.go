// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package vehicle

import (
	"sync"
)

// RPMStatus is the shift advice reported by the simulated engine.
type RPMStatus string

const (
	StatusOK        RPMStatus = "OK"
	StatusShiftUp   RPMStatus = "SHIFT_UP"
	StatusShiftDown RPMStatus = "SHIFT_DOWN"
	StatusRedline   RPMStatus = "REDLINE"
	StatusHigh      RPMStatus = "HIGH"
)

func parseRPMStatus(s string) (RPMStatus, bool) {
	switch st := RPMStatus(s); st {
	case StatusOK, StatusShiftUp, StatusShiftDown, StatusRedline, StatusHigh:
		return st, true
	}
	return "", false
}

// State is a snapshot of the simulated vehicle.
type State struct {
	EngineRunning bool      `json:"engine_running" yaml:"engine_running"`
	RPM           int       `json:"rpm" yaml:"rpm"`
	Speed         int       `json:"speed" yaml:"speed"`
	Gear          int       `json:"gear" yaml:"gear"`
	Throttle      int       `json:"throttle" yaml:"throttle"`
	RPMStatus     RPMStatus `json:"rpm_status" yaml:"rpm_status"`
	Handbrake     bool      `json:"handbrake" yaml:"handbrake"`
}

// Initial is the state before any telemetry has arrived.
func Initial() State {
	return State{
		Gear:      1,
		RPMStatus: StatusOK,
		Handbrake: true,
	}
}

// Limits are the vehicle parameters the derived queries depend on.
type Limits struct {
	MaxGears   int
	ShiftUpRPM int
	RedlineRPM int
}

var DefaultLimits = Limits{
	MaxGears:   5,
	ShiftUpRPM: 1500,
	RedlineRPM: 6500,
}

// Store is the single shared vehicle record. Telemetry is applied under the
// write lock, so a snapshot never mixes fields from before and after a line.
type Store struct {
	mu      sync.RWMutex
	state   State
	decoder Decoder
	version uint64
}

func NewStore(limits Limits) *Store {
	return &Store{
		state:   Initial(),
		decoder: Decoder{Limits: limits},
	}
}

func (s *Store) Limits() Limits {
	return s.decoder.Limits
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Version is bumped every time a line changes the state. Readers polling on
// their own timer use it to skip redraws.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SnapshotVersion returns the state together with its version.
func (s *Store) SnapshotVersion() (State, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.version
}

// Apply decodes a telemetry line into the store. It reports whether the line
// was recognized.
func (s *Store) Apply(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := s.decoder.Apply(s.state, line)
	if !ok {
		return false
	}
	if next != s.state {
		s.state = next
		s.version++
	}
	return true
}

// Reset restores the initial state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Initial()
	s.version++
}
