// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package vehicle

import "fmt"

// RPMBand classifies an engine speed for display.
type RPMBand int

const (
	BandIdle RPMBand = iota
	BandLow
	BandMid
	BandHigh
	BandCritical
)

const (
	lowBandEnd = 3000
	midBandEnd = 5000
)

func (b RPMBand) String() string {
	switch b {
	case BandIdle:
		return "idle"
	case BandLow:
		return "low"
	case BandMid:
		return "mid"
	case BandHigh:
		return "high"
	case BandCritical:
		return "critical"
	}
	return "unknown"
}

func (b RPMBand) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *RPMBand) UnmarshalText(text []byte) error {
	for band := BandIdle; band <= BandCritical; band++ {
		if band.String() == string(text) {
			*b = band
			return nil
		}
	}
	return fmt.Errorf("unknown rpm band '%s'", text)
}

// ClassifyRPM returns the band of rpm. Each band includes its lower bound.
func ClassifyRPM(rpm int, redline int) RPMBand {
	switch {
	case rpm <= 0:
		return BandIdle
	case rpm >= redline:
		// A redline below the fixed bands still wins.
		return BandCritical
	case rpm < lowBandEnd:
		return BandLow
	case rpm < midBandEnd:
		return BandMid
	default:
		return BandHigh
	}
}

// ShiftRecommendation returns the advice text for status, or "" when there
// is nothing to recommend.
func ShiftRecommendation(status RPMStatus) string {
	switch status {
	case StatusShiftUp:
		return "upshift"
	case StatusShiftDown:
		return "downshift"
	case StatusRedline:
		return "redline warning"
	case StatusHigh:
		return "high rpm warning"
	}
	return ""
}

// The guards below are advisory. Nothing on the command path consults them.

func (s State) CanStartEngine() bool {
	return !s.EngineRunning && s.Speed == 0
}

func (s State) CanStopEngine() bool {
	return s.EngineRunning && s.Speed == 0
}

func (s State) CanShiftUp(l Limits) bool {
	return s.EngineRunning && s.Gear < l.MaxGears && s.RPM >= l.ShiftUpRPM
}

func (s State) CanShiftDown() bool {
	return s.EngineRunning && s.Gear > 1
}

// Derived bundles the derived queries of a snapshot.
type Derived struct {
	RPMBand             RPMBand `json:"rpm_band" yaml:"rpm_band"`
	ShiftRecommendation string  `json:"shift_recommendation" yaml:"shift_recommendation"`
	CanStartEngine      bool    `json:"can_start_engine" yaml:"can_start_engine"`
	CanStopEngine       bool    `json:"can_stop_engine" yaml:"can_stop_engine"`
	CanShiftUp          bool    `json:"can_shift_up" yaml:"can_shift_up"`
	CanShiftDown        bool    `json:"can_shift_down" yaml:"can_shift_down"`
}

func (s State) Derive(l Limits) Derived {
	return Derived{
		RPMBand:             ClassifyRPM(s.RPM, l.RedlineRPM),
		ShiftRecommendation: ShiftRecommendation(s.RPMStatus),
		CanStartEngine:      s.CanStartEngine(),
		CanStopEngine:       s.CanStopEngine(),
		CanShiftUp:          s.CanShiftUp(l),
		CanShiftDown:        s.CanShiftDown(),
	}
}
