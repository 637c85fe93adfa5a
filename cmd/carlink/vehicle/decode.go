// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package vehicle

import (
	"strconv"
	"strings"
)

// Telemetry keys sent by the device, one "KEY: VALUE" pair per line.
const (
	KeyEngineRunning = "ENGINE_RUNNING"
	KeyRPM           = "RPM"
	KeySpeed         = "SPEED"
	KeyGear          = "GEAR"
	KeyThrottle      = "THROTTLE"
	KeyRPMStatus     = "RPM_STATUS"
	KeyHandbrake     = "HANDBRAKE"
)

const separator = ":"

// Decoder turns telemetry lines into state updates. Each key is an absolute
// assignment of one field, so applying a line twice is the same as once.
type Decoder struct {
	Limits Limits
}

// SplitLine splits a line at the first separator and trims both halves.
func SplitLine(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(line, separator)
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}

// Apply returns s updated with line. Lines without a separator, unknown keys
// and malformed values leave s untouched and report false.
func (d Decoder) Apply(s State, line string) (State, bool) {
	key, value, ok := SplitLine(line)
	if !ok {
		return s, false
	}

	switch key {
	case KeyEngineRunning:
		s.EngineRunning = parseFlag(value)
	case KeyHandbrake:
		s.Handbrake = parseFlag(value)
	case KeyRPM:
		v, ok := parseInt(value, 0, -1)
		if !ok {
			return s, false
		}
		s.RPM = v
	case KeySpeed:
		v, ok := parseInt(value, 0, -1)
		if !ok {
			return s, false
		}
		s.Speed = v
	case KeyGear:
		v, ok := parseInt(value, 1, d.maxGears())
		if !ok {
			return s, false
		}
		s.Gear = v
	case KeyThrottle:
		v, ok := parseInt(value, 0, 100)
		if !ok {
			return s, false
		}
		s.Throttle = v
	case KeyRPMStatus:
		st, ok := parseRPMStatus(value)
		if !ok {
			return s, false
		}
		s.RPMStatus = st
	default:
		return s, false
	}
	return s, true
}

func (d Decoder) maxGears() int {
	if d.Limits.MaxGears <= 0 {
		return DefaultLimits.MaxGears
	}
	return d.Limits.MaxGears
}

func parseFlag(value string) bool {
	return value == "1"
}

// parseInt parses a decimal integer in [min, max]. A negative max means no
// upper bound.
func parseInt(value string, min, max int) (int, bool) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	if v < min || (max >= 0 && v > max) {
		return 0, false
	}
	return v, true
}
