// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package link

import (
	"fmt"
	"strings"
)

// Command is an outbound token. Commands take no arguments.
type Command string

const (
	EngineToggle    Command = "ENGINE_TOGGLE"
	Throttle        Command = "THROTTLE"
	Brake           Command = "BRAKE"
	ShiftUp         Command = "SHIFT_UP"
	ShiftDown       Command = "SHIFT_DOWN"
	HandbrakeToggle Command = "HANDBRAKE_TOGGLE"
	QueryStatus     Command = "STATUS"
)

// Commands is the full vocabulary understood by the device.
var Commands = []Command{
	EngineToggle,
	Throttle,
	Brake,
	ShiftUp,
	ShiftDown,
	HandbrakeToggle,
	QueryStatus,
}

// ParseCommand maps a token, in any case, to a command of the vocabulary.
func ParseCommand(s string) (Command, error) {
	token := Command(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range Commands {
		if c == token {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command '%s'", s)
}

// Sender delivers a command at most once. It does not queue or retry.
type Sender interface {
	Send(cmd Command) error
}

// SenderFunc adapts a function to a Sender.
type SenderFunc func(cmd Command) error

func (f SenderFunc) Send(cmd Command) error {
	return f(cmd)
}
