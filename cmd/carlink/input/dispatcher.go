// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package input

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/toitlang/carlink/cmd/carlink/link"
)

// Control is a logical input of the control surface.
type Control int

const (
	Accelerate Control = iota
	Brake
	ShiftUp
	ShiftDown

	numControls
)

var controlNames = [numControls]string{
	Accelerate: "accelerate",
	Brake:      "brake",
	ShiftUp:    "shift_up",
	ShiftDown:  "shift_down",
}

func (c Control) String() string {
	if c < 0 || c >= numControls {
		return "unknown"
	}
	return controlNames[c]
}

// ParseControl maps a control name to a Control.
func ParseControl(s string) (Control, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range controlNames {
		if n == name {
			return Control(i), nil
		}
	}
	return 0, fmt.Errorf("unknown control '%s'", s)
}

// continuous controls are re-sent on every tick while held.
var continuous = map[Control]link.Command{
	Accelerate: link.Throttle,
	Brake:      link.Brake,
}

// edge controls send once on the released-to-held transition.
var edge = map[Control]link.Command{
	ShiftUp:   link.ShiftUp,
	ShiftDown: link.ShiftDown,
}

// Dispatcher tracks which controls are held and turns them into commands.
type Dispatcher struct {
	sender link.Sender
	tick   time.Duration
	idle   time.Duration
	log    hclog.Logger

	mu   sync.Mutex
	held [numControls]bool
}

func NewDispatcher(sender link.Sender, tick, idle time.Duration, logger hclog.Logger) *Dispatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{
		sender: sender,
		tick:   tick,
		idle:   idle,
		log:    logger,
	}
}

// Press marks c as held. Pressing a shift control that was released sends
// its command right away and returns the send result; every other press
// returns nil.
func (d *Dispatcher) Press(c Control) error {
	if c < 0 || c >= numControls {
		return fmt.Errorf("unknown control %d", c)
	}
	d.mu.Lock()
	wasHeld := d.held[c]
	d.held[c] = true
	d.mu.Unlock()

	if wasHeld {
		return nil
	}
	cmd, ok := edge[c]
	if !ok {
		return nil
	}
	if err := d.sender.Send(cmd); err != nil {
		d.log.Debug("edge command not sent", "command", cmd, "error", err)
		return err
	}
	return nil
}

// Release marks c as released. It never sends anything.
func (d *Dispatcher) Release(c Control) {
	if c < 0 || c >= numControls {
		return
	}
	d.mu.Lock()
	d.held[c] = false
	d.mu.Unlock()
}

// Held reports whether c is currently held.
func (d *Dispatcher) Held(c Control) bool {
	if c < 0 || c >= numControls {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held[c]
}

// Submit sends a one-off command such as ENGINE_TOGGLE.
func (d *Dispatcher) Submit(cmd link.Command) error {
	return d.sender.Send(cmd)
}

// ReleaseAll releases every control.
func (d *Dispatcher) ReleaseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held = [numControls]bool{}
}

// Tick sends the command of every held continuous control once. It returns
// whether any control, continuous or not, was held.
func (d *Dispatcher) Tick() bool {
	d.mu.Lock()
	held := d.held
	d.mu.Unlock()

	for _, c := range []Control{Accelerate, Brake} {
		if !held[c] {
			continue
		}
		cmd := continuous[c]
		if err := d.sender.Send(cmd); err != nil {
			d.log.Trace("continuous command not sent", "command", cmd, "error", err)
		}
	}
	for _, h := range held {
		if h {
			return true
		}
	}
	return false
}

// Run is the ticking loop. It uses the short interval while any control is
// held and the idle interval otherwise. Controls are released on return.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.ReleaseAll()
	for ctx.Err() == nil {
		wait := d.idle
		if d.Tick() {
			wait = d.tick
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	return nil
}
