// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

const viewLines = 6

var bandColors = map[vehicle.RPMBand]*color.Color{
	vehicle.BandIdle:     color.New(color.FgHiBlack),
	vehicle.BandLow:      color.New(color.FgGreen),
	vehicle.BandMid:      color.New(color.FgYellow),
	vehicle.BandHigh:     color.New(color.FgMagenta),
	vehicle.BandCritical: color.New(color.FgRed, color.Bold),
}

var (
	labelColor  = color.New(color.Bold)
	noticeColor = color.New(color.FgRed)
)

// driveView draws the vehicle state on a raw mode terminal. It observes the
// link to show the connection message and the latest device output.
type driveView struct {
	out io.Writer

	mu      sync.Mutex
	message string
	lines   []string
}

func newDriveView(out io.Writer) *driveView {
	return &driveView{
		out:     out,
		message: "starting",
	}
}

func (v *driveView) ConnectionChanged(connected bool, message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.message = message
}

func (v *driveView) LineReceived(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lines = append(v.lines, line)
	if len(v.lines) > viewLines {
		v.lines = v.lines[len(v.lines)-viewLines:]
	}
}

// Render redraws the whole screen.
func (v *driveView) Render(conn link.ConnectionState, s vehicle.State, d vehicle.Derived, notice string) {
	fmt.Fprint(v.out, "\x1b[H\x1b[2J"+v.frame(conn, s, d, notice))
}

// Reset clears the screen.
func (v *driveView) Reset() {
	fmt.Fprint(v.out, "\x1b[H\x1b[2J")
}

// frame returns the screen contents. Raw mode terminals need "\r\n".
func (v *driveView) frame(conn link.ConnectionState, s vehicle.State, d vehicle.Derived, notice string) string {
	v.mu.Lock()
	message := v.message
	lines := append([]string(nil), v.lines...)
	v.mu.Unlock()

	var b strings.Builder
	row := func(label string, value string) {
		fmt.Fprintf(&b, "%s %s\r\n", labelColor.Sprintf("%-10s", label), value)
	}

	status := conn.Status.String()
	if conn.Port != "" {
		status += " " + conn.Port
	}
	row("link", status)
	row("", message)
	if conn.LastError != "" {
		row("error", conn.LastError)
	}
	b.WriteString("\r\n")

	row("engine", onOff(s.EngineRunning, "running", "off"))
	band := bandColors[d.RPMBand]
	if band == nil {
		band = color.New(color.Reset)
	}
	row("rpm", band.Sprintf("%5d %s", s.RPM, d.RPMBand))
	row("speed", fmt.Sprintf("%d", s.Speed))
	row("gear", fmt.Sprintf("%d", s.Gear))
	row("throttle", fmt.Sprintf("%d%%", s.Throttle))
	row("handbrake", onOff(s.Handbrake, "applied", "released"))
	if d.ShiftRecommendation != "" {
		row("advice", band.Sprint(d.ShiftRecommendation))
	}
	b.WriteString("\r\n")

	for _, l := range lines {
		fmt.Fprintf(&b, "  %s\r\n", l)
	}
	b.WriteString("\r\n")
	if notice != "" {
		b.WriteString(noticeColor.Sprint(notice) + "\r\n")
	}
	b.WriteString("p engine  space handbrake  up/down throttle/brake  left/right shift  q quit\r\n")
	return b.String()
}

func onOff(b bool, on string, off string) string {
	if b {
		return on
	}
	return off
}
