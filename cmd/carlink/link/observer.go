// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package link

// Observer is notified by the manager. Calls come from the manager's
// goroutine and must not block.
type Observer interface {
	ConnectionChanged(connected bool, message string)
	// LineReceived gets every non-empty inbound line, frame markers
	// included, whether or not it decodes.
	LineReceived(line string)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) ConnectionChanged(bool, string) {}
func (NopObserver) LineReceived(string)            {}

// Observers fans notifications out in order.
type Observers []Observer

func (obs Observers) ConnectionChanged(connected bool, message string) {
	for _, o := range obs {
		o.ConnectionChanged(connected, message)
	}
}

func (obs Observers) LineReceived(line string) {
	for _, o := range obs {
		o.LineReceived(line)
	}
}
