// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/spf13/cobra"
	"github.com/toitlang/carlink/cmd/carlink/input"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
	"golang.org/x/term"
)

func DriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Drive the vehicle from the terminal",
		Long: "Drive the vehicle from the terminal.\n\n" +
			"  p          start or stop the engine\n" +
			"  space      toggle the handbrake\n" +
			"  up         accelerate while held\n" +
			"  down       brake while held\n" +
			"  right      shift up\n" +
			"  left       shift down\n" +
			"  q, esc     quit\n\n" +
			"The terminal does not report key releases. A key counts as released when\n" +
			"it has not repeated for drive.release_after.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("drive must be run from a terminal")
			}

			logFile, err := cmd.Flags().GetString("log-file")
			if err != nil {
				return err
			}

			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					return err
				}
				defer f.Close()
				logOut = f
			}
			logger := newLogger(s.Log, logOut)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store := vehicle.NewStore(s.Limits())
			view := newDriveView(os.Stdout)
			b := newBridge(s, logger, store, view)

			keys, err := keyboard.GetKeys(16)
			if err != nil {
				return fmt.Errorf("failed to open the keyboard: %w", err)
			}
			defer keyboard.Close()

			holder := newKeyHolder(b.dispatcher, s.Drive.ReleaseAfter)
			err = b.run(ctx, func(ctx context.Context) error {
				return drive(ctx, keys, holder, func() {
					state := store.Snapshot()
					view.Render(b.manager.State(), state, state.Derive(store.Limits()), holder.notice)
				}, s.Dashboard.Refresh)
			})
			view.Reset()
			return err
		},
	}

	cmd.Flags().String("log-file", "", "append logs to this file")
	cmd.Flags().Duration("release-after", 0, "release a key that has not repeated for this long")
	return cmd
}

// drive feeds key events to h and redraws every refresh until a quit key is
// pressed or ctx is done.
func drive(ctx context.Context, keys <-chan keyboard.KeyEvent, h *keyHolder, redraw func(), refresh time.Duration) error {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	redraw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-keys:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				return ev.Err
			}
			if h.Key(ev.Rune, ev.Key, time.Now()) {
				return nil
			}
		case now := <-ticker.C:
			h.Expire(now)
			redraw()
		}
	}
}

// controls is the part of the input dispatcher the terminal uses.
type controls interface {
	Press(c input.Control) error
	Release(c input.Control)
	Submit(cmd link.Command) error
}

// keyHolder turns repeating key presses into held controls.
type keyHolder struct {
	controls     controls
	releaseAfter time.Duration
	last         map[input.Control]time.Time
	notice       string
}

func newKeyHolder(c controls, releaseAfter time.Duration) *keyHolder {
	return &keyHolder{
		controls:     c,
		releaseAfter: releaseAfter,
		last:         map[input.Control]time.Time{},
	}
}

// Key handles a key event and reports whether it asked to quit.
func (h *keyHolder) Key(r rune, k keyboard.Key, now time.Time) bool {
	switch {
	case k == keyboard.KeyCtrlC || k == keyboard.KeyEsc || r == 'q' || r == 'Q':
		return true
	case r == 'p' || r == 'P':
		h.submit(link.EngineToggle)
	case k == keyboard.KeySpace || r == ' ':
		h.submit(link.HandbrakeToggle)
	case k == keyboard.KeyArrowUp:
		h.hold(input.Accelerate, now)
	case k == keyboard.KeyArrowDown:
		h.hold(input.Brake, now)
	case k == keyboard.KeyArrowRight:
		h.hold(input.ShiftUp, now)
	case k == keyboard.KeyArrowLeft:
		h.hold(input.ShiftDown, now)
	}
	return false
}

// Expire releases every control that has not repeated for releaseAfter.
func (h *keyHolder) Expire(now time.Time) {
	for c, t := range h.last {
		if now.Sub(t) >= h.releaseAfter {
			h.controls.Release(c)
			delete(h.last, c)
		}
	}
}

func (h *keyHolder) hold(c input.Control, now time.Time) {
	h.last[c] = now
	h.report(h.controls.Press(c))
}

func (h *keyHolder) submit(cmd link.Command) {
	h.report(h.controls.Submit(cmd))
}

func (h *keyHolder) report(err error) {
	if err != nil {
		h.notice = err.Error()
	} else {
		h.notice = ""
	}
}
