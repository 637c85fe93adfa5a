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
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

type sendResult struct {
	Connection link.ConnectionState `json:"connection" yaml:"connection"`
	Vehicle    vehicle.State        `json:"vehicle" yaml:"vehicle"`
}

func SendCmd() *cobra.Command {
	names := make([]string, len(link.Commands))
	for i, c := range link.Commands {
		names[i] = string(c)
	}

	cmd := &cobra.Command{
		Use:   "send <command>",
		Short: "Send a single command to the device",
		Long: "Connect to the device, send a single command and print what the device\n" +
			"writes during the wait period. With --output the vehicle state is printed\n" +
			"afterwards.\n" +
			"The command is one of " + strings.Join(names, ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := link.ParseCommand(args[0])
			if err != nil {
				return err
			}

			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}

			wait, err := cmd.Flags().GetDuration("wait")
			if err != nil {
				return err
			}

			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}
			var enc encoder
			if output != "" {
				if enc, err = parseOutputFlag(cmd); err != nil {
					return err
				}
			}

			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			logger := newLogger(s.Log, os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store := vehicle.NewStore(s.Limits())
			printer := &linePrinter{out: os.Stdout}
			b := newBridge(s, logger, store, printer)

			var state link.ConnectionState
			err = b.run(ctx, func(ctx context.Context) error {
				if err := waitConnected(ctx, b.manager, timeout); err != nil {
					return err
				}
				printer.enabled.Store(true)
				if err := b.manager.Send(command); err != nil {
					return err
				}
				t := time.NewTimer(wait)
				defer t.Stop()
				select {
				case <-ctx.Done():
				case <-t.C:
				}
				printer.enabled.Store(false)
				state = b.manager.State()
				return nil
			})
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if enc == nil {
				return nil
			}
			return enc.Encode(sendResult{
				Connection: state,
				Vehicle:    store.Snapshot(),
			})
		},
	}

	cmd.Flags().DurationP("timeout", "t", 30*time.Second, "how long to wait for the device")
	cmd.Flags().Duration("wait", 500*time.Millisecond, "how long to read telemetry after sending")
	cmd.Flags().StringP("output", "o", "", "print the vehicle state afterwards as json or yaml")
	return cmd
}

// waitConnected blocks until m reports a connection.
func waitConnected(ctx context.Context, m *link.Manager, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !m.Connected() {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("no device answered within %s", timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// linePrinter writes device lines to out while enabled.
type linePrinter struct {
	out     io.Writer
	enabled atomic.Bool
}

func (p *linePrinter) ConnectionChanged(bool, string) {}

func (p *linePrinter) LineReceived(line string) {
	if p.enabled.Load() {
		fmt.Fprintln(p.out, line)
	}
}
