// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge without a user interface",
		Long: "Run the bridge without a user interface. The device is searched for and\n" +
			"reconnected to until the command is interrupted. Connection changes and, at\n" +
			"trace level, telemetry lines are logged. If redis.addr is set, vehicle\n" +
			"snapshots are published to Redis.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(s.Log, os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store := vehicle.NewStore(s.Limits())
			var observers []link.Observer
			var extra []task
			pub, client := newPublisher(s, store, logger)
			if pub != nil {
				defer client.Close()
				observers = append(observers, pub)
				extra = append(extra, pub.Run)
				logger.Info("publishing to redis", "addr", s.Redis.Addr, "key", s.Redis.Key)
			}

			b := newBridge(s, logger, store, observers...)
			if pub != nil {
				pub.Track(b.manager)
			}
			return b.run(ctx, extra...)
		},
	}
	return cmd
}
