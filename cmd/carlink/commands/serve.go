// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/toitlang/carlink/cmd/carlink/dashboard"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

const shutdownTimeout = 5 * time.Second

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge with a web dashboard",
		Long: "Run the bridge and serve a dashboard over HTTP. The dashboard shows the\n" +
			"connection, the vehicle state and the device output, and accepts commands\n" +
			"and held controls from the browser.",
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
			hub := dashboard.NewHub(logger.Named("hub"))
			observers := []link.Observer{hub}
			var extra []task
			pub, client := newPublisher(s, store, logger)
			if pub != nil {
				defer client.Close()
				observers = append(observers, pub)
				extra = append(extra, pub.Run)
			}

			b := newBridge(s, logger, store, observers...)
			if pub != nil {
				pub.Track(b.manager)
			}
			server := dashboard.NewServer(hub, store, b.manager, b.dispatcher, s.Dashboard.Refresh, logger.Named("dashboard"))
			httpServer := &http.Server{
				Addr:    s.Dashboard.Listen,
				Handler: server.Handler(),
			}
			extra = append(extra, server.Run, func(ctx context.Context) error {
				return listenAndServe(ctx, httpServer)
			})

			logger.Info("serving dashboard", "addr", "http://"+s.Dashboard.Listen)
			return b.run(ctx, extra...)
		},
	}

	cmd.Flags().String("listen", "", "address to serve the dashboard on")
	return cmd
}

// listenAndServe serves until ctx is done and then shuts srv down.
func listenAndServe(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
