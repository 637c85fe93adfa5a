// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/toitlang/carlink/cmd/carlink/input"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/publish"
	"github.com/toitlang/carlink/cmd/carlink/settings"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

// task is a long running part of the bridge. It returns when ctx is done.
type task func(ctx context.Context) error

// bridge ties the vehicle store, the connection manager and the input
// dispatcher together.
type bridge struct {
	settings   settings.Settings
	log        hclog.Logger
	store      *vehicle.Store
	manager    *link.Manager
	dispatcher *input.Dispatcher
}

func newBridge(s settings.Settings, logger hclog.Logger, store *vehicle.Store, observers ...link.Observer) *bridge {
	all := append(link.Observers{&logObserver{log: logger.Named("device")}}, observers...)
	manager := link.NewManager(s.Link(), store,
		link.WithLogger(logger.Named("link")),
		link.WithObserver(all),
	)
	dispatcher := input.NewDispatcher(manager, s.Input.Tick, s.Input.IdleTick, logger.Named("input"))
	return &bridge{
		settings:   s,
		log:        logger,
		store:      store,
		manager:    manager,
		dispatcher: dispatcher,
	}
}

// run runs the manager, the dispatcher and the extra tasks until ctx is
// done or one of them returns.
func (b *bridge) run(ctx context.Context, extra ...task) error {
	return runTasks(ctx, append([]task{b.manager.Run, b.dispatcher.Run}, extra...)...)
}

// runTasks runs every task in its own goroutine. The first task to return
// stops the others. Errors other than cancellation are collected.
func runTasks(ctx context.Context, tasks ...task) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var result *multierror.Error
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			defer cancel()
			if err := t(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()
	return result.ErrorOrNil()
}

// newPublisher returns nil when no Redis address is configured.
func newPublisher(s settings.Settings, store *vehicle.Store, logger hclog.Logger) (*publish.Publisher, *redis.Client) {
	if s.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: s.Redis.Addr,
	})
	return publish.New(client, s.Redis.Key, store, s.Dashboard.Refresh, logger.Named("redis")), client
}

// logObserver writes device events to the log.
type logObserver struct {
	log hclog.Logger
}

func (o *logObserver) ConnectionChanged(connected bool, message string) {
	o.log.Info(message, "connected", connected)
}

func (o *logObserver) LineReceived(line string) {
	if strings.HasPrefix(line, link.FramePrefix) {
		o.log.Debug("frame", "line", line)
		return
	}
	o.log.Trace("telemetry", "line", line)
}
