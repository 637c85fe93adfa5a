// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package publish

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/go-hclog"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

// Client is the part of a Redis client the publisher uses.
type Client interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Link is the part of the connection manager the publisher uses.
type Link interface {
	State() link.ConnectionState
}

type connectionEvent struct {
	connected bool
	port      string
	message   string
}

// Publisher mirrors vehicle snapshots and connection changes into a Redis
// hash and announces them on "<key> state" and "<key> connection".
type Publisher struct {
	client  Client
	key     string
	store   *vehicle.Store
	refresh time.Duration
	log     hclog.Logger
	link    Link

	events chan connectionEvent
}

func New(client Client, key string, store *vehicle.Store, refresh time.Duration, logger hclog.Logger) *Publisher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Publisher{
		client:  client,
		key:     key,
		store:   store,
		refresh: refresh,
		log:     logger,
		events:  make(chan connectionEvent, 16),
	}
}

// Track makes connection changes carry the port of l. It must be called
// before l starts notifying.
func (p *Publisher) Track(l Link) {
	p.link = l
}

// ConnectionChanged queues the change for Run. It never blocks the caller.
func (p *Publisher) ConnectionChanged(connected bool, message string) {
	e := connectionEvent{connected: connected, message: message}
	if p.link != nil {
		e.port = p.link.State().Port
	}
	select {
	case p.events <- e:
	default:
		p.log.Debug("dropping connection event", "message", message)
	}
}

func (p *Publisher) LineReceived(string) {}

// Run publishes until ctx is done. Redis failures are logged and retried on
// the next change.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.refresh)
	defer ticker.Stop()

	published := false
	var lastVersion uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-p.events:
			if err := p.publishConnection(ctx, e); err != nil {
				p.log.Warn("failed to publish connection", "error", err)
			}
		case <-ticker.C:
			state, version := p.store.SnapshotVersion()
			if published && version == lastVersion {
				continue
			}
			if err := p.publishState(ctx, state); err != nil {
				p.log.Warn("failed to publish state", "error", err)
				continue
			}
			published = true
			lastVersion = version
		}
	}
}

func (p *Publisher) publishState(ctx context.Context, s vehicle.State) error {
	if err := p.client.HSet(ctx, p.key, StateFields(s, p.store.Limits())).Err(); err != nil {
		return fmt.Errorf("failed to set state: %w", err)
	}
	if err := p.client.Publish(ctx, p.key+" state", s.RPM).Err(); err != nil {
		return fmt.Errorf("failed to publish state: %w", err)
	}
	return nil
}

func (p *Publisher) publishConnection(ctx context.Context, e connectionEvent) error {
	if err := p.client.HSet(ctx, p.key,
		"connected", strconv.FormatBool(e.connected),
		"port", e.port,
	).Err(); err != nil {
		return fmt.Errorf("failed to set connection: %w", err)
	}
	if err := p.client.Publish(ctx, p.key+" connection", e.message).Err(); err != nil {
		return fmt.Errorf("failed to publish connection: %w", err)
	}
	return nil
}

// StateFields is the hash layout of a snapshot.
func StateFields(s vehicle.State, l vehicle.Limits) map[string]interface{} {
	return map[string]interface{}{
		"engine_running": strconv.FormatBool(s.EngineRunning),
		"rpm":            s.RPM,
		"speed":          s.Speed,
		"gear":           s.Gear,
		"throttle":       s.Throttle,
		"rpm_status":     string(s.RPMStatus),
		"handbrake":      strconv.FormatBool(s.Handbrake),
		"rpm_band":       vehicle.ClassifyRPM(s.RPM, l.RedlineRPM).String(),
	}
}
