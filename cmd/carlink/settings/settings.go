// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package settings holds the startup configuration of carlink. Settings are
// read once; nothing reconfigures a running bridge.
package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

type Serial struct {
	Baud        int           `mapstructure:"baud" yaml:"baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	Port        string        `mapstructure:"port" yaml:"port"`
	Filter      bool          `mapstructure:"filter" yaml:"filter"`
}

type Discovery struct {
	Backoff      time.Duration `mapstructure:"backoff" yaml:"backoff"`
	BootSettle   time.Duration `mapstructure:"boot_settle" yaml:"boot_settle"`
	ProbeWindow  time.Duration `mapstructure:"probe_window" yaml:"probe_window"`
	Probe        string        `mapstructure:"probe" yaml:"probe"`
	Expect       string        `mapstructure:"expect" yaml:"expect"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type Input struct {
	Tick     time.Duration `mapstructure:"tick" yaml:"tick"`
	IdleTick time.Duration `mapstructure:"idle_tick" yaml:"idle_tick"`
}

type Vehicle struct {
	MaxGears   int `mapstructure:"max_gears" yaml:"max_gears"`
	ShiftUpRPM int `mapstructure:"shift_up_rpm" yaml:"shift_up_rpm"`
	RedlineRPM int `mapstructure:"redline_rpm" yaml:"redline_rpm"`
}

type Dashboard struct {
	Refresh time.Duration `mapstructure:"refresh" yaml:"refresh"`
	Listen  string        `mapstructure:"listen" yaml:"listen"`
}

type Drive struct {
	ReleaseAfter time.Duration `mapstructure:"release_after" yaml:"release_after"`
}

type Redis struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	Key  string `mapstructure:"key" yaml:"key"`
}

type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

type Settings struct {
	Serial    Serial    `mapstructure:"serial" yaml:"serial"`
	Discovery Discovery `mapstructure:"discovery" yaml:"discovery"`
	Input     Input     `mapstructure:"input" yaml:"input"`
	Vehicle   Vehicle   `mapstructure:"vehicle" yaml:"vehicle"`
	Dashboard Dashboard `mapstructure:"dashboard" yaml:"dashboard"`
	Drive     Drive     `mapstructure:"drive" yaml:"drive"`
	Redis     Redis     `mapstructure:"redis" yaml:"redis"`
	Log       Log       `mapstructure:"log" yaml:"log"`
}

var defaults = map[string]interface{}{
	"serial.baud":             115200,
	"serial.read_timeout":     "3s",
	"serial.port":             "",
	"serial.filter":           false,
	"discovery.backoff":       "2s",
	"discovery.boot_settle":   "3s",
	"discovery.probe_window":  "500ms",
	"discovery.probe":         string(link.QueryStatus),
	"discovery.expect":        "",
	"discovery.poll_interval": "50ms",
	"input.tick":              "50ms",
	"input.idle_tick":         "100ms",
	"vehicle.max_gears":       vehicle.DefaultLimits.MaxGears,
	"vehicle.shift_up_rpm":    vehicle.DefaultLimits.ShiftUpRPM,
	"vehicle.redline_rpm":     vehicle.DefaultLimits.RedlineRPM,
	"dashboard.refresh":       "50ms",
	"dashboard.listen":        "127.0.0.1:8080",
	"drive.release_after":     "500ms",
	"redis.addr":              "",
	"redis.key":               "vehicle",
	"log.level":               "info",
	"log.json":                false,
}

// Keys lists every known configuration key.
func Keys() []string {
	res := make([]string, 0, len(defaults))
	for k := range defaults {
		res = append(res, k)
	}
	return res
}

// IsKey reports whether key is a known configuration key.
func IsKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

// SetDefaults registers the defaults on cfg.
func SetDefaults(cfg *viper.Viper) {
	for k, v := range defaults {
		cfg.SetDefault(k, v)
	}
}

// Load decodes and validates the settings held by cfg.
func Load(cfg *viper.Viper) (Settings, error) {
	SetDefaults(cfg)
	var s Settings
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := cfg.Unmarshal(&s, hook); err != nil {
		return Settings{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

var errInvalid = errors.New("invalid config")

func (s Settings) Validate() error {
	var result *multierror.Error
	positive := map[string]time.Duration{
		"serial.read_timeout":     s.Serial.ReadTimeout,
		"discovery.backoff":       s.Discovery.Backoff,
		"discovery.probe_window":  s.Discovery.ProbeWindow,
		"discovery.poll_interval": s.Discovery.PollInterval,
		"input.tick":              s.Input.Tick,
		"input.idle_tick":         s.Input.IdleTick,
		"dashboard.refresh":       s.Dashboard.Refresh,
		"drive.release_after":     s.Drive.ReleaseAfter,
	}
	for key, d := range positive {
		if d <= 0 {
			result = multierror.Append(result, fmt.Errorf("%w: %s must be positive, got %s", errInvalid, key, d))
		}
	}
	if s.Discovery.BootSettle < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: discovery.boot_settle must not be negative", errInvalid))
	}
	if s.Serial.Baud <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: serial.baud must be positive", errInvalid))
	}
	if s.Vehicle.MaxGears < 1 {
		result = multierror.Append(result, fmt.Errorf("%w: vehicle.max_gears must be at least 1", errInvalid))
	}
	if s.Vehicle.ShiftUpRPM < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: vehicle.shift_up_rpm must not be negative", errInvalid))
	}
	if s.Vehicle.RedlineRPM <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: vehicle.redline_rpm must be positive", errInvalid))
	}
	if hclog.LevelFromString(s.Log.Level) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("%w: log.level '%s' is not a log level", errInvalid, s.Log.Level))
	}
	if _, err := link.ParseCommand(s.Discovery.Probe); err != nil {
		result = multierror.Append(result, fmt.Errorf("%w: discovery.probe: %w", errInvalid, err))
	}
	return result.ErrorOrNil()
}

// Link returns the connection manager configuration.
func (s Settings) Link() link.Config {
	probe, _ := link.ParseCommand(s.Discovery.Probe)
	return link.Config{
		Baud:         s.Serial.Baud,
		ReadTimeout:  s.Serial.ReadTimeout,
		Backoff:      s.Discovery.Backoff,
		BootSettle:   s.Discovery.BootSettle,
		ProbeWindow:  s.Discovery.ProbeWindow,
		PollInterval: s.Discovery.PollInterval,
		Probe:        probe,
		Expect:       s.Discovery.Expect,
		Preferred:    s.Serial.Port,
		Filter:       s.Serial.Filter,
	}
}

// Limits returns the vehicle parameters.
func (s Settings) Limits() vehicle.Limits {
	return vehicle.Limits{
		MaxGears:   s.Vehicle.MaxGears,
		ShiftUpRPM: s.Vehicle.ShiftUpRPM,
		RedlineRPM: s.Vehicle.RedlineRPM,
	}
}
