// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/toitlang/carlink/cmd/carlink/directory"
	"github.com/toitlang/carlink/cmd/carlink/settings"
	"gopkg.in/yaml.v2"
)

// flagKeys maps config keys to the persistent flags that override them.
var flagKeys = map[string]string{
	"serial.port": "port",
	"serial.baud": "baud",
	"log.level":   "log-level",
	"log.json":    "log-json",

	"dashboard.listen":    "listen",
	"drive.release_after": "release-after",
}

func bindFlags(cfg *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := cfg.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// loadSettings reads the config file and applies the flags of cmd.
func loadSettings(cmd *cobra.Command) (settings.Settings, error) {
	cfg, err := directory.GetConfig()
	if err != nil {
		return settings.Settings{}, err
	}
	if err := bindFlags(cfg, cmd.Flags()); err != nil {
		return settings.Settings{}, err
	}
	return settings.Load(cfg)
}

func newLogger(s settings.Log, output io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "carlink",
		Level:      hclog.LevelFromString(s.Level),
		JSONFormat: s.JSON,
		Output:     output,
	})
}

type encoder interface {
	Encode(interface{}) error
}

func parseOutputFlag(cmd *cobra.Command) (encoder, error) {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(output) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc, nil
	case "yaml":
		return yaml.NewEncoder(os.Stdout), nil
	case "short":
		return newShortEncoder(os.Stdout), nil
	default:
		return nil, fmt.Errorf("--output flag '%s' was not recognized. Must be either json, yaml or short", output)
	}
}

type shortEncoder struct {
	w io.Writer
}

func newShortEncoder(w io.Writer) *shortEncoder {
	return &shortEncoder{
		w: w,
	}
}

type Elements interface {
	Elements() []Short
}

type Short interface {
	Short() string
}

func (s *shortEncoder) Encode(v interface{}) error {
	es, ok := v.(Elements)
	if !ok {
		return fmt.Errorf("value type %T was not compatible with the Elements interface", v)
	}
	for _, e := range es.Elements() {
		fmt.Fprintln(s.w, e.Short())
	}
	return nil
}
