// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toitlang/carlink/cmd/carlink/directory"
	"github.com/toitlang/carlink/cmd/carlink/settings"
	"gopkg.in/yaml.v2"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure carlink",
		Long:  "Show and change the settings of the carlink command line tool.",
	}

	cmd.AddCommand(
		ConfigShowCmd(),
		ConfigSetCmd(),
		ConfigPathCmd(),
	)
	return cmd
}

func ConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "show",
		Short:        "Print the effective settings",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			return enc.Encode(s)
		},
	}

	cmd.Flags().StringP("output", "o", "yaml", "set output format to json or yaml")
	return cmd
}

func ConfigSetCmd() *cobra.Command {
	keys := settings.Keys()
	sort.Strings(keys)

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting in the config file",
		Long: "Change a setting in the config file. The new value is validated before\n" +
			"the file is written. Known keys:\n  " + strings.Join(keys, "\n  "),
		Args:      cobra.ExactArgs(2),
		ValidArgs: keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, raw := args[0], args[1]
			if !settings.IsKey(key) {
				return fmt.Errorf("unknown setting '%s'", key)
			}
			cmd.SilenceUsage = true

			var value interface{}
			if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
				value = raw
			}

			cfg, err := directory.GetFileConfig()
			if err != nil {
				return err
			}
			cfg.Set(key, value)

			check := viper.New()
			if err := check.MergeConfigMap(cfg.AllSettings()); err != nil {
				return err
			}
			if _, err := settings.Load(check); err != nil {
				return err
			}
			return directory.WriteConfig(cfg)
		},
	}
	return cmd
}

func ConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "path",
		Short:        "Print the path of the config file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := directory.GetConfigPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
	return cmd
}
