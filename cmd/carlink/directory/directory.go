// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigPathEnv if set, will load the config from that path.
	ConfigPathEnv = "CARLINK_CONFIG_PATH"
	// EnvPrefix is the prefix of environment overrides, e.g. CARLINK_SERIAL_BAUD.
	EnvPrefix = "CARLINK"
)

func GetConfigPath() (string, error) {
	if path, ok := os.LookupEnv(ConfigPathEnv); ok {
		return path, nil
	}

	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homedir, ".config", "carlink", "config.yaml"), nil
}

// GetConfig loads the config file, if it exists, with environment
// overrides enabled.
func GetConfig() (*viper.Viper, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadConfig(path)
}

func LoadConfig(path string) (*viper.Viper, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.SetEnvPrefix(EnvPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()
	return cfg, nil
}

// GetFileConfig loads only what is in the config file. Use it when the config
// is written back, so environment overrides are not persisted.
func GetFileConfig() (*viper.Viper, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return readConfig(path)
}

func readConfig(path string) (*viper.Viper, error) {
	cfg := viper.New()
	cfg.SetConfigType("yaml")
	cfg.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return cfg, nil
}

// WriteConfig replaces the config file atomically.
func WriteConfig(cfg *viper.Viper) error {
	file := cfg.ConfigFileUsed()
	dir := filepath.Dir(file)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmpFile := filepath.Join(dir, ".config.tmp.yaml")
	if err := cfg.WriteConfigAs(tmpFile); err != nil {
		return err
	}
	defer os.Remove(tmpFile)

	return os.Rename(tmpFile, file)
}
