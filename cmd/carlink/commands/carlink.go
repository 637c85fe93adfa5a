// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"

	"github.com/spf13/cobra"
)

type ctxKey string

const (
	ctxKeyInfo ctxKey = "info"
)

type Info struct {
	Version string `mapstructure:"version" yaml:"version" json:"version"`
	Date    string `mapstructure:"date" yaml:"date" json:"date"`
	Release bool   `mapstructure:"release" yaml:"release" json:"release"`
}

func SetInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKeyInfo, info)
}

func GetInfo(ctx context.Context) Info {
	return ctx.Value(ctxKeyInfo).(Info)
}

func CarlinkCmd(info Info) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "carlink",
		Short: "Drive a microcontroller vehicle simulator over serial",
		Long: "carlink finds a vehicle simulator board on the serial ports of this machine,\n" +
			"keeps the connection alive across resets and unplugging, decodes its telemetry\n" +
			"and turns held and pressed controls into commands for the board.",
	}

	cmd.PersistentFlags().StringP("port", "p", "", "serial port to try first")
	cmd.PersistentFlags().Int("baud", 0, "baud rate of the serial link")
	cmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", false, "log in JSON")

	cmd.AddCommand(
		RunCmd(),
		DriveCmd(),
		ServeCmd(),
		SendCmd(),
		PortsCmd(),
		ConfigCmd(),
		VersionCmd(info),
	)
	return cmd
}
