// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"sort"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/toitlang/carlink/cmd/carlink/directory"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"go.bug.st/serial/enumerator"
)

type Port struct {
	Name         string `json:"name" yaml:"name"`
	USB          bool   `json:"usb" yaml:"usb"`
	VID          string `json:"vid,omitempty" yaml:"vid,omitempty"`
	PID          string `json:"pid,omitempty" yaml:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	Product      string `json:"product,omitempty" yaml:"product,omitempty"`
}

func (p Port) Short() string {
	if !p.USB {
		return p.Name
	}
	return fmt.Sprintf("%s\t(USB %s:%s %s)", p.Name, p.VID, p.PID, p.Product)
}

func (p Port) String() string {
	return p.Short()
}

type Ports struct {
	Ports []Port `json:"ports" yaml:"ports"`
}

func (p Ports) Elements() []Short {
	var res []Short
	for _, port := range p.Ports {
		res = append(res, port)
	}
	return res
}

// listPorts returns the serial ports of this machine. Unless all is set,
// ports that are unlikely to be a device are left out.
func listPorts(all bool) ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	byName := map[string]*enumerator.PortDetails{}
	var names []string
	for _, d := range details {
		byName[d.Name] = d
		names = append(names, d.Name)
	}
	if !all {
		names = link.FilterPorts(names)
	}
	sort.Strings(names)

	res := make([]Port, 0, len(names))
	for _, name := range names {
		d := byName[name]
		res = append(res, Port{
			Name:         d.Name,
			USB:          d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return res, nil
}

func PortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ports",
		Short:        "List the serial ports a device may be attached to",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}

			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}

			ports, err := listPorts(all)
			if err != nil {
				return err
			}
			return enc.Encode(Ports{ports})
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	cmd.Flags().StringP("output", "o", "short", "set output format to json, yaml or short")
	cmd.AddCommand(SetPortCmd())
	return cmd
}

func SetPortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "set",
		Short:        "Select the serial port to try first",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}

			port, err := pickPort(all)
			if err != nil {
				return err
			}

			cfg, err := directory.GetFileConfig()
			if err != nil {
				return err
			}
			cfg.Set("serial.port", port)
			if err := directory.WriteConfig(cfg); err != nil {
				return err
			}
			fmt.Printf("Port '%s' will be tried first\n", port)
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	return cmd
}

func pickPort(all bool) (string, error) {
	ports, err := listPorts(all)
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports detected. Is the device plugged in?")
	}

	prompt := promptui.Select{
		Label:     "Choose what serial port you want to use",
		Items:     ports,
		Templates: &promptui.SelectTemplates{},
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("you didn't select anything")
	}

	return ports[i].Name, nil
}
