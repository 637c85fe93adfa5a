// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package link

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Port is the part of a serial port the link needs. A Read that times out
// returns (0, nil).
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens the named port at the given baud rate.
type Opener func(name string, baud int) (Port, error)

// Lister enumerates the serial ports currently present on the host.
type Lister func() ([]string, error)

// OpenSerial opens a host serial port.
func OpenSerial(name string, baud int) (Port, error) {
	dev, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
	})
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("the port '%s' was not found", name)
	}
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// ListSerial lists the host serial ports in enumeration order.
func ListSerial() ([]string, error) {
	return serial.GetPortsList()
}

// Candidates orders the ports a scan should probe. The preferred port, if
// present, goes first. With filter set, only ports that look like USB serial
// adapters are kept.
func Candidates(ports []string, preferred string, filter bool) []string {
	if filter {
		ports = FilterPorts(ports)
	}
	if preferred == "" {
		return ports
	}
	res := []string{}
	found := false
	for _, p := range ports {
		if p == preferred {
			found = true
			continue
		}
		res = append(res, p)
	}
	if !found {
		return ports
	}
	return append([]string{preferred}, res...)
}

// FilterPorts drops ports that are unlikely to be a microcontroller board.
func FilterPorts(ports []string) []string {
	switch runtime.GOOS {
	case "darwin":
		return darwinFilterPaths(ports)
	case "linux":
		return linuxFilterPaths(ports)
	default:
		return ports
	}
}

func darwinFilterPaths(paths []string) []string {
	existing := map[string]struct{}{}
	for _, p := range paths {
		existing[p] = struct{}{}
	}
	var res []string
	for _, path := range paths {
		if strings.Contains(path, "Bluetooth") {
			continue
		}
		if strings.HasPrefix(path, "/dev/cu") {
			res = append(res, path)
		} else if strings.HasPrefix(path, "/dev/tty") {
			// Prefer the callout device when both exist.
			candidate := "/dev/cu" + strings.TrimPrefix(path, "/dev/tty")
			if _, exists := existing[candidate]; !exists {
				res = append(res, path)
			}
		}
	}
	return res
}

func linuxFilterPaths(paths []string) []string {
	res := []string(nil)
	for _, path := range paths {
		if strings.Contains(path, "tty") && (strings.Contains(path, "USB") || strings.Contains(path, "ACM")) {
			res = append(res, path)
		}
	}
	return res
}

func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		count, err := w.Write(data)
		if err != nil {
			return err
		}
		if count == 0 {
			return io.ErrShortWrite
		}
		data = data[count:]
	}
	return nil
}

// drain waits for written bytes to leave the port, if the port can.
func drain(w io.Writer) error {
	if d, ok := w.(interface{ Drain() error }); ok {
		return d.Drain()
	}
	return nil
}
