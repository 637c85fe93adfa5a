// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package link

import "errors"

// None of these stop the manager. Discovery errors make it move on to the
// next candidate or the next scan, a read error demotes the connection.
var (
	ErrPortOpen      = errors.New("could not open port")
	ErrProbeTimeout  = errors.New("no response to probe")
	ErrScanExhausted = errors.New("no device responded")
	ErrRead          = errors.New("read failed")
	ErrWrite         = errors.New("write failed")
	ErrNotConnected  = errors.New("not connected")
)
