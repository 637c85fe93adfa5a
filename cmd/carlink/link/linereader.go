// Copyright (C) 2026 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package link

import (
	"bytes"
	"strings"
	"unicode"
)

const maxLineLength = 4096

// lineReader splits the byte stream of a port into lines. Partial lines are
// kept across read timeouts.
type lineReader struct {
	port  Port
	buf   []byte
	chunk []byte
}

func newLineReader(port Port, pending []byte) *lineReader {
	return &lineReader{
		port:  port,
		buf:   append([]byte(nil), pending...),
		chunk: make([]byte, 512),
	}
}

// ReadLine returns the next complete line. It returns ok == false when the
// port timed out before a line was complete.
func (r *lineReader) ReadLine() (line string, ok bool, err error) {
	for {
		if idx := bytes.IndexByte(r.buf, '\n'); idx >= 0 {
			line = string(r.buf[:idx])
			r.buf = r.buf[idx+1:]
			return line, true, nil
		}
		n, err := r.port.Read(r.chunk)
		if err != nil {
			return "", false, err
		}
		if n == 0 {
			return "", false, nil
		}
		r.buf = append(r.buf, r.chunk[:n]...)
		if len(r.buf) > maxLineLength && bytes.IndexByte(r.buf, '\n') < 0 {
			// Noise without line breaks, usually a baud mismatch.
			r.buf = r.buf[:0]
		}
	}
}

// cleanLine removes invalid byte sequences and surrounding whitespace.
func cleanLine(raw string) string {
	s := strings.ToValidUTF8(raw, "")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == 0
	})
}
