// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"fmt"
	"io"
	"strings"
)

const (
	dumpMaxBytes  = 8 * dumpLineBytes
	dumpLineBytes = 32
)

// HexDump writes at most 256 bytes of p to w, in hexadecimal, 32 bytes per
// line. Each line starts with the offset of its first byte.
func HexDump(w io.Writer, p []byte) error {
	_, err := io.WriteString(w, hexDump(p))
	return err
}

func hexDump(p []byte) string {
	if len(p) > dumpMaxBytes {
		p = p[:dumpMaxBytes]
	}
	var o strings.Builder
	for i, v := range p {
		if i%dumpLineBytes == 0 {
			if i > 0 {
				o.WriteString("\n")
			}
			fmt.Fprintf(&o, "%03x: ", i)
		}
		if i%8 == 0 {
			o.WriteString(" ")
		}
		fmt.Fprintf(&o, "%02x ", v)
	}
	if len(p) > 0 {
		o.WriteString("\n")
	}
	return o.String()
}
