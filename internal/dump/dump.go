// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dump displays the content of MFM frames in a human readable form.
package dump // import "github.com/go-lpc/get/internal/dump"

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-lpc/get/mfm"
)

// Options controls how frames are displayed.
type Options struct {
	Items int  // maximum number of displayed items. A negative value displays all items.
	Hex   bool // display a hexadecimal dump of the frame bytes.
}

// Frame writes a description of the frame to w.
func Frame(w io.Writer, fr *mfm.Frame, opts Options) error {
	d := dumper{w: w, opts: opts}
	d.frame(fr, "")
	return d.err
}

type dumper struct {
	w    io.Writer
	opts Options
	err  error
}

func (d *dumper) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func (d *dumper) frame(fr *mfm.Frame, indent string) {
	hdr := fr.Header()
	endian := "big"
	if !hdr.BigEndian {
		endian = "little"
	}
	d.printf("%sframe: type=%d rev=%d kind=%v endian=%s source=%d\n",
		indent, hdr.Type, hdr.Revision, hdr.Kind, endian, hdr.DataSource,
	)
	d.printf("%s  size=%d B block=%d B header=%d B items=%d x %d B\n",
		indent, hdr.FrameSize, hdr.BlockSize, hdr.HeaderSize, hdr.ItemCount, hdr.ItemSize,
	)

	f := fr.Format()
	if f == nil {
		d.printf("%s  format: <unknown>\n", indent)
		d.hex(fr.Bytes(), indent)
		return
	}
	d.printf("%s  format: %v\n", indent, f)

	d.printf("%s  header:\n", indent)
	for _, fl := range f.HeaderFields() {
		fd, err := fr.HeaderField(fl.Name)
		if err != nil {
			d.printf("%s    %-12s <%v>\n", indent, fl.Name, err)
			continue
		}
		d.printf("%s    %-12s %s\n", indent, fl.Name, fieldValue(fd, fl))
	}

	n := fr.ItemCount()
	if d.opts.Items >= 0 && n > d.opts.Items {
		n = d.opts.Items
	}
	if n > 0 {
		d.printf("%s  items:\n", indent)
	}
	for i := 0; i < n; i++ {
		switch hdr.Kind {
		case mfm.Layered:
			sub, err := fr.FrameAt(i)
			if err != nil {
				d.printf("%s    [%4d] <%v>\n", indent, i, err)
				continue
			}
			d.frame(sub, indent+"    ")
		case mfm.Blob:
			item, err := fr.ItemAt(i)
			if err != nil {
				d.printf("%s    [%4d] <%v>\n", indent, i, err)
				continue
			}
			d.printf("%s    [%4d] blob of %d B\n", indent, i, item.Size())
			d.hex(item.Bytes(), indent+"    ")
		default:
			item, err := fr.ItemAt(i)
			if err != nil {
				d.printf("%s    [%4d] <%v>\n", indent, i, err)
				continue
			}
			d.printf("%s    [%4d] %s\n", indent, i, itemValue(item, f))
		}
	}
	if n < fr.ItemCount() {
		d.printf("%s    [...] (%d more items)\n", indent, fr.ItemCount()-n)
	}

	if d.opts.Hex {
		d.hex(fr.Bytes(), indent)
	}
}

func (d *dumper) hex(p []byte, indent string) {
	if d.err != nil {
		return
	}
	var o strings.Builder
	_ = mfm.HexDump(&o, p)
	for _, line := range strings.SplitAfter(o.String(), "\n") {
		if line == "" {
			continue
		}
		d.printf("%s  %s", indent, line)
	}
}

func fieldValue(fd mfm.Field, fl mfm.FieldLayout) string {
	var o strings.Builder
	if v, err := fd.Uint64(); err == nil {
		fmt.Fprintf(&o, "0x%0*x (%d)", 2*fl.Size, v, v)
	} else {
		p, err := fd.Bytes()
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		fmt.Fprintf(&o, "0x%x", p)
	}
	bits := bitValues(fd, fl)
	if bits != "" {
		o.WriteString(" [" + bits + "]")
	}
	return o.String()
}

func bitValues(fd mfm.Field, fl mfm.FieldLayout) string {
	var vs []string
	for _, bl := range fl.SortedBitFields() {
		bf, err := fd.BitField(bl.Name)
		if err != nil {
			continue
		}
		v, err := bf.Uint64()
		if err != nil {
			vs = append(vs, bl.Name+"=?")
			continue
		}
		vs = append(vs, fmt.Sprintf("%s=%d", bl.Name, v))
	}
	return strings.Join(vs, " ")
}

func itemValue(item mfm.Item, f *mfm.Format) string {
	var vs []string
	for _, fl := range f.ItemFields() {
		fd, err := item.Field(fl.Name)
		if err != nil {
			vs = append(vs, fmt.Sprintf("<%v>", err))
			continue
		}
		if len(fl.BitFields) > 0 {
			vs = append(vs, bitValues(fd, fl))
			continue
		}
		v, err := fd.Uint64()
		if err != nil {
			vs = append(vs, fl.Name+"=?")
			continue
		}
		vs = append(vs, fmt.Sprintf("%s=%d", fl.Name, v))
	}
	if len(vs) == 0 {
		return fmt.Sprintf("0x%x", item.Bytes())
	}
	return strings.Join(vs, " ")
}
