// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"io"

	"golang.org/x/xerrors"
)

// Frame is an MFM frame.
// A Frame owns its byte buffer. Fields, bit fields and items obtained from
// a Frame are views on that buffer.
type Frame struct {
	buf  []byte
	hdr  Header
	fmt  *Format     // may be nil for frames of unknown format.
	dict *Dictionary // used to resolve nested frames. may be nil.
}

// NewFrame creates a minimal frame of the given format: a header holding
// the default field values of the format, and no item.
func NewFrame(f *Format) (*Frame, error) {
	hdr := Header{
		Type:       f.Type(),
		Revision:   f.Revision(),
		Kind:       f.Kind(),
		BigEndian:  f.BigEndian(),
		BlockSize:  f.BlockSize(),
		HeaderSize: f.HeaderSize(),
		ItemSize:   f.ItemSize(),
	}
	hdr.FrameSize = roundUp(hdr.HeaderSize, hdr.BlockSize)
	if hdr.Kind == Blob {
		hdr.ItemCount = 1
		hdr.ItemSize = hdr.FrameSize - hdr.HeaderSize
	}

	fr := &Frame{
		buf: make([]byte, hdr.FrameSize),
		hdr: hdr,
		fmt: f,
	}
	err := hdr.encode(fr.buf)
	if err != nil {
		return nil, xerrors.Errorf("mfm: could not encode header of %v: %w", f, err)
	}

	for _, def := range f.defs {
		fd, err := fr.HeaderField(def.field)
		if err != nil {
			return nil, err
		}
		switch {
		case def.bit != "":
			bf, err := fd.BitField(def.bit)
			if err != nil {
				return nil, err
			}
			err = bf.SetUint64(def.value)
			if err != nil {
				return nil, err
			}
		case fd.Size() <= 8:
			err = fd.SetUint64(def.value)
			if err != nil {
				return nil, err
			}
		default:
			err = fd.SetBitset(NewBitset(fd.Bits()).SetUint64(def.value))
			if err != nil {
				return nil, err
			}
		}
	}

	return fr, nil
}

// Parse creates a frame from the bytes in p.
// Parse takes ownership of p. The frame format is resolved from dict, when
// dict is not nil. Frames with an unregistered (type, revision) are still
// parsed but only expose positional fields.
func Parse(p []byte, dict *Dictionary) (*Frame, error) {
	var fr Frame
	err := fr.parse(p, dict)
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

func (fr *Frame) parse(p []byte, dict *Dictionary) error {
	hdr, err := ParseHeader(p)
	if err != nil {
		return err
	}
	err = hdr.Validate()
	if err != nil {
		return err
	}
	if len(p) < hdr.FrameSize {
		return xerrors.Errorf(
			"mfm: incomplete frame (got=%d bytes, want=%d): %w",
			len(p), hdr.FrameSize, io.ErrUnexpectedEOF,
		)
	}

	var f *Format
	if dict != nil {
		f, err = dict.Find(hdr.Type, hdr.Revision)
		if err != nil {
			f = nil
		}
	}
	if f != nil {
		switch {
		case f.Kind() != hdr.Kind:
			return xerrors.Errorf(
				"mfm: frame kind %v does not match format %v (kind=%v): %w",
				hdr.Kind, f, f.Kind(), ErrInvalidFrame,
			)
		case f.Kind() == Basic && f.ItemSize() != hdr.ItemSize:
			return xerrors.Errorf(
				"mfm: frame item size %d does not match format %v (item size=%d): %w",
				hdr.ItemSize, f, f.ItemSize(), ErrInvalidFrame,
			)
		}
	}

	*fr = Frame{
		buf:  p[:hdr.FrameSize:hdr.FrameSize],
		hdr:  hdr,
		fmt:  f,
		dict: dict,
	}

	if hdr.Kind == Layered {
		_, _, err = fr.layered(hdr.ItemCount)
		if err != nil {
			return err
		}
	}
	return nil
}

// Header returns the frame header.
func (fr *Frame) Header() Header { return fr.hdr }

// Format returns the format of the frame, or nil if it is not known.
func (fr *Frame) Format() *Format { return fr.fmt }

// SetFormat sets the format used to resolve named fields.
func (fr *Frame) SetFormat(f *Format) { fr.fmt = f }

// Bytes returns the frame buffer.
func (fr *Frame) Bytes() []byte { return fr.buf }

// Len returns the size of the frame, in bytes.
func (fr *Frame) Len() int { return len(fr.buf) }

// ItemCount returns the number of items of the frame.
func (fr *Frame) ItemCount() int { return fr.hdr.ItemCount }

// Clone returns a deep copy of the frame.
func (fr *Frame) Clone() *Frame {
	o := *fr
	o.buf = append([]byte(nil), fr.buf...)
	return &o
}

// WriteTo writes the frame buffer to w.
func (fr *Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(fr.buf)
	return int64(n), err
}

func (fr *Frame) format() (*Format, error) {
	if fr.fmt == nil {
		return nil, xerrors.Errorf(
			"mfm: no format for frame (type=%d, rev=%d): %w",
			fr.hdr.Type, fr.hdr.Revision, ErrFormatNotFound,
		)
	}
	return fr.fmt, nil
}

// HeaderField returns the named header field.
func (fr *Frame) HeaderField(name string) (Field, error) {
	f, err := fr.format()
	if err != nil {
		return Field{}, err
	}
	fl, ok := f.hdr.byName(name)
	if !ok {
		return Field{}, xerrors.Errorf(
			"mfm: could not find header field %q in format %v: %w",
			name, f, ErrFieldNotFound,
		)
	}
	return fr.headerField(fl.Offset, fl.Size, fl)
}

// HeaderFieldAt returns the header field at (off, size).
func (fr *Frame) HeaderFieldAt(off, size int) (Field, error) {
	var fl *FieldLayout
	if fr.fmt != nil {
		fl, _ = fr.fmt.hdr.at(off, size)
	}
	return fr.headerField(off, size, fl)
}

func (fr *Frame) headerField(off, size int, fl *FieldLayout) (Field, error) {
	if off < 0 || size <= 0 || off+size > fr.hdr.HeaderSize {
		return Field{}, xerrors.Errorf(
			"mfm: header field (offset=%d, size=%d) beyond header of %d bytes: %w",
			off, size, fr.hdr.HeaderSize, ErrOutOfRange,
		)
	}
	return Field{f: fr, off: off, size: size, layout: fl}, nil
}

// ItemAt returns the i-th item of the frame.
func (fr *Frame) ItemAt(i int) (Item, error) {
	if i < 0 || i >= fr.hdr.ItemCount {
		return Item{}, xerrors.Errorf(
			"mfm: item index %d out of range [0, %d): %w",
			i, fr.hdr.ItemCount, ErrOutOfRange,
		)
	}

	var off, size int
	switch fr.hdr.Kind {
	case Basic:
		off = fr.hdr.HeaderSize + i*fr.hdr.ItemSize
		size = fr.hdr.ItemSize
	case Layered:
		var err error
		off, size, err = fr.layered(i)
		if err != nil {
			return Item{}, err
		}
	case Blob:
		off = fr.hdr.HeaderSize
		size = fr.hdr.ItemSize
	}

	if off+size > len(fr.buf) {
		return Item{}, xerrors.Errorf(
			"mfm: item %d (offset=%d, size=%d) beyond frame of %d bytes: %w",
			i, off, size, len(fr.buf), ErrOutOfRange,
		)
	}
	return Item{f: fr, idx: i, off: off, size: size}, nil
}

// FrameAt returns the i-th nested frame of a layered frame.
// The nested frame shares its bytes with fr.
func (fr *Frame) FrameAt(i int) (*Frame, error) {
	if fr.hdr.Kind != Layered {
		return nil, xerrors.Errorf("mfm: %v frame has no nested frame: %w", fr.hdr.Kind, ErrInvalidFrame)
	}
	it, err := fr.ItemAt(i)
	if err != nil {
		return nil, err
	}
	return it.Frame()
}

// layered walks the nested frames up to the i-th one and returns its offset
// and size. For i == ItemCount, layered returns the end of the last nested
// frame.
func (fr *Frame) layered(i int) (off, size int, err error) {
	off = fr.hdr.HeaderSize
	for j := 0; ; j++ {
		if j == fr.hdr.ItemCount {
			return off, 0, nil
		}
		if off+PrimaryHeaderSize > len(fr.buf) {
			return 0, 0, xerrors.Errorf(
				"mfm: nested frame %d (offset=%d) beyond frame of %d bytes: %w",
				j, off, len(fr.buf), ErrOutOfRange,
			)
		}
		sub, err := ParseHeader(fr.buf[off:])
		if err != nil {
			return 0, 0, xerrors.Errorf("mfm: could not read header of nested frame %d: %v: %w", j, err, ErrInvalidFrame)
		}
		err = sub.Validate()
		if err != nil {
			return 0, 0, xerrors.Errorf("mfm: invalid nested frame %d: %w", j, err)
		}
		if off+sub.FrameSize > len(fr.buf) {
			return 0, 0, xerrors.Errorf(
				"mfm: nested frame %d (offset=%d, size=%d) beyond frame of %d bytes: %w",
				j, off, sub.FrameSize, len(fr.buf), ErrOutOfRange,
			)
		}
		if j == i {
			return off, sub.FrameSize, nil
		}
		off += sub.FrameSize
	}
}

// AddItem appends a zeroed item to a basic frame and returns it.
func (fr *Frame) AddItem() (Item, error) {
	err := fr.AddItems(1)
	if err != nil {
		return Item{}, err
	}
	return fr.ItemAt(fr.hdr.ItemCount - 1)
}

// AddItems appends n zeroed items to a basic frame.
func (fr *Frame) AddItems(n int) error {
	if fr.hdr.Kind != Basic {
		return xerrors.Errorf("mfm: can not add fixed-size items to a %v frame: %w", fr.hdr.Kind, ErrInvalidFrame)
	}
	if n < 0 {
		return xerrors.Errorf("mfm: invalid number of items %d: %w", n, ErrOutOfRange)
	}
	var (
		count = fr.hdr.ItemCount + n
		data  = fr.hdr.HeaderSize + count*fr.hdr.ItemSize
	)
	return fr.resize(roundUp(data, fr.hdr.BlockSize), count)
}

// AddFrame appends a copy of sub as a new nested frame of a layered frame.
func (fr *Frame) AddFrame(sub *Frame) error {
	if fr.hdr.Kind != Layered {
		return xerrors.Errorf("mfm: can not add nested frame to a %v frame: %w", fr.hdr.Kind, ErrInvalidFrame)
	}
	end, _, err := fr.layered(fr.hdr.ItemCount)
	if err != nil {
		return err
	}
	var (
		count = fr.hdr.ItemCount + 1
		data  = end + len(sub.buf)
		size  = roundUp(data, fr.hdr.BlockSize)
	)
	buf := make([]byte, size)
	copy(buf, fr.buf[:end])
	copy(buf[end:], sub.buf)
	fr.buf = buf
	return fr.resize(size, count)
}

// SetBlob sets the payload of a blob frame.
func (fr *Frame) SetBlob(data []byte) error {
	if fr.hdr.Kind != Blob {
		return xerrors.Errorf("mfm: can not set blob payload of a %v frame: %w", fr.hdr.Kind, ErrInvalidFrame)
	}
	size := roundUp(fr.hdr.HeaderSize+len(data), fr.hdr.BlockSize)
	err := fr.resize(size, 1)
	if err != nil {
		return err
	}
	copy(fr.buf[fr.hdr.HeaderSize:], data)
	for i := fr.hdr.HeaderSize + len(data); i < size; i++ {
		fr.buf[i] = 0
	}
	return nil
}

// resize sets the frame size and item count, in the header and the buffer.
func (fr *Frame) resize(size, count int) error {
	blocks := size / fr.hdr.BlockSize
	if blocks > maxFrameBlocks {
		return xerrors.Errorf("mfm: frame size %d too large: %w", size, ErrOutOfRange)
	}
	switch {
	case size > len(fr.buf):
		fr.buf = append(fr.buf, make([]byte, size-len(fr.buf))...)
	default:
		fr.buf = fr.buf[:size]
	}
	fr.hdr.FrameSize = size
	fr.hdr.ItemCount = count

	big := fr.hdr.BigEndian
	putUint(fr.buf[1:4], big, uint64(blocks))
	switch fr.hdr.Kind {
	case Blob:
		fr.hdr.ItemSize = size - fr.hdr.HeaderSize
	default:
		putUint(fr.buf[12:16], big, uint64(count))
	}
	return nil
}

func roundUp(n, blk int) int {
	return ceilDiv(n, blk) * blk
}
