// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"golang.org/x/xerrors"
)

// Item is a view on one item of a frame.
// Items of basic frames have the fixed size declared in the frame header.
// Items of layered frames are nested frames.
type Item struct {
	f    *Frame
	idx  int
	off  int // offset from the start of the frame, in bytes.
	size int
}

// Index returns the index of the item in its frame.
func (it Item) Index() int { return it.idx }

// Offset returns the offset of the item from the start of its frame.
func (it Item) Offset() int { return it.off }

// Size returns the size of the item, in bytes.
func (it Item) Size() int { return it.size }

// Bytes returns the bytes of the item.
// The returned slice aliases the frame buffer.
func (it Item) Bytes() []byte {
	return it.f.buf[it.off : it.off+it.size]
}

// Field returns the named field of the item.
func (it Item) Field(name string) (Field, error) {
	f, err := it.f.format()
	if err != nil {
		return Field{}, err
	}
	fl, ok := f.items.byName(name)
	if !ok {
		return Field{}, xerrors.Errorf(
			"mfm: could not find item field %q in format %v: %w",
			name, f, ErrFieldNotFound,
		)
	}
	return it.field(fl.Offset, fl.Size, fl)
}

// FieldAt returns the item field at (off, size), relative to the start of
// the item.
func (it Item) FieldAt(off, size int) (Field, error) {
	var fl *FieldLayout
	if it.f.fmt != nil {
		fl, _ = it.f.fmt.items.at(off, size)
	}
	return it.field(off, size, fl)
}

func (it Item) field(off, size int, fl *FieldLayout) (Field, error) {
	if off < 0 || size <= 0 || off+size > it.size {
		return Field{}, xerrors.Errorf(
			"mfm: item field (offset=%d, size=%d) beyond item of %d bytes: %w",
			off, size, it.size, ErrOutOfRange,
		)
	}
	return Field{f: it.f, off: it.off + off, size: size, layout: fl}, nil
}

// Frame returns the nested frame held by an item of a layered frame.
// The nested frame shares its bytes with the enclosing frame.
func (it Item) Frame() (*Frame, error) {
	if it.f.hdr.Kind != Layered {
		return nil, xerrors.Errorf(
			"mfm: item %d of a %v frame is not a frame: %w",
			it.idx, it.f.hdr.Kind, ErrInvalidFrame,
		)
	}
	end := it.off + it.size
	sub, err := Parse(it.f.buf[it.off:end:end], it.f.dict)
	if err != nil {
		return nil, xerrors.Errorf("mfm: could not parse nested frame %d: %w", it.idx, err)
	}
	return sub, nil
}
