// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"golang.org/x/xerrors"
)

// Iterator is a forward-only iterator over the items of a frame.
//
//	it := frame.Iter()
//	for it.HasNext() {
//	    err := it.Next()
//	    ...
//	    item, err := it.Item()
//	}
type Iterator struct {
	f    *Frame
	kind Kind
	cur  Item
	next int // index of the next item.
	off  int // offset of the next item.
	err  error
}

// Iter returns a new iterator over the items of the frame.
func (fr *Frame) Iter() *Iterator {
	return &Iterator{
		f:    fr,
		kind: fr.hdr.Kind,
		cur:  Item{idx: -1},
		off:  fr.hdr.HeaderSize,
	}
}

// HasNext returns whether another item is available.
func (it *Iterator) HasNext() bool {
	return it.err == nil && it.next < it.f.hdr.ItemCount
}

// Next moves the iterator to the next item.
func (it *Iterator) Next() error {
	if it.err != nil {
		return it.err
	}
	if it.next >= it.f.hdr.ItemCount {
		return xerrors.Errorf(
			"mfm: iterator exhausted after %d items: %w",
			it.f.hdr.ItemCount, ErrOutOfRange,
		)
	}

	var size int
	switch it.kind {
	case Basic:
		size = it.f.hdr.ItemSize
	case Layered:
		hdr, err := ParseHeader(it.f.buf[min(it.off, len(it.f.buf)):])
		if err != nil {
			it.err = xerrors.Errorf("mfm: could not read nested frame %d: %v: %w", it.next, err, ErrOutOfRange)
			return it.err
		}
		size = hdr.FrameSize
	case Blob:
		size = it.f.hdr.ItemSize
	default:
		it.err = xerrors.Errorf("mfm: unknown frame kind %v: %w", it.kind, ErrInvalidFrame)
		return it.err
	}

	if it.off+size > len(it.f.buf) {
		it.err = xerrors.Errorf(
			"mfm: item %d (offset=%d, size=%d) beyond frame of %d bytes: %w",
			it.next, it.off, size, len(it.f.buf), ErrOutOfRange,
		)
		return it.err
	}

	it.cur = Item{f: it.f, idx: it.next, off: it.off, size: size}
	it.next++
	it.off += size
	return nil
}

// Item returns the current item.
func (it *Iterator) Item() (Item, error) {
	if it.cur.idx < 0 {
		return Item{}, xerrors.Errorf("mfm: could not access item: %w", ErrIteratorNotStarted)
	}
	return it.cur, nil
}

// Frame returns the nested frame held by the current item of a layered
// frame.
func (it *Iterator) Frame() (*Frame, error) {
	item, err := it.Item()
	if err != nil {
		return nil, err
	}
	return item.Frame()
}
