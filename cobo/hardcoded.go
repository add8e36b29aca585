// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cobo

import (
	"encoding/binary"

	"github.com/go-lpc/get/mfm"
	"golang.org/x/xerrors"
)

// Fixed positions of the CoBo header fields, in bytes.
const (
	offEventTime  = 16
	offEventIdx   = 22
	offCoboIdx    = 26
	offAsadIdx    = 27
	offReadOffset = 28
	offStatus     = 30
	offHitPat     = 31 // + 9*aget
	offMultip     = 67 // + 2*aget
	offWindowOut  = 75 // revision >= 3
	offLastCell   = 79 // + 2*aget, revision >= 4

	hitPatSize = hitPatBits / 8
)

// DecodeHardcoded decodes the CoBo frame f into the event, reading the
// header and item fields at their fixed positions.
// DecodeHardcoded does not need the format of f.
func (ev *Event) DecodeHardcoded(f *mfm.Frame) error {
	ev.Clear()

	hdr := f.Header()
	var itemSize int
	switch hdr.Type {
	case FullFrame:
		itemSize = 4
	case CompactFrame:
		itemSize = 2
	default:
		return xerrors.Errorf(
			"cobo: invalid CoBo frame type %d: %w",
			hdr.Type, mfm.ErrInvalidFrame,
		)
	}
	if hdr.ItemSize != itemSize {
		return xerrors.Errorf(
			"cobo: invalid item size %d for frame type %d (want=%d): %w",
			hdr.ItemSize, hdr.Type, itemSize, mfm.ErrInvalidFrame,
		)
	}

	var err error
	ev.EventTime = fieldAt[uint64](f, offEventTime, 6, &err)
	ev.EventIdx = fieldAt[uint32](f, offEventIdx, 4, &err)
	ev.CoboIdx = fieldAt[uint8](f, offCoboIdx, 1, &err)
	ev.AsadIdx = fieldAt[uint8](f, offAsadIdx, 1, &err)
	ev.ReadOffset = fieldAt[uint16](f, offReadOffset, 2, &err)
	ev.Status = fieldAt[uint8](f, offStatus, 1, &err)
	for i := range ev.Multiplicities {
		ev.Multiplicities[i] = fieldAt[uint16](f, offMultip+2*i, 2, &err)
	}
	if hdr.Revision >= 3 {
		ev.WindowOut = fieldAt[uint32](f, offWindowOut, 4, &err)
	}
	if hdr.Revision >= 4 {
		for i := range ev.LastCells {
			ev.LastCells[i] = fieldAt[uint16](f, offLastCell+2*i, 2, &err)
		}
	}
	if err != nil {
		return xerrors.Errorf("cobo: could not decode frame header: %w", err)
	}

	for i := range ev.HitPatterns {
		fd, err := f.HeaderFieldAt(offHitPat+hitPatSize*i, hitPatSize)
		if err != nil {
			return xerrors.Errorf("cobo: could not decode frame header: %w", err)
		}
		bs, err := fd.Bitset()
		if err != nil {
			return xerrors.Errorf("cobo: could not decode frame header: %w", err)
		}
		ev.HitPatterns[i] = bs
	}

	var (
		n    = ev.sampleCount(hdr, itemSize)
		data = f.Bytes()[hdr.HeaderSize:]
	)
	var order binary.ByteOrder = binary.LittleEndian
	if hdr.BigEndian {
		order = binary.BigEndian
	}

	switch hdr.Type {
	case FullFrame:
		for i := 0; i < n; i++ {
			v := order.Uint32(data[4*i:])
			var (
				aget = uint8(v>>30) & 0x3
				chn  = uint8(v>>23) & 0x7f
				buck = uint16(v>>14) & 0x1ff
				smpl = uint16(v) & 0xfff
			)
			ev.Channel(chn, aget).AddValue(buck, smpl)
		}
	case CompactFrame:
		var cnt chipCounters
		for i := 0; i < n; i++ {
			v := order.Uint16(data[2*i:])
			var (
				aget = uint8(v>>14) & 0x3
				smpl = v & 0xfff
			)
			chn, buck := cnt.next(aget)
			ev.Channel(chn, aget).AddValue(buck, smpl)
		}
	}

	return nil
}

// fieldAt reads the header field at (off, size).
// fieldAt is a no-op if *err is not nil, and stores its error in *err.
func fieldAt[T uint8 | uint16 | uint32 | uint64](f *mfm.Frame, off, size int, err *error) T {
	if *err != nil {
		return 0
	}
	fd, e := f.HeaderFieldAt(off, size)
	if e != nil {
		*err = e
		return 0
	}
	v, e := mfm.Value[T](fd)
	if e != nil {
		*err = e
		return 0
	}
	return v
}
