// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cobo

import (
	"fmt"

	"github.com/go-lpc/get/mfm"
	"golang.org/x/exp/constraints"
	"golang.org/x/xerrors"
)

// Decode decodes the CoBo frame f into the event, looking up the header
// and item fields by name through the format of the frame.
//
// Header fields introduced by later format revisions (windowOut and
// lastCell_i) are set to 0 when the format of f does not declare them.
func (ev *Event) Decode(f *mfm.Frame) error {
	ev.Clear()

	hdr := f.Header()
	switch hdr.Type {
	case FullFrame, CompactFrame:
	default:
		return xerrors.Errorf(
			"cobo: invalid CoBo frame type %d: %w",
			hdr.Type, mfm.ErrInvalidFrame,
		)
	}

	err := ev.decodeHeader(f)
	if err != nil {
		return xerrors.Errorf("cobo: could not decode frame header: %w", err)
	}

	n := ev.sampleCount(hdr, hdr.ItemSize)
	switch hdr.Type {
	case FullFrame:
		err = ev.decodeFull(f, n)
	case CompactFrame:
		err = ev.decodeCompact(f, n)
	}
	if err != nil {
		return xerrors.Errorf("cobo: could not decode frame items: %w", err)
	}
	return nil
}

func (ev *Event) decodeHeader(f *mfm.Frame) error {
	var err error
	get := func(v any, name string) {
		if err != nil {
			return
		}
		switch v := v.(type) {
		case *uint8:
			*v, err = headerValue[uint8](f, name)
		case *uint16:
			*v, err = headerValue[uint16](f, name)
		case *uint32:
			*v, err = headerValue[uint32](f, name)
		case *uint64:
			*v, err = headerValue[uint64](f, name)
		default:
			panic(fmt.Errorf("cobo: invalid value type %T", v))
		}
	}

	get(&ev.EventTime, "eventTime")
	get(&ev.EventIdx, "eventIdx")
	get(&ev.CoboIdx, "coboIdx")
	get(&ev.AsadIdx, "asadIdx")
	get(&ev.ReadOffset, "readOffset")
	get(&ev.Status, "status")
	for i := range ev.Multiplicities {
		get(&ev.Multiplicities[i], fmt.Sprintf("multip_%d", i))
	}
	if err != nil {
		return err
	}

	for i := range ev.HitPatterns {
		fd, err := f.HeaderField(fmt.Sprintf("hitPat_%d", i))
		if err != nil {
			return err
		}
		bs, err := fd.Bitset()
		if err != nil {
			return err
		}
		ev.HitPatterns[i] = bs
	}

	ev.WindowOut, err = optional[uint32](f, "windowOut")
	if err != nil {
		return err
	}
	for i := range ev.LastCells {
		ev.LastCells[i], err = optional[uint16](f, fmt.Sprintf("lastCell_%d", i))
		if err != nil {
			return err
		}
	}

	return nil
}

func (ev *Event) decodeFull(f *mfm.Frame, n int) error {
	for i := 0; i < n; i++ {
		fd, err := itemField(f, i)
		if err != nil {
			return err
		}
		var (
			aget = bitValue[uint8](fd, "agetIdx", &err)
			chn  = bitValue[uint8](fd, "chanIdx", &err)
			buck = bitValue[uint16](fd, "buckIdx", &err)
			smpl = bitValue[uint16](fd, "sample", &err)
		)
		if err != nil {
			return xerrors.Errorf("cobo: could not decode item %d: %w", i, err)
		}
		ev.Channel(chn, aget).AddValue(buck, smpl)
	}
	return nil
}

func (ev *Event) decodeCompact(f *mfm.Frame, n int) error {
	var cnt chipCounters
	for i := 0; i < n; i++ {
		fd, err := itemField(f, i)
		if err != nil {
			return err
		}
		var (
			aget = bitValue[uint8](fd, "agetIdx", &err)
			smpl = bitValue[uint16](fd, "sample", &err)
		)
		if err != nil {
			return xerrors.Errorf("cobo: could not decode item %d: %w", i, err)
		}
		chn, buck := cnt.next(aget)
		ev.Channel(chn, aget).AddValue(buck, smpl)
	}
	return nil
}

func itemField(f *mfm.Frame, i int) (mfm.Field, error) {
	it, err := f.ItemAt(i)
	if err != nil {
		return mfm.Field{}, err
	}
	return it.Field("")
}

func headerValue[T constraints.Unsigned](f *mfm.Frame, name string) (T, error) {
	fd, err := f.HeaderField(name)
	if err != nil {
		return 0, err
	}
	return mfm.Value[T](fd)
}

// optional returns the value of the named header field, or 0 if the format
// of the frame does not declare it.
func optional[T constraints.Unsigned](f *mfm.Frame, name string) (T, error) {
	v, err := headerValue[T](f, name)
	switch {
	case err == nil:
		return v, nil
	case xerrors.Is(err, mfm.ErrFieldNotFound):
		return 0, nil
	default:
		return 0, err
	}
}

// bitValue reads the named bit field of fd.
// bitValue is a no-op if *err is not nil, and stores its error in *err.
func bitValue[T constraints.Unsigned](fd mfm.Field, name string, err *error) T {
	if *err != nil {
		return 0
	}
	bf, e := fd.BitField(name)
	if e != nil {
		*err = e
		return 0
	}
	v, e := mfm.Value[T](bf)
	if e != nil {
		*err = e
		return 0
	}
	return v
}
