// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cobo

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/go-lpc/get/mfm"
)

type decoder struct {
	name   string
	decode func(ev *Event, f *mfm.Frame) bool
}

var decoders = []decoder{
	{"generic", (*Event).FromFrame},
	{"hardcoded", (*Event).FromFrameHardcoded},
}

func newItems(t *testing.T, dict *mfm.Dictionary, typ uint16, rev uint8, items [][]uint64) *mfm.Frame {
	t.Helper()
	fr, err := mfm.NewFrame(findFormat(t, dict, typ, rev))
	if err != nil {
		t.Fatalf("could not create frame: %+v", err)
	}
	err = fr.AddItems(len(items))
	if err != nil {
		t.Fatalf("could not add items: %+v", err)
	}
	names := fullItems
	if typ == CompactFrame {
		names = compactItems
	}
	for i, vs := range items {
		err = setItem(fr, i, names, vs...)
		if err != nil {
			t.Fatalf("could not set item %d: %+v", i, err)
		}
	}
	return fr
}

func checkChannel(t *testing.T, ev *Event, chn, aget uint8, bucks, smpls []uint16) {
	t.Helper()
	ch, err := ev.Lookup(chn, aget)
	if err != nil {
		t.Fatalf("could not find channel: %+v", err)
	}
	if !reflect.DeepEqual(ch.Buckets, bucks) {
		t.Fatalf("channel (%d,%d): invalid buckets: got=%v, want=%v", chn, aget, ch.Buckets, bucks)
	}
	if !reflect.DeepEqual(ch.Samples, smpls) {
		t.Fatalf("channel (%d,%d): invalid samples: got=%v, want=%v", chn, aget, ch.Samples, smpls)
	}
}

func TestDecodeFullFrame(t *testing.T) {
	dict := loadDict(t)
	fr := newItems(t, dict, FullFrame, 3, [][]uint64{
		{3, 67, 511, 4095},
		{0, 0, 0, 0},
	})

	for _, dec := range decoders {
		t.Run(dec.name, func(t *testing.T) {
			ev := NewEvent()
			if !dec.decode(ev, fr) {
				t.Fatalf("could not decode frame")
			}
			if got, want := len(ev.Channels()), 2; got != want {
				t.Fatalf("invalid number of channels: got=%d, want=%d", got, want)
			}
			checkChannel(t, ev, 67, 3, []uint16{511}, []uint16{4095})
			checkChannel(t, ev, 0, 0, []uint16{0}, []uint16{0})
		})
	}
}

func TestDecodeOptionalFields(t *testing.T) {
	dict := loadDict(t)
	src := newTestEvent()

	for _, tc := range []struct {
		rev       uint8
		windowOut uint32
		lastCell  uint16
	}{
		{2, 0, 0},
		{3, src.WindowOut, 0},
		{4, src.WindowOut, src.LastCells[3]},
		{5, src.WindowOut, src.LastCells[3]},
	} {
		for _, typ := range []uint16{FullFrame, CompactFrame} {
			fr, err := src.EncodeFrame(findFormat(t, dict, typ, tc.rev))
			if err != nil {
				t.Fatalf("could not encode frame: %+v", err)
			}
			for _, dec := range decoders {
				t.Run(fmt.Sprintf("type=%d/rev=%d/%s", typ, tc.rev, dec.name), func(t *testing.T) {
					ev := NewEvent()
					if !dec.decode(ev, fr) {
						t.Fatalf("could not decode frame")
					}
					if got, want := ev.WindowOut, tc.windowOut; got != want {
						t.Fatalf("invalid windowOut: got=%d, want=%d", got, want)
					}
					if got, want := ev.LastCells[3], tc.lastCell; got != want {
						t.Fatalf("invalid lastCell_3: got=%d, want=%d", got, want)
					}
				})
			}
		}
	}
}

func TestDecodeCompactRollover(t *testing.T) {
	dict := loadDict(t)

	items := make([][]uint64, NumChannels+1)
	for i := range items {
		items[i] = []uint64{0, uint64(100 + i)}
	}
	// interleave a sample of chip 2: counters are per chip.
	items = append(items[:10], append([][]uint64{{2, 7}}, items[10:]...)...)
	fr := newItems(t, dict, CompactFrame, 3, items)

	for _, dec := range decoders {
		t.Run(dec.name, func(t *testing.T) {
			ev := NewEvent()
			if !dec.decode(ev, fr) {
				t.Fatalf("could not decode frame")
			}
			if got, want := ev.SampleCount(), NumChannels+2; got != want {
				t.Fatalf("invalid sample count: got=%d, want=%d", got, want)
			}
			checkChannel(t, ev, 0, 0, []uint16{0, 1}, []uint16{100, 100 + NumChannels})
			checkChannel(t, ev, 1, 0, []uint16{0}, []uint16{101})
			checkChannel(t, ev, 67, 0, []uint16{0}, []uint16{100 + 67})
			checkChannel(t, ev, 0, 2, []uint16{0}, []uint16{7})
		})
	}
}

func TestDecodeParity(t *testing.T) {
	dict := loadDict(t)
	src := newTestEvent()

	for _, f := range dict.Formats() {
		t.Run(f.String(), func(t *testing.T) {
			fr, err := src.EncodeFrame(f)
			if err != nil {
				t.Fatalf("could not encode frame: %+v", err)
			}

			var (
				generic   = NewEvent()
				hardcoded = NewEvent()
			)
			if !generic.FromFrame(fr) {
				t.Fatalf("could not decode frame (generic)")
			}
			if !hardcoded.FromFrameHardcoded(fr) {
				t.Fatalf("could not decode frame (hardcoded)")
			}
			checkEvent(t, hardcoded, generic)

			if f.Type() == FullFrame && f.Revision() >= 4 {
				checkEvent(t, generic, src)
			}
		})
	}
}

func TestDecodeCompactEncoding(t *testing.T) {
	dict := loadDict(t)
	src := newTestEvent()
	fr, err := src.EncodeFrame(findFormat(t, dict, CompactFrame, 4))
	if err != nil {
		t.Fatalf("could not encode frame: %+v", err)
	}
	if got, want := fr.ItemCount(), NumAget*3*NumChannels; got != want {
		t.Fatalf("invalid number of items: got=%d, want=%d", got, want)
	}

	ev := NewEvent()
	if !ev.FromFrame(fr) {
		t.Fatalf("could not decode frame")
	}
	if got, want := len(ev.Channels()), NumAget*NumChannels; got != want {
		t.Fatalf("invalid number of channels: got=%d, want=%d", got, want)
	}
	for _, ch := range src.Channels() {
		checkChannel(t, ev, ch.ChanIdx, ch.AgetIdx, ch.Buckets, ch.Samples)
	}
	checkChannel(t, ev, 5, 1, []uint16{0, 1, 2}, []uint16{0, 0, 0})
}

func TestDecodeInvalidType(t *testing.T) {
	dict := mfm.NewDictionary()
	f, err := mfm.NewFormat("Other", 7, mfm.RevisionDesc{
		Revision: 1,
		Header: []mfm.FieldDesc{
			{Name: "metaType", Offset: 0, Size: 1, BitFields: []mfm.BitFieldDesc{
				{Name: "ISLEND", Offset: 7, Width: 1, Value: u64(0)},
				{Name: "ISBLOB", Offset: 6, Width: 1, Value: u64(0)},
				{Name: "P2BLCK", Offset: 0, Width: 4, Value: u64(6)},
			}},
			{Name: "headerSize", Offset: 8, Size: 2, Value: u64(2)},
			{Name: "itemSize", Offset: 10, Size: 2, Value: u64(4)},
		},
	})
	if err != nil {
		t.Fatalf("could not create format: %+v", err)
	}
	err = dict.AddFormat(f)
	if err != nil {
		t.Fatalf("could not add format: %+v", err)
	}
	fr, err := mfm.NewFrame(f)
	if err != nil {
		t.Fatalf("could not create frame: %+v", err)
	}

	for _, dec := range decoders {
		t.Run(dec.name, func(t *testing.T) {
			if dec.decode(NewEvent(), fr) {
				t.Fatalf("decoding should have failed")
			}
		})
	}

	_, err = NewEvent().EncodeFrame(f)
	if err == nil {
		t.Fatalf("encoding should have failed")
	}
}

func u64(v uint64) *uint64 { return &v }
