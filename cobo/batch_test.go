// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cobo

import (
	"context"
	"testing"

	"github.com/go-lpc/get/mfm"
	"golang.org/x/xerrors"
)

func TestDecodeAll(t *testing.T) {
	dict := loadDict(t)

	var frames []*mfm.Frame
	for i := 0; i < 20; i++ {
		ev := newTestEvent()
		ev.EventIdx = uint32(i)
		f := findFormat(t, dict, FullFrame, 4)
		if i%2 == 1 {
			f = findFormat(t, dict, CompactFrame, 5)
		}
		fr, err := ev.EncodeFrame(f)
		if err != nil {
			t.Fatalf("could not encode frame %d: %+v", i, err)
		}
		// frames read without a dictionary.
		fr, err = mfm.Parse(fr.Bytes(), nil)
		if err != nil {
			t.Fatalf("could not parse frame %d: %+v", i, err)
		}
		frames = append(frames, fr)
	}

	for _, workers := range []int{0, 1, 3} {
		evts, err := DecodeAll(context.Background(), dict, frames, workers, nil)
		if err != nil {
			t.Fatalf("workers=%d: could not decode frames: %+v", workers, err)
		}
		if got, want := len(evts), len(frames); got != want {
			t.Fatalf("workers=%d: invalid number of events: got=%d, want=%d", workers, got, want)
		}
		for i, ev := range evts {
			if got, want := ev.EventIdx, uint32(i); got != want {
				t.Fatalf("workers=%d: event %d: invalid index: got=%d, want=%d", workers, i, got, want)
			}
			if ev.SampleCount() == 0 {
				t.Fatalf("workers=%d: event %d: no sample", workers, i)
			}
		}
		if frames[0].Format() != nil {
			t.Fatalf("input frames should not be modified")
		}
	}

	// without a dictionary, frames can not be decoded by name.
	evts, err := DecodeAll(context.Background(), nil, frames[:2], 2, nil)
	if err != nil {
		t.Fatalf("could not decode frames: %+v", err)
	}
	for i, ev := range evts {
		if got := ev.SampleCount(); got != 0 {
			t.Fatalf("event %d: invalid sample count: got=%d, want=0", i, got)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DecodeAll(ctx, dict, frames, 2, nil)
	if !xerrors.Is(err, context.Canceled) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, context.Canceled)
	}
}
