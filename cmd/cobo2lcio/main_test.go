// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/internal/xcnv"
	"github.com/go-lpc/get/mfm"
	"go-hep.org/x/hep/lcio"
)

func newEvent(evt uint32) *cobo.Event {
	ev := cobo.NewEvent()
	ev.EventIdx = evt
	ev.CoboIdx = 1
	for buck := uint16(0); buck < 4; buck++ {
		ev.Channel(5, 2).AddValue(buck, 100+buck)
	}
	return ev
}

func TestProcess(t *testing.T) {
	msg.SetOutput(io.Discard)
	defer msg.SetOutput(os.Stdout)

	tmp, err := os.MkdirTemp("", "get-cobo2lcio-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	dict := mfm.NewDictionary()
	err = cobo.LoadFormats(dict)
	if err != nil {
		t.Fatalf("could not load CoBo formats: %+v", err)
	}
	format, err := dict.FindLatest(cobo.FullFrame)
	if err != nil {
		t.Fatalf("could not find format: %+v", err)
	}

	var (
		frames   []string
		matrices []string
	)
	for i := 0; i < 2; i++ {
		ev := newEvent(uint32(10 + i))

		fname := filepath.Join(tmp, fmt.Sprintf("frame_%d.mfm", i))
		f, err := os.Create(fname)
		if err != nil {
			t.Fatalf("could not create file: %+v", err)
		}
		fr, err := ev.EncodeFrame(format)
		if err != nil {
			t.Fatalf("could not encode frame: %+v", err)
		}
		err = mfm.NewEncoder(f).Encode(fr)
		if err != nil {
			t.Fatalf("could not write frame: %+v", err)
		}
		err = f.Close()
		if err != nil {
			t.Fatalf("could not close file: %+v", err)
		}
		frames = append(frames, fname)

		mname := filepath.Join(tmp, fmt.Sprintf("matrix_%d.dat", i))
		f, err = os.Create(mname)
		if err != nil {
			t.Fatalf("could not create file: %+v", err)
		}
		err = ev.WriteMatrix(f)
		if err != nil {
			t.Fatalf("could not write matrix: %+v", err)
		}
		err = f.Close()
		if err != nil {
			t.Fatalf("could not close file: %+v", err)
		}
		matrices = append(matrices, mname)
	}

	for _, tc := range []struct {
		name   string
		matrix bool
		inputs []string
		evts   []uint32
		cobo   uint8
		counts []int
	}{
		{
			name:   "frames",
			inputs: frames,
			evts:   []uint32{10, 11},
			cobo:   1,
			counts: []int{4, 4},
		},
		{
			name:   "matrix",
			matrix: true,
			inputs: matrices,
			evts:   []uint32{0, 1},
			cobo:   0,
			counts: []int{
				cobo.NumAget * cobo.NumChannels * cobo.NumBuckets,
				cobo.NumAget * cobo.NumChannels * cobo.NumBuckets,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			oname := filepath.Join(tmp, tc.name+".lcio")
			err := process(oname, config{
				lvl:    1,
				run:    42,
				matrix: tc.matrix,
			}, tc.inputs)
			if err != nil {
				t.Fatalf("could not convert: %+v", err)
			}

			r, err := lcio.Open(oname)
			if err != nil {
				t.Fatalf("could not open LCIO file: %+v", err)
			}
			defer r.Close()

			n := 0
			err = xcnv.LCIO2Cobo(r, func(ev *cobo.Event) error {
				if n >= len(tc.evts) {
					t.Fatalf("too many events")
				}
				if got, want := ev.EventIdx, tc.evts[n]; got != want {
					t.Fatalf("invalid event index: got=%d, want=%d", got, want)
				}
				if got, want := ev.CoboIdx, tc.cobo; got != want {
					t.Fatalf("invalid cobo index: got=%d, want=%d", got, want)
				}
				if got, want := ev.SampleCount(), tc.counts[n]; got != want {
					t.Fatalf("invalid sample count: got=%d, want=%d", got, want)
				}
				n++
				return nil
			})
			if err != nil {
				t.Fatalf("could not read LCIO file: %+v", err)
			}
			if n != len(tc.evts) {
				t.Fatalf("invalid number of events: got=%d, want=%d", n, len(tc.evts))
			}
		})
	}

	err = process(filepath.Join(tmp, "out.lcio"), config{}, []string{filepath.Join(tmp, "not-there.mfm")})
	if err == nil {
		t.Fatalf("expected an error")
	}
}
