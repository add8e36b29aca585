// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/daq"
	"github.com/go-lpc/get/mfm"
)

func TestSplit(t *testing.T) {
	msg.SetOutput(io.Discard)
	defer msg.SetOutput(os.Stdout)

	tmp, err := os.MkdirTemp("", "get-mfm-split-")
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

	fname := filepath.Join(tmp, "run.mfm")
	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create input file: %+v", err)
	}
	defer f.Close()

	enc := mfm.NewEncoder(f)
	for i := 0; i < 6; i++ {
		ev := cobo.NewEvent()
		ev.EventIdx = uint32(i / 2)
		ev.AsadIdx = uint8(i % 2)
		ev.Channel(0, 0).AddValue(0, uint16(i))
		fr, err := ev.EncodeFrame(format)
		if err != nil {
			t.Fatalf("could not encode frame: %+v", err)
		}
		err = enc.Encode(fr)
		if err != nil {
			t.Fatalf("could not write frame: %+v", err)
		}
	}
	err = f.Close()
	if err != nil {
		t.Fatalf("could not close input file: %+v", err)
	}

	odir := filepath.Join(tmp, "out")
	files, err := process(config{
		odir:   odir,
		prefix: "split",
		run:    3,
		max:    daq.DefaultMaxFileSize,
	}, []string{fname})
	if err != nil {
		t.Fatalf("could not split file: %+v", err)
	}

	want := []string{
		filepath.Join(odir, "split_3_c0_a0_0.mfm"),
		filepath.Join(odir, "split_3_c0_a1_0.mfm"),
	}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("invalid files:\ngot= %q\nwant=%q", files, want)
	}

	for _, name := range files {
		r, err := os.Open(name)
		if err != nil {
			t.Fatalf("could not open %q: %+v", name, err)
		}
		defer r.Close()

		dec := mfm.NewDecoder(r, dict)
		n := 0
		for {
			var fr mfm.Frame
			err := dec.Decode(&fr)
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("could not decode frame: %+v", err)
			}
			n++
		}
		if n != 3 {
			t.Fatalf("invalid number of frames in %q: got=%d, want=3", name, n)
		}
	}

	_, err = process(config{odir: odir}, []string{filepath.Join(tmp, "not-there.mfm")})
	if err == nil {
		t.Fatalf("expected an error")
	}
}
