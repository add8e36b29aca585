// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/mfm"
)

func TestShell(t *testing.T) {
	tmp, err := os.MkdirTemp("", "get-mfm-shell-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	out := new(bytes.Buffer)
	sh, err := newShell(out)
	if err != nil {
		t.Fatalf("could not create shell: %+v", err)
	}
	defer sh.close()

	format, err := sh.dict.FindLatest(cobo.FullFrame)
	if err != nil {
		t.Fatalf("could not find format: %+v", err)
	}

	fname := filepath.Join(tmp, "cobo.mfm")
	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create file: %+v", err)
	}
	defer f.Close()

	enc := mfm.NewEncoder(f)
	for evt := uint32(1); evt <= 2; evt++ {
		ev := cobo.NewEvent()
		ev.EventIdx = evt
		for buck := uint16(0); buck < 4; buck++ {
			ev.Channel(3, 0).AddValue(buck, 10+buck)
		}
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
		t.Fatalf("could not close file: %+v", err)
	}

	for _, tc := range []struct {
		line string
		want []string
		err  string
	}{
		{line: "frame", err: "frame: no current frame"},
		{line: "next", err: "next: no opened file"},
		{line: "bogus", err: `unknown command "bogus"`},
		{line: "open", err: "open: expected a file name"},
		{line: "open " + fname, want: []string{"opened "}},
		{line: "next", want: []string{"frame 0: type=1 rev="}},
		{line: "event", want: []string{
			"Event{idx=1, time=0, cobo=0, asad=0, channels=1, samples=4}\n",
			"  aget=0 chan= 3 samples=  4 min=  10 max=  13\n",
		}},
		{line: "dump 2", want: []string{"items:", "(2 more items)"}},
		{line: "hex", want: []string{"000:  "}},
		{line: "next x", err: `next: invalid number "x"`},
		{line: "next 2", want: []string{"frame 1: type=1", "no more frames\n"}},
		{line: "formats", want: []string{"CoBo"}},
		{line: "help", want: []string{"  open FILE: open an MFM frame file\n"}},
		{line: "load " + filepath.Join(tmp, "not-there.yaml"), err: "load: "},
	} {
		t.Run(tc.line, func(t *testing.T) {
			out.Reset()
			err := sh.exec(tc.line)
			switch {
			case err != nil && tc.err == "":
				t.Fatalf("could not run %q: %+v", tc.line, err)
			case err == nil && tc.err != "":
				t.Fatalf("expected an error")
			case err != nil:
				if !strings.HasPrefix(err.Error(), tc.err) {
					t.Fatalf("invalid error:\ngot= %v\nwant=%s", err, tc.err)
				}
				return
			}
			got := out.String()
			for _, want := range tc.want {
				if !strings.Contains(got, want) {
					t.Fatalf("missing %q in output:\n%s", want, got)
				}
			}
		})
	}

	for _, line := range []string{"quit", "exit"} {
		err := sh.exec(line)
		if !errors.Is(err, errQuit) {
			t.Fatalf("invalid %q error: %+v", line, err)
		}
	}
}

func TestComplete(t *testing.T) {
	sh, err := newShell(new(bytes.Buffer))
	if err != nil {
		t.Fatalf("could not create shell: %+v", err)
	}

	for _, tc := range []struct {
		line string
		want []string
	}{
		{"", []string{"dump", "event", "formats", "frame", "help", "hex", "load", "next", "open", "quit"}},
		{"f", []string{"formats", "frame"}},
		{"h", []string{"help", "hex"}},
		{"x", nil},
	} {
		t.Run(tc.line, func(t *testing.T) {
			got := sh.complete(tc.line)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid completion:\ngot= %q\nwant=%q", got, tc.want)
			}
		})
	}
}
