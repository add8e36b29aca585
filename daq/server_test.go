// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/get/mfm"
)

func TestServer(t *testing.T) {
	dict := loadDict(t)

	dir, err := os.MkdirTemp("", "get-daq-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(dir)

	ctx := tdaq.Context{
		Ctx: context.Background(),
		Msg: log.NewMsgStream("get-srv", log.LvlInfo, io.Discard),
	}
	ctrl := func(name string, h func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error, body []byte) {
		t.Helper()
		var resp tdaq.Frame
		err := h(ctx, &resp, tdaq.Frame{Body: body})
		if err != nil {
			t.Fatalf("could not run /%s: %+v", name, err)
		}
	}

	srv := NewServer("get-srv", dir, nil, false)

	var resp tdaq.Frame
	err = srv.OnStart(ctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error starting an uninitialized server")
	}
	err = srv.OnInit(ctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error initializing an unconfigured server")
	}

	ctrl("config", srv.OnConfig, nil)
	ctrl("init", srv.OnInit, nil)
	ctrl("reset", srv.OnReset, nil)

	run := make([]byte, 4)
	binary.LittleEndian.PutUint32(run, 42)
	ctrl("start", srv.OnStart, run)

	frames := []*mfm.Frame{
		newFrame(t, dict, 1, 0, 1),
		newFrame(t, dict, 1, 1, 1),
		newFrame(t, dict, 1, 0, 2),
	}
	raw := rawFrames(t, frames...)
	for len(raw) > 0 {
		n := min(len(raw), 77)
		err := srv.Input(ctx, tdaq.Frame{Body: raw[:n]})
		if err != nil {
			t.Fatalf("could not process input: %+v", err)
		}
		raw = raw[n:]
	}

	for i, want := range frames {
		var dst tdaq.Frame
		err := srv.Output(ctx, &dst)
		if err != nil {
			t.Fatalf("could not get output %d: %+v", i, err)
		}
		if !bytes.Equal(dst.Body, want.Bytes()) {
			t.Fatalf("invalid output frame %d", i)
		}
	}

	ctrl("stop", srv.OnStop, nil)
	ctrl("stop", srv.OnStop, nil) // not running.

	if got, want := srv.Counter().Stats(), (CounterStats{
		Frames: 3,
		Bytes:  int64(3 * frames[0].Len()),
	}); got != want {
		t.Fatalf("invalid stats:\ngot= %+v\nwant=%+v", got, want)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.mfm"))
	if err != nil {
		t.Fatalf("could not list frame files: %+v", err)
	}
	if got, want := basenames(matches), []string{
		"CoBo_42_c1_a0_0.mfm",
		"CoBo_42_c1_a1_0.mfm",
	}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid files:\ngot= %q\nwant=%q", got, want)
	}

	// input is ignored when not running.
	err = srv.Input(ctx, tdaq.Frame{Body: rawFrames(t, frames[0])})
	if err != nil {
		t.Fatalf("could not process input: %+v", err)
	}

	// next run number is incremented.
	ctrl("start", srv.OnStart, nil)
	err = srv.Input(ctx, tdaq.Frame{Body: rawFrames(t, frames[0])})
	if err != nil {
		t.Fatalf("could not process input: %+v", err)
	}
	ctrl("stop", srv.OnStop, nil)
	if _, err := os.Stat(filepath.Join(dir, "CoBo_43_c1_a0_0.mfm")); err != nil {
		t.Fatalf("could not find frame file of run 43: %+v", err)
	}

	// output unblocks when the context is done.
	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctx.Ctx = cctx
	ctrl("reset", srv.OnReset, nil)
	var dst tdaq.Frame
	err = srv.Output(ctx, &dst)
	if err != nil {
		t.Fatalf("could not get output: %+v", err)
	}
	if dst.Body != nil {
		t.Fatalf("unexpected output frame")
	}

	ctrl("quit", srv.OnQuit, nil)
}

func TestServerInvalidStart(t *testing.T) {
	ctx := tdaq.Context{
		Ctx: context.Background(),
		Msg: log.NewMsgStream("get-srv", log.LvlInfo, io.Discard),
	}
	srv := NewServer("get-srv", "", nil, false)

	var resp tdaq.Frame
	for _, h := range []func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error{
		srv.OnConfig, srv.OnInit,
	} {
		err := h(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not configure server: %+v", err)
		}
	}

	err := srv.OnStart(ctx, &resp, tdaq.Frame{Body: []byte{1, 2}})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestServerMissingFormats(t *testing.T) {
	ctx := tdaq.Context{
		Ctx: context.Background(),
		Msg: log.NewMsgStream("get-srv", log.LvlInfo, io.Discard),
	}
	srv := NewServer("get-srv", "", []string{"testdata/no-such-file.yaml"}, false)

	var resp tdaq.Frame
	err := srv.OnConfig(ctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error")
	}
}
