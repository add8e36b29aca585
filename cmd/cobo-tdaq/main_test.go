// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"testing"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"
)

func TestNewServer(t *testing.T) {
	ctx := tdaq.Context{
		Ctx: context.Background(),
		Msg: log.NewMsgStream("cobo-tdaq", log.LvlInfo, io.Discard),
	}

	for _, tc := range []struct {
		name    string
		env     map[string]string
		invalid bool
		fail    bool
	}{
		{
			name: "defaults",
		},
		{
			name: "zstd",
			env: map[string]string{
				"GET_ODIR": t.TempDir(),
				"GET_ZSTD": "true",
			},
		},
		{
			name: "invalid-zstd",
			env: map[string]string{
				"GET_ZSTD": "maybe",
			},
			invalid: true,
		},
		{
			name: "missing-formats",
			env: map[string]string{
				"GET_FORMATS": "testdata/not-there.yaml, ",
			},
			fail: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, err := newServer("cobo-tdaq", func(k string) string { return tc.env[k] })
			switch {
			case err != nil && !tc.invalid:
				t.Fatalf("could not create server: %+v", err)
			case err == nil && tc.invalid:
				t.Fatalf("expected an error")
			case err != nil:
				return
			}

			var resp tdaq.Frame
			err = srv.OnConfig(ctx, &resp, tdaq.Frame{})
			switch {
			case err != nil && !tc.fail:
				t.Fatalf("could not configure server: %+v", err)
			case err == nil && tc.fail:
				t.Fatalf("expected an error")
			}
		})
	}
}
