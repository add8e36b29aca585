// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfmio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestOpen(t *testing.T) {
	tmp, err := os.MkdirTemp("", "get-mfmio-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	want := bytes.Repeat([]byte("0123456789abcdef"), 100)

	var zbuf bytes.Buffer
	zw, err := zstd.NewWriter(&zbuf)
	if err != nil {
		t.Fatalf("could not create zstd writer: %+v", err)
	}
	_, err = zw.Write(want)
	if err != nil {
		t.Fatalf("could not compress data: %+v", err)
	}
	err = zw.Close()
	if err != nil {
		t.Fatalf("could not close zstd writer: %+v", err)
	}

	for _, tc := range []struct {
		name string
		raw  []byte
	}{
		{name: "data.mfm", raw: want},
		{name: "data.mfm.zst", raw: zbuf.Bytes()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fname := filepath.Join(tmp, tc.name)
			err := os.WriteFile(fname, tc.raw, 0644)
			if err != nil {
				t.Fatalf("could not create file: %+v", err)
			}

			r, err := Open(fname)
			if err != nil {
				t.Fatalf("could not open file: %+v", err)
			}
			defer r.Close()

			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("could not read file: %+v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("invalid content")
			}

			err = r.Close()
			if err != nil {
				t.Fatalf("could not close file: %+v", err)
			}
		})
	}
}
