// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mfmio opens MFM frame files, transparently decompressing
// zstd-compressed ones.
package mfmio // import "github.com/go-lpc/get/internal/mfmio"

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-lpc/get/internal/mmap"
	"github.com/klauspost/compress/zstd"
)

// Ext is the file name extension of zstd-compressed frame files.
const Ext = ".zst"

// Reader reads the content of a frame file.
type Reader struct {
	h  *mmap.Handle
	zr *zstd.Decoder
	r  io.Reader
}

// Open opens the named frame file for reading.
// Files with a .zst extension are decompressed on the fly.
func Open(fname string) (*Reader, error) {
	h, err := mmap.Open(fname)
	if err != nil {
		return nil, err
	}

	r := &Reader{h: h, r: h.Reader()}
	if strings.HasSuffix(fname, Ext) {
		zr, err := zstd.NewReader(r.r)
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("mfmio: could not create zstd reader for %q: %w", fname, err)
		}
		r.zr = zr
		r.r = zr
	}
	return r, nil
}

func (r *Reader) Read(p []byte) (int, error) { return r.r.Read(p) }

// Close closes the frame file.
func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
		r.zr = nil
	}
	return r.h.Close()
}

var _ io.ReadCloser = (*Reader)(nil)
