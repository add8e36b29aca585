// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mfm implements the MultiFrame Metaformat (MFM), the self-describing
// binary frame format of the GET electronics.
//
// An MFM frame starts with a primary header (frame size, kind, endianness,
// block size, type and revision) followed, for non-blob frames, by the item
// size and item count. The layout of the remaining header and item fields is
// described by a Format, registered in a Dictionary under its
// (frame type, revision) key.
//
// Frames come in three kinds:
//   - Basic frames hold a sequence of fixed-size items,
//   - Layered frames hold a sequence of nested frames,
//   - Blob frames hold a single opaque item.
package mfm // import "github.com/go-lpc/get/mfm"

import (
	"errors"
	"fmt"
)

var (
	ErrFieldNotFound          = errors.New("field not found")
	ErrBitFieldNotFound       = errors.New("bit field not found")
	ErrFormatNotFound         = errors.New("format not found")
	ErrFormatRevisionNotFound = errors.New("format revision not found")
	ErrDuplicateFormat        = errors.New("duplicate format")
	ErrInvalidFormat          = errors.New("invalid frame format")
	ErrOutOfRange             = errors.New("out of range")
	ErrInvalidFrame           = errors.New("invalid frame")
	ErrIteratorNotStarted     = errors.New("iterator not started")
)

// Kind describes the topology of a frame payload.
type Kind uint8

const (
	Basic   Kind = iota // sequence of fixed-size items
	Layered             // sequence of nested frames
	Blob                // single opaque item
)

func (k Kind) String() string {
	switch k {
	case Basic:
		return "basic"
	case Layered:
		return "layered"
	case Blob:
		return "blob"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

const (
	// PrimaryHeaderSize is the size in bytes of the primary header, common
	// to all frames. It is also the full header of blob frames.
	PrimaryHeaderSize = 8

	// StandardHeaderSize is the minimal size in bytes of the header of
	// basic and layered frames.
	StandardHeaderSize = 16

	// MaxFrameSize is the size in bytes of the largest accepted frame.
	// Headers declaring larger frames are rejected as invalid.
	MaxFrameSize = 1 << 28
)

const (
	metaLittleEndian = 1 << 7
	metaBlob         = 1 << 6
	metaReserved     = 0x30
	metaBlockMask    = 0x0f

	// maxFrameBlocks is the largest frame size, in blocks, that fits the
	// 24-bit frameSize field.
	maxFrameBlocks = 1<<24 - 1
)
