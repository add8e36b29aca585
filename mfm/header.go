// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"fmt"
	"io"
	"math/bits"

	"golang.org/x/xerrors"
)

// Header holds the metadata of a frame, as read from its primary and
// standard headers.
type Header struct {
	Type       uint16
	Revision   uint8
	Kind       Kind
	BigEndian  bool
	BlockSize  int // block size, in bytes.
	DataSource uint8
	FrameSize  int // frame size, in bytes.
	HeaderSize int // header size, in bytes.
	ItemSize   int // item size in bytes, 0 for self-sized items.
	ItemCount  int
}

// headerLen returns the number of bytes needed to parse a header starting
// with the meta byte.
func headerLen(meta byte) int {
	if meta&metaBlob != 0 {
		return PrimaryHeaderSize
	}
	return StandardHeaderSize
}

// ParseHeader decodes the header at the start of p.
// ParseHeader only reads the fixed primary and standard header fields and
// does not need any format description.
// ParseHeader returns io.ErrUnexpectedEOF if p is too short to hold a header.
func ParseHeader(p []byte) (Header, error) {
	var hdr Header
	if len(p) < 1 || len(p) < headerLen(p[0]) {
		return hdr, xerrors.Errorf("mfm: could not read frame header (%d bytes): %w", len(p), io.ErrUnexpectedEOF)
	}

	var (
		meta = p[0]
		big  = meta&metaLittleEndian == 0
	)
	hdr.BigEndian = big
	hdr.BlockSize = 1 << (meta & metaBlockMask)
	hdr.FrameSize = int(getUint(p[1:4], big)) * hdr.BlockSize
	hdr.DataSource = p[4]
	hdr.Type = uint16(getUint(p[5:7], big))
	hdr.Revision = p[7]

	if meta&metaBlob != 0 {
		hdr.Kind = Blob
		hdr.HeaderSize = PrimaryHeaderSize
		hdr.ItemCount = 1
		if hdr.FrameSize > PrimaryHeaderSize {
			hdr.ItemSize = hdr.FrameSize - PrimaryHeaderSize
		}
		return hdr, nil
	}

	hdr.HeaderSize = int(getUint(p[8:10], big)) * hdr.BlockSize
	hdr.ItemSize = int(getUint(p[10:12], big))
	hdr.ItemCount = int(getUint(p[12:16], big))
	hdr.Kind = Basic
	if hdr.ItemSize == 0 {
		hdr.Kind = Layered
	}
	return hdr, nil
}

// Validate checks the structural consistency of the header.
func (hdr Header) Validate() error {
	invalid := func(format string, args ...any) error {
		return xerrors.Errorf("mfm: invalid header: %s: %w", fmt.Sprintf(format, args...), ErrInvalidFrame)
	}

	switch {
	case hdr.BlockSize <= 0 || bits.OnesCount(uint(hdr.BlockSize)) != 1:
		return invalid("block size %d is not a power of 2", hdr.BlockSize)
	case hdr.FrameSize < PrimaryHeaderSize:
		return invalid("frame size %d too small", hdr.FrameSize)
	case hdr.FrameSize > MaxFrameSize:
		return invalid("frame size %d larger than %d", hdr.FrameSize, MaxFrameSize)
	case hdr.FrameSize%hdr.BlockSize != 0:
		return invalid("frame size %d not a multiple of block size %d", hdr.FrameSize, hdr.BlockSize)
	case hdr.HeaderSize > hdr.FrameSize:
		return invalid("header size %d larger than frame size %d", hdr.HeaderSize, hdr.FrameSize)
	}

	switch hdr.Kind {
	case Blob:
		if hdr.HeaderSize != PrimaryHeaderSize {
			return invalid("blob header size %d", hdr.HeaderSize)
		}
	case Basic:
		if hdr.HeaderSize < StandardHeaderSize {
			return invalid("header size %d too small", hdr.HeaderSize)
		}
		if data := hdr.ItemCount * hdr.ItemSize; hdr.HeaderSize+data > hdr.FrameSize {
			return invalid(
				"%d items of %d bytes do not fit in frame of %d bytes (header=%d)",
				hdr.ItemCount, hdr.ItemSize, hdr.FrameSize, hdr.HeaderSize,
			)
		}
	case Layered:
		if hdr.HeaderSize < StandardHeaderSize {
			return invalid("header size %d too small", hdr.HeaderSize)
		}
		if hdr.ItemCount*PrimaryHeaderSize > hdr.FrameSize-hdr.HeaderSize {
			return invalid("%d nested frames do not fit in frame of %d bytes", hdr.ItemCount, hdr.FrameSize)
		}
	default:
		return invalid("unknown frame kind %v", hdr.Kind)
	}
	return nil
}

// DataSize returns the size of the payload, in bytes.
func (hdr Header) DataSize() int { return hdr.FrameSize - hdr.HeaderSize }

// MarshalBinary encodes the primary header, and the standard header for
// non-blob frames.
func (hdr Header) MarshalBinary() ([]byte, error) {
	n := StandardHeaderSize
	if hdr.Kind == Blob {
		n = PrimaryHeaderSize
	}
	p := make([]byte, n)
	err := hdr.encode(p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UnmarshalBinary decodes the header from p.
func (hdr *Header) UnmarshalBinary(p []byte) error {
	v, err := ParseHeader(p)
	if err != nil {
		return err
	}
	*hdr = v
	return nil
}

func (hdr Header) encode(p []byte) error {
	if hdr.BlockSize <= 0 || bits.OnesCount(uint(hdr.BlockSize)) != 1 {
		return xerrors.Errorf("mfm: block size %d is not a power of 2: %w", hdr.BlockSize, ErrInvalidFrame)
	}
	p2 := bits.TrailingZeros(uint(hdr.BlockSize))
	if p2 > metaBlockMask {
		return xerrors.Errorf("mfm: block size %d too large: %w", hdr.BlockSize, ErrOutOfRange)
	}
	blocks := ceilDiv(hdr.FrameSize, hdr.BlockSize)
	if blocks > maxFrameBlocks {
		return xerrors.Errorf("mfm: frame size %d too large: %w", hdr.FrameSize, ErrOutOfRange)
	}

	meta := byte(p2)
	if !hdr.BigEndian {
		meta |= metaLittleEndian
	}
	if hdr.Kind == Blob {
		meta |= metaBlob
	}
	big := hdr.BigEndian

	p[0] = meta
	putUint(p[1:4], big, uint64(blocks))
	p[4] = hdr.DataSource
	putUint(p[5:7], big, uint64(hdr.Type))
	p[7] = hdr.Revision
	if hdr.Kind == Blob {
		return nil
	}
	putUint(p[8:10], big, uint64(ceilDiv(hdr.HeaderSize, hdr.BlockSize)))
	putUint(p[10:12], big, uint64(hdr.ItemSize))
	putUint(p[12:16], big, uint64(hdr.ItemCount))
	return nil
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
