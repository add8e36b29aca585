// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"bytes"
	"io"

	"golang.org/x/xerrors"
)

const payloadChunk = 1 << 16

// Decoder reads MFM frames from an underlying data source.
type Decoder struct {
	r    io.Reader
	dict *Dictionary
	err  error
}

// NewDecoder creates a decoder that reads frames from r and resolves their
// formats with dict. dict may be nil.
func NewDecoder(r io.Reader, dict *Dictionary) *Decoder {
	return &Decoder{r: r, dict: dict}
}

// Decode reads the next frame from the stream.
// Decode returns io.EOF when the stream ends on a frame boundary, and
// io.ErrUnexpectedEOF when it ends inside a frame.
func (dec *Decoder) Decode(fr *Frame) error {
	if dec.err != nil {
		return dec.err
	}

	hdr := make([]byte, StandardHeaderSize)
	dec.read(hdr[:1])
	if dec.err != nil {
		if xerrors.Is(dec.err, io.EOF) {
			return io.EOF
		}
		return xerrors.Errorf("mfm: could not read frame header: %w", dec.err)
	}

	hlen := headerLen(hdr[0])
	dec.read(hdr[1:hlen])
	if dec.err != nil {
		return xerrors.Errorf("mfm: could not read frame header: %w", dec.eof())
	}

	h, err := ParseHeader(hdr[:hlen])
	if err != nil {
		dec.err = err
		return err
	}
	err = h.Validate()
	if err != nil {
		dec.err = err
		return err
	}

	// grow with the data actually read, not the declared size.
	buf := bytes.NewBuffer(make([]byte, 0, min(h.FrameSize, payloadChunk)))
	buf.Write(hdr[:hlen])
	_, dec.err = io.CopyN(buf, dec.r, int64(h.FrameSize-hlen))
	if dec.err != nil {
		return xerrors.Errorf(
			"mfm: could not read frame payload (type=%d, rev=%d, size=%d): %w",
			h.Type, h.Revision, h.FrameSize, dec.eof(),
		)
	}

	err = fr.parse(buf.Bytes(), dec.dict)
	if err != nil {
		dec.err = err
		return err
	}
	return nil
}

func (dec *Decoder) read(p []byte) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, p)
}

// eof turns a clean end of stream into an unexpected one, for reads in
// the middle of a frame.
func (dec *Decoder) eof() error {
	if xerrors.Is(dec.err, io.EOF) {
		dec.err = io.ErrUnexpectedEOF
	}
	return dec.err
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader, dict *Dictionary) (*Frame, error) {
	var fr Frame
	err := NewDecoder(r, dict).Decode(&fr)
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

// Encoder writes MFM frames to an output stream.
type Encoder struct {
	w   io.Writer
	err error
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the frame buffer to the stream.
func (enc *Encoder) Encode(fr *Frame) error {
	if enc.err != nil {
		return enc.err
	}
	if fr == nil {
		return nil
	}
	_, enc.err = enc.w.Write(fr.buf)
	if enc.err != nil {
		return xerrors.Errorf(
			"mfm: could not write frame (type=%d, rev=%d): %w",
			fr.hdr.Type, fr.hdr.Revision, enc.err,
		)
	}
	return nil
}
