// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"io"

	"github.com/go-daq/tdaq/log"
	"golang.org/x/xerrors"
)

type builderState uint8

const (
	awaitingHeader builderState = iota
	awaitingBody
	frameComplete
	resyncing
)

func (st builderState) String() string {
	switch st {
	case awaitingHeader:
		return "awaiting-header"
	case awaitingBody:
		return "awaiting-body"
	case frameComplete:
		return "frame-complete"
	case resyncing:
		return "resyncing"
	}
	return "unknown"
}

type verdict uint8

const (
	implausible verdict = iota
	plausible
	needMore
)

// BuilderStats holds the counters of a Builder.
type BuilderStats struct {
	Bytes   int64 // number of bytes received.
	Frames  int64 // number of frames emitted.
	Dropped int64 // number of bytes discarded.
	Resyncs int64 // number of resynchronizations.
}

// Builder reassembles MFM frames from a stream of arbitrarily sized data
// chunks.
//
// Complete frames are handed to the emit function, in stream order.
// The emitted frame owns its own buffer.
//
// When the stream gets corrupted, Builder discards the offending bytes,
// logs a hexadecimal dump of them and resynchronizes on the next
// plausible frame header.
// A frame is emitted as soon as its last byte is received, unless its
// content holds a frame header that may reveal a truncation. Such a frame
// is held until the data following it settles the question.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	emit func(*Frame) error
	dict *Dictionary
	msg  log.MsgStream

	state builderState
	buf   []byte
	hdr   Header

	stats BuilderStats
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithDictionary sets the dictionary used to resolve the format of frames.
// Frames of a format missing from the dictionary are still emitted, but
// only headers of known formats are accepted while resynchronizing.
func WithDictionary(dict *Dictionary) BuilderOption {
	return func(b *Builder) {
		b.dict = dict
	}
}

// WithMsgStream sets the message stream used to report stream errors.
func WithMsgStream(msg log.MsgStream) BuilderOption {
	return func(b *Builder) {
		b.msg = msg
	}
}

// NewBuilder creates a new frame builder handing complete frames to emit.
func NewBuilder(emit func(*Frame) error, opts ...BuilderOption) *Builder {
	b := &Builder{
		emit: emit,
		msg:  log.NewMsgStream("mfm-builder", log.LvlInfo, io.Discard),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Write adds the data chunk p to the builder.
// Write implements io.Writer.
func (b *Builder) Write(p []byte) (int, error) {
	err := b.AddDataChunk(p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// AddDataChunk adds the data chunk p to the builder and emits all the frames
// it completes.
// AddDataChunk only returns errors from the emit function.
func (b *Builder) AddDataChunk(p []byte) error {
	b.stats.Bytes += int64(len(p))
	b.buf = append(b.buf, p...)
	return b.process(false)
}

// Flush signals the end of the stream.
// Flush emits the pending complete frame, if any, and discards the bytes
// of any trailing incomplete frame.
func (b *Builder) Flush() error {
	err := b.process(true)
	if err != nil {
		return err
	}

	if b.state == awaitingBody {
		// a truncated frame may hide complete ones.
		if k, v := b.embedded(true); v == plausible {
			b.discard(k, xerrors.Errorf(
				"mfm: truncated frame (type=%d, rev=%d, size=%d) at end of stream",
				b.hdr.Type, b.hdr.Revision, b.hdr.FrameSize,
			))
			b.state = awaitingHeader
			err = b.process(true)
			if err != nil {
				return err
			}
		}
	}

	if len(b.buf) > 0 {
		b.msg.Warnf("dropping %d trailing bytes (state=%v)", len(b.buf), b.state)
		b.stats.Dropped += int64(len(b.buf))
	}
	b.reset()
	return nil
}

// Reset discards all pending data.
func (b *Builder) Reset() {
	b.reset()
}

func (b *Builder) reset() {
	b.state = awaitingHeader
	b.buf = b.buf[:0]
	b.hdr = Header{}
}

// Stats returns the builder counters.
func (b *Builder) Stats() BuilderStats { return b.stats }

func (b *Builder) process(final bool) error {
	for {
		switch b.state {
		case awaitingHeader:
			if len(b.buf) == 0 || len(b.buf) < headerLen(b.buf[0]) {
				return nil
			}
			hdr, err := b.header(b.buf)
			if err != nil {
				b.resync(err)
				continue
			}
			b.hdr = hdr
			b.state = awaitingBody

		case awaitingBody:
			if len(b.buf) < b.hdr.FrameSize {
				return nil
			}
			b.state = frameComplete

		case frameComplete:
			k, v := b.embedded(final)
			switch v {
			case needMore:
				return nil
			case plausible:
				b.discard(k, xerrors.Errorf(
					"mfm: frame (type=%d, rev=%d, size=%d) truncated after %d bytes",
					b.hdr.Type, b.hdr.Revision, b.hdr.FrameSize, k,
				))
				b.state = awaitingHeader
				continue
			}

			n := b.hdr.FrameSize
			buf := make([]byte, n)
			copy(buf, b.buf[:n])
			fr, err := Parse(buf, b.dict)
			if err != nil {
				b.resync(err)
				continue
			}
			b.consume(n)
			b.state = awaitingHeader
			b.stats.Frames++
			err = b.emit(fr)
			if err != nil {
				return xerrors.Errorf("mfm: could not process frame (type=%d, rev=%d): %w",
					fr.hdr.Type, fr.hdr.Revision, err,
				)
			}

		case resyncing:
			k := 0
		scan:
			for ; k < len(b.buf); k++ {
				hdr, v := b.check(b.buf[k:])
				if v == plausible {
					v = b.follows(k+hdr.FrameSize, final)
				}
				switch v {
				case plausible:
					b.stats.Dropped += int64(k)
					b.consume(k)
					b.state = awaitingHeader
					break scan
				case needMore:
					b.stats.Dropped += int64(k)
					b.consume(k)
					return nil
				}
			}
			if b.state == resyncing {
				b.stats.Dropped += int64(len(b.buf))
				b.buf = b.buf[:0]
				return nil
			}
		}
	}
}

// header decodes and validates the header at the start of p.
func (b *Builder) header(p []byte) (Header, error) {
	if p[0]&metaReserved != 0 {
		return Header{}, xerrors.Errorf("mfm: reserved metaType bits set (meta=0x%02x): %w", p[0], ErrInvalidFrame)
	}
	hdr, err := ParseHeader(p)
	if err != nil {
		return hdr, err
	}
	err = hdr.Validate()
	if err != nil {
		return hdr, err
	}
	return hdr, nil
}

// check tells whether p starts with a plausible frame header.
func (b *Builder) check(p []byte) (Header, verdict) {
	if len(p) == 0 {
		return Header{}, needMore
	}
	if p[0]&metaReserved != 0 {
		return Header{}, implausible
	}
	if len(p) < headerLen(p[0]) {
		return Header{}, needMore
	}
	hdr, err := b.header(p)
	if err != nil {
		return hdr, implausible
	}
	if hdr.Kind == Basic {
		data := hdr.HeaderSize + hdr.ItemCount*hdr.ItemSize
		if hdr.FrameSize-data >= hdr.BlockSize {
			return hdr, implausible
		}
	}
	if b.dict != nil {
		if _, err := b.dict.Find(hdr.Type, hdr.Revision); err != nil {
			return hdr, implausible
		}
	}
	return hdr, plausible
}

// follows tells whether a frame ending at offset off of the buffer is
// followed by a plausible frame header or by the end of the stream.
func (b *Builder) follows(off int, final bool) verdict {
	switch {
	case off > len(b.buf):
		if final {
			return implausible
		}
		return needMore
	case off == len(b.buf):
		if final {
			return plausible
		}
		return needMore
	}
	_, v := b.check(b.buf[off:])
	if v == needMore && final {
		// trailing bytes, dropped by Flush.
		return plausible
	}
	return v
}

// embedded returns the offset of the first frame header inside the frame
// being assembled that starts a chain of frames running past the declared
// end of that frame.
// Chains ending exactly at the declared end are nested or padding data and
// are ignored.
func (b *Builder) embedded(final bool) (int, verdict) {
	end := min(len(b.buf), b.hdr.FrameSize)
	for k := 1; k < end; k++ {
		switch v := b.chain(k, final); v {
		case plausible, needMore:
			return k, v
		}
	}
	return 0, implausible
}

func (b *Builder) chain(k int, final bool) verdict {
	var (
		n   = b.hdr.FrameSize
		off = k
	)
	for off < n && off < len(b.buf) {
		hdr, v := b.check(b.buf[off:])
		switch {
		case v == needMore && final:
			return implausible
		case v != plausible:
			return v
		}
		off += hdr.FrameSize
	}
	if off == n {
		return implausible
	}
	return b.follows(off, final)
}

// resync discards the frame at the start of the buffer and scans for the
// next plausible frame header.
func (b *Builder) resync(err error) {
	b.discard(1, err)
	b.state = resyncing
}

// discard drops the first n bytes of the buffer, after reporting err and
// dumping the beginning of the corrupted data.
func (b *Builder) discard(n int, err error) {
	b.msg.Errorf("%+v", err)
	b.msg.Errorf("dumping data bytes in hexadecimal (but no more than 8 lines, i.e. 256 bytes):\n%s", hexDump(b.buf))
	b.msg.Warnf("resetting frame builder...")
	b.stats.Resyncs++
	b.stats.Dropped += int64(n)
	b.consume(n)
	b.hdr = Header{}
}

func (b *Builder) consume(n int) {
	m := copy(b.buf, b.buf[n:])
	b.buf = b.buf[:m]
}
