// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cobo

import (
	"encoding/binary"
	"io"
	"math"

	"golang.org/x/xerrors"
)

// matrixRowSize is the size in bytes of the samples of one channel in a
// matrix file.
const matrixRowSize = 8 * NumBuckets

// FromMatrix reads an event from a matrix file: NumAget*NumChannels rows
// of NumBuckets little-endian float64 samples, chip-major, with no header.
// Sample values are clamped to [0, 65535].
func (ev *Event) FromMatrix(r io.Reader) error {
	ev.Clear()

	row := make([]byte, matrixRowSize)
	for aget := 0; aget < NumAget; aget++ {
		for chn := 0; chn < NumChannels; chn++ {
			_, err := io.ReadFull(r, row)
			if err != nil {
				if xerrors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				ev.Clear()
				return xerrors.Errorf(
					"cobo: could not read matrix row (chan=%d, aget=%d): %w",
					chn, aget, err,
				)
			}
			ch := ev.Channel(uint8(chn), uint8(aget))
			for buck := 0; buck < NumBuckets; buck++ {
				v := math.Float64frombits(binary.LittleEndian.Uint64(row[8*buck:]))
				ch.AddValue(uint16(buck), clamp(v))
			}
		}
	}
	return nil
}

// WriteMatrix writes the event as a matrix file.
// Missing samples are written as 0.
func (ev *Event) WriteMatrix(w io.Writer) error {
	row := make([]byte, matrixRowSize)
	for aget := 0; aget < NumAget; aget++ {
		for chn := 0; chn < NumChannels; chn++ {
			for i := range row {
				row[i] = 0
			}
			if ch, ok := ev.chans[chanKey{uint8(chn), uint8(aget)}]; ok {
				for i, buck := range ch.Buckets {
					if int(buck) >= NumBuckets {
						continue
					}
					binary.LittleEndian.PutUint64(
						row[8*int(buck):],
						math.Float64bits(float64(ch.Samples[i])),
					)
				}
			}
			_, err := w.Write(row)
			if err != nil {
				return xerrors.Errorf(
					"cobo: could not write matrix row (chan=%d, aget=%d): %w",
					chn, aget, err,
				)
			}
		}
	}
	return nil
}

func clamp(v float64) uint16 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}
