// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq holds the data acquisition side of the GET electronics:
// reception of MFM byte streams, frame storage and monitoring.
package daq // import "github.com/go-lpc/get/daq"

import (
	"fmt"

	"github.com/go-lpc/get/mfm"
	"golang.org/x/xerrors"
)

// mutantType is the frame type of MuTanT (trigger module) frames.
const mutantType = 0x8

// SourceID identifies the emitter of a frame.
type SourceID struct {
	Cobo uint8
	Asad uint8
	Data bool // frames grouped by data source, held in Cobo.
}

func (id SourceID) String() string {
	if id.Data {
		return fmt.Sprintf("s%d", id.Cobo)
	}
	return fmt.Sprintf("c%d_a%d", id.Cobo, id.Asad)
}

// sourceOf returns the emitter and the event index of a frame.
// The event index is negative when the frame does not carry any.
func sourceOf(fr *mfm.Frame) (SourceID, int64) {
	var (
		cobo, err1 = headerValue[uint8](fr, "coboIdx")
		asad, err2 = headerValue[uint8](fr, "asadIdx")
		evt, err3  = headerValue[uint32](fr, "eventIdx")
	)
	if err1 == nil && err2 == nil && err3 == nil {
		return SourceID{Cobo: cobo, Asad: asad}, int64(evt)
	}

	hdr := fr.Header()
	if hdr.Type == mutantType {
		fd, err := fr.HeaderFieldAt(14, 4)
		if err == nil {
			evt, err := mfm.Value[uint32](fd)
			if err == nil {
				return SourceID{Cobo: 100}, int64(evt)
			}
		}
	}

	return SourceID{Cobo: hdr.DataSource, Data: true}, -1
}

func headerValue[T uint8 | uint32](fr *mfm.Frame, name string) (T, error) {
	fd, err := fr.HeaderField(name)
	if err != nil {
		return 0, xerrors.Errorf("daq: could not find header field %q: %w", name, err)
	}
	return mfm.Value[T](fd)
}
