// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cobo decodes the data frames of the CoBo (Concentration Board)
// of the GET electronics into per-channel waveforms.
//
// A CoBo frame carries the samples read out from the 4 AGET chips of one
// AsAd board. Full frames (type 1) carry the chip, channel and time bucket
// of each sample. Compact frames (type 2) only carry the chip index, the
// channel and time bucket being implied by the readout order.
package cobo // import "github.com/go-lpc/get/cobo"

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"

	"github.com/go-lpc/get/mfm"
)

const (
	NumAget     = 4   // number of AGET chips per AsAd board
	NumChannels = 68  // number of channels per AGET chip
	NumBuckets  = 512 // number of time buckets per channel

	hitPatBits = 72 // width of a hit pattern, in bits
)

// Frame types of CoBo data frames.
const (
	FullFrame    uint16 = 1 // items hold agetIdx, chanIdx, buckIdx and sample
	CompactFrame uint16 = 2 // items hold agetIdx and sample
)

var (
	ErrChannelNotFound = errors.New("cobo: channel not found")
	ErrOutOfRange      = fmt.Errorf("cobo: %w", mfm.ErrOutOfRange)
)

//go:embed formats.yaml
var formats []byte

// LoadFormats registers the CoBo frame formats into dict.
func LoadFormats(dict *mfm.Dictionary) error {
	return dict.Decode(bytes.NewReader(formats), ".yaml")
}
