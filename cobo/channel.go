// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cobo

import (
	"slices"

	"golang.org/x/xerrors"
)

// FPNChannels lists the fixed-pattern noise channels of an AGET chip.
var FPNChannels = [...]uint8{11, 22, 45, 56}

// Channel holds the samples read out from one channel of an AGET chip.
// Buckets and Samples are parallel slices, in readout order.
type Channel struct {
	ChanIdx uint8
	AgetIdx uint8

	Buckets []uint16
	Samples []uint16
}

// NewChannel creates a new empty channel able to hold a full readout
// without reallocating.
func NewChannel(chanIdx, agetIdx uint8) *Channel {
	ch := &Channel{ChanIdx: chanIdx, AgetIdx: agetIdx}
	ch.Reserve(NumBuckets)
	return ch
}

// AddValue appends the sample value read out from the given time bucket.
func (ch *Channel) AddValue(buck, sample uint16) {
	ch.Buckets = append(ch.Buckets, buck)
	ch.Samples = append(ch.Samples, sample)
}

// SampleAt returns the first sample value recorded for the given bucket.
func (ch *Channel) SampleAt(buck uint16) (uint16, error) {
	i := slices.Index(ch.Buckets, buck)
	if i < 0 {
		return 0, xerrors.Errorf(
			"cobo: no sample for bucket %d in channel (chan=%d, aget=%d): %w",
			buck, ch.ChanIdx, ch.AgetIdx, ErrOutOfRange,
		)
	}
	return ch.Samples[i], nil
}

// SampleCount returns the number of recorded samples.
func (ch *Channel) SampleCount() int { return len(ch.Samples) }

// Max returns the maximal sample value, or 0 for an empty channel.
func (ch *Channel) Max() uint16 {
	if len(ch.Samples) == 0 {
		return 0
	}
	return slices.Max(ch.Samples)
}

// Min returns the minimal sample value, or 0 for an empty channel.
func (ch *Channel) Min() uint16 {
	if len(ch.Samples) == 0 {
		return 0
	}
	return slices.Min(ch.Samples)
}

// Mean returns the mean sample value, or 0 for an empty channel.
func (ch *Channel) Mean() float64 {
	if len(ch.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range ch.Samples {
		sum += float64(v)
	}
	return sum / float64(len(ch.Samples))
}

// Clear removes all samples, keeping the allocated storage.
func (ch *Channel) Clear() {
	ch.Buckets = ch.Buckets[:0]
	ch.Samples = ch.Samples[:0]
}

// Reserve makes room for at least n samples.
func (ch *Channel) Reserve(n int) {
	if n > cap(ch.Buckets) {
		ch.Buckets = slices.Grow(ch.Buckets, n-len(ch.Buckets))
	}
	if n > cap(ch.Samples) {
		ch.Samples = slices.Grow(ch.Samples, n-len(ch.Samples))
	}
}

// IsFPN returns whether the channel is a fixed-pattern noise channel.
func (ch *Channel) IsFPN() bool {
	return slices.Contains(FPNChannels[:], ch.ChanIdx)
}

// FPNNeighbour returns the fixed-pattern noise channel closest to this
// channel. Ties go to the lowest FPN channel.
func (ch *Channel) FPNNeighbour() uint8 {
	var (
		best = FPNChannels[0]
		dist = distance(best, ch.ChanIdx)
	)
	for _, fpn := range FPNChannels[1:] {
		if d := distance(fpn, ch.ChanIdx); d < dist {
			best, dist = fpn, d
		}
	}
	return best
}

func distance(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}
