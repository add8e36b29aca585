// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cobo

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/get/mfm"
	"golang.org/x/xerrors"
)

type chanKey struct {
	chanIdx uint8
	agetIdx uint8
}

// Event is the content of a CoBo data frame: the readout of the 4 AGET
// chips of an AsAd board.
type Event struct {
	EventTime  uint64
	EventIdx   uint32
	CoboIdx    uint8
	AsadIdx    uint8
	ReadOffset uint16
	Status     uint8

	HitPatterns    [NumAget]*mfm.Bitset
	Multiplicities [NumAget]uint16
	WindowOut      uint32          // sliding window, revision >= 3.
	LastCells      [NumAget]uint16 // last read cell, revision >= 4.

	chans map[chanKey]*Channel
	msg   log.MsgStream
}

// Option configures an Event.
type Option func(*Event)

// WithMsgStream sets the message stream used to report decoding errors.
func WithMsgStream(msg log.MsgStream) Option {
	return func(ev *Event) {
		ev.msg = msg
	}
}

// NewEvent creates a new empty event.
func NewEvent(opts ...Option) *Event {
	ev := &Event{
		chans: make(map[chanKey]*Channel),
		msg:   log.NewMsgStream("cobo", log.LvlInfo, io.Discard),
	}
	for i := range ev.HitPatterns {
		ev.HitPatterns[i] = mfm.NewBitset(hitPatBits)
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

func (ev *Event) String() string {
	return fmt.Sprintf(
		"Event{idx=%d, time=%d, cobo=%d, asad=%d, channels=%d, samples=%d}",
		ev.EventIdx, ev.EventTime, ev.CoboIdx, ev.AsadIdx, len(ev.chans), ev.SampleCount(),
	)
}

// Channel returns the channel (chanIdx, agetIdx), creating it if needed.
func (ev *Event) Channel(chanIdx, agetIdx uint8) *Channel {
	key := chanKey{chanIdx, agetIdx}
	ch, ok := ev.chans[key]
	if !ok {
		ch = NewChannel(chanIdx, agetIdx)
		ev.chans[key] = ch
	}
	return ch
}

// Lookup returns the channel (chanIdx, agetIdx), if the event holds it.
func (ev *Event) Lookup(chanIdx, agetIdx uint8) (*Channel, error) {
	ch, ok := ev.chans[chanKey{chanIdx, agetIdx}]
	if !ok {
		return nil, xerrors.Errorf(
			"cobo: could not find channel (chan=%d, aget=%d): %w",
			chanIdx, agetIdx, ErrChannelNotFound,
		)
	}
	return ch, nil
}

// Channels returns the channels of the event, sorted by chip and channel
// index.
func (ev *Event) Channels() []*Channel {
	o := make([]*Channel, 0, len(ev.chans))
	for _, ch := range ev.chans {
		o = append(o, ch)
	}
	sort.Slice(o, func(i, j int) bool {
		if o[i].AgetIdx != o[j].AgetIdx {
			return o[i].AgetIdx < o[j].AgetIdx
		}
		return o[i].ChanIdx < o[j].ChanIdx
	})
	return o
}

// ContainsChip returns whether the event holds a channel of the given chip.
func (ev *Event) ContainsChip(agetIdx uint8) bool {
	for key := range ev.chans {
		if key.agetIdx == agetIdx {
			return true
		}
	}
	return false
}

// SampleCount returns the total number of samples of the event.
func (ev *Event) SampleCount() int {
	n := 0
	for _, ch := range ev.chans {
		n += ch.SampleCount()
	}
	return n
}

// Clear removes all channels and resets the hit patterns.
func (ev *Event) Clear() {
	for k := range ev.chans {
		delete(ev.chans, k)
	}
	for _, hp := range ev.HitPatterns {
		hp.Reset()
	}
}

// FromFrame decodes the CoBo frame f, looking up its fields by name.
// FromFrame returns false, and leaves the event cleared, if the frame
// could not be decoded.
func (ev *Event) FromFrame(f *mfm.Frame) bool {
	err := ev.Decode(f)
	if err != nil {
		ev.msg.Errorf("error decoding CoBo data frame: %+v", err)
		ev.Clear()
		return false
	}
	return true
}

// FromFrameHardcoded decodes the CoBo frame f, using the fixed field
// positions of the CoBo formats.
// FromFrameHardcoded returns false, and leaves the event cleared, if the
// frame could not be decoded.
func (ev *Event) FromFrameHardcoded(f *mfm.Frame) bool {
	err := ev.DecodeHardcoded(f)
	if err != nil {
		ev.msg.Errorf("error decoding CoBo data frame: %+v", err)
		ev.Clear()
		return false
	}
	return true
}

// sampleCount returns the number of items that fit in the frame, up to the
// declared item count.
func (ev *Event) sampleCount(hdr mfm.Header, itemSize int) int {
	n := hdr.ItemCount
	if itemSize <= 0 {
		return 0
	}
	if limit := hdr.DataSize() / itemSize; limit < n {
		ev.msg.Errorf(
			"data frame size is not consistent with sample count (items=%d, max=%d)",
			n, limit,
		)
		n = limit
	}
	return n
}

// chipCounters tracks the implied channel and bucket indices of the
// samples of compact frames, per chip.
type chipCounters struct {
	chans [NumAget]uint16
	bucks [NumAget]uint16
}

// next returns the channel and bucket indices of the next sample of chip
// aget.
func (cnt *chipCounters) next(aget uint8) (chanIdx uint8, buckIdx uint16) {
	if cnt.chans[aget] >= NumChannels {
		cnt.chans[aget] = 0
		cnt.bucks[aget]++
	}
	chanIdx = uint8(cnt.chans[aget])
	buckIdx = cnt.bucks[aget]
	cnt.chans[aget]++
	return chanIdx, buckIdx
}
