// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert CoBo data to/from LCIO.
//
// Each CoBo event is stored as an LCIO event holding 3 collections:
//   - CoBoHeader, a generic object with the event header fields,
//   - CoBoSamples, a tracker raw data collection with the samples of each channel,
//   - CoBoBuckets, a tracker raw data collection with the time buckets of each channel.
//
// Channels are identified by CellID0, set to agetIdx<<8 | chanIdx.
package xcnv // import "github.com/go-lpc/get/internal/xcnv"

import (
	"fmt"

	"github.com/go-lpc/get/cobo"
	"go-hep.org/x/hep/lcio"
)

const (
	Detector = "GET"

	HeaderName  = "CoBoHeader"
	SamplesName = "CoBoSamples"
	BucketsName = "CoBoBuckets"
)

// layout of the CoBoHeader words.
const (
	hdrEventIdx = iota
	hdrCoboIdx
	hdrAsadIdx
	hdrReadOffset
	hdrStatus
	hdrWindowOut
	hdrMultip
	hdrLastCell = hdrMultip + cobo.NumAget
	hdrHitPat   = hdrLastCell + cobo.NumAget
	hdrLen      = hdrHitPat + cobo.NumAget*hitPatWords

	hitPatWords = 3 // 72 bits
)

// RunHeader returns the LCIO run header of a CoBo run.
func RunHeader(run int32) *lcio.RunHeader {
	return &lcio.RunHeader{
		RunNumber: run,
		Detector:  Detector,
		Descr:     "",
		Params: lcio.Params{
			Ints: map[string][]int32{
				"NumAget":     {cobo.NumAget},
				"NumChannels": {cobo.NumChannels},
				"NumBuckets":  {cobo.NumBuckets},
			},
		},
	}
}

// Encode converts a CoBo event into the LCIO event number num of the run.
func Encode(ev *cobo.Event, run, num int32) *lcio.Event {
	words := make([]int32, hdrLen)
	words[hdrEventIdx] = int32(ev.EventIdx)
	words[hdrCoboIdx] = int32(ev.CoboIdx)
	words[hdrAsadIdx] = int32(ev.AsadIdx)
	words[hdrReadOffset] = int32(ev.ReadOffset)
	words[hdrStatus] = int32(ev.Status)
	words[hdrWindowOut] = int32(ev.WindowOut)
	for i := 0; i < cobo.NumAget; i++ {
		words[hdrMultip+i] = int32(ev.Multiplicities[i])
		words[hdrLastCell+i] = int32(ev.LastCells[i])

		hp := ev.HitPatterns[i]
		if hp == nil {
			continue
		}
		w := words[hdrHitPat+i*hitPatWords:]
		for j := 0; j < hp.Len(); j++ {
			if hp.Test(j) {
				w[j/32] |= int32(uint32(1) << (j % 32))
			}
		}
	}

	var (
		chans   = ev.Channels()
		samples = &lcio.TrackerRawDataContainer{
			Data: make([]lcio.TrackerRawData, len(chans)),
		}
		bucks = &lcio.TrackerRawDataContainer{
			Data: make([]lcio.TrackerRawData, len(chans)),
		}
	)
	for i, ch := range chans {
		cellID0 := int32(ch.AgetIdx)<<8 | int32(ch.ChanIdx)
		samples.Data[i] = lcio.TrackerRawData{
			CellID0: cellID0,
			ADCs:    append([]uint16(nil), ch.Samples...),
		}
		bucks.Data[i] = lcio.TrackerRawData{
			CellID0: cellID0,
			ADCs:    append([]uint16(nil), ch.Buckets...),
		}
	}

	evt := &lcio.Event{
		RunNumber:   run,
		EventNumber: num,
		TimeStamp:   int64(ev.EventTime),
		Detector:    Detector,
	}
	evt.Add(HeaderName, &lcio.GenericObject{
		Data: []lcio.GenericObjectData{
			{I32s: words},
		},
	})
	evt.Add(SamplesName, samples)
	evt.Add(BucketsName, bucks)
	return evt
}

// Decode fills ev with the CoBo event stored in the LCIO event.
func Decode(ev *cobo.Event, evt *lcio.Event) error {
	ev.Clear()

	hdr, ok := evt.Get(HeaderName).(*lcio.GenericObject)
	if !ok || len(hdr.Data) == 0 {
		return fmt.Errorf("xcnv: could not find %q collection in event %d", HeaderName, evt.EventNumber)
	}
	words := hdr.Data[0].I32s
	if len(words) != hdrLen {
		return fmt.Errorf("xcnv: invalid %q length (got=%d, want=%d)", HeaderName, len(words), hdrLen)
	}

	ev.EventTime = uint64(evt.TimeStamp)
	ev.EventIdx = uint32(words[hdrEventIdx])
	ev.CoboIdx = uint8(words[hdrCoboIdx])
	ev.AsadIdx = uint8(words[hdrAsadIdx])
	ev.ReadOffset = uint16(words[hdrReadOffset])
	ev.Status = uint8(words[hdrStatus])
	ev.WindowOut = uint32(words[hdrWindowOut])
	for i := 0; i < cobo.NumAget; i++ {
		ev.Multiplicities[i] = uint16(words[hdrMultip+i])
		ev.LastCells[i] = uint16(words[hdrLastCell+i])

		hp := ev.HitPatterns[i]
		w := words[hdrHitPat+i*hitPatWords:]
		for j := 0; j < hp.Len(); j++ {
			if uint32(w[j/32])>>(j%32)&1 == 1 {
				hp.Set(j)
			}
		}
	}

	samples, ok := evt.Get(SamplesName).(*lcio.TrackerRawDataContainer)
	if !ok {
		return fmt.Errorf("xcnv: could not find %q collection in event %d", SamplesName, evt.EventNumber)
	}
	bucks, ok := evt.Get(BucketsName).(*lcio.TrackerRawDataContainer)
	if !ok {
		return fmt.Errorf("xcnv: could not find %q collection in event %d", BucketsName, evt.EventNumber)
	}
	if len(samples.Data) != len(bucks.Data) {
		return fmt.Errorf(
			"xcnv: samples and buckets mismatch (samples=%d, buckets=%d)",
			len(samples.Data), len(bucks.Data),
		)
	}

	for i, raw := range samples.Data {
		bs := bucks.Data[i]
		if bs.CellID0 != raw.CellID0 || len(bs.ADCs) != len(raw.ADCs) {
			return fmt.Errorf("xcnv: samples and buckets mismatch for cell 0x%x", raw.CellID0)
		}
		ch := ev.Channel(uint8(raw.CellID0), uint8(raw.CellID0>>8))
		for j, v := range raw.ADCs {
			ch.AddValue(bs.ADCs[j], v)
		}
	}

	return nil
}
