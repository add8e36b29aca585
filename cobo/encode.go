// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cobo

import (
	"fmt"

	"github.com/go-lpc/get/mfm"
	"golang.org/x/xerrors"
)

// EncodeFrame creates a CoBo frame of format f holding the event.
//
// Full frames hold one item per sample. Compact frames hold, for each chip,
// the samples of all NumChannels channels for buckets 0 up to the last
// recorded bucket of the chip. Missing samples are encoded as 0.
func (ev *Event) EncodeFrame(f *mfm.Format) (*mfm.Frame, error) {
	switch f.Type() {
	case FullFrame, CompactFrame:
	default:
		return nil, xerrors.Errorf(
			"cobo: invalid CoBo frame type %d: %w",
			f.Type(), mfm.ErrInvalidFormat,
		)
	}

	fr, err := mfm.NewFrame(f)
	if err != nil {
		return nil, xerrors.Errorf("cobo: could not create frame: %w", err)
	}

	err = ev.encodeHeader(fr)
	if err != nil {
		return nil, xerrors.Errorf("cobo: could not encode frame header: %w", err)
	}

	switch f.Type() {
	case FullFrame:
		err = ev.encodeFull(fr)
	case CompactFrame:
		err = ev.encodeCompact(fr)
	}
	if err != nil {
		return nil, xerrors.Errorf("cobo: could not encode frame items: %w", err)
	}

	return fr, nil
}

func (ev *Event) encodeHeader(fr *mfm.Frame) error {
	set := func(name string, v uint64) error {
		fd, err := fr.HeaderField(name)
		if err != nil {
			return err
		}
		return fd.SetUint64(v)
	}

	for _, v := range []struct {
		name string
		v    uint64
	}{
		{"eventTime", ev.EventTime},
		{"eventIdx", uint64(ev.EventIdx)},
		{"coboIdx", uint64(ev.CoboIdx)},
		{"asadIdx", uint64(ev.AsadIdx)},
		{"readOffset", uint64(ev.ReadOffset)},
		{"status", uint64(ev.Status)},
	} {
		err := set(v.name, v.v)
		if err != nil {
			return err
		}
	}

	for i := 0; i < NumAget; i++ {
		err := set(fmt.Sprintf("multip_%d", i), uint64(ev.Multiplicities[i]))
		if err != nil {
			return err
		}

		fd, err := fr.HeaderField(fmt.Sprintf("hitPat_%d", i))
		if err != nil {
			return err
		}
		hp := ev.HitPatterns[i]
		switch {
		case hp == nil:
			hp = mfm.NewBitset(fd.Bits())
		case hp.Len() != fd.Bits():
			hp = mfm.NewBitset(fd.Bits()).SetInt(hp.Int())
		}
		err = fd.SetBitset(hp)
		if err != nil {
			return err
		}
	}

	optional := func(name string, v uint64) error {
		err := set(name, v)
		if xerrors.Is(err, mfm.ErrFieldNotFound) {
			return nil
		}
		return err
	}
	err := optional("windowOut", uint64(ev.WindowOut))
	if err != nil {
		return err
	}
	for i, v := range ev.LastCells {
		err = optional(fmt.Sprintf("lastCell_%d", i), uint64(v))
		if err != nil {
			return err
		}
	}
	return nil
}

// setItem writes the given bit field values into the i-th item of fr.
func setItem(fr *mfm.Frame, i int, names []string, vs ...uint64) error {
	fd, err := itemField(fr, i)
	if err != nil {
		return err
	}
	for j, name := range names {
		bf, err := fd.BitField(name)
		if err != nil {
			return err
		}
		err = bf.SetUint64(vs[j])
		if err != nil {
			return err
		}
	}
	return nil
}

var (
	fullItems    = []string{"agetIdx", "chanIdx", "buckIdx", "sample"}
	compactItems = []string{"agetIdx", "sample"}
)

func (ev *Event) encodeFull(fr *mfm.Frame) error {
	chans := ev.Channels()
	err := fr.AddItems(ev.SampleCount())
	if err != nil {
		return err
	}

	i := 0
	for _, ch := range chans {
		for j, buck := range ch.Buckets {
			err := setItem(
				fr, i, fullItems,
				uint64(ch.AgetIdx), uint64(ch.ChanIdx),
				uint64(buck), uint64(ch.Samples[j]),
			)
			if err != nil {
				return err
			}
			i++
		}
	}
	return nil
}

func (ev *Event) encodeCompact(fr *mfm.Frame) error {
	var nbucks [NumAget]int
	for _, ch := range ev.chans {
		if int(ch.AgetIdx) >= NumAget {
			return xerrors.Errorf(
				"cobo: invalid chip index %d: %w",
				ch.AgetIdx, ErrOutOfRange,
			)
		}
		for _, buck := range ch.Buckets {
			nbucks[ch.AgetIdx] = max(nbucks[ch.AgetIdx], int(buck)+1)
		}
	}

	n := 0
	for _, nb := range nbucks {
		n += nb * NumChannels
	}
	err := fr.AddItems(n)
	if err != nil {
		return err
	}

	i := 0
	for aget, nb := range nbucks {
		for buck := 0; buck < nb; buck++ {
			for chn := 0; chn < NumChannels; chn++ {
				var smpl uint16
				if ch, ok := ev.chans[chanKey{uint8(chn), uint8(aget)}]; ok {
					smpl, _ = ch.SampleAt(uint16(buck))
				}
				err := setItem(fr, i, compactItems, uint64(aget), uint64(smpl))
				if err != nil {
					return err
				}
				i++
			}
		}
	}
	return nil
}
