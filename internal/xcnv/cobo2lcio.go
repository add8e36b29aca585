// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/mfm"
	"go-hep.org/x/hep/lcio"
)

// Cobo2LCIO converts the CoBo frames decoded from dec into LCIO events.
// Frames that are not CoBo data frames are skipped.
func Cobo2LCIO(w *lcio.Writer, dec *mfm.Decoder, run int32, msg *log.Logger) error {
	err := w.WriteRunHeader(RunHeader(run))
	if err != nil {
		return fmt.Errorf("could not write run header: %w", err)
	}

	var (
		ev   = cobo.NewEvent()
		ievt = int32(0)
	)

loop:
	for i := 0; ; i++ {
		if i%100 == 0 {
			msg.Printf("processing frame %d...", i)
		}
		var fr mfm.Frame
		err := dec.Decode(&fr)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode frame %d: %w", i, err)
		}

		switch typ := fr.Header().Type; typ {
		case cobo.FullFrame, cobo.CompactFrame:
		default:
			msg.Printf("skipping frame %d (type=%d)", i, typ)
			continue
		}

		err = ev.Decode(&fr)
		if err != nil {
			return fmt.Errorf("could not decode CoBo frame %d: %w", i, err)
		}

		err = w.WriteEvent(Encode(ev, run, ievt))
		if err != nil {
			return fmt.Errorf("could not write CoBo event %d: %w", ievt, err)
		}
		ievt++
	}
	msg.Printf("converted %d events", ievt)

	return nil
}

// Matrix2LCIO converts the CoBo events read from the matrix streams into
// LCIO events, one event per stream.
func Matrix2LCIO(w *lcio.Writer, rs []io.Reader, run int32, msg *log.Logger) error {
	err := w.WriteRunHeader(RunHeader(run))
	if err != nil {
		return fmt.Errorf("could not write run header: %w", err)
	}

	for i, r := range rs {
		ev := cobo.NewEvent()
		err := ev.FromMatrix(r)
		if err != nil {
			return fmt.Errorf("could not read matrix %d: %w", i, err)
		}
		ev.EventIdx = uint32(i)

		err = w.WriteEvent(Encode(ev, run, int32(i)))
		if err != nil {
			return fmt.Errorf("could not write CoBo event %d: %w", i, err)
		}
	}
	msg.Printf("converted %d events", len(rs))

	return nil
}

// LCIO2Cobo calls fct with each CoBo event read from r.
// The event passed to fct is reused between calls.
func LCIO2Cobo(r *lcio.Reader, fct func(ev *cobo.Event) error) error {
	ev := cobo.NewEvent()
	for r.Next() {
		evt := r.Event()
		err := Decode(ev, &evt)
		if err != nil {
			return fmt.Errorf("could not decode LCIO event %d: %w", evt.EventNumber, err)
		}
		err = fct(ev)
		if err != nil {
			return err
		}
	}

	err := r.Err()
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not read LCIO file: %w", err)
	}
	return nil
}
