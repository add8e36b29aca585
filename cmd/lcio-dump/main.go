// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// lcio-dump decodes and displays CoBo events embedded in LCIO files.
//
// Usage: lcio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> lcio-dump -chans ./cobo.lcio
//	=== Event{idx=1, time=4660, cobo=0, asad=1, channels=2, samples=1024} ===
//	Read offset:          0
//	Status:               0
//	Window out:           0
//	  aget=0 mult=   2 last= 511 hits=2
//	  aget=0 chan= 3 samples= 512 min=  12 max=4095
//	  aget=0 chan=11 samples= 512 min= 230 max= 250 (FPN)
//	[...]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

const usage = `lcio-dump decodes and displays CoBo events embedded in LCIO files.

Usage: lcio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> lcio-dump -chans ./cobo.lcio
 === Event{idx=1, time=4660, cobo=0, asad=1, channels=2, samples=1024} ===
 Read offset:          0
 Status:               0
 Window out:           0
   aget=0 mult=   2 last= 511 hits=2
   aget=0 chan= 3 samples= 512 min=  12 max=4095
   aget=0 chan=11 samples= 512 min= 230 max= 250 (FPN)
 [...]

`

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("lcio-dump: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("lcio", flag.ExitOnError)

		chans = fset.Bool("chans", false, "display per-channel summaries")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input LCIO file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, *chans)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, chans bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	err = xcnv.LCIO2Cobo(r, func(ev *cobo.Event) error {
		fmt.Fprintf(wbuf, "=== %v ===\n", ev)
		fmt.Fprintf(wbuf, "Read offset: % 10d\n", ev.ReadOffset)
		fmt.Fprintf(wbuf, "Status:      % 10d\n", ev.Status)
		fmt.Fprintf(wbuf, "Window out:  % 10d\n", ev.WindowOut)
		for aget := uint8(0); aget < cobo.NumAget; aget++ {
			if !ev.ContainsChip(aget) {
				continue
			}
			fmt.Fprintf(wbuf, "  aget=%d mult=%4d last=%4d hits=%d\n",
				aget, ev.Multiplicities[aget], ev.LastCells[aget],
				ev.HitPatterns[aget].Count(),
			)
		}

		if !chans {
			return nil
		}
		for _, ch := range ev.Channels() {
			fpn := ""
			if ch.IsFPN() {
				fpn = " (FPN)"
			}
			fmt.Fprintf(wbuf, "  aget=%d chan=%2d samples=%4d min=%4d max=%4d%s\n",
				ch.AgetIdx, ch.ChanIdx, ch.SampleCount(), ch.Min(), ch.Max(), fpn,
			)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not decode CoBo events: %w", err)
	}

	return nil
}
