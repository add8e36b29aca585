// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// mfm-dump decodes and displays MFM frame files.
//
// Usage: mfm-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> mfm-dump -items=2 ./testdata/CoBo_1_c0_a0_0.mfm
//	=== frame 0 ===
//	frame: type=1 rev=4 kind=basic endian=big source=0
//	  size=192 B block=64 B header=128 B items=16 x 4 B
//	  format: CoBo (type=1, rev=4)
//	  header:
//	    metaType     0x06 (6) [ISLEND=0 ISBLOB=0 P2BLCK=6]
//	[...]
//	  items:
//	    [   0] agetIdx=0 chanIdx=3 buckIdx=0 sample=0
//	    [   1] agetIdx=0 chanIdx=3 buckIdx=1 sample=10
//	    [...] (14 more items)
//
//	$> mfm-dump -formats
package main // import "github.com/go-lpc/get/cmd/mfm-dump"

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/internal/dump"
	"github.com/go-lpc/get/internal/mfmio"
	"github.com/go-lpc/get/mfm"
)

const usage = `mfm-dump decodes and displays MFM frame files.

Usage: mfm-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> mfm-dump -items=2 ./testdata/CoBo_1_c0_a0_0.mfm
 $> mfm-dump -cobo -n=10 ./testdata/CoBo_1_c0_a0_0.mfm.zst
 $> mfm-dump -f=./formats.toml -formats

Options:
`

type config struct {
	frames int  // number of frames to display per file
	cobo   bool // decode CoBo data frames
	opts   dump.Options
}

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("mfm-dump: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("mfm-dump", flag.ExitOnError)

		formats = fset.String("f", "", "comma-separated list of frame format description files")
		list    = fset.Bool("formats", false, "list the known frame formats")
		nframes = fset.Int("n", -1, "maximum number of frames to display per file (-1: all)")
		nitems  = fset.Int("items", 10, "maximum number of items to display per frame (-1: all)")
		hex     = fset.Bool("hex", false, "display a hexadecimal dump of frames")
		evts    = fset.Bool("cobo", false, "decode CoBo data frames into events")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	dict, err := loadDict(*formats)
	if err != nil {
		log.Fatalf("could not load frame formats: %+v", err)
	}

	if *list {
		err = dict.List(w)
		if err != nil {
			log.Fatalf("could not list frame formats: %+v", err)
		}
		if fset.NArg() == 0 {
			return
		}
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input MFM file")
	}

	cfg := config{
		frames: *nframes,
		cobo:   *evts,
		opts: dump.Options{
			Items: *nitems,
			Hex:   *hex,
		},
	}
	for _, fname := range fset.Args() {
		err := process(w, fname, dict, cfg)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func loadDict(formats string) (*mfm.Dictionary, error) {
	dict := mfm.NewDictionary()
	err := cobo.LoadFormats(dict)
	if err != nil {
		return nil, fmt.Errorf("could not load CoBo formats: %w", err)
	}
	if formats == "" {
		return dict, nil
	}
	for _, fname := range strings.Split(formats, ",") {
		err = dict.Load(fname)
		if err != nil {
			return nil, fmt.Errorf("could not load formats from %q: %w", fname, err)
		}
	}
	return dict, nil
}

func process(w io.Writer, fname string, dict *mfm.Dictionary, cfg config) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	r, err := mfmio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer r.Close()

	var (
		dec = mfm.NewDecoder(r, dict)
		ev  = cobo.NewEvent()
	)
	for i := 0; cfg.frames < 0 || i < cfg.frames; i++ {
		var fr mfm.Frame
		err := dec.Decode(&fr)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("could not decode frame %d: %w", i, err)
		}

		fmt.Fprintf(wbuf, "=== frame %d ===\n", i)
		err = dump.Frame(wbuf, &fr, cfg.opts)
		if err != nil {
			return fmt.Errorf("could not dump frame %d: %w", i, err)
		}

		if !cfg.cobo {
			continue
		}
		switch fr.Header().Type {
		case cobo.FullFrame, cobo.CompactFrame:
		default:
			continue
		}
		err = ev.Decode(&fr)
		if err != nil {
			return fmt.Errorf("could not decode CoBo frame %d: %w", i, err)
		}
		dumpEvent(wbuf, ev)
	}

	err = wbuf.Flush()
	if err != nil {
		return fmt.Errorf("could not flush output: %w", err)
	}
	return nil
}

func dumpEvent(w io.Writer, ev *cobo.Event) {
	fmt.Fprintf(w, "%v\n", ev)
	fmt.Fprintf(w, "  status=%d read-offset=%d window-out=%d\n", ev.Status, ev.ReadOffset, ev.WindowOut)
	for i := 0; i < cobo.NumAget; i++ {
		fmt.Fprintf(w, "  aget=%d multiplicity=%d last-cell=%d hit-pattern=%v\n",
			i, ev.Multiplicities[i], ev.LastCells[i], ev.HitPatterns[i],
		)
	}
	for _, ch := range ev.Channels() {
		fpn := ""
		if ch.IsFPN() {
			fpn = " (FPN)"
		}
		fmt.Fprintf(w, "  aget=%d chan=%2d samples=%3d min=%4d max=%4d mean=%7.1f%s\n",
			ch.AgetIdx, ch.ChanIdx, ch.SampleCount(), ch.Min(), ch.Max(), ch.Mean(), fpn,
		)
	}
}
