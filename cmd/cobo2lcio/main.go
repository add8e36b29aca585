// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cobo2lcio converts CoBo MFM frame files to an LCIO one.
package main // import "github.com/go-lpc/get/cmd/cobo2lcio"

import (
	"compress/flate"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/internal/mfmio"
	"github.com/go-lpc/get/internal/xcnv"
	"github.com/go-lpc/get/mfm"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "cobo2lcio: ", 0)
)

func main() {
	var (
		oname   = flag.String("o", "out.lcio", "path to output LCIO file")
		compr   = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		run     = flag.Int("run", 0, "run number of the output LCIO events")
		matrix  = flag.Bool("matrix", false, "inputs are float64 sample matrices, one event per file")
		formats = flag.String("f", "", "comma-separated list of frame format description files")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: cobo2lcio [OPTIONS] file1.mfm [file2.mfm [...]]

ex:
 $> cobo2lcio -o out.lcio -lvl=9 -run=42 ./CoBo_42_c0_a0_0.mfm
 $> cobo2lcio -o out.lcio -matrix ./evt0.dat ./evt1.dat

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		msg.Fatalf("missing input file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	cfg := config{
		lvl:     *compr,
		run:     int32(*run),
		matrix:  *matrix,
		formats: *formats,
	}
	err := process(*oname, cfg, flag.Args())
	if err != nil {
		msg.Fatalf("could not convert CoBo files: %+v", err)
	}
}

type config struct {
	lvl     int
	run     int32
	matrix  bool
	formats string
}

func process(oname string, cfg config, fnames []string) error {
	var (
		rs  []io.Reader
		dec *mfm.Decoder
	)
	for _, fname := range fnames {
		r, err := mfmio.Open(fname)
		if err != nil {
			return fmt.Errorf("could not open input file: %w", err)
		}
		defer r.Close()
		rs = append(rs, r)
	}

	if !cfg.matrix {
		dict := mfm.NewDictionary()
		err := cobo.LoadFormats(dict)
		if err != nil {
			return fmt.Errorf("could not load CoBo formats: %w", err)
		}
		if cfg.formats != "" {
			for _, fname := range strings.Split(cfg.formats, ",") {
				err = dict.Load(fname)
				if err != nil {
					return fmt.Errorf("could not load formats from %q: %w", fname, err)
				}
			}
		}
		dec = mfm.NewDecoder(io.MultiReader(rs...), dict)
	}

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(cfg.lvl)

	switch {
	case cfg.matrix:
		err = xcnv.Matrix2LCIO(w, rs, cfg.run, msg)
	default:
		err = xcnv.Cobo2LCIO(w, dec, cfg.run, msg)
	}
	if err != nil {
		return fmt.Errorf("could not convert CoBo data to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}
