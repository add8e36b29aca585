// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mfm-split splits MFM frame files into one set of files per
// emitter (CoBo/AsAd board).
package main // import "github.com/go-lpc/get/cmd/mfm-split"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/daq"
	"github.com/go-lpc/get/internal/mfmio"
	"github.com/go-lpc/get/mfm"
)

var (
	msg = log.New(os.Stdout, "mfm-split: ", 0)
)

func main() {
	xmain(os.Args[1:])
}

type config struct {
	odir    string
	prefix  string
	run     uint32
	max     int64
	zstd    bool
	formats string
}

func xmain(args []string) {
	var (
		fset = flag.NewFlagSet("mfm-split", flag.ExitOnError)

		odir    = fset.String("o", ".", "output directory")
		prefix  = fset.String("prefix", "CoBo", "prefix of output file names")
		run     = fset.Uint("run", 0, "run number of output file names")
		max     = fset.Int64("max", daq.DefaultMaxFileSize, "maximum size in bytes of output files")
		zstd    = fset.Bool("zstd", false, "compress output files with zstd")
		formats = fset.String("f", "", "comma-separated list of frame format description files")
	)

	fset.Usage = func() {
		fmt.Printf(`Usage: mfm-split [OPTIONS] file1.mfm [file2.mfm [...]]

ex:
 $> mfm-split -o ./out -run=42 ./run_0042.mfm
 mfm-split: split 1200 frames into 4 files

options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		msg.Fatalf("missing input MFM file")
	}

	if *odir == "" {
		fset.Usage()
		msg.Fatalf("invalid output directory")
	}

	cfg := config{
		odir:    *odir,
		prefix:  *prefix,
		run:     uint32(*run),
		max:     *max,
		zstd:    *zstd,
		formats: *formats,
	}
	files, err := process(cfg, fset.Args())
	if err != nil {
		msg.Fatalf("could not split MFM files: %+v", err)
	}
	for _, fname := range files {
		msg.Printf("created %q", fname)
	}
}

func process(cfg config, fnames []string) ([]string, error) {
	dict := mfm.NewDictionary()
	err := cobo.LoadFormats(dict)
	if err != nil {
		return nil, fmt.Errorf("could not load CoBo formats: %w", err)
	}
	if cfg.formats != "" {
		for _, fname := range strings.Split(cfg.formats, ",") {
			err = dict.Load(fname)
			if err != nil {
				return nil, fmt.Errorf("could not load formats from %q: %w", fname, err)
			}
		}
	}

	err = os.MkdirAll(cfg.odir, 0755)
	if err != nil {
		return nil, fmt.Errorf("could not create output directory: %w", err)
	}

	st := daq.NewStorage(
		daq.WithDir(cfg.odir),
		daq.WithPrefix(cfg.prefix),
		daq.WithRun(cfg.run),
		daq.WithMaxFileSize(cfg.max),
		daq.WithCompression(cfg.zstd),
	)
	defer st.Close()

	n := 0
	for _, fname := range fnames {
		nn, err := split(st, dict, fname)
		n += nn
		if err != nil {
			return nil, fmt.Errorf("could not split %q: %w", fname, err)
		}
	}

	err = st.Close()
	if err != nil {
		return nil, fmt.Errorf("could not close output files: %w", err)
	}

	files := st.Files()
	msg.Printf("split %d frames into %d files", n, len(files))
	return files, nil
}

func split(st *daq.Storage, dict *mfm.Dictionary, fname string) (int, error) {
	r, err := mfmio.Open(fname)
	if err != nil {
		return 0, fmt.Errorf("could not open MFM file: %w", err)
	}
	defer r.Close()

	dec := mfm.NewDecoder(r, dict)
	for i := 0; ; i++ {
		var fr mfm.Frame
		err := dec.Decode(&fr)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return i, nil
			}
			return i, fmt.Errorf("could not decode frame %d: %w", i, err)
		}

		err = st.Store(&fr)
		if err != nil {
			return i, fmt.Errorf("could not store frame %d: %w", i, err)
		}
	}
}
