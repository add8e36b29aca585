// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// mfm-pcap extracts MFM frames out of packet capture files.
//
// Usage: mfm-pcap [OPTIONS] FILE1.pcap [FILE2.pcap [...]]
//
// Example:
//
//	$> mfm-pcap -port=46001 -o ./out ./cobo.pcap
//	+-------------------------------+--------+---------+---------+---------+
//	|             FLOW              | FRAMES |  BYTES  | DROPPED | RESYNCS |
//	+-------------------------------+--------+---------+---------+---------+
//	| 10.0.0.1:46001->10.0.0.2:4000 |     12 |   49152 |       0 |       0 |
//	+-------------------------------+--------+---------+---------+---------+
//	packets: read=24, skipped=0
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/daq"
	"github.com/go-lpc/get/internal/capture"
	"github.com/go-lpc/get/internal/mfmio"
	"github.com/go-lpc/get/mfm"
	"github.com/olekukonko/tablewriter"
)

const usage = `mfm-pcap extracts MFM frames out of packet capture files.

Usage: mfm-pcap [OPTIONS] FILE1.pcap [FILE2.pcap [...]]

Example:

 $> mfm-pcap -port=46001 -o ./out ./cobo.pcap

Options:
`

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("mfm-pcap: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("mfm-pcap", flag.ExitOnError)

		port    = fset.Int("port", 0, "only consider packets from or to this port (0: all ports)")
		odir    = fset.String("o", "", "output directory for extracted frames (empty: no output)")
		prefix  = fset.String("prefix", "CoBo", "prefix of output file names")
		run     = fset.Uint("run", 0, "run number of output file names")
		zstd    = fset.Bool("zstd", false, "compress output files with zstd")
		formats = fset.String("f", "", "comma-separated list of frame format description files")
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
		log.Fatalf("missing path to input pcap file")
	}

	cfg := config{
		port:    *port,
		odir:    *odir,
		prefix:  *prefix,
		run:     uint32(*run),
		zstd:    *zstd,
		formats: *formats,
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, cfg)
		if err != nil {
			log.Fatalf("could not process %q: %+v", fname, err)
		}
	}
}

type config struct {
	port    int
	odir    string
	prefix  string
	run     uint32
	zstd    bool
	formats string
}

func process(w io.Writer, fname string, cfg config) error {
	dict := mfm.NewDictionary()
	err := cobo.LoadFormats(dict)
	if err != nil {
		return fmt.Errorf("could not load CoBo formats: %w", err)
	}
	if cfg.formats != "" {
		for _, name := range strings.Split(cfg.formats, ",") {
			err = dict.Load(name)
			if err != nil {
				return fmt.Errorf("could not load formats from %q: %w", name, err)
			}
		}
	}

	f, err := mfmio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open pcap file: %w", err)
	}
	defer f.Close()

	r, err := capture.NewReader(f,
		capture.WithDictionary(dict),
		capture.WithPort(cfg.port),
	)
	if err != nil {
		return fmt.Errorf("could not create pcap reader: %w", err)
	}

	emit := func(capture.Flow, *mfm.Frame) error { return nil }
	if cfg.odir != "" {
		err = os.MkdirAll(cfg.odir, 0755)
		if err != nil {
			return fmt.Errorf("could not create output directory: %w", err)
		}
		st := daq.NewStorage(
			daq.WithDir(cfg.odir),
			daq.WithPrefix(cfg.prefix),
			daq.WithRun(cfg.run),
			daq.WithCompression(cfg.zstd),
			daq.WithStorageDictionary(dict),
		)
		emit = func(_ capture.Flow, fr *mfm.Frame) error {
			return st.Store(fr)
		}
		defer func() {
			err := st.Close()
			if err != nil {
				log.Printf("could not close output files: %+v", err)
				return
			}
			for _, name := range st.Files() {
				log.Printf("created %q", name)
			}
		}()
	}

	err = r.Run(emit)
	if err != nil {
		return fmt.Errorf("could not extract frames: %w", err)
	}

	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Flow", "Frames", "Bytes", "Dropped", "Resyncs"})
	tbl.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, flow := range r.Flows() {
		stats := r.Stats(flow)
		tbl.Append([]string{
			flow.String(),
			strconv.FormatInt(stats.Frames, 10),
			strconv.FormatInt(stats.Bytes, 10),
			strconv.FormatInt(stats.Dropped, 10),
			strconv.FormatInt(stats.Resyncs, 10),
		})
	}
	tbl.Render()

	read, skipped := r.Packets()
	fmt.Fprintf(w, "packets: read=%d, skipped=%d\n", read, skipped)

	return nil
}
