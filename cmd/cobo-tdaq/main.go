// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cobo-tdaq starts a TDAQ server reassembling MFM frames out of
// raw CoBo data chunks.
//
// Raw chunks are read from the /raw input handle and reassembled frames
// are published on the /frames output handle.
//
// The command line belongs to TDAQ. cobo-tdaq is configured with the
// following environment variables:
//   - GET_ODIR: directory where frames are stored (no storage when empty),
//   - GET_FORMATS: comma-separated list of frame format description files,
//   - GET_ZSTD: compress stored frames with zstd when set to a true value.
package main // import "github.com/go-lpc/get/cmd/cobo-tdaq"

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/get/daq"
)

func main() {
	cmd := flags.New()

	name := "cobo-tdaq"
	if len(cmd.Args) > 0 {
		name = cmd.Args[0]
	}
	dev, err := newServer(name, os.Getenv)
	if err != nil {
		log.Fatalf("could not create server: %+v", err)
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.InputHandle("/raw", dev.Input)
	srv.OutputHandle("/frames", dev.Output)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func newServer(name string, getenv func(string) string) (*daq.Server, error) {
	var (
		odir    = getenv("GET_ODIR")
		formats []string
		zstd    bool
	)
	if v := getenv("GET_ZSTD"); v != "" {
		var err error
		zstd, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid GET_ZSTD value %q: %w", v, err)
		}
	}
	for _, fname := range strings.Split(getenv("GET_FORMATS"), ",") {
		fname = strings.TrimSpace(fname)
		if fname == "" {
			continue
		}
		formats = append(formats, fname)
	}
	return daq.NewServer(name, odir, formats, zstd), nil
}
