// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"sync"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/get/cobo"
	"github.com/go-lpc/get/mfm"
	"golang.org/x/xerrors"
)

// Server is a TDAQ process reassembling MFM frames from raw data chunks.
//
// Raw chunks are received on an input handle. Reassembled frames are
// published on an output handle and, when an output directory is set,
// stored into frame files.
type Server struct {
	name    string
	odir    string
	formats []string // format description files.
	zstd    bool

	mu      sync.Mutex
	dict    *mfm.Dictionary
	bld     *mfm.Builder
	st      *Storage
	cnt     *Counter
	stats   builderStats
	run     uint32
	running bool

	frames chan []byte
}

// NewServer creates a new TDAQ server.
// Frames are stored under odir, when not empty. Formats are loaded from
// the CoBo formats and from the given format description files.
func NewServer(name, odir string, formats []string, compress bool) *Server {
	return &Server{
		name:    name,
		odir:    odir,
		formats: formats,
		zstd:    compress,
	}
}

// Counter returns the frame counter of the server, once initialized.
func (srv *Server) Counter() *Counter {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.cnt
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	dict := mfm.NewDictionary()
	err := cobo.LoadFormats(dict)
	if err != nil {
		ctx.Msg.Errorf("could not load CoBo formats: %+v", err)
		return xerrors.Errorf("could not load CoBo formats: %w", err)
	}
	for _, fname := range srv.formats {
		err = dict.Load(fname)
		if err != nil {
			ctx.Msg.Errorf("could not load formats from %q: %+v", fname, err)
			return xerrors.Errorf("could not load formats from %q: %w", fname, err)
		}
	}
	ctx.Msg.Infof("loaded %d frame formats", dict.Len())

	srv.mu.Lock()
	srv.dict = dict
	srv.mu.Unlock()
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dict == nil {
		return xerrors.Errorf("could not initialize %q: no frame formats", srv.name)
	}

	cnt, err := NewCounter(nil, "")
	if err != nil {
		return xerrors.Errorf("could not create frame counter: %w", err)
	}
	srv.cnt = cnt
	srv.stats = builderStats{cnt: cnt}
	srv.frames = make(chan []byte, 1024)
	srv.bld = mfm.NewBuilder(
		srv.emit,
		mfm.WithDictionary(srv.dict),
		mfm.WithMsgStream(ctx.Msg),
	)
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.bld != nil {
		srv.bld.Reset()
	}
	if srv.cnt != nil {
		srv.cnt.Reset()
	}
	if srv.frames != nil {
		srv.frames = make(chan []byte, 1024)
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.bld == nil {
		return xerrors.Errorf("could not start %q: not initialized", srv.name)
	}

	run := srv.run + 1
	switch n := len(req.Body); {
	case n == 0:
	case n < 4:
		return xerrors.Errorf("could not decode run number from %d bytes", n)
	default:
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		run = dec.ReadU32()
	}
	ctx.Msg.Debugf("received /start command... (run=%d)", run)

	srv.run = run
	srv.bld.Reset()
	if srv.odir != "" {
		srv.st = NewStorage(
			WithDir(srv.odir),
			WithRun(run),
			WithCompression(srv.zstd),
			WithStorageDictionary(srv.dict),
			WithStorageMsgStream(ctx.Msg),
		)
	}
	srv.running = true
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !srv.running {
		ctx.Msg.Debugf("received /stop command... (not running)")
		return nil
	}

	err := srv.bld.Flush()
	srv.stats.update(srv.bld.Stats())
	srv.running = false
	if err != nil {
		return xerrors.Errorf("could not flush frame builder: %w", err)
	}

	stats := srv.cnt.Stats()
	ctx.Msg.Debugf("received /stop command... -> frames=%d, bytes=%d, dropped=%d",
		stats.Frames, stats.Bytes, stats.Dropped,
	)

	if srv.st != nil {
		err = srv.st.Close()
		srv.st = nil
		if err != nil {
			return xerrors.Errorf("could not close frame storage: %w", err)
		}
	}
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

// Input feeds the raw data chunk of src to the frame builder.
func (srv *Server) Input(ctx tdaq.Context, src tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !srv.running {
		return nil
	}
	_, err := srv.bld.Write(src.Body)
	srv.stats.update(srv.bld.Stats())
	if err != nil {
		return xerrors.Errorf("could not process data chunk: %w", err)
	}
	return nil
}

// Output publishes the next reassembled frame.
func (srv *Server) Output(ctx tdaq.Context, dst *tdaq.Frame) error {
	srv.mu.Lock()
	frames := srv.frames
	srv.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
	case raw := <-frames:
		dst.Body = raw
	}
	return nil
}

// emit is called by the frame builder, with srv.mu held.
func (srv *Server) emit(fr *mfm.Frame) error {
	srv.cnt.Add(fr)
	if srv.st != nil {
		err := srv.st.Store(fr)
		if err != nil {
			return err
		}
	}
	select {
	case srv.frames <- fr.Bytes():
	default:
		// no consumer: drop the frame.
	}
	return nil
}
