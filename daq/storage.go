// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/get/mfm"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/xerrors"
)

// DefaultMaxFileSize is the default size, in bytes, above which a new
// frame file is started.
const DefaultMaxFileSize = 1 << 30

// Storage writes frames into files, one sequence of files per emitter.
//
// Files are named <prefix>_<run>_c<cobo>_a<asad>_<seq>.mfm, with a .zst
// suffix when compressed. Frames without CoBo and AsAd indices are grouped
// by data source, in <prefix>_<run>_s<source>_<seq>.mfm files.
// A new file is started when the current one is larger than the maximum
// file size, or when the event counter of the emitter goes backward.
type Storage struct {
	mu sync.Mutex

	dir    string
	prefix string
	run    uint32
	max    int64
	zstd   bool
	msg    log.MsgStream
	dict   *mfm.Dictionary

	bld   *mfm.Builder
	files map[SourceID]*storageFile
	names []string
}

type storageFile struct {
	seq  int
	prev int64 // previous event index.

	f    *os.File
	zw   *zstd.Encoder
	w    io.Writer
	size int64
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithDir sets the output directory of frame files.
func WithDir(dir string) StorageOption {
	return func(st *Storage) { st.dir = dir }
}

// WithPrefix sets the prefix of frame file names.
func WithPrefix(prefix string) StorageOption {
	return func(st *Storage) { st.prefix = prefix }
}

// WithRun sets the run number recorded in frame file names.
func WithRun(run uint32) StorageOption {
	return func(st *Storage) { st.run = run }
}

// WithMaxFileSize sets the size in bytes above which a new file is started.
func WithMaxFileSize(n int64) StorageOption {
	return func(st *Storage) { st.max = n }
}

// WithCompression enables zstd compression of frame files.
func WithCompression(v bool) StorageOption {
	return func(st *Storage) { st.zstd = v }
}

// WithStorageDictionary sets the dictionary used to resolve frame formats
// of frames reassembled from raw data.
func WithStorageDictionary(dict *mfm.Dictionary) StorageOption {
	return func(st *Storage) { st.dict = dict }
}

// WithStorageMsgStream sets the message stream of the storage.
func WithStorageMsgStream(msg log.MsgStream) StorageOption {
	return func(st *Storage) { st.msg = msg }
}

// NewStorage creates a new frame storage.
func NewStorage(opts ...StorageOption) *Storage {
	st := &Storage{
		dir:    ".",
		prefix: "CoBo",
		max:    DefaultMaxFileSize,
		msg:    log.NewMsgStream("storage", log.LvlInfo, io.Discard),
		files:  make(map[SourceID]*storageFile),
	}
	for _, opt := range opts {
		opt(st)
	}
	st.bld = mfm.NewBuilder(
		st.store,
		mfm.WithDictionary(st.dict),
		mfm.WithMsgStream(st.msg),
	)
	return st
}

// Write reassembles frames from the raw bytes in p and stores them.
func (st *Storage) Write(p []byte) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bld.Write(p)
}

// Reset discards the bytes of a partially received frame.
func (st *Storage) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.bld.Reset()
}

// Store writes the frame into the file of its emitter.
func (st *Storage) Store(fr *mfm.Frame) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.store(fr)
}

func (st *Storage) store(fr *mfm.Frame) error {
	id, evt := sourceOf(fr)
	st.msg.Debugf("storing %v frame for event %d (%d B)", id, evt, fr.Len())

	file, err := st.file(id, evt)
	if err != nil {
		return xerrors.Errorf("daq: could not open file for %v: %w", id, err)
	}

	_, err = fr.WriteTo(file.w)
	if err != nil {
		st.msg.Errorf("error writing frame to file!")
		_ = st.closeFile(id)
		return xerrors.Errorf("daq: could not write frame for %v: %w", id, err)
	}
	file.size += int64(fr.Len())

	if file.size > st.max {
		err = st.closeFile(id)
		if err != nil {
			return xerrors.Errorf("daq: could not close file for %v: %w", id, err)
		}
	}
	return nil
}

// file returns the opened file for the emitter, creating a new one if
// needed.
func (st *Storage) file(id SourceID, evt int64) (*storageFile, error) {
	file, ok := st.files[id]
	if !ok {
		file = &storageFile{prev: -1}
		st.files[id] = file
	}

	if file.f != nil && evt >= 0 && evt < file.prev {
		st.msg.Infof("event counter of %v reset (%d -> %d)", id, file.prev, evt)
		err := st.closeFile(id)
		if err != nil {
			return nil, err
		}
	}
	if evt >= 0 {
		file.prev = evt
	}

	if file.f != nil {
		return file, nil
	}

	name := filepath.Join(st.dir, st.fname(id, file.seq))
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	st.msg.Infof("creating frame file %q", name)

	file.seq++
	file.f = f
	file.w = f
	file.size = 0
	if st.zstd {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		file.zw = zw
		file.w = zw
	}
	st.names = append(st.names, name)
	return file, nil
}

func (st *Storage) fname(id SourceID, seq int) string {
	name := fmt.Sprintf("%s_%d_%v_%d.mfm", st.prefix, st.run, id, seq)
	if st.zstd {
		name += ".zst"
	}
	return name
}

func (st *Storage) closeFile(id SourceID) error {
	file, ok := st.files[id]
	if !ok || file.f == nil {
		return nil
	}
	f := file.f
	file.f = nil
	file.w = nil

	if file.zw != nil {
		err := file.zw.Close()
		file.zw = nil
		if err != nil {
			_ = f.Close()
			return xerrors.Errorf("daq: could not close zstd stream: %w", err)
		}
	}

	err := f.Sync()
	if err != nil {
		_ = f.Close()
		return xerrors.Errorf("daq: could not sync file %q: %w", f.Name(), err)
	}
	return f.Close()
}

// Files returns the names of all the files created so far.
func (st *Storage) Files() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	o := append([]string(nil), st.names...)
	sort.Strings(o)
	return o
}

// Close flushes pending frames and closes all files.
func (st *Storage) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	ferr := st.bld.Flush()

	ids := make([]SourceID, 0, len(st.files))
	for id := range st.files {
		ids = append(ids, id)
	}
	var err error
	for _, id := range ids {
		e := st.closeFile(id)
		if e != nil && err == nil {
			err = e
		}
	}
	if ferr != nil {
		return xerrors.Errorf("daq: could not flush frame builder: %w", ferr)
	}
	return err
}
