// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/xerrors"
)

// Default is the process-wide dictionary of frame formats.
// It should be populated before any concurrent decoding starts.
var Default = NewDictionary()

type formatKey struct {
	typ uint16
	rev uint8
}

// Dictionary is a registry of frame formats, keyed by (frame type, revision).
// Dictionary is safe for concurrent use.
type Dictionary struct {
	mu   sync.RWMutex
	fmts map[formatKey]*Format
}

// NewDictionary returns a new empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{
		fmts: make(map[formatKey]*Format),
	}
}

// AddFormat registers f.
// Registering a (type, revision) pair twice fails with ErrDuplicateFormat and
// leaves the first format in place.
func (dict *Dictionary) AddFormat(f *Format) error {
	key := formatKey{f.Type(), f.Revision()}

	dict.mu.Lock()
	defer dict.mu.Unlock()

	if old, dup := dict.fmts[key]; dup {
		return errDuplicate(f, old)
	}
	dict.fmts[key] = f
	return nil
}

// AddFormats creates and registers all the revisions of the described frames.
// AddFormats registers nothing when one of the revisions is invalid or
// already registered.
func (dict *Dictionary) AddFormats(descs []FrameDesc) error {
	var fmts []*Format
	for _, desc := range descs {
		for _, rev := range desc.Revisions {
			f, err := NewFormat(desc.Name, desc.Type, rev)
			if err != nil {
				return err
			}
			fmts = append(fmts, f)
		}
	}

	dict.mu.Lock()
	defer dict.mu.Unlock()

	batch := make(map[formatKey]*Format, len(fmts))
	for _, f := range fmts {
		key := formatKey{f.Type(), f.Revision()}
		old, dup := dict.fmts[key]
		if !dup {
			old, dup = batch[key]
		}
		if dup {
			return errDuplicate(f, old)
		}
		batch[key] = f
	}
	for key, f := range batch {
		dict.fmts[key] = f
	}
	return nil
}

func errDuplicate(f, old *Format) error {
	return xerrors.Errorf(
		"mfm: could not add format %v: already registered as %q: %w",
		f, old.Name(), ErrDuplicateFormat,
	)
}

// Find returns the format registered for (typ, rev).
func (dict *Dictionary) Find(typ uint16, rev uint8) (*Format, error) {
	dict.mu.RLock()
	defer dict.mu.RUnlock()

	f, ok := dict.fmts[formatKey{typ, rev}]
	if !ok {
		return nil, xerrors.Errorf(
			"mfm: could not find format (type=%d, rev=%d): %w",
			typ, rev, ErrFormatRevisionNotFound,
		)
	}
	return f, nil
}

// FindLatest returns the format with the highest revision registered for typ.
func (dict *Dictionary) FindLatest(typ uint16) (*Format, error) {
	dict.mu.RLock()
	defer dict.mu.RUnlock()

	var latest *Format
	for key, f := range dict.fmts {
		if key.typ != typ {
			continue
		}
		if latest == nil || key.rev > latest.Revision() {
			latest = f
		}
	}
	if latest == nil {
		return nil, xerrors.Errorf(
			"mfm: could not find any format revision for type=%d: %w",
			typ, ErrFormatNotFound,
		)
	}
	return latest, nil
}

// Len returns the number of registered formats.
func (dict *Dictionary) Len() int {
	dict.mu.RLock()
	defer dict.mu.RUnlock()
	return len(dict.fmts)
}

// Formats returns all registered formats, sorted by type and revision.
func (dict *Dictionary) Formats() []*Format {
	dict.mu.RLock()
	o := make([]*Format, 0, len(dict.fmts))
	for _, f := range dict.fmts {
		o = append(o, f)
	}
	dict.mu.RUnlock()

	sort.Slice(o, func(i, j int) bool {
		if o[i].Type() != o[j].Type() {
			return o[i].Type() < o[j].Type()
		}
		return o[i].Revision() < o[j].Revision()
	})
	return o
}

// List writes a table of the registered formats to w.
func (dict *Dictionary) List(w io.Writer) error {
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Name", "Type", "Revision", "Kind", "Endianness", "Block", "Header", "Item"})
	tbl.SetAutoFormatHeaders(false)
	for _, f := range dict.Formats() {
		endian := "big"
		if !f.BigEndian() {
			endian = "little"
		}
		tbl.Append([]string{
			f.Name(),
			strconv.Itoa(int(f.Type())),
			strconv.Itoa(int(f.Revision())),
			f.Kind().String(),
			endian,
			fmt.Sprintf("%d B", f.BlockSize()),
			fmt.Sprintf("%d B", f.HeaderSize()),
			fmt.Sprintf("%d B", f.ItemSize()),
		})
	}
	tbl.Render()
	return nil
}
