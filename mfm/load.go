// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
	"sigs.k8s.io/yaml"
)

// Source is the top-level layout of a format description file.
//
// A YAML source looks like:
//
//	formats:
//	  - name: CoBo
//	    type: 1
//	    revisions:
//	      - revision: 4
//	        header:
//	          - name: metaType
//	            offset: 0
//	            size: 1
//	            bitfields:
//	              - {name: ISLEND, offset: 7, width: 1, value: 0}
//	              - {name: ISBLOB, offset: 6, width: 1, value: 0}
//	              - {name: P2BLCK, offset: 0, width: 4, value: 6}
//	          - {name: headerSize, offset: 8, size: 2, value: 2}
//	          - {name: itemSize, offset: 10, size: 2, value: 4}
//	        item:
//	          - name: ""
//	            offset: 0
//	            size: 4
//	            bitfields:
//	              - {name: sample, offset: 0, width: 12}
type Source struct {
	Formats []FrameDesc `json:"formats" toml:"formats"`
}

// Load registers the formats described in the named file.
// The description language is selected from the file extension:
// .yaml, .yml and .json for YAML (or JSON), .toml for TOML.
func (dict *Dictionary) Load(fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return xerrors.Errorf("mfm: could not open format source: %w", err)
	}
	defer f.Close()

	err = dict.Decode(f, filepath.Ext(fname))
	if err != nil {
		return xerrors.Errorf("mfm: could not load formats from %q: %w", fname, err)
	}
	return nil
}

// Decode registers the formats described in r, written in the description
// language associated with the ext file extension.
func (dict *Dictionary) Decode(r io.Reader, ext string) error {
	descs, err := DecodeSource(r, ext)
	if err != nil {
		return err
	}
	return dict.AddFormats(descs)
}

// DecodeSource decodes the frame descriptions from r.
func DecodeSource(r io.Reader, ext string) ([]FrameDesc, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Errorf("mfm: could not read format source: %w", err)
	}

	var src Source
	switch strings.ToLower(ext) {
	case ".yaml", ".yml", ".json":
		err = yaml.Unmarshal(raw, &src)
		if err != nil {
			return nil, xerrors.Errorf("mfm: could not decode YAML format source: %v: %w", err, ErrInvalidFormat)
		}
	case ".toml":
		_, err = toml.NewDecoder(bytes.NewReader(raw)).Decode(&src)
		if err != nil {
			return nil, xerrors.Errorf("mfm: could not decode TOML format source: %v: %w", err, ErrInvalidFormat)
		}
	default:
		return nil, xerrors.Errorf("mfm: unknown format source language %q: %w", ext, ErrInvalidFormat)
	}

	if len(src.Formats) == 0 {
		return nil, xerrors.Errorf("mfm: format source without any format: %w", ErrInvalidFormat)
	}
	return src.Formats, nil
}
