// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"reflect"
	"strings"
	"testing"

	"golang.org/x/xerrors"
)

func TestLoadYAML(t *testing.T) {
	dict := loadTestDict(t)

	if got, want := dict.Len(), 4; got != want {
		t.Fatalf("invalid number of formats: got=%d, want=%d", got, want)
	}

	type desc struct {
		name   string
		typ    uint16
		rev    uint8
		kind   Kind
		big    bool
		blk    int
		header int
		item   int
	}

	var got []desc
	for _, f := range dict.Formats() {
		got = append(got, desc{
			name:   f.Name(),
			typ:    f.Type(),
			rev:    f.Revision(),
			kind:   f.Kind(),
			big:    f.BigEndian(),
			blk:    f.BlockSize(),
			header: f.HeaderSize(),
			item:   f.ItemSize(),
		})
	}
	want := []desc{
		{"TestBasic", typBasic, 1, Basic, true, 4, 40, 4},
		{"TestBasic", typBasic, 2, Basic, false, 4, 24, 2},
		{"TestLayered", typLayered, 1, Layered, true, 1, 24, 0},
		{"TestBlob", typBlob, 1, Blob, true, 4, 8, 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid formats:\ngot= %+v\nwant=%+v", got, want)
	}
}

func TestLoadTOML(t *testing.T) {
	dict := NewDictionary()
	err := dict.Load("testdata/formats.toml")
	if err != nil {
		t.Fatalf("could not load TOML formats: %+v", err)
	}

	if got, want := dict.Len(), 2; got != want {
		t.Fatalf("invalid number of formats: got=%d, want=%d", got, want)
	}

	f := findFormat(t, dict, 64, 3)
	if got, want := f.String(), "TestCounter (type=64, rev=3)"; got != want {
		t.Fatalf("invalid format: got=%q, want=%q", got, want)
	}
	if f.BigEndian() || f.Kind() != Basic || f.ItemSize() != 2 || f.HeaderSize() != 16 {
		t.Fatalf("invalid format layout: %v kind=%v big=%v item=%d header=%d",
			f, f.Kind(), f.BigEndian(), f.ItemSize(), f.HeaderSize(),
		)
	}
	fl, err := f.ItemField("count")
	if err != nil {
		t.Fatalf("could not find item field: %+v", err)
	}
	if got, want := fl.Size, 2; got != want {
		t.Fatalf("invalid item field size: got=%d, want=%d", got, want)
	}

	blob := findFormat(t, dict, typBlob, 1)
	if got, want := blob.Kind(), Blob; got != want {
		t.Fatalf("invalid kind: got=%v, want=%v", got, want)
	}
}

func TestDuplicateFormat(t *testing.T) {
	dict := loadTestDict(t)
	err := dict.Load("testdata/formats.toml")
	if !xerrors.Is(err, ErrDuplicateFormat) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, ErrDuplicateFormat)
	}

	f := findFormat(t, dict, typBlob, 1)
	if got, want := f.Name(), "TestBlob"; got != want {
		t.Fatalf("invalid format: got=%q, want=%q", got, want)
	}

	// the other formats of the rejected file are not registered either.
	if got, want := dict.Len(), 4; got != want {
		t.Fatalf("invalid number of formats: got=%d, want=%d", got, want)
	}
	_, err = dict.Find(64, 3)
	if !xerrors.Is(err, ErrFormatRevisionNotFound) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, ErrFormatRevisionNotFound)
	}
}

func TestAddFormatsAtomic(t *testing.T) {
	var (
		blob = RevisionDesc{
			Revision: 1,
			Header: []FieldDesc{
				{Name: "metaType", Offset: 0, Size: 1, BitFields: []BitFieldDesc{
					{Name: "ISLEND", Offset: 7, Width: 1, Value: u64(0)},
					{Name: "ISBLOB", Offset: 6, Width: 1, Value: u64(1)},
					{Name: "P2BLCK", Offset: 0, Width: 4, Value: u64(2)},
				}},
			},
		}
		invalid = RevisionDesc{Revision: 2}
	)

	for _, tc := range []struct {
		name  string
		descs []FrameDesc
		want  error
	}{
		{
			name: "invalid-revision",
			descs: []FrameDesc{
				{Name: "Good", Type: 100, Revisions: []RevisionDesc{blob}},
				{Name: "Bad", Type: 101, Revisions: []RevisionDesc{blob, invalid}},
			},
			want: ErrInvalidFormat,
		},
		{
			name: "duplicate-in-batch",
			descs: []FrameDesc{
				{Name: "First", Type: 100, Revisions: []RevisionDesc{blob}},
				{Name: "Second", Type: 100, Revisions: []RevisionDesc{blob}},
			},
			want: ErrDuplicateFormat,
		},
		{
			name: "duplicate-in-dict",
			descs: []FrameDesc{
				{Name: "New", Type: 100, Revisions: []RevisionDesc{blob}},
				{Name: "Old", Type: typBlob, Revisions: []RevisionDesc{blob}},
			},
			want: ErrDuplicateFormat,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dict := loadTestDict(t)
			err := dict.AddFormats(tc.descs)
			if !xerrors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%v", err, tc.want)
			}
			if got, want := dict.Len(), 4; got != want {
				t.Fatalf("partial registration: got=%d formats, want=%d", got, want)
			}
			if _, err := dict.Find(100, 1); err == nil {
				t.Fatalf("format (type=100, rev=1) should not be registered")
			}
		})
	}
}

func TestFormatLookups(t *testing.T) {
	dict := loadTestDict(t)
	f := findFormat(t, dict, typBasic, 1)

	fl, err := f.HeaderField("eventIdx")
	if err != nil {
		t.Fatalf("could not find eventIdx: %+v", err)
	}
	if fl.Offset != 16 || fl.Size != 4 {
		t.Fatalf("invalid eventIdx layout: %+v", fl)
	}

	name, err := f.HeaderFieldAt(20, 2)
	if err != nil {
		t.Fatalf("could not find field at (20, 2): %+v", err)
	}
	if got, want := name, "flags"; got != want {
		t.Fatalf("invalid field name: got=%q, want=%q", got, want)
	}

	name, err = f.ItemFieldAt(0, 4)
	if err != nil {
		t.Fatalf("could not find item field at (0, 4): %+v", err)
	}
	if name != "" {
		t.Fatalf("invalid item field name: got=%q, want=%q", name, "")
	}

	bf, err := f.HeaderBitField("flags", "hi")
	if err != nil {
		t.Fatalf("could not find flags.hi: %+v", err)
	}
	if got, want := bf, (BitFieldLayout{Name: "hi", Offset: 8, Width: 8}); got != want {
		t.Fatalf("invalid bit field: got=%+v, want=%+v", got, want)
	}

	bf, err = f.ItemBitField("", "chanIdx")
	if err != nil {
		t.Fatalf("could not find chanIdx: %+v", err)
	}
	if got, want := bf, (BitFieldLayout{Name: "chanIdx", Offset: 23, Width: 7}); got != want {
		t.Fatalf("invalid bit field: got=%+v, want=%+v", got, want)
	}

	flags, err := f.HeaderField("flags")
	if err != nil {
		t.Fatalf("could not find flags: %+v", err)
	}
	var names []string
	for _, bf := range flags.SortedBitFields() {
		names = append(names, bf.Name)
	}
	if got, want := names, []string{"hi", "neg", "lo"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid bit field order: got=%q, want=%q", got, want)
	}

	name, err = flags.BitFieldAt(4, 4)
	if err != nil || name != "neg" {
		t.Fatalf("invalid bit field at (4, 4): name=%q, err=%+v", name, err)
	}

	hdr := f.HeaderFields()
	if got, want := hdr[len(hdr)-1].Name, "wide"; got != want {
		t.Fatalf("invalid last header field: got=%q, want=%q", got, want)
	}

	for _, tc := range []struct {
		name string
		err  error
		want error
	}{
		{
			name: "header-field",
			err:  func() error { _, err := f.HeaderField("missing"); return err }(),
			want: ErrFieldNotFound,
		},
		{
			name: "item-field",
			err:  func() error { _, err := f.ItemField("missing"); return err }(),
			want: ErrFieldNotFound,
		},
		{
			name: "header-field-at",
			err:  func() error { _, err := f.HeaderFieldAt(17, 2); return err }(),
			want: ErrFieldNotFound,
		},
		{
			name: "bit-field",
			err:  func() error { _, err := f.HeaderBitField("flags", "missing"); return err }(),
			want: ErrBitFieldNotFound,
		},
		{
			name: "bit-field-at",
			err:  func() error { _, err := flags.BitFieldAt(1, 2); return err }(),
			want: ErrBitFieldNotFound,
		},
		{
			name: "revision",
			err:  func() error { _, err := dict.Find(typBasic, 9); return err }(),
			want: ErrFormatRevisionNotFound,
		},
		{
			name: "latest",
			err:  func() error { _, err := dict.FindLatest(99); return err }(),
			want: ErrFormatNotFound,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if !xerrors.Is(tc.err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%v", tc.err, tc.want)
			}
		})
	}

	latest, err := dict.FindLatest(typBasic)
	if err != nil {
		t.Fatalf("could not find latest revision: %+v", err)
	}
	if got, want := latest.Revision(), uint8(2); got != want {
		t.Fatalf("invalid latest revision: got=%d, want=%d", got, want)
	}
}

func metaDesc(blob, lend, p2 uint64) FieldDesc {
	return FieldDesc{
		Name: "metaType", Offset: 0, Size: 1,
		BitFields: []BitFieldDesc{
			{Name: "ISLEND", Offset: 7, Width: 1, Value: u64(lend)},
			{Name: "ISBLOB", Offset: 6, Width: 1, Value: u64(blob)},
			{Name: "P2BLCK", Offset: 0, Width: 4, Value: u64(p2)},
		},
	}
}

func TestInvalidFormat(t *testing.T) {
	var (
		hsize = FieldDesc{Name: "headerSize", Offset: 8, Size: 2, Value: u64(4)}
		isize = FieldDesc{Name: "itemSize", Offset: 10, Size: 2, Value: u64(2)}
	)
	for _, tc := range []struct {
		name string
		desc RevisionDesc
	}{
		{
			name: "no-meta",
			desc: RevisionDesc{Header: []FieldDesc{hsize, isize}},
		},
		{
			name: "no-block-size",
			desc: RevisionDesc{Header: []FieldDesc{
				{Name: "metaType", Offset: 0, Size: 1, BitFields: []BitFieldDesc{
					{Name: "ISLEND", Offset: 7, Width: 1, Value: u64(0)},
					{Name: "ISBLOB", Offset: 6, Width: 1, Value: u64(0)},
					{Name: "P2BLCK", Offset: 0, Width: 4},
				}},
				hsize, isize,
			}},
		},
		{
			name: "no-header-size",
			desc: RevisionDesc{Header: []FieldDesc{metaDesc(0, 0, 2), isize}},
		},
		{
			name: "small-header",
			desc: RevisionDesc{Header: []FieldDesc{
				metaDesc(0, 0, 2),
				{Name: "headerSize", Offset: 8, Size: 2, Value: u64(2)},
				isize,
			}},
		},
		{
			name: "misplaced-bootstrap-field",
			desc: RevisionDesc{Header: []FieldDesc{
				metaDesc(0, 0, 2),
				{Name: "headerSize", Offset: 9, Size: 2, Value: u64(4)},
				isize,
			}},
		},
		{
			name: "field-beyond-header",
			desc: RevisionDesc{Header: []FieldDesc{
				metaDesc(0, 0, 2), hsize, isize,
				{Name: "late", Offset: 14, Size: 4},
			}},
		},
		{
			name: "bit-field-beyond-field",
			desc: RevisionDesc{Header: []FieldDesc{
				metaDesc(0, 0, 2), hsize, isize,
				{Name: "flags", Offset: 4, Size: 1, BitFields: []BitFieldDesc{
					{Name: "b", Offset: 6, Width: 3},
				}},
			}},
		},
		{
			name: "duplicate-field",
			desc: RevisionDesc{Header: []FieldDesc{
				metaDesc(0, 0, 2), hsize, isize,
				{Name: "hsize", Offset: 8, Size: 2},
				{Name: "hsize", Offset: 10, Size: 2},
			}},
		},
		{
			name: "item-beyond-item",
			desc: RevisionDesc{
				Header: []FieldDesc{metaDesc(0, 0, 2), hsize, isize},
				Item:   []FieldDesc{{Name: "v", Offset: 1, Size: 2}},
			},
		},
		{
			name: "blob-with-items",
			desc: RevisionDesc{
				Header: []FieldDesc{metaDesc(1, 0, 2)},
				Item:   []FieldDesc{{Name: "v", Offset: 0, Size: 1}},
			},
		},
		{
			name: "blob-with-standard-header",
			desc: RevisionDesc{
				Header: []FieldDesc{metaDesc(1, 0, 2), isize},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFormat("Invalid", 1, tc.desc)
			if !xerrors.Is(err, ErrInvalidFormat) {
				t.Fatalf("invalid error: got=%+v, want=%v", err, ErrInvalidFormat)
			}
		})
	}
}

func TestDecodeSource(t *testing.T) {
	for _, tc := range []struct {
		name string
		ext  string
		src  string
	}{
		{
			name: "unknown-language",
			ext:  ".xml",
			src:  "<formats/>",
		},
		{
			name: "empty",
			ext:  ".yaml",
			src:  "formats: []\n",
		},
		{
			name: "bad-yaml",
			ext:  ".yml",
			src:  "formats: [\n",
		},
		{
			name: "bad-toml",
			ext:  ".toml",
			src:  "[[formats]\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeSource(strings.NewReader(tc.src), tc.ext)
			if !xerrors.Is(err, ErrInvalidFormat) {
				t.Fatalf("invalid error: got=%+v, want=%v", err, ErrInvalidFormat)
			}
		})
	}
}

func TestDictionaryList(t *testing.T) {
	dict := loadTestDict(t)

	o := new(strings.Builder)
	err := dict.List(o)
	if err != nil {
		t.Fatalf("could not list formats: %+v", err)
	}

	for _, want := range []string{
		"Name", "Revision", "TestBasic", "TestLayered", "TestBlob", "little", "layered",
	} {
		if !strings.Contains(o.String(), want) {
			t.Fatalf("missing %q in formats list:\n%s", want, o.String())
		}
	}
}
