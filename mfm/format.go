// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"fmt"
	"sort"

	"golang.org/x/xerrors"
)

// FrameDesc is the declarative description of all the revisions of a frame
// format.
type FrameDesc struct {
	Name      string         `json:"name" toml:"name"`
	Type      uint16         `json:"type" toml:"type"`
	Revisions []RevisionDesc `json:"revisions" toml:"revisions"`
}

// RevisionDesc describes one revision of a frame format.
type RevisionDesc struct {
	Revision uint8       `json:"revision" toml:"revision"`
	Header   []FieldDesc `json:"header" toml:"header"`
	Item     []FieldDesc `json:"item,omitempty" toml:"item"`
}

// FieldDesc describes a header or item field.
// Value, when set, is the default value written in newly created frames.
type FieldDesc struct {
	Name      string         `json:"name" toml:"name"`
	Offset    int            `json:"offset" toml:"offset"`
	Size      int            `json:"size" toml:"size"`
	Value     *uint64        `json:"value,omitempty" toml:"value"`
	BitFields []BitFieldDesc `json:"bitfields,omitempty" toml:"bitfields"`
}

// BitFieldDesc describes a bit field, with its offset counted from the least
// significant bit of its field.
type BitFieldDesc struct {
	Name   string  `json:"name" toml:"name"`
	Offset int     `json:"offset" toml:"offset"`
	Width  int     `json:"width" toml:"width"`
	Value  *uint64 `json:"value,omitempty" toml:"value"`
}

// BitFieldLayout locates a bit field inside its field.
type BitFieldLayout struct {
	Name   string
	Offset int // bit offset from the least significant bit of the field.
	Width  int // width in bits.
}

// FieldLayout locates a field inside a header or an item.
type FieldLayout struct {
	Name      string
	Offset    int // offset in bytes.
	Size      int // size in bytes.
	BitFields map[string]BitFieldLayout
}

// BitFieldAt returns the name of the bit field with the given offset and width.
func (fl FieldLayout) BitFieldAt(off, width int) (string, error) {
	for _, bf := range fl.BitFields {
		if bf.Offset == off && bf.Width == width {
			return bf.Name, nil
		}
	}
	return "", xerrors.Errorf(
		"mfm: could not find bit field with offset=%d and width=%d in field %q: %w",
		off, width, fl.Name, ErrBitFieldNotFound,
	)
}

// SortedBitFields returns the bit fields of fl, ordered by decreasing offset.
func (fl FieldLayout) SortedBitFields() []BitFieldLayout {
	o := make([]BitFieldLayout, 0, len(fl.BitFields))
	for _, bf := range fl.BitFields {
		o = append(o, bf)
	}
	sort.Slice(o, func(i, j int) bool {
		return o[i].Offset > o[j].Offset
	})
	return o
}

type fieldTable struct {
	names  map[string]*FieldLayout
	fields []*FieldLayout // sorted by offset.
}

func (tbl *fieldTable) add(fl FieldLayout) error {
	if tbl.names == nil {
		tbl.names = make(map[string]*FieldLayout)
	}
	if _, dup := tbl.names[fl.Name]; dup {
		return xerrors.Errorf("mfm: duplicate field %q: %w", fl.Name, ErrInvalidFormat)
	}
	ptr := &fl
	tbl.names[fl.Name] = ptr
	tbl.fields = append(tbl.fields, ptr)
	sort.SliceStable(tbl.fields, func(i, j int) bool {
		return tbl.fields[i].Offset < tbl.fields[j].Offset
	})
	return nil
}

func (tbl *fieldTable) byName(name string) (*FieldLayout, bool) {
	fl, ok := tbl.names[name]
	return fl, ok
}

func (tbl *fieldTable) at(off, size int) (*FieldLayout, bool) {
	for _, fl := range tbl.fields {
		if fl.Offset == off && fl.Size == size {
			return fl, true
		}
	}
	return nil, false
}

func (tbl *fieldTable) list() []FieldLayout {
	o := make([]FieldLayout, len(tbl.fields))
	for i, fl := range tbl.fields {
		o[i] = *fl
	}
	return o
}

type fieldDefault struct {
	field string
	bit   string // empty for whole-field values.
	value uint64
}

// Format is the parsed, immutable layout of one revision of a frame format.
type Format struct {
	name   string
	typ    uint16
	rev    uint8
	kind   Kind
	big    bool
	blk    int // block size, in bytes.
	hdrBlk int // header size, in blocks.
	item   int // item size, in bytes.

	hdr   fieldTable
	items fieldTable
	defs  []fieldDefault
}

// bootstrap describes the fixed primary and standard header layout.
var bootstrap = map[string]struct {
	off, size int
	standard  bool
}{
	"metaType":   {0, 1, false},
	"frameSize":  {1, 3, false},
	"dataSource": {4, 1, false},
	"frameType":  {5, 2, false},
	"revision":   {7, 1, false},
	"headerSize": {8, 2, true},
	"itemSize":   {10, 2, true},
	"nItems":     {12, 4, true},
}

// NewFormat creates the format of the given revision of frame (name, typ).
// The frame kind, endianness and block size are taken from the values of
// the ISBLOB, ISLEND and P2BLCK bit fields of the metaType header field;
// header and item sizes from the values of the headerSize and itemSize
// header fields.
func NewFormat(name string, typ uint16, desc RevisionDesc) (*Format, error) {
	f := &Format{
		name: name,
		typ:  typ,
		rev:  desc.Revision,
	}

	invalid := func(format string, args ...any) error {
		msg := fmt.Sprintf(format, args...)
		return xerrors.Errorf("mfm: format %q (type=%d, rev=%d): %s: %w",
			name, typ, desc.Revision, msg, ErrInvalidFormat,
		)
	}

	meta, ok := findDesc(desc.Header, "metaType")
	if !ok {
		return nil, invalid("missing metaType header field")
	}
	bitValue := func(fd FieldDesc, name string) (uint64, error) {
		for _, bf := range fd.BitFields {
			if bf.Name == name {
				if bf.Value == nil {
					return 0, invalid("missing value for %s.%s", fd.Name, name)
				}
				return *bf.Value, nil
			}
		}
		return 0, invalid("missing %s.%s", fd.Name, name)
	}
	isBlob, err := bitValue(meta, "ISBLOB")
	if err != nil {
		return nil, err
	}
	isLEnd, err := bitValue(meta, "ISLEND")
	if err != nil {
		return nil, err
	}
	p2blk, err := bitValue(meta, "P2BLCK")
	if err != nil {
		return nil, err
	}
	if p2blk > metaBlockMask {
		return nil, invalid("invalid block size exponent %d", p2blk)
	}
	f.big = isLEnd == 0
	f.blk = 1 << p2blk

	switch {
	case isBlob != 0:
		f.kind = Blob
	default:
		hsz, ok := findDesc(desc.Header, "headerSize")
		if !ok || hsz.Value == nil {
			return nil, invalid("missing headerSize value")
		}
		isz, ok := findDesc(desc.Header, "itemSize")
		if !ok || isz.Value == nil {
			return nil, invalid("missing itemSize value")
		}
		f.hdrBlk = int(*hsz.Value)
		f.item = int(*isz.Value)
		f.kind = Basic
		if f.item == 0 {
			f.kind = Layered
		}
		if f.HeaderSize() < StandardHeaderSize {
			return nil, invalid("header size %d smaller than %d bytes", f.HeaderSize(), StandardHeaderSize)
		}
	}

	for _, fd := range desc.Header {
		if want, ok := bootstrap[fd.Name]; ok {
			if fd.Offset != want.off || fd.Size != want.size {
				return nil, invalid(
					"header field %q at (offset=%d, size=%d), want (offset=%d, size=%d)",
					fd.Name, fd.Offset, fd.Size, want.off, want.size,
				)
			}
			if want.standard && f.kind == Blob {
				return nil, invalid("blob header can not hold field %q", fd.Name)
			}
		}
		fl, err := newLayout(fd, f.HeaderSize())
		if err != nil {
			return nil, invalid("%v", err)
		}
		err = f.hdr.add(fl)
		if err != nil {
			return nil, err
		}
		if _, ok := bootstrap[fd.Name]; ok {
			continue
		}
		if fd.Value != nil {
			f.defs = append(f.defs, fieldDefault{field: fd.Name, value: *fd.Value})
		}
		for _, bf := range fd.BitFields {
			if bf.Value != nil {
				f.defs = append(f.defs, fieldDefault{field: fd.Name, bit: bf.Name, value: *bf.Value})
			}
		}
	}

	if len(desc.Item) > 0 && f.kind != Basic {
		return nil, invalid("%s frames can not declare item fields", f.kind)
	}
	for _, fd := range desc.Item {
		fl, err := newLayout(fd, f.item)
		if err != nil {
			return nil, invalid("%v", err)
		}
		err = f.items.add(fl)
		if err != nil {
			return nil, err
		}
	}

	return f, nil
}

func findDesc(fields []FieldDesc, name string) (FieldDesc, bool) {
	for _, fd := range fields {
		if fd.Name == name {
			return fd, true
		}
	}
	return FieldDesc{}, false
}

func newLayout(fd FieldDesc, limit int) (FieldLayout, error) {
	if fd.Offset < 0 || fd.Size <= 0 || fd.Offset+fd.Size > limit {
		return FieldLayout{}, fmt.Errorf(
			"field %q (offset=%d, size=%d) beyond container of %d bytes",
			fd.Name, fd.Offset, fd.Size, limit,
		)
	}
	fl := FieldLayout{
		Name:      fd.Name,
		Offset:    fd.Offset,
		Size:      fd.Size,
		BitFields: make(map[string]BitFieldLayout, len(fd.BitFields)),
	}
	for _, bf := range fd.BitFields {
		if bf.Offset < 0 || bf.Width <= 0 || bf.Offset+bf.Width > 8*fd.Size {
			return FieldLayout{}, fmt.Errorf(
				"bit field %s.%s (offset=%d, width=%d) beyond field of %d bits",
				fd.Name, bf.Name, bf.Offset, bf.Width, 8*fd.Size,
			)
		}
		if _, dup := fl.BitFields[bf.Name]; dup {
			return FieldLayout{}, fmt.Errorf("duplicate bit field %s.%s", fd.Name, bf.Name)
		}
		fl.BitFields[bf.Name] = BitFieldLayout{
			Name:   bf.Name,
			Offset: bf.Offset,
			Width:  bf.Width,
		}
	}
	return fl, nil
}

func (f *Format) Name() string      { return f.name }
func (f *Format) Type() uint16      { return f.typ }
func (f *Format) Revision() uint8   { return f.rev }
func (f *Format) Kind() Kind        { return f.kind }
func (f *Format) BigEndian() bool   { return f.big }
func (f *Format) BlockSize() int    { return f.blk }
func (f *Format) HeaderBlocks() int { return f.hdrBlk }

// HeaderSize returns the size of the frame header, in bytes.
func (f *Format) HeaderSize() int {
	if f.kind == Blob {
		return PrimaryHeaderSize
	}
	return f.hdrBlk * f.blk
}

// ItemSize returns the item size in bytes, or 0 for self-sized items.
func (f *Format) ItemSize() int { return f.item }

func (f *Format) String() string {
	return fmt.Sprintf("%s (type=%d, rev=%d)", f.name, f.typ, f.rev)
}

// HeaderField returns the layout of the named header field.
func (f *Format) HeaderField(name string) (FieldLayout, error) {
	fl, ok := f.hdr.byName(name)
	if !ok {
		return FieldLayout{}, xerrors.Errorf(
			"mfm: could not find header field %q in format %v: %w",
			name, f, ErrFieldNotFound,
		)
	}
	return *fl, nil
}

// ItemField returns the layout of the named item field.
func (f *Format) ItemField(name string) (FieldLayout, error) {
	fl, ok := f.items.byName(name)
	if !ok {
		return FieldLayout{}, xerrors.Errorf(
			"mfm: could not find item field %q in format %v: %w",
			name, f, ErrFieldNotFound,
		)
	}
	return *fl, nil
}

// HeaderBitField returns the layout of the named bit field of a header field.
func (f *Format) HeaderBitField(field, bit string) (BitFieldLayout, error) {
	fl, err := f.HeaderField(field)
	if err != nil {
		return BitFieldLayout{}, err
	}
	return bitLayout(f, fl, bit)
}

// ItemBitField returns the layout of the named bit field of an item field.
func (f *Format) ItemBitField(field, bit string) (BitFieldLayout, error) {
	fl, err := f.ItemField(field)
	if err != nil {
		return BitFieldLayout{}, err
	}
	return bitLayout(f, fl, bit)
}

func bitLayout(f *Format, fl FieldLayout, bit string) (BitFieldLayout, error) {
	bf, ok := fl.BitFields[bit]
	if !ok {
		return BitFieldLayout{}, xerrors.Errorf(
			"mfm: could not find bit field %q of field %q in format %v: %w",
			bit, fl.Name, f, ErrBitFieldNotFound,
		)
	}
	return bf, nil
}

// HeaderFieldAt returns the name of the header field at (off, size).
func (f *Format) HeaderFieldAt(off, size int) (string, error) {
	fl, ok := f.hdr.at(off, size)
	if !ok {
		return "", xerrors.Errorf(
			"mfm: could not find header field with offset=%d and size=%d in format %v: %w",
			off, size, f, ErrFieldNotFound,
		)
	}
	return fl.Name, nil
}

// ItemFieldAt returns the name of the item field at (off, size).
func (f *Format) ItemFieldAt(off, size int) (string, error) {
	fl, ok := f.items.at(off, size)
	if !ok {
		return "", xerrors.Errorf(
			"mfm: could not find item field with offset=%d and size=%d in format %v: %w",
			off, size, f, ErrFieldNotFound,
		)
	}
	return fl.Name, nil
}

// HeaderFields returns the header fields, sorted by offset.
func (f *Format) HeaderFields() []FieldLayout { return f.hdr.list() }

// ItemFields returns the item fields, sorted by offset.
func (f *Format) ItemFields() []FieldLayout { return f.items.list() }
