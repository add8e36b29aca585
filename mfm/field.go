// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"math/big"

	"golang.org/x/exp/constraints"
	"golang.org/x/xerrors"
)

// Accessor is the integer interface shared by Field and BitField.
type Accessor interface {
	// Bits returns the width of the accessor, in bits.
	Bits() int
	Uint64() (uint64, error)
	SetUint64(v uint64) error
}

// Value reads the accessor as an integer of type T.
// Signed types are sign-extended from the accessor width.
func Value[T constraints.Integer](a Accessor) (T, error) {
	var zero T
	raw, err := a.Uint64()
	if err != nil {
		return zero, err
	}
	if ^zero < 0 {
		return T(signExtend(raw, a.Bits())), nil
	}
	return T(raw), nil
}

// SetValue writes v into the accessor, truncated to its width.
// Signed values are stored in two's complement.
func SetValue[T constraints.Integer](a Accessor, v T) error {
	return a.SetUint64(uint64(v))
}

// Field is a view on a byte range of a frame.
// A Field does not own any byte: it reads and writes the frame buffer
// at the time of use.
type Field struct {
	f    *Frame
	off  int // offset from the start of the frame, in bytes.
	size int // size in bytes.

	layout *FieldLayout
}

// Name returns the name of the field, or the empty string for fields
// accessed by position.
func (fd Field) Name() string {
	if fd.layout == nil {
		return ""
	}
	return fd.layout.Name
}

// Offset returns the offset of the field from the start of its frame.
func (fd Field) Offset() int { return fd.off }

// Size returns the size of the field, in bytes.
func (fd Field) Size() int { return fd.size }

// Bits returns the size of the field, in bits.
func (fd Field) Bits() int { return 8 * fd.size }

// Bytes returns the bytes of the field.
// The returned slice aliases the frame buffer.
func (fd Field) Bytes() ([]byte, error) {
	return fd.raw()
}

func (fd Field) raw() ([]byte, error) {
	if fd.f == nil {
		return nil, xerrors.Errorf("mfm: field without frame: %w", ErrInvalidFrame)
	}
	end := fd.off + fd.size
	if fd.off < 0 || fd.size < 0 || end > len(fd.f.buf) {
		return nil, xerrors.Errorf(
			"mfm: field (offset=%d, size=%d) beyond frame (size=%d): %w",
			fd.off, fd.size, len(fd.f.buf), ErrOutOfRange,
		)
	}
	return fd.f.buf[fd.off:end], nil
}

func (fd Field) bigEndian() bool { return fd.f.hdr.BigEndian }

// Uint64 returns the field value as an unsigned integer.
func (fd Field) Uint64() (uint64, error) {
	p, err := fd.raw()
	if err != nil {
		return 0, err
	}
	if len(p) > 8 {
		return 0, xerrors.Errorf(
			"mfm: field %q (size=%d) does not fit a 64-bit integer: %w",
			fd.Name(), fd.size, ErrOutOfRange,
		)
	}
	return getUint(p, fd.bigEndian()), nil
}

// Int64 returns the field value as a sign-extended integer.
func (fd Field) Int64() (int64, error) {
	v, err := fd.Uint64()
	if err != nil {
		return 0, err
	}
	return signExtend(v, fd.Bits()), nil
}

// SetUint64 writes the least significant bytes of v into the field.
func (fd Field) SetUint64(v uint64) error {
	p, err := fd.raw()
	if err != nil {
		return err
	}
	if len(p) > 8 {
		return xerrors.Errorf(
			"mfm: field %q (size=%d) does not fit a 64-bit integer: %w",
			fd.Name(), fd.size, ErrOutOfRange,
		)
	}
	putUint(p, fd.bigEndian(), v)
	return nil
}

// SetInt64 writes the two's complement representation of v into the field.
func (fd Field) SetInt64(v int64) error {
	return fd.SetUint64(uint64(v))
}

// Bitset returns the field value as a bitset of 8*Size() bits.
func (fd Field) Bitset() (*Bitset, error) {
	p, err := fd.raw()
	if err != nil {
		return nil, err
	}
	bs := NewBitset(fd.Bits())
	bs.SetInt(getBig(p, fd.bigEndian()))
	return bs, nil
}

// SetBitset writes bs into the field.
// The bitset must be exactly as wide as the field.
func (fd Field) SetBitset(bs *Bitset) error {
	p, err := fd.raw()
	if err != nil {
		return err
	}
	if bs.Len() != fd.Bits() {
		return xerrors.Errorf(
			"mfm: bitset of %d bits does not match field %q of %d bits: %w",
			bs.Len(), fd.Name(), fd.Bits(), ErrOutOfRange,
		)
	}
	putBig(p, fd.bigEndian(), &bs.v)
	return nil
}

// BitField returns the named bit field of this field.
func (fd Field) BitField(name string) (BitField, error) {
	if fd.layout == nil {
		return BitField{}, xerrors.Errorf(
			"mfm: could not find bit field %q in unnamed field: %w",
			name, ErrBitFieldNotFound,
		)
	}
	bl, ok := fd.layout.BitFields[name]
	if !ok {
		return BitField{}, xerrors.Errorf(
			"mfm: could not find bit field %q in field %q: %w",
			name, fd.layout.Name, ErrBitFieldNotFound,
		)
	}
	return fd.bitField(bl.Name, bl.Offset, bl.Width)
}

// BitFieldAt returns the bit field at the given bit offset, counted from
// the least significant bit of the field value, and of the given width.
func (fd Field) BitFieldAt(off, width int) (BitField, error) {
	name := ""
	if fd.layout != nil {
		name, _ = fd.layout.BitFieldAt(off, width)
	}
	return fd.bitField(name, off, width)
}

func (fd Field) bitField(name string, off, width int) (BitField, error) {
	if off < 0 || width <= 0 || off+width > fd.Bits() {
		return BitField{}, xerrors.Errorf(
			"mfm: bit field (offset=%d, width=%d) beyond field %q of %d bits: %w",
			off, width, fd.Name(), fd.Bits(), ErrOutOfRange,
		)
	}
	return BitField{fd: fd, name: name, off: off, width: width}, nil
}

// BitField is a view on a bit range of a Field.
type BitField struct {
	fd    Field
	name  string
	off   int // offset from the least significant bit of the field.
	width int
}

// Name returns the name of the bit field.
func (bf BitField) Name() string { return bf.name }

// Offset returns the bit offset from the least significant bit of the field.
func (bf BitField) Offset() int { return bf.off }

// Bits returns the width of the bit field.
func (bf BitField) Bits() int { return bf.width }

// Field returns the field holding this bit field.
func (bf BitField) Field() Field { return bf.fd }

// Uint64 returns the bit field value. The width must be at most 64 bits.
func (bf BitField) Uint64() (uint64, error) {
	if bf.width > 64 {
		return 0, xerrors.Errorf(
			"mfm: bit field %q (width=%d) does not fit a 64-bit integer: %w",
			bf.name, bf.width, ErrOutOfRange,
		)
	}
	p, err := bf.fd.raw()
	if err != nil {
		return 0, err
	}
	if len(p) <= 8 {
		v := getUint(p, bf.fd.bigEndian())
		return (v >> bf.off) & mask(bf.width), nil
	}
	v := getBig(p, bf.fd.bigEndian())
	v.Rsh(v, uint(bf.off))
	v.And(v, bigMask(bf.width))
	return v.Uint64(), nil
}

// Int64 returns the bit field value, sign-extended from its width.
func (bf BitField) Int64() (int64, error) {
	v, err := bf.Uint64()
	if err != nil {
		return 0, err
	}
	return signExtend(v, bf.width), nil
}

// SetUint64 writes the bf.Bits() least significant bits of v.
func (bf BitField) SetUint64(v uint64) error {
	if bf.width > 64 {
		return xerrors.Errorf(
			"mfm: bit field %q (width=%d) does not fit a 64-bit integer: %w",
			bf.name, bf.width, ErrOutOfRange,
		)
	}
	p, err := bf.fd.raw()
	if err != nil {
		return err
	}
	order := bf.fd.bigEndian()
	if len(p) <= 8 {
		var (
			cur = getUint(p, order)
			msk = mask(bf.width) << bf.off
		)
		cur = cur&^msk | (v<<bf.off)&msk
		putUint(p, order, cur)
		return nil
	}
	bf.setBig(p, order, new(big.Int).SetUint64(v&mask(bf.width)))
	return nil
}

// SetInt64 writes the two's complement representation of v.
func (bf BitField) SetInt64(v int64) error {
	return bf.SetUint64(uint64(v))
}

// Bitset returns the bit field value as a bitset of bf.Bits() bits.
func (bf BitField) Bitset() (*Bitset, error) {
	p, err := bf.fd.raw()
	if err != nil {
		return nil, err
	}
	v := getBig(p, bf.fd.bigEndian())
	v.Rsh(v, uint(bf.off))
	return NewBitset(bf.width).SetInt(v), nil
}

// SetBitset writes bs into the bit field.
// The bitset must be exactly as wide as the bit field.
func (bf BitField) SetBitset(bs *Bitset) error {
	if bs.Len() != bf.width {
		return xerrors.Errorf(
			"mfm: bitset of %d bits does not match bit field %q of %d bits: %w",
			bs.Len(), bf.name, bf.width, ErrOutOfRange,
		)
	}
	p, err := bf.fd.raw()
	if err != nil {
		return err
	}
	bf.setBig(p, bf.fd.bigEndian(), &bs.v)
	return nil
}

func (bf BitField) setBig(p []byte, order bool, v *big.Int) {
	var (
		cur = getBig(p, order)
		msk = bigMask(bf.width)
		val = new(big.Int).And(v, msk)
	)
	msk.Lsh(msk, uint(bf.off))
	cur.AndNot(cur, msk)
	cur.Or(cur, val.Lsh(val, uint(bf.off)))
	putBig(p, order, cur)
}

func bigMask(n int) *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), uint(n))
	return m.Sub(m, big.NewInt(1))
}

var (
	_ Accessor = (*Field)(nil)
	_ Accessor = (*BitField)(nil)
)
