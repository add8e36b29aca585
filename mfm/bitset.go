// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"math/big"
	"strings"
)

// Bitset is a fixed-width sequence of bits.
// Bit i carries the weight 2^i.
type Bitset struct {
	n int
	v big.Int
}

// NewBitset returns a bitset of n bits, all cleared.
func NewBitset(n int) *Bitset {
	if n < 0 {
		n = 0
	}
	return &Bitset{n: n}
}

// Len returns the number of bits in the set.
func (b *Bitset) Len() int { return b.n }

// Test reports whether bit i is set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.v.Bit(i) == 1
}

// Set sets bit i.
func (b *Bitset) Set(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.v.SetBit(&b.v, i, 1)
}

// Clear clears bit i.
func (b *Bitset) Clear(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.v.SetBit(&b.v, i, 0)
}

// Reset clears all bits.
func (b *Bitset) Reset() {
	b.v.SetUint64(0)
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.v.Bits() {
		for ; w != 0; w &= w - 1 {
			n++
		}
	}
	return n
}

// Any reports whether at least one bit is set.
func (b *Bitset) Any() bool { return b.v.Sign() != 0 }

// Uint64 returns the 64 least significant bits of the set.
func (b *Bitset) Uint64() uint64 {
	var lo big.Int
	lo.And(&b.v, new(big.Int).SetUint64(^uint64(0)))
	return lo.Uint64()
}

// SetUint64 sets the bitset from v, truncated to the bitset width.
func (b *Bitset) SetUint64(v uint64) *Bitset {
	b.v.SetUint64(v)
	b.truncate()
	return b
}

// SetInt64 sets the bitset from the two's complement representation of v,
// truncated to the bitset width.
func (b *Bitset) SetInt64(v int64) *Bitset {
	b.v.SetInt64(v)
	b.truncate()
	return b
}

// Int returns a copy of the bitset value.
func (b *Bitset) Int() *big.Int {
	return new(big.Int).Set(&b.v)
}

// SetInt sets the bitset from v, truncated to the bitset width.
func (b *Bitset) SetInt(v *big.Int) *Bitset {
	b.v.Set(v)
	b.truncate()
	return b
}

// Equal reports whether both bitsets have the same width and bits.
func (b *Bitset) Equal(o *Bitset) bool {
	return b.n == o.n && b.v.Cmp(&o.v) == 0
}

// String returns the bits, most significant first.
func (b *Bitset) String() string {
	var o strings.Builder
	o.Grow(b.n)
	for i := b.n - 1; i >= 0; i-- {
		if b.v.Bit(i) == 1 {
			o.WriteByte('1')
			continue
		}
		o.WriteByte('0')
	}
	return o.String()
}

func (b *Bitset) truncate() {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(b.n))
	b.v.Mod(&b.v, mod)
}
