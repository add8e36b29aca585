// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mfm

import (
	"math/big"
)

// getUint reads p as an unsigned integer stored with the requested byte order.
// len(p) must be at most 8.
func getUint(p []byte, bigEndian bool) uint64 {
	var v uint64
	switch {
	case bigEndian:
		for _, b := range p {
			v = v<<8 | uint64(b)
		}
	default:
		for i := len(p) - 1; i >= 0; i-- {
			v = v<<8 | uint64(p[i])
		}
	}
	return v
}

// putUint stores the len(p) least significant bytes of v into p.
func putUint(p []byte, bigEndian bool, v uint64) {
	n := len(p)
	switch {
	case bigEndian:
		for i := n - 1; i >= 0; i-- {
			p[i] = byte(v)
			v >>= 8
		}
	default:
		for i := 0; i < n; i++ {
			p[i] = byte(v)
			v >>= 8
		}
	}
}

// getBig reads p as an arbitrary precision unsigned integer.
func getBig(p []byte, bigEndian bool) *big.Int {
	v := new(big.Int)
	if bigEndian {
		return v.SetBytes(p)
	}
	return v.SetBytes(reversed(p))
}

// putBig stores the len(p) least significant bytes of v into p.
func putBig(p []byte, bigEndian bool, v *big.Int) {
	raw := v.Bytes()
	if len(raw) > len(p) {
		raw = raw[len(raw)-len(p):]
	}
	for i := range p {
		p[i] = 0
	}
	copy(p[len(p)-len(raw):], raw)
	if !bigEndian {
		reverse(p)
	}
}

// signExtend interprets the n least significant bits of v as a two's
// complement integer.
func signExtend(v uint64, n int) int64 {
	if n <= 0 || n >= 64 {
		return int64(v)
	}
	shift := 64 - n
	return int64(v<<shift) >> shift
}

// mask returns a mask of the n least significant bits.
func mask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<n - 1
}

func reversed(p []byte) []byte {
	o := make([]byte, len(p))
	copy(o, p)
	reverse(o)
	return o
}

func reverse(p []byte) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}
