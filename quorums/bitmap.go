// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package quorums provides the fixed-width quorum membership bitmap and the
// validated quorum-number list it is built from.
package quorums

import (
	"errors"
	"fmt"

	"github.com/luxfi/math/set"
)

// MaxQuorums bounds the width of every membership bitmap. Quorum numbers are
// always in [0, MaxQuorums).
const MaxQuorums = 192

var (
	ErrQuorumOutOfRange = errors.New("quorum number out of range")
	ErrUnsortedQuorums  = errors.New("quorum numbers must be strictly ascending")
)

// Bitmap is a set of quorum numbers. Bit i is set iff the owner is currently a
// member of quorum i. The zero value is not usable; construct with [New],
// [FromNumbers], or [FromBytes]. Methods never mutate their receiver.
type Bitmap struct {
	bits set.Bits
}

func New(nums ...uint8) Bitmap {
	b := Bitmap{bits: set.NewBits()}
	for _, n := range nums {
		b.bits.Add(int(n))
	}
	return b
}

// FromNumbers builds a bitmap from [nums], rejecting out-of-range entries and
// any ordering violation. Callers are documented to pass strictly ascending,
// duplicate-free quorum numbers; this re-validates rather than trusting them.
func FromNumbers(nums []uint8) (Bitmap, error) {
	b := Bitmap{bits: set.NewBits()}
	for i, n := range nums {
		if n >= MaxQuorums {
			return Bitmap{}, fmt.Errorf("%w: %d >= %d", ErrQuorumOutOfRange, n, MaxQuorums)
		}
		if i > 0 && nums[i-1] >= n {
			return Bitmap{}, fmt.Errorf("%w: %d then %d", ErrUnsortedQuorums, nums[i-1], n)
		}
		b.bits.Add(int(n))
	}
	return b, nil
}

func FromBytes(b []byte) Bitmap {
	return Bitmap{bits: set.BitsFromBytes(b)}
}

// Len returns the number of quorums in the set.
func (b Bitmap) Len() int {
	return b.bits.Len()
}

func (b Bitmap) IsEmpty() bool {
	return b.bits.Len() == 0
}

func (b Bitmap) Contains(q uint8) bool {
	return b.bits.Contains(int(q))
}

// Overlaps reports whether the two sets share any quorum.
func (b Bitmap) Overlaps(o Bitmap) bool {
	for i := 0; i < o.bits.BitLen(); i++ {
		if o.bits.Contains(i) && b.bits.Contains(i) {
			return true
		}
	}
	return false
}

// IsSubsetOf reports whether every quorum in [b] is also in [o].
func (b Bitmap) IsSubsetOf(o Bitmap) bool {
	for i := 0; i < b.bits.BitLen(); i++ {
		if b.bits.Contains(i) && !o.bits.Contains(i) {
			return false
		}
	}
	return true
}

// Union returns a new bitmap containing every quorum in [b] or [o].
func (b Bitmap) Union(o Bitmap) Bitmap {
	u := b.copy()
	u.bits.Union(o.bits)
	return u
}

// Difference returns a new bitmap containing the quorums in [b] but not [o].
func (b Bitmap) Difference(o Bitmap) Bitmap {
	d := b.copy()
	d.bits.Difference(o.bits)
	return d
}

// Quorums returns the quorum numbers in the set in ascending order.
func (b Bitmap) Quorums() []uint8 {
	nums := make([]uint8, 0, b.bits.Len())
	for i := 0; i < b.bits.BitLen(); i++ {
		if b.bits.Contains(i) {
			nums = append(nums, uint8(i))
		}
	}
	return nums
}

// Bytes returns the big-endian byte representation, without zero padding.
func (b Bitmap) Bytes() []byte {
	return b.bits.Bytes()
}

func (b Bitmap) String() string {
	return b.bits.String()
}

func (b Bitmap) copy() Bitmap {
	return Bitmap{bits: set.BitsFromBytes(b.bits.Bytes())}
}
