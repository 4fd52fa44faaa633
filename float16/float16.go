// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package float16 provides 16-bit floating point element types.
//
// Values are kept as raw bits; conversion to float32 is provided for
// inspection purposes.
package float16

import "math"

// F16 is a 16-bit half-precision floating-point value,
// represented as raw bits (uint16).
type F16 uint16

// BF16 is a 16-bit brain floating-point value,
// represented as raw bits (uint16).
type BF16 uint16

// Float32 converts the half-precision value to float32. The conversion is
// exact, subnormals, infinities and NaNs included.
func (h F16) Float32() float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x3ff)

	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
			break
		}
		// subnormal: normalize the fraction
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		f = sign<<31 | e<<23 | frac<<13
	case 0x1f:
		f = sign<<31 | 0x7f800000 | frac<<13
	default:
		f = sign<<31 | (exp+127-15)<<23 | frac<<13
	}
	return math.Float32frombits(f)
}

// Float32 converts the brain floating-point value to float32.
func (b BF16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// BF16FromFloat32 converts a float32 to BF16, rounding to nearest even.
func BF16FromFloat32(f float32) BF16 {
	u := math.Float32bits(f)
	if u&0x7fffffff > 0x7f800000 {
		// keep NaNs quiet instead of rounding them to infinity
		return BF16(u>>16 | 0x40)
	}
	u += 0x7fff + (u>>16)&1
	return BF16(u >> 16)
}
