// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"
	"math"

	"github.com/nlpodyssey/stcodec/dtype"
	"github.com/nlpodyssey/stcodec/errs"
	"github.com/nlpodyssey/stcodec/float16"
)

// FromSlice returns a new Dense array holding a little-endian copy of
// data, with the given shape. With no shape, a 1-dimensional array of
// len(data) elements is created; use FromScalar for a 0-dimensional one.
func FromSlice[T dtype.Element](data []T, shape ...int) (*Dense, error) {
	if shape == nil {
		shape = []int{len(data)}
	}
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("the size computed from shape %v (%d) does not match data length (%d)", shape, n, len(data))
	}
	dt := dtype.For[T]()
	return NewDense(dt, shape, encode(data, dt.Size()))
}

// FromScalar returns a new 0-dimensional Dense array holding v.
func FromScalar[T dtype.Element](v T) *Dense {
	dt := dtype.For[T]()
	return &Dense{dType: dt, data: encode([]T{v}, dt.Size())}
}

// ToSlice converts the data of an evaluated Array to a new slice of Go
// values. T must match the DType of the array.
func ToSlice[T dtype.Element](a Array) ([]T, error) {
	if want := dtype.For[T](); a.DType() != want {
		return nil, fmt.Errorf("%w: cannot convert %s array to %s elements", errs.ErrUnsupportedType, a.DType(), want)
	}
	if !a.Evaluated() {
		return nil, fmt.Errorf("array is not evaluated")
	}
	data := a.Contiguous().Data()
	out := make([]T, len(data)/a.DType().Size())
	decode(out, data)
	return out, nil
}

func encode[T dtype.Element](data []T, size int) []byte {
	b := make([]byte, len(data)*size)
	switch v := any(data).(type) {
	case []bool:
		for i, x := range v {
			if x {
				b[i] = 1
			}
		}
	case []uint8:
		copy(b, v)
	case []int8:
		for i, x := range v {
			b[i] = byte(x)
		}
	case []uint16:
		put16(b, v)
	case []int16:
		put16(b, v)
	case []float16.F16:
		put16(b, v)
	case []float16.BF16:
		put16(b, v)
	case []uint32:
		put32(b, v)
	case []int32:
		put32(b, v)
	case []float32:
		for i, x := range v {
			putU32(b[i*4:], math.Float32bits(x))
		}
	case []complex64:
		for i, x := range v {
			putU32(b[i*8:], math.Float32bits(real(x)))
			putU32(b[i*8+4:], math.Float32bits(imag(x)))
		}
	case []uint64:
		put64(b, v)
	case []int64:
		put64(b, v)
	}
	return b
}

func put16[T ~uint16 | ~int16](b []byte, v []T) {
	for i, x := range v {
		b[i*2] = byte(x)
		b[i*2+1] = byte(x >> 8)
	}
}

func put32[T ~uint32 | ~int32](b []byte, v []T) {
	for i, x := range v {
		putU32(b[i*4:], uint32(x))
	}
}

func putU32(b []byte, u uint32) {
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}

func put64[T ~uint64 | ~int64](b []byte, v []T) {
	for i, x := range v {
		b[i*8] = byte(x)
		b[i*8+1] = byte(x >> 8)
		b[i*8+2] = byte(x >> 16)
		b[i*8+3] = byte(x >> 24)
		b[i*8+4] = byte(x >> 32)
		b[i*8+5] = byte(x >> 40)
		b[i*8+6] = byte(x >> 48)
		b[i*8+7] = byte(x >> 56)
	}
}

func decode[T dtype.Element](out []T, b []byte) {
	switch v := any(out).(type) {
	case []bool:
		for i := range v {
			v[i] = b[i] != 0
		}
	case []uint8:
		copy(v, b)
	case []int8:
		for i := range v {
			v[i] = int8(b[i])
		}
	case []uint16:
		get16(v, b)
	case []int16:
		get16(v, b)
	case []float16.F16:
		get16(v, b)
	case []float16.BF16:
		get16(v, b)
	case []uint32:
		get32(v, b)
	case []int32:
		get32(v, b)
	case []float32:
		for i := range v {
			v[i] = math.Float32frombits(getU32(b[i*4:]))
		}
	case []complex64:
		for i := range v {
			v[i] = complex(
				math.Float32frombits(getU32(b[i*8:])),
				math.Float32frombits(getU32(b[i*8+4:])))
		}
	case []uint64:
		get64(v, b)
	case []int64:
		get64(v, b)
	}
}

func get16[T ~uint16 | ~int16](v []T, b []byte) {
	for i := range v {
		v[i] = T(b[i*2]) | T(b[i*2+1])<<8
	}
}

func get32[T ~uint32 | ~int32](v []T, b []byte) {
	for i := range v {
		v[i] = T(getU32(b[i*4:]))
	}
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func get64[T ~uint64 | ~int64](v []T, b []byte) {
	for i := range v {
		b := b[i*8:]
		v[i] = T(b[0]) | T(b[1])<<8 | T(b[2])<<16 | T(b[3])<<24 |
			T(b[4])<<32 | T(b[5])<<40 | T(b[6])<<48 | T(b[7])<<56
	}
}
