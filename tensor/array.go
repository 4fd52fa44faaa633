// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tensor provides a minimal n-dimensional array model with deferred
// evaluation, as consumed by the safetensors codec.
//
// An Array is either materialized (Dense) or deferred (Lazy). Deferred
// arrays are computed by their Primitive when an Engine evaluates them.
// All array data is little-endian and, once contiguous, row-major ("C")
// ordered.
package tensor

import (
	"fmt"

	"github.com/nlpodyssey/stcodec/dtype"
)

// Array is an n-dimensional array of elements of a single DType.
type Array interface {
	DType() dtype.DType
	// Shape returns a copy of the dimensions. It is nil for a scalar.
	Shape() []int
	// NBytes is the byte size of the array data.
	NBytes() int64
	// Contiguous returns an array with the same content laid out in
	// row-major order. It can be the array itself.
	Contiguous() Array
	// Evaluated reports whether the data is available.
	Evaluated() bool
	// Data returns the raw row-major bytes. It is nil if the array is not
	// evaluated or not contiguous.
	Data() []byte
}

// NumElements returns the number of elements described by shape,
// 1 for a scalar. Negative dimensions and overflows are errors.
func NumElements(shape []int) (int, error) {
	n := 1
	for _, v := range shape {
		if v < 0 {
			return 0, fmt.Errorf("shape %v contains a negative value", shape)
		}
		var err error
		if n, err = checkedMul(n, v); err != nil {
			return 0, fmt.Errorf("shape %v: %w", shape, err)
		}
	}
	return n, nil
}

func byteSize(dt dtype.DType, shape []int) (int, error) {
	if err := dt.Validate(); err != nil {
		return 0, err
	}
	n, err := NumElements(shape)
	if err != nil {
		return 0, err
	}
	return checkedMul(n, dt.Size())
}

// checkedMul multiplies a and b and checks for overflow.
func checkedMul(a, b int) (int, error) {
	c := a * b
	if a > 1 && b > 1 && c/a != b {
		return c, fmt.Errorf("multiplication overflow: %d * %d", a, b)
	}
	return c, nil
}

func copyShape(shape []int) []int {
	if len(shape) == 0 {
		return nil
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return s
}
