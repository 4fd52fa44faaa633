// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"

	"github.com/nlpodyssey/stcodec/dtype"
)

// Dense is a materialized Array, possibly a strided view over a buffer
// shared with other arrays.
type Dense struct {
	dType   dtype.DType
	shape   []int
	strides []int // in elements
	data    []byte
}

var _ Array = &Dense{}

// NewDense returns a row-major Dense array of the given type and shape
// backed by data, which is NOT copied.
func NewDense(dt dtype.DType, shape []int, data []byte) (*Dense, error) {
	size, err := byteSize(dt, shape)
	if err != nil {
		return nil, err
	}
	if size != len(data) {
		return nil, fmt.Errorf("the size computed from shape %v and %s (%d) does not match data length (%d)", shape, dt, size, len(data))
	}
	shape = copyShape(shape)
	return &Dense{
		dType:   dt,
		shape:   shape,
		strides: rowMajorStrides(shape),
		data:    data,
	}, nil
}

func rowMajorStrides(shape []int) []int {
	if len(shape) == 0 {
		return nil
	}
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// DType returns the data type of the array.
func (d *Dense) DType() dtype.DType { return d.dType }

// Shape returns a copy of the array dimensions.
func (d *Dense) Shape() []int { return copyShape(d.shape) }

// NBytes returns the byte size of the array data.
func (d *Dense) NBytes() int64 { return int64(len(d.data)) }

// Evaluated always returns true.
func (d *Dense) Evaluated() bool { return true }

// Data returns the underlying buffer if the array is contiguous,
// otherwise nil.
func (d *Dense) Data() []byte {
	if !d.IsContiguous() {
		return nil
	}
	return d.data
}

// IsContiguous reports whether the elements are laid out in row-major order.
// Strides of dimensions of size 1 are irrelevant.
func (d *Dense) IsContiguous() bool {
	s := 1
	for i := len(d.shape) - 1; i >= 0; i-- {
		if d.shape[i] != 1 && d.strides[i] != s {
			return false
		}
		s *= d.shape[i]
	}
	return true
}

// Contiguous returns d itself if it is already contiguous, otherwise a new
// row-major Dense array holding a copy of the data.
func (d *Dense) Contiguous() Array {
	if d.IsContiguous() {
		return d
	}

	size := d.dType.Size()
	out := make([]byte, len(d.data))
	idx := make([]int, len(d.shape))
	for i := 0; i < len(out)/size; i++ {
		src := 0
		for k, x := range idx {
			src += x * d.strides[k]
		}
		copy(out[i*size:(i+1)*size], d.data[src*size:(src+1)*size])

		for k := len(idx) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < d.shape[k] {
				break
			}
			idx[k] = 0
		}
	}
	return &Dense{
		dType:   d.dType,
		shape:   copyShape(d.shape),
		strides: rowMajorStrides(d.shape),
		data:    out,
	}
}

// Transpose returns a view of d with permuted dimensions, sharing the same
// data. With no axes, the order of dimensions is reversed.
func (d *Dense) Transpose(axes ...int) (*Dense, error) {
	if len(axes) == 0 {
		axes = make([]int, len(d.shape))
		for i := range axes {
			axes[i] = len(d.shape) - 1 - i
		}
	}
	if len(axes) != len(d.shape) {
		return nil, fmt.Errorf("transpose: expected %d axes, actual %d", len(d.shape), len(axes))
	}

	seen := make([]bool, len(axes))
	shape := make([]int, len(axes))
	strides := make([]int, len(axes))
	for i, a := range axes {
		if a < 0 || a >= len(axes) || seen[a] {
			return nil, fmt.Errorf("transpose: invalid axes %v", axes)
		}
		seen[a] = true
		shape[i] = d.shape[a]
		strides[i] = d.strides[a]
	}
	if len(shape) == 0 {
		shape, strides = nil, nil
	}
	return &Dense{
		dType:   d.dType,
		shape:   shape,
		strides: strides,
		data:    d.data,
	}, nil
}
