// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"fmt"
	"math"
	"math/bits"
	"sort"

	"github.com/nlpodyssey/stcodec/errs"
)

// Validate checks whether the content of a Header is valid according to
// safetensors format, returning an error if a problem is encountered,
// otherwise nil.
//
// This validation can serve as an early isolated checking mechanism to
// identify bogus values before performing further actions that
// heavily depend upon the Header, such as reading tensors data from
// the payload.
//
// The Header is checked against the following rules:
//
//   - each key in Tensors TensorMap must match the mapped Tensor.Name
//   - the union of DataOffsets of all Tensors must cover an entire contiguous
//     area of the payload, starting from offset 0
//   - DataOffsets of any pair of tensors must not overlap
//   - for each Tensor, its DataOffsets.Begin must be <= DataOffsets.End
//   - each Tensor's DType must be valid, and its Shape must not contain
//     negative values
//   - for each Tensor, its explicit byte size described by DataOffsets
//     (End - Begin) must coincide with the implicit byte size computed
//     from Shape and DType (product of all Shape items * DType size; an empty
//     shape counts as 1 scalar value)
//   - if payloadSize is not negative, the payload described by the tensors
//     must not extend beyond it
//   - no overflow must occur during calculations at any step
//
// Violations result in an error matching errs.ErrInvalidOffsets, or
// errs.ErrUnsupportedType for an invalid DType.
func (h Header) Validate(payloadSize int64) error {
	if err := validateTensorNames(h.Tensors); err != nil {
		return err
	}

	ts := h.Tensors.TensorSlice()
	sort.Sort(TensorSliceByDataOffsets{ts})

	expectedBegin := int64(0)
	for _, t := range ts {
		if err := validateTensor(t, expectedBegin); err != nil {
			return fmt.Errorf("invalid tensor %q: %w", t.Name, err)
		}
		expectedBegin = t.DataOffsets.End
	}

	if payloadSize >= 0 && expectedBegin > payloadSize {
		return fmt.Errorf("%w: tensors require %d payload bytes, only %d available",
			errs.ErrInvalidOffsets, expectedBegin, payloadSize)
	}
	return nil
}

func validateTensorNames(tm TensorMap) error {
	for k, t := range tm {
		if k != t.Name {
			return fmt.Errorf("%w: tensor names mismatch: TensorMap key %q, Tensor.Name %q", errs.ErrInvalidOffsets, k, t.Name)
		}
	}
	return nil
}

func validateTensor(t Tensor, expectedBegin int64) error {
	if t.DataOffsets.Begin != expectedBegin {
		return fmt.Errorf("%w: expected data-offsets begin %d, actual %d", errs.ErrInvalidOffsets, expectedBegin, t.DataOffsets.Begin)
	}
	if t.DataOffsets.End < t.DataOffsets.Begin {
		return fmt.Errorf("%w: expected data-offsets end >= %d (begin), actual %d", errs.ErrInvalidOffsets, t.DataOffsets.Begin, t.DataOffsets.End)
	}

	byteSize, err := byteSizeFromShape(t)
	if err != nil {
		return err
	}
	if offSize := t.ByteSize(); offSize != byteSize {
		return fmt.Errorf("%w: byte size computed from shape (%d) differs from data-offsets size (%d)", errs.ErrInvalidOffsets, byteSize, offSize)
	}
	return nil
}

func byteSizeFromShape(t Tensor) (int64, error) {
	if err := t.DType.Validate(); err != nil {
		return 0, err
	}

	tensorSize, err := tensorSizeFromShape(t.Shape)
	if err != nil {
		return 0, err
	}

	hi, byteSize := bits.Mul64(uint64(tensorSize), uint64(t.DType.Size()))
	if hi != 0 || byteSize > math.MaxInt64 {
		return 0, fmt.Errorf("%w: int overflow computing tensor byte size from shape", errs.ErrInvalidOffsets)
	}
	return int64(byteSize), nil
}

func tensorSizeFromShape(s Shape) (int64, error) {
	size := uint64(1)
	for _, v := range s {
		if v < 0 {
			return 0, fmt.Errorf("%w: shape contains negative value %d", errs.ErrInvalidOffsets, v)
		}
		var hi uint64
		if hi, size = bits.Mul64(size, uint64(v)); hi != 0 || size > math.MaxInt64 {
			return 0, fmt.Errorf("%w: int overflow computing tensor elements size from shape", errs.ErrInvalidOffsets)
		}
	}
	return int64(size), nil
}
