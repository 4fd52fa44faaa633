// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dtype maps safetensors element types to their format tags and to
// Go element types.
package dtype

import (
	"fmt"

	"github.com/nlpodyssey/stcodec/errs"
	"github.com/nlpodyssey/stcodec/float16"
)

// DType represents a safetensors data type.
//
// The zero value is not a valid DType.
type DType uint8

// DType values are declared in increasing alignment order.
const (
	// Bool represents an 8-bit boolean data type.
	Bool DType = iota + 1
	// U8 represents an 8-bit unsigned integer data type.
	U8
	// I8 represents an 8-bit signed integer data type.
	I8
	// U16 represents a 16-bit unsigned integer data type.
	U16
	// I16 represents a 16-bit signed integer data type.
	I16
	// F16 represents a 16-bit half-precision floating point data type.
	F16
	// BF16 represents a 16-bit brain floating point data type.
	BF16
	// U32 represents a 32-bit unsigned integer data type.
	U32
	// I32 represents a 32-bit signed integer data type.
	I32
	// F32 represents a 32-bit floating point data type.
	F32
	// C64 represents a complex number made of two 32-bit floating point
	// values (real part first).
	//
	// Complex numbers are not part of the upstream safetensors format yet,
	// so the "C64" tag may change.
	C64
	// U64 represents a 64-bit unsigned integer data type.
	U64
	// I64 represents a 64-bit signed integer data type.
	I64

	maxDType = I64
)

var (
	dTypeToTag = [...]string{
		Bool: "BOOL",
		U8:   "U8",
		I8:   "I8",
		U16:  "U16",
		I16:  "I16",
		F16:  "F16",
		BF16: "BF16",
		U32:  "U32",
		I32:  "I32",
		F32:  "F32",
		C64:  "C64",
		U64:  "U64",
		I64:  "I64",
	}
	dTypeToSize = [...]int{
		Bool: 1,
		U8:   1,
		I8:   1,
		U16:  2,
		I16:  2,
		F16:  2,
		BF16: 2,
		U32:  4,
		I32:  4,
		F32:  4,
		C64:  8,
		U64:  8,
		I64:  8,
	}
	tagToDType = map[string]DType{
		"BOOL": Bool,
		"U8":   U8,
		"I8":   I8,
		"U16":  U16,
		"I16":  I16,
		"F16":  F16,
		"BF16": BF16,
		"U32":  U32,
		"I32":  I32,
		"F32":  F32,
		"C64":  C64,
		"U64":  U64,
		"I64":  I64,
	}
)

// All returns every valid DType, in increasing alignment order.
func All() []DType {
	out := make([]DType, 0, maxDType)
	for dt := Bool; dt <= maxDType; dt++ {
		out = append(out, dt)
	}
	return out
}

// Validate returns an error if the DType is not valid, otherwise nil.
// The error matches errs.ErrUnsupportedType.
func (dt DType) Validate() error {
	if dt == 0 || dt > maxDType {
		return fmt.Errorf("%w: DType(%d)", errs.ErrUnsupportedType, dt)
	}
	return nil
}

// Tag returns the format tag of the DType, as found in the "dtype" field
// of a safetensors header.
func (dt DType) Tag() (string, error) {
	if err := dt.Validate(); err != nil {
		return "", err
	}
	return dTypeToTag[dt], nil
}

// ParseTag returns the DType identified by the given format tag.
// An unknown tag results in an error matching errs.ErrUnknownType.
func ParseTag(tag string) (DType, error) {
	dt, ok := tagToDType[tag]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errs.ErrUnknownType, tag)
	}
	return dt, nil
}

// String returns a string representation of a DType.
func (dt DType) String() string {
	if err := dt.Validate(); err != nil {
		return fmt.Sprintf("DType(%d)", dt)
	}
	return dTypeToTag[dt]
}

// Size returns the size in bytes of one element of this data type,
// or -1 if the DType value is invalid.
func (dt DType) Size() int {
	if err := dt.Validate(); err != nil {
		return -1
	}
	return dTypeToSize[dt]
}

// IsFloat reports whether the elements are floating point (or complex)
// numbers.
func (dt DType) IsFloat() bool {
	switch dt {
	case F16, BF16, F32, C64:
		return true
	}
	return false
}

// MarshalJSON satisfies json.Marshaler interface.
func (dt DType) MarshalJSON() ([]byte, error) {
	tag, err := dt.Tag()
	if err != nil {
		return nil, err
	}
	return []byte(`"` + tag + `"`), nil
}

// UnmarshalJSON satisfies json.Unmarshaler interface.
func (dt *DType) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("%w: failed to JSON-unmarshal DType from value %q", errs.ErrUnknownType, b)
	}
	v, err := ParseTag(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*dt = v
	return nil
}

// MarshalText satisfies encoding.TextMarshaler interface.
func (dt DType) MarshalText() ([]byte, error) {
	tag, err := dt.Tag()
	if err != nil {
		return nil, err
	}
	return []byte(tag), nil
}

// UnmarshalText satisfies encoding.TextUnmarshaler interface.
func (dt *DType) UnmarshalText(text []byte) error {
	v, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*dt = v
	return nil
}

// Element is the set of Go types which have a DType counterpart.
type Element interface {
	bool | uint8 | int8 | uint16 | int16 | float16.F16 | float16.BF16 |
		uint32 | int32 | float32 | complex64 | uint64 | int64
}

// For returns the DType of the Go element type T.
func For[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case bool:
		return Bool
	case uint8:
		return U8
	case int8:
		return I8
	case uint16:
		return U16
	case int16:
		return I16
	case float16.F16:
		return F16
	case float16.BF16:
		return BF16
	case uint32:
		return U32
	case int32:
		return I32
	case float32:
		return F32
	case complex64:
		return C64
	case uint64:
		return U64
	case int64:
		return I64
	}
	panic("unreachable")
}

// Of returns the DType matching the element type of the given Go slice.
//
// Slices of types the safetensors format cannot represent, such as
// []float64 or []int, result in an error matching errs.ErrUnsupportedType.
func Of(data any) (DType, error) {
	switch data.(type) {
	case []bool:
		return Bool, nil
	case []uint8:
		return U8, nil
	case []int8:
		return I8, nil
	case []uint16:
		return U16, nil
	case []int16:
		return I16, nil
	case []float16.F16:
		return F16, nil
	case []float16.BF16:
		return BF16, nil
	case []uint32:
		return U32, nil
	case []int32:
		return I32, nil
	case []float32:
		return F32, nil
	case []complex64:
		return C64, nil
	case []uint64:
		return U64, nil
	case []int64:
		return I64, nil
	}
	return 0, fmt.Errorf("%w: Go type %T", errs.ErrUnsupportedType, data)
}
