// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package header reads, validates and writes the JSON header of a
// safetensors data stream.
//
// The stream layout is:
//
//	offset 0     uint64 little-endian header length L
//	offset 8     L bytes of UTF-8 JSON text
//	offset 8+L   payload: the concatenated raw data of all tensors
package header

import "sort"

const (
	// MetadataKey is the reserved top-level key holding free-form metadata.
	MetadataKey = "__metadata__"

	// MaxLength is the exclusive upper bound accepted for the header length.
	// It guards against huge allocations caused by corrupted or malicious
	// data.
	MaxLength = 100_000_000

	// lengthSize is the byte size of the uint64 header length prefix.
	lengthSize = 8
)

// Header provides tensors information and metadata, as defined by
// the safetensors format.
//
// A Header is treated as an immutable value once read or built.
type Header struct {
	// Length is the byte length of the JSON text, not including the
	// 8-byte length prefix.
	Length   uint64
	Tensors  TensorMap
	Metadata Metadata
}

// Metadata is a set of free-form key/value string pairs.
type Metadata map[string]string

// PayloadOffset returns the byte index position where the payload starts,
// relative to the beginning of the whole safetensors data stream.
func (h Header) PayloadOffset() int64 {
	return lengthSize + int64(h.Length)
}

// PayloadSize returns the byte size of the payload described by the
// tensors, that is the highest data-offsets end value.
func (h Header) PayloadSize() int64 {
	var size int64
	for _, t := range h.Tensors {
		if t.DataOffsets.End > size {
			size = t.DataOffsets.End
		}
	}
	return size
}

// Names returns the names of all tensors, sorted in ascending order.
func (h Header) Names() []string {
	if len(h.Tensors) == 0 {
		return nil
	}
	names := make([]string, 0, len(h.Tensors))
	for name := range h.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of h which shares no maps with it.
// Shapes are copied as well.
func (h Header) Clone() Header {
	c := Header{Length: h.Length}
	if h.Tensors != nil {
		c.Tensors = make(TensorMap, len(h.Tensors))
		for k, t := range h.Tensors {
			if t.Shape != nil {
				t.Shape = append(Shape{}, t.Shape...)
			}
			c.Tensors[k] = t
		}
	}
	if h.Metadata != nil {
		c.Metadata = make(Metadata, len(h.Metadata))
		for k, v := range h.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}
