// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/nlpodyssey/stcodec/dtype"
	"github.com/nlpodyssey/stcodec/errs"
)

// Read reads and parses from "r" the initial part of a safetensors
// data stream: the 8-byte length prefix and the JSON text that follows.
// No byte of the payload is consumed.
//
// The length must be greater than zero and lower than MaxLength. If limit is
// positive, lengths greater than limit are refused as well.
//
// Note that after successfully reading and parsing, NO validation of the
// data offsets is performed on the obtained Header (see Header.Validate).
func Read(r io.Reader, limit uint64) (Header, error) {
	size, err := readLength(r)
	if err != nil {
		return Header{}, err
	}
	if err = checkLength(size, limit); err != nil {
		return Header{}, err
	}

	text, err := readText(r, size)
	if err != nil {
		return Header{}, err
	}

	h, err := Parse(text)
	if err != nil {
		return Header{}, err
	}
	h.Length = size
	return h, nil
}

func readLength(r io.Reader) (uint64, error) {
	var arr [lengthSize]byte
	b := arr[:]
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, fmt.Errorf("%w: failed to read header size: %w", errs.ErrInvalidHeaderLength, err)
	}
	return binary.LittleEndian.Uint64(b), nil
}

func checkLength(size, limit uint64) error {
	switch {
	case size == 0:
		return fmt.Errorf("%w: header size is zero", errs.ErrInvalidHeaderLength)
	case size >= MaxLength:
		return fmt.Errorf("%w: header size %d exceeds maximum %d", errs.ErrInvalidHeaderLength, size, MaxLength-1)
	case limit > 0 && size > limit:
		return fmt.Errorf("%w: header size %d exceeds limit %d", errs.ErrInvalidHeaderLength, size, limit)
	}
	return nil
}

// readText reads exactly size bytes. The buffer grows along with the data
// actually available, so that a bogus length on a short stream does not
// cause a large allocation.
func readText(r io.Reader, size uint64) ([]byte, error) {
	text, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %w", errs.ErrReadFailed, err)
	}
	if n := uint64(len(text)); n != size {
		return nil, fmt.Errorf("%w: header truncated: expected %d bytes, actual %d", errs.ErrReadFailed, size, n)
	}
	return text, nil
}

// Parse interprets the JSON text of a safetensors header.
//
// The top-level value must be an object. The reserved MetadataKey, if
// present, must map to an object of strings (or null). Any other key is a
// tensor name, mapped to an object with exactly the fields "dtype",
// "shape" and "data_offsets".
//
// A key repeated at top level, or within metadata, is refused.
// Whitespace around the object is allowed, since writers may pad the
// header to a specific alignment.
//
// The Length of the returned Header is left zero.
func Parse(text []byte) (h Header, err error) {
	// the token walk below neither checks separators nor string encoding
	if !utf8.Valid(text) || !json.Valid(text) {
		return Header{}, fmt.Errorf("%w: header is not valid UTF-8 JSON", errs.ErrInvalidMetadata)
	}

	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()

	if err = expectDelim(dec, '{'); err != nil {
		return Header{}, err
	}

	seen := make(map[string]struct{})
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return Header{}, err
		}
		if _, ok := seen[key]; ok {
			return Header{}, fmt.Errorf("%w: header key %q", errs.ErrDuplicateKey, key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err = dec.Decode(&raw); err != nil {
			return Header{}, fmt.Errorf("%w: failed to JSON-decode value of %q: %w", errs.ErrInvalidMetadata, key, err)
		}

		if key == MetadataKey {
			if h.Metadata, err = parseMetadata(raw); err != nil {
				return Header{}, err
			}
			continue
		}

		t, err := parseTensor(key, raw)
		if err != nil {
			return Header{}, fmt.Errorf("failed to interpret header tensor %q: %w", key, err)
		}
		if h.Tensors == nil {
			h.Tensors = make(TensorMap)
		}
		h.Tensors[key] = t
	}

	if err = expectDelim(dec, '}'); err != nil {
		return Header{}, err
	}
	if err = expectEnd(dec); err != nil {
		return Header{}, err
	}
	return h, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: failed to JSON-decode header: %w", errs.ErrInvalidMetadata, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		if want == '{' {
			return fmt.Errorf("%w: top-level JSON value is not an object", errs.ErrInvalidMetadata)
		}
		return fmt.Errorf("%w: expected %q, found %v", errs.ErrInvalidMetadata, want, tok)
	}
	return nil
}

// expectEnd makes sure that nothing but whitespace follows the top-level
// object.
func expectEnd(dec *json.Decoder) error {
	tok, err := dec.Token()
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return fmt.Errorf("%w: failed to JSON-decode header: %w", errs.ErrInvalidMetadata, err)
	default:
		return fmt.Errorf("%w: unexpected data after JSON object: %v", errs.ErrInvalidMetadata, tok)
	}
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: failed to JSON-decode header: %w", errs.ErrInvalidMetadata, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected object key, found %v", errs.ErrInvalidMetadata, tok)
	}
	return key, nil
}

func parseMetadata(raw json.RawMessage) (Metadata, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to JSON-decode metadata: %w", errs.ErrInvalidMetadata, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: metadata is not a JSON object", errs.ErrInvalidMetadata)
	}

	var metadata Metadata
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if _, ok := metadata[key]; ok {
			return nil, fmt.Errorf("%w: metadata key %q", errs.ErrDuplicateKey, key)
		}
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to JSON-decode metadata: %w", errs.ErrInvalidMetadata, err)
		}
		value, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: found non-string metadata value for key %q", errs.ErrInvalidMetadata, key)
		}
		if metadata == nil {
			metadata = make(Metadata)
		}
		metadata[key] = value
	}
	return metadata, nil
}

func parseTensor(name string, raw json.RawMessage) (t Tensor, err error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err = dec.Decode(&fields); err != nil || fields == nil {
		return Tensor{}, fmt.Errorf("%w: value is not a JSON object", errs.ErrMalformedEntry)
	}

	t.Name = name
	if t.DType, err = parseDType(fields); err != nil {
		return
	}
	if t.Shape, err = parseShape(fields); err != nil {
		return
	}
	if t.DataOffsets, err = parseDataOffsets(fields); err != nil {
		return
	}
	if len(fields) != 3 {
		err = fmt.Errorf("%w: JSON object contains unknown keys", errs.ErrMalformedEntry)
	}
	return
}

func parseDType(fields map[string]any) (dtype.DType, error) {
	rawDType, ok := fields["dtype"]
	if !ok {
		return 0, fmt.Errorf(`%w: "dtype"`, errs.ErrMissingField)
	}
	tag, ok := rawDType.(string)
	if !ok {
		return 0, fmt.Errorf(`%w: found non-string "dtype" value`, errs.ErrMalformedEntry)
	}
	return dtype.ParseTag(tag)
}

func parseShape(fields map[string]any) (Shape, error) {
	rawShape, ok := fields["shape"]
	if !ok {
		return nil, fmt.Errorf(`%w: "shape"`, errs.ErrMissingField)
	}
	items, ok := rawShape.([]any)
	if !ok {
		return nil, fmt.Errorf(`%w: found non-array "shape" value`, errs.ErrMalformedEntry)
	}
	shape := make(Shape, len(items))
	for i, item := range items {
		v, err := parseNonNegInt(item, strconv.IntSize)
		if err != nil {
			return nil, fmt.Errorf(`failed to interpret "shape" value at index %d: %w`, i, err)
		}
		shape[i] = int(v)
	}
	return shape, nil
}

func parseDataOffsets(fields map[string]any) (DataOffsets, error) {
	rawDataOffsets, ok := fields["data_offsets"]
	if !ok {
		return DataOffsets{}, fmt.Errorf(`%w: "data_offsets"`, errs.ErrMissingField)
	}
	items, ok := rawDataOffsets.([]any)
	if !ok {
		return DataOffsets{}, fmt.Errorf(`%w: found non-array "data_offsets" value`, errs.ErrMalformedEntry)
	}
	if l := len(items); l != 2 {
		return DataOffsets{}, fmt.Errorf(`%w: bad "data_offsets" length: expected 2, actual %d`, errs.ErrMalformedEntry, l)
	}
	var parsed [2]int64
	for i, item := range items {
		var err error
		if parsed[i], err = parseNonNegInt(item, 64); err != nil {
			return DataOffsets{}, fmt.Errorf(`failed to interpret "data_offsets" value at index %d: %w`, i, err)
		}
	}
	return DataOffsets{Begin: parsed[0], End: parsed[1]}, nil
}

func parseNonNegInt(value any, bitSize int) (int64, error) {
	num, ok := value.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: value is not a number", errs.ErrMalformedEntry)
	}
	v, err := strconv.ParseInt(num.String(), 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to convert value %q to int: %w", errs.ErrMalformedEntry, num.String(), err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: value is negative: %d", errs.ErrMalformedEntry, v)
	}
	return v, nil
}

// UnmarshalJSON satisfies json.Unmarshaler interface, by means of Parse.
func (h *Header) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
