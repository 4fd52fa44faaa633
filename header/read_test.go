// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"testing"
	"testing/iotest"

	"github.com/nlpodyssey/stcodec/dtype"
	"github.com/nlpodyssey/stcodec/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_Success(t *testing.T) {
	testCases := []struct {
		name string
		json string
		want Header
	}{
		{
			"empty object",
			`{}`,
			Header{},
		},
		{
			"empty metadata",
			`{"__metadata__": {}}`,
			Header{},
		},
		{
			"null metadata",
			`{"__metadata__": null}`,
			Header{},
		},
		{
			"metadata",
			`{"__metadata__": {"foo": "bar", "baz": "qux"}}`,
			Header{Metadata: Metadata{"foo": "bar", "baz": "qux"}},
		},
		{
			"tensors",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6]},` +
				`"bar": {"dtype": "C64", "shape": [4, 5], "data_offsets": [6, 166]}}`,
			Header{Tensors: TensorMap{
				"foo": Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 0, End: 6}},
				"bar": Tensor{Name: "bar", DType: dtype.C64, Shape: Shape{4, 5}, DataOffsets: DataOffsets{Begin: 6, End: 166}},
			}},
		},
		{
			"tensors and metadata",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6]},` +
				`"bar": {"dtype": "I8", "shape": [4, 5], "data_offsets": [6, 26]},` +
				`"__metadata__": {"foo": "bar", "baz": "qux"}}`,
			Header{
				Metadata: Metadata{"foo": "bar", "baz": "qux"},
				Tensors: TensorMap{
					"foo": Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 0, End: 6}},
					"bar": Tensor{Name: "bar", DType: dtype.I8, Shape: Shape{4, 5}, DataOffsets: DataOffsets{Begin: 6, End: 26}},
				},
			},
		},
		{
			"scalar",
			`{"s": {"dtype": "F32", "shape": [], "data_offsets": [0, 4]}}`,
			Header{Tensors: TensorMap{
				"s": Tensor{Name: "s", DType: dtype.F32, Shape: Shape{}, DataOffsets: DataOffsets{Begin: 0, End: 4}},
			}},
		},
		{
			"padding before and after",
			" \n\r\t" + `{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6]},` +
				`"__metadata__": {"foo": "bar"}}` + " \n\r\t",
			Header{
				Metadata: Metadata{"foo": "bar"},
				Tensors: TensorMap{
					"foo": Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 0, End: 6}},
				},
			},
		},
	}

	for _, tc := range testCases {
		want := tc.want
		want.Length = uint64(len(tc.json))

		for _, payloadSize := range []int{0, 100} {
			t.Run(fmt.Sprintf("%s plus %d bytes", tc.name, payloadSize), func(t *testing.T) {
				data := makeData(tc.json, payloadSize)
				r := bytes.NewReader(data)
				h, err := Read(r, 0)
				require.NoError(t, err)
				assert.Equal(t, want, h)
				assert.Equal(t, int64(8+len(tc.json)), h.PayloadOffset())
				assert.Equal(t, payloadSize, r.Len(), "no payload byte must be consumed")
			})
		}
	}
}

func TestRead_Failure(t *testing.T) {
	testCases := []struct {
		name   string
		json   string
		target error
		errMsg string
	}{
		{"size 0", "", errs.ErrInvalidHeaderLength, "invalid header length: header size is zero"},
		{"top-level array", "[]", errs.ErrInvalidMetadata, "invalid header: top-level JSON value is not an object"},
		{"top-level string", `"{}"`, errs.ErrInvalidMetadata, "invalid header: top-level JSON value is not an object"},
		{"bad trailing data, valid JSON token", "{}9", errs.ErrInvalidMetadata, ""},
		{"bad trailing data, second object", "{}{}", errs.ErrInvalidMetadata, ""},
		{"incomplete JSON", `{"foo`, errs.ErrInvalidMetadata, ""},
		{"bad JSON", `{1: 2}`, errs.ErrInvalidMetadata, ""},
		{"missing colon", `{"__metadata__" {"k": "v"}}`, errs.ErrInvalidMetadata, "invalid header: header is not valid UTF-8 JSON"},
		{
			"missing comma between entries",
			`{"__metadata__": {"k": "v"} "a": {"dtype": "U8", "shape": [1], "data_offsets": [0, 1]}}`,
			errs.ErrInvalidMetadata, "invalid header: header is not valid UTF-8 JSON",
		},
		{"missing comma in metadata", `{"__metadata__": {"k": "v" "j": "w"}}`, errs.ErrInvalidMetadata, ""},
		{"colon instead of comma", `{"__metadata__": {"k": "v": "j": "w"}}`, errs.ErrInvalidMetadata, ""},
		{"leading comma", `{,"__metadata__": {}}`, errs.ErrInvalidMetadata, ""},
		{"trailing comma", `{"__metadata__": {},}`, errs.ErrInvalidMetadata, ""},
		{"invalid UTF-8", "{\"__metadata__\": {\"k\xff\": \"v\"}}", errs.ErrInvalidMetadata, "invalid header: header is not valid UTF-8 JSON"},
		{
			"metadata not an object", `{"__metadata__": [1]}`, errs.ErrInvalidMetadata,
			"invalid header: metadata is not a JSON object",
		},
		{
			"bad metadata", `{"__metadata__": {"foo": 1}}`, errs.ErrInvalidMetadata,
			`invalid header: found non-string metadata value for key "foo"`,
		},
		{
			"nested metadata", `{"__metadata__": {"foo": {"a": "b"}}}`, errs.ErrInvalidMetadata,
			`invalid header: found non-string metadata value for key "foo"`,
		},
		{
			"duplicate metadata key", `{"__metadata__": {"foo": "a", "foo": "b"}}`, errs.ErrDuplicateKey,
			`duplicate key: metadata key "foo"`,
		},
		{
			"duplicate metadata object",
			`{"__metadata__": {"foo": "a"}, "__metadata__": {"bar": "b"}}`, errs.ErrDuplicateKey,
			`duplicate key: header key "__metadata__"`,
		},
		{
			"duplicate tensor name",
			`{"foo": {"dtype": "U8", "shape": [1], "data_offsets": [0, 1]},` +
				`"foo": {"dtype": "U8", "shape": [1], "data_offsets": [1, 2]}}`,
			errs.ErrDuplicateKey,
			`duplicate key: header key "foo"`,
		},
		{
			"tensor not an object",
			`{"foo": 1}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": malformed entry: value is not a JSON object`,
		},
		{
			"tensor null",
			`{"foo": null}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": malformed entry: value is not a JSON object`,
		},
		{
			"dtype missing",
			`{"foo": {"shape": [2, 3], "data_offsets": [0, 6]}}`,
			errs.ErrMissingField,
			`failed to interpret header tensor "foo": missing field: "dtype"`,
		},
		{
			"shape missing",
			`{"foo": {"dtype": "U8", "data_offsets": [0, 6]}}`,
			errs.ErrMissingField,
			`failed to interpret header tensor "foo": missing field: "shape"`,
		},
		{
			"data_offsets missing",
			`{"foo": {"dtype": "U8", "shape": [2, 3]}}`,
			errs.ErrMissingField,
			`failed to interpret header tensor "foo": missing field: "data_offsets"`,
		},
		{
			"unknown tensor key",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6], "bar": "baz"}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": malformed entry: JSON object contains unknown keys`,
		},
		{
			"dtype is not string",
			`{"foo": {"dtype": 123, "shape": [2, 3], "data_offsets": [0, 6]}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": malformed entry: found non-string "dtype" value`,
		},
		{
			"unknown dtype",
			`{"foo": {"dtype": "ZZZ", "shape": [2, 3], "data_offsets": [0, 6]}}`,
			errs.ErrUnknownType,
			`failed to interpret header tensor "foo": unknown dtype: "ZZZ"`,
		},
		{
			"shape is not array",
			`{"foo": {"dtype": "U8", "shape": 123, "data_offsets": [0, 6]}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": malformed entry: found non-array "shape" value`,
		},
		{
			"shape item is not number",
			`{"foo": {"dtype": "U8", "shape": [2, "3"], "data_offsets": [0, 6]}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": ` +
				`failed to interpret "shape" value at index 1: ` +
				`malformed entry: value is not a number`,
		},
		{
			"shape item is float with fraction",
			`{"foo": {"dtype": "U8", "shape": [2, 3.0], "data_offsets": [0, 6]}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": ` +
				`failed to interpret "shape" value at index 1: ` +
				`malformed entry: failed to convert value "3.0" to int: ` +
				`strconv.ParseInt: parsing "3.0": invalid syntax`,
		},
		{
			"shape item int too big",
			`{"foo": {"dtype": "U8", "shape": [2, 18446744073709551615], "data_offsets": [0, 6]}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": ` +
				`failed to interpret "shape" value at index 1: ` +
				`malformed entry: failed to convert value "18446744073709551615" to int: ` +
				`strconv.ParseInt: parsing "18446744073709551615": value out of range`,
		},
		{
			"shape item is negative",
			`{"foo": {"dtype": "U8", "shape": [2, -1], "data_offsets": [0, 6]}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": ` +
				`failed to interpret "shape" value at index 1: ` +
				`malformed entry: value is negative: -1`,
		},
		{
			"data_offsets is not array",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": 123}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": malformed entry: found non-array "data_offsets" value`,
		},
		{
			"data_offsets len is not 2",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [1, 2, 3]}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": malformed entry: bad "data_offsets" length: expected 2, actual 3`,
		},
		{
			"data_offsets item is not number",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, "6"]}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": ` +
				`failed to interpret "data_offsets" value at index 1: ` +
				`malformed entry: value is not a number`,
		},
		{
			"data_offsets item is negative",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, -1]}}`,
			errs.ErrMalformedEntry,
			`failed to interpret header tensor "foo": ` +
				`failed to interpret "data_offsets" value at index 1: ` +
				`malformed entry: value is negative: -1`,
		},
	}

	for _, tc := range testCases {
		for _, payloadSize := range []int{0, 100} {
			t.Run(fmt.Sprintf("%s plus %d bytes", tc.name, payloadSize), func(t *testing.T) {
				data := makeData(tc.json, payloadSize)
				h, err := Read(bytes.NewReader(data), 0)
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.target)
				assert.ErrorIs(t, err, errs.ErrFormat)
				if tc.errMsg != "" {
					assert.EqualError(t, err, tc.errMsg)
				}
				assert.Equal(t, Header{}, h)
			})
		}
	}
}

func TestRead_Length(t *testing.T) {
	withLength := func(n uint64, text string) []byte {
		data := make([]byte, 8, 8+len(text))
		binary.LittleEndian.PutUint64(data, n)
		return append(data, text...)
	}

	t.Run("max uint64", func(t *testing.T) {
		_, err := Read(bytes.NewReader(withLength(maxUint64, "")), 0)
		assert.ErrorIs(t, err, errs.ErrInvalidHeaderLength)
		assert.ErrorIs(t, err, errs.ErrFormat)
	})

	t.Run("exactly the maximum", func(t *testing.T) {
		_, err := Read(bytes.NewReader(withLength(MaxLength, "{}")), 0)
		assert.EqualError(t, err, "invalid header length: header size 100000000 exceeds maximum 99999999")
		assert.ErrorIs(t, err, errs.ErrFormat)
	})

	t.Run("just below the maximum, truncated stream", func(t *testing.T) {
		_, err := Read(bytes.NewReader(withLength(MaxLength-1, "{}")), 0)
		assert.EqualError(t, err, "read failed: header truncated: expected 99999999 bytes, actual 2")
		assert.ErrorIs(t, err, errs.ErrIO)
	})

	t.Run("limit", func(t *testing.T) {
		data := makeData(`{"__metadata__":{}}`, 0)
		_, err := Read(bytes.NewReader(data), 10)
		assert.EqualError(t, err, "invalid header length: header size 19 exceeds limit 10")

		_, err = Read(bytes.NewReader(data), 19)
		assert.NoError(t, err)
	})

	t.Run("reader error reading size", func(t *testing.T) {
		data := []byte{2, 0, 0, 0, 0, 0, 0} // one byte is missing
		h, err := Read(iotest.DataErrReader(bytes.NewReader(data)), 0)
		require.EqualError(t, err, "invalid header length: failed to read header size: unexpected EOF")
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.Equal(t, Header{}, h)
	})

	t.Run("reader error reading JSON", func(t *testing.T) {
		data := makeData(`{"foo": {}}`, 0)
		r := io.MultiReader(bytes.NewReader(data[:12]), iotest.ErrReader(io.ErrClosedPipe))
		_, err := Read(r, 0)
		require.EqualError(t, err, "read failed: failed to read header: io: read/write on closed pipe")
		assert.ErrorIs(t, err, errs.ErrReadFailed)
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	})
}

const maxUint64 = ^uint64(0)

func TestHeader_UnmarshalJSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		data := []byte(`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6]},` +
			`"bar": {"dtype": "I8", "shape": [4, 5], "data_offsets": [6, 26]},` +
			`"__metadata__": {"foo": "bar", "baz": "qux"}}`)

		var h Header
		err := h.UnmarshalJSON(data)
		require.NoError(t, err)

		expected := Header{
			Metadata: Metadata{"foo": "bar", "baz": "qux"},
			Tensors: TensorMap{
				"foo": Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 0, End: 6}},
				"bar": Tensor{Name: "bar", DType: dtype.I8, Shape: Shape{4, 5}, DataOffsets: DataOffsets{Begin: 6, End: 26}},
			},
		}
		assert.Equal(t, expected, h)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		var h Header
		err := h.UnmarshalJSON([]byte("{}oh!"))
		require.ErrorIs(t, err, errs.ErrInvalidMetadata)
	})

	t.Run("invalid header content", func(t *testing.T) {
		var h Header
		err := h.UnmarshalJSON([]byte(`{"foo": {"bar": "baz"}}`))
		require.ErrorIs(t, err, errs.ErrMissingField)
	})
}

func makeData(json string, payloadSize int) []byte {
	data := make([]byte, 8+len(json)+payloadSize)
	binary.LittleEndian.PutUint64(data, uint64(len(json)))
	copy(data[8:len(json)+8], json)
	for i := len(json) + 8; i < len(data); i++ {
		data[i] = 0xff
	}
	return data
}
