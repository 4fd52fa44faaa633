// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/nlpodyssey/stcodec/dtype"
	"github.com/nlpodyssey/stcodec/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_MarshalJSON(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		b, err := Header{}.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, `{"__metadata__":{}}`, string(b))
	})

	t.Run("tensors in data-offsets order", func(t *testing.T) {
		h := Header{
			Metadata: Metadata{"version": "1"},
			Tensors: TensorMap{
				"z": Tensor{Name: "z", DType: dtype.I64, Shape: Shape{1}, DataOffsets: DataOffsets{0, 8}},
				"a": Tensor{Name: "a", DType: dtype.BF16, Shape: nil, DataOffsets: DataOffsets{8, 10}},
			},
		}
		b, err := h.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, `{"__metadata__":{"version":"1"},`+
			`"z":{"dtype":"I64","shape":[1],"data_offsets":[0,8]},`+
			`"a":{"dtype":"BF16","shape":[],"data_offsets":[8,10]}}`, string(b))
	})

	t.Run("invalid dtype", func(t *testing.T) {
		h := Header{Tensors: TensorMap{"a": Tensor{Name: "a", DataOffsets: DataOffsets{0, 1}}}}
		_, err := h.MarshalJSON()
		assert.ErrorIs(t, err, errs.ErrUnsupportedType)
	})
}

func TestHeader_Encode(t *testing.T) {
	h := Header{
		Metadata: Metadata{"version": "1"},
		Tensors: TensorMap{
			"w": Tensor{Name: "w", DType: dtype.F32, Shape: Shape{2, 2}, DataOffsets: DataOffsets{0, 16}},
		},
	}
	encoded, text, err := h.Encode()
	require.NoError(t, err)

	assert.Zero(t, len(text)%Alignment)
	assert.Equal(t, uint64(len(text)), encoded.Length)
	assert.Equal(t, uint64(0), h.Length, "the receiver must not change")
	assert.Equal(t, h.Tensors, encoded.Tensors)

	parsed, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, h.Metadata, parsed.Metadata)
	assert.Equal(t, h.Tensors, parsed.Tensors)
}

func TestWrite(t *testing.T) {
	h := Header{
		Tensors: TensorMap{
			"w": Tensor{Name: "w", DType: dtype.U8, Shape: Shape{3}, DataOffsets: DataOffsets{0, 3}},
		},
	}
	encoded, text, err := h.Encode()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, text))
	assert.Equal(t, encoded.Length, binary.LittleEndian.Uint64(buf.Bytes()[:8]))

	read, err := Read(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, encoded.Length, read.Length)
	assert.Equal(t, h.Tensors, read.Tensors)
	assert.Nil(t, read.Metadata)

	t.Run("writer failure", func(t *testing.T) {
		err := Write(failingWriter{}, text)
		assert.ErrorIs(t, err, errs.ErrWriteFailed)
		assert.ErrorIs(t, err, errs.ErrIO)
		assert.ErrorIs(t, err, io.ErrShortWrite)
	})
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, io.ErrShortWrite
}

