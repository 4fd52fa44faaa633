// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/goccy/go-json"
	"github.com/nlpodyssey/stcodec/dtype"
	"github.com/nlpodyssey/stcodec/errs"
)

// Alignment is the byte alignment of the payload start obtained by Encode.
const Alignment = 8

type jsonTensor struct {
	DType       dtype.DType `json:"dtype"`
	Shape       Shape       `json:"shape"`
	DataOffsets DataOffsets `json:"data_offsets"`
}

// MarshalJSON serializes the Header to a JSON object.
//
// The metadata object always comes first, even when empty. Tensors follow
// in ascending DataOffsets order, which is also the order of their data
// within the payload.
func (h Header) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	if err := writeKeyValue(&buf, MetadataKey, h.metadataValue()); err != nil {
		return nil, err
	}

	ts := h.Tensors.TensorSlice()
	sort.Sort(TensorSliceByDataOffsets{ts})
	for _, t := range ts {
		if _, err := t.DType.Tag(); err != nil {
			return nil, fmt.Errorf("failed to serialize header tensor %q: %w", t.Name, err)
		}
		buf.WriteByte(',')
		v := jsonTensor{DType: t.DType, Shape: t.Shape, DataOffsets: t.DataOffsets}
		if err := writeKeyValue(&buf, t.Name, v); err != nil {
			return nil, fmt.Errorf("failed to serialize header tensor %q: %w", t.Name, err)
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (h Header) metadataValue() any {
	if len(h.Metadata) == 0 {
		return struct{}{}
	}
	return map[string]string(h.Metadata)
}

func writeKeyValue(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// Encode serializes the Header to JSON text padded with trailing spaces to a
// multiple of Alignment bytes. The returned Header is a copy of h whose
// Length is the exact byte size of the returned text.
func (h Header) Encode() (Header, []byte, error) {
	text, err := h.MarshalJSON()
	if err != nil {
		return Header{}, nil, err
	}
	if extra := (Alignment - len(text)%Alignment) % Alignment; extra > 0 {
		text = append(text, bytes.Repeat([]byte{' '}, extra)...)
	}
	if uint64(len(text)) >= MaxLength {
		return Header{}, nil, fmt.Errorf("%w: header size %d exceeds maximum %d", errs.ErrInvalidHeaderLength, len(text), MaxLength-1)
	}
	h.Length = uint64(len(text))
	return h, text, nil
}

// Write writes the length prefix followed by the header text to w.
// The text is expected to be the result of Header.Encode.
func Write(w io.Writer, text []byte) error {
	var arr [lengthSize]byte
	b := arr[:]
	binary.LittleEndian.PutUint64(b, uint64(len(text)))
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("%w: failed to write header size: %w", errs.ErrWriteFailed, err)
	}
	if _, err := w.Write(text); err != nil {
		return fmt.Errorf("%w: failed to write header: %w", errs.ErrWriteFailed, err)
	}
	return nil
}
