// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stcodec

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/nlpodyssey/stcodec/errs"
	"github.com/nlpodyssey/stcodec/header"
	"github.com/nlpodyssey/stcodec/stream"
	"github.com/nlpodyssey/stcodec/tensor"
)

type namedArray struct {
	name  string
	array tensor.Array
}

// Save writes tensors and metadata to w in safetensors format.
//
// All tensors are made contiguous and evaluated as a single batch before
// anything is written. Tensors are laid out by descending dtype alignment,
// then by name, so that the output is deterministic.
//
// Tensors with a zero byte size cannot be represented and make Save fail
// with errs.ErrEmptyTensor. On write failure, w is left in an unspecified
// partially written state.
func Save(w stream.Writer, tensors map[string]tensor.Array, metadata map[string]string, opts ...Option) error {
	return save(w, tensors, metadata, newConfig(opts))
}

// Encode is like Save, returning the serialized data.
func Encode(tensors map[string]tensor.Array, metadata map[string]string, opts ...Option) ([]byte, error) {
	w := stream.NewBufferWriter("<memory>")
	if err := Save(w, tensors, metadata, opts...); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func save(w stream.Writer, tensors map[string]tensor.Array, metadata map[string]string, cfg config) error {
	label := w.Label()
	if !w.IsOpen() {
		return errs.Wrap("save", label, errs.ErrNotOpen)
	}

	arrays, err := materialize(tensors, cfg.engine)
	if err != nil {
		return errs.Wrap("save", label, err)
	}

	h, err := makeHeader(arrays, metadata)
	if err != nil {
		return errs.Wrap("save", label, err)
	}
	h, text, err := h.Encode()
	if err != nil {
		return errs.Wrap("save", label, fmt.Errorf("failed to serialize header: %w", err))
	}

	if err = header.Write(w, text); err != nil {
		return errs.Wrap("save", label, err)
	}
	for _, a := range arrays {
		if _, err = w.Write(a.array.Data()); err != nil {
			return errs.Wrap("save", label, fmt.Errorf("%w: failed to write tensor %q: %w", errs.ErrWriteFailed, a.name, err))
		}
	}

	cfg.logger.Debug("safetensors written",
		slog.String("label", label),
		slog.Int("tensors", len(arrays)),
		slog.Uint64("header_length", h.Length),
		slog.Int64("bytes", h.PayloadOffset()+h.PayloadSize()))
	return nil
}

// materialize makes every tensor contiguous and evaluates all of them with
// one batch, returning them in payload order.
func materialize(tensors map[string]tensor.Array, engine *tensor.Engine) ([]namedArray, error) {
	arrays := make([]namedArray, 0, len(tensors))
	batch := make([]tensor.Array, 0, len(tensors))
	for name, t := range tensors {
		if name == header.MetadataKey {
			return nil, fmt.Errorf("%w: tensor name %q is reserved", errs.ErrDuplicateKey, name)
		}
		if t == nil {
			return nil, fmt.Errorf("%w: tensor %q is nil", errs.ErrEmptyTensor, name)
		}
		if _, err := t.DType().Tag(); err != nil {
			return nil, fmt.Errorf("invalid tensor %q: %w", name, err)
		}
		c := t.Contiguous()
		arrays = append(arrays, namedArray{name: name, array: c})
		batch = append(batch, c)
	}

	if err := engine.Eval(batch...); err != nil {
		return nil, fmt.Errorf("failed to evaluate tensors: %w", err)
	}

	for _, a := range arrays {
		n := a.array.NBytes()
		if n == 0 {
			return nil, fmt.Errorf("%w: tensor %q has zero byte size", errs.ErrEmptyTensor, a.name)
		}
		if size := int64(len(a.array.Data())); size != n {
			return nil, fmt.Errorf("tensor %q: expected %d bytes of data, actual %d", a.name, n, size)
		}
	}

	sort.Slice(arrays, func(i, j int) bool {
		l, r := arrays[i], arrays[j]
		ldt, rdt := l.array.DType(), r.array.DType()
		return ldt > rdt || (ldt == rdt && l.name < r.name)
	})
	return arrays, nil
}

// makeHeader assigns contiguous data offsets following the order of arrays.
func makeHeader(arrays []namedArray, metadata map[string]string) (header.Header, error) {
	tm := make(header.TensorMap, len(arrays))
	var offset int64
	for _, a := range arrays {
		end := offset + a.array.NBytes()
		tm[a.name] = header.Tensor{
			Name:        a.name,
			DType:       a.array.DType(),
			Shape:       a.array.Shape(),
			DataOffsets: header.DataOffsets{Begin: offset, End: end},
		}
		offset = end
	}

	var md header.Metadata
	if len(metadata) > 0 {
		md = make(header.Metadata, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
	}

	h := header.Header{Tensors: tm, Metadata: md}
	if err := h.Validate(offset); err != nil {
		return header.Header{}, fmt.Errorf("invalid safetensors header: %w", err)
	}
	return h, nil
}
