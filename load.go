// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stcodec

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/nlpodyssey/stcodec/errs"
	"github.com/nlpodyssey/stcodec/header"
	"github.com/nlpodyssey/stcodec/stream"
	"github.com/nlpodyssey/stcodec/tensor"
)

// Archive is the decoded content of a safetensors stream: the header and
// one lazy tensor for each header entry.
//
// No tensor data is read until a tensor is evaluated, either directly
// or through a tensor.Engine. The stream must remain readable as long
// as tensors are evaluated.
type Archive struct {
	label   string
	header  header.Header
	tensors map[string]*tensor.Lazy
}

// Load reads and validates the header of a safetensors stream, returning
// an Archive of lazy tensors.
//
// If r implements stream.Sizer, data offsets are also checked against the
// actual payload size.
func Load(r stream.Reader, opts ...Option) (*Archive, error) {
	return load(r, newConfig(opts))
}

// Decode is like Load, reading from an in-memory buffer.
func Decode(b []byte, opts ...Option) (*Archive, error) {
	return Load(stream.NewBytesReader(b, "<memory>"), opts...)
}

func load(r stream.Reader, cfg config) (*Archive, error) {
	label := r.Label()
	if !r.Good() {
		return nil, errs.Wrap("load", label, errs.ErrNotOpen)
	}

	h, err := header.Read(io.NewSectionReader(r, 0, math.MaxInt64), cfg.headerLimit)
	if err != nil {
		return nil, errs.Wrap("load", label, fmt.Errorf("failed to read safetensors header: %w", err))
	}

	payloadSize := int64(-1)
	if s, ok := r.(stream.Sizer); ok {
		payloadSize = s.Size() - h.PayloadOffset()
	}
	if err = h.Validate(payloadSize); err != nil {
		return nil, errs.Wrap("load", label, fmt.Errorf("invalid safetensors header: %w", err))
	}

	tensors := make(map[string]*tensor.Lazy, len(h.Tensors))
	for name, t := range h.Tensors {
		prim := &readPrimitive{
			r:      r,
			label:  label,
			name:   name,
			offset: h.PayloadOffset() + t.DataOffsets.Begin,
			size:   t.ByteSize(),
		}
		l, err := tensor.NewLazy(t.DType, t.Shape, prim)
		if err != nil {
			return nil, errs.Wrap("load", label, fmt.Errorf("invalid tensor %q: %w", name, err))
		}
		tensors[name] = l
	}

	cfg.logger.Debug("header decoded",
		slog.String("label", label),
		slog.Uint64("header_length", h.Length),
		slog.Int("tensors", len(tensors)),
		slog.Int("metadata", len(h.Metadata)))

	return &Archive{label: label, header: h, tensors: tensors}, nil
}

// Label returns the label of the stream the archive was loaded from.
func (a *Archive) Label() string { return a.label }

// Header returns a copy of the decoded header.
func (a *Archive) Header() header.Header { return a.header.Clone() }

// Len returns the number of tensors.
func (a *Archive) Len() int { return len(a.tensors) }

// Names returns the tensor names, sorted in ascending order.
func (a *Archive) Names() []string { return a.header.Names() }

// Tensor returns the named tensor, if present.
func (a *Archive) Tensor(name string) (*tensor.Lazy, bool) {
	t, ok := a.tensors[name]
	return t, ok
}

// Tensors returns a new map with all tensors.
func (a *Archive) Tensors() map[string]*tensor.Lazy {
	m := make(map[string]*tensor.Lazy, len(a.tensors))
	for k, v := range a.tensors {
		m[k] = v
	}
	return m
}

// Metadata returns a copy of the free-form metadata, or nil if there is none.
func (a *Archive) Metadata() map[string]string {
	if len(a.header.Metadata) == 0 {
		return nil
	}
	m := make(map[string]string, len(a.header.Metadata))
	for k, v := range a.header.Metadata {
		m[k] = v
	}
	return m
}

// readPrimitive reads the data of one tensor from the payload.
type readPrimitive struct {
	r      io.ReaderAt
	label  string
	name   string
	offset int64
	size   int64
}

func (p *readPrimitive) Name() string {
	return fmt.Sprintf("read %s[%d:%d]", p.label, p.offset, p.offset+p.size)
}

func (p *readPrimitive) SideEffects() bool { return true }

func (p *readPrimitive) Run() ([]byte, error) {
	if g, ok := p.r.(stream.Reader); ok && !g.Good() {
		return nil, errs.Wrap("read", p.label, fmt.Errorf("tensor %q: %w", p.name, errs.ErrNotOpen))
	}
	buf := make([]byte, p.size)
	n, err := p.r.ReadAt(buf, p.offset)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, errs.Wrap("read", p.label,
		fmt.Errorf("%w: tensor %q: got %d of %d bytes at offset %d: %w", errs.ErrReadFailed, p.name, n, p.size, p.offset, err))
}
