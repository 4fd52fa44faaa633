// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nlpodyssey/stcodec/dtype"
	"github.com/nlpodyssey/stcodec/errs"
)

// A Primitive computes the data of a Lazy array.
type Primitive interface {
	// Name briefly describes the primitive, for logging.
	Name() string
	// SideEffects reports whether Run performs I/O or other effects, making
	// the computation not shareable across process boundaries nor safely
	// repeatable.
	SideEffects() bool
	// Run produces the row-major bytes of the array.
	Run() ([]byte, error)
}

// Lazy is an Array whose data is produced by a Primitive on first
// evaluation. Type and shape are known in advance, so that inspecting a
// Lazy array never triggers its computation.
//
// The Primitive runs at most once, even when Eval is called concurrently;
// both the resulting data and error are retained.
type Lazy struct {
	dType  dtype.DType
	shape  []int
	nBytes int64
	prim   Primitive

	once sync.Once
	done atomic.Bool
	data []byte
	err  error
}

var _ Array = &Lazy{}

// NewLazy returns a new unevaluated array computed by prim.
func NewLazy(dt dtype.DType, shape []int, prim Primitive) (*Lazy, error) {
	size, err := byteSize(dt, shape)
	if err != nil {
		return nil, err
	}
	return &Lazy{
		dType:  dt,
		shape:  copyShape(shape),
		nBytes: int64(size),
		prim:   prim,
	}, nil
}

// DType returns the data type of the array.
func (l *Lazy) DType() dtype.DType { return l.dType }

// Shape returns a copy of the array dimensions.
func (l *Lazy) Shape() []int { return copyShape(l.shape) }

// NBytes returns the byte size the data will have once evaluated.
func (l *Lazy) NBytes() int64 { return l.nBytes }

// Primitive returns the primitive computing the array data.
func (l *Lazy) Primitive() Primitive { return l.prim }

// Contiguous returns l: primitives always produce row-major data.
func (l *Lazy) Contiguous() Array { return l }

// Evaluated reports whether the data was successfully computed.
func (l *Lazy) Evaluated() bool {
	return l.done.Load() && l.err == nil
}

// Data returns the computed data, or nil if not evaluated.
func (l *Lazy) Data() []byte {
	if !l.Evaluated() {
		return nil
	}
	return l.data
}

// Eval runs the primitive, unless it already ran, and returns its error.
// Prefer Engine.Eval to evaluate multiple arrays at once.
func (l *Lazy) Eval() error {
	l.once.Do(func() {
		data, err := l.prim.Run()
		if err == nil && int64(len(data)) != l.nBytes {
			err = fmt.Errorf("%w: %s produced %d bytes, expected %d", errs.ErrReadFailed, l.prim.Name(), len(data), l.nBytes)
		}
		if err != nil {
			data = nil
		}
		l.data, l.err = data, err
		l.done.Store(true)
	})
	return l.err
}
