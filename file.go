// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stcodec

import (
	"fmt"
	"strings"

	"github.com/nlpodyssey/stcodec/errs"
	"github.com/nlpodyssey/stcodec/stream"
	"github.com/nlpodyssey/stcodec/tensor"
)

// Extension is the conventional file name extension of safetensors files.
const Extension = ".safetensors"

// File is an Archive loaded from a file which stays open until Close.
type File struct {
	*Archive
	r stream.ReadCloser
}

// Open opens the named file and loads it with Load.
func Open(path string, opts ...Option) (*File, error) {
	cfg := newConfig(opts)

	var (
		r   stream.ReadCloser
		err error
	)
	if cfg.mmap {
		r, err = stream.OpenMmap(path)
	} else {
		r, err = stream.OpenFile(path, stream.WithReadWorkers(cfg.workers))
	}
	if err != nil {
		return nil, errs.Wrap("open", path, fmt.Errorf("%w: %w", errs.ErrNotOpen, err))
	}

	a, err := load(r, cfg)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return &File{Archive: a, r: r}, nil
}

// Close releases the file. Tensors not yet evaluated cannot be evaluated
// anymore.
func (f *File) Close() error {
	return f.r.Close()
}

// NormalizePath appends Extension to path unless it already ends with it.
func NormalizePath(path string) string {
	if strings.HasSuffix(path, Extension) {
		return path
	}
	return path + Extension
}

// SaveFile is like Save, writing to the named file, whose path is
// normalized with NormalizePath. The file is created or truncated.
func SaveFile(path string, tensors map[string]tensor.Array, metadata map[string]string, opts ...Option) error {
	path = NormalizePath(path)
	w, err := stream.CreateFile(path)
	if err != nil {
		return errs.Wrap("save", path, fmt.Errorf("%w: %w", errs.ErrNotOpen, err))
	}
	err = Save(w, tensors, metadata, opts...)
	if e := w.Close(); e != nil && err == nil {
		err = errs.Wrap("save", path, fmt.Errorf("%w: %w", errs.ErrWriteFailed, e))
	}
	return err
}
