// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stcodec

import (
	"log/slog"

	"github.com/nlpodyssey/stcodec/tensor"
)

// Option configures Load, Open, Save and related functions.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	engine      *tensor.Engine
	headerLimit uint64
	mmap        bool
	workers     int
}

// WithLogger sets the logger for debug events. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithEngine sets the Engine evaluating tensors before they are saved.
// When not set, a new Engine is created honoring WithWorkers and WithLogger.
func WithEngine(e *tensor.Engine) Option {
	return func(c *config) { c.engine = e }
}

// WithHeaderLimit refuses headers longer than n bytes. It can only lower
// the format limit header.MaxLength. Zero means no extra limit.
func WithHeaderLimit(n uint64) Option {
	return func(c *config) { c.headerLimit = n }
}

// WithMmap makes Open memory map the file instead of reading it with
// positional reads.
func WithMmap(enabled bool) Option {
	return func(c *config) { c.mmap = enabled }
}

// WithWorkers limits the concurrency of tensor evaluation and of
// parallel file reads.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.engine == nil {
		c.engine = tensor.NewEngine(tensor.WithWorkers(c.workers), tensor.WithLogger(c.logger))
	}
	return c
}
