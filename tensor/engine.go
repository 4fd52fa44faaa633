// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Evaluator is an Array which can compute its own data.
type Evaluator interface {
	Array
	Eval() error
}

// Engine evaluates deferred arrays in batches.
type Engine struct {
	workers int
	logger  *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkers limits the number of arrays evaluated concurrently.
// Non-positive values are ignored.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger used for debug events.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine returns a new Engine. By default, it evaluates up to
// GOMAXPROCS arrays at once and does not log.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine()

// DefaultEngine returns the Engine shared by callers which do not provide
// their own.
func DefaultEngine() *Engine { return defaultEngine }

// Eval evaluates all the given arrays as a single batch, returning only
// when every one of them has completed. Arrays which are already evaluated
// are skipped. The first error encountered is returned; the other arrays of
// the batch are still run to completion.
func (e *Engine) Eval(arrays ...Array) error {
	pending := make([]Evaluator, 0, len(arrays))
	effects := 0
	for _, a := range arrays {
		if a.Evaluated() {
			continue
		}
		ev, ok := a.(Evaluator)
		if !ok {
			return fmt.Errorf("array of type %T is not evaluated and cannot be evaluated", a)
		}
		if l, ok := ev.(*Lazy); ok && l.prim.SideEffects() {
			effects++
		}
		pending = append(pending, ev)
	}
	if len(pending) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, ev := range pending {
		g.Go(ev.Eval)
	}
	err := g.Wait()

	e.logger.Debug("batch evaluated",
		slog.Int("arrays", len(pending)),
		slog.Int("side_effects", effects),
		slog.Any("error", err))
	return err
}
