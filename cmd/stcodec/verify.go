// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/nlpodyssey/stcodec"
	"github.com/nlpodyssey/stcodec/dtype"
	"github.com/nlpodyssey/stcodec/float16"
	"github.com/nlpodyssey/stcodec/tensor"
	"github.com/urfave/cli/v3"
)

func verifyCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Read all tensors of a safetensors file and check floating point values",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "mmap", Usage: "memory map the file"},
			&cli.IntFlag{Name: "workers", Usage: "concurrent tensor reads (0 = GOMAXPROCS)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, "FILE")
			if err != nil {
				return err
			}

			f, err := stcodec.Open(args[0],
				stcodec.WithLogger(e.logger),
				stcodec.WithMmap(cmd.Bool("mmap")),
				stcodec.WithWorkers(int(cmd.Int("workers"))))
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			names := f.Names()
			batch := make([]tensor.Array, len(names))
			for i, name := range names {
				batch[i], _ = f.Tensor(name)
			}
			engine := tensor.NewEngine(tensor.WithWorkers(int(cmd.Int("workers"))), tensor.WithLogger(e.logger))
			if err = engine.Eval(batch...); err != nil {
				return err
			}

			w := cmd.Root().Writer
			total := 0
			for i, name := range names {
				n, err := countNonFinite(batch[i])
				if err != nil {
					return fmt.Errorf("tensor %q: %w", name, err)
				}
				if n > 0 {
					e.logger.Warn("non-finite values", slog.String("tensor", name), slog.Int("count", n))
					fmt.Fprintf(w, "%s: %d non-finite values\n", name, n)
				}
				total += n
			}

			fmt.Fprintf(w, "%d tensors verified\n", len(names))
			if total > 0 {
				return fmt.Errorf("found %d non-finite values", total)
			}
			return nil
		},
	}
}

// countNonFinite counts NaN and infinite values of a floating point array.
// It returns zero for any other dtype.
func countNonFinite(a tensor.Array) (int, error) {
	switch a.DType() {
	case dtype.F16:
		return countWith(a, func(v float16.F16) bool { return nonFinite(v.Float32()) })
	case dtype.BF16:
		return countWith(a, func(v float16.BF16) bool { return nonFinite(v.Float32()) })
	case dtype.F32:
		return countWith(a, nonFinite)
	case dtype.C64:
		return countWith(a, func(v complex64) bool { return nonFinite(real(v)) || nonFinite(imag(v)) })
	}
	return 0, nil
}

func countWith[T dtype.Element](a tensor.Array, bad func(T) bool) (int, error) {
	values, err := tensor.ToSlice[T](a)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range values {
		if bad(v) {
			n++
		}
	}
	return n, nil
}

func nonFinite(v float32) bool {
	f := float64(v)
	return math.IsNaN(f) || math.IsInf(f, 0)
}
