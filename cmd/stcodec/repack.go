// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nlpodyssey/stcodec"
	"github.com/nlpodyssey/stcodec/stream"
	"github.com/nlpodyssey/stcodec/tensor"
	"github.com/urfave/cli/v3"
)

func repackCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "repack",
		Usage:     "Rewrite a safetensors file with canonical layout and edited metadata",
		ArgsUsage: "IN OUT",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "meta", Usage: "set a metadata entry (key=value), repeatable"},
			&cli.BoolFlag{Name: "drop-meta", Usage: "discard the metadata of the input file"},
			&cli.BoolFlag{Name: "mmap", Usage: "memory map the input file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, "IN", "OUT")
			if err != nil {
				return err
			}

			in, err := stcodec.Open(args[0], stcodec.WithLogger(e.logger), stcodec.WithMmap(cmd.Bool("mmap")))
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }()

			metadata := in.Metadata()
			if cmd.Bool("drop-meta") {
				metadata = nil
			}
			for _, kv := range cmd.StringSlice("meta") {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid metadata entry %q: expected key=value", kv)
				}
				if metadata == nil {
					metadata = make(map[string]string)
				}
				metadata[k] = v
			}

			tensors := make(map[string]tensor.Array, in.Len())
			for name, l := range in.Tensors() {
				tensors[name] = l
			}

			out := stcodec.NormalizePath(args[1])
			if err = saveAtomic(out, tensors, metadata, stcodec.WithLogger(e.logger)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "%d tensors written to %s\n", len(tensors), out)
			return nil
		},
	}
}

// saveAtomic writes to a temporary file in the same directory of path,
// renamed to path only on success.
func saveAtomic(path string, tensors map[string]tensor.Array, metadata map[string]string, opts ...stcodec.Option) (err error) {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	w, err := stream.CreateFile(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	err = stcodec.Save(w, tensors, metadata, opts...)
	if e := w.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
