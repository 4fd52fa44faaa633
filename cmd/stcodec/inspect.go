// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/nlpodyssey/stcodec"
	"github.com/nlpodyssey/stcodec/header"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

type tensorReport struct {
	Name        string   `json:"name" yaml:"name"`
	DType       string   `json:"dtype" yaml:"dtype"`
	Shape       []int    `json:"shape" yaml:"shape,flow"`
	DataOffsets [2]int64 `json:"data_offsets" yaml:"data_offsets,flow"`
}

type inspectReport struct {
	File         string            `json:"file" yaml:"file"`
	HeaderLength uint64            `json:"header_length" yaml:"header_length"`
	PayloadSize  int64             `json:"payload_size" yaml:"payload_size"`
	Metadata     map[string]string `json:"metadata" yaml:"metadata"`
	Tensors      []tensorReport    `json:"tensors" yaml:"tensors"`
}

func inspectCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header of a safetensors file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "table|json|yaml",
				Value:   "table",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args, err := requireArgs(cmd, "FILE")
			if err != nil {
				return err
			}

			f, err := stcodec.Open(args[0], stcodec.WithLogger(e.logger))
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			report := newInspectReport(f.Label(), f.Header())
			switch cmd.String("format") {
			case "table":
				return writeTable(cmd.Root().Writer, report)
			case "json":
				b, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.Root().Writer, "%s\n", b)
				return err
			case "yaml":
				enc := yaml.NewEncoder(cmd.Root().Writer)
				enc.SetIndent(2)
				if err := enc.Encode(report); err != nil {
					return err
				}
				return enc.Close()
			}
			return fmt.Errorf("unknown format %q", cmd.String("format"))
		},
	}
}

func newInspectReport(file string, h header.Header) inspectReport {
	ts := h.Tensors.TensorSlice()
	sort.Sort(header.TensorSliceByDataOffsets{TensorSlice: ts})

	r := inspectReport{
		File:         file,
		HeaderLength: h.Length,
		PayloadSize:  h.PayloadSize(),
		Metadata:     h.Metadata,
		Tensors:      make([]tensorReport, len(ts)),
	}
	if r.Metadata == nil {
		r.Metadata = map[string]string{}
	}
	for i, t := range ts {
		shape := []int(t.Shape)
		if shape == nil {
			shape = []int{}
		}
		r.Tensors[i] = tensorReport{
			Name:        t.Name,
			DType:       t.DType.String(),
			Shape:       shape,
			DataOffsets: [2]int64{t.DataOffsets.Begin, t.DataOffsets.End},
		}
	}
	return r
}

func writeTable(w io.Writer, r inspectReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "file:\t%s\n", r.File)
	fmt.Fprintf(tw, "header length:\t%d\n", r.HeaderLength)
	fmt.Fprintf(tw, "payload size:\t%d\n", r.PayloadSize)

	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "metadata %s:\t%s\n", k, r.Metadata[k])
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "NAME\tDTYPE\tSHAPE\tOFFSETS")
	for _, t := range r.Tensors {
		fmt.Fprintf(tw, "%s\t%s\t%v\t[%d, %d)\n", t.Name, t.DType, t.Shape, t.DataOffsets[0], t.DataOffsets[1])
	}
	return tw.Flush()
}
