// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stcodec reads and writes the safetensors format.
//
// Load decodes the header of a stream and returns lazy tensors: no tensor
// data is read until a tensor is evaluated. Any stream.Reader can be used,
// including files (Open), memory maps and objects of S3-compatible storages
// (stream.OpenObject).
//
// Save evaluates a set of tensors as a single batch, then writes the header
// followed by the data of every tensor.
package stcodec
