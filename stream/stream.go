// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stream provides the byte sources and sinks safetensors data is
// read from and written to.
//
// Readers are random access (io.ReaderAt): tensor data is fetched lazily,
// possibly from multiple goroutines at distinct offsets, long after the
// header has been decoded. Every implementation in this package is safe for
// concurrent ReadAt calls, but not for ReadAt concurrent with Close.
package stream

import (
	"bytes"
	"io"
	"sync/atomic"
)

// Reader is a random access source of safetensors data.
type Reader interface {
	io.ReaderAt
	// Label returns a human-readable name of the stream, such as a file
	// path, used to decorate error messages.
	Label() string
	// Good reports whether the stream is open and readable.
	Good() bool
}

// Sizer is implemented by readers which know the total size of their data.
type Sizer interface {
	Size() int64
}

// ReadCloser is a Reader of known size which must be closed after use.
type ReadCloser interface {
	Reader
	Sizer
	io.Closer
}

// Writer is a sequential sink of safetensors data.
type Writer interface {
	io.Writer
	// Label returns a human-readable name of the stream.
	Label() string
	// IsOpen reports whether the stream is open and writable.
	IsOpen() bool
}

// BytesReader is a Reader over an in-memory byte slice.
type BytesReader struct {
	r     *bytes.Reader
	label string
}

// NewBytesReader returns a new BytesReader reading from b.
// The slice is not copied.
func NewBytesReader(b []byte, label string) *BytesReader {
	return &BytesReader{r: bytes.NewReader(b), label: label}
}

// ReadAt satisfies io.ReaderAt interface.
func (r *BytesReader) ReadAt(p []byte, off int64) (int, error) {
	return r.r.ReadAt(p, off)
}

// Label returns the label given at creation.
func (r *BytesReader) Label() string { return r.label }

// Good always returns true.
func (r *BytesReader) Good() bool { return true }

// Size returns the length of the underlying byte slice.
func (r *BytesReader) Size() int64 { return r.r.Size() }

// BufferWriter is a Writer accumulating data in memory.
type BufferWriter struct {
	buf    bytes.Buffer
	label  string
	closed atomic.Bool
}

// NewBufferWriter returns a new empty BufferWriter.
func NewBufferWriter(label string) *BufferWriter {
	return &BufferWriter{label: label}
}

// Write satisfies io.Writer interface. It fails with os.ErrClosed once
// the writer has been closed.
func (w *BufferWriter) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, errClosed
	}
	return w.buf.Write(p)
}

// Bytes returns the data written so far. The slice is not copied.
func (w *BufferWriter) Bytes() []byte { return w.buf.Bytes() }

// Label returns the label given at creation.
func (w *BufferWriter) Label() string { return w.label }

// IsOpen reports whether Close has not been called yet.
func (w *BufferWriter) IsOpen() bool { return !w.closed.Load() }

// Close marks the writer as closed; the written data stays available.
func (w *BufferWriter) Close() error {
	w.closed.Store(true)
	return nil
}
