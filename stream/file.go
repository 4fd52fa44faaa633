// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var errClosed = os.ErrClosed

const (
	// DefaultChunkSize is the size of the pieces a large FileReader.ReadAt
	// call is split into.
	DefaultChunkSize = 8 << 20
)

// FileReader is a Reader over a regular file.
//
// Reads larger than the chunk size are split into chunks which are read
// in parallel, each with its own positional read.
type FileReader struct {
	f         *os.File
	size      int64
	chunkSize int
	workers   int
	closed    atomic.Bool
}

// FileReaderOption configures a FileReader.
type FileReaderOption func(*FileReader)

// WithChunkSize sets the size of parallel read chunks. Non-positive values
// disable splitting.
func WithChunkSize(n int) FileReaderOption {
	return func(r *FileReader) { r.chunkSize = n }
}

// WithReadWorkers limits the number of concurrent chunk reads.
func WithReadWorkers(n int) FileReaderOption {
	return func(r *FileReader) {
		if n > 0 {
			r.workers = n
		}
	}
}

// OpenFile opens the named file for reading.
func OpenFile(path string, opts ...FileReaderOption) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	r := &FileReader{
		f:         f,
		size:      fi.Size(),
		chunkSize: DefaultChunkSize,
		workers:   runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ReadAt satisfies io.ReaderAt interface.
func (r *FileReader) ReadAt(p []byte, off int64) (int, error) {
	if r.closed.Load() {
		return 0, errClosed
	}
	if r.chunkSize <= 0 || len(p) <= r.chunkSize {
		return r.f.ReadAt(p, off)
	}

	numChunks := (len(p) + r.chunkSize - 1) / r.chunkSize
	counts := make([]int, numChunks)

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i := 0; i < numChunks; i++ {
		begin := i * r.chunkSize
		end := min(begin+r.chunkSize, len(p))
		g.Go(func() error {
			n, err := r.f.ReadAt(p[begin:end], off+int64(begin))
			counts[i] = n
			return err
		})
	}
	err := g.Wait()

	// only the contiguous prefix of fully read chunks counts as read
	n := 0
	for i, c := range counts {
		n += c
		if c < r.chunkSize && i < numChunks-1 {
			break
		}
	}
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Label returns the file path.
func (r *FileReader) Label() string { return r.f.Name() }

// Good reports whether the file is still open.
func (r *FileReader) Good() bool { return !r.closed.Load() }

// Size returns the size of the file at opening time.
func (r *FileReader) Size() int64 { return r.size }

// Close closes the file.
func (r *FileReader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.f.Close()
}

// FileWriter is a buffered Writer over a file.
type FileWriter struct {
	f      *os.File
	bw     *bufio.Writer
	closed bool
}

// CreateFile creates or truncates the named file for writing.
func CreateFile(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{f: f, bw: bufio.NewWriterSize(f, 1<<20)}, nil
}

// Write satisfies io.Writer interface.
func (w *FileWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errClosed
	}
	return w.bw.Write(p)
}

// Label returns the file path.
func (w *FileWriter) Label() string { return w.f.Name() }

// IsOpen reports whether Close has not been called yet.
func (w *FileWriter) IsOpen() bool { return !w.closed }

// Close flushes buffered data, syncs and closes the file.
func (w *FileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.bw.Flush()
	if err == nil {
		err = w.f.Sync()
	}
	if e := w.f.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
