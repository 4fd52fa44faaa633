// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package stream

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// MmapReader is a Reader over a read-only memory mapped file.
type MmapReader struct {
	data   []byte
	label  string
	closed atomic.Bool
}

// OpenMmap maps the named file in memory for reading.
func OpenMmap(path string) (ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	r := &MmapReader{label: path}
	if fi.Size() == 0 {
		return r, nil
	}
	r.data, err = unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %s: %w", path, err)
	}
	return r, nil
}

// ReadAt satisfies io.ReaderAt interface.
func (r *MmapReader) ReadAt(p []byte, off int64) (int, error) {
	if r.closed.Load() {
		return 0, errClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Label returns the file path.
func (r *MmapReader) Label() string { return r.label }

// Good reports whether the mapping is still in place.
func (r *MmapReader) Good() bool { return !r.closed.Load() }

// Size returns the size of the mapped file.
func (r *MmapReader) Size() int64 { return int64(len(r.data)) }

// Close unmaps the file.
func (r *MmapReader) Close() error {
	if r.closed.Swap(true) || r.data == nil {
		return nil
	}
	return unix.Munmap(r.data)
}
