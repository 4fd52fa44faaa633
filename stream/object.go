// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
)

// ObjectReader is a Reader over an object of an S3-compatible storage.
//
// Every ReadAt call performs a ranged GET request, so that lazily loaded
// tensors only transfer their own bytes.
type ObjectReader struct {
	ctx    context.Context
	client *minio.Client
	bucket string
	key    string
	size   int64
	closed atomic.Bool
}

// OpenObject returns a new ObjectReader for the given bucket and key.
// The object must exist. The context is used for all subsequent requests.
func OpenObject(ctx context.Context, client *minio.Client, bucket, key string) (*ObjectReader, error) {
	info, err := client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}
	return &ObjectReader{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		key:    key,
		size:   info.Size,
	}, nil
}

// ReadAt satisfies io.ReaderAt interface.
func (r *ObjectReader) ReadAt(p []byte, off int64) (int, error) {
	if r.closed.Load() {
		return 0, errClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	if end >= r.size {
		end = r.size - 1
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, end); err != nil {
		return 0, err
	}

	obj, err := r.client.GetObject(r.ctx, r.bucket, r.key, opts)
	if err != nil {
		return 0, err
	}
	defer func() { _ = obj.Close() }()

	n, err := io.ReadFull(obj, p[:end-off+1])
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Label returns the object location as "s3://bucket/key".
func (r *ObjectReader) Label() string {
	return "s3://" + path.Join(r.bucket, r.key)
}

// Good reports whether Close has not been called yet.
func (r *ObjectReader) Good() bool { return !r.closed.Load() }

// Size returns the object size.
func (r *ObjectReader) Size() int64 { return r.size }

// Close releases the reader. No connection is kept open between reads.
func (r *ObjectReader) Close() error {
	r.closed.Store(true)
	return nil
}
