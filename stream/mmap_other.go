// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package stream

// OpenMmap falls back to a FileReader where memory mapping is not
// supported.
func OpenMmap(path string) (ReadCloser, error) {
	return OpenFile(path)
}
