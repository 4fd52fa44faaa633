// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import "github.com/goccy/go-json"

// The Shape of a tensor. An empty shape describes a scalar.
type Shape []int

// MarshalJSON prevents a nil Shape to be serialized as "null",
// preferring an empty array "[]" instead. This allows the JSON
// value to be compliant with safetensors format.
func (s Shape) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(s))
}

// NumElements returns the product of all dimensions, 1 for a scalar.
// It returns false on overflow or if any dimension is negative.
func (s Shape) NumElements() (int64, bool) {
	n, err := tensorSizeFromShape(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
