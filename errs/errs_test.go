// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClasses(t *testing.T) {
	testCases := []struct {
		err   error
		class error
	}{
		{ErrNotOpen, ErrIO},
		{ErrReadFailed, ErrIO},
		{ErrWriteFailed, ErrIO},
		{ErrInvalidHeaderLength, ErrFormat},
		{ErrInvalidMetadata, ErrFormat},
		{ErrMissingField, ErrFormat},
		{ErrMalformedEntry, ErrFormat},
		{ErrUnknownType, ErrFormat},
		{ErrUnsupportedType, ErrFormat},
		{ErrDuplicateKey, ErrFormat},
		{ErrInvalidOffsets, ErrFormat},
		{ErrEmptyTensor, ErrValidation},
	}
	classes := []error{ErrIO, ErrFormat, ErrValidation}
	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("%w: details", tc.err)
			assert.ErrorIs(t, wrapped, tc.err)
			for _, c := range classes {
				assert.Equal(t, c == tc.class, errors.Is(wrapped, c), "class %v", c)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap("load", "x", nil))

	err := Wrap("load", "model.safetensors", fmt.Errorf("%w: %q", ErrUnknownType, "ZZZ"))
	assert.EqualError(t, err, `[load] model.safetensors: unknown dtype: "ZZZ"`)
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.ErrorIs(t, err, ErrFormat)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "load", e.Op)
	assert.Equal(t, "model.safetensors", e.Label)

	again := Wrap("save", "other", err)
	assert.Same(t, err, again)
}
