// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs defines the errors reported while decoding or encoding
// safetensors data.
//
// Errors are organized in three classes: ErrIO, ErrFormat and ErrValidation.
// Every specific error value belongs to exactly one class, so that both
//
//	errors.Is(err, errs.ErrUnknownType)
//	errors.Is(err, errs.ErrFormat)
//
// report true for an unknown dtype tag found in a header.
package errs

import (
	"errors"
	"fmt"
)

// Error classes.
var (
	// ErrIO is the class of stream failures: not open, read or write failures
	// and underruns.
	ErrIO = errors.New("I/O error")
	// ErrFormat is the class of malformed or unsupported safetensors content.
	ErrFormat = errors.New("format error")
	// ErrValidation is the class of tensors which cannot be represented by
	// the safetensors format.
	ErrValidation = errors.New("validation error")
)

// I/O errors.
var (
	ErrNotOpen     = newClassified(ErrIO, "stream is not open")
	ErrReadFailed  = newClassified(ErrIO, "read failed")
	ErrWriteFailed = newClassified(ErrIO, "write failed")
)

// Format errors.
var (
	ErrInvalidHeaderLength = newClassified(ErrFormat, "invalid header length")
	ErrInvalidMetadata     = newClassified(ErrFormat, "invalid header")
	ErrMissingField        = newClassified(ErrFormat, "missing field")
	ErrMalformedEntry      = newClassified(ErrFormat, "malformed entry")
	ErrUnknownType         = newClassified(ErrFormat, "unknown dtype")
	ErrUnsupportedType     = newClassified(ErrFormat, "unsupported dtype")
	ErrDuplicateKey        = newClassified(ErrFormat, "duplicate key")
	ErrInvalidOffsets      = newClassified(ErrFormat, "invalid data offsets")
)

// Validation errors.
var (
	ErrEmptyTensor = newClassified(ErrValidation, "empty tensor")
)

type classified struct {
	class error
	msg   string
}

func newClassified(class error, msg string) error {
	return &classified{class: class, msg: msg}
}

func (e *classified) Error() string {
	return e.msg
}

// Is reports whether target is the class of e.
func (e *classified) Is(target error) bool {
	return target == e.class
}

// Error decorates a failure with the operation being performed and the
// human-readable label of the stream involved.
type Error struct {
	// Op is the failed operation, such as "load" or "save".
	Op string
	// Label identifies the stream, usually a file path.
	Label string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Op, e.Label, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err decorated with op and label. It returns nil if err is nil.
// An err which is already an *Error is returned unchanged.
func Wrap(op, label string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Op: op, Label: label, Err: err}
}
