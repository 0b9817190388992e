// Copyright 2023 The h5scan Authors.
// SPDX-License-Identifier: Apache-2.0

// Package errors wraps pkg/errors and adds string error codes so that
// callers can classify a failure without matching on message text.
package errors

import (
	"github.com/pkg/errors"
)

// Code is an error code which can be checked against a given error with
// Is(). Structural problems found in a column are reported as coded errors
// so a malformed column can be identified precisely and skipped without
// aborting the scan of its siblings.
type Code string

const (
	ErrUncoded Code = "Uncoded"

	// Column structure codes. Produced by the run-start validator and the
	// column loaders; each names the first structural violation found.
	ErrNonIncreasingRunStarts Code = "NonIncreasingRunStarts"
	ErrSizeMismatch           Code = "SizeMismatch"
	ErrExceedsLength          Code = "ExceedsLength"
	ErrNonIntegerRunStarts    Code = "NonIntegerRunStarts"
	ErrMissingInitialRun      Code = "MissingInitialRun"
	ErrUnsupportedColumnType  Code = "UnsupportedColumnType"

	// Metadata codes surfaced while resolving table layout.
	ErrUnsupportedAttributeType Code = "UnsupportedAttributeType"
	ErrRowCountMismatch         Code = "RowCountMismatch"
)

// New returns an error carrying the given code, annotated with a stack
// trace at the point New was called.
func New(code Code, message string) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
	})
}

// Newf is New with fmt-style formatting of the message.
func Newf(code Code, format string, args ...interface{}) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: errors.Errorf(format, args...).Error(),
	})
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Is reports whether any error in err's chain carries the target code.
func Is(err error, target Code) bool {
	match := codedError{
		Code: target,
	}
	return errors.Is(err, match)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func WithMessage(err error, message string) error {
	return errors.WithMessage(err, message)
}

func WithMessagef(err error, format string, args ...interface{}) error {
	return errors.WithMessagef(err, format, args...)
}

func WithStack(err error) error {
	return errors.WithStack(err)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, fmt string, args ...interface{}) error {
	return errors.Wrapf(err, fmt, args...)
}

// CodeOf returns the code carried by err, or ErrUncoded if the chain has
// none.
func CodeOf(err error) Code {
	var ce codedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrUncoded
}

// codedError is the fundamental type used by this package to provide coded
// errors.
type codedError struct {
	Code    Code
	Message string
}

func (ce codedError) Error() string {
	return ce.Message
}

func (ce codedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}
