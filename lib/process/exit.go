// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitError attaches an exit status to an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit status.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// WithCode wraps err with an exit status. A nil err stays nil.
func WithCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// Code returns the exit status for err: 0 for nil, the code of the
// first ExitCode() in the chain, otherwise 1.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

// Report writes "error: err" to w unless err is nil. An ExitError
// with no message writes nothing.
func Report(w io.Writer, err error) {
	if err == nil {
		return
	}
	var exit *ExitError
	if errors.As(err, &exit) && exit.Err == nil {
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

// Exit reports err on stderr and exits with its status. It returns
// normally when err is nil.
func Exit(err error) {
	if err == nil {
		return
	}
	Report(os.Stderr, err)
	os.Exit(Code(err))
}
