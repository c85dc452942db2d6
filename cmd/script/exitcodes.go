package main

import (
	"errors"
	"fmt"
)

// Exit codes:
//
// * ExitSuccess (0): every check passed
// * ExitTestFailure (1): one or more checks failed
// * ExitRuntimeErr (2): the run could not start (bad config, unreadable files)
const (
	ExitSuccess     = 0
	ExitTestFailure = 1
	ExitRuntimeErr  = 2
)

// RuntimeError is an operational error that leads to exit code 2.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError reports whether err is or wraps a RuntimeError.
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError signals that the run finished with failed checks.
type TestFailureError struct {
	Failed int
	Total  int
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("%d/%d checks failed", e.Failed, e.Total)
}

func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// exitCode maps an error returned by a command to the process exit code.
// Anything that is not a check failure (flag parsing, config, listener errors)
// is treated as a runtime error.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case IsTestFailureError(err):
		return ExitTestFailure
	default:
		return ExitRuntimeErr
	}
}
