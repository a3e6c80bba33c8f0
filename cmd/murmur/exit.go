package main

import (
	"errors"
	"strings"
)

const (
	exitFailure     = 1
	exitUsage       = 2
	exitNotFound    = 3
	exitConflict    = 4
	exitUnavailable = 5
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps an error onto a process exit status. RPC errors arrive as
// plain strings, so the sentinel prefixes are matched by text.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded *exitError
	if errors.As(err, &coded) {
		return coded.code
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "not found"):
		return exitNotFound
	case strings.HasPrefix(msg, "invalid state"):
		return exitConflict
	case strings.HasPrefix(msg, "invalid config"), strings.HasPrefix(msg, "unknown "):
		return exitUsage
	default:
		return exitFailure
	}
}
