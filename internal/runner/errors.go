package runner

import (
	"errors"
	"fmt"
	"time"
)

// LaunchError reports a command that could not be started. A result with a
// LaunchError has no exit code and empty output.
type LaunchError struct {
	Op    string // step that failed, e.g. "resolve dir" or "start"
	Dir   string
	Argv0 string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s in %q: %s: %v", e.Argv0, e.Dir, e.Op, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// TimeoutError reports a command killed because it ran past its timeout.
// Output captured before the kill is kept.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %v", e.Timeout)
}

// CanceledError reports a command killed because its context ended.
type CanceledError struct {
	Err error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("command canceled: %v", e.Err)
}

func (e *CanceledError) Unwrap() error { return e.Err }

// DrainError reports an I/O failure while copying one output stream. The
// other stream is unaffected.
type DrainError struct {
	Stream string // "stdout" or "stderr"
	Err    error
}

func (e *DrainError) Error() string {
	return fmt.Sprintf("draining %s: %v", e.Stream, e.Err)
}

func (e *DrainError) Unwrap() error { return e.Err }

// FailureKind names the most significant failure in err: "launch",
// "timeout", "canceled" or "drain". It returns "" for a nil error.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		le *LaunchError
		te *TimeoutError
		ce *CanceledError
		de *DrainError
	)
	switch {
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &ce):
		return "canceled"
	case errors.As(err, &le):
		return "launch"
	case errors.As(err, &de):
		return "drain"
	}
	return "unknown"
}
