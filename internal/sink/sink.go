// Package sink holds the output captured from a child process, either in
// memory or spooled to a temporary file, behind a single read contract.
//
// A sink is written by exactly one owner (the session that created it) and
// finalized once the stream it captures has ended. Callers only read.
package sink

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrSizeExceeded is matched by errors returned from Text when the
	// captured output is larger than the requested cap.
	ErrSizeExceeded = errors.New("output exceeds size cap")

	// ErrClosed is returned by reads and writes on a closed sink.
	ErrClosed = errors.New("sink is closed")

	// ErrFinalized is returned by writes on a finalized sink.
	ErrFinalized = errors.New("sink is finalized")
)

// SizeExceededError reports the actual size of an output that did not fit
// the cap passed to Text. The full output remains readable through Open.
type SizeExceededError struct {
	Size int64
	Max  int64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("output is %d bytes, cap is %d: %v", e.Size, e.Max, ErrSizeExceeded)
}

func (e *SizeExceededError) Unwrap() error { return ErrSizeExceeded }

// Sink is the read side of captured output.
type Sink interface {
	// Size returns the number of bytes captured so far.
	Size() int64

	// Text returns the whole output as a string. If max is zero or
	// negative the sink's own cap applies; a sink without a cap returns
	// everything. Output larger than the cap yields a *SizeExceededError
	// rather than a truncated string.
	Text(max int64) (string, error)

	// Open returns a fresh reader over the whole output. Readers are
	// independent of each other and do not consume the sink.
	Open() (io.ReadCloser, error)

	// Path returns the backing file, or "" for output held in memory.
	Path() string

	// Close releases memory and removes any backing file. It is safe to
	// call more than once.
	Close() error
}

// Writer is the capture side of a sink, held only by its owner.
type Writer interface {
	Sink
	io.Writer

	// Finalize marks the end of the stream. Further writes fail with
	// ErrFinalized.
	Finalize() error
}

// checkCap resolves the effective cap for a Text call and reports whether
// size fits it.
func checkCap(size, max, def int64) error {
	if max <= 0 {
		max = def
	}
	if max > 0 && size > max {
		return &SizeExceededError{Size: size, Max: max}
	}
	return nil
}
