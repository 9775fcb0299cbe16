package runner

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Capture selects where a command's output is kept.
type Capture int

const (
	// CaptureMemory buffers output in memory.
	CaptureMemory Capture = iota
	// CaptureSpool streams output to temporary files.
	CaptureSpool
)

func (c Capture) String() string {
	switch c {
	case CaptureMemory:
		return "memory"
	case CaptureSpool:
		return "spool"
	}
	return fmt.Sprintf("capture(%d)", int(c))
}

// ParseCapture parses "memory" or "spool".
func ParseCapture(s string) (Capture, error) {
	switch strings.ToLower(s) {
	case "", "memory":
		return CaptureMemory, nil
	case "spool":
		return CaptureSpool, nil
	}
	return 0, fmt.Errorf("unknown capture mode %q", s)
}

// Options controls how a command is captured and supervised.
type Options struct {
	Capture   Capture
	MaxOutput int64         // default Text cap for CaptureMemory; 0 means none
	Overflow  bool          // CaptureMemory: spill to disk past MaxOutput
	Timeout   time.Duration // 0 means no timeout
	Env       []string      // appended to the parent environment
}

// InMemory captures output in memory with a default read cap of max bytes.
func InMemory(max int64) Options {
	return Options{Capture: CaptureMemory, MaxOutput: max}
}

// Spooled captures output to temporary files.
func Spooled() Options {
	return Options{Capture: CaptureSpool}
}

// WithTimeout returns a copy of o with the given timeout.
func (o Options) WithTimeout(d time.Duration) Options {
	o.Timeout = d
	return o
}

// Request is a validated, immutable command invocation.
type Request struct {
	dir  string
	argv []string
	opts Options
}

// NewRequest validates an invocation. Violations are programming errors
// and are reported here rather than as a Result failure.
func NewRequest(dir string, argv []string, opts Options) (Request, error) {
	if len(argv) == 0 {
		return Request{}, errors.New("empty argv")
	}
	if argv[0] == "" {
		return Request{}, errors.New("empty program name")
	}
	if opts.Timeout < 0 {
		return Request{}, fmt.Errorf("negative timeout %v", opts.Timeout)
	}
	if opts.MaxOutput < 0 {
		return Request{}, fmt.Errorf("negative max output %d", opts.MaxOutput)
	}
	if opts.Capture != CaptureMemory && opts.Capture != CaptureSpool {
		return Request{}, fmt.Errorf("unknown capture mode %v", opts.Capture)
	}

	opts.Env = append([]string(nil), opts.Env...)
	return Request{
		dir:  dir,
		argv: append([]string(nil), argv...),
		opts: opts,
	}, nil
}

// Dir returns the requested working directory.
func (r Request) Dir() string { return r.dir }

// Argv returns a copy of the argument vector.
func (r Request) Argv() []string { return append([]string(nil), r.argv...) }

// Options returns the capture and supervision options.
func (r Request) Options() Options {
	o := r.opts
	o.Env = append([]string(nil), r.opts.Env...)
	return o
}
