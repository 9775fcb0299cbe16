package runner

import (
	"errors"
	"sync"
	"time"

	"github.com/deixis/gitrun/internal/sink"
)

// Result is the outcome of one command. It is immutable except for Close,
// which releases the captured output.
type Result struct {
	id       string
	argv     []string
	dir      string
	pid      int
	exitCode int
	failure  error
	started  time.Time
	duration time.Duration

	stdout sink.Writer
	stderr sink.Writer

	closeOnce sync.Once
	closeErr  error
}

// RunID returns the unique identifier of this run.
func (r *Result) RunID() string { return r.id }

// Argv returns the argument vector that was run.
func (r *Result) Argv() []string { return append([]string(nil), r.argv...) }

// Dir returns the resolved working directory.
func (r *Result) Dir() string { return r.dir }

// Pid returns the process id, or 0 if the process never started.
func (r *Result) Pid() int { return r.pid }

// ExitCode returns the process exit status, or -1 if there is none.
func (r *Result) ExitCode() int { return r.exitCode }

// Failure returns why the command could not be run to a verifiable
// completion, or nil. Match it with errors.As against *LaunchError,
// *TimeoutError, *CanceledError and *DrainError. A non-zero exit code is
// not a failure.
func (r *Result) Failure() error { return r.failure }

// Succeeded reports whether the command exited 0 with no failure.
func (r *Result) Succeeded() bool { return r.failure == nil && r.exitCode == 0 }

// StartedAt returns when the run began.
func (r *Result) StartedAt() time.Time { return r.started }

// Duration returns the wall-clock time the run took.
func (r *Result) Duration() time.Duration { return r.duration }

// Stdout returns the captured standard output.
func (r *Result) Stdout() sink.Sink { return r.stdout }

// Stderr returns the captured standard error.
func (r *Result) Stderr() sink.Sink { return r.stderr }

// Close releases both sinks, removing any spool files. Only the first call
// has an effect.
func (r *Result) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = errors.Join(r.stdout.Close(), r.stderr.Close())
	})
	return r.closeErr
}
