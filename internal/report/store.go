// Package report keeps a history of command runs. Finished runs are
// recorded as plain metadata; recent runs also keep their live output so it
// can be read back later.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/deixis/gitrun/internal/runner"
	"github.com/deixis/gitrun/internal/sink"
)

// ErrNoOutput is returned when a run's output is no longer retained.
var ErrNoOutput = errors.New("output no longer retained")

// Store persists and retrieves runs.
type Store interface {
	Save(run *Run) error
	Load(runID string) (*Run, error)
}

// Run describes a finished command.
type Run struct {
	ID          string        `json:"id"`
	Argv        []string      `json:"argv"`
	Dir         string        `json:"dir"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	ExitCode    int           `json:"exit_code"`
	Succeeded   bool          `json:"succeeded"`
	FailureKind string        `json:"failure_kind,omitempty"` // launch, timeout, canceled, drain
	Failure     string        `json:"failure,omitempty"`
	StdoutBytes int64         `json:"stdout_bytes"`
	StderrBytes int64         `json:"stderr_bytes"`

	// Output is the live result. It is only set on runs held in memory and
	// is owned by the store once saved.
	Output *runner.Result `json:"-"`
}

// NewRun records res. The returned Run keeps res as its Output.
func NewRun(res *runner.Result) *Run {
	r := &Run{
		ID:          res.RunID(),
		Argv:        res.Argv(),
		Dir:         res.Dir(),
		StartedAt:   res.StartedAt(),
		Duration:    res.Duration(),
		ExitCode:    res.ExitCode(),
		Succeeded:   res.Succeeded(),
		FailureKind: runner.FailureKind(res.Failure()),
		StdoutBytes: res.Stdout().Size(),
		StderrBytes: res.Stderr().Size(),
		Output:      res,
	}
	if f := res.Failure(); f != nil {
		r.Failure = f.Error()
	}
	return r
}

// Stream returns the named output stream, "stdout" or "stderr".
func (r *Run) Stream(name string) (sink.Sink, error) {
	if r.Output == nil {
		return nil, fmt.Errorf("run %s: %w", r.ID, ErrNoOutput)
	}
	switch name {
	case "", "stdout":
		return r.Output.Stdout(), nil
	case "stderr":
		return r.Output.Stderr(), nil
	}
	return nil, fmt.Errorf("unknown stream %q, want stdout or stderr", name)
}
