// Package runner executes external commands: it launches the process,
// drains stdout and stderr concurrently into sinks, enforces an optional
// wall-clock timeout, and returns a Result that owns the captured output.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deixis/gitrun/internal/sink"
)

// Defaults for the supervision knobs on Runner.
const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultKillGrace    = 2 * time.Second
)

// Runner executes commands. A zero Runner is usable; it logs nothing,
// spools to os.TempDir() and accepts any working directory.
//
// A Runner holds no per-command state, so one value may run any number of
// commands concurrently.
type Runner struct {
	Workspace    string        // if set, working directories must stay inside it
	SpoolDir     string        // directory for spool files; "" means os.TempDir()
	PollInterval time.Duration // timeout supervisor tick
	KillGrace    time.Duration // how long to wait for a killed process and its pipes
	Logger       zerolog.Logger
}

// Run executes argv in dir. The returned error is non-nil only when the
// arguments violate the contract (see NewRequest); every runtime condition,
// including failure to launch, is reported by Result.Failure.
//
// The caller must Close the Result to release captured output.
func (r *Runner) Run(ctx context.Context, dir string, argv []string, opts Options) (*Result, error) {
	req, err := NewRequest(dir, argv, opts)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, req), nil
}

// Execute runs a validated request. It blocks until the process has exited
// and both streams are drained, or until the process has been killed on
// timeout or cancellation.
func (r *Runner) Execute(ctx context.Context, req Request) *Result {
	res := &Result{
		id:       uuid.NewString(),
		argv:     req.Argv(),
		dir:      req.dir,
		exitCode: -1,
		started:  time.Now(),
	}
	log := r.Logger.With().Str("run_id", res.id).Str("cmd", req.argv[0]).Logger()

	s := &session{
		runner: r,
		req:    req,
		res:    res,
		log:    log,
	}
	s.run(ctx)
	res.duration = time.Since(res.started)

	log.Debug().
		Int("exit_code", res.exitCode).
		Dur("duration", res.duration).
		Int64("stdout_bytes", res.stdout.Size()).
		Int64("stderr_bytes", res.stderr.Size()).
		Str("failure", FailureKind(res.failure)).
		Msg("command finished")
	return res
}

// session carries one invocation from launch to a finished Result.
type session struct {
	runner *Runner
	req    Request
	res    *Result
	log    zerolog.Logger
}

func (s *session) run(ctx context.Context) {
	req, res := s.req, s.res

	if err := ctx.Err(); err != nil {
		s.launchFailed("start", err)
		return
	}

	dir, err := s.runner.resolveDir(req.dir)
	if err != nil {
		s.launchFailed("resolve dir", err)
		return
	}
	res.dir = dir

	stdout, stderr, err := s.runner.newSinks(req.opts)
	if err != nil {
		s.launchFailed("create sinks", err)
		return
	}
	res.stdout, res.stderr = stdout, stderr

	outR, outW, err := os.Pipe()
	if err != nil {
		s.launchFailed("pipe", err)
		return
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW)
		s.launchFailed("pipe", err)
		return
	}

	cmd := exec.Command(req.argv[0], req.argv[1:]...)
	cmd.Dir = dir
	if len(req.opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), req.opts.Env...)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW
	setProcessGroup(cmd)

	s.log.Debug().
		Strs("argv", req.argv).
		Str("dir", dir).
		Str("capture", req.opts.Capture.String()).
		Dur("timeout", req.opts.Timeout).
		Msg("launching command")

	if err := cmd.Start(); err != nil {
		closeAll(outR, outW, errR, errW)
		s.launchFailed("start", err)
		return
	}
	// The child holds its own copies; the drains see EOF once it and any
	// descendants sharing the pipes are gone.
	closeAll(outW, errW)
	res.pid = cmd.Process.Pid

	d := startDrain(
		&stream{name: "stdout", r: outR, w: stdout},
		&stream{name: "stderr", r: errR, w: stderr},
	)

	var waitErr error
	exited := make(chan struct{})
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()

	finished := make(chan struct{})
	go func() {
		<-exited
		<-d.done
		close(finished)
	}()

	sup := &supervisor{
		start:    res.started,
		timeout:  req.opts.Timeout,
		interval: s.runner.pollInterval(),
		kill:     func() error { return killTree(cmd.Process) },
		log:      s.log,
	}
	outcome := sup.watch(ctx, finished)

	if outcome != completed {
		s.reclaim(exited, d)
	}

	select {
	case <-exited:
		res.exitCode = exitCode(waitErr)
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) && outcome == completed {
			// Wait failed without an exit status; the process state is unknown.
			res.failure = &LaunchError{Op: "wait", Dir: dir, Argv0: req.argv[0], Err: waitErr}
		}
	default:
	}

	var failures []error
	switch outcome {
	case timedOut:
		failures = append(failures, &TimeoutError{Timeout: req.opts.Timeout})
	case canceled:
		failures = append(failures, &CanceledError{Err: ctx.Err()})
	}
	if res.failure != nil {
		failures = append(failures, res.failure)
	}
	failures = append(failures, d.errs()...)
	res.failure = errors.Join(failures...)
}

// reclaim waits for a killed process to go away and for its streams to
// close, interrupting any drain still blocked after the grace period.
func (s *session) reclaim(exited <-chan struct{}, d *drainer) {
	grace := s.runner.killGrace()

	select {
	case <-exited:
	case <-time.After(grace):
		s.log.Warn().Int("pid", s.res.pid).Dur("grace", grace).Msg("killed process has not exited")
	}

	select {
	case <-d.done:
	case <-time.After(grace):
		// A descendant outside the process group still holds a pipe.
		s.log.Warn().Dur("grace", grace).Msg("interrupting output drain")
		d.interrupt()
		<-d.done
	}
}

// launchFailed records a failure that happened before the process could
// run. Any sinks already created are released and replaced by empty ones.
func (s *session) launchFailed(op string, err error) {
	res := s.res
	if res.stdout != nil {
		_ = res.stdout.Close()
	}
	if res.stderr != nil {
		_ = res.stderr.Close()
	}
	res.stdout = emptySink()
	res.stderr = emptySink()
	res.failure = &LaunchError{Op: op, Dir: s.req.dir, Argv0: s.req.argv[0], Err: err}
	s.log.Debug().Err(err).Str("op", op).Msg("command did not launch")
}

func emptySink() sink.Writer {
	m := sink.NewMemory(0)
	_ = m.Finalize()
	return m
}

// newSinks creates the stdout and stderr sinks for a capture mode.
func (r *Runner) newSinks(opts Options) (sink.Writer, sink.Writer, error) {
	switch opts.Capture {
	case CaptureSpool:
		out, err := sink.NewSpool(r.SpoolDir, "stdout")
		if err != nil {
			return nil, nil, err
		}
		errOut, err := sink.NewSpool(r.SpoolDir, "stderr")
		if err != nil {
			_ = out.Close()
			return nil, nil, err
		}
		return out, errOut, nil
	default:
		if opts.Overflow {
			return sink.NewOverflow(opts.MaxOutput, r.SpoolDir, "stdout"),
				sink.NewOverflow(opts.MaxOutput, r.SpoolDir, "stderr"), nil
		}
		return sink.NewMemory(opts.MaxOutput), sink.NewMemory(opts.MaxOutput), nil
	}
}

// resolveDir resolves cwd, relative to the workspace when one is set, and
// checks that it is an existing directory inside the workspace.
func (r *Runner) resolveDir(cwd string) (string, error) {
	dir := cwd
	if r.Workspace != "" {
		switch {
		case cwd == "":
			dir = r.Workspace
		case !filepath.IsAbs(cwd):
			dir = filepath.Join(r.Workspace, cwd)
		}
		dir = filepath.Clean(dir)

		rel, err := filepath.Rel(r.Workspace, dir)
		if err != nil {
			return "", fmt.Errorf("resolving cwd: %w", err)
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
		}
	} else if dir == "" {
		dir = "."
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return dir, nil
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return DefaultPollInterval
}

func (r *Runner) killGrace() time.Duration {
	if r.KillGrace > 0 {
		return r.KillGrace
	}
	return DefaultKillGrace
}

// exitCode extracts the process exit status from a Wait error. It returns
// -1 when there is none, e.g. the process was killed by a signal.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
