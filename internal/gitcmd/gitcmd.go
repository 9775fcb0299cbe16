// Package gitcmd builds git invocations and hands them to the runner. It
// only assembles argument vectors; interpreting git's output is left to
// callers.
package gitcmd

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/deixis/gitrun/internal/runner"
)

// CommandRunner executes commands.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, dir string, argv []string, opts runner.Options) (*runner.Result, error)
}

// ErrGitUnavailable is returned when no git binary can be found.
type ErrGitUnavailable struct {
	Path string // configured path, if any
	Err  error
}

func (e ErrGitUnavailable) Error() string {
	var b strings.Builder
	if e.Path != "" {
		fmt.Fprintf(&b, "git is configured at %s but cannot be used: %v", e.Path, e.Err)
	} else {
		fmt.Fprint(&b, "git is required but not installed.")
	}
	fmt.Fprintln(&b)
	fmt.Fprint(&b, "\nInstall git from https://git-scm.com/downloads or set git.path in .gitrun.")
	return b.String()
}

func (e ErrGitUnavailable) Unwrap() error { return e.Err }

// Resolve returns the git binary to run. A configured path wins; otherwise
// git is looked up on PATH.
func Resolve(path string) (string, error) {
	if path != "" {
		p, err := exec.LookPath(path)
		if err != nil {
			return "", ErrGitUnavailable{Path: path, Err: err}
		}
		return p, nil
	}
	p, err := exec.LookPath("git")
	if err != nil {
		return "", ErrGitUnavailable{Err: err}
	}
	return p, nil
}
