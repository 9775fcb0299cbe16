package gitcmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/gitrun/internal/runner"
)

// textCap bounds the small outputs read back by the Client helpers.
const textCap = 64 << 10

// Client runs git commands in one repository with shared settings.
type Client struct {
	Runner CommandRunner
	Git    string   // resolved git binary
	Dir    string   // working directory for every command
	Env    []string // appended to each command's environment
}

// Run executes cmd, adding the client's environment to opts.
func (c *Client) Run(ctx context.Context, cmd *Command, opts runner.Options) (*runner.Result, error) {
	if len(c.Env) > 0 {
		opts.Env = append(append([]string(nil), c.Env...), opts.Env...)
	}
	return cmd.Run(ctx, c.Runner, c.Git, c.Dir, opts)
}

// Version returns the first line printed by git --version.
func (c *Client) Version(ctx context.Context) (string, error) {
	return c.line(ctx, New("--version"))
}

// TopLevel returns the root of the working tree containing Dir.
func (c *Client) TopLevel(ctx context.Context) (string, error) {
	return c.line(ctx, New("rev-parse", "--show-toplevel"))
}

// line runs a command expected to print one short line and returns it
// trimmed. Any failure or non-zero exit is an error carrying git's stderr.
func (c *Client) line(ctx context.Context, cmd *Command) (string, error) {
	res, err := c.Run(ctx, cmd, runner.InMemory(textCap))
	if err != nil {
		return "", err
	}
	defer res.Close()

	if f := res.Failure(); f != nil {
		return "", fmt.Errorf("%s: %w", cmd, f)
	}
	if res.ExitCode() != 0 {
		stderr, _ := res.Stderr().Text(0)
		return "", fmt.Errorf("%s: exit status %d: %s", cmd, res.ExitCode(), strings.TrimSpace(stderr))
	}
	out, err := res.Stdout().Text(0)
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	first, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(first), nil
}
