package gitcmd

import (
	"context"
	"strings"

	"github.com/deixis/gitrun/internal/runner"
)

// Command is a git invocation under construction. Methods append to the
// argument list and return the command for chaining.
type Command struct {
	args []string
}

// New starts a command with the given arguments, e.g. New("log", "--oneline").
func New(args ...string) *Command {
	return &Command{args: append([]string(nil), args...)}
}

// AddArguments appends raw arguments.
func (c *Command) AddArguments(args ...string) *Command {
	c.args = append(c.args, args...)
	return c
}

// AddOptionValues appends opt once per value, e.g. AddOptionValues("--author", "a", "b")
// gives "--author a --author b". Nothing is added for no values.
func (c *Command) AddOptionValues(opt string, values ...string) *Command {
	for _, v := range values {
		c.args = append(c.args, opt, v)
	}
	return c
}

// AddDashesAndList appends "--" followed by items, so items are never
// parsed as options.
func (c *Command) AddDashesAndList(items ...string) *Command {
	c.args = append(c.args, "--")
	c.args = append(c.args, items...)
	return c
}

// Args returns a copy of the arguments after the git binary.
func (c *Command) Args() []string {
	return append([]string(nil), c.args...)
}

// Argv returns the full argument vector with git as the program.
func (c *Command) Argv(git string) []string {
	return append([]string{git}, c.args...)
}

func (c *Command) String() string {
	return "git " + strings.Join(c.args, " ")
}

// Run executes the command with r in dir.
func (c *Command) Run(ctx context.Context, r CommandRunner, git, dir string, opts runner.Options) (*runner.Result, error) {
	return r.Run(ctx, dir, c.Argv(git), opts)
}
