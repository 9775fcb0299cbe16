package mcp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/gitrun/internal/config"
	"github.com/deixis/gitrun/internal/gitcmd"
	"github.com/deixis/gitrun/internal/report"
	"github.com/deixis/gitrun/internal/runner"
	"github.com/deixis/gitrun/internal/sink"
)

// headBytes is how much of each stream git_run shows inline.
const headBytes = 4 << 10

type runParams struct {
	Args      []string `json:"args" jsonschema:"git arguments without the leading git, e.g. [\"log\", \"--oneline\", \"-n\", \"10\"]"`
	Dir       string   `json:"dir,omitempty" jsonschema:"working directory relative to the workspace. Defaults to the workspace."`
	Spool     bool     `json:"spool,omitempty" jsonschema:"capture output to temporary files instead of memory. Use for large output."`
	TimeoutMS int64    `json:"timeout_ms,omitempty" jsonschema:"timeout in milliseconds for this run. Defaults to the configured timeout."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if len(params.Args) == 0 {
		return errorResult("args is required")
	}
	if params.TimeoutMS < 0 {
		return errorResult("timeout_ms must not be negative")
	}

	cfg, r, _ := h.state()
	client, err := newClient(cfg, r, params.Dir)
	if err != nil {
		return errorResult(err.Error())
	}

	opts, err := runOptions(cfg, params.Spool, time.Duration(params.TimeoutMS)*time.Millisecond)
	if err != nil {
		return errorResult(err.Error())
	}

	cmd := gitcmd.New(params.Args...)
	res, err := client.Run(ctx, cmd, opts)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid command: %v", err))
	}

	run := report.NewRun(res)
	if err := h.store.Save(run); err != nil {
		h.log.Warn().Err(err).Str("run_id", run.ID).Msg("saving run")
	}
	h.log.Debug().
		Str("run_id", run.ID).
		Str("cmd", cmd.String()).
		Int("exit_code", run.ExitCode).
		Str("failure", run.FailureKind).
		Msg("git_run")

	return textResult(formatRun(run, cmd, opts.Capture))
}

// newClient builds a git client for one tool call.
func newClient(cfg *config.Config, r *runner.Runner, dir string) (*gitcmd.Client, error) {
	git, err := gitcmd.Resolve(cfg.Git.Path)
	if err != nil {
		return nil, err
	}
	return &gitcmd.Client{
		Runner: r,
		Git:    git,
		Dir:    dir,
		Env:    cfg.Git.Env,
	}, nil
}

// runOptions derives capture options from cfg. A positive timeout
// overrides the configured one; spool forces spooled capture.
func runOptions(cfg *config.Config, spool bool, timeout time.Duration) (runner.Options, error) {
	capture, err := runner.ParseCapture(cfg.Capture())
	if err != nil {
		return runner.Options{}, err
	}
	if spool {
		capture = runner.CaptureSpool
	}
	if timeout <= 0 {
		timeout = cfg.Timeout()
	}
	return runner.Options{
		Capture:   capture,
		MaxOutput: cfg.MaxOutputBytes(),
		Overflow:  cfg.Overflow,
		Timeout:   timeout,
	}, nil
}

func formatRun(run *report.Run, cmd *gitcmd.Command, capture runner.Capture) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", run.ID)
	fmt.Fprintf(&b, "Command: %s\n", cmd)
	if run.Dir != "" {
		fmt.Fprintf(&b, "Dir: %s\n", run.Dir)
	}
	fmt.Fprintf(&b, "Capture: %s\n", capture)
	if run.ExitCode >= 0 {
		fmt.Fprintf(&b, "Exit: %d\n", run.ExitCode)
	} else {
		fmt.Fprintln(&b, "Exit: none")
	}
	fmt.Fprintf(&b, "Duration: %s\n", run.Duration.Round(time.Millisecond))
	if run.Succeeded {
		fmt.Fprintln(&b, "Status: PASS")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	if run.Failure != "" {
		fmt.Fprintf(&b, "Failure (%s): %s\n", run.FailureKind, run.Failure)
	}

	for _, name := range []string{"stdout", "stderr"} {
		fmt.Fprintln(&b)
		s, err := run.Stream(name)
		if err != nil {
			fmt.Fprintf(&b, "%s: %v\n", name, err)
			continue
		}
		writeHead(&b, run.ID, name, s)
	}

	return b.String()
}

// writeHead writes up to headBytes of s, with a pointer to run_output when
// the stream is longer.
func writeHead(b *strings.Builder, runID, name string, s sink.Sink) {
	size := s.Size()
	if size == 0 {
		fmt.Fprintf(b, "%s: (empty)\n", name)
		return
	}
	fmt.Fprintf(b, "%s (%d bytes):\n", name, size)

	head, err := readRange(s, 0, headBytes)
	if err != nil {
		fmt.Fprintf(b, "(unreadable: %v)\n", err)
		return
	}
	b.Write(head)
	if len(head) > 0 && head[len(head)-1] != '\n' {
		b.WriteByte('\n')
	}
	if size > int64(len(head)) {
		fmt.Fprintf(b, "[%d of %d bytes shown. Continue with run_output(run_id=%q, stream=%q, offset=%d).]\n",
			len(head), size, runID, name, len(head))
	}
}

// readRange returns at most limit bytes of s starting at offset.
func readRange(s sink.Sink, offset, limit int64) ([]byte, error) {
	rc, err := s.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	if offset > 0 {
		if _, err := io.CopyN(io.Discard, rc, offset); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, err
		}
	}
	return io.ReadAll(io.LimitReader(rc, limit))
}
