// Package mcp provides the gitrun MCP server, registering all tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/deixis/gitrun"
	"github.com/deixis/gitrun/internal/config"
	"github.com/deixis/gitrun/internal/report"
	"github.com/deixis/gitrun/internal/runner"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	store report.Store
	log   zerolog.Logger

	mu        sync.Mutex
	cfg       *config.Config
	runner    *runner.Runner
	workspace string
}

// NewServer creates an MCP server with all gitrun tools registered.
func NewServer(cfg *config.Config, r *runner.Runner, store report.Store, workspace string, opts ...ServerOption) *mcp.Server {
	so := serverOptions{log: zerolog.Nop()}
	for _, o := range opts {
		o(&so)
	}

	h := &handler{
		store:     store,
		log:       so.log,
		cfg:       cfg,
		runner:    r,
		workspace: workspace,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "gitrun", Version: gitrun.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "git_workspace",
		Description: "Report the git version, the workspace directory, and the repository top level.",
	}, h.workspaceHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "git_run",
		Description: `Run one git command in the workspace and return its exit code and the head of its output.

Pass arguments without the leading "git". Output is kept for drill-down via run_output.
Failures to launch, timeouts, and cancellations are reported in the result rather than as errors.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "run_output",
		Description: `Read a byte range of the stdout or stderr of a previous git_run.

Use the run_id from the git_run result. Only recent runs keep their output.`,
	}, h.outputHandler)

	return s
}

// ServerOption configures the gitrun MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	log zerolog.Logger
}

// WithLogger sets the logger used by tool handlers.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.log = log
	}
}

// state returns the configuration the next tool call should use.
func (h *handler) state() (*config.Config, *runner.Runner, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg, h.runner, h.workspace
}

// updateWorkspaceFromRoots queries the client for MCP roots and switches
// the handler to the first file root, reloading its configuration.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.log.Warn().Err(err).Str("workspace", workspace).Msg("ignoring client root")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Runs already in flight keep the old runner.
	r := *h.runner
	r.Workspace = workspace
	r.SpoolDir = loaded.Config.SpoolDir
	h.runner = &r
	h.cfg = loaded.Config
	h.workspace = workspace

	h.log.Info().Str("workspace", workspace).Msg("workspace set from client root")
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
