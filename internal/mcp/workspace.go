package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type workspaceParams struct{}

func (h *handler) workspaceHandler(ctx context.Context, req *sdkmcp.CallToolRequest, _ workspaceParams) (*sdkmcp.CallToolResult, any, error) {
	cfg, r, workspace := h.state()

	client, err := newClient(cfg, r, "")
	if err != nil {
		return errorResult(err.Error())
	}

	version, err := client.Version(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to query git version: %v", err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Git: %s (%s)\n", version, client.Git)
	if workspace != "" {
		fmt.Fprintf(&b, "Workspace: %s\n", workspace)
	}

	// Non-fatal: the workspace may not be a repository yet.
	if top, err := client.TopLevel(ctx); err != nil {
		fmt.Fprintln(&b, "Repository: (not a git repository)")
	} else {
		fmt.Fprintf(&b, "Repository: %s\n", top)
	}

	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Capture: %s\n", cfg.Capture())
	if t := cfg.Timeout(); t > 0 {
		fmt.Fprintf(&b, "Timeout: %s\n", t)
	} else {
		fmt.Fprintln(&b, "Timeout: none")
	}
	fmt.Fprintf(&b, "Max output: %d bytes\n", cfg.MaxOutputBytes())

	return textResult(b.String())
}
