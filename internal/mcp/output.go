package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Bounds for a single run_output read.
const (
	defaultOutputLimit = 16 << 10
	maxOutputLimit     = 1 << 20
)

type outputParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID from a git_run result"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout or stderr. Defaults to stdout."`
	Offset int64  `json:"offset,omitempty" jsonschema:"byte offset to start reading from"`
	Limit  int64  `json:"limit,omitempty" jsonschema:"maximum number of bytes to return. Defaults to 16384, at most 1048576."`
}

func (h *handler) outputHandler(ctx context.Context, req *mcp.CallToolRequest, params outputParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if params.Offset < 0 {
		return errorResult("offset must not be negative")
	}
	limit := params.Limit
	switch {
	case limit <= 0:
		limit = defaultOutputLimit
	case limit > maxOutputLimit:
		limit = maxOutputLimit
	}

	run, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	name := params.Stream
	if name == "" {
		name = "stdout"
	}
	s, err := run.Stream(name)
	if err != nil {
		return errorResult(fmt.Sprintf("Run %s: %v", params.RunID, err))
	}

	data, err := readRange(s, params.Offset, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("Reading %s of run %s: %v", name, params.RunID, err))
	}

	var b strings.Builder
	size := s.Size()
	end := params.Offset + int64(len(data))
	fmt.Fprintf(&b, "Run: %s %s bytes %d-%d of %d\n", params.RunID, name, params.Offset, end, size)
	if len(data) == 0 {
		fmt.Fprintln(&b, "(no bytes in range)")
		return textResult(b.String())
	}
	fmt.Fprintln(&b)
	b.Write(data)
	if end < size {
		fmt.Fprintf(&b, "\n[more: continue with offset=%d]\n", end)
	}
	return textResult(b.String())
}
