package mcp

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/deixis/gitrun/internal/config"
	"github.com/deixis/gitrun/internal/report"
	"github.com/deixis/gitrun/internal/runner"
)

// setup creates a full gitrun MCP server + client over in-memory transports.
// workspaceDir should be a prepared repository.
func setup(t *testing.T, workspaceDir string, cfg *config.Config) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	if cfg == nil {
		cfg = &config.Config{}
	}

	store := report.NewLRUStore(5, report.NewDiskStore())
	r := &runner.Runner{
		Workspace: workspaceDir,
		SpoolDir:  t.TempDir(),
		Logger:    zerolog.Nop(),
	}

	server := NewServer(cfg, r, store, workspaceDir)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
		_ = store.Close()
	})

	return cs
}

// initRepo creates an empty repository with one committed file.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{
		{"init", "-q"},
		{"add", "README"},
		{"-c", "user.name=test", "-c", "user.email=test@example.com", "commit", "-q", "-m", "initial"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	return dir
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// runID extracts the ID from the "Run: <id>" line of a git_run result.
func runID(t *testing.T, text string) string {
	t.Helper()
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "Run: ") {
			return strings.TrimPrefix(line, "Run: ")
		}
	}
	t.Fatalf("no Run ID found in output:\n%s", text)
	return ""
}

// --- git_workspace ---

func TestGitWorkspace(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)
	res := callTool(t, cs, "git_workspace", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "Git: git version") {
		t.Errorf("expected git version in output, got:\n%s", text)
	}
	if !strings.Contains(text, "Repository: ") || strings.Contains(text, "not a git repository") {
		t.Errorf("expected repository top level, got:\n%s", text)
	}
}

func TestGitWorkspace_NotARepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	cfg := &config.Config{
		Git: config.GitConfig{Env: []string{"GIT_CEILING_DIRECTORIES=" + filepath.Dir(dir)}},
	}
	cs := setup(t, dir, cfg)
	res := callTool(t, cs, "git_workspace", nil)
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "not a git repository") {
		t.Errorf("expected not a git repository, got:\n%s", text)
	}
}

// --- git_run ---

func TestGitRun_Passing(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)
	res := callTool(t, cs, "git_run", map[string]any{
		"args": []string{"rev-parse", "--is-inside-work-tree"},
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{"Status: PASS", "Exit: 0", "Capture: memory", "true", "stderr: (empty)"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestGitRun_NonZeroExit(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)
	res := callTool(t, cs, "git_run", map[string]any{
		"args": []string{"rev-parse", "--verify", "no-such-ref"},
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("a failing command is a result, not a tool error: %s", text)
	}
	if !strings.Contains(text, "Status: FAIL") {
		t.Errorf("expected Status: FAIL, got:\n%s", text)
	}
	if strings.Contains(text, "Exit: 0") {
		t.Errorf("expected non-zero exit, got:\n%s", text)
	}
	if strings.Contains(text, "Failure (") {
		t.Errorf("a non-zero exit is not a failure, got:\n%s", text)
	}
}

func TestGitRun_Spool(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)
	res := callTool(t, cs, "git_run", map[string]any{
		"args":  []string{"log", "--format=%s"},
		"spool": true,
	})
	text := resultText(res)
	if !strings.Contains(text, "Capture: spool") {
		t.Errorf("expected Capture: spool, got:\n%s", text)
	}
	if !strings.Contains(text, "initial") {
		t.Errorf("expected commit subject in output, got:\n%s", text)
	}
}

func TestGitRun_OutsideWorkspace(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)
	res := callTool(t, cs, "git_run", map[string]any{
		"args": []string{"status"},
		"dir":  "..",
	})
	text := resultText(res)
	if !strings.Contains(text, "Failure (launch)") {
		t.Errorf("expected launch failure, got:\n%s", text)
	}
	if !strings.Contains(text, "Exit: none") {
		t.Errorf("expected no exit code, got:\n%s", text)
	}
}

func TestGitRun_MissingArgs(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)
	res := callTool(t, cs, "git_run", map[string]any{
		"args": []string{},
	})
	if !res.IsError {
		t.Errorf("expected IsError for empty args, got:\n%s", resultText(res))
	}
}

func TestGitRun_LongOutputPointsToRunOutput(t *testing.T) {
	dir := initRepo(t)
	big := strings.Repeat("0123456789abcdef\n", 1024) // 17 KiB
	if err := os.WriteFile(filepath.Join(dir, "big.txt"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}
	cs := setup(t, dir, nil)
	res := callTool(t, cs, "git_run", map[string]any{
		"args": []string{"diff", "--no-index", "--no-color", "/dev/null", "big.txt"},
	})
	text := resultText(res)
	if !strings.Contains(text, "run_output(") {
		t.Errorf("expected run_output pointer for long output, got:\n%s", text)
	}
}

// --- run_output ---

func TestRunOutput_MissingRunID(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "run_output",
		Arguments: map[string]any{
			"stream": "stdout",
		},
	})
	if err == nil {
		t.Error("expected error for missing run_id")
	}
}

func TestRunOutput_InvalidRunID(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)
	res := callTool(t, cs, "run_output", map[string]any{
		"run_id": "nonexistent-id",
	})
	if !res.IsError {
		t.Error("expected IsError for invalid run_id")
	}
}

func TestRunOutput_Range(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)

	runRes := callTool(t, cs, "git_run", map[string]any{
		"args": []string{"show", "HEAD:README"},
	})
	id := runID(t, resultText(runRes))

	res := callTool(t, cs, "run_output", map[string]any{
		"run_id": id,
		"offset": 1,
		"limit":  3,
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "stdout bytes 1-4 of 6") {
		t.Errorf("expected range header, got:\n%s", text)
	}
	if !strings.HasSuffix(strings.TrimSpace(strings.Split(text, "[more")[0]), "ell") {
		t.Errorf("expected bytes \"ell\", got:\n%s", text)
	}
	if !strings.Contains(text, "offset=4") {
		t.Errorf("expected continuation offset, got:\n%s", text)
	}
}

func TestRunOutput_Stderr(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)

	runRes := callTool(t, cs, "git_run", map[string]any{
		"args": []string{"rev-parse", "--verify", "no-such-ref"},
	})
	id := runID(t, resultText(runRes))

	res := callTool(t, cs, "run_output", map[string]any{
		"run_id": id,
		"stream": "stderr",
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "fatal") {
		t.Errorf("expected git's error message, got:\n%s", text)
	}
}

func TestRunOutput_UnknownStream(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)

	runRes := callTool(t, cs, "git_run", map[string]any{
		"args": []string{"status"},
	})
	id := runID(t, resultText(runRes))

	res := callTool(t, cs, "run_output", map[string]any{
		"run_id": id,
		"stream": "stdin",
	})
	if !res.IsError {
		t.Error("expected IsError for unknown stream")
	}
}

func TestRunOutput_EvictedRun(t *testing.T) {
	dir := initRepo(t)
	cs := setup(t, dir, nil)

	first := runID(t, resultText(callTool(t, cs, "git_run", map[string]any{
		"args": []string{"status"},
	})))
	// The store keeps five runs with output.
	for i := 0; i < 5; i++ {
		callTool(t, cs, "git_run", map[string]any{"args": []string{"status"}})
	}

	res := callTool(t, cs, "run_output", map[string]any{"run_id": first})
	text := resultText(res)
	if !res.IsError {
		t.Fatalf("expected IsError for evicted run, got:\n%s", text)
	}
	if !strings.Contains(text, "no longer retained") {
		t.Errorf("expected retention message, got:\n%s", text)
	}
}

func TestGitRun_TimeoutOverride(t *testing.T) {
	dir := initRepo(t)
	cfg := &config.Config{RawTimeout: "1ms"}
	cs := setup(t, dir, cfg)

	res := callTool(t, cs, "git_run", map[string]any{
		"args":       []string{"status"},
		"timeout_ms": (30 * time.Second).Milliseconds(),
	})
	if strings.Contains(resultText(res), "Failure (timeout)") {
		t.Errorf("timeout_ms should override the configured timeout, got:\n%s", resultText(res))
	}
}
