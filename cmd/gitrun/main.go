// Command gitrun runs git and other commands under supervision and serves
// them to agents over MCP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/deixis/gitrun"
	"github.com/deixis/gitrun/internal/config"
	"github.com/deixis/gitrun/internal/gitcmd"
	"github.com/deixis/gitrun/internal/logger"
	gitmcp "github.com/deixis/gitrun/internal/mcp"
	"github.com/deixis/gitrun/internal/report"
	"github.com/deixis/gitrun/internal/runner"
	"github.com/deixis/gitrun/internal/sink"
)

// Exit codes for runs that produced no exit status of their own.
const (
	exitFailure  = 1
	exitTimeout  = 124
	exitLaunch   = 127
	exitCanceled = 130
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("gitrun: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var (
		code int
		err  error
	)
	switch cmd {
	case "run":
		code, err = runMain(args)
	case "git":
		code, err = gitMain(args)
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Println(gitrun.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "gitrun: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	// Spool files still on disk here belong to results nobody closed.
	if n, serr := sink.Sweep(); serr != nil {
		log.Printf("removing spool files: %v", serr)
	} else if n > 0 {
		log.Printf("removed %d leftover spool files", n)
	}

	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: gitrun <command> [flags] [args]

Commands:
  run         Run a command: gitrun run [flags] -- program [args]
  git         Run git: gitrun git [flags] -- [git args]
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "gitrun <command> -h" for command-specific flags.`)
}

// --- run / git ---

// runFlags are shared by run and git.
type runFlags struct {
	dir       string
	timeout   time.Duration
	spool     bool
	maxOutput int64
	json      bool
}

func (f *runFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.dir, "dir", "", "working directory (default: current directory); must be inside the repository")
	fs.DurationVar(&f.timeout, "timeout", 0, "override configured timeout (e.g. 30s)")
	fs.BoolVar(&f.spool, "spool", false, "capture output to temporary files instead of memory")
	fs.Int64Var(&f.maxOutput, "max-output", 0, "override configured max output in bytes")
	fs.BoolVar(&f.json, "json", false, "print the run record as JSON instead of the output")
}

func runMain(args []string) (int, error) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var f runFlags
	f.register(fs)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return 0, fmt.Errorf("run: no command given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e, err := newEnv()
	if err != nil {
		return 0, err
	}
	opts, err := e.options(f)
	if err != nil {
		return 0, err
	}

	res, err := e.runner.Run(ctx, e.dir(f.dir), fs.Args(), opts)
	if err != nil {
		return 0, fmt.Errorf("run: %w", err)
	}
	defer res.Close()

	return finish(res, f.json)
}

func gitMain(args []string) (int, error) {
	fs := flag.NewFlagSet("git", flag.ExitOnError)
	var f runFlags
	f.register(fs)
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e, err := newEnv()
	if err != nil {
		return 0, err
	}
	git, err := gitcmd.Resolve(e.cfg.Git.Path)
	if err != nil {
		return exitLaunch, err
	}
	opts, err := e.options(f)
	if err != nil {
		return 0, err
	}

	client := &gitcmd.Client{
		Runner: e.runner,
		Git:    git,
		Dir:    e.dir(f.dir),
		Env:    e.cfg.Git.Env,
	}
	res, err := client.Run(ctx, gitcmd.New(fs.Args()...), opts)
	if err != nil {
		return 0, fmt.Errorf("git: %w", err)
	}
	defer res.Close()

	return finish(res, f.json)
}

// finish writes the captured output, or the run record with asJSON, and
// returns the exit code gitrun should end with.
func finish(res *runner.Result, asJSON bool) (int, error) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report.NewRun(res)); err != nil {
			return 0, err
		}
	} else {
		if err := copyOut(os.Stdout, res.Stdout()); err != nil {
			return 0, fmt.Errorf("writing stdout: %w", err)
		}
		if err := copyOut(os.Stderr, res.Stderr()); err != nil {
			return 0, fmt.Errorf("writing stderr: %w", err)
		}
	}

	if f := res.Failure(); f != nil {
		log.Print(f)
		switch runner.FailureKind(f) {
		case "timeout":
			return exitTimeout, nil
		case "canceled":
			return exitCanceled, nil
		case "launch":
			return exitLaunch, nil
		}
	}
	if code := res.ExitCode(); code >= 0 {
		return code, nil
	}
	return exitFailure, nil
}

func copyOut(w io.Writer, s sink.Sink) error {
	rc, err := s.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(gitmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, *httpAddr)
}

func serve(ctx context.Context, httpAddr string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	disk := report.NewDiskStore()
	store := report.NewLRUStore(5, disk)
	defer func() {
		if err := store.Close(); err != nil {
			e.log.Warn().Err(err).Msg("releasing retained output")
		}
		if err := disk.Remove(); err != nil {
			e.log.Warn().Err(err).Msg("removing run records")
		}
	}()

	server := gitmcp.NewServer(e.cfg, e.runner, store, e.workspace, gitmcp.WithLogger(e.log))

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr, e.log)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, l zerolog.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	l.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// env is the configuration shared by every command.
type env struct {
	cfg       *config.Config
	log       zerolog.Logger
	runner    *runner.Runner
	workspace string // repository root
	cwd       string
}

func newEnv() (*env, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	l := logger.New(os.Stderr, cfg.LogLevel(), cfg.LogFormat())

	return &env{
		cfg: cfg,
		log: l,
		runner: &runner.Runner{
			Workspace: loaded.RepoRoot,
			SpoolDir:  cfg.SpoolDir,
			Logger:    l,
		},
		workspace: loaded.RepoRoot,
		cwd:       workspace,
	}, nil
}

// dir resolves a -dir flag against the current directory.
func (e *env) dir(d string) string {
	if d == "" {
		return e.cwd
	}
	if filepath.IsAbs(d) {
		return d
	}
	return filepath.Join(e.cwd, d)
}

// options builds capture options from the config and command-line overrides.
func (e *env) options(f runFlags) (runner.Options, error) {
	capture, err := runner.ParseCapture(e.cfg.Capture())
	if err != nil {
		return runner.Options{}, err
	}
	if f.spool {
		capture = runner.CaptureSpool
	}

	opts := runner.Options{
		Capture:   capture,
		MaxOutput: e.cfg.MaxOutputBytes(),
		Overflow:  e.cfg.Overflow,
		Timeout:   e.cfg.Timeout(),
	}
	if f.timeout > 0 {
		opts.Timeout = f.timeout
	}
	if f.maxOutput > 0 {
		opts.MaxOutput = f.maxOutput
	}
	return opts, nil
}
