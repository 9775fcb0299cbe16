// Package config loads and validates the optional .gitrun YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file at the repository root.
const FileName = ".gitrun"

// Default values for runner configuration.
const (
	DefaultTimeout   = 5 * time.Minute
	DefaultMaxOutput = 1 << 20 // 1 MB
	DefaultCapture   = "memory"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Config holds the parsed .gitrun configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int       `yaml:"version"`
	RawTimeout   string    `yaml:"timeout"`    // e.g. "5m", "30s"; "0" disables the timeout
	RawMaxOutput int64     `yaml:"max_output"` // bytes
	RawCapture   string    `yaml:"capture"`    // memory or spool
	Overflow     bool      `yaml:"overflow"`   // spill in-memory output past max_output to disk
	SpoolDir     string    `yaml:"spool_dir"`  // default: system temp dir
	Log          LogConfig `yaml:"log"`
	Git          GitConfig `yaml:"git"`
}

// LogConfig controls the engine's structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// GitConfig controls how the git binary is invoked.
type GitConfig struct {
	Path string   `yaml:"path"` // explicit git binary; default: looked up on PATH
	Env  []string `yaml:"env"`  // extra KEY=VALUE entries for every git command
}

// Timeout returns the configured timeout or the default. An explicit zero
// duration disables the timeout.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d >= 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int64 {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// Capture returns the configured capture mode or the default.
func (c *Config) Capture() string {
	if c.RawCapture != "" {
		return strings.ToLower(c.RawCapture)
	}
	return DefaultCapture
}

// LogLevel returns the configured log level or the default.
func (c *Config) LogLevel() string {
	if c.Log.Level != "" {
		return strings.ToLower(c.Log.Level)
	}
	return DefaultLogLevel
}

// LogFormat returns the configured log format or the default.
func (c *Config) LogFormat() string {
	if c.Log.Format != "" {
		return strings.ToLower(c.Log.Format)
	}
	return DefaultLogFormat
}

// Validate reports values that parse but cannot be used.
func (c *Config) Validate() error {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("timeout: negative duration %s", c.RawTimeout)
		}
	}
	if c.RawMaxOutput < 0 {
		return fmt.Errorf("max_output: negative size %d", c.RawMaxOutput)
	}
	switch c.Capture() {
	case "memory", "spool":
	default:
		return fmt.Errorf("capture: unknown mode %q", c.RawCapture)
	}
	switch c.LogLevel() {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.LogFormat() {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	for _, kv := range c.Git.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("git.env: %q is not KEY=VALUE", kv)
		}
	}
	return nil
}

// LoadResult holds the parsed config and the discovered repository root.
type LoadResult struct {
	Config   *Config
	RepoRoot string // directory containing .git; falls back to workspace
}

// Load reads the .gitrun file from the repository root.
// The repository root is discovered by walking upward from workspace
// looking for .git. If no .gitrun file exists, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findRepoRoot(workspace)
	if err != nil {
		// Not inside a repository; use workspace as root.
		root = workspace
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, RepoRoot: root}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, RepoRoot: root}, nil
}

// findRepoRoot walks upward from dir looking for a directory containing
// .git (a directory, or a file in linked worktrees).
func findRepoRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf(".git not found")
		}
		dir = parent
	}
}
