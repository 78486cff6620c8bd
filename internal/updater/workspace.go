package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/agentx-labs/agentd-updater/internal/platform"
)

// ErrNoUsableTempDir is returned when no candidate base directory is both
// writable and allows executing files.
var ErrNoUsableTempDir = errors.New("no writable temporary directory that allows execution")

const (
	workspacePattern = "agentd-updater-*"
	probeScript      = "#!/bin/sh\nexit 0\n"
)

// ProbeFunc executes the script at path and returns an error if it cannot
// run, which is how noexec mounts are detected.
type ProbeFunc func(ctx context.Context, path string) error

func runProbe(ctx context.Context, path string) error {
	return exec.CommandContext(ctx, path).Run()
}

// WorkspaceConfig selects where workspaces are created.
type WorkspaceConfig struct {
	// Preferred is tried first (the configured TMPDIR). Empty skips it.
	Preferred string
	// Probe overrides the execution probe (useful for testing).
	Probe ProbeFunc
	// fallbacks overrides the system temp dir and working directory.
	fallbacks []string
}

// Workspace is a private temporary directory owned by one update attempt.
type Workspace struct {
	Path      string
	preserved bool
}

// NewWorkspace picks the first candidate base directory that is writable
// and allows execution (preferred, system temp, working directory) and
// creates a uniquely named subdirectory in it. The caller owns the result
// and must Close it on every path.
func NewWorkspace(ctx context.Context, cfg WorkspaceConfig) (*Workspace, error) {
	probe := cfg.Probe
	if probe == nil {
		probe = runProbe
	}

	candidates := cfg.fallbacks
	if candidates == nil {
		candidates = []string{os.TempDir()}
		if wd, err := os.Getwd(); err == nil {
			candidates = append(candidates, wd)
		}
	}
	if cfg.Preferred != "" {
		candidates = append([]string{cfg.Preferred}, candidates...)
	}

	var tried []string
	seen := make(map[string]bool)
	for _, base := range candidates {
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		tried = append(tried, base)

		if err := checkBase(ctx, base, probe); err != nil {
			continue
		}
		path, err := os.MkdirTemp(base, workspacePattern)
		if err != nil {
			continue
		}
		return &Workspace{Path: path}, nil
	}

	return nil, fmt.Errorf("%w (tried %s); set TMPDIR in the environment file to a writable directory that is not mounted noexec",
		ErrNoUsableTempDir, strings.Join(tried, ", "))
}

// checkBase verifies base is a directory where a freshly written script
// can be executed.
func checkBase(ctx context.Context, base string, probe ProbeFunc) error {
	info, err := os.Stat(base)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", base)
	}

	dir, err := os.MkdirTemp(base, ".agentd-updater-probe-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "probe.sh")
	if err := os.WriteFile(script, []byte(probeScript), 0600); err != nil {
		return err
	}
	if err := platform.Chmod(script, 0700); err != nil {
		return err
	}
	return probe(ctx, script)
}

// File returns the path of name inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.Path, name)
}

// Preserve keeps the workspace on disk after Close, so a failed artifact
// can be inspected.
func (w *Workspace) Preserve() {
	w.preserved = true
}

// Preserved reports whether Preserve was called.
func (w *Workspace) Preserved() bool {
	return w.preserved
}

// Close removes the workspace recursively unless it was preserved.
func (w *Workspace) Close() error {
	if w == nil || w.preserved || w.Path == "" {
		return nil
	}
	if err := os.RemoveAll(w.Path); err != nil {
		return fmt.Errorf("removing workspace %s: %w", w.Path, err)
	}
	return nil
}
