package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"

	"github.com/agentx-labs/agentd-updater/internal/platform"
	"mvdan.cc/sh/v3/shell"
)

// ErrInstallerFailed indicates the installer exited non-zero.
var ErrInstallerFailed = errors.New("installer failed")

// Installer flags understood by every agentd installer.
const (
	flagDontWait  = "--dont-wait"
	flagDontStart = "--dont-start-it"
)

// InstallRequest carries the installer arguments for one run.
type InstallRequest struct {
	// Options are the reinstall options recorded at install time.
	Options []string
	// DontWait suppresses interactive prompts.
	DontWait bool
	// DontStart keeps the service stopped after installation.
	DontStart bool
}

// Args returns the pass-through options followed by the derived flags.
func (r InstallRequest) Args() []string {
	args := append([]string{}, r.Options...)
	if r.DontWait {
		args = append(args, flagDontWait)
	}
	if r.DontStart {
		args = append(args, flagDontStart)
	}
	return args
}

// Installer invokes the external installation routine and returns its
// exit status. The error return is reserved for failures to start it.
type Installer interface {
	Install(ctx context.Context, req InstallRequest) (int, error)
}

// InstallerError reports a non-zero installer exit.
type InstallerError struct {
	Installer string
	ExitCode  int
}

func (e *InstallerError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Installer, e.ExitCode)
}

// Unwrap returns ErrInstallerFailed so callers can use errors.Is.
func (e *InstallerError) Unwrap() error { return ErrInstallerFailed }

// SplitOptions splits a reinstall-options string into words using shell
// quoting rules, so `--install-prefix "/opt/my agent"` stays two words.
func SplitOptions(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	words, err := shell.Fields(s, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing reinstall options %q: %w", s, err)
	}
	return words, nil
}

// ScriptInstaller runs the installer script shipped inside a tarball, from
// the unpacked source directory.
type ScriptInstaller struct {
	Path   string
	Stdout io.Writer
	Stderr io.Writer
}

func (s *ScriptInstaller) Install(ctx context.Context, req InstallRequest) (int, error) {
	var cmd *exec.Cmd
	if platform.IsExecutable(s.Path) {
		cmd = exec.CommandContext(ctx, s.Path, req.Args()...)
	} else {
		cmd = exec.CommandContext(ctx, "sh", append([]string{s.Path}, req.Args()...)...)
	}
	cmd.Dir = filepath.Dir(s.Path)
	return run(cmd, s.Stdout, s.Stderr)
}

// SelfExtractingInstaller runs a static-build .gz.run archive, which
// unpacks and installs itself.
type SelfExtractingInstaller struct {
	Archive string
	Stdout  io.Writer
	Stderr  io.Writer
}

func (s *SelfExtractingInstaller) Install(ctx context.Context, req InstallRequest) (int, error) {
	args := append([]string{s.Archive, "--accept", "--"}, req.Args()...)
	cmd := exec.CommandContext(ctx, "sh", args...)
	cmd.Dir = filepath.Dir(s.Archive)
	return run(cmd, s.Stdout, s.Stderr)
}

func run(cmd *exec.Cmd, stdout, stderr io.Writer) (int, error) {
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("starting installer: %w", err)
}
