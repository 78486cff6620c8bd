package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/term"
)

const tempLogPattern = "agentd-updater-log.*"

// Options configure New.
type Options struct {
	// Prefix is printed before every message.
	Prefix string
	// Level is a level name such as "debug" or "info". Empty means info.
	Level string
	// Interactive selects direct stderr logging. When false, output is
	// buffered in a temporary file.
	Interactive bool
	// TempDir is where the temporary log is created. Empty uses os.TempDir.
	TempDir string
	// Stderr receives interactive output and the replayed log.
	Stderr io.Writer
}

// Session owns the logger for one run and, for non-interactive runs, the
// temporary file behind it.
type Session struct {
	Logger *log.Logger
	// RunID tags every line of the run.
	RunID string

	out    io.Writer
	stderr io.Writer
	file   *os.File
}

// IsInteractive reports whether stderr is attached to a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// New creates the run's logger. If the temporary log cannot be created the
// session falls back to logging on stderr.
func New(opts Options) (*Session, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		l, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	s := &Session{RunID: uuid.NewString(), out: stderr, stderr: stderr}
	if !opts.Interactive {
		f, err := os.CreateTemp(opts.TempDir, tempLogPattern)
		if err == nil {
			s.file = f
			s.out = f
		}
	}

	s.Logger = log.NewWithOptions(s.out, log.Options{
		Prefix:          opts.Prefix,
		Level:           level,
		ReportTimestamp: !opts.Interactive,
	})
	s.Logger = s.Logger.With("run", s.RunID[:8])
	return s, nil
}

// Output is the writer behind the logger. Child process output (the
// installer) goes here so it is kept or dropped with the log.
func (s *Session) Output() io.Writer {
	return s.out
}

// Close finishes the session. When failed is true the temporary log is
// copied to stderr first. The temporary file is removed in every case.
func (s *Session) Close(failed bool) error {
	if s.file == nil {
		return nil
	}
	defer os.Remove(s.file.Name())

	var replayErr error
	if failed {
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			replayErr = err
		} else if _, err := io.Copy(s.stderr, s.file); err != nil {
			replayErr = err
		}
	}
	if err := s.file.Close(); err != nil && replayErr == nil {
		replayErr = err
	}
	s.file = nil
	if replayErr != nil {
		return fmt.Errorf("replaying run log: %w", replayErr)
	}
	return nil
}

// Path returns the temporary log file, or "" for interactive sessions.
func (s *Session) Path() string {
	if s.file == nil {
		return ""
	}
	return s.file.Name()
}
