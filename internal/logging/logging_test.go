package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestSession_InteractiveWritesDirectly(t *testing.T) {
	var stderr bytes.Buffer
	s, err := New(Options{Prefix: "agentd-updater", Interactive: true, Stderr: &stderr})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Logger.Info("hello")

	if !strings.Contains(stderr.String(), "hello") {
		t.Errorf("stderr = %q, want the message", stderr.String())
	}
	if s.Path() != "" {
		t.Errorf("interactive session has temp log %s", s.Path())
	}
	if err := s.Close(true); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSession_SuccessIsSilent(t *testing.T) {
	var stderr bytes.Buffer
	s, err := New(Options{TempDir: t.TempDir(), Stderr: &stderr})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	path := s.Path()
	if path == "" {
		t.Fatal("non-interactive session has no temp log")
	}
	s.Logger.Info("scheduled run finished")

	if err := s.Close(false); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if stderr.Len() != 0 {
		t.Errorf("stderr = %q, want nothing on success", stderr.String())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("temp log not removed")
	}
}

func TestSession_FailureReplaysLog(t *testing.T) {
	var stderr bytes.Buffer
	s, err := New(Options{TempDir: t.TempDir(), Stderr: &stderr, Level: "debug"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	path := s.Path()
	s.Logger.Debug("downloading release")
	s.Logger.Error("checksum mismatch")

	if err := s.Close(true); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for _, want := range []string{"downloading release", "checksum mismatch", s.RunID[:8]} {
		if !strings.Contains(stderr.String(), want) {
			t.Errorf("replayed log lacks %q:\n%s", want, stderr.String())
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("temp log not removed")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud", Interactive: true}); err == nil {
		t.Error("expected error for unknown level")
	}
}
