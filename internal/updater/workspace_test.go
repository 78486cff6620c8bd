package updater

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestNewWorkspace_PreferredDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("probe script requires /bin/sh")
	}
	base := t.TempDir()

	ws, err := NewWorkspace(context.Background(), WorkspaceConfig{Preferred: base, fallbacks: []string{}})
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}
	if filepath.Dir(ws.Path) != base {
		t.Errorf("workspace %s not created under %s", ws.Path, base)
	}
	if !strings.HasPrefix(filepath.Base(ws.Path), "agentd-updater-") {
		t.Errorf("unexpected workspace name %s", filepath.Base(ws.Path))
	}

	// The probe directory must not be left behind.
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("base contains %d entries, want only the workspace", len(entries))
	}

	if err := ws.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(ws.Path); !os.IsNotExist(err) {
		t.Error("workspace still exists after Close")
	}
}

func TestNewWorkspace_FallsBackWhenNoexec(t *testing.T) {
	noexec := t.TempDir()
	fallback := t.TempDir()

	probe := func(ctx context.Context, path string) error {
		if strings.HasPrefix(path, noexec) {
			return errors.New("permission denied")
		}
		return nil
	}

	ws, err := NewWorkspace(context.Background(), WorkspaceConfig{
		Preferred: noexec,
		Probe:     probe,
		fallbacks: []string{fallback},
	})
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}
	defer ws.Close()

	if filepath.Dir(ws.Path) != fallback {
		t.Errorf("workspace %s not created under fallback %s", ws.Path, fallback)
	}
}

func TestNewWorkspace_SkipsMissingAndFiles(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "not-a-dir")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	good := filepath.Join(tmp, "good")
	if err := os.Mkdir(good, 0755); err != nil {
		t.Fatal(err)
	}

	ws, err := NewWorkspace(context.Background(), WorkspaceConfig{
		Preferred: filepath.Join(tmp, "missing"),
		Probe:     func(context.Context, string) error { return nil },
		fallbacks: []string{file, good},
	})
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}
	defer ws.Close()

	if filepath.Dir(ws.Path) != good {
		t.Errorf("workspace %s not created under %s", ws.Path, good)
	}
}

func TestNewWorkspace_NoUsableDir(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()

	_, err := NewWorkspace(context.Background(), WorkspaceConfig{
		Preferred: a,
		Probe:     func(context.Context, string) error { return errors.New("noexec") },
		fallbacks: []string{b},
	})
	if !errors.Is(err, ErrNoUsableTempDir) {
		t.Fatalf("expected ErrNoUsableTempDir, got %v", err)
	}
	if !strings.Contains(err.Error(), a) || !strings.Contains(err.Error(), b) {
		t.Errorf("error should name every directory tried: %v", err)
	}
}

func TestWorkspace_Preserve(t *testing.T) {
	ws, err := NewWorkspace(context.Background(), WorkspaceConfig{
		Probe:     func(context.Context, string) error { return nil },
		fallbacks: []string{t.TempDir()},
	})
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}

	ws.Preserve()
	if err := ws.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(ws.Path); err != nil {
		t.Errorf("preserved workspace was removed: %v", err)
	}
	if !ws.Preserved() {
		t.Error("Preserved() = false after Preserve")
	}
}

func TestWorkspace_NilClose(t *testing.T) {
	var ws *Workspace
	if err := ws.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
}
