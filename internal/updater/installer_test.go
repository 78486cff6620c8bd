package updater

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

func TestInstallRequest_Args(t *testing.T) {
	tests := []struct {
		name string
		req  InstallRequest
		want []string
	}{
		{"bare", InstallRequest{}, []string{}},
		{"dont wait", InstallRequest{DontWait: true}, []string{"--dont-wait"}},
		{
			"options and flags",
			InstallRequest{Options: []string{"--stable-channel", "--disable-telemetry"}, DontWait: true, DontStart: true},
			[]string{"--stable-channel", "--disable-telemetry", "--dont-wait", "--dont-start-it"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Args(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInstallRequest_ArgsDoesNotAlias(t *testing.T) {
	opts := make([]string, 1, 4)
	opts[0] = "--x"
	req := InstallRequest{Options: opts, DontWait: true}
	req.Args()
	if got := opts[:2]; got[1] != "" {
		t.Errorf("Args wrote into the options backing array: %q", got)
	}
}

func TestSplitOptions(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"--stable-channel", []string{"--stable-channel"}, false},
		{`--install-prefix "/opt/my agent" --disable-telemetry`, []string{"--install-prefix", "/opt/my agent", "--disable-telemetry"}, false},
		{`--claim-token 'a b'`, []string{"--claim-token", "a b"}, false},
		{`--broken "unterminated`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SplitOptions(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitOptions(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestScriptInstaller(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("installer scripts require /bin/sh")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "agentd-installer.sh")
	writeFile(t, script, []byte("#!/bin/sh\necho \"$PWD $*\"\n[ \"$1\" = fail ] && exit 3\nexit 0\n"))

	var out bytes.Buffer
	inst := &ScriptInstaller{Path: script, Stdout: &out, Stderr: &out}

	code, err := inst.Install(context.Background(), InstallRequest{Options: []string{"--opt"}, DontWait: true})
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "--opt --dont-wait") {
		t.Errorf("installer output %q lacks expected arguments", out.String())
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if !strings.Contains(out.String(), dir) && !strings.Contains(out.String(), resolved) {
		t.Errorf("installer did not run from %s: %q", dir, out.String())
	}

	code, err = inst.Install(context.Background(), InstallRequest{Options: []string{"fail"}})
	if err != nil {
		t.Fatalf("Install failed to start: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestScriptInstaller_Missing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("installer scripts require /bin/sh")
	}
	inst := &ScriptInstaller{Path: filepath.Join(t.TempDir(), "nope", "agentd-installer.sh")}
	if _, err := inst.Install(context.Background(), InstallRequest{}); err == nil {
		t.Error("expected error for missing installer directory")
	}
}

func TestInstallerError(t *testing.T) {
	err := error(&InstallerError{Installer: "agentd-installer.sh", ExitCode: 2})
	if !errors.Is(err, ErrInstallerFailed) {
		t.Error("InstallerError should unwrap to ErrInstallerFailed")
	}
	if !strings.Contains(err.Error(), "status 2") {
		t.Errorf("message %q lacks exit status", err.Error())
	}
}

func TestBinaryProber_Missing(t *testing.T) {
	p := BinaryProber{Path: filepath.Join(t.TempDir(), "agentd")}
	if got := p.CurrentVersion(context.Background()); !got.IsZero() {
		t.Errorf("CurrentVersion = %+v, want zero key", got)
	}
}

func TestBinaryProber(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake agent requires /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "agentd")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho \"agentd v1.29.5-10-gdeadbeef\"\n"), 0755); err != nil {
		t.Fatal(err)
	}

	got := BinaryProber{Path: path}.CurrentVersion(context.Background())
	if got != (VersionKey{1, 29, 5, 10}) {
		t.Errorf("CurrentVersion = %+v", got)
	}
}
