//go:build integration

package integration_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// testEnv holds the paths of one sandboxed installation.
type testEnv struct {
	Root    string // PREFIX for the fake installation
	LibDir  string // LIB_DIR with the checksum cache and lock
	TmpDir  string // TMPDIR for workspaces
	EnvFile string // the environment file
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		Root:    root,
		LibDir:  filepath.Join(root, "var", "lib", "agentd"),
		TmpDir:  filepath.Join(root, "tmp"),
		EnvFile: filepath.Join(root, "etc", "agentd", ".environment"),
	}
	for _, dir := range []string{env.LibDir, env.TmpDir, filepath.Dir(env.EnvFile)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}
	return env
}

// release is a fake release server: a releases API, a download tree and a
// request log.
type release struct {
	Tag      string
	Tarball  []byte
	Server   *httptest.Server
	mu       sync.Mutex
	requests []string
}

// installerScript installs a fake agentd that reports version $1 and
// records its arguments.
const installerScript = `#!/bin/sh
set -e
mkdir -p "$AGENTD_E2E_PREFIX/usr/sbin"
cat > "$AGENTD_E2E_PREFIX/usr/sbin/agentd" <<AGENT
#!/bin/sh
echo "agentd __TAG__"
AGENT
chmod 755 "$AGENTD_E2E_PREFIX/usr/sbin/agentd"
echo "$@" > "$AGENTD_E2E_PREFIX/installer-args"
`

func newRelease(t *testing.T, tag string) *release {
	t.Helper()
	r := &release{Tag: tag}
	r.Tarball = buildTarball(t, map[string]string{
		"agentd-" + tag + "/agentd-installer.sh": strings.ReplaceAll(installerScript, "__TAG__", tag),
		"agentd-" + tag + "/README":              "agentd " + tag + "\n",
	})
	sum := sha256.Sum256(r.Tarball)
	tarballName := "agentd-" + tag + ".tar.gz"

	mux := http.NewServeMux()
	mux.HandleFunc("/api/repos/agentx-labs/agentd/releases/latest", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"url":"x","tag_name":"` + tag + `","assets":[]}`))
	})
	mux.HandleFunc("/dl/"+tag+"/sha256sums.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(hex.EncodeToString(sum[:]) + "  " + tarballName + "\n"))
	})
	mux.HandleFunc("/dl/"+tag+"/"+tarballName, func(w http.ResponseWriter, _ *http.Request) {
		w.Write(r.Tarball)
	})
	r.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.requests = append(r.requests, req.URL.Path)
		r.mu.Unlock()
		mux.ServeHTTP(w, req)
	}))
	t.Cleanup(r.Server.Close)
	return r
}

// Requested counts requests whose path ends with suffix.
func (r *release) Requested(suffix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.requests {
		if strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0755, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// writeEnvFile writes an environment file pointing the updater at r.
func writeEnvFile(t *testing.T, env *testEnv, r *release, extra string) {
	t.Helper()
	content := strings.Join([]string{
		`RELEASE_CHANNEL="stable"`,
		`RELEASES_API="` + r.Server.URL + `/api"`,
		`RELEASES_DOWNLOAD_BASE="` + r.Server.URL + `/dl"`,
		`PREFIX="` + env.Root + `"`,
		`LIB_DIR="` + env.LibDir + `"`,
		`TMPDIR="` + env.TmpDir + `"`,
		`TRANSPORTS="http"`,
		`CHECKSUM_TOOLS="native"`,
		`INSTALL_UID="` + strconv.Itoa(os.Geteuid()) + `"`,
		extra,
	}, "\n")
	writeFile(t, env.EnvFile, content)
}

// writeFile creates a file at the given path with the given content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating dir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// assertFileExists fails the test if the file does not exist.
func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %s (error: %v)", path, err)
	}
}

// assertFileContains fails if the file doesn't exist or doesn't contain substr.
func assertFileContains(t *testing.T, path, substr string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("reading %s: %v", path, err)
		return
	}
	if !strings.Contains(string(data), substr) {
		t.Errorf("file %s does not contain %q.\nContents:\n%s", path, substr, string(data))
	}
}

// assertDirEmpty fails if dir has any entries.
func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Errorf("reading %s: %v", dir, err)
		return
	}
	if len(entries) != 0 {
		t.Errorf("expected %s to be empty, found %d entries", dir, len(entries))
	}
}
