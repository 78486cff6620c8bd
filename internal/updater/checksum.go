package updater

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	// ErrNoChecksumTool indicates none of the configured hashers is available.
	ErrNoChecksumTool = errors.New("no checksum tool available")

	// ErrChecksumMismatch indicates an artifact does not match its manifest entry.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Hasher computes the SHA-256 digest of a file as lower-case hex.
type Hasher interface {
	Name() string
	Available() bool
	Sum(ctx context.Context, path string) (string, error)
}

// commandHasher runs an external tool whose output starts with the digest.
type commandHasher struct {
	name string
	tool string
	args []string
}

// Sha256sumHasher uses coreutils sha256sum.
func Sha256sumHasher() Hasher {
	return &commandHasher{name: "sha256sum", tool: "sha256sum"}
}

// ShasumHasher uses perl's shasum, common on BSD and macOS.
func ShasumHasher() Hasher {
	return &commandHasher{name: "shasum", tool: "shasum", args: []string{"-a", "256"}}
}

func (c *commandHasher) Name() string { return c.name }

func (c *commandHasher) Available() bool {
	_, err := lookPath(c.tool)
	return err == nil
}

func (c *commandHasher) Sum(ctx context.Context, path string) (string, error) {
	bin, err := lookPath(c.tool)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", c.tool, err)
	}
	args := append(append([]string{}, c.args...), path)
	out, err := exec.CommandContext(ctx, bin, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", c.tool, path, err)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 || !isValidHexHash(fields[0]) {
		return "", fmt.Errorf("%s produced unexpected output %q", c.tool, strings.TrimSpace(string(out)))
	}
	return strings.ToLower(fields[0]), nil
}

// NativeHasher hashes in-process with crypto/sha256.
type NativeHasher struct{}

func (NativeHasher) Name() string    { return "native" }
func (NativeHasher) Available() bool { return true }

func (NativeHasher) Sum(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HasherByName maps a CHECKSUM_TOOLS entry to its implementation.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "sha256sum":
		return Sha256sumHasher(), nil
	case "shasum":
		return ShasumHasher(), nil
	case "native":
		return NativeHasher{}, nil
	}
	return nil, fmt.Errorf("unknown checksum tool %q", name)
}

// Checksummer picks the first available Hasher.
type Checksummer struct {
	hashers []Hasher
}

// NewChecksummer returns a Checksummer over hashers in priority order.
func NewChecksummer(hashers ...Hasher) *Checksummer {
	return &Checksummer{hashers: hashers}
}

// NewChecksummerFromNames builds a Checksummer from CHECKSUM_TOOLS entries.
func NewChecksummerFromNames(names []string) (*Checksummer, error) {
	hashers := make([]Hasher, 0, len(names))
	for _, name := range names {
		h, err := HasherByName(name)
		if err != nil {
			return nil, err
		}
		hashers = append(hashers, h)
	}
	return NewChecksummer(hashers...), nil
}

// Select returns the first available hasher.
func (c *Checksummer) Select() (Hasher, error) {
	for _, h := range c.hashers {
		if h.Available() {
			return h, nil
		}
	}
	return nil, ErrNoChecksumTool
}

// Checksum returns the lower-case hex SHA-256 of the file at path.
func (c *Checksummer) Checksum(ctx context.Context, path string) (string, error) {
	h, err := c.Select()
	if err != nil {
		return "", err
	}
	return h.Sum(ctx, path)
}

// Verify reports whether the archive's checksum equals the manifest entry
// for its file name. A missing entry or a mismatch is (false, nil); only
// I/O failures return an error.
func (c *Checksummer) Verify(ctx context.Context, archivePath, manifestPath string) (bool, error) {
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return false, err
	}
	_, ok, err := c.VerifyAgainst(ctx, archivePath, m)
	return ok, err
}

// VerifyAgainst is Verify for an already parsed manifest. It also returns
// the archive's checksum when one was computed.
func (c *Checksummer) VerifyAgainst(ctx context.Context, archivePath string, m *Manifest) (string, bool, error) {
	want, ok := m.Lookup(filepath.Base(archivePath))
	if !ok {
		return "", false, nil
	}
	got, err := c.Checksum(ctx, archivePath)
	if err != nil {
		return "", false, err
	}
	return got, strings.EqualFold(got, want), nil
}

// ManifestEntry is one "<digest>  <filename>" line.
type ManifestEntry struct {
	Hash     string
	Filename string
}

// Manifest is a parsed checksum listing.
type Manifest struct {
	Entries []ManifestEntry
}

// ParseManifest parses sha256sum-style output. Lines that do not start
// with a 64-character hex digest followed by whitespace and a file name are
// skipped; the name runs to the end of the line. A leading '*' (binary mode marker) on the file name is dropped.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) < 66 || !isValidHexHash(line[:64]) || (line[64] != ' ' && line[64] != '\t') {
			continue
		}
		// The file name is everything after the separator and may hold spaces.
		name := strings.TrimPrefix(strings.TrimLeft(line[64:], " \t"), "*")
		if name == "" {
			continue
		}
		m.Entries = append(m.Entries, ManifestEntry{
			Hash:     strings.ToLower(line[:64]),
			Filename: name,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return m, nil
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return ParseManifest(bytes.NewReader(data))
}

// Lookup returns the digest recorded for filename (exact match).
func (m *Manifest) Lookup(filename string) (string, bool) {
	for _, e := range m.Entries {
		if e.Filename == filename {
			return e.Hash, true
		}
	}
	return "", false
}

// Contains reports whether any entry carries hash.
func (m *Manifest) Contains(hash string) bool {
	if hash == "" {
		return false
	}
	for _, e := range m.Entries {
		if strings.EqualFold(e.Hash, hash) {
			return true
		}
	}
	return false
}

// isValidHexHash checks if s is a valid 64-character hex-encoded SHA256 hash.
func isValidHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
