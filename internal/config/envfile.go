package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PurgeDeprecatedKeys rewrites the environment file at path without any
// assignment whose key starts with one of prefixes. Comments, blank lines
// and other assignments are kept in order. A missing file is not an error.
// It returns the number of lines removed.
func PurgeDeprecatedKeys(path string, prefixes ...string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading environment file %s: %w", path, err)
	}

	var out bytes.Buffer
	removed := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if key, ok := envKey(line); ok && hasAnyPrefix(key, prefixes) {
			removed++
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reading environment file %s: %w", path, err)
	}
	if removed == 0 {
		return 0, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat environment file %s: %w", path, err)
	}

	// Replace via rename so a crash never leaves a half-written file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".environment-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp environment file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(out.Bytes()); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing environment file: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("setting environment file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing environment file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("replacing environment file %s: %w", path, err)
	}
	return removed, nil
}

// envKey returns the variable name assigned on a shell-style line, skipping
// blank lines, comments and an optional "export" keyword.
func envKey(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	line = strings.TrimPrefix(line, "export ")
	key, _, found := strings.Cut(line, "=")
	if !found {
		return "", false
	}
	return strings.TrimSpace(key), true
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(strings.ToUpper(key), strings.ToUpper(p)) {
			return true
		}
	}
	return false
}
