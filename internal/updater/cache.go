package updater

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadChecksum reads the checksum persisted by the previous successful
// update. When the file does not exist, fallback (the legacy value from
// the environment file) is returned instead.
func LoadChecksum(path, fallback string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return strings.TrimSpace(fallback), nil
	}
	if err != nil {
		return "", fmt.Errorf("reading checksum cache: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), nil
}

// SaveChecksum overwrites the checksum cache with sum. Concurrent runs are
// serialized by the update lock, not by this function.
func SaveChecksum(path, sum string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating checksum directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sum+"\n"), 0644); err != nil {
		return fmt.Errorf("writing checksum cache: %w", err)
	}
	return nil
}
