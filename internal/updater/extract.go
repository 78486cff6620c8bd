package updater

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxExtractBytes caps the total size of an unpacked tarball, guarding
// against decompression bombs.
const maxExtractBytes = 2 << 30

// ErrInstallerNotFound indicates the unpacked tarball has no installer.
var ErrInstallerNotFound = errors.New("installer not found in archive")

// ExtractTarGz unpacks archivePath into destDir. Every entry is created
// through an os.Root on destDir, so neither ".." names nor chains of
// symlinks can place a file outside it. Only regular files, directories
// and symlinks pointing inside destDir are created.
func ExtractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", destDir, err)
	}
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return err
	}
	defer root.Close()

	var total int64
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		name := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, 0755); err != nil {
				return fmt.Errorf("creating directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			total += hdr.Size
			if total > maxExtractBytes {
				return fmt.Errorf("archive exceeds %d bytes when unpacked", int64(maxExtractBytes))
			}
			if err := writeEntry(root, name, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			link := filepath.FromSlash(hdr.Linkname)
			if filepath.IsAbs(link) || !filepath.IsLocal(filepath.Join(filepath.Dir(name), link)) {
				return fmt.Errorf("symlink %s points outside the archive", hdr.Name)
			}
			if err := root.MkdirAll(filepath.Dir(name), 0755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", hdr.Name, err)
			}
			if err := root.Symlink(link, name); err != nil {
				return fmt.Errorf("creating symlink %s: %w", hdr.Name, err)
			}
		default:
			// Devices, fifos and hard links have no place in a release tarball.
		}
	}
	return nil
}

func writeEntry(root *os.Root, name string, r io.Reader, perm os.FileMode) error {
	if err := root.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}
	out, err := root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FindInstaller locates the installer script inside an unpacked tarball.
// Release tarballs contain a single top-level "<agent>-*" directory; the
// installer sits at its root.
func FindInstaller(dir, agent, script string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading unpacked sources: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), agent+"-") {
			continue
		}
		candidate := filepath.Join(dir, e.Name(), script)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no %s-*/%s under %s", ErrInstallerNotFound, agent, script, dir)
}
