package updater

import (
	"context"
	"os/exec"
	"time"
)

// probeTimeout bounds how long the installed binary may take to report
// its version.
const probeTimeout = 10 * time.Second

// VersionProber reports the version of the installed agent. It returns the
// zero key when the binary is absent or cannot be queried.
type VersionProber interface {
	CurrentVersion(ctx context.Context) VersionKey
}

// BinaryProber runs "<Path> -V" and decodes its output.
type BinaryProber struct {
	Path string
}

func (b BinaryProber) CurrentVersion(ctx context.Context) VersionKey {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, b.Path, "-V").Output()
	if err != nil {
		return VersionKey{}
	}
	return ParseVersionOutput(string(out))
}
