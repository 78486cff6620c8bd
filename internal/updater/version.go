package updater

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Upper bounds for each VersionKey component. They match the widths of the
// zero-padded rendering, so String() never overflows its columns.
const (
	maxVersionPart = 999
	maxBuildPart   = 99999
)

// VersionKey is a totally ordered decoding of a loosely structured release
// identifier such as "v1.30.0-12-gabcdef".
type VersionKey struct {
	Major int
	Minor int
	Patch int
	Build int
}

// ParseVersion decodes raw into a VersionKey. It never fails: an optional
// leading "v" is stripped, the build counter is the first hyphen-separated
// field after the version, anything after it is discarded, and any missing
// or non-numeric component becomes 0.
func ParseVersion(raw string) VersionKey {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "v")
	raw = strings.TrimPrefix(raw, "V")

	fields := strings.SplitN(raw, "-", 3)
	parts := strings.SplitN(fields[0], ".", 4)

	var k VersionKey
	k.Major = component(parts, 0, maxVersionPart)
	k.Minor = component(parts, 1, maxVersionPart)
	k.Patch = component(parts, 2, maxVersionPart)
	k.Build = component(fields, 1, maxBuildPart)
	return k
}

// ParseVersionOutput decodes the agent's "-V" output ("agentd v1.30.0"),
// using the last field of the first non-empty line.
func ParseVersionOutput(out string) VersionKey {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return ParseVersion(fields[len(fields)-1])
	}
	return VersionKey{}
}

func component(parts []string, i, max int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil || n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// IsZero reports whether every component is 0, which means the source
// string could not be decoded at all.
func (k VersionKey) IsZero() bool {
	return k == VersionKey{}
}

// Compare returns -1, 0 or 1 as k is less than, equal to, or greater than o.
func (k VersionKey) Compare(o VersionKey) int {
	for _, d := range [...]int{k.Major - o.Major, k.Minor - o.Minor, k.Patch - o.Patch, k.Build - o.Build} {
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
	}
	return 0
}

// String renders the fixed-width zero-padded form. Lexicographic order of
// two rendered keys equals Compare.
func (k VersionKey) String() string {
	return fmt.Sprintf("%03d%03d%03d%05d", k.Major, k.Minor, k.Patch, k.Build)
}

// Semver returns the key as a semantic version for display. The build
// counter is carried as build metadata.
func (k VersionKey) Semver() *semver.Version {
	meta := ""
	if k.Build > 0 {
		meta = strconv.Itoa(k.Build)
	}
	return semver.New(uint64(k.Major), uint64(k.Minor), uint64(k.Patch), "", meta)
}

// Display returns a human-readable form such as "v1.30.0" or "v1.29.5-10",
// or "unknown" for a zero key.
func (k VersionKey) Display() string {
	if k.IsZero() {
		return "unknown"
	}
	s := fmt.Sprintf("v%d.%d.%d", k.Major, k.Minor, k.Patch)
	if k.Build > 0 {
		s += "-" + strconv.Itoa(k.Build)
	}
	return s
}

// ShouldSkip reports whether the installed version already satisfies the
// latest one. A comparison is only trusted when both keys decoded; an
// unknown key on either side never counts as "up to date".
func ShouldSkip(current, latest VersionKey) bool {
	if current.IsZero() || latest.IsZero() {
		return false
	}
	return current.Compare(latest) >= 0
}

// UpgradeKind names the most significant component that changes between
// current and latest: "major", "minor", "patch" or "build". It returns ""
// when either key is unknown or latest is not newer.
func UpgradeKind(current, latest VersionKey) string {
	if current.IsZero() || latest.IsZero() || current.Compare(latest) >= 0 {
		return ""
	}
	c, l := current.Semver(), latest.Semver()
	switch {
	case l.Major() != c.Major():
		return "major"
	case l.Minor() != c.Minor():
		return "minor"
	case l.Patch() != c.Patch():
		return "patch"
	}
	return "build"
}
