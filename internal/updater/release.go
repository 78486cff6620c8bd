package updater

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/agentx-labs/agentd-updater/internal/branding"
	"github.com/agentx-labs/agentd-updater/internal/config"
)

// ErrNoTag indicates the releases metadata did not carry a tag name.
var ErrNoTag = errors.New("no tag_name in release metadata")

const (
	manifestName      = "sha256sums.txt"
	latestVersionName = "latest-version.txt"
	tarballExt        = ".tar.gz"
	selfExtractingExt = ".gz.run"
)

// tagNamePattern finds the tag without requiring the document to be valid
// JSON; truncated or decorated responses still resolve.
var tagNamePattern = regexp.MustCompile(`"tag_name"\s*:\s*"([^"]+)"`)

// Getter retrieves a remote resource into memory.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Artifact describes what to download for one run. It is read-only after
// Resolve returns it.
type Artifact struct {
	Tag              string
	TarballURL       string
	ChecksumURL      string
	ExpectedChecksum string
	Static           bool
}

// FileName is the artifact's base name, which is also its manifest key.
func (a *Artifact) FileName() string {
	return path.Base(a.TarballURL)
}

// Resolver maps a release channel to artifact and manifest URLs.
type Resolver struct {
	Channel             config.Channel
	Static              bool
	NightlyBaseURL      string
	ReleasesAPI         string
	ReleaseDownloadBase string
	Repo                string
	Getter              Getter

	tag string
}

// NewResolver builds a Resolver from the run configuration.
func NewResolver(cfg *config.Config, g Getter) *Resolver {
	return &Resolver{
		Channel:             cfg.Channel,
		Static:              cfg.StaticBinary,
		NightlyBaseURL:      cfg.NightlyBaseURL,
		ReleasesAPI:         cfg.ReleasesAPI,
		ReleaseDownloadBase: cfg.ReleasesDownloadBase,
		Repo:                branding.GitHubRepo(),
		Getter:              g,
	}
}

// LatestTag returns the newest stable release tag. The result is cached
// for the lifetime of the Resolver, so version lookup and artifact
// resolution share one round trip.
func (r *Resolver) LatestTag(ctx context.Context) (string, error) {
	if r.tag != "" {
		return r.tag, nil
	}

	url := fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimRight(r.ReleasesAPI, "/"), r.Repo)
	body, err := r.Getter.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetching release metadata: %w", err)
	}

	tag, err := ExtractTagName(body)
	if err != nil {
		return "", err
	}
	r.tag = tag
	return tag, nil
}

// ExtractTagName scans a releases metadata document for its tag_name.
func ExtractTagName(body []byte) (string, error) {
	m := tagNamePattern.FindSubmatch(body)
	if m == nil {
		return "", ErrNoTag
	}
	tag := strings.TrimSpace(string(m[1]))
	if tag == "" {
		return "", ErrNoTag
	}
	if strings.ContainsAny(tag, "/?#") {
		return "", fmt.Errorf("refusing unsafe release tag %q", tag)
	}
	return tag, nil
}

// Resolve returns the artifact for the configured channel. expected is the
// checksum cached by a previous run, possibly empty.
func (r *Resolver) Resolve(ctx context.Context, expected string) (*Artifact, error) {
	ext := tarballExt
	if r.Static {
		ext = selfExtractingExt
	}
	agent := branding.AgentName()

	switch r.Channel {
	case config.ChannelStable:
		tag, err := r.LatestTag(ctx)
		if err != nil {
			return nil, err
		}
		base := strings.TrimRight(r.ReleaseDownloadBase, "/") + "/" + tag
		return &Artifact{
			Tag:              tag,
			TarballURL:       fmt.Sprintf("%s/%s-%s%s", base, agent, tag, ext),
			ChecksumURL:      base + "/" + manifestName,
			ExpectedChecksum: expected,
			Static:           r.Static,
		}, nil
	case config.ChannelNightly:
		base := strings.TrimRight(r.NightlyBaseURL, "/")
		return &Artifact{
			Tag:              "latest",
			TarballURL:       fmt.Sprintf("%s/%s-latest%s", base, agent, ext),
			ChecksumURL:      base + "/" + manifestName,
			ExpectedChecksum: expected,
			Static:           r.Static,
		}, nil
	}
	return nil, fmt.Errorf("unknown release channel %q", r.Channel)
}

// LatestVersion returns the newest version available on the channel.
func (r *Resolver) LatestVersion(ctx context.Context) (VersionKey, error) {
	switch r.Channel {
	case config.ChannelStable:
		tag, err := r.LatestTag(ctx)
		if err != nil {
			return VersionKey{}, err
		}
		return ParseVersion(tag), nil
	case config.ChannelNightly:
		url := strings.TrimRight(r.NightlyBaseURL, "/") + "/" + latestVersionName
		body, err := r.Getter.Get(ctx, url)
		if err != nil {
			return VersionKey{}, fmt.Errorf("fetching nightly version: %w", err)
		}
		line, _, _ := strings.Cut(strings.TrimSpace(string(body)), "\n")
		return ParseVersion(line), nil
	}
	return VersionKey{}, fmt.Errorf("unknown release channel %q", r.Channel)
}
