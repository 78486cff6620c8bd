package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agentx-labs/agentd-updater/internal/branding"
	"github.com/spf13/viper"
)

// Channel selects which release stream the updater follows.
type Channel string

const (
	ChannelStable  Channel = "stable"
	ChannelNightly Channel = "nightly"
)

// Keys read from the environment file. Each may be overridden by the
// prefixed process environment variable (e.g. AGENTD_RELEASE_CHANNEL).
const (
	KeyReleaseChannel       = "release_channel"
	KeyNightliesBaseURL     = "nightlies_baseurl"
	KeyReleasesAPI          = "releases_api"
	KeyReleasesDownloadBase = "releases_download_base"
	KeyStaticBinary         = "is_static_binary"
	KeyReinstallOptions     = "reinstall_options"
	KeyInstallUID           = "install_uid"
	KeyPrefix               = "prefix"
	KeyLibDir               = "lib_dir"
	KeyTmpDir               = "tmpdir"
	KeyTransports           = "transports"
	KeyChecksumTools        = "checksum_tools"
	KeyFetchRetries         = "fetch_retries"
	KeyRandomDelayMax       = "random_delay_max"
	KeyTarballChecksum      = "tarball_checksum"
)

// DeprecatedKeyPrefix marks environment file keys that older updaters used
// to cache checksum state. They are purged after a successful update.
const DeprecatedKeyPrefix = "TARBALL_"

// ErrInvalidConfig is returned when settings fail schema validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the updater configuration assembled once at startup. It is not
// modified after Load returns.
type Config struct {
	EnvironmentFile      string
	Channel              Channel
	NightlyBaseURL       string
	ReleasesAPI          string
	ReleasesDownloadBase string
	StaticBinary         bool
	ReinstallOptions     string
	InstallUID           int
	Prefix               string
	LibDir               string
	TmpDir               string
	Transports           []string
	ChecksumTools        []string
	FetchRetries         int
	RandomDelayMax       time.Duration

	// LegacyChecksum is the checksum cached by older updaters in the
	// environment file. Only consulted when the checksum file is absent.
	LegacyChecksum string
}

// AgentBinary returns the path of the installed agent binary.
func (c *Config) AgentBinary() string {
	return filepath.Join("/", c.Prefix, "usr", "sbin", branding.AgentName())
}

// ChecksumFile returns the path of the persisted tarball checksum.
func (c *Config) ChecksumFile() string {
	return filepath.Join(c.LibDir, branding.AgentName()+".tarball.checksum")
}

// LockFile returns the path of the cross-process update lock.
func (c *Config) LockFile() string {
	return filepath.Join(c.LibDir, branding.CLIName()+".lock")
}

// DefaultEnvironmentFile returns the environment file path, honoring the
// prefixed ENVIRONMENT_FILE variable.
func DefaultEnvironmentFile() string {
	if p := os.Getenv(branding.EnvVar("environment_file")); p != "" {
		return p
	}
	return branding.EnvironmentFile()
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(branding.EnvPrefix())
	v.AutomaticEnv()

	v.SetDefault(KeyReleaseChannel, string(ChannelNightly))
	v.SetDefault(KeyNightliesBaseURL, branding.NightlyBaseURL())
	v.SetDefault(KeyReleasesAPI, "https://api.github.com")
	v.SetDefault(KeyReleasesDownloadBase, "https://github.com/"+branding.GitHubRepo()+"/releases/download")
	v.SetDefault(KeyStaticBinary, "no")
	v.SetDefault(KeyInstallUID, "0")
	v.SetDefault(KeyTransports, "curl,wget")
	v.SetDefault(KeyChecksumTools, "sha256sum,shasum,native")
	v.SetDefault(KeyFetchRetries, "3")
	v.SetDefault(KeyRandomDelayMax, "3600")
	return v
}

// Load reads the environment file at path (a missing file is not an
// error), overlays the prefixed process environment, validates the result
// and returns the immutable Config.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading environment file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat environment file %s: %w", path, err)
		}
	}

	settings := Settings(v)
	result, err := Validate(settings)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, &ValidationError{Issues: result.Issues}
	}

	cfg := &Config{
		EnvironmentFile:      path,
		Channel:              Channel(settings[KeyReleaseChannel].(string)),
		NightlyBaseURL:       strings.TrimRight(v.GetString(KeyNightliesBaseURL), "/"),
		ReleasesAPI:          strings.TrimRight(v.GetString(KeyReleasesAPI), "/"),
		ReleasesDownloadBase: strings.TrimRight(v.GetString(KeyReleasesDownloadBase), "/"),
		StaticBinary:         parseBool(v.GetString(KeyStaticBinary)),
		ReinstallOptions:     strings.TrimSpace(v.GetString(KeyReinstallOptions)),
		Prefix:               v.GetString(KeyPrefix),
		TmpDir:               v.GetString(KeyTmpDir),
		Transports:           settings[KeyTransports].([]string),
		ChecksumTools:        settings[KeyChecksumTools].([]string),
		LegacyChecksum:       strings.TrimSpace(v.GetString(KeyTarballChecksum)),
	}

	// Validation guarantees these parse.
	cfg.InstallUID, _ = strconv.Atoi(settings[KeyInstallUID].(string))
	cfg.FetchRetries, _ = strconv.Atoi(settings[KeyFetchRetries].(string))
	delay, _ := strconv.Atoi(settings[KeyRandomDelayMax].(string))
	cfg.RandomDelayMax = time.Duration(delay) * time.Second

	cfg.LibDir = v.GetString(KeyLibDir)
	if cfg.LibDir == "" {
		cfg.LibDir = filepath.Join("/", cfg.Prefix, "var", "lib", branding.AgentName())
	}

	return cfg, nil
}

// Settings returns the normalized raw settings that are subject to schema
// validation, keyed by their lower-case names.
func Settings(v *viper.Viper) map[string]any {
	return map[string]any{
		KeyReleaseChannel:       strings.ToLower(strings.TrimSpace(v.GetString(KeyReleaseChannel))),
		KeyNightliesBaseURL:     v.GetString(KeyNightliesBaseURL),
		KeyReleasesAPI:          v.GetString(KeyReleasesAPI),
		KeyReleasesDownloadBase: v.GetString(KeyReleasesDownloadBase),
		KeyStaticBinary:         strings.ToLower(strings.TrimSpace(v.GetString(KeyStaticBinary))),
		KeyInstallUID:           strings.TrimSpace(v.GetString(KeyInstallUID)),
		KeyFetchRetries:         strings.TrimSpace(v.GetString(KeyFetchRetries)),
		KeyRandomDelayMax:       strings.TrimSpace(v.GetString(KeyRandomDelayMax)),
		KeyTransports:           splitList(v.GetString(KeyTransports)),
		KeyChecksumTools:        splitList(v.GetString(KeyChecksumTools)),
	}
}

// Values returns every effective setting as display strings, for the
// config command.
func (c *Config) Values() map[string]string {
	return map[string]string{
		KeyReleaseChannel:       string(c.Channel),
		KeyNightliesBaseURL:     c.NightlyBaseURL,
		KeyReleasesAPI:          c.ReleasesAPI,
		KeyReleasesDownloadBase: c.ReleasesDownloadBase,
		KeyStaticBinary:         strconv.FormatBool(c.StaticBinary),
		KeyReinstallOptions:     c.ReinstallOptions,
		KeyInstallUID:           strconv.Itoa(c.InstallUID),
		KeyPrefix:               c.Prefix,
		KeyLibDir:               c.LibDir,
		KeyTmpDir:               c.TmpDir,
		KeyTransports:           strings.Join(c.Transports, ","),
		KeyChecksumTools:        strings.Join(c.ChecksumTools, ","),
		KeyFetchRetries:         strconv.Itoa(c.FetchRetries),
		KeyRandomDelayMax:       c.RandomDelayMax.String(),
	}
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return true
	}
	return false
}
