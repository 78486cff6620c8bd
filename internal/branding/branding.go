// Package branding provides compile-time identity values for the updater.
//
// Forkers edit branding.yaml in this package before building. Go's
// //go:embed bakes it into the binary, so a rebranded updater targets a
// different agent, release repository and environment prefix without code
// changes.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName         string `yaml:"cli_name"`
	AgentName       string `yaml:"agent_name"`
	DisplayName     string `yaml:"display_name"`
	Description     string `yaml:"description"`
	EnvPrefix       string `yaml:"env_prefix"`
	GoModule        string `yaml:"go_module"`
	GitHubRepo      string `yaml:"github_repo"`
	NightlyBaseURL  string `yaml:"nightly_base_url"`
	InstallerScript string `yaml:"installer_script"`
	EnvironmentFile string `yaml:"environment_file"`
}

func load() {
	once.Do(func() {
		// Set hard defaults in case the embedded file is missing/empty.
		defaults = brand{
			CLIName:         "agentd-updater",
			AgentName:       "agentd",
			DisplayName:     "Agentd",
			Description:     "Self-update orchestrator for the agentd background agent",
			EnvPrefix:       "AGENTD",
			GoModule:        "github.com/agentx-labs/agentd-updater",
			GitHubRepo:      "agentx-labs/agentd",
			NightlyBaseURL:  "https://github.com/agentx-labs/agentd-nightlies/releases/latest/download",
			InstallerScript: "agentd-installer.sh",
			EnvironmentFile: "/etc/agentd/.environment",
		}
		// Overlay with embedded YAML values.
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "agentd-updater").
func CLIName() string { load(); return defaults.CLIName }

// AgentName returns the process and binary name of the agent being updated.
func AgentName() string { load(); return defaults.AgentName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// EnvPrefix returns the environment variable prefix (e.g., "AGENTD").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GoModule returns the Go module path, reported by the version command.
func GoModule() string { load(); return defaults.GoModule }

// GitHubRepo returns the "owner/repo" string releases are published under.
func GitHubRepo() string { load(); return defaults.GitHubRepo }

// NightlyBaseURL returns the default location of nightly artifacts.
func NightlyBaseURL() string { load(); return defaults.NightlyBaseURL }

// InstallerScript returns the installer file name shipped inside tarballs.
func InstallerScript() string { load(); return defaults.InstallerScript }

// EnvironmentFile returns the default path of the agent's environment file.
func EnvironmentFile() string { load(); return defaults.EnvironmentFile }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("prefix") → "AGENTD_PREFIX".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
