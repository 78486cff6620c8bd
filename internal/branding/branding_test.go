package branding

import (
	"strings"
	"testing"
)

func TestEmbeddedDefaults(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"cli name", CLIName(), "agentd-updater"},
		{"agent name", AgentName(), "agentd"},
		{"env prefix", EnvPrefix(), "AGENTD"},
		{"installer", InstallerScript(), "agentd-installer.sh"},
		{"environment file", EnvironmentFile(), "/etc/agentd/.environment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	if strings.Count(GitHubRepo(), "/") != 1 {
		t.Errorf("GitHubRepo = %q, want owner/repo", GitHubRepo())
	}
	if !strings.HasPrefix(NightlyBaseURL(), "https://") {
		t.Errorf("NightlyBaseURL = %q", NightlyBaseURL())
	}
}

func TestEnvVar(t *testing.T) {
	if got := EnvVar("release_channel"); got != "AGENTD_RELEASE_CHANNEL" {
		t.Errorf("EnvVar = %q", got)
	}
}
