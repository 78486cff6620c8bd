package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/agentx-labs/agentd-updater/internal/branding"
	"github.com/agentx-labs/agentd-updater/internal/config"
	"github.com/spf13/cobra"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	envFile  string
	logLevel string
)

// errReported marks failures that were already logged, so Execute does not
// print them a second time.
var errReported = errors.New("update failed")

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` updater checks the configured release channel for a newer build,
downloads and verifies it, asks running instances to save their state and
runs the release installer. It is meant to be run periodically (cron or a
systemd timer) and exits 0 when there is nothing to do.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runUpdate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Environment file with the installation settings (default "+branding.EnvironmentFile()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// loadConfig reads the environment file selected by --env-file.
func loadConfig() (*config.Config, error) {
	path := envFile
	if path == "" {
		path = config.DefaultEnvironmentFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
