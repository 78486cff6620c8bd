package cli

import (
	"fmt"

	"github.com/agentx-labs/agentd-updater/internal/updater"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether a newer release is available",
	Long: `Compares the installed agent version with the latest release on the
configured channel. Nothing is downloaded or installed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		u, err := updater.New(cfg)
		if err != nil {
			return err
		}

		res, err := u.Check(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking for updates: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Channel:   %s\n", cfg.Channel)
		fmt.Fprintf(out, "Installed: %s\n", res.Current.Display())
		fmt.Fprintf(out, "Latest:    %s\n", res.Latest.Display())
		if res.Decision == updater.DecisionSkip {
			fmt.Fprintln(out, "The installed release is up to date.")
		} else if kind := updater.UpgradeKind(res.Current, res.Latest); kind != "" {
			fmt.Fprintf(out, "A %s update is available.\n", kind)
		} else {
			fmt.Fprintln(out, "An update is available.")
		}
		return nil
	},
}
