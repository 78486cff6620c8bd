package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/agentx-labs/agentd-updater/internal/branding"
	"github.com/agentx-labs/agentd-updater/internal/config"
	"github.com/agentx-labs/agentd-updater/internal/instance"
	"github.com/agentx-labs/agentd-updater/internal/platform"
	"github.com/agentx-labs/agentd-updater/internal/updater"
	"github.com/spf13/cobra"
)

var doctorOffline bool

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "Skip checks that need the network")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that this host can run updates",
	Long: `Runs diagnostic checks: download and checksum tools, a usable temporary
directory, privileges, the installed agent and the release channel.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		d := &doctor{out: cmd.OutOrStdout()}
		ctx := cmd.Context()
		d.checkTools(cfg)
		d.checkWorkspace(ctx, cfg)
		d.checkInstallation(ctx, cfg)
		if !doctorOffline {
			d.checkChannel(ctx, cfg)
		}

		if d.failures > 0 {
			return fmt.Errorf("doctor found %d problem(s)", d.failures)
		}
		return nil
	},
}

type doctor struct {
	out      io.Writer
	failures int
}

func (d *doctor) ok(format string, a ...any) {
	fmt.Fprintf(d.out, "  [ OK ] "+format+"\n", a...)
}

func (d *doctor) warn(format string, a ...any) {
	fmt.Fprintf(d.out, "  [WARN] "+format+"\n", a...)
}

func (d *doctor) fail(format string, a ...any) {
	d.failures++
	fmt.Fprintf(d.out, "  [FAIL] "+format+"\n", a...)
}

func (d *doctor) miss(format string, a ...any) {
	fmt.Fprintf(d.out, "  [MISS] "+format+"\n", a...)
}

func (d *doctor) checkTools(cfg *config.Config) {
	fmt.Fprintln(d.out, "Download tools:")
	transports := make([]updater.Transport, 0, len(cfg.Transports))
	for _, name := range cfg.Transports {
		tr, err := updater.TransportByName(name)
		if err != nil {
			d.fail("%v", err)
			continue
		}
		transports = append(transports, tr)
		if tr.Available() {
			d.ok("%s", name)
		} else {
			d.miss("%s not found", name)
		}
	}
	if tr, _, err := updater.NewFetcher(transports, cfg.FetchRetries, updater.DefaultRetryDelay).Select(); err != nil {
		d.fail("%v", err)
	} else {
		fmt.Fprintf(d.out, "  using %s\n", tr.Name())
	}

	fmt.Fprintln(d.out, "Checksum tools:")
	hashers := make([]updater.Hasher, 0, len(cfg.ChecksumTools))
	for _, name := range cfg.ChecksumTools {
		h, err := updater.HasherByName(name)
		if err != nil {
			d.fail("%v", err)
			continue
		}
		hashers = append(hashers, h)
		if h.Available() {
			d.ok("%s", name)
		} else {
			d.miss("%s not found", name)
		}
	}
	if h, err := updater.NewChecksummer(hashers...).Select(); err != nil {
		d.fail("%v", err)
	} else {
		fmt.Fprintf(d.out, "  using %s\n", h.Name())
	}
}

func (d *doctor) checkWorkspace(ctx context.Context, cfg *config.Config) {
	fmt.Fprintln(d.out, "Workspace:")
	ws, err := updater.NewWorkspace(ctx, updater.WorkspaceConfig{Preferred: cfg.TmpDir})
	if err != nil {
		d.fail("%v", err)
		return
	}
	d.ok("temporary files go under %s", ws.Path)
	if err := ws.Close(); err != nil {
		d.warn("%v", err)
	}
}

func (d *doctor) checkInstallation(ctx context.Context, cfg *config.Config) {
	fmt.Fprintln(d.out, "Installation:")
	if err := platform.RequireOwner(cfg.InstallUID); err != nil {
		d.fail("%v", err)
	} else {
		d.ok("running as uid %d", cfg.InstallUID)
	}

	current := updater.BinaryProber{Path: cfg.AgentBinary()}.CurrentVersion(ctx)
	if current.IsZero() {
		d.warn("could not read the version of %s", cfg.AgentBinary())
	} else {
		d.ok("%s %s", cfg.AgentBinary(), current.Display())
	}

	pids, err := instance.NewCoordinator(branding.AgentName()).Pids(ctx)
	switch {
	case err != nil:
		d.warn("%v", err)
	case len(pids) == 0:
		d.ok("%s is not running", branding.AgentName())
	default:
		d.ok("%s is running (pid %v)", branding.AgentName(), pids)
	}

	sum, err := updater.LoadChecksum(cfg.ChecksumFile(), cfg.LegacyChecksum)
	switch {
	case err != nil:
		d.fail("%v", err)
	case sum == "":
		d.warn("no installed release checksum recorded at %s", cfg.ChecksumFile())
	default:
		d.ok("installed release checksum %s", sum)
	}
}

func (d *doctor) checkChannel(ctx context.Context, cfg *config.Config) {
	fmt.Fprintf(d.out, "Release channel (%s):\n", cfg.Channel)
	u, err := updater.New(cfg)
	if err != nil {
		d.fail("%v", err)
		return
	}
	res, err := u.Check(ctx)
	if err != nil {
		d.fail("%v", err)
		return
	}
	d.ok("latest release %s", res.Latest.Display())
	if res.Decision == updater.DecisionUpdate {
		d.warn("an update is available")
	}
}
