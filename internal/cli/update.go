package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentx-labs/agentd-updater/internal/branding"
	"github.com/agentx-labs/agentd-updater/internal/logging"
	"github.com/agentx-labs/agentd-updater/internal/platform"
	"github.com/agentx-labs/agentd-updater/internal/updater"
	"github.com/spf13/cobra"
)

// minRandomDelay is the shortest randomized start delay.
const minRandomDelay = time.Second

var (
	updateForce   bool
	noRandomDelay bool
)

func init() {
	rootCmd.Flags().BoolVar(&updateForce, "force", false, "Update even if the installed release is current")
	rootCmd.Flags().BoolVar(&noRandomDelay, "no-random-delay", false, "Start immediately instead of after a random delay")
}

func runUpdate(cmd *cobra.Command, args []string) (err error) {
	interactive := logging.IsInteractive()
	session, err := logging.New(logging.Options{
		Prefix:      branding.CLIName(),
		Level:       logLevel,
		Interactive: interactive,
	})
	if err != nil {
		return err
	}
	logger := session.Logger
	defer func() {
		if cerr := session.Close(err != nil); cerr != nil {
			fmt.Fprintln(os.Stderr, cerr)
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("cannot start", "err", err)
		return errReported
	}

	if err := platform.RequireOwner(cfg.InstallUID); err != nil {
		logger.Error("cannot update", "err", err)
		return errReported
	}

	lock, err := platform.AcquireLock(cfg.LockFile())
	if errors.Is(err, platform.ErrLocked) {
		logger.Info("another update is already running; nothing to do", "lock", cfg.LockFile())
		return nil
	}
	if errors.Is(err, platform.ErrLockDirMissing) {
		logger.Error("agent does not appear to be installed", "lib_dir", cfg.LibDir)
		return errReported
	}
	if err != nil {
		logger.Error("cannot acquire update lock", "err", err)
		return errReported
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if d := randomDelay(cfg.RandomDelayMax); !interactive && !noRandomDelay && d > 0 {
		logger.Info("waiting before checking for updates", "delay", d)
		if err := sleep(ctx, d); err != nil {
			logger.Error("interrupted while waiting", "err", err)
			return errReported
		}
	}

	u, err := updater.New(cfg,
		updater.WithLogger(logger),
		updater.WithForce(updateForce),
		updater.WithOutput(session.Output()),
	)
	if err != nil {
		logger.Error("cannot start", "err", err)
		return errReported
	}

	logger.Info("checking for updates", "channel", cfg.Channel, "static", cfg.StaticBinary)
	res, err := u.Run(ctx)
	if err != nil {
		var verr *updater.VerificationError
		if errors.As(err, &verr) {
			logger.Error("downloaded release failed verification", "archive", verr.Archive, "workspace", verr.Workspace)
		}
		logger.Error("update failed", "err", err)
		return errReported
	}
	if res.Decision == updater.DecisionSkip {
		logger.Info("no update needed", "installed", res.Current.Display(), "latest", res.Latest.Display())
	}
	return nil
}

// randomDelay picks a start delay in [minRandomDelay, limit], spreading
// fleets of scheduled runs over time. A zero limit disables the delay.
func randomDelay(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	if limit <= minRandomDelay {
		return minRandomDelay
	}
	return minRandomDelay + rand.N(limit-minRandomDelay+1)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
