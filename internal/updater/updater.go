package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agentx-labs/agentd-updater/internal/branding"
	"github.com/agentx-labs/agentd-updater/internal/config"
	"github.com/agentx-labs/agentd-updater/internal/instance"
	"github.com/charmbracelet/log"
)

// State names a step of an update run.
type State string

const (
	StateIdle                 State = "idle"
	StateResolvingVersions    State = "resolving-versions"
	StateDecidingSkipOrUpdate State = "deciding"
	StateDownloading          State = "downloading"
	StateVerifying            State = "verifying"
	StateUnpacking            State = "unpacking"
	StateCoordinating         State = "coordinating"
	StateInstalling           State = "installing"
	StatePersistingChecksum   State = "persisting-checksum"
	StateCleaningUp           State = "cleaning-up"
	StateDone                 State = "done"
	StateFatal                State = "fatal"
)

// Decision is the outcome of the skip-or-update step.
type Decision string

const (
	DecisionSkip   Decision = "skip"
	DecisionUpdate Decision = "update"
)

// unpackDir is the workspace subdirectory tarballs are extracted into.
const unpackDir = "src"

// StepError attributes a fatal error to the step it happened in.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// VerificationError reports an artifact that does not match its manifest.
// The workspace holding it is kept for inspection.
type VerificationError struct {
	Archive   string
	Workspace string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("checksum of %s does not match the release manifest; workspace kept at %s", e.Archive, e.Workspace)
}

// Unwrap returns ErrChecksumMismatch so callers can use errors.Is.
func (e *VerificationError) Unwrap() error { return ErrChecksumMismatch }

// Result describes what a run did.
type Result struct {
	Decision  Decision
	Current   VersionKey
	Latest    VersionKey
	Artifact  *Artifact
	Checksum  string
	Signaled  int
	AutoStart bool
	// State is the last state reached.
	State State
	// Trace lists every state entered, in order.
	Trace []State
}

// ReleaseResolver finds the latest version and the artifact to download.
type ReleaseResolver interface {
	LatestVersion(ctx context.Context) (VersionKey, error)
	Resolve(ctx context.Context, expected string) (*Artifact, error)
}

// Preparer readies live instances for replacement.
type Preparer interface {
	PrepareForReplacement(ctx context.Context) (instance.Preparation, error)
}

// InstallerFactory returns the installer for an artifact. path is the
// unpacked installer script, or the archive itself for static builds.
type InstallerFactory func(art *Artifact, path string) Installer

// WorkspaceFactory creates the run's workspace.
type WorkspaceFactory func(ctx context.Context) (*Workspace, error)

// Updater runs the update state machine for one agent installation.
type Updater struct {
	cfg          *config.Config
	fetcher      *Fetcher
	checksummer  *Checksummer
	resolver     ReleaseResolver
	prober       VersionProber
	preparer     Preparer
	newInstaller InstallerFactory
	newWorkspace WorkspaceFactory
	logger       *log.Logger
	out          io.Writer
	force        bool
	options      []string
}

// Option configures an Updater.
type Option func(*Updater)

// WithFetcher sets the fetcher used for every download.
func WithFetcher(f *Fetcher) Option {
	return func(u *Updater) { u.fetcher = f }
}

// WithChecksummer sets the hasher chain.
func WithChecksummer(c *Checksummer) Option {
	return func(u *Updater) { u.checksummer = c }
}

// WithResolver overrides release resolution (useful for testing).
func WithResolver(r ReleaseResolver) Option {
	return func(u *Updater) { u.resolver = r }
}

// WithProber overrides how the installed version is read.
func WithProber(p VersionProber) Option {
	return func(u *Updater) { u.prober = p }
}

// WithPreparer overrides live-instance coordination.
func WithPreparer(p Preparer) Option {
	return func(u *Updater) { u.preparer = p }
}

// WithInstallerFactory overrides how the installer is invoked.
func WithInstallerFactory(f InstallerFactory) Option {
	return func(u *Updater) { u.newInstaller = f }
}

// WithWorkspaceFactory overrides workspace creation.
func WithWorkspaceFactory(f WorkspaceFactory) Option {
	return func(u *Updater) { u.newWorkspace = f }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(u *Updater) { u.logger = l }
}

// WithForce disables both skip rules.
func WithForce(force bool) Option {
	return func(u *Updater) { u.force = force }
}

// WithOutput sets where installer output goes.
func WithOutput(w io.Writer) Option {
	return func(u *Updater) { u.out = w }
}

// New creates an Updater for cfg. Collaborators not supplied through opts
// are built from the configuration.
func New(cfg *config.Config, opts ...Option) (*Updater, error) {
	u := &Updater{cfg: cfg}
	for _, opt := range opts {
		opt(u)
	}

	options, err := SplitOptions(cfg.ReinstallOptions)
	if err != nil {
		return nil, err
	}
	u.options = options

	if u.logger == nil {
		u.logger = log.New(io.Discard)
	}
	if u.out == nil {
		u.out = os.Stderr
	}
	if u.fetcher == nil {
		if u.fetcher, err = NewFetcherFromNames(cfg.Transports, cfg.FetchRetries); err != nil {
			return nil, err
		}
	}
	if u.checksummer == nil {
		if u.checksummer, err = NewChecksummerFromNames(cfg.ChecksumTools); err != nil {
			return nil, err
		}
	}
	if u.resolver == nil {
		u.resolver = NewResolver(cfg, u.fetcher)
	}
	if u.prober == nil {
		u.prober = BinaryProber{Path: cfg.AgentBinary()}
	}
	if u.preparer == nil {
		u.preparer = instance.NewCoordinator(branding.AgentName(), instance.WithLogger(u.logger))
	}
	if u.newInstaller == nil {
		u.newInstaller = u.defaultInstaller
	}
	if u.newWorkspace == nil {
		u.newWorkspace = func(ctx context.Context) (*Workspace, error) {
			return NewWorkspace(ctx, WorkspaceConfig{Preferred: cfg.TmpDir})
		}
	}
	return u, nil
}

func (u *Updater) defaultInstaller(art *Artifact, path string) Installer {
	if art.Static {
		return &SelfExtractingInstaller{Archive: path, Stdout: u.out, Stderr: u.out}
	}
	return &ScriptInstaller{Path: path, Stdout: u.out, Stderr: u.out}
}

func (u *Updater) enter(res *Result, s State) {
	res.State = s
	res.Trace = append(res.Trace, s)
	u.logger.Debug("entering state", "state", s)
}

func (u *Updater) fail(res *Result, err error) error {
	return &StepError{State: res.State, Err: err}
}

// Run performs one update attempt. A skip is a successful run with
// Decision == DecisionSkip. The workspace is removed on every return path
// unless verification failed.
func (u *Updater) Run(ctx context.Context) (res *Result, err error) {
	res = &Result{}
	u.enter(res, StateIdle)

	ws, err := u.newWorkspace(ctx)
	if err != nil {
		err = u.fail(res, err)
		u.enter(res, StateFatal)
		return res, err
	}
	u.logger.Debug("created workspace", "path", ws.Path)

	defer func() {
		u.enter(res, StateCleaningUp)
		if ws.Preserved() {
			u.logger.Warn("keeping workspace for inspection", "path", ws.Path)
		}
		if cerr := ws.Close(); cerr != nil {
			u.logger.Warn("could not remove workspace", "err", cerr)
		}
		if err != nil {
			u.enter(res, StateFatal)
			return
		}
		u.enter(res, StateDone)
	}()

	u.resolveVersions(ctx, res)

	u.enter(res, StateDecidingSkipOrUpdate)
	if !u.force && ShouldSkip(res.Current, res.Latest) {
		u.logger.Info("installed version is up to date", "current", res.Current.Display(), "latest", res.Latest.Display())
		res.Decision = DecisionSkip
		return res, nil
	}

	cached, cerr := LoadChecksum(u.cfg.ChecksumFile(), u.cfg.LegacyChecksum)
	if cerr != nil {
		u.logger.Warn("ignoring unreadable checksum cache", "err", cerr)
		cached = ""
	}

	art, err := u.resolver.Resolve(ctx, cached)
	if err != nil {
		return res, u.fail(res, err)
	}
	res.Artifact = art

	manifestPath := ws.File(manifestName)
	if err := u.fetcher.Download(ctx, art.ChecksumURL, manifestPath); err != nil {
		return res, u.fail(res, err)
	}
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return res, u.fail(res, err)
	}
	if !u.force && manifest.Contains(art.ExpectedChecksum) {
		u.logger.Info("newest release is already installed", "checksum", art.ExpectedChecksum)
		res.Decision = DecisionSkip
		return res, nil
	}
	res.Decision = DecisionUpdate
	if kind := UpgradeKind(res.Current, res.Latest); kind != "" {
		u.logger.Info("update available", "kind", kind, "current", res.Current.Display(), "latest", res.Latest.Display())
	}

	u.enter(res, StateDownloading)
	archive := ws.File(art.FileName())
	u.logger.Info("downloading release", "url", art.TarballURL)
	if err := u.fetcher.Download(ctx, art.TarballURL, archive); err != nil {
		return res, u.fail(res, err)
	}

	u.enter(res, StateVerifying)
	sum, ok, err := u.checksummer.VerifyAgainst(ctx, archive, manifest)
	if err != nil {
		return res, u.fail(res, err)
	}
	if !ok {
		ws.Preserve()
		return res, u.fail(res, &VerificationError{Archive: archive, Workspace: ws.Path})
	}
	res.Checksum = sum

	u.enter(res, StateUnpacking)
	installerPath, err := u.unpack(ws, art, archive)
	if err != nil {
		return res, u.fail(res, err)
	}

	u.enter(res, StateCoordinating)
	prep, perr := u.preparer.PrepareForReplacement(ctx)
	if perr != nil {
		u.logger.Warn("could not inspect running instances; the agent will be started after install", "err", perr)
		prep = instance.Preparation{ShouldAutoStart: true}
	}
	res.Signaled = prep.Signaled
	res.AutoStart = prep.ShouldAutoStart

	u.enter(res, StateInstalling)
	req := InstallRequest{Options: u.options, DontWait: true, DontStart: !prep.ShouldAutoStart}
	u.logger.Info("running installer", "path", installerPath, "args", req.Args())
	code, err := u.newInstaller(art, installerPath).Install(ctx, req)
	if err != nil {
		return res, u.fail(res, err)
	}
	if code != 0 {
		return res, u.fail(res, &InstallerError{Installer: filepath.Base(installerPath), ExitCode: code})
	}

	u.enter(res, StatePersistingChecksum)
	if err := SaveChecksum(u.cfg.ChecksumFile(), sum); err != nil {
		return res, u.fail(res, err)
	}
	if n, perr := config.PurgeDeprecatedKeys(u.cfg.EnvironmentFile, config.DeprecatedKeyPrefix); perr != nil {
		u.logger.Warn("could not clean up the environment file", "err", perr)
	} else if n > 0 {
		u.logger.Debug("removed deprecated settings", "file", u.cfg.EnvironmentFile, "count", n)
	}

	u.logger.Info("update complete", "tag", art.Tag, "checksum", sum)
	return res, nil
}

// Check resolves the installed and latest versions and decides by version
// comparison alone. Nothing is downloaded.
func (u *Updater) Check(ctx context.Context) (*Result, error) {
	res := &Result{}
	u.enter(res, StateResolvingVersions)
	res.Current = u.prober.CurrentVersion(ctx)

	latest, err := u.resolver.LatestVersion(ctx)
	if err != nil {
		return res, u.fail(res, err)
	}
	res.Latest = latest

	u.enter(res, StateDecidingSkipOrUpdate)
	res.Decision = DecisionUpdate
	if ShouldSkip(res.Current, res.Latest) {
		res.Decision = DecisionSkip
	}
	return res, nil
}

func (u *Updater) resolveVersions(ctx context.Context, res *Result) {
	u.enter(res, StateResolvingVersions)
	res.Current = u.prober.CurrentVersion(ctx)

	latest, err := u.resolver.LatestVersion(ctx)
	if err != nil {
		u.logger.Warn("could not determine the latest version; falling back to checksum comparison", "err", err)
		latest = VersionKey{}
	}
	res.Latest = latest
	u.logger.Debug("resolved versions", "current", res.Current.Display(), "latest", res.Latest.Display())
}

// unpack prepares the installer. Static artifacts install themselves;
// tarballs are extracted and the compressed file is removed.
func (u *Updater) unpack(ws *Workspace, art *Artifact, archive string) (string, error) {
	if art.Static {
		return archive, nil
	}
	dest := ws.File(unpackDir)
	if err := ExtractTarGz(archive, dest); err != nil {
		return "", err
	}
	if err := os.Remove(archive); err != nil && !errors.Is(err, os.ErrNotExist) {
		u.logger.Warn("could not remove downloaded archive", "path", archive, "err", err)
	}
	return FindInstaller(dest, branding.AgentName(), branding.InstallerScript())
}
