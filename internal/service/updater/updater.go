package updater

import (
	"context"
	"errors"

	"github.com/Masterminds/semver/v3"

	"github.com/oshokin/bundle-updater/internal/config"
	"github.com/oshokin/bundle-updater/internal/errs"
	"github.com/oshokin/bundle-updater/internal/fetch"
	"github.com/oshokin/bundle-updater/internal/logger"
	"github.com/oshokin/bundle-updater/internal/manifest"
	"github.com/oshokin/bundle-updater/internal/platform"
	"github.com/oshokin/bundle-updater/internal/signature"
)

// VersionComparator decides whether a release should be offered given
// the running version. The default is a strict semver "newer than"
// comparison.
type VersionComparator func(current *semver.Version, release *manifest.Release) bool

// Updater checks the configured endpoints for a release newer than
// the running version. It is not safe for concurrent use; callers
// must not run two checks against the same installation at once.
type Updater struct {
	cfg        *config.Config
	current    *semver.Version
	platform   *platform.Platform
	comparator VersionComparator

	state       State
	failureKind errs.Kind
}

// New builds an Updater for the given running version. The
// configuration is validated, the public key decoded and the platform
// probed up front so every later failure is an update failure, not a
// setup one.
func New(currentVersion string, cfg *config.Config) (*Updater, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	if _, err := signature.DecodePublicKey(cfg.Pubkey); err != nil {
		return nil, err
	}

	current, err := semver.NewVersion(currentVersion)
	if err != nil {
		return nil, errs.Wrap(errs.KindVersion, "parse current version "+currentVersion, err)
	}

	p, err := platform.Probe(platform.Options{
		ExecutablePathOverride: cfg.ExecutablePath,
		AllowSymlinkMacOS:      cfg.AllowSymlinkMacOS,
	})
	if err != nil {
		return nil, err
	}

	return newUpdater(cfg, current, p), nil
}

// newUpdater wires an Updater from already-validated parts.
func newUpdater(cfg *config.Config, current *semver.Version, p *platform.Platform) *Updater {
	return &Updater{
		cfg:      cfg,
		current:  current,
		platform: p,
		comparator: func(current *semver.Version, release *manifest.Release) bool {
			return release.Version.GreaterThan(current)
		},
		state: StateIdle,
	}
}

// SetVersionComparator replaces the default comparator. It must be
// called before Check. Manifest parsing already drops releases that
// are not strictly newer, so a custom comparator can only veto further
// releases; it cannot admit equal or older ones.
func (u *Updater) SetVersionComparator(comparator VersionComparator) {
	if comparator != nil {
		u.comparator = comparator
	}
}

// State returns the current lifecycle state.
func (u *Updater) State() State {
	return u.state
}

// FailureKind returns the error class that moved the updater into
// StateFailed, or KindUnknown.
func (u *Updater) FailureKind() errs.Kind {
	return u.failureKind
}

// Platform returns the probe result the updater operates on.
func (u *Updater) Platform() *platform.Platform {
	return u.platform
}

// fail records the terminal failure state and passes the error through.
func (u *Updater) fail(err error) error {
	u.state = StateFailed
	u.failureKind = errs.KindOf(err)

	return err
}

// Check queries the endpoints in order and returns an Update when a
// usable release newer than the running version exists, or (nil, nil)
// when every endpoint declined. Endpoints whose templates do not
// expand to a valid URL are skipped with the error recorded; network
// and manifest failures abort the run unless endpoint fallback is
// configured.
func (u *Updater) Check(ctx context.Context) (*Update, error) {
	ctx = logger.WithName(ctx, "check")
	u.state = StateChecking

	var recorded error

	for _, template := range u.cfg.Endpoints {
		endpoint, err := expandEndpoint(template, u.current.String(), u.platform.OS, u.platform.Arch)
		if err != nil {
			logger.WarnKV(ctx, "Skipping endpoint with invalid template", "endpoint", template, "error", err)

			recorded = err

			continue
		}

		logger.DebugKV(ctx, "Checking for updates", "endpoint", endpoint)

		release, err := u.query(ctx, endpoint)

		switch {
		case err == nil:
			u.state = StateReady

			logger.InfoKV(ctx, "Update available",
				"version", release.Version.String(),
				"current", u.current.String(),
				"format", string(release.Format))

			return &Update{updater: u, release: release}, nil
		case errors.Is(err, manifest.ErrNoUpdate):
			logger.DebugKV(ctx, "Endpoint has no update for us", "endpoint", endpoint)

			continue
		case u.cfg.EndpointFallback:
			logger.WarnKV(ctx, "Endpoint failed, falling back to the next one",
				"endpoint", endpoint, "error", err)

			recorded = err

			continue
		default:
			return nil, u.fail(err)
		}
	}

	if recorded != nil {
		return nil, u.fail(recorded)
	}

	u.state = StateNoUpdate

	logger.InfoKV(ctx, "No update available", "current", u.current.String())

	return nil, nil
}

// query fetches one endpoint and parses its response, applying the
// version gate through the comparator.
func (u *Updater) query(ctx context.Context, endpoint string) (*manifest.Release, error) {
	status, body, err := fetch.Get(ctx, endpoint, fetch.Options{
		Headers: u.cfg.Headers,
		Accept:  "application/json",
		Timeout: u.cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	release, err := manifest.Parse(status, body, u.platform, u.current)
	if err != nil {
		return nil, err
	}

	// Parse gates on strict semver ordering; a custom comparator gets
	// the last word on anything that passed it.
	if !u.comparator(u.current, release) {
		return nil, manifest.ErrNoUpdate
	}

	return release, nil
}
