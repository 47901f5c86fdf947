package updater

import (
	"context"

	"github.com/oshokin/bundle-updater/internal/config"
	"github.com/oshokin/bundle-updater/internal/logger"
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the path to the settings YAML file, used when
	// Config is nil.
	ConfigPath string
	// Config takes precedence over ConfigPath when set.
	Config *config.Config
	// CurrentVersion is the version of the installed application.
	CurrentVersion string
	// CheckOnly stops after the discovery step.
	CheckOnly bool
	// Relaunch restarts the application after a successful install.
	Relaunch bool
}

// Run executes one update pass and is the entry point for the CLI:
// check, then (unless CheckOnly) download and install.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "bundle-updater")

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}

		cfg = loaded
	}

	u, err := New(opts.CurrentVersion, cfg)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Checking for updates",
		"current", opts.CurrentVersion,
		"platform", u.Platform().Key())

	update, err := u.Check(ctx)
	if err != nil {
		return err
	}

	if update == nil {
		logger.Info(ctx, "Already up to date")
		return nil
	}

	logger.InfoKV(ctx, "Update found", "version", update.Version().String())

	if notes := update.Notes(); notes != "" {
		logger.InfoKV(ctx, "Release notes", "notes", notes)
	}

	if opts.CheckOnly {
		return nil
	}

	if err = update.DownloadAndInstall(ctx, newProgressLogger(ctx), opts.Relaunch); err != nil {
		return err
	}

	logger.Info(ctx, "Update complete")

	return nil
}

// newProgressLogger logs download progress in ten-percent steps when
// the size is known, staying quiet otherwise.
func newProgressLogger(ctx context.Context) func(int, int64) {
	var (
		received   int64
		lastLogged int64 = -1
	)

	return func(chunkLen int, contentLength int64) {
		received += int64(chunkLen)

		if contentLength <= 0 {
			return
		}

		percent := received * 100 / contentLength
		if step := percent / 10; step > lastLogged {
			lastLogged = step

			logger.InfoKV(ctx, "Downloading",
				"percent", percent,
				"received", received,
				"total", contentLength)
		}
	}
}
