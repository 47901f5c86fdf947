package install

import (
	"context"

	"github.com/oshokin/bundle-updater/internal/config"
	"github.com/oshokin/bundle-updater/internal/errs"
	"github.com/oshokin/bundle-updater/internal/manifest"
)

// Request carries everything a strategy needs: the verified artifact,
// where the running executable lives, and the installer tuning.
// Strategies never delete the running binary before its replacement
// is in place.
type Request struct {
	// Format selects the strategy.
	Format manifest.Format
	// Artifact is the verified artifact content.
	Artifact []byte
	// ExecutablePath is the resolved path of the binary (or AppImage)
	// to replace.
	ExecutablePath string
	// Mode tunes the Windows installer UI.
	Mode config.InstallMode
	// InstallerArgs are extra tokens appended to the Windows
	// installer command line.
	InstallerArgs []string
	// Relaunch restarts the application once the new version is in
	// place. On Windows the process always exits after the installer
	// spawn regardless of this flag.
	Relaunch bool
}

// Install dispatches to the strategy for the request's format. On
// success the installed executable has been replaced on disk (or the
// platform installer has been spawned) and temp resources are gone;
// on failure temp files are retained to aid diagnosis.
func Install(ctx context.Context, req *Request) error {
	release, err := acquireGuard(ctx)
	if err != nil {
		return err
	}
	defer release()

	switch req.Format {
	case manifest.FormatApp:
		return installApp(ctx, req)
	case manifest.FormatAppImage:
		return installAppImage(ctx, req)
	case manifest.FormatNsis:
		return installNsis(ctx, req)
	case manifest.FormatWix:
		return installMsi(ctx, req)
	default:
		return errs.Newf(errs.KindConfig, "no install strategy for format %q", req.Format)
	}
}
