package updater

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/oshokin/bundle-updater/internal/fetch"
	"github.com/oshokin/bundle-updater/internal/install"
	"github.com/oshokin/bundle-updater/internal/logger"
	"github.com/oshokin/bundle-updater/internal/manifest"
	"github.com/oshokin/bundle-updater/internal/signature"
)

// Update is a release newer than the running version, ready to be
// downloaded and installed. It is the only handle callers drive the
// downstream steps with.
type Update struct {
	updater *Updater
	release *manifest.Release
}

// Version returns the release version.
func (u *Update) Version() *semver.Version {
	return u.release.Version
}

// Format returns the release's package format.
func (u *Update) Format() manifest.Format {
	return u.release.Format
}

// Notes returns the optional release notes.
func (u *Update) Notes() string {
	return u.release.Notes
}

// PubDate returns the optional publication timestamp (zero when the
// manifest had none).
func (u *Update) PubDate() time.Time {
	return u.release.PubDate
}

// Download fetches the release artifact, streaming it through
// signature verification, and returns the verified bytes. The
// progress callback observes every received chunk; it may be nil.
// Nothing outside the OS temp directory is touched, and no bytes are
// returned, before verification succeeds.
func (u *Update) Download(ctx context.Context, progress fetch.ProgressFunc) ([]byte, error) {
	ctx = logger.WithName(ctx, "download")
	u.updater.state = StateDownloading

	// Key and signature material is checked before the transfer
	// starts, a key mismatch must not cost a download.
	verifier, err := signature.NewVerifier(u.updater.cfg.Pubkey, u.release.Signature)
	if err != nil {
		return nil, u.updater.fail(err)
	}

	logger.InfoKV(ctx, "Downloading update artifact", "url", u.release.URL)

	err = fetch.Download(ctx, u.release.URL, fetch.Options{
		Headers:  u.updater.cfg.Headers,
		Accept:   "application/octet-stream",
		Timeout:  u.updater.cfg.Timeout,
		Progress: progress,
	}, verifier)
	if err != nil {
		return nil, u.updater.fail(err)
	}

	if err = verifier.Verify(); err != nil {
		return nil, u.updater.fail(err)
	}

	u.updater.state = StateVerified

	logger.InfoKV(ctx, "Artifact verified", "bytes", verifier.Len())

	return verifier.Bytes(), nil
}

// Install applies verified artifact bytes with the strategy for the
// release's format. On AppImage and macOS with relaunch requested, or
// on Windows always, the process is replaced or exits instead of
// returning.
func (u *Update) Install(ctx context.Context, artifact []byte, relaunch bool) error {
	ctx = logger.WithName(ctx, "install")
	u.updater.state = StateInstalling

	err := install.Install(ctx, &install.Request{
		Format:         u.release.Format,
		Artifact:       artifact,
		ExecutablePath: u.updater.platform.ExecutablePath,
		Mode:           u.updater.cfg.Windows.InstallMode,
		InstallerArgs:  u.updater.cfg.Windows.InstallerArgs,
		Relaunch:       relaunch,
	})
	if err != nil {
		return u.updater.fail(err)
	}

	u.updater.state = StateInstalled

	logger.InfoKV(ctx, "Update installed", "version", u.release.Version.String())

	return nil
}

// DownloadAndInstall is the convenience composition of Download and
// Install.
func (u *Update) DownloadAndInstall(ctx context.Context, progress fetch.ProgressFunc, relaunch bool) error {
	artifact, err := u.Download(ctx, progress)
	if err != nil {
		return err
	}

	return u.Install(ctx, artifact, relaunch)
}
