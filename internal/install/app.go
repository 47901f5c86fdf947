package install

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oshokin/bundle-updater/internal/errs"
	"github.com/oshokin/bundle-updater/internal/logger"
	"github.com/oshokin/bundle-updater/internal/platform"
)

// osExit is swapped in tests; the Windows strategies and the macOS
// relaunch path terminate the process through it.
//
//nolint:gochecknoglobals // Process exit must be interceptable in tests.
var osExit = os.Exit

// installApp replaces a macOS application bundle. The artifact is a
// gzip-tar whose top entry is the new <Something>.app; the existing
// bundle is swapped out with a rename dance so a failure after the
// first rename can be rolled back.
func installApp(ctx context.Context, req *Request) error {
	bundleRoot, err := platform.AppBundleRoot(req.ExecutablePath)
	if err != nil {
		return err
	}

	extractDir, err := os.MkdirTemp("", "bundle-updater-app-")
	if err != nil {
		return errs.Wrap(errs.KindIo, "create extraction directory", err)
	}

	if err = extractTarGz(req.Artifact, extractDir); err != nil {
		return err
	}

	newBundle, err := findAppBundle(extractDir)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Replacing application bundle", "bundle", bundleRoot)

	// Save the current bundle under a sibling name so both renames
	// stay on one filesystem.
	saved := bundleRoot + ".old-" + strconv.Itoa(os.Getpid())

	if err = os.Rename(bundleRoot, saved); err != nil {
		return errs.Wrap(errs.KindIo, "move current bundle aside", err)
	}

	if err = os.Rename(newBundle, bundleRoot); err != nil {
		// Put the previous bundle back; the extraction directory is
		// retained for diagnosis.
		if rollbackErr := os.Rename(saved, bundleRoot); rollbackErr != nil {
			logger.ErrorKV(ctx, "Rollback of bundle replacement failed",
				"saved", saved, "error", rollbackErr)
		}

		return errs.Wrap(errs.KindIo, "move new bundle into place", err)
	}

	_ = os.RemoveAll(saved)
	_ = os.RemoveAll(extractDir)

	if req.Relaunch {
		if err = spawnDetached(req.ExecutablePath); err != nil {
			return errs.Wrap(errs.KindSpawn, "relaunch "+req.ExecutablePath, err)
		}

		logger.Info(ctx, "New version launched, exiting")
		osExit(0)
	}

	return nil
}

// findAppBundle scans the top-level entries of dir for the extracted
// .app directory and validates it carries an Info.plist.
func findAppBundle(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errs.Wrap(errs.KindIo, "read extraction directory", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), ".app") {
			continue
		}

		bundle := filepath.Join(dir, entry.Name())

		if _, err = os.Stat(filepath.Join(bundle, "Contents", "Info.plist")); err != nil {
			return "", errs.Newf(errs.KindExtract, "extracted bundle %s has no Info.plist", entry.Name())
		}

		return bundle, nil
	}

	return "", errs.New(errs.KindExtract, "archive contains no .app bundle")
}
