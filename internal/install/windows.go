package install

import (
	"context"

	"github.com/oshokin/bundle-updater/internal/config"
	"github.com/oshokin/bundle-updater/internal/logger"
)

// installNsis extracts the NSIS installer from the zip artifact and
// launches it hidden. The process exits once the installer is
// running: NSIS waits for our file locks itself, blocking on it here
// would deadlock.
func installNsis(ctx context.Context, req *Request) error {
	content, err := extractZipSingle(req.Artifact, ".exe")
	if err != nil {
		return err
	}

	path, err := writeTempFile("bundle-updater-*.exe", content)
	if err != nil {
		return err
	}

	args := nsisArgs(req.Mode, req.InstallerArgs)

	logger.InfoKV(ctx, "Launching NSIS installer", "path", path, "args", args)

	if err = spawnHidden(ctx, path, args); err != nil {
		return err
	}

	osExit(0)

	return nil
}

// installMsi extracts the MSI from the zip artifact and launches
// msiexec hidden, then exits like the NSIS flow.
func installMsi(ctx context.Context, req *Request) error {
	content, err := extractZipSingle(req.Artifact, ".msi")
	if err != nil {
		return err
	}

	path, err := writeTempFile("bundle-updater-*.msi", content)
	if err != nil {
		return err
	}

	args := msiexecArgs(path, req.Mode, req.InstallerArgs)

	logger.InfoKV(ctx, "Launching msiexec", "args", args)

	if err = spawnHidden(ctx, msiexecPath(), args); err != nil {
		return err
	}

	osExit(0)

	return nil
}

// nsisArgs assembles the NSIS installer command line: the install
// mode flag, the marker telling the installer it runs as an update,
// then user-supplied tokens.
func nsisArgs(mode config.InstallMode, extra []string) []string {
	args := append([]string{}, mode.NSISArgs()...)
	args = append(args, "--updater")

	return append(args, extra...)
}

// msiexecArgs assembles the msiexec command line for an MSI at path.
func msiexecArgs(path string, mode config.InstallMode, extra []string) []string {
	args := []string{"/i", path}
	args = append(args, mode.MsiexecArgs()...)
	args = append(args, "/promptrestart")

	return append(args, extra...)
}
