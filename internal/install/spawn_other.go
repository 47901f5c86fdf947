//go:build !windows

package install

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"github.com/oshokin/bundle-updater/internal/errs"
)

// spawnHidden backs the Windows-only strategies; the manifest parser
// never maps nsis or wix artifacts to a non-Windows platform.
func spawnHidden(_ context.Context, path string, _ []string) error {
	return errs.New(errs.KindSpawn, "installer "+path+" can only run on windows")
}

// msiexecPath exists for the shared msiexec command assembly.
func msiexecPath() string {
	return "msiexec.exe"
}

// spawnDetached starts path in its own session so it survives our
// exit.
func spawnDetached(path string) error {
	cmd := exec.Command(path)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	return cmd.Start()
}

// relaunchExec replaces the current process image with path,
// inheriting arguments and environment.
func relaunchExec(path string) error {
	argv := append([]string{path}, os.Args[1:]...)

	return syscall.Exec(path, argv, os.Environ())
}
