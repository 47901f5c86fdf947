//go:build windows

package install

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/oshokin/bundle-updater/internal/errs"
)

// createNoWindow keeps the PowerShell host itself from flashing a
// console while it starts the installer.
const createNoWindow = 0x08000000

// spawnHidden starts path with args through a hidden PowerShell
// Start-Process so neither the shell nor the installer opens a
// console window. It returns as soon as the installer is running.
func spawnHidden(ctx context.Context, path string, args []string) error {
	psArgs := []string{
		"-NoProfile", "-WindowStyle", "Hidden",
		"Start-Process", "-FilePath", "\"" + path + "\"",
	}

	if len(args) > 0 {
		psArgs = append(psArgs, "-ArgumentList", strings.Join(args, ", "))
	}

	cmd := exec.CommandContext(ctx, powershellPath(), psArgs...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}

	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.KindSpawn, "start installer "+path, err)
	}

	return nil
}

// powershellPath prefers the system PowerShell over whatever is first
// in PATH.
func powershellPath() string {
	if root := os.Getenv("SYSTEMROOT"); root != "" {
		return root + `\System32\WindowsPowerShell\v1.0\powershell.exe`
	}

	return "powershell.exe"
}

// msiexecPath prefers the system msiexec over whatever is first in PATH.
func msiexecPath() string {
	if root := os.Getenv("SYSTEMROOT"); root != "" {
		return root + `\System32\msiexec.exe`
	}

	return "msiexec.exe"
}

// spawnDetached and relaunchExec back the Unix-only strategies; they
// are unreachable on Windows because the manifest parser never maps
// app or appimage artifacts to a Windows platform.
func spawnDetached(path string) error {
	return errs.New(errs.KindSpawn, "detached relaunch is not supported on windows")
}

func relaunchExec(path string) error {
	return errs.New(errs.KindSpawn, "exec relaunch is not supported on windows")
}
