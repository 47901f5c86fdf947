package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/oshokin/bundle-updater/internal/errs"
)

// Supported OS names, as they appear in platform keys and endpoint
// templates.
const (
	OSLinux   = "linux"
	OSWindows = "windows"
	OSMacOS   = "macos"
)

// Supported architecture names, as they appear in platform keys and
// endpoint templates.
const (
	ArchX8664   = "x86_64"
	ArchI686    = "i686"
	ArchAarch64 = "aarch64"
	ArchArmv7   = "armv7"
)

// appImageEnv points at the running AppImage file on Linux. AppImage
// runtimes set it before launching the embedded binary, whose own
// path is inside a transient mount and useless for updating.
const appImageEnv = "APPIMAGE"

// Platform describes where the updater is running.
type Platform struct {
	// OS is one of linux, windows or macos.
	OS string
	// Arch is one of x86_64, i686, aarch64 or armv7.
	Arch string
	// ExecutablePath is the canonicalized path of the artifact to
	// replace: the binary itself, or the AppImage wrapping it.
	ExecutablePath string
}

// Key returns the "<os>-<arch>" string used to look up per-platform
// manifest entries and to expand endpoint templates.
func (p *Platform) Key() string {
	return p.OS + "-" + p.Arch
}

// Options tune the probe.
type Options struct {
	// ExecutablePathOverride skips executable discovery entirely.
	ExecutablePathOverride string
	// AllowSymlinkMacOS permits the discovered executable path to
	// traverse a symbolic link on macOS. Off by default so the engine
	// never relaunches a binary swapped in behind a link.
	AllowSymlinkMacOS bool
}

// Probe resolves the current OS, architecture and executable path.
func Probe(opts Options) (*Platform, error) {
	osName, err := probeOS()
	if err != nil {
		return nil, err
	}

	arch, err := probeArch()
	if err != nil {
		return nil, err
	}

	executablePath, err := resolveExecutable(osName, opts)
	if err != nil {
		return nil, err
	}

	return &Platform{
		OS:             osName,
		Arch:           arch,
		ExecutablePath: executablePath,
	}, nil
}

func probeOS() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return OSLinux, nil
	case "windows":
		return OSWindows, nil
	case "darwin":
		return OSMacOS, nil
	default:
		return "", errs.Newf(errs.KindUnsupportedPlatform, "no updater target for OS %s", runtime.GOOS)
	}
}

func probeArch() (string, error) {
	switch runtime.GOARCH {
	case "amd64":
		return ArchX8664, nil
	case "386":
		return ArchI686, nil
	case "arm64":
		return ArchAarch64, nil
	case "arm":
		return ArchArmv7, nil
	default:
		return "", errs.Newf(errs.KindUnsupportedPlatform, "no updater target for architecture %s", runtime.GOARCH)
	}
}

// resolveExecutable picks the path of the artifact to replace:
// explicit override first, then $APPIMAGE on Linux, then the OS
// current-executable primitive. The result is canonicalized.
func resolveExecutable(osName string, opts Options) (string, error) {
	raw := opts.ExecutablePathOverride

	if raw == "" && osName == OSLinux {
		raw = os.Getenv(appImageEnv)
	}

	if raw == "" {
		executable, err := os.Executable()
		if err != nil {
			return "", errs.Wrap(errs.KindConfig, "resolve current executable", err)
		}

		raw = executable
	}

	resolved, err := filepath.EvalSymlinks(raw)
	if err != nil {
		return "", errs.Wrap(errs.KindConfig, "canonicalize executable path", err)
	}

	if osName == OSMacOS && !opts.AllowSymlinkMacOS && resolved != filepath.Clean(raw) {
		return "", errs.Newf(errs.KindConfig,
			"executable path %s traverses a symbolic link, refusing to update through it", raw)
	}

	return resolved, nil
}

// AppBundleRoot walks up from a binary path inside a macOS bundle
// (.../Something.app/Contents/MacOS/<bin>) to the enclosing .app
// directory.
func AppBundleRoot(executablePath string) (string, error) {
	dir := filepath.Dir(executablePath)

	for {
		if strings.HasSuffix(dir, ".app") {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errs.Newf(errs.KindConfig, "no .app bundle above %s", executablePath)
		}

		dir = parent
	}
}
