package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/bundle-updater/internal/errs"
)

// InstallMode selects how the Windows installers run.
type InstallMode string

const (
	// InstallModePassive shows only a progress bar, no interaction required.
	InstallModePassive InstallMode = "passive"
	// InstallModeBasicUI shows a basic interactive installer UI.
	InstallModeBasicUI InstallMode = "basicui"
	// InstallModeQuiet shows nothing at all.
	InstallModeQuiet InstallMode = "quiet"
)

// ParseInstallMode converts string input to an InstallMode.
func ParseInstallMode(s string) (InstallMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(InstallModePassive):
		return InstallModePassive, nil
	case string(InstallModeBasicUI):
		return InstallModeBasicUI, nil
	case string(InstallModeQuiet):
		return InstallModeQuiet, nil
	default:
		return "", errs.Newf(errs.KindConfig, "unknown install mode %q, expected one of passive, basicui or quiet", s)
	}
}

// NSISArgs returns the NSIS installer flags for the mode.
func (m InstallMode) NSISArgs() []string {
	switch m {
	case InstallModeQuiet:
		return []string{"/S"}
	case InstallModeBasicUI:
		return nil
	default:
		return []string{"/P"}
	}
}

// MsiexecArgs returns the msiexec flags for the mode.
func (m InstallMode) MsiexecArgs() []string {
	switch m {
	case InstallModeQuiet:
		return []string{"/quiet"}
	case InstallModeBasicUI:
		return []string{"/qb"}
	default:
		return []string{"/passive"}
	}
}

// WindowsConfig tunes the Windows installer invocation.
type WindowsConfig struct {
	// InstallMode selects the installer UI level. Defaults to passive.
	InstallMode InstallMode `yaml:"install_mode"`
	// InstallerArgs are extra tokens appended to the installer command line.
	InstallerArgs []string `yaml:"installer_args"`
}

// Config holds everything one update check needs. It is immutable for
// the lifetime of a check.
type Config struct {
	// Endpoints is the ordered list of update URL templates. Each may
	// contain {{current_version}}, {{target}} and {{arch}} tokens.
	Endpoints []string `yaml:"endpoints"`
	// EndpointFallback keeps trying later endpoints after a network or
	// manifest failure instead of aborting on the first one. Endpoints
	// that merely decline are always skipped past.
	EndpointFallback bool `yaml:"endpoint_fallback"`
	// Pubkey is the base64-encoded minisign public key used to verify
	// downloaded artifacts.
	Pubkey string `yaml:"pubkey"`
	// Headers are attached to every outbound request.
	Headers map[string]string `yaml:"headers"`
	// Timeout bounds HTTP connect and read phases.
	Timeout time.Duration `yaml:"timeout"`
	// ExecutablePath overrides the probed path of the running binary.
	// Required on AppImage installations when $APPIMAGE is not set.
	ExecutablePath string `yaml:"executable_path"`
	// Windows tunes the NSIS/MSI installer invocation.
	Windows WindowsConfig `yaml:"windows"`
	// AllowSymlinkMacOS permits the resolved executable path to
	// traverse a symbolic link on macOS.
	AllowSymlinkMacOS bool `yaml:"allow_symlink_macos"`
}

const (
	// DefaultConfigFilename is the default filename for updater settings.
	DefaultConfigFilename = "bundle-updater.yaml"

	// DefaultTimeout bounds HTTP operations when none is configured.
	DefaultTimeout = 30 * time.Second

	// DefaultFilePermissions is the file mode used when saving settings.
	DefaultFilePermissions = 0o600
)

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errs.New(errs.KindConfig, "configuration is not set")
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and applies defaults in place.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errs.New(errs.KindConfig, "configuration is not set")
	}

	if len(cfg.Endpoints) == 0 {
		return errs.New(errs.KindConfig, "at least one update endpoint must be provided")
	}

	for _, endpoint := range cfg.Endpoints {
		if strings.TrimSpace(endpoint) == "" {
			return errs.New(errs.KindConfig, "update endpoints must not be empty")
		}
	}

	if cfg.Pubkey == "" {
		return errs.New(errs.KindConfig, "public key must be provided")
	}

	if _, err := base64.StdEncoding.DecodeString(cfg.Pubkey); err != nil {
		return errs.Wrap(errs.KindConfig, "public key is not valid base64", err)
	}

	mode, err := ParseInstallMode(string(cfg.Windows.InstallMode))
	if err != nil {
		return err
	}

	cfg.Windows.InstallMode = mode

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return nil
}
