package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/bundle-updater/internal/config"
	"github.com/oshokin/bundle-updater/internal/errs"
	"github.com/oshokin/bundle-updater/internal/logger"
	"github.com/oshokin/bundle-updater/internal/service/updater"
	"github.com/oshokin/bundle-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// currentVersion of the installed application being updated.
	currentVersion string

	// Flag overrides for running without a configuration file.
	flagEndpoints      []string
	flagPubkey         string
	flagHeaders        []string
	flagTimeout        time.Duration
	flagExecutablePath string
	flagInstallMode    string
	flagInstallerArgs  []string

	// relaunch restarts the application after a successful install.
	relaunch bool

	// logLevel for updater output.
	logLevel string

	// rootCmd represents the base command for the self-update engine.
	rootCmd = &cobra.Command{
		Use:   "bundle-updater",
		Short: "Check for and install application updates",
		Long: "Contact the configured update endpoints, determine whether a newer " +
			"release exists for this platform, verify its signature and install it.",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			return nil
		},
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Check whether an update is available, without installing it",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(true)
		},
	}

	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Download, verify and install the newest release",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(false)
		},
	}
)

// run assembles options from flags and executes one update pass.
func run(checkOnly bool) error {
	// The engine compares releases against the host application, so
	// its version has no usable default.
	if currentVersion == "" {
		return errs.New(errs.KindConfig, "the version of the installed application must be provided via --current-version")
	}

	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	options := &updater.Options{
		ConfigPath:     configPath,
		CurrentVersion: currentVersion,
		CheckOnly:      checkOnly,
		Relaunch:       relaunch,
	}

	// Endpoints given on the command line replace the file entirely.
	if len(flagEndpoints) > 0 {
		cfg, err := configFromFlags()
		if err != nil {
			return err
		}

		options.Config = cfg
	}

	return updater.Run(ctx, options)
}

// configFromFlags builds a configuration from command-line overrides.
func configFromFlags() (*config.Config, error) {
	headers := make(map[string]string, len(flagHeaders))

	for _, header := range flagHeaders {
		name, value, found := strings.Cut(header, "=")
		if !found || name == "" {
			return nil, errs.Newf(errs.KindConfig, "header %q is not in name=value form", header)
		}

		headers[name] = value
	}

	mode, err := config.ParseInstallMode(flagInstallMode)
	if err != nil {
		return nil, err
	}

	return &config.Config{
		Endpoints:      flagEndpoints,
		Pubkey:         flagPubkey,
		Headers:        headers,
		Timeout:        flagTimeout,
		ExecutablePath: flagExecutablePath,
		Windows: config.WindowsConfig{
			InstallMode:   mode,
			InstallerArgs: flagInstallerArgs,
		},
	}, nil
}

// Execute runs the bundle-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&currentVersion, "current-version", "v", "", "version of the installed application (required)")
	flags.StringArrayVar(&flagEndpoints, "endpoint", nil, "update endpoint template (repeatable, replaces the config file)")
	flags.StringVar(&flagPubkey, "pubkey", "", "base64-encoded minisign public key")
	flags.StringArrayVar(&flagHeaders, "header", nil, "request header in name=value form (repeatable)")
	flags.DurationVar(&flagTimeout, "timeout", 0, "timeout for HTTP operations")
	flags.StringVar(&flagExecutablePath, "executable-path", "", "override of the running executable path")
	flags.StringVar(&flagInstallMode, "install-mode", "", "windows install mode: passive, basicui or quiet")
	flags.StringArrayVar(&flagInstallerArgs, "installer-arg", nil, "extra windows installer argument (repeatable)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error or fatal")

	updateCmd.Flags().BoolVar(&relaunch, "relaunch", false, "restart the application after installing")

	rootCmd.AddCommand(checkCmd, updateCmd)
}
