// Package install applies a verified update artifact to the running
// installation. One strategy per package format: macOS .app bundles,
// Linux AppImages, Windows NSIS installers and Windows MSIs, all
// behind a single Install entry point guarded against concurrent
// runs.
package install
