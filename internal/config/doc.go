// Package config defines updater settings used by the engine and the
// CLI and provides helpers to load, validate and save them in YAML
// format.
//
// The Config type holds the endpoint templates, the minisign public
// key and the Windows installer tuning.
package config
