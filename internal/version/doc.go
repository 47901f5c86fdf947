// Package version exposes build metadata stamped via ldflags and the
// User-Agent string derived from it.
package version
