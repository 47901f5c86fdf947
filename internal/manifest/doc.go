// Package manifest decodes update-endpoint responses. Both manifest
// dialects (flat and per-platform) normalize to the single Release
// type the rest of the engine consumes.
package manifest
