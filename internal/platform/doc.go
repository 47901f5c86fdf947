// Package platform probes the running OS, CPU architecture and the
// path of the currently-running executable, producing the
// "<os>-<arch>" key the rest of the engine selects releases with.
package platform
