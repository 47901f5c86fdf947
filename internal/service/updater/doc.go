// Package updater is the engine facade: it discovers releases across
// the configured endpoints, gates them against the running version,
// and drives download, verification and installation through a small
// state machine.
package updater
