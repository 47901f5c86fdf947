// Package fetch performs the updater's HTTP retrievals: manifest
// requests and streamed artifact downloads with per-chunk progress
// reporting. Proxy settings come from the environment at request
// time.
package fetch
