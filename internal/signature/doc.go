// Package signature verifies downloaded artifacts against the
// embedded minisign public key. Only the pure Ed25519 ("Ed")
// algorithm is accepted; key and signature material may arrive as
// minisign file content or as base64 of it.
package signature
