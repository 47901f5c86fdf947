package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bundle-updater/internal/errs"
)

// signingKit holds a deterministic minisign keypair for tests.
type signingKit struct {
	private ed25519.PrivateKey
	keyID   [8]byte
	pubkey  string // base64 of the .pub file content
}

func newSigningKit(t *testing.T, seedByte byte) *signingKit {
	t.Helper()

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}

	private := ed25519.NewKeyFromSeed(seed)
	public := private.Public().(ed25519.PublicKey)

	kit := &signingKit{private: private}
	copy(kit.keyID[:], []byte{seedByte, 2, 3, 4, 5, 6, 7, 8})

	blob := append([]byte("Ed"), kit.keyID[:]...)
	blob = append(blob, public...)
	keyFile := fmt.Sprintf("untrusted comment: minisign public key\n%s\n",
		base64.StdEncoding.EncodeToString(blob))
	kit.pubkey = base64.StdEncoding.EncodeToString([]byte(keyFile))

	return kit
}

// sign produces the legacy signature text over data: the signature
// blob line plus the global signature line, no trusted comment.
func (k *signingKit) sign(data []byte) string {
	raw := ed25519.Sign(k.private, data)
	blob := append([]byte("Ed"), k.keyID[:]...)
	blob = append(blob, raw...)

	global := ed25519.Sign(k.private, raw)

	return fmt.Sprintf("untrusted comment: signature from test key\n%s\n%s\n",
		base64.StdEncoding.EncodeToString(blob),
		base64.StdEncoding.EncodeToString(global))
}

// signCanonical produces the four-line form with a trusted comment
// and global signature.
func (k *signingKit) signCanonical(data []byte) string {
	raw := ed25519.Sign(k.private, data)
	blob := append([]byte("Ed"), k.keyID[:]...)
	blob = append(blob, raw...)

	trusted := "timestamp:1700000000"
	global := ed25519.Sign(k.private, append(raw, []byte(trusted)...))

	return fmt.Sprintf("untrusted comment: signature from test key\n%s\ntrusted comment: %s\n%s\n",
		base64.StdEncoding.EncodeToString(blob),
		trusted,
		base64.StdEncoding.EncodeToString(global))
}

// TestVerifyRoundtrip signs and verifies through the streaming Verifier.
func TestVerifyRoundtrip(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 1)
	data := []byte("artifact bytes")

	verifier, err := NewVerifier(kit.pubkey, kit.sign(data))
	require.NoError(t, err)

	// Feed in small chunks, as the fetcher would.
	for _, b := range data {
		_, err = verifier.Write([]byte{b})
		require.NoError(t, err)
	}

	require.NoError(t, verifier.Verify())
	require.Equal(t, data, verifier.Bytes())
	require.Equal(t, len(data), verifier.Len())
}

// TestVerifyCanonicalSignature covers the four-line minisign form
// including the global signature.
func TestVerifyCanonicalSignature(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 2)
	data := []byte("artifact bytes")

	require.NoError(t, Verify(data, kit.pubkey, kit.signCanonical(data)))
}

// TestVerifyRawSignatureText ensures the signature may arrive without
// the outer base64 layer.
func TestVerifyRawSignatureText(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 3)
	data := []byte("artifact bytes")

	require.NoError(t, Verify(data, kit.pubkey, kit.sign(data)+""))
}

// TestVerifyTamperedData ensures any byte flip invalidates the signature.
func TestVerifyTamperedData(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 4)
	data := []byte("artifact bytes")
	sig := kit.sign(data)

	tampered := append([]byte{}, data...)
	tampered[0] ^= 0xff

	err := Verify(tampered, kit.pubkey, sig)
	require.Error(t, err)
	require.Equal(t, errs.KindSignatureInvalid, errs.KindOf(err))
}

// TestKeyMismatch ensures a signature from another key is rejected
// before any verification work.
func TestKeyMismatch(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 5)
	other := newSigningKit(t, 6)
	data := []byte("artifact bytes")

	_, err := NewVerifier(kit.pubkey, other.sign(data))
	require.Error(t, err)
	require.Equal(t, errs.KindKeyMismatch, errs.KindOf(err))
}

// TestMalformedInputs covers undecodable key and signature material.
func TestMalformedInputs(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 7)

	_, err := NewVerifier("%%%not a key%%%", kit.sign(nil))
	require.Error(t, err)
	require.Equal(t, errs.KindConfig, errs.KindOf(err))

	_, err = NewVerifier(kit.pubkey, "untrusted comment: only comments\n")
	require.Error(t, err)
	require.Equal(t, errs.KindMalformedSignature, errs.KindOf(err))

	// Truncated signature blob.
	short := base64.StdEncoding.EncodeToString([]byte("Ed too short"))
	_, err = NewVerifier(kit.pubkey, "untrusted comment: x\n"+short+"\n")
	require.Error(t, err)
	require.Equal(t, errs.KindMalformedSignature, errs.KindOf(err))
}
