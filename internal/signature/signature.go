package signature

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"

	minisign "github.com/jedisct1/go-minisign"

	"github.com/oshokin/bundle-updater/internal/errs"
)

// Minisign blob layout: [alg(2) | key_id(8) | payload].
const (
	signatureBlobLen = 2 + 8 + ed25519.SignatureSize
	trustedPrefix    = "trusted comment: "
)

// algEd is the pure Ed25519 algorithm tag. It is the only one usable
// over a streamed artifact; the prehashed "ED" variant is produced for
// huge files and never by our packager.
var algEd = [2]byte{'E', 'd'}

// DecodePublicKey decodes the configured public key. The value is the
// base64-encoded content of a minisign .pub file, or the bare key
// line of one.
func DecodePublicKey(encoded string) (minisign.PublicKey, error) {
	text, err := decodeText(encoded)
	if err != nil {
		return minisign.PublicKey{}, errs.Wrap(errs.KindConfig, "decode public key", err)
	}

	keyLine := firstPayloadLine(text)
	if keyLine == "" {
		return minisign.PublicKey{}, errs.New(errs.KindConfig, "public key contains no key data")
	}

	key, err := minisign.NewPublicKey(keyLine)
	if err != nil {
		return minisign.PublicKey{}, errs.Wrap(errs.KindConfig, "decode public key", err)
	}

	if key.SignatureAlgorithm != algEd {
		return minisign.PublicKey{}, errs.New(errs.KindConfig, "public key algorithm is not Ed25519")
	}

	return key, nil
}

// DecodeSignature decodes a release signature: the content of the
// artifact's .sig file, possibly base64-encoded as a whole. Canonical
// four-line minisign files and the legacy lenient form (optional
// comment lines around the two base64 lines) are both accepted.
func DecodeSignature(encoded string) (minisign.Signature, error) {
	text, err := decodeText(encoded)
	if err != nil {
		return minisign.Signature{}, errs.Wrap(errs.KindMalformedSignature, "decode signature", err)
	}

	if sig, err := minisign.DecodeSignature(text); err == nil {
		return sig, nil
	}

	return decodeLenientSignature(text)
}

// decodeLenientSignature parses the legacy signature form: comment
// lines are skipped, the first payload line is the signature blob and
// the second is the global signature. The trusted comment keeps its
// prefix, as the library expects; without a trusted-comment line it is
// the bare prefix, so the global signature covers the signature alone.
func decodeLenientSignature(text string) (minisign.Signature, error) {
	var (
		sig      = minisign.Signature{TrustedComment: trustedPrefix}
		payloads []string
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case line == "":
		case strings.HasPrefix(line, "untrusted comment:"), strings.HasPrefix(line, "#"):
			sig.UntrustedComment = line
		case strings.HasPrefix(line, trustedPrefix):
			sig.TrustedComment = line
		default:
			payloads = append(payloads, line)
		}
	}

	if len(payloads) != 2 {
		return sig, errs.Newf(errs.KindMalformedSignature,
			"expected two data lines in the signature, got %d", len(payloads))
	}

	blob, err := base64.StdEncoding.DecodeString(payloads[0])
	if err != nil {
		return sig, errs.Wrap(errs.KindMalformedSignature, "decode signature data", err)
	}

	if len(blob) != signatureBlobLen {
		return sig, errs.Newf(errs.KindMalformedSignature,
			"signature data is %d bytes, expected %d", len(blob), signatureBlobLen)
	}

	copy(sig.SignatureAlgorithm[:], blob[0:2])
	copy(sig.KeyId[:], blob[2:10])
	copy(sig.Signature[:], blob[10:])

	global, err := base64.StdEncoding.DecodeString(payloads[1])
	if err != nil || len(global) != ed25519.SignatureSize {
		return sig, errs.New(errs.KindMalformedSignature, "malformed global signature data")
	}

	copy(sig.GlobalSignature[:], global)

	return sig, nil
}

// Verifier consumes a downloaded artifact as an io.Writer and checks
// the release signature over everything written. Pure Ed25519 covers
// the raw artifact bytes, so the stream is retained until Verify; the
// same buffer is then handed to the installer, the artifact is never
// held twice.
type Verifier struct {
	key minisign.PublicKey
	sig minisign.Signature
	buf bytes.Buffer
}

// NewVerifier decodes the key and signature and checks they can match
// before a single artifact byte is fetched.
func NewVerifier(pubkey, signature string) (*Verifier, error) {
	key, err := DecodePublicKey(pubkey)
	if err != nil {
		return nil, err
	}

	sig, err := DecodeSignature(signature)
	if err != nil {
		return nil, err
	}

	if sig.SignatureAlgorithm != algEd {
		return nil, errs.Newf(errs.KindMalformedSignature,
			"unsupported signature algorithm %q, expected pure Ed25519", sig.SignatureAlgorithm[:])
	}

	if key.KeyId != sig.KeyId {
		return nil, errs.New(errs.KindKeyMismatch,
			"signature was made with a key the updater does not trust")
	}

	return &Verifier{key: key, sig: sig}, nil
}

// Write accumulates artifact bytes. It never fails.
func (v *Verifier) Write(p []byte) (int, error) {
	return v.buf.Write(p)
}

// Verify checks the signature over everything written so far. The
// library verifies both the artifact signature and the global
// signature covering it together with the trusted comment.
func (v *Verifier) Verify() error {
	ok, err := v.key.Verify(v.buf.Bytes(), v.sig)
	if err != nil {
		return errs.Wrap(errs.KindSignatureInvalid, "verify artifact signature", err)
	}

	if !ok {
		return errs.New(errs.KindSignatureInvalid, "artifact does not match its signature")
	}

	return nil
}

// Bytes returns the verified artifact content.
func (v *Verifier) Bytes() []byte {
	return v.buf.Bytes()
}

// Len returns how many artifact bytes have been written so far.
func (v *Verifier) Len() int {
	return v.buf.Len()
}

// Verify is the one-shot form for callers that already hold the
// artifact in memory.
func Verify(data []byte, pubkey, sig string) error {
	verifier, err := NewVerifier(pubkey, sig)
	if err != nil {
		return err
	}

	_, _ = verifier.Write(data)

	return verifier.Verify()
}

// firstPayloadLine returns the first non-empty, non-comment line.
func firstPayloadLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "untrusted comment:") || strings.HasPrefix(line, "#") {
			continue
		}

		return line
	}

	return ""
}

// decodeText unwraps a possibly base64-encoded text value. Values
// that do not decode to text are used verbatim, so manifests may
// carry either the .sig file content or its base64 form.
func decodeText(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("empty value")
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err == nil && utf8.Valid(decoded) {
		return string(decoded), nil
	}

	return value, nil
}
