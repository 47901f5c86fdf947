package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an updater failure. Every error produced by this
// module carries exactly one kind; callers branch on KindOf instead of
// matching message text.
type Kind uint8

const (
	// KindUnknown is the zero value and never set by this module.
	KindUnknown Kind = iota
	// KindConfig marks malformed configuration: bad public key, empty
	// endpoint list, unresolvable executable path.
	KindConfig
	// KindUnsupportedPlatform marks an OS or architecture the engine
	// has no platform key for.
	KindUnsupportedPlatform
	// KindNetwork marks HTTP transport failures. Status carries the
	// response code when one was received.
	KindNetwork
	// KindManifest marks a release manifest missing required fields or
	// with a format/platform mismatch.
	KindManifest
	// KindVersion marks an unparseable version string.
	KindVersion
	// KindMalformedSignature marks signature or key material that
	// could not be decoded.
	KindMalformedSignature
	// KindKeyMismatch marks a signature whose key id differs from the
	// configured public key.
	KindKeyMismatch
	// KindSignatureInvalid marks a signature that decoded fine but
	// does not cover the artifact bytes.
	KindSignatureInvalid
	// KindExtract marks tar/zip/gzip decoding failures.
	KindExtract
	// KindIo marks filesystem failures during install.
	KindIo
	// KindSpawn marks a failure to start an external installer
	// process.
	KindSpawn
)

// String returns the kind's stable name.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindUnsupportedPlatform:
		return "unsupported platform"
	case KindNetwork:
		return "network"
	case KindManifest:
		return "manifest"
	case KindVersion:
		return "version"
	case KindMalformedSignature:
		return "malformed signature"
	case KindKeyMismatch:
		return "key mismatch"
	case KindSignatureInvalid:
		return "signature invalid"
	case KindExtract:
		return "extract"
	case KindIo:
		return "io"
	case KindSpawn:
		return "spawn"
	default:
		return "unknown"
	}
}

// Error is the single error value surfaced by the updater: a kind, a
// message, an optional HTTP status and an optional cause.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// Status is the HTTP status code, when one was received.
	Status int

	msg string
	err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	case e.msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.msg)
	case e.err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.err)
	default:
		return e.Kind.String()
	}
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.err
}

// New returns an Error of the given kind with a static message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Newf returns an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind wrapping a cause. A nil
// cause yields nil so call sites can wrap unconditionally.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}

	// Do not re-wrap: the innermost classification is the accurate one.
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	return &Error{Kind: kind, msg: msg, err: err}
}

// WithStatus returns a network Error carrying an HTTP status code.
func WithStatus(status int, msg string) *Error {
	return &Error{Kind: KindNetwork, Status: status, msg: msg}
}

// KindOf extracts the kind from anywhere in err's chain. It returns
// KindUnknown for nil and for errors produced outside this module.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// StatusOf extracts the HTTP status from anywhere in err's chain,
// or 0 when none was recorded.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}

	return 0
}
