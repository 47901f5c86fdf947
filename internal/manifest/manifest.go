package manifest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/oshokin/bundle-updater/internal/errs"
	"github.com/oshokin/bundle-updater/internal/platform"
)

// ErrNoUpdate reports that an endpoint answered correctly but has
// nothing for us: a 204, a platforms map without our key, or a
// release that is not newer than the running version.
var ErrNoUpdate = errors.New("no update available")

// Format identifies the package format of a release artifact.
type Format string

const (
	// FormatApp is a macOS application bundle shipped as gzip-tar.
	FormatApp Format = "app"
	// FormatAppImage is a Linux AppImage shipped as gzip-tar.
	FormatAppImage Format = "appimage"
	// FormatNsis is a Windows NSIS installer shipped as zip.
	FormatNsis Format = "nsis"
	// FormatWix is a Windows MSI shipped as zip.
	FormatWix Format = "wix"
)

// ParseFormat converts manifest input to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case string(FormatApp):
		return FormatApp, nil
	case string(FormatAppImage):
		return FormatAppImage, nil
	case string(FormatNsis):
		return FormatNsis, nil
	case string(FormatWix):
		return FormatWix, nil
	case "":
		return "", errs.New(errs.KindManifest, "the `format` field was not set on the update response")
	default:
		return "", errs.Newf(errs.KindManifest,
			"unknown update format %q, expected one of nsis, wix, app or appimage", s)
	}
}

// CompatibleWith reports whether artifacts of this format install on
// the given OS.
func (f Format) CompatibleWith(osName string) bool {
	switch f {
	case FormatApp:
		return osName == platform.OSMacOS
	case FormatAppImage:
		return osName == platform.OSLinux
	case FormatNsis, FormatWix:
		return osName == platform.OSWindows
	default:
		return false
	}
}

// Release is the normalized release record: one in-memory form
// regardless of which manifest dialect the server spoke.
type Release struct {
	// Version of the release.
	Version *semver.Version
	// URL of the artifact for this platform.
	URL string
	// Signature is the textual content of the artifact's .sig file.
	Signature string
	// Format of the artifact.
	Format Format
	// Notes is optional free text about the release.
	Notes string
	// PubDate is the optional publication timestamp (zero when absent).
	PubDate time.Time
}

// rawPlatform is one entry of the per-platform dialect, or the
// platform fields of the flat dialect.
type rawPlatform struct {
	URL       string `json:"url"`
	Signature string `json:"signature"`
	Format    string `json:"format"`
}

// rawManifest accepts both dialects at once; Platforms decides which
// one the server spoke.
type rawManifest struct {
	Version string `json:"version"`
	// Name is an accepted alias for Version.
	Name      string                 `json:"name"`
	Notes     string                 `json:"notes"`
	PubDate   string                 `json:"pub_date"`
	Platforms map[string]rawPlatform `json:"platforms"`

	rawPlatform
}

// Parse decodes an endpoint response into a Release for the given
// platform, or ErrNoUpdate. currentVersion gates the result: releases
// not strictly newer are reported as no update.
func Parse(status int, body []byte, p *platform.Platform, currentVersion *semver.Version) (*Release, error) {
	switch {
	case status == http.StatusNoContent:
		return nil, ErrNoUpdate
	case status < 200 || status > 299:
		return nil, errs.WithStatus(status, "update endpoint did not respond with a successful status")
	}

	var raw rawManifest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errs.Wrap(errs.KindManifest, "decode update response", err)
	}

	version, err := parseVersion(raw.Version, raw.Name)
	if err != nil {
		return nil, err
	}

	entry := raw.rawPlatform

	if raw.Platforms != nil {
		// Per-platform dialect: a manifest that simply has no entry for
		// us is not an error, later endpoints may still have one.
		found, ok := raw.Platforms[p.Key()]
		if !ok {
			return nil, ErrNoUpdate
		}

		entry = found
	}

	if entry.URL == "" {
		return nil, errs.New(errs.KindManifest, "the `url` field was not set on the update response")
	}

	if entry.Signature == "" {
		return nil, errs.New(errs.KindManifest, "the `signature` field was not set on the update response")
	}

	format, err := ParseFormat(entry.Format)
	if err != nil {
		return nil, err
	}

	if !format.CompatibleWith(p.OS) {
		return nil, errs.Newf(errs.KindManifest, "update format %s does not install on %s", format, p.OS)
	}

	var pubDate time.Time

	if raw.PubDate != "" {
		pubDate, err = time.Parse(time.RFC3339, raw.PubDate)
		if err != nil {
			return nil, errs.Wrap(errs.KindManifest, "invalid value for `pub_date`", err)
		}
	}

	if !version.GreaterThan(currentVersion) {
		return nil, ErrNoUpdate
	}

	return &Release{
		Version:   version,
		URL:       entry.URL,
		Signature: entry.Signature,
		Format:    format,
		Notes:     raw.Notes,
		PubDate:   pubDate,
	}, nil
}

// parseVersion parses a release version, accepting the `name` alias
// and a single leading v or V.
func parseVersion(version, alias string) (*semver.Version, error) {
	s := version
	if s == "" {
		s = alias
	}

	if s == "" {
		return nil, errs.New(errs.KindManifest, "the `version` field was not set on the update response")
	}

	// A single leading v or V is tolerated.
	if s[0] == 'v' || s[0] == 'V' {
		s = s[1:]
	}

	parsed, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, errs.Wrap(errs.KindVersion, "parse release version "+s, err)
	}

	return parsed, nil
}
