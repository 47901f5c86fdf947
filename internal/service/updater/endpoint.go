package updater

import (
	"net/url"
	"strings"

	"github.com/oshokin/bundle-updater/internal/errs"
)

// Endpoint template tokens, replaced literally before URL validation.
const (
	tokenCurrentVersion = "{{current_version}}"
	tokenTarget         = "{{target}}"
	tokenArch           = "{{arch}}"
)

// expandEndpoint substitutes the template tokens and validates the
// result parses as an absolute URL. Expansion happens first: a
// template is not required to be a valid URL before substitution.
func expandEndpoint(template, currentVersion, target, arch string) (string, error) {
	expanded := strings.NewReplacer(
		tokenCurrentVersion, currentVersion,
		tokenTarget, target,
		tokenArch, arch,
	).Replace(template)

	parsed, err := url.Parse(expanded)
	if err != nil {
		return "", errs.Wrap(errs.KindConfig, "endpoint "+template+" does not expand to a URL", err)
	}

	if !parsed.IsAbs() || parsed.Host == "" {
		return "", errs.Newf(errs.KindConfig, "endpoint %s does not expand to an absolute URL", template)
	}

	return expanded, nil
}
