// Package registry validates the loaded configuration into an immutable,
// name-keyed lookup table of downstream definitions. Grounded on the
// teacher's cmd/root.go validateConfig (fail-fast validation at startup,
// returning a descriptive error rather than panicking).
package registry

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/mcpauth/oauth-bridge/pkg/types"
)

var namePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

const minStateSecretBytes = 32

// Registry is the validated, immutable mapping from a downstream's path
// segment to its definition, plus the server-wide settings every handler
// needs.
type Registry struct {
	Server         types.ServerConfig
	StateSecret    []byte
	AuthCodeTTLSec int
	downstreams    map[string]types.Downstream
}

// New validates cfg and builds a Registry, or returns a descriptive error
// on the first validation failure found.
func New(cfg types.FileConfig) (*Registry, error) {
	secret, err := base64.StdEncoding.DecodeString(cfg.Server.StateSecret)
	if err != nil {
		return nil, fmt.Errorf("server.state_secret: invalid base64: %w", err)
	}
	if len(secret) < minStateSecretBytes {
		return nil, fmt.Errorf("server.state_secret: decoded length %d is below the required %d bytes", len(secret), minStateSecretBytes)
	}

	if cfg.Server.PublicURL != "" {
		u, err := url.Parse(cfg.Server.PublicURL)
		if err != nil {
			return nil, fmt.Errorf("server.public_url: %w", err)
		}
		switch u.Scheme {
		case "https":
		case "http":
			log.Warn().Str("public_url", cfg.Server.PublicURL).Msg("public_url uses http://; https is required for production deployments")
		default:
			return nil, fmt.Errorf("server.public_url: scheme must be http or https, got %q", u.Scheme)
		}
	}

	downstreams := make(map[string]types.Downstream, len(cfg.Downstreams))
	for _, d := range cfg.Downstreams {
		if !namePattern.MatchString(d.Name) {
			return nil, fmt.Errorf("downstream %q: name must match %s", d.Name, namePattern.String())
		}
		if _, exists := downstreams[d.Name]; exists {
			return nil, fmt.Errorf("downstream %q: duplicate name", d.Name)
		}
		if d.Strategy == types.StrategyChainedOAuth {
			if err := validateChainedOAuth(d); err != nil {
				return nil, err
			}
		}
		downstreams[d.Name] = d
	}

	return &Registry{
		Server:         cfg.Server,
		StateSecret:    secret,
		AuthCodeTTLSec: cfg.Server.AuthCodeTTLSeconds,
		downstreams:    downstreams,
	}, nil
}

func validateChainedOAuth(d types.Downstream) error {
	required := []struct {
		field string
		value string
	}{
		{"oauth_authorize_url", d.OAuthAuthorizeURL},
		{"oauth_token_url", d.OAuthTokenURL},
		{"oauth_client_id", d.OAuthClientID},
		{"oauth_client_secret", d.OAuthClientSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("downstream %q: chained_oauth strategy requires %s", d.Name, r.field)
		}
	}
	return nil
}

// Lookup resolves a path suffix (the `name` segment) to its downstream
// definition.
func (r *Registry) Lookup(name string) (types.Downstream, bool) {
	d, ok := r.downstreams[name]
	return d, ok
}
