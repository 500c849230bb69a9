// Package config loads the TOML configuration file into a types.FileConfig
// and applies environment-variable overrides. The TOML parsing itself is
// pulled from stacklok-toolhive's pkg/client/config_editor.go, which uses
// github.com/pelletier/go-toml/v2 to decode MCP client configuration — the
// teacher has no file-based config of its own, only env-vars and flags, so
// this concern is adopted from elsewhere in the pack. The environment
// override layer follows the teacher's cmd/root.go convention of env vars
// always winning over defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/mcpauth/oauth-bridge/pkg/types"
)

const (
	defaultHost               = "0.0.0.0"
	defaultPort               = "8080"
	defaultAuthCodeTTLSeconds = 300
	defaultAuthHeaderFormat   = "Bearer"
	defaultOAuthTokenAccept   = "application/json"
)

// Load reads and parses the TOML file at path, then applies environment
// overrides for the state secret and per-downstream client secrets.
func Load(path string) (types.FileConfig, error) {
	var cfg types.FileConfig

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultHost
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.AuthCodeTTLSeconds == 0 {
		cfg.Server.AuthCodeTTLSeconds = defaultAuthCodeTTLSeconds
	}

	for i := range cfg.Downstreams {
		if cfg.Downstreams[i].AuthHeaderFormat == "" {
			cfg.Downstreams[i].AuthHeaderFormat = defaultAuthHeaderFormat
		}
		if cfg.Downstreams[i].Strategy == types.StrategyChainedOAuth && cfg.Downstreams[i].OAuthTokenAccept == "" {
			cfg.Downstreams[i].OAuthTokenAccept = defaultOAuthTokenAccept
		}
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// applyEnvOverrides mirrors §4.5/§6: MCPAUTH_STATE_SECRET overrides
// server.state_secret; MCPAUTH_<NAME>_CLIENT_SECRET (name uppercased,
// `-`→`_`) overrides a chained-OAuth downstream's oauth_client_secret.
// Environment values always win over file values.
func applyEnvOverrides(cfg *types.FileConfig) {
	if v := os.Getenv("MCPAUTH_STATE_SECRET"); v != "" {
		cfg.Server.StateSecret = v
	}

	for i := range cfg.Downstreams {
		envName := envKey(cfg.Downstreams[i].Name)
		if v := os.Getenv("MCPAUTH_" + envName + "_CLIENT_SECRET"); v != "" {
			cfg.Downstreams[i].OAuthClientSecret = v
		}
	}
}

func envKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
