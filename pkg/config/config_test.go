package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[server]
host = "127.0.0.1"
port = "9090"
public_url = "https://proxy.example.com"
state_secret = "c3RhdGUtc2VjcmV0LXN0YXRlLXNlY3JldC0zMmJ5dGVzIQ=="

[[downstream]]
name = "linear"
strategy = "passthrough"
downstream_url = "https://mcp.linear.app/sse"
auth_header_format = "Bearer"

[[downstream]]
name = "github"
strategy = "chained_oauth"
downstream_url = "https://mcp.github.com/sse"
auth_header_format = "token"
oauth_authorize_url = "https://github.com/login/oauth/authorize"
oauth_token_url = "https://github.com/login/oauth/access_token"
oauth_client_id = "client-id"
oauth_client_secret = "from-file"
oauth_token_accept = "application/json"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_ParsesServerAndDownstreams(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "https://proxy.example.com", cfg.Server.PublicURL)
	assert.Equal(t, defaultAuthCodeTTLSeconds, cfg.Server.AuthCodeTTLSeconds)
	require.Len(t, cfg.Downstreams, 2)
	assert.Equal(t, "linear", cfg.Downstreams[0].Name)
	assert.Equal(t, "github", cfg.Downstreams[1].Name)
	assert.Equal(t, "from-file", cfg.Downstreams[1].OAuthClientSecret)
}

func TestLoad_EnvOverridesStateSecret(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)

	t.Setenv("MCPAUTH_STATE_SECRET", "ZW52LXNlY3JldC1lbnYtc2VjcmV0LTMyYnl0ZXMh")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ZW52LXNlY3JldC1lbnYtc2VjcmV0LTMyYnl0ZXMh", cfg.Server.StateSecret)
}

func TestLoad_EnvOverridesDownstreamClientSecret(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)

	t.Setenv("MCPAUTH_GITHUB_CLIENT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Downstreams, 2)
	assert.Equal(t, "from-env", cfg.Downstreams[1].OAuthClientSecret)
}

func TestLoad_DefaultsOmittedAuthHeaderFormatAndTokenAccept(t *testing.T) {
	const toml = `
[server]
state_secret = "c3RhdGUtc2VjcmV0LXN0YXRlLXNlY3JldC0zMmJ5dGVzIQ=="

[[downstream]]
name = "linear"
strategy = "passthrough"
downstream_url = "https://mcp.linear.app/sse"

[[downstream]]
name = "github"
strategy = "chained_oauth"
downstream_url = "https://mcp.github.com/sse"
oauth_authorize_url = "https://github.com/login/oauth/authorize"
oauth_token_url = "https://github.com/login/oauth/access_token"
oauth_client_id = "client-id"
oauth_client_secret = "secret"
`
	path := writeTempConfig(t, toml)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	require.Len(t, cfg.Downstreams, 2)
	assert.Equal(t, "Bearer", cfg.Downstreams[0].AuthHeaderFormat)
	assert.Equal(t, "Bearer", cfg.Downstreams[1].AuthHeaderFormat)
	assert.Equal(t, "application/json", cfg.Downstreams[1].OAuthTokenAccept)
}

func TestLoad_KeepsExplicitHostAndPort(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.Error(t, err)
}

func TestEnvKey_UppercasesAndReplacesDashes(t *testing.T) {
	assert.Equal(t, "MY_SERVER", envKey("my-server"))
}
