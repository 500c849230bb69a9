// Package types holds the data shapes shared across the proxy: the config
// records loaded from disk, the authorization grant sealed into a code, and
// the wire-level JSON used by the OAuth endpoints.
package types

// Strategy identifies how a downstream authenticates inbound MCP traffic.
type Strategy string

const (
	StrategyPassthrough  Strategy = "passthrough"
	StrategyChainedOAuth Strategy = "chained_oauth"
)

// Downstream is the immutable, validated record describing one proxied MCP
// server, loaded from a `[[downstream]]` TOML table.
type Downstream struct {
	Name             string   `toml:"name"`
	DisplayName      string   `toml:"display_name"`
	Strategy         Strategy `toml:"strategy"`
	DownstreamURL    string   `toml:"downstream_url"`
	AuthHeaderFormat string   `toml:"auth_header_format"`
	Scopes           string   `toml:"scopes"`

	// Passthrough-only.
	AuthHint string `toml:"auth_hint"`

	// Chained-OAuth-only.
	OAuthAuthorizeURL    string `toml:"oauth_authorize_url"`
	OAuthTokenURL        string `toml:"oauth_token_url"`
	OAuthClientID        string `toml:"oauth_client_id"`
	OAuthClientSecret    string `toml:"oauth_client_secret"`
	OAuthScopes          string `toml:"oauth_scopes"`
	OAuthSupportsRefresh bool   `toml:"oauth_supports_refresh"`
	OAuthTokenAccept     string `toml:"oauth_token_accept"`
}

// ServerConfig carries the `[server]` table plus anything resolved from the
// environment.
type ServerConfig struct {
	Host               string `toml:"host"`
	Port               string `toml:"port"`
	PublicURL          string `toml:"public_url"`
	StateSecret        string `toml:"state_secret"`
	AuthCodeTTLSeconds int    `toml:"auth_code_ttl"`
}

// FileConfig is the as-parsed shape of the TOML config file, before
// environment overrides and validation.
type FileConfig struct {
	Server      ServerConfig `toml:"server"`
	Downstreams []Downstream `toml:"downstream"`
}

// DownstreamTokenKind tags the union carried inside an AuthorizationGrant.
type DownstreamTokenKind string

const (
	TokenKindPassthrough  DownstreamTokenKind = "passthrough"
	TokenKindChainedOAuth DownstreamTokenKind = "chained_oauth"
)

// DownstreamTokens is the tagged union of credentials sealed into a grant.
type DownstreamTokens struct {
	Kind DownstreamTokenKind `json:"kind"`

	// Passthrough
	AccessToken string `json:"access_token"`

	// ChainedOAuth
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// AuthorizationGrant is the payload sealed into an authorization code.
type AuthorizationGrant struct {
	DownstreamTokens    DownstreamTokens `json:"downstream_tokens"`
	PKCEChallenge       string           `json:"pkce_challenge"`
	RedirectURI         string           `json:"redirect_uri"`
	Exp                 int64            `json:"exp"`
}

// FlowState is the HMAC-signed blob carried through a third-party IdP
// round trip during the chained-OAuth flow.
type FlowState struct {
	ClaudeState        string `json:"claude_state"`
	ClaudeRedirectURI  string `json:"claude_redirect_uri"`
	PKCEChallenge      string `json:"pkce_challenge"`
	PKCEMethod         string `json:"pkce_method"`
	Exp                int64  `json:"exp"`
}

// OAuthError is the RFC 6749 §5.2 error envelope.
type OAuthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ProtectedResourceMetadata is the `.well-known/oauth-protected-resource`
// document.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// AuthorizationServerMetadata is the `.well-known/oauth-authorization-server`
// document.
type AuthorizationServerMetadata struct {
	Issuer                             string   `json:"issuer"`
	AuthorizationEndpoint              string   `json:"authorization_endpoint"`
	TokenEndpoint                      string   `json:"token_endpoint"`
	ResponseTypesSupported             []string `json:"response_types_supported"`
	GrantTypesSupported                []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported      []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported  []string `json:"token_endpoint_auth_methods_supported"`
}
