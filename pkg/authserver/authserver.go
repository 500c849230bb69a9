// Package authserver implements the OAuth 2.1 authorization server surface:
// discovery metadata, the authorize endpoint (passthrough form or
// chained-OAuth redirect), the chained-OAuth callback, and the token
// endpoint (authorization_code and refresh_token grants). Grounded on the
// teacher's pkg/oauth/{authorize,callback,token} handlers and
// pkg/handlerutils; the chained-OAuth code exchange is adapted from
// pkg/providers/generic.go's ExchangeCodeForToken, swapping its
// golang.org/x/oauth2.Config.Exchange form-post for the bespoke JSON POST
// this protocol requires, while still carrying the parsed result in an
// oauth2.Token value. The refresh path does not parse the IdP's response; it
// relays the body as received.
package authserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/mcpauth/oauth-bridge/pkg/apierror"
	"github.com/mcpauth/oauth-bridge/pkg/grantcodec"
	"github.com/mcpauth/oauth-bridge/pkg/pkce"
	"github.com/mcpauth/oauth-bridge/pkg/registry"
	"github.com/mcpauth/oauth-bridge/pkg/statecodec"
	"github.com/mcpauth/oauth-bridge/pkg/types"
)

// Server holds everything the authorization-server handlers share: the
// validated registry and the pooled outbound client used for chained-OAuth
// code exchange and refresh calls.
type Server struct {
	reg    *registry.Registry
	client *http.Client
}

// New returns a Server backed by reg and client.
func New(reg *registry.Registry, client *http.Client) *Server {
	return &Server{reg: reg, client: client}
}

// resourceURL is the externally-visible identifier for a downstream: the
// same path serves as the MCP endpoint, the OAuth resource identifier, and
// the tail every other authorization-server endpoint is namespaced under.
func (s *Server) resourceURL(name string) string {
	return s.reg.Server.PublicURL + "/mcp/" + name
}

func (s *Server) endpointURL(op, name string) string {
	return s.reg.Server.PublicURL + "/" + op + "/mcp/" + name
}

func (s *Server) now() time.Time {
	return time.Now()
}

// ProtectedResourceMetadata serves GET /.well-known/oauth-protected-resource/mcp/<name>.
func (s *Server) ProtectedResourceMetadata(w http.ResponseWriter, r *http.Request, name string) {
	if _, ok := s.reg.Lookup(name); !ok {
		apierror.NotFound(w)
		return
	}

	resource := s.resourceURL(name)
	writeJSON(w, http.StatusOK, types.ProtectedResourceMetadata{
		Resource:             resource,
		AuthorizationServers: []string{resource},
	})
}

// AuthorizationServerMetadata serves GET /.well-known/oauth-authorization-server/mcp/<name>.
func (s *Server) AuthorizationServerMetadata(w http.ResponseWriter, r *http.Request, name string) {
	d, ok := s.reg.Lookup(name)
	if !ok {
		apierror.NotFound(w)
		return
	}

	grantTypes := []string{"authorization_code"}
	if d.Strategy == types.StrategyChainedOAuth && d.OAuthSupportsRefresh {
		grantTypes = append(grantTypes, "refresh_token")
	}

	writeJSON(w, http.StatusOK, types.AuthorizationServerMetadata{
		Issuer:                            s.resourceURL(name),
		AuthorizationEndpoint:             s.endpointURL("authorize", name),
		TokenEndpoint:                     s.endpointURL("token", name),
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               grantTypes,
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
	})
}

// Authorize dispatches GET and POST /authorize/mcp/<name>.
func (s *Server) Authorize(w http.ResponseWriter, r *http.Request, name string) {
	d, ok := s.reg.Lookup(name)
	if !ok {
		apierror.NotFound(w)
		return
	}

	if r.Method == http.MethodPost {
		s.authorizePost(w, r, d)
		return
	}
	s.authorizeGet(w, r, d)
}

func (s *Server) authorizeGet(w http.ResponseWriter, r *http.Request, d types.Downstream) {
	q := r.URL.Query()
	responseType := q.Get("response_type")
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")
	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")

	if responseType != "code" || codeChallengeMethod != "S256" || redirectURI == "" || codeChallenge == "" {
		apierror.Plain(w, http.StatusBadRequest, "missing or unsupported authorization parameters")
		return
	}

	if d.Strategy == types.StrategyPassthrough {
		renderPassthroughForm(w, d, state, redirectURI, codeChallenge, codeChallengeMethod)
		return
	}

	flowState := types.FlowState{
		ClaudeState:       state,
		ClaudeRedirectURI: redirectURI,
		PKCEChallenge:     codeChallenge,
		PKCEMethod:        codeChallengeMethod,
		Exp:               s.now().Add(600 * time.Second).Unix(),
	}
	signed, err := statecodec.Sign(flowState, s.reg.StateSecret)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign flow state")
		apierror.Plain(w, http.StatusInternalServerError, "internal error")
		return
	}

	idpURL, err := url.Parse(d.OAuthAuthorizeURL)
	if err != nil {
		apierror.Plain(w, http.StatusInternalServerError, "downstream authorize URL is invalid")
		return
	}
	qs := idpURL.Query()
	qs.Set("client_id", d.OAuthClientID)
	qs.Set("redirect_uri", s.endpointURL("callback", d.Name))
	qs.Set("state", signed)
	qs.Set("scope", d.OAuthScopes)
	qs.Set("response_type", "code")
	idpURL.RawQuery = qs.Encode()

	http.Redirect(w, r, idpURL.String(), http.StatusFound)
}

func (s *Server) authorizePost(w http.ResponseWriter, r *http.Request, d types.Downstream) {
	if d.Strategy != types.StrategyPassthrough {
		apierror.Plain(w, http.StatusBadRequest, "form submission only supported for passthrough downstreams")
		return
	}
	if err := r.ParseForm(); err != nil {
		apierror.Plain(w, http.StatusBadRequest, "malformed form body")
		return
	}

	state := r.FormValue("state")
	redirectURI := r.FormValue("redirect_uri")
	codeChallenge := r.FormValue("code_challenge")
	token := r.FormValue("token")

	if redirectURI == "" || codeChallenge == "" || token == "" {
		apierror.Plain(w, http.StatusBadRequest, "missing required form fields")
		return
	}

	grant := types.AuthorizationGrant{
		DownstreamTokens: types.DownstreamTokens{
			Kind:        types.TokenKindPassthrough,
			AccessToken: token,
		},
		PKCEChallenge: codeChallenge,
		RedirectURI:   redirectURI,
		Exp:           s.now().Add(time.Duration(s.reg.AuthCodeTTLSec) * time.Second).Unix(),
	}

	sealed, err := grantcodec.Seal(grant, s.reg.StateSecret)
	if err != nil {
		log.Error().Err(err).Msg("failed to seal grant")
		apierror.Plain(w, http.StatusInternalServerError, "internal error")
		return
	}

	dest := redirectURI + "?code=" + url.QueryEscape(sealed) + "&state=" + url.QueryEscape(state)
	http.Redirect(w, r, dest, http.StatusFound)
}

// Callback serves GET /callback/mcp/<name>, chained-OAuth only.
func (s *Server) Callback(w http.ResponseWriter, r *http.Request, name string) {
	d, ok := s.reg.Lookup(name)
	if !ok {
		apierror.NotFound(w)
		return
	}
	if d.Strategy != types.StrategyChainedOAuth {
		apierror.Plain(w, http.StatusBadRequest, "downstream does not use chained OAuth")
		return
	}

	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		apierror.Plain(w, http.StatusBadGateway, "identity provider returned an error: "+errParam)
		return
	}
	code := q.Get("code")
	stateParam := q.Get("state")

	flowState, err := statecodec.Verify(stateParam, s.reg.StateSecret, s.now())
	if err != nil {
		apierror.InvalidGrant(w)
		return
	}

	token, err := s.exchangeCode(r, d, code)
	if err != nil {
		log.Error().Err(err).Str("downstream", d.Name).Msg("chained-OAuth code exchange failed")
		apierror.BadGateway(w, "downstream token exchange failed")
		return
	}

	grant := types.AuthorizationGrant{
		DownstreamTokens: tokenToDownstreamTokens(token),
		PKCEChallenge:    flowState.PKCEChallenge,
		RedirectURI:      flowState.ClaudeRedirectURI,
		Exp:              s.now().Add(time.Duration(s.reg.AuthCodeTTLSec) * time.Second).Unix(),
	}

	sealed, err := grantcodec.Seal(grant, s.reg.StateSecret)
	if err != nil {
		log.Error().Err(err).Msg("failed to seal grant")
		apierror.Plain(w, http.StatusInternalServerError, "internal error")
		return
	}

	dest := flowState.ClaudeRedirectURI + "?code=" + url.QueryEscape(sealed) + "&state=" + url.QueryEscape(flowState.ClaudeState)
	http.Redirect(w, r, dest, http.StatusFound)
}

// exchangeCodeResponse is the shape of a third-party token endpoint's JSON
// response; the provider's exact field set varies, so every field beyond
// access_token is optional.
type exchangeCodeResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (s *Server) exchangeCode(r *http.Request, d types.Downstream, code string) (*oauth2.Token, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     d.OAuthClientID,
		"client_secret": d.OAuthClientSecret,
		"code":          code,
		"redirect_uri":  s.endpointURL("callback", d.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, d.OAuthTokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", d.OAuthTokenAccept)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform exchange request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Error().Err(err).Msg("close exchange response body failed")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("downstream returned status %d", resp.StatusCode)
	}

	var parsed exchangeCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode exchange response: %w", err)
	}

	token := &oauth2.Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		TokenType:    "Bearer",
	}
	if parsed.ExpiresIn > 0 {
		token = token.WithExtra(map[string]any{"expires_in": parsed.ExpiresIn})
		token.Expiry = s.now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}
	return token, nil
}

func tokenToDownstreamTokens(t *oauth2.Token) types.DownstreamTokens {
	dt := types.DownstreamTokens{
		Kind:         types.TokenKindChainedOAuth,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	if expiresIn, ok := t.Extra("expires_in").(int64); ok {
		dt.ExpiresIn = expiresIn
	}
	return dt
}

// Token serves POST /token/mcp/<name>.
func (s *Server) Token(w http.ResponseWriter, r *http.Request, name string) {
	d, ok := s.reg.Lookup(name)
	if !ok {
		apierror.NotFound(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		apierror.JSON(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		s.tokenAuthorizationCode(w, r, d)
	case "refresh_token":
		s.tokenRefresh(w, r, d)
	default:
		apierror.JSON(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (s *Server) tokenAuthorizationCode(w http.ResponseWriter, r *http.Request, d types.Downstream) {
	code := r.FormValue("code")
	verifier := r.FormValue("code_verifier")
	redirectURI := r.FormValue("redirect_uri")

	grant, err := grantcodec.Open(code, s.reg.StateSecret, s.now())
	if err != nil {
		apierror.InvalidGrant(w)
		return
	}

	if grant.RedirectURI != redirectURI {
		apierror.InvalidGrant(w)
		return
	}
	if !pkce.Verify(verifier, grant.PKCEChallenge) {
		apierror.InvalidGrant(w)
		return
	}

	resp := types.TokenResponse{
		AccessToken: grant.DownstreamTokens.AccessToken,
		TokenType:   "Bearer",
	}
	if grant.DownstreamTokens.Kind == types.TokenKindChainedOAuth {
		resp.ExpiresIn = grant.DownstreamTokens.ExpiresIn
		resp.RefreshToken = grant.DownstreamTokens.RefreshToken
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) tokenRefresh(w http.ResponseWriter, r *http.Request, d types.Downstream) {
	if d.Strategy != types.StrategyChainedOAuth {
		apierror.JSON(w, http.StatusBadRequest, "unsupported_grant_type", "refresh_token is only valid for chained-OAuth downstreams")
		return
	}

	refreshToken := r.FormValue("refresh_token")
	if refreshToken == "" {
		apierror.JSON(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", d.OAuthClientID)
	form.Set("client_secret", d.OAuthClientSecret)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, d.OAuthTokenURL, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		apierror.JSON(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("downstream", d.Name).Msg("refresh token request failed")
		apierror.JSON(w, http.StatusBadRequest, "invalid_grant", "Refresh token invalid or expired. User must re-authorize.")
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Error().Err(err).Msg("close refresh response body failed")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apierror.JSON(w, http.StatusBadRequest, "invalid_grant", "Refresh token invalid or expired. User must re-authorize.")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Error().Err(err).Msg("failed to relay refresh response body")
	}
}

func writeJSON(w http.ResponseWriter, status int, obj any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func renderPassthroughForm(w http.ResponseWriter, d types.Downstream, state, redirectURI, codeChallenge, codeChallengeMethod string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Authorize %s</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
<form method="POST">
<input type="hidden" name="state" value="%s">
<input type="hidden" name="redirect_uri" value="%s">
<input type="hidden" name="code_challenge" value="%s">
<input type="hidden" name="code_challenge_method" value="%s">
<label for="token">Access token</label>
<input type="password" name="token" id="token">
<button type="submit">Authorize</button>
</form>
</body>
</html>`,
		html.EscapeString(d.DisplayName),
		html.EscapeString(d.DisplayName),
		html.EscapeString(d.AuthHint),
		html.EscapeString(state),
		html.EscapeString(redirectURI),
		html.EscapeString(codeChallenge),
		html.EscapeString(codeChallengeMethod),
	)
}
