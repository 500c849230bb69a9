// Package apierror centralizes the boundary error responses for the
// authorization-server endpoints and the dispatcher's MCP-route 401/404
// checks, so those handlers report through one function instead of
// hand-rolling http.Error calls. The MCP forwarder (pkg/mcpproxy) writes its
// own 500/502 responses with http.Error. Grounded on the
// teacher's types.OAuthError envelope and handlerutils.JSON helper
// (pkg/handlerutils/handlerutils.go).
package apierror

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcpauth/oauth-bridge/pkg/types"
)

// JSON writes the RFC 6749 §5.2 error envelope used by the token endpoint
// and the chained-OAuth callback's state check.
func JSON(w http.ResponseWriter, status int, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := types.OAuthError{Error: errCode, ErrorDescription: description}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode error response")
	}
}

// Plain writes a bare text/plain error, used by the authorize and callback
// handlers and by the 401/404/502 helpers below, none of which has a JSON
// error contract of its own.
func Plain(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}

// InvalidGrant is the single error shape returned for every code/state
// failure mode — tampering, corruption, and expiry are all indistinguishable
// to the caller, per the grant codec's contract.
func InvalidGrant(w http.ResponseWriter) {
	JSON(w, http.StatusBadRequest, "invalid_grant", "")
}

// BadGateway reports a downstream connectivity or non-2xx failure.
func BadGateway(w http.ResponseWriter, message string) {
	Plain(w, http.StatusBadGateway, message)
}

// Unauthorized reports a missing or malformed bearer credential on an MCP
// endpoint.
func Unauthorized(w http.ResponseWriter) {
	Plain(w, http.StatusUnauthorized, "missing or malformed bearer credential")
}

// NotFound reports an unknown path prefix.
func NotFound(w http.ResponseWriter) {
	Plain(w, http.StatusNotFound, "unknown downstream")
}
