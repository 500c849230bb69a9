// Package statecodec signs and verifies the flow-state blob carried through
// a third-party identity provider during the chained-OAuth redirect round
// trip. It generalizes the HMAC-SHA256 request-signing pattern from
// go-core-stack-mcp-auth-proxy's pkg/auth/signer.go — there it signs
// method+path+timestamp for an outbound request, here it signs a JSON
// payload that travels as a single opaque token instead of a header.
package statecodec

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mcpauth/oauth-bridge/pkg/types"
)

// ErrInvalidState covers every failure mode uniformly: malformed
// encoding, bad signature, or an expired payload.
var ErrInvalidState = errors.New("invalid_state")

const maxPayloadSize = 64 * 1024

// Sign serializes state to JSON and returns
// "base64url(payload).base64url(hmac-sha256(payload))".
func Sign(state types.FlowState, secret []byte) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	sig := mac.Sum(nil)

	encPayload := base64.RawURLEncoding.EncodeToString(payload)
	encSig := base64.RawURLEncoding.EncodeToString(sig)

	return encPayload + "." + encSig, nil
}

// Verify reverses Sign, rejecting the token if the signature does not match
// under constant-time comparison, or if the embedded expiry has passed.
func Verify(token string, secret []byte, now time.Time) (types.FlowState, error) {
	var state types.FlowState

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return state, ErrInvalidState
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return state, ErrInvalidState
	}
	if len(payload) > maxPayloadSize {
		return state, ErrInvalidState
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return state, ErrInvalidState
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return state, ErrInvalidState
	}

	if err := json.Unmarshal(payload, &state); err != nil {
		return types.FlowState{}, ErrInvalidState
	}

	if state.Exp <= now.Unix() {
		return types.FlowState{}, ErrInvalidState
	}

	return state, nil
}
