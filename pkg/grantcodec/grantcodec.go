// Package grantcodec seals and opens authorization grants. A sealed grant
// is the authorization code the client receives: an AEAD ciphertext with no
// backing server-side row, generalized from the AES-256-GCM encrypt/decrypt
// pair the teacher uses to protect its MCP-UI code (pkg/mcpui/jwt.go), minus
// the JWT signing layer that has no equivalent in this codec.
package grantcodec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/mcpauth/oauth-bridge/pkg/types"
)

// ErrInvalidGrant is returned for every failure mode — decode, decrypt,
// unmarshal, or expiry — so callers cannot distinguish tampering from
// corruption from expiry, per the spec's invariant (i).
var ErrInvalidGrant = errors.New("invalid_grant")

// maxPlaintextSize bounds the decrypted grant to guard against memory abuse
// from an oversized sealed code.
const maxPlaintextSize = 64 * 1024

const nonceSize = 12

func deriveKey(secret []byte) []byte {
	sum := sha256.Sum256(secret)
	return sum[:]
}

// Seal serializes grant to canonical JSON, encrypts it with AES-256-GCM
// under a key derived from secret, and returns a base64url-no-pad string of
// nonce||ciphertext.
func Seal(grant types.AuthorizationGrant, secret []byte) (string, error) {
	plaintext, err := json.Marshal(grant)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal and rejects the grant if its embedded expiry has
// already passed as of now.
func Open(code string, secret []byte, now time.Time) (types.AuthorizationGrant, error) {
	var grant types.AuthorizationGrant

	raw, err := base64.RawURLEncoding.Strict().DecodeString(code)
	if err != nil {
		return grant, ErrInvalidGrant
	}
	if len(raw) < nonceSize {
		return grant, ErrInvalidGrant
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return grant, ErrInvalidGrant
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return grant, ErrInvalidGrant
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return grant, ErrInvalidGrant
	}
	if len(plaintext) >= maxPlaintextSize {
		return grant, ErrInvalidGrant
	}

	if err := json.Unmarshal(plaintext, &grant); err != nil {
		return grant, ErrInvalidGrant
	}

	if grant.Exp <= now.Unix() {
		return types.AuthorizationGrant{}, ErrInvalidGrant
	}

	return grant, nil
}
