package grantcodec

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpauth/oauth-bridge/pkg/types"
)

func testGrant(exp time.Time) types.AuthorizationGrant {
	return types.AuthorizationGrant{
		DownstreamTokens: types.DownstreamTokens{
			Kind:        types.TokenKindPassthrough,
			AccessToken: "SECRET",
		},
		PKCEChallenge: "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		RedirectURI:   "http://c/cb",
		Exp:           exp.Unix(),
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	now := time.Unix(1_700_000_000, 0)
	grant := testGrant(now.Add(5 * time.Minute))

	code, err := Seal(grant, secret)
	require.NoError(t, err)

	opened, err := Open(code, secret, now)
	require.NoError(t, err)
	assert.Equal(t, grant, opened)
}

func TestOpen_RejectsExpiredGrant(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	now := time.Unix(1_700_000_000, 0)
	grant := testGrant(now.Add(5 * time.Minute))

	code, err := Seal(grant, secret)
	require.NoError(t, err)

	_, err = Open(code, secret, now.Add(6*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestOpen_RejectsTamperedCiphertext(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	now := time.Unix(1_700_000_000, 0)
	grant := testGrant(now.Add(5 * time.Minute))

	code, err := Seal(grant, secret)
	require.NoError(t, err)

	tampered := []byte(code)
	last := len(tampered) - 1
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	_, err = Open(string(tampered), secret, now)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestOpen_RejectsWrongSecret(t *testing.T) {
	secret1 := []byte("0123456789abcdef0123456789abcdef")
	secret2 := []byte("fedcba9876543210fedcba9876543210")
	now := time.Unix(1_700_000_000, 0)
	grant := testGrant(now.Add(5 * time.Minute))

	code, err := Seal(grant, secret1)
	require.NoError(t, err)

	_, err = Open(code, secret2, now)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestOpen_RejectsPlaintextAtExactSizeLimit(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	now := time.Unix(1_700_000_000, 0)
	grant := testGrant(now.Add(5 * time.Minute))

	base, err := json.Marshal(grant)
	require.NoError(t, err)
	pad := maxPlaintextSize - len(base)
	require.Greater(t, pad, 0)
	grant.DownstreamTokens.AccessToken += strings.Repeat("a", pad)

	padded, err := json.Marshal(grant)
	require.NoError(t, err)
	require.Equal(t, maxPlaintextSize, len(padded))

	code, err := Seal(grant, secret)
	require.NoError(t, err)

	_, err = Open(code, secret, now)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestOpen_AcceptsPlaintextJustBelowSizeLimit(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	now := time.Unix(1_700_000_000, 0)
	grant := testGrant(now.Add(5 * time.Minute))

	base, err := json.Marshal(grant)
	require.NoError(t, err)
	pad := maxPlaintextSize - len(base) - 1
	require.Greater(t, pad, 0)
	grant.DownstreamTokens.AccessToken += strings.Repeat("a", pad)

	padded, err := json.Marshal(grant)
	require.NoError(t, err)
	require.Equal(t, maxPlaintextSize-1, len(padded))

	code, err := Seal(grant, secret)
	require.NoError(t, err)

	opened, err := Open(code, secret, now)
	require.NoError(t, err)
	assert.Equal(t, grant, opened)
}

func TestOpen_RejectsMalformedBase64(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	_, err := Open("not-valid-base64!!!", secret, time.Now())
	assert.ErrorIs(t, err, ErrInvalidGrant)
}
