package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyDevTokens(t *testing.T) {
	v := NewVerifier(Config{})
	p, err := v.Verify(t.Context(), "t1:Driver:d42")
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "t1", Role: RoleDriver, DriverID: "d42"}, p)

	p, err = v.Verify(t.Context(), "t1:admin")
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())

	_, err = v.Verify(t.Context(), "justtenant")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestCanActFor(t *testing.T) {
	assert.True(t, Principal{Role: RoleAdmin}.CanActFor("x"))
	assert.True(t, Principal{Role: RoleDispatcher}.CanActFor("x"))
	assert.True(t, Principal{Role: RoleDriver, DriverID: "x"}.CanActFor("x"))
	assert.False(t, Principal{Role: RoleDriver, DriverID: "y"}.CanActFor("x"))
	assert.False(t, Principal{Role: RoleDriver}.CanActFor(""))
	assert.False(t, Principal{Role: "viewer"}.CanActFor("x"))
}

func TestVerifyHMAC(t *testing.T) {
	v := NewVerifier(Config{Mode: "hmac", HMACSecret: "shh"})
	sign := func(claims jwt.MapClaims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	p, err := v.Verify(t.Context(), sign(jwt.MapClaims{"tenant": "t1", "sub": "d7", "exp": time.Now().Add(time.Hour).Unix()}, "shh"))
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "t1", Role: RoleDriver, DriverID: "d7"}, p)

	p, err = v.Verify(t.Context(), sign(jwt.MapClaims{"tenant": "t1", "role": "Dispatcher", "driver_id": "d1"}, "shh"))
	require.NoError(t, err)
	assert.Equal(t, RoleDispatcher, p.Role)
	assert.Equal(t, "d1", p.DriverID)

	_, err = v.Verify(t.Context(), sign(jwt.MapClaims{"tenant": "t1"}, "wrong"))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(t.Context(), sign(jwt.MapClaims{"tenant": "t1", "exp": time.Now().Add(-time.Hour).Unix()}, "shh"))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(t.Context(), sign(jwt.MapClaims{"role": "admin"}, "shh"))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(t.Context(), "t1:admin")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v := NewVerifier(Config{Mode: "jwks", JWKSURL: srv.URL})
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"tenant": "t9", "role": "admin"})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	p, err := v.Verify(t.Context(), signed)
	require.NoError(t, err)
	assert.Equal(t, "t9", p.Tenant)
	assert.True(t, p.IsAdmin())

	_, err = v.Verify(t.Context(), signed)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetches.Load())

	tok.Header["kid"] = "unknown"
	signed, err = tok.SignedString(key)
	require.NoError(t, err)
	for range 5 {
		_, err = v.Verify(t.Context(), signed)
		require.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, int32(1), fetches.Load(), "unknown kids do not refetch inside the throttle window")

	now = now.Add(31 * time.Second)
	for range 3 {
		_, err = v.Verify(t.Context(), signed)
		require.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, int32(2), fetches.Load(), "one refetch per window")

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"tenant": "t9"}).SignedString([]byte("x"))
	require.NoError(t, err)
	_, err = v.Verify(t.Context(), hs)
	require.ErrorIs(t, err, ErrInvalidToken)
}
