package tokens

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("access-secret")
	exp := time.Now().Add(AccessTTL)

	tok, err := NewAccessToken(secret, "7", "pharmacist", exp)
	require.NoError(t, err)

	claims, err := AccessClaimsFromToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, "pharmacist", claims.Role)
	assert.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
}

func TestAccessToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewAccessToken([]byte("a"), "1", "admin", time.Now().Add(time.Minute))
	require.NoError(t, err)

	claims, err := AccessClaimsFromToken(tok, []byte("b"))
	require.Error(t, err)
	assert.Nil(t, claims)
}

func TestAccessToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("s")
	tok, err := NewAccessToken(secret, "1", "admin", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = AccessClaimsFromToken(tok, secret)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestRefreshToken_CarriesJTI(t *testing.T) {
	t.Parallel()

	secret := []byte("refresh-secret")
	jti := NewJTI()
	tok, err := NewRefreshToken(secret, "3", jti, time.Now().Add(RefreshTTL))
	require.NoError(t, err)

	claims, err := RefreshClaimsFromToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "3", claims.Subject)
	assert.Equal(t, jti, claims.ID)
}

func TestRefreshToken_RejectsOtherAlgorithm(t *testing.T) {
	t.Parallel()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, RefreshClaims{})
	s, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = RefreshClaimsFromToken(s, []byte("k"))
	require.Error(t, err)
}
