package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateRoundTrip(t *testing.T) {
	a, err := NewAuthenticator("s3cret")
	require.NoError(t, err)

	token, err := a.Issue("user-1", time.Hour)
	require.NoError(t, err)
	userID, err := a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	forever, err := a.Issue("user-2", 0)
	require.NoError(t, err)
	userID, err = a.Authenticate(forever)
	require.NoError(t, err)
	assert.Equal(t, "user-2", userID)
}

func TestAuthenticateRejects(t *testing.T) {
	a, err := NewAuthenticator("s3cret")
	require.NoError(t, err)
	other, err := NewAuthenticator("different")
	require.NoError(t, err)

	wrongKey, err := other.Issue("user-1", time.Hour)
	require.NoError(t, err)

	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := a.Issue("user-1", time.Hour)
	require.NoError(t, err)
	a.now = time.Now

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userId": "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not.a.jwt",
		"wrong key": wrongKey,
		"expired":   expired,
		"no userId": noUser,
		"alg none":  unsigned,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(token)
			assert.ErrorIs(t, err, ErrInvalidCredential)
		})
	}
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	_, err := NewAuthenticator("")
	assert.Error(t, err)
}
