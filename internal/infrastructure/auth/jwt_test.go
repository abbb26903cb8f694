package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnihub/backend/internal/infrastructure/config"
)

func newTestService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:          "test-secret-key-at-least-32-chars!!",
		TokenExpiration: time.Hour,
		Issuer:          "omnihub-test",
	})
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := newTestService()

	token, expiresAt, err := svc.GenerateToken("user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "omnihub-test", claims.Issuer)
}

func TestJWTService_ValidateToken_Errors(t *testing.T) {
	svc := newTestService()

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{
			Secret:          "a-completely-different-secret-key!!!",
			TokenExpiration: time.Hour,
			Issuer:          "omnihub-test",
		})
		token, _, err := other.GenerateToken("user-1")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{
			Secret:          "test-secret-key-at-least-32-chars!!",
			TokenExpiration: time.Hour,
			Issuer:          "someone-else",
		})
		token, _, err := other.GenerateToken("user-1")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := NewJWTService(config.JWTConfig{
			Secret:          "test-secret-key-at-least-32-chars!!",
			TokenExpiration: -time.Minute,
			Issuer:          "omnihub-test",
		})
		token, _, err := expired.GenerateToken("user-1")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("unsigned algorithm rejected", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "user-1"})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
