package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateJWT("64b7f0c2a1b2c3d4e5f60718", "doctor")
	require.NoError(t, err)

	claims, err := m.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", claims.UserID)
	assert.Equal(t, "doctor", claims.Role)
}

func TestJWTRejectsOtherSecret(t *testing.T) {
	token, err := NewJWTManager("one", time.Hour).GenerateJWT("u", "patient")
	require.NoError(t, err)

	_, err = NewJWTManager("two", time.Hour).ValidateJWT(token)
	assert.Error(t, err)
}

func TestJWTRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", -time.Minute)
	token, err := m.GenerateJWT("u", "patient")
	require.NoError(t, err)

	_, err = m.ValidateJWT(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTMissingSecret(t *testing.T) {
	_, err := NewJWTManager("", time.Hour).GenerateJWT("u", "admin")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("correct horse", hash))
	assert.False(t, CheckPasswordHash("wrong horse", hash))
}

func TestResetToken(t *testing.T) {
	token, hash, err := NewResetToken()
	require.NoError(t, err)

	assert.Len(t, token, 64)
	assert.Equal(t, hash, HashResetToken(token))
	assert.NotEqual(t, token, hash)
}
