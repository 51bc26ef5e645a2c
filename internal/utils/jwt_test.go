package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	s := NewJWTService("secret")

	token, err := s.GenerateToken("5f0c6a1e-0000-4000-8000-000000000001", time.Hour)
	require.NoError(t, err)

	userID, err := s.ExtractUserID(token)
	require.NoError(t, err)
	assert.Equal(t, "5f0c6a1e-0000-4000-8000-000000000001", userID)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret").GenerateToken("op", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTService("other").ExtractUserID(token)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	s := NewJWTService("secret")
	claims := jwt.MapClaims{"user_id": "op", "exp": time.Now().Add(-time.Minute).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = s.ExtractUserID(token)
	assert.Error(t, err)
}

func TestTokenWithoutUserID(t *testing.T) {
	s := NewJWTService("secret")
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = s.ExtractUserID(token)
	assert.Error(t, err)
}

func TestExtractOperatorID(t *testing.T) {
	s := NewJWTService("secret")

	token, err := s.GenerateToken("5f0c6a1e-0000-4000-8000-000000000001", time.Hour)
	require.NoError(t, err)
	id, err := s.ExtractOperatorID(token)
	require.NoError(t, err)
	assert.Equal(t, "5f0c6a1e-0000-4000-8000-000000000001", id)

	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "5f0c6a1e-0000-4000-8000-000000000001",
		"role":    "viewer",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.ExtractOperatorID(viewer)
	assert.ErrorIs(t, err, ErrNotOperator)

	plain, err := s.GenerateToken("bob", time.Hour)
	require.NoError(t, err)
	_, err = s.ExtractOperatorID(plain)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", token)

	for _, h := range []string{"", "Bearer", "Bearer ", "Basic abc", "abc"} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}
