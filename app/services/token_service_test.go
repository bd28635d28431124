package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-32-chars"

func createTestTokenService(t *testing.T) TokenService {
	t.Helper()
	service, err := NewTokenService(testSecret, "test-issuer", "test-audience")
	require.NoError(t, err)
	return service
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		secretKey   string
		expectError bool
	}{
		{name: "valid secret", secretKey: testSecret},
		{name: "missing secret key", secretKey: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewTokenService(tt.secretKey, "", "")
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, service)
		})
	}
}

func TestTokenService_GenerateAndValidate(t *testing.T) {
	service := createTestTokenService(t)
	userID := uuid.New()

	token, err := service.GenerateToken(userID, "admin", time.Hour)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestTokenService_ValidateToken_Failures(t *testing.T) {
	service := createTestTokenService(t)
	userID := uuid.New()

	expired, err := service.GenerateToken(userID, "user", -time.Minute)
	require.NoError(t, err)

	other, err := NewTokenService("another-secret-key-of-some-length", "test-issuer", "test-audience")
	require.NoError(t, err)
	foreign, err := other.GenerateToken(userID, "user", time.Hour)
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
		"iss": "test-issuer",
		"aud": "test-audience",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       "not-a-uuid",
		"user_role": "user",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iss":       "test-issuer",
		"aud":       "test-audience",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "expired", token: expired, want: ErrTokenExpired},
		{name: "wrong signature", token: foreign, want: ErrTokenInvalid},
		{name: "missing role", token: noRole, want: ErrTokenInvalid},
		{name: "subject is not a uuid", token: badSubject, want: ErrTokenInvalid},
		{name: "garbage", token: "not.a.token", want: ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, claims)
		})
	}
}
