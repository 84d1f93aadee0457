package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/config"
	"github.com/jonathan/blitz/internal/server/middleware"
	"github.com/jonathan/blitz/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestJWTService(_ *testing.T) *JWTService {
	return NewJWTService(testJWTConfig())
}

func testUser(role string) *types.User {
	return &types.User{ID: uuid.New(), Email: "user@example.com", Role: role, IsActive: true}
}

func TestJWTService_GenerateToken(t *testing.T) {
	service := setupTestJWTService(t)
	user := testUser(types.RoleUser)

	token, err := service.GenerateToken(user, middleware.TokenAccess)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	assert.Len(t, parts, 3, "JWT should have 3 parts separated by dots")

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, types.RoleUser, claims.Role)
	assert.Equal(t, middleware.TokenAccess, claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_GenerateToken_UniqueIDs(t *testing.T) {
	service := setupTestJWTService(t)
	user := testUser(types.RoleUser)

	token1, err := service.GenerateToken(user, middleware.TokenAccess)
	require.NoError(t, err)
	token2, err := service.GenerateToken(user, middleware.TokenAccess)
	require.NoError(t, err)

	claims1, err := service.ValidateToken(token1)
	require.NoError(t, err)
	claims2, err := service.ValidateToken(token2)
	require.NoError(t, err)
	assert.NotEqual(t, claims1.ID, claims2.ID, "every token carries its own jti")
}

func TestJWTService_GenerateToken_UnknownType(t *testing.T) {
	service := setupTestJWTService(t)
	_, err := service.GenerateToken(testUser(types.RoleUser), "session")
	assert.Error(t, err)
}

func TestJWTService_GeneratePair(t *testing.T) {
	service := setupTestJWTService(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	tokens, err := service.GeneratePair(testUser(types.RoleAdmin))
	require.NoError(t, err)

	access, err := service.ValidateToken(tokens.AccessToken)
	require.NoError(t, err)
	refresh, err := service.ValidateToken(tokens.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, middleware.TokenAccess, access.Type)
	assert.Equal(t, middleware.TokenRefresh, refresh.Type)
	assert.Equal(t, now.Add(24*time.Hour), access.ExpiresAt.Time)
	assert.Equal(t, now.Add(30*24*time.Hour), refresh.ExpiresAt.Time)
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	service := setupTestJWTService(t)
	issued := time.Now()
	service.now = func() time.Time { return issued }

	token, err := service.GenerateToken(testUser(types.RoleUser), middleware.TokenAccess)
	require.NoError(t, err)

	service.now = func() time.Time { return issued.Add(25 * time.Hour) }
	_, err = service.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
}

func TestJWTService_ValidateToken_WrongSecret(t *testing.T) {
	token, err := setupTestJWTService(t).GenerateToken(testUser(types.RoleUser), middleware.TokenAccess)
	require.NoError(t, err)

	other := NewJWTService(&config.JWTConfig{Secret: "a-different-secret-that-is-long-enough", ExpirationHours: 24, RefreshDays: 30})
	_, err = other.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token signature")
}

func TestJWTService_ValidateToken_Malformed(t *testing.T) {
	service := setupTestJWTService(t)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := service.ValidateToken(token)
		assert.Error(t, err, "token %q", token)
	}
}

func TestJWTService_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	service := setupTestJWTService(t)
	claims := &Claims{
		UserID: uuid.New(),
		Type:   middleware.TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_ValidateToken_MissingJTI(t *testing.T) {
	service := setupTestJWTService(t)
	claims := &Claims{
		UserID: uuid.New(),
		Type:   middleware.TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required claims")
}

func TestJWTService_AsTokenValidator(t *testing.T) {
	service := setupTestJWTService(t)
	revoker := NewMemoryRevoker()
	validator := service.AsTokenValidator(revoker)
	user := testUser(types.RoleUser)

	token, err := service.GenerateToken(user, middleware.TokenRefresh)
	require.NoError(t, err)

	identity, err := validator.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, middleware.TokenRefresh, identity.TokenType)
	assert.False(t, identity.ExpiresAt.IsZero())

	require.NoError(t, revoker.Revoke(context.Background(), identity.TokenID, identity.ExpiresAt))
	_, err = validator.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, middleware.ErrTokenRevoked)
}
