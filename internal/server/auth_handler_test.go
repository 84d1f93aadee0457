package server

import (
	"net/http"
	"testing"

	"github.com/jonathan/blitz/internal/server/middleware"
	"github.com/jonathan/blitz/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandler_Register(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{
		"email":      "ada@example.com",
		"password":   "correct-horse",
		"first_name": "Ada",
		"last_name":  "Lovelace",
	}

	rr := env.do(http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[types.UserResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.Equal(t, types.RoleUser, resp.User.Role)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = env.do(http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Email already registered", decode[types.Envelope](t, rr).Message)
	assert.Contains(t, env.store.auditActions(), "register")
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    any
		message string
	}{
		{"empty body", nil, "Request body is required"},
		{"bad email", map[string]string{"email": "nope", "password": "correct-horse", "first_name": "A", "last_name": "B"}, "Invalid email format"},
		{"short password", map[string]string{"email": "a@example.com", "password": "short", "first_name": "A", "last_name": "B"}, "password must be at least 8"},
		{"missing name", map[string]string{"email": "a@example.com", "password": "correct-horse", "last_name": "B"}, "first_name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			resp := decode[types.Envelope](t, rr)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("ada@example.com", "correct-horse", types.RoleUser)

	rr := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[types.LoginResponse](t, rr)
	assert.Equal(t, "Login successful", resp.Message)
	require.NotNil(t, resp.Tokens)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)

	rr = env.do(http.MethodGet, "/api/auth/profile", resp.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ada@example.com", decode[types.UserResponse](t, rr).User.Email)

	rr = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid email or password", decode[types.Envelope](t, rr).Message)
	assert.Contains(t, env.store.auditActions(), "login_failed")
}

func TestAuthHandler_Refresh(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser("ada@example.com", "correct-horse", types.RoleUser)

	rr := env.do(http.MethodPost, "/api/auth/refresh", env.token(user, middleware.TokenRefresh), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	access := decode[types.RefreshResponse](t, rr).Token
	require.NotEmpty(t, access)

	rr = env.do(http.MethodGet, "/api/auth/profile", access, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	t.Run("access token cannot refresh", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/auth/refresh", env.token(user, middleware.TokenAccess), nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("refresh token cannot call the API", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/api/auth/profile", env.token(user, middleware.TokenRefresh), nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestAuthHandler_Logout_RevokesTokens(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser("ada@example.com", "correct-horse", types.RoleUser)
	access := env.token(user, middleware.TokenAccess)
	refresh := env.token(user, middleware.TokenRefresh)

	rr := env.do(http.MethodGet, "/api/projects", access, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodPost, "/api/auth/logout", access, map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Logged out successfully", decode[types.Envelope](t, rr).Message)

	rr = env.do(http.MethodGet, "/api/projects", access, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Token has been revoked", decode[types.Envelope](t, rr).Message)

	rr = env.do(http.MethodPost, "/api/auth/refresh", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthHandler_Logout_IgnoresOtherUsersRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ada := env.addUser("ada@example.com", "correct-horse", types.RoleUser)
	bob := env.addUser("bob@example.com", "correct-horse", types.RoleUser)
	bobRefresh := env.token(bob, middleware.TokenRefresh)

	rr := env.do(http.MethodPost, "/api/auth/logout", env.token(ada, middleware.TokenAccess), map[string]string{"refresh_token": bobRefresh})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodPost, "/api/auth/refresh", bobRefresh, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser("ada@example.com", "correct-horse", types.RoleUser)
	token := env.token(user, middleware.TokenAccess)

	rr := env.do(http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"current_password": "wrong-password",
		"new_password":     "new-password-1",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Current password is incorrect", decode[types.Envelope](t, rr).Message)

	rr = env.do(http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"current_password": "correct-horse",
		"new_password":     "new-password-1",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "new-password-1"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthHandler_DeactivatedUserTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser("ada@example.com", "correct-horse", types.RoleUser)
	token := env.token(user, middleware.TokenAccess)
	env.store.users[user.ID].IsActive = false

	rr := env.do(http.MethodGet, "/api/auth/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Account is deactivated", decode[types.Envelope](t, rr).Message)
}
