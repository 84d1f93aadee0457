package client

import (
	"context"
	"net/http"

	"github.com/jonathan/blitz/internal/types"
)

// AuthAPI covers /api/auth.
type AuthAPI struct{ c *Client }

// Login exchanges credentials for tokens.
func (a *AuthAPI) Login(ctx context.Context, email, password string) (*types.LoginResponse, error) {
	var out types.LoginResponse
	err := a.c.call(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   types.LoginRequest{Email: email, Password: password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account. It does not log in.
func (a *AuthAPI) Register(ctx context.Context, req *types.RegisterRequest) (*types.UserResponse, error) {
	var out types.UserResponse
	if err := a.c.call(ctx, request{method: http.MethodPost, path: "/api/auth/register", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile returns the authenticated user.
func (a *AuthAPI) Profile(ctx context.Context) (*types.UserResponse, error) {
	var out types.UserResponse
	if err := a.c.call(ctx, request{method: http.MethodGet, path: "/api/auth/profile"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile changes the caller's name or email.
func (a *AuthAPI) UpdateProfile(ctx context.Context, req *types.UpdateProfileRequest) (*types.UserResponse, error) {
	var out types.UserResponse
	if err := a.c.call(ctx, request{method: http.MethodPut, path: "/api/auth/profile", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword replaces the caller's password.
func (a *AuthAPI) ChangePassword(ctx context.Context, req *types.ChangePasswordRequest) (*types.MessageResponse, error) {
	var out types.MessageResponse
	if err := a.c.call(ctx, request{method: http.MethodPost, path: "/api/auth/change-password", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh trades a refresh token for a new access token.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*types.RefreshResponse, error) {
	var out types.RefreshResponse
	if err := a.c.call(ctx, request{method: http.MethodPost, path: "/api/auth/refresh", token: refreshToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the current access token and, when given, the refresh token.
func (a *AuthAPI) Logout(ctx context.Context, refreshToken string) (*types.MessageResponse, error) {
	var out types.MessageResponse
	err := a.c.call(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/logout",
		body:   types.LogoutRequest{RefreshToken: refreshToken},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
