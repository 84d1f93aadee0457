package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/server/middleware"
	"github.com/jonathan/blitz/internal/types"
)

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	server      *Server
	userService *UserService
	jwtService  *JWTService
	revoker     Revoker
}

// NewAuthHandler creates a new AuthHandler sharing the server's services.
func NewAuthHandler(s *Server) *AuthHandler {
	return &AuthHandler{
		server:      s,
		userService: s.userService,
		jwtService:  s.jwtService,
		revoker:     s.revoker,
	}
}

// Register handles user registration requests.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.server.handleError(w, r, err, "Registration failed")
		return
	}
	if err := h.server.validateStruct(&req); err != nil {
		h.server.handleError(w, r, err, "Registration failed")
		return
	}

	user, err := h.userService.Register(r.Context(), &req)
	if err != nil {
		h.server.handleError(w, r, err, "Registration failed")
		return
	}

	h.server.audit(r, &user.ID, "register", "user", user.ID.String(), nil)
	h.server.jsonResponse(w, http.StatusCreated, types.UserResponse{
		Envelope: types.OK("User registered successfully"),
		User:     user,
	})
}

// Login handles user login requests.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.server.handleError(w, r, err, "Login failed")
		return
	}
	if err := h.server.validateStruct(&req); err != nil {
		h.server.handleError(w, r, err, "Login failed")
		return
	}

	user, err := h.userService.Login(r.Context(), &req)
	if err != nil {
		var disabled *ErrAccountDisabled
		var invalid *ErrInvalidCredentials
		switch {
		case errors.As(err, &disabled):
			h.server.audit(r, &disabled.UserID, "login_failed", "user", disabled.UserID.String(),
				map[string]any{"reason": "inactive"})
		case errors.As(err, &invalid):
			h.server.audit(r, nil, "login_failed", "user", "",
				map[string]any{"email": req.Email, "reason": "invalid_credentials"})
		}
		h.server.handleError(w, r, err, "Login failed")
		return
	}

	tokens, err := h.jwtService.GeneratePair(user)
	if err != nil {
		h.server.handleError(w, r, err, "Failed to generate token")
		return
	}

	h.server.audit(r, &user.ID, "login", "user", user.ID.String(), nil)
	h.server.jsonResponse(w, http.StatusOK, types.LoginResponse{
		Envelope: types.OK("Login successful"),
		User:     user,
		Tokens:   tokens,
	})
}

// Refresh issues a new access token for a valid refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	user, err := h.server.currentUser(r)
	if err != nil {
		h.server.handleError(w, r, err, "Token refresh failed")
		return
	}
	token, err := h.jwtService.GenerateToken(user, middleware.TokenAccess)
	if err != nil {
		h.server.handleError(w, r, err, "Failed to generate token")
		return
	}
	h.server.jsonResponse(w, http.StatusOK, types.RefreshResponse{
		Envelope: types.OK(""),
		Token:    token,
	})
}

// Profile returns the caller's account.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.server.currentUser(r)
	if err != nil {
		h.server.handleError(w, r, err, "Failed to load profile")
		return
	}
	h.server.jsonResponse(w, http.StatusOK, types.UserResponse{Envelope: types.OK(""), User: user})
}

// UpdateProfile changes the caller's name or email.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.server.currentUser(r)
	if err != nil {
		h.server.handleError(w, r, err, "Failed to update profile")
		return
	}
	var req types.UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.server.handleError(w, r, err, "Failed to update profile")
		return
	}
	if err := h.server.validateStruct(&req); err != nil {
		h.server.handleError(w, r, err, "Failed to update profile")
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user.ID, &req)
	if err != nil {
		h.server.handleError(w, r, err, "Failed to update profile")
		return
	}
	h.server.audit(r, &user.ID, "update_profile", "user", user.ID.String(), nil)
	h.server.jsonResponse(w, http.StatusOK, types.UserResponse{
		Envelope: types.OK("Profile updated successfully"),
		User:     updated,
	})
}

// ChangePassword handles password update requests.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		h.server.handleError(w, r, err, "Failed to change password")
		return
	}
	var req types.ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.server.handleError(w, r, err, "Failed to change password")
		return
	}
	if err := h.server.validateStruct(&req); err != nil {
		h.server.handleError(w, r, err, "Failed to change password")
		return
	}

	if err := h.userService.UpdatePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.server.handleError(w, r, err, "Failed to change password")
		return
	}
	h.server.audit(r, &userID, "change_password", "user", userID.String(), nil)
	h.server.jsonResponse(w, http.StatusOK, types.MessageResponse{
		Envelope: types.OK("Password changed successfully"),
	})
}

// Logout revokes the presented access token and, when supplied, the caller's refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		h.server.errorResponse(w, http.StatusUnauthorized, "Authorization token required")
		return
	}
	var req types.LogoutRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.server.handleError(w, r, err, "Logout failed")
		return
	}

	if err := h.revoker.Revoke(r.Context(), identity.TokenID, identity.ExpiresAt); err != nil {
		h.server.handleError(w, r, err, "Logout failed")
		return
	}
	if req.RefreshToken != "" {
		h.revokeRefresh(r, identity.UserID, req.RefreshToken)
	}

	h.server.audit(r, &identity.UserID, "logout", "user", identity.UserID.String(), nil)
	h.server.jsonResponse(w, http.StatusOK, types.MessageResponse{
		Envelope: types.OK("Logged out successfully"),
	})
}

// revokeRefresh revokes token when it is a valid refresh token of userID. Anything else is ignored.
func (h *AuthHandler) revokeRefresh(r *http.Request, userID uuid.UUID, token string) {
	claims, err := h.jwtService.ValidateToken(token)
	if err != nil || claims.Type != middleware.TokenRefresh || claims.UserID != userID {
		return
	}
	if err := h.revoker.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		h.server.logger.Warn("failed to revoke refresh token", "user_id", userID, "error", err)
	}
}

// currentUser loads the authenticated caller, rejecting deleted or deactivated accounts.
func (s *Server) currentUser(r *http.Request) (*types.User, error) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		return nil, err
	}
	return s.userService.Active(r.Context(), userID)
}
