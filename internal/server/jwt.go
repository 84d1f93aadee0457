package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/config"
	"github.com/jonathan/blitz/internal/server/middleware"
	"github.com/jonathan/blitz/internal/types"
)

// Claims represents JWT claims. RegisteredClaims.ID carries the token's jti.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	Type   string    `json:"type"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the middleware's request identity.
func (c *Claims) Identity() *middleware.Identity {
	id := &middleware.Identity{
		UserID:    c.UserID,
		Role:      c.Role,
		TokenType: c.Type,
		TokenID:   c.ID,
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

// JWTService provides JWT token generation and validation functionality.
type JWTService struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewJWTService creates a new JWT service with the given configuration.
func NewJWTService(cfg *config.JWTConfig) *JWTService {
	return &JWTService{
		config: cfg,
		now:    time.Now,
	}
}

// GenerateToken signs a token of tokenType (access or refresh) for user.
func (s *JWTService) GenerateToken(user *types.User, tokenType string) (string, error) {
	var ttl time.Duration
	switch tokenType {
	case middleware.TokenAccess:
		ttl = s.config.AccessTTL()
	case middleware.TokenRefresh:
		ttl = s.config.RefreshTTL()
	default:
		return "", fmt.Errorf("unknown token type %q", tokenType)
	}

	now := s.now()
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// GeneratePair issues the access and refresh tokens returned at login.
func (s *JWTService) GeneratePair(user *types.User) (*types.Tokens, error) {
	access, err := s.GenerateToken(user, middleware.TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.GenerateToken(user, middleware.TokenRefresh)
	if err != nil {
		return nil, err
	}
	return &types.Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("invalid token signature: %w", err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("token expired: %w", err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("malformed token: %w", err)
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.ID == "" || claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("token is missing required claims")
	}
	return claims, nil
}

// AsTokenValidator adapts the service to middleware.TokenValidator, rejecting
// tokens the revoker has seen. A nil revoker disables the revocation check.
func (s *JWTService) AsTokenValidator(revoker Revoker) middleware.TokenValidator {
	return &jwtServiceValidator{service: s, revoker: revoker}
}

type jwtServiceValidator struct {
	service *JWTService
	revoker Revoker
}

func (v *jwtServiceValidator) ValidateToken(ctx context.Context, tokenString string) (*middleware.Identity, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if v.revoker != nil {
		revoked, err := v.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check revocation: %w", err)
		}
		if revoked {
			return nil, middleware.ErrTokenRevoked
		}
	}
	return claims.Identity(), nil
}
