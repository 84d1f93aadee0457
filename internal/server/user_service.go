package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/config"
	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/types"
)

// UserService provides business logic for user authentication operations
type UserService struct {
	db             UserStore
	passwordConfig *config.PasswordConfig
	now            func() time.Time
}

// NewUserService creates a new UserService with the given dependencies
func NewUserService(store UserStore, passwordConfig *config.PasswordConfig) *UserService {
	return &UserService{
		db:             store,
		passwordConfig: passwordConfig,
		now:            time.Now,
	}
}

// Register creates a new account with the user role. It does not log the user in.
func (s *UserService) Register(ctx context.Context, req *types.RegisterRequest) (*types.User, error) {
	exists, err := s.db.CheckEmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return nil, &ErrEmailAlreadyExists{Email: req.Email}
	}

	passwordHash, err := s.passwordConfig.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, config.ErrPasswordTooLong) {
			return nil, &ErrValidation{Field: "password", Message: "Password is too long"}
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	dbUser, err := s.db.CreateUser(ctx, &db.UserCreateInput{
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         types.RoleUser,
	})
	if err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, db.ErrEmailTaken) {
			return nil, &ErrEmailAlreadyExists{Email: req.Email}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return dbUser.ToAPI(), nil
}

// Login authenticates a user and returns user data
func (s *UserService) Login(ctx context.Context, req *types.LoginRequest) (*types.User, error) {
	dbUser, err := s.db.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	// Unknown email and wrong password are indistinguishable to the caller.
	if dbUser == nil {
		return nil, &ErrInvalidCredentials{}
	}
	if !s.passwordConfig.VerifyPassword(req.Password, dbUser.PasswordHash) {
		return nil, &ErrInvalidCredentials{}
	}
	if !dbUser.IsActive {
		return nil, &ErrAccountDisabled{UserID: dbUser.ID}
	}

	if err := s.db.TouchLastLogin(ctx, dbUser.ID); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	now := s.now().UTC()
	dbUser.LastLogin = &now

	if s.passwordConfig.NeedsRehash(dbUser.PasswordHash) {
		if hash, err := s.passwordConfig.HashPassword(req.Password); err == nil {
			if err := s.db.UpdatePassword(ctx, dbUser.ID, hash); err != nil {
				slog.Warn("failed to upgrade password hash", "user_id", dbUser.ID, "error", err)
			}
		}
	}

	return dbUser.ToAPI(), nil
}

// Active returns the user if it exists and is active.
func (s *UserService) Active(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	dbUser, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if dbUser == nil {
		return nil, &ErrUserNotFound{UserID: userID}
	}
	if !dbUser.IsActive {
		return nil, &ErrAccountDisabled{UserID: userID}
	}
	return dbUser.ToAPI(), nil
}

// UpdateProfile applies a partial update to the caller's own profile.
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *types.UpdateProfileRequest) (*types.User, error) {
	dbUser, err := s.db.UpdateUserProfile(ctx, userID, db.UserProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		if errors.Is(err, db.ErrEmailTaken) && req.Email != nil {
			return nil, &ErrEmailAlreadyExists{Email: *req.Email}
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if dbUser == nil {
		return nil, &ErrUserNotFound{UserID: userID}
	}
	return dbUser.ToAPI(), nil
}

// UpdatePassword updates a user's password
func (s *UserService) UpdatePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	dbUser, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if dbUser == nil {
		return &ErrUserNotFound{UserID: userID}
	}

	if !s.passwordConfig.VerifyPassword(currentPassword, dbUser.PasswordHash) {
		return &ErrPasswordMismatch{}
	}

	newPasswordHash, err := s.passwordConfig.HashPassword(newPassword)
	if err != nil {
		if errors.Is(err, config.ErrPasswordTooLong) {
			return &ErrValidation{Field: "new_password", Message: "Password is too long"}
		}
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	if err := s.db.UpdatePassword(ctx, userID, newPasswordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
