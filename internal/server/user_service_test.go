package server

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/config"
	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserService(t *testing.T) (*UserService, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	return NewUserService(store, testPasswordConfig()), store
}

func registerRequest(email string) *types.RegisterRequest {
	return &types.RegisterRequest{
		Email:     email,
		Password:  "correct-horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
}

func TestUserService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a user account", func(t *testing.T) {
		service, store := newTestUserService(t)
		user, err := service.Register(ctx, registerRequest("ada@example.com"))
		require.NoError(t, err)
		assert.Equal(t, types.RoleUser, user.Role)
		assert.True(t, user.IsActive)

		stored, err := store.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.NotEqual(t, "correct-horse", stored.PasswordHash)
	})

	t.Run("duplicate email", func(t *testing.T) {
		service, _ := newTestUserService(t)
		_, err := service.Register(ctx, registerRequest("ada@example.com"))
		require.NoError(t, err)

		_, err = service.Register(ctx, registerRequest("ADA@example.com"))
		var exists *ErrEmailAlreadyExists
		assert.True(t, errors.As(err, &exists))
	})

	t.Run("password too long for bcrypt", func(t *testing.T) {
		service, _ := newTestUserService(t)
		req := registerRequest("long@example.com")
		req.Password = strings.Repeat("x", 80)
		_, err := service.Register(ctx, req)
		var validation *ErrValidation
		require.True(t, errors.As(err, &validation))
		assert.Equal(t, "password", validation.Field)
	})
}

func TestUserService_Login(t *testing.T) {
	ctx := context.Background()
	service, store := newTestUserService(t)
	registered, err := service.Register(ctx, registerRequest("ada@example.com"))
	require.NoError(t, err)

	t.Run("success records last login", func(t *testing.T) {
		user, err := service.Login(ctx, &types.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
		assert.NotNil(t, user.LastLogin)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		_, err1 := service.Login(ctx, &types.LoginRequest{Email: "ada@example.com", Password: "wrong"})
		_, err2 := service.Login(ctx, &types.LoginRequest{Email: "nobody@example.com", Password: "wrong"})
		var invalid *ErrInvalidCredentials
		assert.True(t, errors.As(err1, &invalid))
		assert.True(t, errors.As(err2, &invalid))
		assert.Equal(t, PublicMessage(err1, ""), PublicMessage(err2, ""))
	})

	t.Run("deactivated account", func(t *testing.T) {
		inactive := false
		_, err := store.AdminUpdateUser(ctx, registered.ID, db.AdminUserUpdate{IsActive: &inactive})
		require.NoError(t, err)

		_, err = service.Login(ctx, &types.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
		var disabled *ErrAccountDisabled
		require.True(t, errors.As(err, &disabled))
		assert.Equal(t, registered.ID, disabled.UserID)
	})
}

func TestUserService_Login_RehashesOnCostChange(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	oldCost := &config.PasswordConfig{BcryptCost: 5}
	hash, err := oldCost.HashPassword("correct-horse")
	require.NoError(t, err)
	u, err := store.CreateUser(ctx, &db.UserCreateInput{Email: "a@example.com", PasswordHash: hash, Role: types.RoleUser})
	require.NoError(t, err)

	service := NewUserService(store, testPasswordConfig())
	_, err = service.Login(ctx, &types.LoginRequest{Email: "a@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	stored, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, testPasswordConfig().NeedsRehash(stored.PasswordHash))
}

func TestUserService_Active(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestUserService(t)

	_, err := service.Active(ctx, uuid.New())
	var notFound *ErrUserNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestUserService_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestUserService(t)
	user, err := service.Register(ctx, registerRequest("ada@example.com"))
	require.NoError(t, err)

	err = service.UpdatePassword(ctx, user.ID, "wrong", "new-password-1")
	var mismatch *ErrPasswordMismatch
	assert.True(t, errors.As(err, &mismatch))

	require.NoError(t, service.UpdatePassword(ctx, user.ID, "correct-horse", "new-password-1"))
	_, err = service.Login(ctx, &types.LoginRequest{Email: "ada@example.com", Password: "new-password-1"})
	assert.NoError(t, err)
}

func TestUserService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestUserService(t)
	user, err := service.Register(ctx, registerRequest("ada@example.com"))
	require.NoError(t, err)

	name := "Augusta"
	updated, err := service.UpdateProfile(ctx, user.ID, &types.UpdateProfileRequest{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Augusta", updated.FirstName)
	assert.Equal(t, "Lovelace", updated.LastName)

	_, err = service.UpdateProfile(ctx, uuid.New(), &types.UpdateProfileRequest{FirstName: &name})
	var notFound *ErrUserNotFound
	assert.True(t, errors.As(err, &notFound))
}
