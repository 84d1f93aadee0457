package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestErrEmailAlreadyExists(t *testing.T) {
	err := &ErrEmailAlreadyExists{Email: "test@example.com"}
	assert.Equal(t, "email already registered: test@example.com", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.Equal(t, "Email already registered", PublicMessage(err, ""))
}

func TestErrInvalidCredentials(t *testing.T) {
	err := &ErrInvalidCredentials{}
	assert.Equal(t, "invalid email or password", err.Error())
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(err))
}

func TestErrUserNotFound(t *testing.T) {
	userID := uuid.New()
	err := &ErrUserNotFound{UserID: userID}
	assert.Equal(t, "user not found: "+userID.String(), err.Error())
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestErrPasswordMismatch(t *testing.T) {
	err := &ErrPasswordMismatch{}
	assert.Equal(t, "current password is incorrect", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "email", Message: "invalid format"}
	assert.Equal(t, "validation error: email - invalid format", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.Equal(t, "invalid format", PublicMessage(err, ""))
}

func TestErrForbidden_DefaultMessage(t *testing.T) {
	assert.Equal(t, "Access denied", PublicMessage(&ErrForbidden{}, ""))
	assert.Equal(t, "Admin access required", PublicMessage(&ErrForbidden{Message: "Admin access required"}, ""))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "ErrEmailAlreadyExists",
			err:      &ErrEmailAlreadyExists{Email: "test@example.com"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "ErrAccountDisabled",
			err:      &ErrAccountDisabled{},
			expected: http.StatusUnauthorized,
		},
		{
			name:     "ErrNotFound",
			err:      &ErrNotFound{Resource: "Project"},
			expected: http.StatusNotFound,
		},
		{
			name:     "ErrForbidden",
			err:      &ErrForbidden{},
			expected: http.StatusForbidden,
		},
		{
			name:     "ErrConflict",
			err:      &ErrConflict{Message: "Scraping already running"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "wrapped",
			err:      fmt.Errorf("handler: %w", &ErrNotFound{Resource: "Website"}),
			expected: http.StatusNotFound,
		},
		{
			name:     "unknown error",
			err:      errors.New("boom"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessage_HidesInternalErrors(t *testing.T) {
	assert.Equal(t, "Failed to load", PublicMessage(errors.New("pq: connection refused"), "Failed to load"))
}
