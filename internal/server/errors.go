// Package server provides the Blitz REST API.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// ErrEmailAlreadyExists indicates email is already registered
type ErrEmailAlreadyExists struct {
	Email string
}

func (e *ErrEmailAlreadyExists) Error() string {
	return fmt.Sprintf("email already registered: %s", e.Email)
}

// Status implements statusError.
func (e *ErrEmailAlreadyExists) Status() int { return http.StatusBadRequest }

// Public implements statusError.
func (e *ErrEmailAlreadyExists) Public() string { return "Email already registered" }

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid email or password"
}

// Status implements statusError.
func (e *ErrInvalidCredentials) Status() int { return http.StatusUnauthorized }

// Public implements statusError.
func (e *ErrInvalidCredentials) Public() string { return "Invalid email or password" }

// ErrAccountDisabled indicates the account exists but has been deactivated.
type ErrAccountDisabled struct {
	UserID uuid.UUID
}

func (e *ErrAccountDisabled) Error() string {
	return fmt.Sprintf("account deactivated: %s", e.UserID)
}

// Status implements statusError.
func (e *ErrAccountDisabled) Status() int { return http.StatusUnauthorized }

// Public implements statusError.
func (e *ErrAccountDisabled) Public() string { return "Account is deactivated" }

// ErrUserNotFound indicates user was not found
type ErrUserNotFound struct {
	UserID uuid.UUID
}

func (e *ErrUserNotFound) Error() string {
	return fmt.Sprintf("user not found: %s", e.UserID)
}

// Status implements statusError.
func (e *ErrUserNotFound) Status() int { return http.StatusNotFound }

// Public implements statusError.
func (e *ErrUserNotFound) Public() string { return "User not found" }

// ErrPasswordMismatch indicates current password is incorrect.
// It maps to 400 rather than 401 so clients do not treat it as an expired session.
type ErrPasswordMismatch struct{}

func (e *ErrPasswordMismatch) Error() string {
	return "current password is incorrect"
}

// Status implements statusError.
func (e *ErrPasswordMismatch) Status() int { return http.StatusBadRequest }

// Public implements statusError.
func (e *ErrPasswordMismatch) Public() string { return "Current password is incorrect" }

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// Status implements statusError.
func (e *ErrValidation) Status() int { return http.StatusBadRequest }

// Public implements statusError.
func (e *ErrValidation) Public() string { return e.Message }

// ErrNotFound indicates a missing resource.
type ErrNotFound struct {
	Resource string
	ID       uuid.UUID
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Status implements statusError.
func (e *ErrNotFound) Status() int { return http.StatusNotFound }

// Public implements statusError.
func (e *ErrNotFound) Public() string { return e.Resource + " not found" }

// ErrForbidden indicates the caller may not perform the action.
type ErrForbidden struct {
	Message string
}

func (e *ErrForbidden) Error() string {
	return "forbidden: " + e.Public()
}

// Status implements statusError.
func (e *ErrForbidden) Status() int { return http.StatusForbidden }

// Public implements statusError.
func (e *ErrForbidden) Public() string {
	if e.Message == "" {
		return "Access denied"
	}
	return e.Message
}

// ErrConflict indicates the request clashes with current state, such as a crawl already in flight.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return "conflict: " + e.Message
}

// Status implements statusError. Conflicts are reported as 400 to match the client contract.
func (e *ErrConflict) Status() int { return http.StatusBadRequest }

// Public implements statusError.
func (e *ErrConflict) Public() string { return e.Message }

// statusError is implemented by errors that carry an HTTP status and a client-safe message.
type statusError interface {
	error
	Status() int
	Public() string
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var se statusError
	if errors.As(err, &se) {
		return se.Status()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show a client. Unknown errors
// collapse to fallback so internals never leak.
func PublicMessage(err error, fallback string) string {
	var se statusError
	if errors.As(err, &se) {
		return se.Public()
	}
	return fallback
}
