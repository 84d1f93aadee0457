package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/server/middleware"
	"github.com/jonathan/blitz/internal/types"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes a failed envelope.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, types.Fail(message))
}

// handleError maps err to a status and client-safe message. Server errors are
// logged and reported with fallback.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(fallback,
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()),
		)
	}
	s.errorResponse(w, status, PublicMessage(err, fallback))
}

// decodeJSON decodes the request body into v. An empty body is an error.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &ErrValidation{Message: "Request body is required"}
		}
		return &ErrValidation{Message: "Invalid request body"}
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be omitted.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &ErrValidation{Message: "Invalid request body"}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the validator tags of v.
func (s *Server) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError converts validator errors into an ErrValidation naming the first failing field.
func validationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		ve := validationErrors[0]
		return &ErrValidation{Field: ve.Field(), Message: describeTag(ve)}
	}
	return &ErrValidation{Message: "Invalid request"}
}

func describeTag(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "Invalid email format"
	case "url":
		return "Invalid URL format"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

// pathUUID parses the named path value.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: name, Message: "Invalid " + name}
	}
	return id, nil
}

// queryUUID parses an optional UUID query parameter.
func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &ErrValidation{Field: name, Message: "Invalid " + name}
	}
	return &id, nil
}

// pageParams reads page and per_page, clamped to [1, maxPerPage].
func pageParams(r *http.Request, defaultPerPage, maxPerPage int) types.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return types.PageRequest{Page: page, PerPage: perPage}.Normalize(defaultPerPage, maxPerPage)
}

// paginate builds the pagination block for one page of total rows.
func paginate(req types.PageRequest, total int) *types.Pagination {
	p := types.NewPagination(req.Page, req.PerPage, total)
	return &p
}

// notFound translates db.ErrNotFound into an ErrNotFound for resource.
func notFound(err error, resource string, id uuid.UUID) error {
	if errors.Is(err, db.ErrNotFound) {
		return &ErrNotFound{Resource: resource, ID: id}
	}
	return err
}

// audit records an action. Failures are logged and never fail the request.
func (s *Server) audit(r *http.Request, userID *uuid.UUID, action, resourceType, resourceID string, details map[string]any) {
	entry := &db.AuditEntry{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    s.extractClientID(r),
		UserAgent:    r.UserAgent(),
	}
	if err := s.store.InsertAuditLog(r.Context(), entry); err != nil {
		s.logger.Warn("failed to write audit log", "action", action, "error", err)
	}
}
