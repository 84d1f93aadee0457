package client

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/types"
)

// AuditLogParams filters GET /api/admin/audit-logs.
type AuditLogParams struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	Page         int
	PerPage      int
}

// AdminAPI covers /api/admin. Every call needs an admin session.
type AdminAPI struct{ c *Client }

func (a *AdminAPI) Users(ctx context.Context, search string, page, perPage int) (*types.UserListResponse, error) {
	q := pageQuery(page, perPage)
	setIf(q, "search", search)

	var out types.UserListResponse
	if err := a.c.call(ctx, request{method: http.MethodGet, path: "/api/admin/users", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AdminAPI) UpdateUser(ctx context.Context, id uuid.UUID, req *types.AdminUpdateUserRequest) (*types.UserResponse, error) {
	var out types.UserResponse
	if err := a.c.call(ctx, request{method: http.MethodPut, path: "/api/admin/users/" + id.String(), body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteSQL runs one console statement.
func (a *AdminAPI) ExecuteSQL(ctx context.Context, req *types.SQLRequest) (*types.SQLResponse, error) {
	var out types.SQLResponse
	if err := a.c.call(ctx, request{method: http.MethodPost, path: "/api/admin/sql/execute", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AdminAPI) SystemStatus(ctx context.Context) (*types.SystemStatusResponse, error) {
	var out types.SystemStatusResponse
	if err := a.c.call(ctx, request{method: http.MethodGet, path: "/api/admin/system/status"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AdminAPI) Settings(ctx context.Context) (*types.SettingsResponse, error) {
	var out types.SettingsResponse
	if err := a.c.call(ctx, request{method: http.MethodGet, path: "/api/admin/settings"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AdminAPI) AuditLogs(ctx context.Context, params AuditLogParams) (*types.AuditLogListResponse, error) {
	q := pageQuery(params.Page, params.PerPage)
	if params.UserID != nil {
		q.Set("user_id", params.UserID.String())
	}
	setIf(q, "action", params.Action)
	setIf(q, "resource_type", params.ResourceType)

	var out types.AuditLogListResponse
	if err := a.c.call(ctx, request{method: http.MethodGet, path: "/api/admin/audit-logs", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
