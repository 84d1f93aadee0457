package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SQL console result kinds.
const (
	QuerySelect = "SELECT"
	QueryModify = "MODIFY"
)

// SQLRequest is the body of POST /api/admin/sql/execute.
type SQLRequest struct {
	SQL              string `json:"sql"`
	Page             int    `json:"page"`
	PerPage          int    `json:"per_page"`
	ConfirmDangerous bool   `json:"confirm_dangerous"`
}

// SQLResponse is either tabular (Columns, Rows, Pagination) or a mutation count (Rowcount).
type SQLResponse struct {
	Envelope
	QueryType  string      `json:"query_type,omitempty"`
	Columns    []string    `json:"columns,omitempty"`
	Rows       [][]any     `json:"rows,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	RowCount   int         `json:"row_count,omitempty"`
	Rowcount   *int64      `json:"rowcount,omitempty"`
}

// Tabular reports whether the response carries a result set.
func (r *SQLResponse) Tabular() bool {
	return r.Rowcount == nil
}

// UserListResponse is returned by GET /api/admin/users.
type UserListResponse struct {
	Envelope
	Users      []User      `json:"users"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// AdminUpdateUserRequest is the body of PUT /api/admin/users/{id}.
type AdminUpdateUserRequest struct {
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin user"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// SystemStatus reports table sizes and recent activity.
type SystemStatus struct {
	Counts         map[string]int64 `json:"counts"`
	RecentActivity map[string]int64 `json:"recent_activity"`
	ActiveJobs     int64            `json:"active_jobs"`
	CheckedAt      time.Time        `json:"checked_at"`
}

// SystemStatusResponse is returned by GET /api/admin/system/status.
type SystemStatusResponse struct {
	Envelope
	Status *SystemStatus `json:"status,omitempty"`
}

// Settings is the read-only runtime configuration shown to admins.
type Settings struct {
	AppName         string `json:"app_name"`
	AppVersion      string `json:"app_version"`
	DatabaseName    string `json:"database_name"`
	RedisEnabled    bool   `json:"redis_enabled"`
	RateLimit       bool   `json:"rate_limit_enabled"`
	RateLimitPolicy string `json:"rate_limit_policy,omitempty"`
	CORSOrigins     string `json:"cors_origins,omitempty"`
}

// SettingsResponse is returned by GET /api/admin/settings.
type SettingsResponse struct {
	Envelope
	Settings *Settings `json:"settings,omitempty"`
}

// AuditLog records a security-relevant action.
type AuditLog struct {
	ID           uuid.UUID       `json:"id"`
	UserID       *uuid.UUID      `json:"user_id,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AuditLogListResponse is returned by GET /api/admin/audit-logs.
type AuditLogListResponse struct {
	Envelope
	Logs       []AuditLog  `json:"logs"`
	Pagination *Pagination `json:"pagination,omitempty"`
}
