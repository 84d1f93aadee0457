package server

import (
	"net/http"
	"strings"

	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/metrics"
	"github.com/jonathan/blitz/internal/sqlguard"
	"github.com/jonathan/blitz/internal/types"
)

// Admin list page sizes.
const (
	usersPerPage       = 50
	maxUsersPerPage    = 100
	auditLogsPerPage   = 50
	maxAuditLogPerPage = 200
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page := pageParams(r, usersPerPage, maxUsersPerPage)
	rows, total, err := s.store.ListUsers(r.Context(), db.UserFilters{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:  page.Limit(),
		Offset: page.Offset(),
	})
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve users")
		return
	}
	users := make([]types.User, 0, len(rows))
	for i := range rows {
		users = append(users, *rows[i].ToAPI())
	}
	s.jsonResponse(w, http.StatusOK, types.UserListResponse{
		Envelope:   types.OK(""),
		Users:      users,
		Pagination: paginate(page, total),
	})
}

// handleAdminUpdateUser changes another user's role or active flag.
func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err, "Failed to update user")
		return
	}
	var req types.AdminUpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Failed to update user")
		return
	}
	if err := s.validateStruct(&req); err != nil {
		s.handleError(w, r, err, "Failed to update user")
		return
	}
	adminID, _ := callerID(r)
	if adminID != nil && *adminID == targetID {
		s.errorResponse(w, http.StatusBadRequest, "Administrators cannot change their own role or status")
		return
	}

	updated, err := s.store.AdminUpdateUser(r.Context(), targetID, db.AdminUserUpdate{
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		s.handleError(w, r, err, "Failed to update user")
		return
	}
	if updated == nil {
		s.handleError(w, r, &ErrUserNotFound{UserID: targetID}, "Failed to update user")
		return
	}

	details := map[string]any{}
	if req.Role != nil {
		details["role"] = *req.Role
	}
	if req.IsActive != nil {
		details["is_active"] = *req.IsActive
	}
	s.audit(r, adminID, "admin_update_user", "user", targetID.String(), details)
	s.jsonResponse(w, http.StatusOK, types.UserResponse{
		Envelope: types.OK("User updated successfully"),
		User:     updated.ToAPI(),
	})
}

// handleExecuteSQL runs one console statement. Blocked patterns are always refused;
// statements with mutating keywords require confirm_dangerous.
func (s *Server) handleExecuteSQL(w http.ResponseWriter, r *http.Request) {
	var req types.SQLRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Query failed")
		return
	}
	query := strings.TrimSpace(req.SQL)
	if query == "" {
		s.errorResponse(w, http.StatusBadRequest, "SQL query is required")
		return
	}
	if pattern := sqlguard.Blocked(query); pattern != "" {
		s.logger.Warn("blocked SQL statement", "pattern", pattern)
		s.errorResponse(w, http.StatusBadRequest, "Query contains a blocked pattern: "+pattern)
		return
	}
	if sqlguard.ClassifyDangerous(query) && !req.ConfirmDangerous {
		s.errorResponse(w, http.StatusBadRequest, "Query is potentially dangerous; confirmation required")
		return
	}

	page := types.PageRequest{Page: req.Page, PerPage: req.PerPage}.Normalize(types.DefaultPerPage, types.MaxPerPage)
	adminID, _ := callerID(r)
	res, err := s.store.ExecuteSQL(r.Context(), query, page.Page, page.PerPage)
	queryType := types.QuerySelect
	if sqlguard.Classify(query) == sqlguard.Modify {
		queryType = types.QueryModify
	}
	metrics.ObserveSQL(queryType, err == nil)
	s.audit(r, adminID, "execute_sql", "database", "", map[string]any{
		"success":      err == nil,
		"query_type":   queryType,
		"query_length": len(query),
	})
	if err != nil {
		s.logger.Info("console statement failed", "error", err)
		s.errorResponse(w, http.StatusBadRequest, "Query failed: "+err.Error())
		return
	}

	if res.Kind == sqlguard.Modify {
		affected := res.Affected
		s.jsonResponse(w, http.StatusOK, types.SQLResponse{
			Envelope:  types.OK("Query executed successfully"),
			QueryType: types.QueryModify,
			Rowcount:  &affected,
		})
		return
	}
	rows := res.Rows
	if rows == nil {
		rows = [][]any{}
	}
	pagination := res.Pagination
	s.jsonResponse(w, http.StatusOK, types.SQLResponse{
		Envelope:   types.OK(""),
		QueryType:  types.QuerySelect,
		Columns:    res.Columns,
		Rows:       rows,
		Pagination: &pagination,
		RowCount:   res.RowCount,
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.SystemStatus(r.Context())
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve system status")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.SystemStatusResponse{Envelope: types.OK(""), Status: status})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, types.SettingsResponse{Envelope: types.OK(""), Settings: s.settings()})
}

// handleListAuditLogs lists audit entries, newest first.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUUID(r, "user_id")
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve audit logs")
		return
	}
	q := r.URL.Query()
	page := pageParams(r, auditLogsPerPage, maxAuditLogPerPage)
	logs, total, err := s.store.ListAuditLogs(r.Context(), db.AuditFilters{
		UserID:       userID,
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		Limit:        page.Limit(),
		Offset:       page.Offset(),
	})
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve audit logs")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.AuditLogListResponse{
		Envelope:   types.OK(""),
		Logs:       logs,
		Pagination: paginate(page, total),
	})
}
