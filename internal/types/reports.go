package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Export types and statuses.
const (
	ExportCSV   = "csv"
	ExportExcel = "excel"
	ExportJSON  = "json"
	ExportPDF   = "pdf"

	ExportPending    = "pending"
	ExportProcessing = "processing"
	ExportCompleted  = "completed"
	ExportFailed     = "failed"
)

// ExportRetention is how long a generated export stays downloadable.
const ExportRetention = 7 * 24 * time.Hour

// ExportFilters narrows the rows included in an export.
type ExportFilters struct {
	ProjectID string     `json:"project_id,omitempty"`
	DataType  string     `json:"data_type,omitempty"`
	Status    string     `json:"status,omitempty"`
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
}

// Export is a generated downloadable file.
type Export struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	ProjectID    *uuid.UUID      `json:"project_id,omitempty"`
	ExportType   string          `json:"export_type"`
	Filename     string          `json:"filename"`
	Filters      json.RawMessage `json:"filters,omitempty"`
	Status       string          `json:"status"`
	Progress     int             `json:"progress"`
	FileSize     int64           `json:"file_size"`
	RowCount     int             `json:"row_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// Downloadable reports whether the export has content that has not expired.
func (e *Export) Downloadable(now time.Time) bool {
	if e.Status != ExportCompleted {
		return false
	}
	return e.ExpiresAt == nil || now.Before(*e.ExpiresAt)
}

// CreateExportRequest is the body of POST /api/reports/export.
type CreateExportRequest struct {
	ExportType string          `json:"export_type" validate:"required,oneof=csv excel json pdf"`
	Filters    json.RawMessage `json:"filters,omitempty"`
	Filename   string          `json:"filename,omitempty"`
}

// ExportResponse wraps a single export.
type ExportResponse struct {
	Envelope
	Export *Export `json:"export,omitempty"`
}

// ExportListResponse is returned by GET /api/reports/exports.
type ExportListResponse struct {
	Envelope
	Exports    []Export    `json:"exports"`
	Pagination *Pagination `json:"pagination,omitempty"`
}
