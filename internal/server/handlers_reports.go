package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/export"
	"github.com/jonathan/blitz/internal/types"
)

// handleCreateExport records an export and generates it synchronously. Generation
// failures are reported through the export's status, not the HTTP status.
func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to create export")
		return
	}
	var req types.CreateExportRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Failed to create export")
		return
	}
	if err := s.validateStruct(&req); err != nil {
		s.handleError(w, r, err, "Failed to create export")
		return
	}
	filters, err := export.ParseFilters(req.Filters)
	if err != nil {
		var fe *export.FilterError
		if errors.As(err, &fe) {
			s.errorResponse(w, http.StatusBadRequest, fe.Error())
			return
		}
		s.handleError(w, r, err, "Failed to create export")
		return
	}

	projectID := export.ProjectID(filters)
	if projectID != nil {
		if _, err := s.projectFor(r.Context(), user, *projectID); err != nil {
			s.handleError(w, r, err, "Failed to create export")
			return
		}
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = export.DefaultFilename(req.ExportType, export.DataType(filters), s.now())
	}
	record, err := s.store.CreateExport(r.Context(), &db.ExportInput{
		UserID:     user.ID,
		ProjectID:  projectID,
		ExportType: req.ExportType,
		Filename:   filename,
		Filters:    req.Filters,
	})
	if err != nil {
		s.handleError(w, r, err, "Failed to create export")
		return
	}

	if err := s.exporter.Generate(r.Context(), record, filters, visibleTo(user)); err != nil {
		s.logger.Warn("export generation failed", "export_id", record.ID, "error", err)
	}
	current, err := s.store.GetExport(r.Context(), record.ID)
	if err != nil {
		s.handleError(w, r, err, "Failed to create export")
		return
	}
	if current == nil || current.Status == types.ExportPending || current.Status == types.ExportProcessing {
		s.handleError(w, r, fmt.Errorf("export %s did not finish", record.ID), "Failed to create export")
		return
	}

	s.audit(r, &user.ID, "create_export", "export", record.ID.String(), map[string]any{
		"export_type": req.ExportType,
		"status":      current.Status,
		"row_count":   current.RowCount,
	})
	message := "Export created successfully"
	if current.Status == types.ExportFailed {
		message = "Export failed: " + current.ErrorMessage
	}
	s.jsonResponse(w, http.StatusCreated, types.ExportResponse{
		Envelope: types.OK(message),
		Export:   current,
	})
}

// handleListExports lists the caller's exports; admins see every export.
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve exports")
		return
	}
	page := pageParams(r, types.DefaultPerPage, types.MaxPerPage)
	exports, total, err := s.store.ListExports(r.Context(), visibleTo(user), page.Limit(), page.Offset())
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve exports")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.ExportListResponse{
		Envelope:   types.OK(""),
		Exports:    exports,
		Pagination: paginate(page, total),
	})
}

// handleGetExport returns one export's metadata.
func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	record, ok := s.exportFromPath(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, types.ExportResponse{Envelope: types.OK(""), Export: record})
}

// handleDownloadExport streams a completed, unexpired export as an attachment.
func (s *Server) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	record, ok := s.exportFromPath(w, r)
	if !ok {
		return
	}
	if !record.Downloadable(s.now()) {
		s.errorResponse(w, http.StatusBadRequest, "Export is not ready for download")
		return
	}
	content, err := s.store.GetExportContent(r.Context(), record.ID)
	if err != nil {
		s.handleError(w, r, err, "Failed to download export")
		return
	}
	if content == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "Export", ID: record.ID}, "Failed to download export")
		return
	}

	userID, _ := callerID(r)
	s.audit(r, userID, "download_export", "export", record.ID.String(), nil)
	w.Header().Set("Content-Type", export.ContentType(record.ExportType))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": record.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		s.logger.Warn("failed to write export download", "export_id", record.ID, "error", err)
	}
}

// exportFromPath resolves {id} to an export owned by the caller (any export for admins).
func (s *Server) exportFromPath(w http.ResponseWriter, r *http.Request) (*types.Export, bool) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to load user")
		return nil, false
	}
	exportID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err, "Invalid export id")
		return nil, false
	}
	record, err := s.store.GetExport(r.Context(), exportID)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve export")
		return nil, false
	}
	// Other users' exports are reported as missing.
	if record == nil || (record.UserID != user.ID && !user.IsAdmin()) {
		s.handleError(w, r, &ErrNotFound{Resource: "Export", ID: exportID}, "Failed to retrieve export")
		return nil, false
	}
	return record, true
}
