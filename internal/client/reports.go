package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/types"
)

// ReportsAPI covers /api/reports.
type ReportsAPI struct{ c *Client }

// CreateExport generates an export. A failed generation still returns the export with status failed.
func (r *ReportsAPI) CreateExport(ctx context.Context, req *types.CreateExportRequest) (*types.ExportResponse, error) {
	var out types.ExportResponse
	if err := r.c.call(ctx, request{method: http.MethodPost, path: "/api/reports/export", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ReportsAPI) Exports(ctx context.Context, page, perPage int) (*types.ExportListResponse, error) {
	var out types.ExportListResponse
	err := r.c.call(ctx, request{
		method: http.MethodGet,
		path:   "/api/reports/exports",
		query:  pageQuery(page, perPage),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ReportsAPI) Export(ctx context.Context, id uuid.UUID) (*types.ExportResponse, error) {
	var out types.ExportResponse
	if err := r.c.call(ctx, request{method: http.MethodGet, path: "/api/reports/exports/" + id.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download streams the export file into w and returns the server's filename and the bytes written.
func (r *ReportsAPI) Download(ctx context.Context, id uuid.UUID, w io.Writer) (string, int64, error) {
	resp, err := r.c.send(ctx, request{method: http.MethodGet, path: "/api/reports/downloads/" + id.String()})
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	var filename string
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return filename, n, fmt.Errorf("failed to read export %s: %w", id, err)
	}
	return filename, n, nil
}
