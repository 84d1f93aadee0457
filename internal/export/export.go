// Package export renders pages and snippets into downloadable CSV and JSON files.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/metrics"
	"github.com/jonathan/blitz/internal/schemas"
	"github.com/jonathan/blitz/internal/types"
)

// MaxRows caps the rows written into one export.
const MaxRows = 10000

// Data types an export can contain.
const (
	DataPages    = "pages"
	DataSnippets = "snippets"
)

// ErrUnsupportedType marks export types that are accepted but not generated.
var ErrUnsupportedType = errors.New("unsupported export type")

// Store is the persistence the generator needs. *db.DB satisfies it.
type Store interface {
	SetExportProcessing(ctx context.Context, id uuid.UUID) error
	CompleteExport(ctx context.Context, id uuid.UUID, content []byte, rowCount int) error
	FailExport(ctx context.Context, id uuid.UUID, msg string) error
	ListPagesForExport(ctx context.Context, ef db.ExportFilter) ([]db.Page, error)
	ListSnippetsForExport(ctx context.Context, ef db.ExportFilter) ([]types.Snippet, error)
}

// FilterError reports export filters that failed validation.
type FilterError struct {
	Cause error
}

func (e *FilterError) Error() string {
	return "invalid export filters: " + e.Cause.Error()
}

func (e *FilterError) Unwrap() error {
	return e.Cause
}

// ParseFilters validates raw filters against the export filter schema and decodes them.
// Empty input yields zero filters.
func ParseFilters(raw json.RawMessage) (*types.ExportFilters, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &types.ExportFilters{}, nil
	}
	if err := schemas.Validate(schemas.ExportFilters, trimmed); err != nil {
		return nil, &FilterError{Cause: err}
	}
	var f types.ExportFilters
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, &FilterError{Cause: err}
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return nil, &FilterError{Cause: errors.New("date_from is after date_to")}
	}
	return &f, nil
}

// ProjectID returns the parsed project filter, nil when unset.
func ProjectID(f *types.ExportFilters) *uuid.UUID {
	if f == nil || f.ProjectID == "" {
		return nil
	}
	id, err := uuid.Parse(f.ProjectID)
	if err != nil {
		return nil
	}
	return &id
}

// DataType returns the filter's data type, defaulting to pages.
func DataType(f *types.ExportFilters) string {
	if f == nil || f.DataType == "" {
		return DataPages
	}
	return f.DataType
}

// DefaultFilename names an export from its type, data type and creation time.
func DefaultFilename(exportType, dataType string, now time.Time) string {
	return fmt.Sprintf("blitz_%s_%s.%s", dataType, now.UTC().Format("20060102_150405"), extension(exportType))
}

func extension(exportType string) string {
	if exportType == types.ExportExcel {
		return "xlsx"
	}
	return exportType
}

// ContentType returns the MIME type served for a download.
func ContentType(exportType string) string {
	switch exportType {
	case types.ExportCSV:
		return "text/csv; charset=utf-8"
	case types.ExportJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Generator produces export files and records the outcome on the export row.
type Generator struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator(store Store, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{store: store, logger: logger, now: time.Now}
}

// Generate builds the file for e synchronously. visibleTo restricts rows to a
// user's projects, nil for admins. Unsupported types are recorded as failed
// and reported with ErrUnsupportedType.
func (g *Generator) Generate(ctx context.Context, e *types.Export, filters *types.ExportFilters, visibleTo *uuid.UUID) error {
	logger := g.logger.With("export_id", e.ID, "export_type", e.ExportType)
	if filters == nil {
		filters = &types.ExportFilters{}
	}

	if e.ExportType != types.ExportCSV && e.ExportType != types.ExportJSON {
		return g.fail(ctx, e, logger, ErrUnsupportedType)
	}
	if err := g.store.SetExportProcessing(ctx, e.ID); err != nil {
		return err
	}

	ef := db.ExportFilter{
		VisibleTo: visibleTo,
		ProjectID: ProjectID(filters),
		Status:    filters.Status,
		DateFrom:  filters.DateFrom,
		DateTo:    filters.DateTo,
		Limit:     MaxRows,
	}

	content, count, err := g.render(ctx, e.ExportType, DataType(filters), ef)
	if err != nil {
		return g.fail(ctx, e, logger, err)
	}
	if err := g.store.CompleteExport(ctx, e.ID, content, count); err != nil {
		return err
	}
	metrics.ExportsTotal.WithLabelValues(e.ExportType, types.ExportCompleted).Inc()
	logger.Info("export generated", "rows", count, "bytes", len(content))
	return nil
}

func (g *Generator) fail(ctx context.Context, e *types.Export, logger *slog.Logger, cause error) error {
	metrics.ExportsTotal.WithLabelValues(e.ExportType, types.ExportFailed).Inc()
	logger.Warn("export failed", "error", cause)
	if err := g.store.FailExport(ctx, e.ID, cause.Error()); err != nil {
		return fmt.Errorf("%w (recording failure: %v)", cause, err)
	}
	return cause
}

func (g *Generator) render(ctx context.Context, exportType, dataType string, ef db.ExportFilter) ([]byte, int, error) {
	var (
		header  []string
		rows    [][]string
		records any
		count   int
	)
	switch dataType {
	case DataSnippets:
		snippets, err := g.store.ListSnippetsForExport(ctx, ef)
		if err != nil {
			return nil, 0, err
		}
		if snippets == nil {
			snippets = []types.Snippet{}
		}
		header, rows, records, count = snippetHeader, snippetRows(snippets), snippets, len(snippets)
	default:
		pages, err := g.store.ListPagesForExport(ctx, ef)
		if err != nil {
			return nil, 0, err
		}
		if pages == nil {
			pages = []db.Page{}
		}
		header, rows, records, count = pageHeader, pageRows(pages), pages, len(pages)
	}

	if exportType == types.ExportJSON {
		out, err := json.MarshalIndent(map[string]any{
			"data_type":   dataType,
			"exported_at": g.now().UTC(),
			"count":       count,
			"records":     records,
		}, "", "  ")
		return out, count, err
	}
	out, err := RenderCSV(header, rows)
	return out, count, err
}

var pageHeader = []string{"id", "website_id", "url", "title", "status_code", "content_length", "load_time", "created_at", "extracted_text"}

func pageRows(pages []db.Page) [][]string {
	rows := make([][]string, 0, len(pages))
	for _, p := range pages {
		rows = append(rows, []string{
			p.ID.String(),
			p.WebsiteID.String(),
			p.URL,
			p.Title,
			strconv.Itoa(p.StatusCode),
			strconv.Itoa(p.ContentLength),
			strconv.FormatFloat(p.LoadTime, 'f', 3, 64),
			p.CreatedAt.UTC().Format(time.RFC3339),
			p.ExtractedText,
		})
	}
	return rows
}

var snippetHeader = []string{"id", "project_id", "page_id", "source_url", "status", "confidence_score", "content", "context", "created_at"}

func snippetRows(snippets []types.Snippet) [][]string {
	rows := make([][]string, 0, len(snippets))
	for _, s := range snippets {
		rows = append(rows, []string{
			s.ID.String(),
			s.ProjectID.String(),
			s.PageID.String(),
			s.SourceURL,
			s.Status,
			strconv.FormatFloat(s.ConfidenceScore, 'f', 2, 64),
			s.Content,
			s.Context,
			s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

// RenderCSV writes a header and rows as RFC 4180 CSV. Cells starting with a
// formula character are prefixed with a quote so spreadsheets show them as text.
func RenderCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		safe := make([]string, len(row))
		for i, cell := range row {
			safe[i] = neutralize(cell)
		}
		if err := w.Write(safe); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func neutralize(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
