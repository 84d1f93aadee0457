package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/schemas"
	"github.com/jonathan/blitz/internal/types"
)

type fakeStore struct {
	pages      []db.Page
	snippets   []types.Snippet
	listErr    error
	lastFilter db.ExportFilter
	processing bool
	content    []byte
	rowCount   int
	failMsg    string
}

func (s *fakeStore) SetExportProcessing(context.Context, uuid.UUID) error {
	s.processing = true
	return nil
}

func (s *fakeStore) CompleteExport(_ context.Context, _ uuid.UUID, content []byte, rowCount int) error {
	s.content, s.rowCount = content, rowCount
	return nil
}

func (s *fakeStore) FailExport(_ context.Context, _ uuid.UUID, msg string) error {
	s.failMsg = msg
	return nil
}

func (s *fakeStore) ListPagesForExport(_ context.Context, ef db.ExportFilter) ([]db.Page, error) {
	s.lastFilter = ef
	return s.pages, s.listErr
}

func (s *fakeStore) ListSnippetsForExport(_ context.Context, ef db.ExportFilter) ([]types.Snippet, error) {
	s.lastFilter = ef
	return s.snippets, s.listErr
}

func newGenerator(store Store) *Generator {
	g := NewGenerator(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return g
}

func TestParseFilters(t *testing.T) {
	f, err := ParseFilters(nil)
	require.NoError(t, err)
	assert.Equal(t, DataPages, DataType(f))
	assert.Nil(t, ProjectID(f))

	pid := uuid.New()
	f, err = ParseFilters(json.RawMessage(`{"project_id":"` + pid.String() + `","data_type":"snippets","status":"approved","date_from":"2026-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, DataSnippets, DataType(f))
	assert.Equal(t, pid, *ProjectID(f))
	assert.Equal(t, "approved", f.Status)
	require.NotNil(t, f.DateFrom)
	assert.Equal(t, 2026, f.DateFrom.Year())
}

func TestParseFilters_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown field":   `{"colour":"red"}`,
		"bad data type":   `{"data_type":"users"}`,
		"bad project id":  `{"project_id":"abc"}`,
		"bad date":        `{"date_from":"yesterday"}`,
		"not an object":   `[1,2]`,
		"inverted window": `{"date_from":"2026-02-01T00:00:00Z","date_to":"2026-01-01T00:00:00Z"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFilters(json.RawMessage(raw))
			require.Error(t, err)
			var fe *FilterError
			assert.ErrorAs(t, err, &fe)
		})
	}

	_, err := ParseFilters(json.RawMessage(`{"data_type":"users"}`))
	var ve *schemas.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestGenerate_CSVPages(t *testing.T) {
	store := &fakeStore{pages: []db.Page{{
		ID:            uuid.New(),
		WebsiteID:     uuid.New(),
		URL:           "https://example.com/",
		Title:         "Home, sweet home",
		StatusCode:    200,
		ContentLength: 1024,
		LoadTime:      0.25,
		ExtractedText: "=SUM(A1:A2)",
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}}
	owner := uuid.New()
	e := &types.Export{ID: uuid.New(), ExportType: types.ExportCSV}

	require.NoError(t, newGenerator(store).Generate(context.Background(), e, nil, &owner))

	assert.True(t, store.processing)
	assert.Equal(t, 1, store.rowCount)
	assert.Equal(t, &owner, store.lastFilter.VisibleTo)
	assert.Equal(t, MaxRows, store.lastFilter.Limit)

	records, err := csv.NewReader(bytes.NewReader(store.content)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, pageHeader, records[0])
	assert.Equal(t, "Home, sweet home", records[1][3])
	assert.Equal(t, "0.250", records[1][6])
	assert.Equal(t, "'=SUM(A1:A2)", records[1][8])
}

func TestGenerate_JSONSnippets(t *testing.T) {
	store := &fakeStore{snippets: []types.Snippet{{ID: uuid.New(), Content: "$5", Status: types.SnippetApproved}}}
	e := &types.Export{ID: uuid.New(), ExportType: types.ExportJSON}
	filters := &types.ExportFilters{DataType: DataSnippets, Status: types.SnippetApproved}

	require.NoError(t, newGenerator(store).Generate(context.Background(), e, filters, nil))

	var doc struct {
		DataType   string          `json:"data_type"`
		ExportedAt time.Time       `json:"exported_at"`
		Count      int             `json:"count"`
		Records    []types.Snippet `json:"records"`
	}
	require.NoError(t, json.Unmarshal(store.content, &doc))
	assert.Equal(t, DataSnippets, doc.DataType)
	assert.Equal(t, 1, doc.Count)
	assert.Equal(t, "$5", doc.Records[0].Content)
	assert.Equal(t, types.SnippetApproved, store.lastFilter.Status)
	assert.Nil(t, store.lastFilter.VisibleTo)
}

func TestGenerate_EmptyJSONHasEmptyRecords(t *testing.T) {
	store := &fakeStore{}
	e := &types.Export{ID: uuid.New(), ExportType: types.ExportJSON}

	require.NoError(t, newGenerator(store).Generate(context.Background(), e, nil, nil))
	assert.Contains(t, string(store.content), `"records": []`)
	assert.Equal(t, 0, store.rowCount)
}

func TestGenerate_UnsupportedType(t *testing.T) {
	for _, typ := range []string{types.ExportExcel, types.ExportPDF} {
		store := &fakeStore{}
		err := newGenerator(store).Generate(context.Background(), &types.Export{ID: uuid.New(), ExportType: typ}, nil, nil)
		assert.ErrorIs(t, err, ErrUnsupportedType)
		assert.Equal(t, "unsupported export type", store.failMsg)
		assert.False(t, store.processing)
	}
}

func TestGenerate_StoreFailureFailsExport(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection reset")}
	err := newGenerator(store).Generate(context.Background(), &types.Export{ID: uuid.New(), ExportType: types.ExportCSV}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, "connection reset", store.failMsg)
}

func TestDefaultFilenameAndContentType(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, "blitz_pages_20261019_083000.csv", DefaultFilename(types.ExportCSV, DataPages, now))
	assert.Equal(t, "blitz_snippets_20261019_083000.xlsx", DefaultFilename(types.ExportExcel, DataSnippets, now))
	assert.Equal(t, "application/json", ContentType(types.ExportJSON))
	assert.Contains(t, ContentType(types.ExportCSV), "text/csv")
}
