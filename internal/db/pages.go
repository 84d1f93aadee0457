package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/types"
)

// pageDocument is the text search vector over a page. idx_pages_search indexes
// the same expression, so queries must use it verbatim.
const pageDocument = `to_tsvector('english', title || ' ' || extracted_text)`

// highlightOptions wraps matched terms the same way the review UI renders them.
const highlightOptions = `StartSel=<mark>, StopSel=</mark>, MaxFragments=2, MaxWords=32, MinWords=8`

// Page is a stored fetch result.
type Page struct {
	ID            uuid.UUID `json:"id"`
	WebsiteID     uuid.UUID `json:"website_id"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	StatusCode    int       `json:"status_code"`
	ContentLength int       `json:"content_length"`
	LoadTime      float64   `json:"load_time"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	RawHTML       string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// InsertPage stores a fetched page and sets its ID and CreatedAt.
func (db *DB) InsertPage(ctx context.Context, p *Page) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO pages (website_id, url, title, status_code, content_length, load_time, extracted_text, raw_html)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		p.WebsiteID, p.URL, p.Title, p.StatusCode, p.ContentLength, p.LoadTime, p.ExtractedText, p.RawHTML,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert page %s: %w", p.URL, err)
	}
	return nil
}

// GetPage retrieves a stored page including its raw HTML. Returns nil, nil when absent.
func (db *DB) GetPage(ctx context.Context, id uuid.UUID) (*Page, error) {
	var p Page
	err := db.pool.QueryRow(ctx,
		`SELECT id, website_id, url, title, status_code, content_length, load_time, extracted_text, raw_html, created_at
		 FROM pages WHERE id = $1`, id,
	).Scan(&p.ID, &p.WebsiteID, &p.URL, &p.Title, &p.StatusCode, &p.ContentLength, &p.LoadTime,
		&p.ExtractedText, &p.RawHTML, &p.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return &p, nil
}

// PageSearch narrows SearchPages. A nil VisibleTo searches every project.
type PageSearch struct {
	Query     string
	VisibleTo *uuid.UUID
	ProjectID *uuid.UUID
	Limit     int
	Offset    int
}

// SearchPages runs a full-text search over page titles and text, best match first,
// and returns one page of results with the total match count.
func (db *DB) SearchPages(ctx context.Context, search PageSearch) ([]types.SearchResult, int, error) {
	f := filter{}
	f.add(pageDocument+" @@ plainto_tsquery('english', $%d)", search.Query)
	if search.VisibleTo != nil {
		f.add(`(p.owner_id = $%[1]d OR EXISTS (
			SELECT 1 FROM project_collaborators c WHERE c.project_id = p.id AND c.user_id = $%[1]d))`, *search.VisibleTo)
	}
	if search.ProjectID != nil {
		f.add("p.id = $%d", *search.ProjectID)
	}
	from := ` FROM pages JOIN websites w ON w.id = pages.website_id JOIN projects p ON p.id = w.project_id WHERE 1=1`

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+f.where, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	// $1 is the search text, added first above.
	query := `SELECT pages.id, pages.url, pages.title,
		ts_headline('english', pages.extracted_text, plainto_tsquery('english', $1), '` + highlightOptions + `'),
		w.name, p.name, pages.created_at` + from + f.where +
		` ORDER BY ts_rank(` + pageDocument + `, plainto_tsquery('english', $1)) DESC, pages.created_at DESC
		LIMIT ` + f.next(search.Limit) + ` OFFSET ` + f.next(search.Offset)
	rows, err := db.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search pages: %w", err)
	}
	defer rows.Close()

	results := []types.SearchResult{}
	for rows.Next() {
		var r types.SearchResult
		if err := rows.Scan(&r.PageID, &r.URL, &r.Title, &r.Highlight, &r.WebsiteName, &r.ProjectName, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// ExportFilter narrows the rows collected for an export. A nil VisibleTo includes every project.
type ExportFilter struct {
	VisibleTo *uuid.UUID
	ProjectID *uuid.UUID
	Status    string
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
}

func (ef ExportFilter) apply(f *filter, createdColumn string) {
	if ef.VisibleTo != nil {
		f.add(`(p.owner_id = $%[1]d OR EXISTS (
			SELECT 1 FROM project_collaborators c WHERE c.project_id = p.id AND c.user_id = $%[1]d))`, *ef.VisibleTo)
	}
	if ef.ProjectID != nil {
		f.add("p.id = $%d", *ef.ProjectID)
	}
	if ef.DateFrom != nil {
		f.add(createdColumn+" >= $%d", *ef.DateFrom)
	}
	if ef.DateTo != nil {
		f.add(createdColumn+" <= $%d", *ef.DateTo)
	}
}

// ListPagesForExport returns pages matching the filter, newest first. Raw HTML is not loaded.
func (db *DB) ListPagesForExport(ctx context.Context, ef ExportFilter) ([]Page, error) {
	f := filter{}
	ef.apply(&f, "pg.created_at")
	if ef.Status != "" {
		f.add("w.status = $%d", ef.Status)
	}

	query := `SELECT pg.id, pg.website_id, pg.url, pg.title, pg.status_code, pg.content_length, pg.load_time,
		pg.extracted_text, pg.created_at
		FROM pages pg JOIN websites w ON w.id = pg.website_id JOIN projects p ON p.id = w.project_id
		WHERE 1=1` + f.where + ` ORDER BY pg.created_at DESC LIMIT ` + f.next(ef.Limit)
	rows, err := db.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages for export: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.WebsiteID, &p.URL, &p.Title, &p.StatusCode, &p.ContentLength, &p.LoadTime,
			&p.ExtractedText, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
