package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/blitz/internal/types"
)

const websiteColumns = `id, project_id, url, name, description, crawl_depth, rate_limit_delay,
	follow_external_links, respect_robots_txt, status, total_pages, last_scraped, created_at, updated_at`

func scanWebsite(row pgx.Row) (*types.Website, error) {
	var w types.Website
	err := row.Scan(&w.ID, &w.ProjectID, &w.URL, &w.Name, &w.Description, &w.CrawlDepth, &w.RateLimitDelay,
		&w.FollowExternalLinks, &w.RespectRobotsTxt, &w.Status, &w.TotalPages, &w.LastScraped, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWebsite inserts a website. Unset optional settings take the column defaults.
func (db *DB) CreateWebsite(ctx context.Context, req *types.CreateWebsiteRequest) (*types.Website, error) {
	name := req.Name
	if name == "" {
		name = req.URL
	}
	w, err := scanWebsite(db.pool.QueryRow(ctx,
		`INSERT INTO websites (project_id, url, name, description, crawl_depth, rate_limit_delay,
		   follow_external_links, respect_robots_txt)
		 VALUES ($1, $2, $3, $4, COALESCE($5, 1), COALESCE($6, 1.0), COALESCE($7, FALSE), COALESCE($8, TRUE))
		 RETURNING `+websiteColumns,
		req.ProjectID, req.URL, name, req.Description, req.CrawlDepth, req.RateLimitDelay,
		req.FollowExternalLinks, req.RespectRobotsTxt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create website: %w", err)
	}
	// Touch the parent so project lists reflect recent activity.
	if _, err := db.pool.Exec(ctx, `UPDATE projects SET updated_at = NOW() WHERE id = $1`, req.ProjectID); err != nil {
		return nil, fmt.Errorf("failed to touch project: %w", err)
	}
	return w, nil
}

// GetWebsite retrieves a website by ID. Returns nil, nil when absent.
func (db *DB) GetWebsite(ctx context.Context, id uuid.UUID) (*types.Website, error) {
	w, err := scanWebsite(db.pool.QueryRow(ctx, `SELECT `+websiteColumns+` FROM websites WHERE id = $1`, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get website: %w", err)
	}
	return w, nil
}

// UpdateWebsite applies a partial update. Returns nil, nil when absent.
func (db *DB) UpdateWebsite(ctx context.Context, id uuid.UUID, req *types.UpdateWebsiteRequest) (*types.Website, error) {
	w, err := scanWebsite(db.pool.QueryRow(ctx,
		`UPDATE websites SET
		   name                  = COALESCE($2, name),
		   description           = COALESCE($3, description),
		   crawl_depth           = COALESCE($4, crawl_depth),
		   rate_limit_delay      = COALESCE($5, rate_limit_delay),
		   follow_external_links = COALESCE($6, follow_external_links),
		   respect_robots_txt    = COALESCE($7, respect_robots_txt),
		   status                = COALESCE($8, status),
		   updated_at            = NOW()
		 WHERE id = $1
		 RETURNING `+websiteColumns,
		id, req.Name, req.Description, req.CrawlDepth, req.RateLimitDelay,
		req.FollowExternalLinks, req.RespectRobotsTxt, req.Status,
	))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update website: %w", err)
	}
	return w, nil
}

// DeleteWebsite removes a website with its jobs and pages.
func (db *DB) DeleteWebsite(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM websites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete website: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWebsites returns one page of a project's websites, newest first, with the total.
func (db *DB) ListWebsites(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]types.Website, int, error) {
	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM websites WHERE project_id = $1`, projectID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count websites: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+websiteColumns+` FROM websites WHERE project_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		projectID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list websites: %w", err)
	}
	defer rows.Close()

	websites := []types.Website{}
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan website: %w", err)
		}
		websites = append(websites, *w)
	}
	return websites, total, rows.Err()
}

// SetWebsiteStatus changes a website's status.
func (db *DB) SetWebsiteStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := db.pool.Exec(ctx, `UPDATE websites SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to set website status: %w", err)
	}
	return nil
}

// MarkWebsiteScraped records the end of a crawl: status, last_scraped and the stored page total.
func (db *DB) MarkWebsiteScraped(ctx context.Context, id uuid.UUID, status string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE websites SET
		   status       = $2,
		   last_scraped = NOW(),
		   total_pages  = (SELECT COUNT(*) FROM pages WHERE website_id = $1),
		   updated_at   = NOW()
		 WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("failed to mark website scraped: %w", err)
	}
	return nil
}
