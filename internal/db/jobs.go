package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/blitz/internal/types"
)

const jobSelect = `SELECT j.id, j.website_id, w.name, w.url, p.id, p.name, j.status, j.pages_scraped, j.total_pages,
	j.started_at, j.completed_at, j.error_message, j.created_at
	FROM scraping_jobs j
	JOIN websites w ON w.id = j.website_id
	JOIN projects p ON p.id = w.project_id`

func scanJob(row pgx.Row) (*types.ScrapingJob, error) {
	var j types.ScrapingJob
	err := row.Scan(&j.ID, &j.WebsiteID, &j.WebsiteName, &j.WebsiteURL, &j.ProjectID, &j.ProjectName, &j.Status,
		&j.PagesScraped, &j.TotalPages, &j.StartedAt, &j.CompletedAt, &j.ErrorMessage, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	j.ProgressPercentage = types.Progress(j.PagesScraped, j.TotalPages)
	return &j, nil
}

// CreateJob inserts a pending job for a website.
func (db *DB) CreateJob(ctx context.Context, websiteID uuid.UUID, totalPages int) (*types.ScrapingJob, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO scraping_jobs (website_id, total_pages) VALUES ($1, $2) RETURNING id`,
		websiteID, totalPages,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create scraping job: %w", err)
	}
	return db.GetJob(ctx, id)
}

// GetJob retrieves a job by ID. Returns nil, nil when absent.
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.ScrapingJob, error) {
	j, err := scanJob(db.pool.QueryRow(ctx, jobSelect+` WHERE j.id = $1`, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scraping job: %w", err)
	}
	return j, nil
}

// LatestJobForWebsite returns the most recent job of a website. Returns nil, nil when none exist.
func (db *DB) LatestJobForWebsite(ctx context.Context, websiteID uuid.UUID) (*types.ScrapingJob, error) {
	j, err := scanJob(db.pool.QueryRow(ctx,
		jobSelect+` WHERE j.website_id = $1 ORDER BY j.created_at DESC LIMIT 1`, websiteID))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest scraping job: %w", err)
	}
	return j, nil
}

// ActiveJobForWebsite returns the pending or running job of a website, if any.
func (db *DB) ActiveJobForWebsite(ctx context.Context, websiteID uuid.UUID) (*types.ScrapingJob, error) {
	j, err := scanJob(db.pool.QueryRow(ctx,
		jobSelect+` WHERE j.website_id = $1 AND j.status IN ('pending', 'running')
		 ORDER BY j.created_at DESC LIMIT 1`, websiteID))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active scraping job: %w", err)
	}
	return j, nil
}

// StartJob moves a pending job to running.
func (db *DB) StartJob(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE scraping_jobs SET status = 'running', started_at = NOW() WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to start scraping job: %w", err)
	}
	return nil
}

// UpdateJobProgress records pages scraped so far and the current estimate of total pages.
func (db *DB) UpdateJobProgress(ctx context.Context, id uuid.UUID, scraped, total int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE scraping_jobs SET pages_scraped = $2, total_pages = $3 WHERE id = $1`, id, scraped, total)
	if err != nil {
		return fmt.Errorf("failed to update scraping job progress: %w", err)
	}
	return nil
}

// FinishJob moves a running job to a terminal (or paused) status. A job already finished is left alone.
func (db *DB) FinishJob(ctx context.Context, id uuid.UUID, status, errMsg string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE scraping_jobs SET status = $2, error_message = $3, completed_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'running')`,
		id, status, errMsg)
	if err != nil {
		return fmt.Errorf("failed to finish scraping job: %w", err)
	}
	return nil
}

// JobFilters narrows ListJobs. A nil VisibleTo lists jobs of every project (admin view).
type JobFilters struct {
	VisibleTo *uuid.UUID
	ProjectID *uuid.UUID
	Status    string
	Limit     int
	Offset    int
}

// ListJobs returns one page of jobs, newest first, with the total match count.
func (db *DB) ListJobs(ctx context.Context, filters JobFilters) ([]types.ScrapingJob, int, error) {
	f := filter{}
	if filters.VisibleTo != nil {
		f.add(`(p.owner_id = $%[1]d OR EXISTS (
			SELECT 1 FROM project_collaborators c WHERE c.project_id = p.id AND c.user_id = $%[1]d))`, *filters.VisibleTo)
	}
	if filters.ProjectID != nil {
		f.add("p.id = $%d", *filters.ProjectID)
	}
	if filters.Status != "" {
		f.add("j.status = $%d", filters.Status)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM scraping_jobs j
		JOIN websites w ON w.id = j.website_id JOIN projects p ON p.id = w.project_id WHERE 1=1` + f.where
	if err := db.pool.QueryRow(ctx, countQuery, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count scraping jobs: %w", err)
	}

	query := jobSelect + ` WHERE 1=1` + f.where +
		` ORDER BY j.created_at DESC LIMIT ` + f.next(filters.Limit) + ` OFFSET ` + f.next(filters.Offset)
	rows, err := db.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scraping jobs: %w", err)
	}
	defer rows.Close()

	jobs := []types.ScrapingJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan scraping job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, total, rows.Err()
}

// ListActiveJobs returns pending and running jobs visible to a user (all when visibleTo is nil).
func (db *DB) ListActiveJobs(ctx context.Context, visibleTo *uuid.UUID) ([]types.ScrapingJob, error) {
	f := filter{}
	if visibleTo != nil {
		f.add(`(p.owner_id = $%[1]d OR EXISTS (
			SELECT 1 FROM project_collaborators c WHERE c.project_id = p.id AND c.user_id = $%[1]d))`, *visibleTo)
	}
	rows, err := db.pool.Query(ctx,
		jobSelect+` WHERE j.status IN ('pending', 'running')`+f.where+` ORDER BY j.created_at DESC`, f.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active scraping jobs: %w", err)
	}
	defer rows.Close()

	jobs := []types.ScrapingJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scraping job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// FailInterruptedJobs marks jobs left running by a previous process as failed.
func (db *DB) FailInterruptedJobs(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE scraping_jobs SET status = 'failed', error_message = 'interrupted by server restart', completed_at = NOW()
		 WHERE status IN ('pending', 'running')`)
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
