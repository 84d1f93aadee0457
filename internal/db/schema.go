package db

import (
	"context"
	"fmt"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		last_login    TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		industry    TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'paused', 'archived')),
		priority    TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('low', 'medium', 'high')),
		tags        JSONB NOT NULL DEFAULT '[]',
		owner_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id)`,
	`CREATE TABLE IF NOT EXISTS project_collaborators (
		project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role       TEXT NOT NULL DEFAULT 'collaborator' CHECK (role IN ('viewer', 'collaborator')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (project_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS websites (
		id                    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		project_id            UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		url                   TEXT NOT NULL,
		name                  TEXT NOT NULL DEFAULT '',
		description           TEXT NOT NULL DEFAULT '',
		crawl_depth           INT NOT NULL DEFAULT 1,
		rate_limit_delay      DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		follow_external_links BOOLEAN NOT NULL DEFAULT FALSE,
		respect_robots_txt    BOOLEAN NOT NULL DEFAULT TRUE,
		status                TEXT NOT NULL DEFAULT 'active',
		total_pages           INT NOT NULL DEFAULT 0,
		last_scraped          TIMESTAMPTZ,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_websites_project ON websites(project_id)`,
	`CREATE TABLE IF NOT EXISTS scraping_jobs (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		website_id    UUID NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
		status        TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'running', 'completed', 'failed', 'paused')),
		pages_scraped INT NOT NULL DEFAULT 0,
		total_pages   INT NOT NULL DEFAULT 0,
		started_at    TIMESTAMPTZ,
		completed_at  TIMESTAMPTZ,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scraping_jobs_website ON scraping_jobs(website_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS pages (
		id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		website_id     UUID NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
		url            TEXT NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		status_code    INT NOT NULL DEFAULT 0,
		content_length INT NOT NULL DEFAULT 0,
		load_time      DOUBLE PRECISION NOT NULL DEFAULT 0,
		extracted_text TEXT NOT NULL DEFAULT '',
		raw_html       TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pages_website ON pages(website_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_pages_search ON pages USING GIN (` + pageDocument + `)`,
	`CREATE TABLE IF NOT EXISTS extraction_rules (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		project_id  UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		rule_type   TEXT NOT NULL CHECK (rule_type IN ('css', 'xpath', 'regex')),
		selector    TEXT NOT NULL,
		attribute   TEXT NOT NULL DEFAULT 'text',
		multiple    BOOLEAN NOT NULL DEFAULT FALSE,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		priority    INT NOT NULL DEFAULT 100,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS content_snippets (
		id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		page_id            UUID NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
		extraction_rule_id UUID REFERENCES extraction_rules(id) ON DELETE SET NULL,
		content            TEXT NOT NULL,
		context            TEXT NOT NULL DEFAULT '',
		confidence_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
		source_url         TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		review_notes       TEXT NOT NULL DEFAULT '',
		reviewed_by        UUID REFERENCES users(id) ON DELETE SET NULL,
		reviewed_at        TIMESTAMPTZ,
		metadata           JSONB NOT NULL DEFAULT '{}',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snippets_page ON content_snippets(page_id)`,
	`CREATE TABLE IF NOT EXISTS exports (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id       UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		project_id    UUID REFERENCES projects(id) ON DELETE SET NULL,
		export_type   TEXT NOT NULL CHECK (export_type IN ('csv', 'excel', 'json', 'pdf')),
		filename      TEXT NOT NULL,
		filters       JSONB NOT NULL DEFAULT '{}',
		status        TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
		progress      INT NOT NULL DEFAULT 0,
		file_size     BIGINT NOT NULL DEFAULT 0,
		row_count     INT NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		content       BYTEA,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at  TIMESTAMPTZ,
		expires_at    TIMESTAMPTZ NOT NULL DEFAULT NOW() + INTERVAL '7 days'
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id       UUID REFERENCES users(id) ON DELETE SET NULL,
		action        TEXT NOT NULL,
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id   TEXT NOT NULL DEFAULT '',
		details       JSONB NOT NULL DEFAULT '{}',
		ip_address    TEXT NOT NULL DEFAULT '',
		user_agent    TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)`,
}

// Tables lists the tables counted by the admin system status view.
var Tables = []string{
	"users", "projects", "websites", "scraping_jobs", "pages",
	"extraction_rules", "content_snippets", "exports", "audit_logs",
}

// Migrate creates any missing tables and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
