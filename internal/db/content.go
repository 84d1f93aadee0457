package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/blitz/internal/types"
)

const snippetSelect = `SELECT cs.id, cs.page_id, cs.extraction_rule_id, p.id, cs.content, cs.context, cs.confidence_score,
	cs.source_url, cs.status, cs.review_notes, cs.reviewed_by, cs.reviewed_at, cs.metadata, cs.created_at
	FROM content_snippets cs
	JOIN pages pg ON pg.id = cs.page_id
	JOIN websites w ON w.id = pg.website_id
	JOIN projects p ON p.id = w.project_id`

func scanSnippet(row pgx.Row) (*types.Snippet, error) {
	var s types.Snippet
	var metadata []byte
	err := row.Scan(&s.ID, &s.PageID, &s.ExtractionRuleID, &s.ProjectID, &s.Content, &s.Context, &s.ConfidenceScore,
		&s.SourceURL, &s.Status, &s.ReviewNotes, &s.ReviewedBy, &s.ReviewedAt, &metadata, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		s.Metadata = json.RawMessage(metadata)
	}
	return &s, nil
}

// SnippetInput holds a newly extracted snippet.
type SnippetInput struct {
	PageID           uuid.UUID
	ExtractionRuleID *uuid.UUID
	Content          string
	Context          string
	ConfidenceScore  float64
	SourceURL        string
	Metadata         json.RawMessage
}

// CreateSnippet stores a pending snippet.
func (db *DB) CreateSnippet(ctx context.Context, in *SnippetInput) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO content_snippets (page_id, extraction_rule_id, content, context, confidence_score, source_url, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		in.PageID, in.ExtractionRuleID, in.Content, in.Context, in.ConfidenceScore, in.SourceURL, jsonOrEmpty(in.Metadata),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create snippet: %w", err)
	}
	return id, nil
}

// GetSnippet retrieves a snippet. Returns nil, nil when absent.
func (db *DB) GetSnippet(ctx context.Context, id uuid.UUID) (*types.Snippet, error) {
	s, err := scanSnippet(db.pool.QueryRow(ctx, snippetSelect+` WHERE cs.id = $1`, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snippet: %w", err)
	}
	return s, nil
}

// SnippetFilters narrows ListSnippets. A nil VisibleTo lists every project's snippets.
type SnippetFilters struct {
	VisibleTo *uuid.UUID
	ProjectID *uuid.UUID
	Status    string
	Search    string
	Limit     int
	Offset    int
}

// ListSnippets returns one page of snippets, newest first, with the total match count.
func (db *DB) ListSnippets(ctx context.Context, filters SnippetFilters) ([]types.Snippet, int, error) {
	f := filter{}
	if filters.VisibleTo != nil {
		f.add(`(p.owner_id = $%[1]d OR EXISTS (
			SELECT 1 FROM project_collaborators c WHERE c.project_id = p.id AND c.user_id = $%[1]d))`, *filters.VisibleTo)
	}
	if filters.ProjectID != nil {
		f.add("p.id = $%d", *filters.ProjectID)
	}
	if filters.Status != "" {
		f.add("cs.status = $%d", filters.Status)
	}
	if filters.Search != "" {
		f.add("(cs.content ILIKE $%[1]d OR cs.context ILIKE $%[1]d)", "%"+filters.Search+"%")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM content_snippets cs JOIN pages pg ON pg.id = cs.page_id
		JOIN websites w ON w.id = pg.website_id JOIN projects p ON p.id = w.project_id WHERE 1=1` + f.where
	if err := db.pool.QueryRow(ctx, countQuery, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count snippets: %w", err)
	}

	query := snippetSelect + ` WHERE 1=1` + f.where +
		` ORDER BY cs.created_at DESC LIMIT ` + f.next(filters.Limit) + ` OFFSET ` + f.next(filters.Offset)
	rows, err := db.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list snippets: %w", err)
	}
	defer rows.Close()

	snippets := []types.Snippet{}
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan snippet: %w", err)
		}
		snippets = append(snippets, *s)
	}
	return snippets, total, rows.Err()
}

// ReviewSnippet records a review decision. Returns nil, nil when the snippet does not exist.
func (db *DB) ReviewSnippet(ctx context.Context, id, reviewer uuid.UUID, status, notes string) (*types.Snippet, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE content_snippets SET status = $2, review_notes = $3, reviewed_by = $4, reviewed_at = NOW()
		 WHERE id = $1`,
		id, status, notes, reviewer)
	if err != nil {
		return nil, fmt.Errorf("failed to review snippet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return db.GetSnippet(ctx, id)
}

const ruleColumns = `id, project_id, name, description, rule_type, selector, attribute, multiple, is_active, priority, created_at`

func scanRule(row pgx.Row) (*types.ExtractionRule, error) {
	var r types.ExtractionRule
	err := row.Scan(&r.ID, &r.ProjectID, &r.Name, &r.Description, &r.RuleType, &r.Selector, &r.Attribute,
		&r.Multiple, &r.IsActive, &r.Priority, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRule stores an extraction rule.
func (db *DB) CreateRule(ctx context.Context, req *types.CreateRuleRequest) (*types.ExtractionRule, error) {
	attribute := req.Attribute
	if attribute == "" {
		attribute = "text"
	}
	r, err := scanRule(db.pool.QueryRow(ctx,
		`INSERT INTO extraction_rules (project_id, name, description, rule_type, selector, attribute, multiple, priority)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, 100))
		 RETURNING `+ruleColumns,
		req.ProjectID, req.Name, req.Description, req.RuleType, req.Selector, attribute, req.Multiple, req.Priority,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction rule: %w", err)
	}
	return r, nil
}

// GetRule retrieves an extraction rule. Returns nil, nil when absent.
func (db *DB) GetRule(ctx context.Context, id uuid.UUID) (*types.ExtractionRule, error) {
	r, err := scanRule(db.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM extraction_rules WHERE id = $1`, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get extraction rule: %w", err)
	}
	return r, nil
}

// ListRules returns a project's rules by descending priority. activeOnly skips disabled rules.
func (db *DB) ListRules(ctx context.Context, projectID uuid.UUID, activeOnly bool) ([]types.ExtractionRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM extraction_rules WHERE project_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY priority DESC, created_at`

	rows, err := db.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extraction rules: %w", err)
	}
	defer rows.Close()

	rules := []types.ExtractionRule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extraction rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// DeleteRule removes an extraction rule. Snippets it produced keep their content.
func (db *DB) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM extraction_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete extraction rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSnippetsForExport returns snippets matching the filter, newest first.
func (db *DB) ListSnippetsForExport(ctx context.Context, ef ExportFilter) ([]types.Snippet, error) {
	f := filter{}
	ef.apply(&f, "cs.created_at")
	if ef.Status != "" {
		f.add("cs.status = $%d", ef.Status)
	}

	rows, err := db.pool.Query(ctx,
		snippetSelect+` WHERE 1=1`+f.where+` ORDER BY cs.created_at DESC LIMIT `+f.next(ef.Limit), f.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets for export: %w", err)
	}
	defer rows.Close()

	var snippets []types.Snippet
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snippet: %w", err)
		}
		snippets = append(snippets, *s)
	}
	return snippets, rows.Err()
}
