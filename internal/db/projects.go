package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/blitz/internal/types"
	"golang.org/x/sync/errgroup"
)

// projectSelect reads a project with its server-computed counts.
const projectSelect = `SELECT p.id, p.name, p.description, p.industry, p.status, p.priority, p.tags, p.owner_id,
	(SELECT COUNT(*) FROM websites w WHERE w.project_id = p.id),
	(SELECT COUNT(*) FROM pages pg JOIN websites w ON w.id = pg.website_id WHERE w.project_id = p.id),
	(SELECT COUNT(*) FROM content_snippets cs JOIN pages pg ON pg.id = cs.page_id
	   JOIN websites w ON w.id = pg.website_id WHERE w.project_id = p.id),
	p.created_at, p.updated_at
	FROM projects p`

func scanProject(row pgx.Row) (*types.Project, error) {
	var p types.Project
	var tags StringArray
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Industry, &p.Status, &p.Priority, &tags, &p.OwnerID,
		&p.WebsiteCount, &p.PageCount, &p.SnippetCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Tags = []string(tags)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}

// CreateProject inserts a project owned by ownerID.
func (db *DB) CreateProject(ctx context.Context, ownerID uuid.UUID, req *types.CreateProjectRequest) (*types.Project, error) {
	priority := req.Priority
	if priority == "" {
		priority = types.PriorityMedium
	}
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO projects (name, description, industry, priority, tags, owner_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		req.Name, req.Description, req.Industry, priority, StringArray(tags), ownerID,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return db.GetProject(ctx, id)
}

// GetProject retrieves a project with counts. Returns nil, nil when absent.
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	p, err := scanProject(db.pool.QueryRow(ctx, projectSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// UpdateProject applies a partial update. Returns nil, nil when absent.
func (db *DB) UpdateProject(ctx context.Context, id uuid.UUID, req *types.UpdateProjectRequest) (*types.Project, error) {
	var tags any
	if req.Tags != nil {
		tags = StringArray(req.Tags)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE projects SET
		   name        = COALESCE($2, name),
		   description = COALESCE($3, description),
		   industry    = COALESCE($4, industry),
		   priority    = COALESCE($5, priority),
		   status      = COALESCE($6, status),
		   tags        = COALESCE($7::jsonb, tags),
		   updated_at  = NOW()
		 WHERE id = $1`,
		id, req.Name, req.Description, req.Industry, req.Priority, req.Status, tags,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return db.GetProject(ctx, id)
}

// DeleteProject removes a project and its websites, pages, rules and snippets.
func (db *DB) DeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ProjectFilters narrows ListProjects. A nil VisibleTo lists every project (admin view).
type ProjectFilters struct {
	VisibleTo *uuid.UUID
	Search    string
	Status    string
	Industry  string
	Limit     int
	Offset    int
}

// ListProjects returns one page of projects ordered by last update, with the total match count.
func (db *DB) ListProjects(ctx context.Context, filters ProjectFilters) ([]types.Project, int, error) {
	f := filter{}
	if filters.VisibleTo != nil {
		f.add(`(p.owner_id = $%[1]d OR EXISTS (
			SELECT 1 FROM project_collaborators c WHERE c.project_id = p.id AND c.user_id = $%[1]d))`, *filters.VisibleTo)
	}
	if filters.Search != "" {
		f.add(`(p.name ILIKE $%[1]d OR p.description ILIKE $%[1]d OR p.tags::text ILIKE $%[1]d)`, "%"+filters.Search+"%")
	}
	if filters.Status != "" {
		f.add("p.status = $%d", filters.Status)
	}
	if filters.Industry != "" {
		f.add("p.industry = $%d", filters.Industry)
	}

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects p WHERE 1=1`+f.where, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	query := projectSelect + ` WHERE 1=1` + f.where +
		` ORDER BY p.updated_at DESC LIMIT ` + f.next(filters.Limit) + ` OFFSET ` + f.next(filters.Offset)
	rows, err := db.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []types.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, total, rows.Err()
}

// CollaboratorRole returns the role userID holds on a project: "owner", "collaborator",
// "viewer", or "" when the user has no access.
func (db *DB) CollaboratorRole(ctx context.Context, projectID, userID uuid.UUID) (string, error) {
	var role string
	err := db.pool.QueryRow(ctx,
		`SELECT 'owner' FROM projects WHERE id = $1 AND owner_id = $2
		 UNION ALL
		 SELECT role FROM project_collaborators WHERE project_id = $1 AND user_id = $2
		 LIMIT 1`,
		projectID, userID,
	).Scan(&role)
	if err != nil {
		if noRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get collaborator role: %w", err)
	}
	return role, nil
}

// AddCollaborator grants userID access to a project, updating the role if already present.
func (db *DB) AddCollaborator(ctx context.Context, projectID, userID uuid.UUID, role string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO project_collaborators (project_id, user_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		projectID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to add collaborator: %w", err)
	}
	return nil
}

// ListCollaborators returns the owner followed by every collaborator of a project.
func (db *DB) ListCollaborators(ctx context.Context, projectID uuid.UUID) ([]types.Collaborator, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+prefixed("u", userColumns)+`, 'owner', p.created_at
		   FROM projects p JOIN users u ON u.id = p.owner_id WHERE p.id = $1
		 UNION ALL
		 SELECT `+prefixed("u", userColumns)+`, c.role, c.created_at
		   FROM project_collaborators c JOIN users u ON u.id = c.user_id WHERE c.project_id = $1
		 ORDER BY 12`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", err)
	}
	defer rows.Close()

	collaborators := []types.Collaborator{}
	for rows.Next() {
		var u User
		var c types.Collaborator
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role,
			&u.IsActive, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt, &c.Role, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collaborator: %w", err)
		}
		c.User = *u.ToAPI()
		collaborators = append(collaborators, c)
	}
	return collaborators, rows.Err()
}

// ProjectStatistics aggregates websites, pages and snippets of a project. The independent
// aggregates run concurrently.
func (db *DB) ProjectStatistics(ctx context.Context, projectID uuid.UUID) (*types.ProjectStatistics, error) {
	var stats types.ProjectStatistics
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return db.pool.QueryRow(ctx,
			`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'active'), COUNT(*) FILTER (WHERE status <> 'active')
			 FROM websites WHERE project_id = $1`, projectID,
		).Scan(&stats.Websites.Total, &stats.Websites.Active, &stats.Websites.Inactive)
	})
	g.Go(func() error {
		return db.pool.QueryRow(ctx,
			`SELECT COUNT(*), COALESCE(AVG(pg.load_time), 0)
			 FROM pages pg JOIN websites w ON w.id = pg.website_id WHERE w.project_id = $1`, projectID,
		).Scan(&stats.Pages.Total, &stats.Pages.AvgLoadTime)
	})
	g.Go(func() error {
		return db.pool.QueryRow(ctx,
			`SELECT COUNT(*),
			   COUNT(*) FILTER (WHERE cs.status = 'pending'),
			   COUNT(*) FILTER (WHERE cs.status = 'approved'),
			   COUNT(*) FILTER (WHERE cs.status = 'rejected')
			 FROM content_snippets cs JOIN pages pg ON pg.id = cs.page_id
			 JOIN websites w ON w.id = pg.website_id WHERE w.project_id = $1`, projectID,
		).Scan(&stats.Snippets.Total, &stats.Snippets.Pending, &stats.Snippets.Approved, &stats.Snippets.Rejected)
	})
	g.Go(func() error {
		rows, err := db.pool.Query(ctx,
			`SELECT pg.url, pg.title, pg.created_at
			 FROM pages pg JOIN websites w ON w.id = pg.website_id WHERE w.project_id = $1
			 ORDER BY pg.created_at DESC LIMIT 5`, projectID)
		if err != nil {
			return err
		}
		defer rows.Close()
		activity := []types.Activity{}
		for rows.Next() {
			var a types.Activity
			var ts time.Time
			if err := rows.Scan(&a.URL, &a.Title, &ts); err != nil {
				return err
			}
			a.Type = "page_scraped"
			a.Timestamp = ts
			activity = append(activity, a)
		}
		stats.RecentActivity = activity
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute project statistics: %w", err)
	}
	return &stats, nil
}
