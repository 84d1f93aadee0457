package client

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/types"
)

// ProjectListParams filters GET /api/projects.
type ProjectListParams struct {
	Page     int
	PerPage  int
	Search   string
	Status   string
	Industry string
}

// ProjectsAPI covers /api/projects.
type ProjectsAPI struct{ c *Client }

func (p *ProjectsAPI) List(ctx context.Context, params ProjectListParams) (*types.ProjectListResponse, error) {
	q := pageQuery(params.Page, params.PerPage)
	setIf(q, "search", params.Search)
	setIf(q, "status", params.Status)
	setIf(q, "industry", params.Industry)

	var out types.ProjectListResponse
	if err := p.c.call(ctx, request{method: http.MethodGet, path: "/api/projects", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *ProjectsAPI) Create(ctx context.Context, req *types.CreateProjectRequest) (*types.ProjectResponse, error) {
	var out types.ProjectResponse
	if err := p.c.call(ctx, request{method: http.MethodPost, path: "/api/projects", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *ProjectsAPI) Get(ctx context.Context, id uuid.UUID) (*types.ProjectResponse, error) {
	var out types.ProjectResponse
	if err := p.c.call(ctx, request{method: http.MethodGet, path: "/api/projects/" + id.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *ProjectsAPI) Update(ctx context.Context, id uuid.UUID, req *types.UpdateProjectRequest) (*types.ProjectResponse, error) {
	var out types.ProjectResponse
	if err := p.c.call(ctx, request{method: http.MethodPut, path: "/api/projects/" + id.String(), body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *ProjectsAPI) Delete(ctx context.Context, id uuid.UUID) (*types.MessageResponse, error) {
	var out types.MessageResponse
	if err := p.c.call(ctx, request{method: http.MethodDelete, path: "/api/projects/" + id.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *ProjectsAPI) Statistics(ctx context.Context, id uuid.UUID) (*types.ProjectStatisticsResponse, error) {
	var out types.ProjectStatisticsResponse
	if err := p.c.call(ctx, request{method: http.MethodGet, path: "/api/projects/" + id.String() + "/statistics"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Websites lists a project's websites.
func (p *ProjectsAPI) Websites(ctx context.Context, id uuid.UUID, page, perPage int) (*types.WebsiteListResponse, error) {
	var out types.WebsiteListResponse
	err := p.c.call(ctx, request{
		method: http.MethodGet,
		path:   "/api/projects/" + id.String() + "/websites",
		query:  pageQuery(page, perPage),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *ProjectsAPI) Collaborators(ctx context.Context, id uuid.UUID) (*types.CollaboratorListResponse, error) {
	var out types.CollaboratorListResponse
	if err := p.c.call(ctx, request{method: http.MethodGet, path: "/api/projects/" + id.String() + "/collaborators"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *ProjectsAPI) AddCollaborator(ctx context.Context, id uuid.UUID, req *types.AddCollaboratorRequest) (*types.CollaboratorListResponse, error) {
	var out types.CollaboratorListResponse
	err := p.c.call(ctx, request{
		method: http.MethodPost,
		path:   "/api/projects/" + id.String() + "/collaborators",
		body:   req,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// WebsitesAPI covers /api/websites.
type WebsitesAPI struct{ c *Client }

func (w *WebsitesAPI) Create(ctx context.Context, req *types.CreateWebsiteRequest) (*types.WebsiteResponse, error) {
	var out types.WebsiteResponse
	if err := w.c.call(ctx, request{method: http.MethodPost, path: "/api/websites", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (w *WebsitesAPI) Get(ctx context.Context, id uuid.UUID) (*types.WebsiteResponse, error) {
	var out types.WebsiteResponse
	if err := w.c.call(ctx, request{method: http.MethodGet, path: "/api/websites/" + id.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (w *WebsitesAPI) Update(ctx context.Context, id uuid.UUID, req *types.UpdateWebsiteRequest) (*types.WebsiteResponse, error) {
	var out types.WebsiteResponse
	if err := w.c.call(ctx, request{method: http.MethodPut, path: "/api/websites/" + id.String(), body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (w *WebsitesAPI) Delete(ctx context.Context, id uuid.UUID) (*types.MessageResponse, error) {
	var out types.MessageResponse
	if err := w.c.call(ctx, request{method: http.MethodDelete, path: "/api/websites/" + id.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
