package client

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/types"
)

// JobListParams filters GET /api/scraping/jobs.
type JobListParams struct {
	ProjectID *uuid.UUID
	Status    string
	Page      int
	PerPage   int
}

// ScrapingAPI covers /api/scraping.
type ScrapingAPI struct{ c *Client }

// Run starts a crawl of the website named in req.
func (s *ScrapingAPI) Run(ctx context.Context, req *types.RunScrapingRequest) (*types.JobResponse, error) {
	var out types.JobResponse
	if err := s.c.call(ctx, request{method: http.MethodPost, path: "/api/scraping/run", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop cancels the website's running crawl.
func (s *ScrapingAPI) Stop(ctx context.Context, websiteID uuid.UUID) (*types.MessageResponse, error) {
	var out types.MessageResponse
	if err := s.c.call(ctx, request{method: http.MethodPost, path: "/api/scraping/stop/" + websiteID.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ScrapingAPI) Jobs(ctx context.Context, params JobListParams) (*types.JobListResponse, error) {
	q := pageQuery(params.Page, params.PerPage)
	if params.ProjectID != nil {
		q.Set("project_id", params.ProjectID.String())
	}
	setIf(q, "status", params.Status)

	var out types.JobListResponse
	if err := s.c.call(ctx, request{method: http.MethodGet, path: "/api/scraping/jobs", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ScrapingAPI) Job(ctx context.Context, id uuid.UUID) (*types.JobResponse, error) {
	var out types.JobResponse
	if err := s.c.call(ctx, request{method: http.MethodGet, path: "/api/scraping/jobs/" + id.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status lists pending and running jobs.
func (s *ScrapingAPI) Status(ctx context.Context) (*types.ScrapingStatusResponse, error) {
	var out types.ScrapingStatusResponse
	if err := s.c.call(ctx, request{method: http.MethodGet, path: "/api/scraping/status"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WebsiteStatus returns the website's most recent job.
func (s *ScrapingAPI) WebsiteStatus(ctx context.Context, websiteID uuid.UUID) (*types.JobResponse, error) {
	var out types.JobResponse
	if err := s.c.call(ctx, request{method: http.MethodGet, path: "/api/scraping/status/" + websiteID.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
