package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/types"
)

// SnippetListParams filters GET /api/content/snippets.
type SnippetListParams struct {
	ProjectID *uuid.UUID
	Status    string
	Search    string
	Page      int
	PerPage   int
}

// SearchParams filters GET /api/content/search.
type SearchParams struct {
	Query     string
	ProjectID *uuid.UUID
	Page      int
	PerPage   int
}

// ContentAPI covers /api/content.
type ContentAPI struct{ c *Client }

func (a *ContentAPI) Snippets(ctx context.Context, params SnippetListParams) (*types.SnippetListResponse, error) {
	q := pageQuery(params.Page, params.PerPage)
	if params.ProjectID != nil {
		q.Set("project_id", params.ProjectID.String())
	}
	setIf(q, "status", params.Status)
	setIf(q, "search", params.Search)

	var out types.SnippetListResponse
	if err := a.c.call(ctx, request{method: http.MethodGet, path: "/api/content/snippets", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *ContentAPI) Snippet(ctx context.Context, id uuid.UUID) (*types.SnippetResponse, error) {
	var out types.SnippetResponse
	if err := a.c.call(ctx, request{method: http.MethodGet, path: "/api/content/snippets/" + id.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Review approves or rejects a snippet.
func (a *ContentAPI) Review(ctx context.Context, id uuid.UUID, req *types.ReviewSnippetRequest) (*types.SnippetResponse, error) {
	var out types.SnippetResponse
	err := a.c.call(ctx, request{
		method: http.MethodPut,
		path:   "/api/content/snippets/" + id.String() + "/approve",
		body:   req,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Rules lists a project's extraction rules.
func (a *ContentAPI) Rules(ctx context.Context, projectID uuid.UUID) (*types.RuleListResponse, error) {
	q := url.Values{"project_id": {projectID.String()}}
	var out types.RuleListResponse
	if err := a.c.call(ctx, request{method: http.MethodGet, path: "/api/content/rules", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *ContentAPI) CreateRule(ctx context.Context, req *types.CreateRuleRequest) (*types.RuleResponse, error) {
	var out types.RuleResponse
	if err := a.c.call(ctx, request{method: http.MethodPost, path: "/api/content/rules", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *ContentAPI) DeleteRule(ctx context.Context, id uuid.UUID) (*types.MessageResponse, error) {
	var out types.MessageResponse
	if err := a.c.call(ctx, request{method: http.MethodDelete, path: "/api/content/rules/" + id.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Extract re-runs extraction rules over a stored page. A nil ruleID applies every active rule.
func (a *ContentAPI) Extract(ctx context.Context, pageID uuid.UUID, ruleID *uuid.UUID) (*types.ExtractResponse, error) {
	var out types.ExtractResponse
	body := &types.ExtractRequest{PageID: pageID, RuleID: ruleID}
	if err := a.c.call(ctx, request{method: http.MethodPost, path: "/api/content/extract", body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a full-text search over scraped pages.
func (a *ContentAPI) Search(ctx context.Context, params SearchParams) (*types.SearchResponse, error) {
	q := pageQuery(params.Page, params.PerPage)
	q.Set("q", params.Query)
	if params.ProjectID != nil {
		q.Set("project_id", params.ProjectID.String())
	}

	var out types.SearchResponse
	if err := a.c.call(ctx, request{method: http.MethodGet, path: "/api/content/search", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
