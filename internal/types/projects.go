package types

import (
	"time"

	"github.com/google/uuid"
)

// Project statuses and priorities.
const (
	ProjectActive   = "active"
	ProjectPaused   = "paused"
	ProjectArchived = "archived"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Collaborator roles. The owner is reported with CollaboratorOwner but never stored as a collaborator.
const (
	CollaboratorOwner  = "owner"
	CollaboratorEditor = "collaborator"
	CollaboratorViewer = "viewer"
)

// Project is a named group of websites, rules and snippets owned by one user.
type Project struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Industry     string    `json:"industry,omitempty"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
	Tags         []string  `json:"tags"`
	OwnerID      uuid.UUID `json:"owner_id"`
	WebsiteCount int       `json:"website_count"`
	PageCount    int       `json:"page_count"`
	SnippetCount int       `json:"snippet_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	Priority    string   `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Tags        []string `json:"tags,omitempty"`
}

// UpdateProjectRequest is the body of PUT /api/projects/{id}. Nil fields are left unchanged.
type UpdateProjectRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Industry    *string  `json:"industry,omitempty"`
	Priority    *string  `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Status      *string  `json:"status,omitempty" validate:"omitempty,oneof=active paused archived"`
	Tags        []string `json:"tags,omitempty"`
}

// ProjectListResponse is returned by GET /api/projects.
type ProjectListResponse struct {
	Envelope
	Projects   []Project   `json:"projects"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// ProjectResponse wraps a single project.
type ProjectResponse struct {
	Envelope
	Project *Project `json:"project,omitempty"`
}

// ProjectStatistics summarizes a project's websites, pages and snippets.
type ProjectStatistics struct {
	Websites struct {
		Total    int `json:"total"`
		Active   int `json:"active"`
		Inactive int `json:"inactive"`
	} `json:"websites"`
	Pages struct {
		Total       int     `json:"total"`
		AvgLoadTime float64 `json:"avg_load_time"`
	} `json:"pages"`
	Snippets struct {
		Total    int `json:"total"`
		Pending  int `json:"pending"`
		Approved int `json:"approved"`
		Rejected int `json:"rejected"`
	} `json:"snippets"`
	RecentActivity []Activity `json:"recent_activity"`
}

// Activity is one entry of a project's recent activity feed.
type Activity struct {
	Type      string    `json:"type"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// ProjectStatisticsResponse is returned by GET /api/projects/{id}/statistics.
type ProjectStatisticsResponse struct {
	Envelope
	Statistics *ProjectStatistics `json:"statistics,omitempty"`
}

// Collaborator is a user with access to a project.
type Collaborator struct {
	User    User      `json:"user"`
	Role    string    `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

// AddCollaboratorRequest is the body of POST /api/projects/{id}/collaborators.
type AddCollaboratorRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role,omitempty" validate:"omitempty,oneof=viewer collaborator"`
}

// CollaboratorListResponse is returned by GET /api/projects/{id}/collaborators.
type CollaboratorListResponse struct {
	Envelope
	Collaborators []Collaborator `json:"collaborators"`
}
