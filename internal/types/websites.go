package types

import (
	"time"

	"github.com/google/uuid"
)

// Website statuses.
const (
	WebsiteActive   = "active"
	WebsiteInactive = "inactive"
	WebsiteRunning  = "running"
	WebsitePaused   = "paused"
	WebsiteError    = "error"
)

// Website is a crawl target belonging to a project.
type Website struct {
	ID                  uuid.UUID  `json:"id"`
	ProjectID           uuid.UUID  `json:"project_id"`
	URL                 string     `json:"url"`
	Name                string     `json:"name"`
	Description         string     `json:"description,omitempty"`
	CrawlDepth          int        `json:"crawl_depth"`
	RateLimitDelay      float64    `json:"rate_limit_delay"`
	FollowExternalLinks bool       `json:"follow_external_links"`
	RespectRobotsTxt    bool       `json:"respect_robots_txt"`
	Status              string     `json:"status"`
	TotalPages          int        `json:"total_pages"`
	LastScraped         *time.Time `json:"last_scraped,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// CreateWebsiteRequest is the body of POST /api/websites.
type CreateWebsiteRequest struct {
	ProjectID           uuid.UUID `json:"project_id" validate:"required"`
	URL                 string    `json:"url" validate:"required,url"`
	Name                string    `json:"name,omitempty"`
	Description         string    `json:"description,omitempty"`
	CrawlDepth          *int      `json:"crawl_depth,omitempty" validate:"omitempty,min=0,max=10"`
	RateLimitDelay      *float64  `json:"rate_limit_delay,omitempty" validate:"omitempty,min=0"`
	FollowExternalLinks *bool     `json:"follow_external_links,omitempty"`
	RespectRobotsTxt    *bool     `json:"respect_robots_txt,omitempty"`
}

// UpdateWebsiteRequest is the body of PUT /api/websites/{id}. Nil fields are left unchanged.
type UpdateWebsiteRequest struct {
	Name                *string  `json:"name,omitempty"`
	Description         *string  `json:"description,omitempty"`
	CrawlDepth          *int     `json:"crawl_depth,omitempty" validate:"omitempty,min=0,max=10"`
	RateLimitDelay      *float64 `json:"rate_limit_delay,omitempty" validate:"omitempty,min=0"`
	FollowExternalLinks *bool    `json:"follow_external_links,omitempty"`
	RespectRobotsTxt    *bool    `json:"respect_robots_txt,omitempty"`
	Status              *string  `json:"status,omitempty" validate:"omitempty,oneof=active inactive paused"`
}

// WebsiteResponse wraps a single website.
type WebsiteResponse struct {
	Envelope
	Website *Website `json:"website,omitempty"`
}

// WebsiteListResponse is returned by GET /api/projects/{id}/websites.
type WebsiteListResponse struct {
	Envelope
	Websites   []Website   `json:"websites"`
	Pagination *Pagination `json:"pagination,omitempty"`
}
