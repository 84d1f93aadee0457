package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Snippet review statuses.
const (
	SnippetPending  = "pending"
	SnippetApproved = "approved"
	SnippetRejected = "rejected"
)

// Extraction rule kinds.
const (
	RuleCSS   = "css"
	RuleXPath = "xpath"
	RuleRegex = "regex"
)

// Snippet is a unit of extracted page content awaiting review.
type Snippet struct {
	ID               uuid.UUID       `json:"id"`
	PageID           uuid.UUID       `json:"page_id"`
	ExtractionRuleID *uuid.UUID      `json:"extraction_rule_id,omitempty"`
	ProjectID        uuid.UUID       `json:"project_id"`
	Content          string          `json:"content"`
	Context          string          `json:"context,omitempty"`
	ConfidenceScore  float64         `json:"confidence_score"`
	SourceURL        string          `json:"source_url"`
	Status           string          `json:"status"`
	ReviewNotes      string          `json:"review_notes,omitempty"`
	ReviewedBy       *uuid.UUID      `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time      `json:"reviewed_at,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SnippetListResponse is returned by GET /api/content/snippets.
type SnippetListResponse struct {
	Envelope
	Snippets   []Snippet   `json:"snippets"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// ReviewSnippetRequest is the body of PUT /api/content/snippets/{id}/approve.
type ReviewSnippetRequest struct {
	Status      string `json:"status,omitempty" validate:"omitempty,oneof=approved rejected"`
	ReviewNotes string `json:"review_notes,omitempty"`
}

// SnippetResponse wraps a single snippet.
type SnippetResponse struct {
	Envelope
	Snippet *Snippet `json:"snippet,omitempty"`
}

// ExtractionRule is a declarative selector applied to scraped pages.
type ExtractionRule struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	RuleType    string    `json:"rule_type"`
	Selector    string    `json:"selector"`
	Attribute   string    `json:"attribute"`
	Multiple    bool      `json:"multiple"`
	IsActive    bool      `json:"is_active"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateRuleRequest is the body of POST /api/content/rules.
type CreateRuleRequest struct {
	ProjectID   uuid.UUID `json:"project_id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description,omitempty"`
	RuleType    string    `json:"rule_type" validate:"required,oneof=css xpath regex"`
	Selector    string    `json:"selector" validate:"required"`
	Attribute   string    `json:"attribute,omitempty"`
	Multiple    bool      `json:"multiple,omitempty"`
	Priority    *int      `json:"priority,omitempty"`
}

// RuleResponse wraps a single extraction rule.
type RuleResponse struct {
	Envelope
	Rule *ExtractionRule `json:"rule,omitempty"`
}

// RuleListResponse is returned by GET /api/content/rules.
type RuleListResponse struct {
	Envelope
	Rules []ExtractionRule `json:"rules"`
}

// ExtractRequest is the body of POST /api/content/extract. Without a rule id
// every active rule of the page's project is applied.
type ExtractRequest struct {
	PageID uuid.UUID  `json:"page_id" validate:"required"`
	RuleID *uuid.UUID `json:"rule_id,omitempty"`
}

// ExtractResponse lists the snippets created by an extraction run.
type ExtractResponse struct {
	Envelope
	Snippets []Snippet `json:"snippets"`
}

// SearchResult is one page matching a content search.
type SearchResult struct {
	PageID      uuid.UUID `json:"page_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Highlight   string    `json:"highlight"`
	WebsiteName string    `json:"website_name"`
	ProjectName string    `json:"project_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// SearchResponse is returned by GET /api/content/search.
type SearchResponse struct {
	Envelope
	Results    []SearchResult `json:"results"`
	Pagination *Pagination    `json:"pagination,omitempty"`
}
