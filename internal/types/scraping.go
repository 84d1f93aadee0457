package types

import (
	"time"

	"github.com/google/uuid"
)

// Scraping job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobPaused    = "paused"
)

// ScrapingJob is one crawl of a website.
type ScrapingJob struct {
	ID                 uuid.UUID  `json:"id"`
	WebsiteID          uuid.UUID  `json:"website_id"`
	WebsiteName        string     `json:"website_name,omitempty"`
	WebsiteURL         string     `json:"website_url,omitempty"`
	ProjectID          uuid.UUID  `json:"project_id"`
	ProjectName        string     `json:"project_name,omitempty"`
	Status             string     `json:"status"`
	PagesScraped       int        `json:"pages_scraped"`
	TotalPages         int        `json:"total_pages"`
	ProgressPercentage float64    `json:"progress_percentage"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Active reports whether the job has not yet reached a terminal state.
func (j *ScrapingJob) Active() bool {
	return j.Status == JobPending || j.Status == JobRunning
}

// Progress returns pages scraped as a percentage of total pages, 0 when the total is unknown.
func Progress(scraped, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(scraped) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// RunScrapingRequest is the body of POST /api/scraping/run.
type RunScrapingRequest struct {
	WebsiteID      uuid.UUID `json:"website_id" validate:"required"`
	URL            string    `json:"url,omitempty" validate:"omitempty,url"`
	UseSelenium    bool      `json:"use_selenium"`
	SinglePage     bool      `json:"single_page,omitempty"`
	ExtractContent bool      `json:"extract_content,omitempty"`
	MaxPages       int       `json:"max_pages,omitempty" validate:"omitempty,min=1,max=1000"`
}

// JobResponse wraps a single scraping job.
type JobResponse struct {
	Envelope
	Job *ScrapingJob `json:"job,omitempty"`
}

// JobListResponse is returned by GET /api/scraping/jobs.
type JobListResponse struct {
	Envelope
	Jobs       []ScrapingJob `json:"jobs"`
	Pagination *Pagination   `json:"pagination,omitempty"`
}

// ScrapingStatusResponse is returned by GET /api/scraping/status.
type ScrapingStatusResponse struct {
	Envelope
	ActiveJobs  []ScrapingJob `json:"active_jobs"`
	TotalActive int           `json:"total_active"`
}
