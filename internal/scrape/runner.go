// Package scrape runs website crawls for scraping jobs: breadth-first page
// fetching, page storage, and extraction-rule application.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/fetch"
	"github.com/jonathan/blitz/internal/metrics"
	"github.com/jonathan/blitz/internal/types"
)

// DefaultMaxPages bounds a crawl when the request does not.
const DefaultMaxPages = 50

// DefaultMaxConcurrent is how many crawls may fetch at the same time.
const DefaultMaxConcurrent = 4

const maxTitleRunes = 200

// ErrAlreadyRunning is returned by Start when the website already has a crawl in flight.
var ErrAlreadyRunning = errors.New("scraping already running")

var (
	errStopped  = errors.New("stopped by user")
	errShutdown = errors.New("server shutting down")
	errNotHTML  = errors.New("not an HTML document")
)

// Store is the persistence the runner needs. *db.DB satisfies it.
type Store interface {
	StartJob(ctx context.Context, id uuid.UUID) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, scraped, total int) error
	FinishJob(ctx context.Context, id uuid.UUID, status, errMsg string) error
	InsertPage(ctx context.Context, p *db.Page) error
	ListRules(ctx context.Context, projectID uuid.UUID, activeOnly bool) ([]types.ExtractionRule, error)
	CreateSnippet(ctx context.Context, in *db.SnippetInput) (uuid.UUID, error)
	SetWebsiteStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkWebsiteScraped(ctx context.Context, id uuid.UUID, status string) error
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// HTTPFetcher fetches pages with a plain HTTP GET.
type HTTPFetcher struct {
	Options *fetch.Options
}

// Fetch implements Fetcher.
func (f HTTPFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	return fetch.URL(ctx, url, f.Options)
}

// Config wires a Runner. Zero values select HTTP fetching, no browser,
// DefaultMaxConcurrent crawls and slog.Default.
type Config struct {
	HTTP          Fetcher
	Browser       Fetcher
	RobotsOptions *fetch.Options
	MaxConcurrent int64
	Logger        *slog.Logger
	// Sleep waits between requests; it must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Request describes one crawl.
type Request struct {
	JobID          uuid.UUID
	Website        types.Website
	StartURL       string
	UseBrowser     bool
	SinglePage     bool
	ExtractContent bool
	MaxPages       int
}

// Runner executes crawls in background goroutines, at most one per website.
type Runner struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	sem    *semaphore.Weighted

	base      context.Context
	cancelAll context.CancelCauseFunc

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelCauseFunc
	wg      sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(store Store, cfg Config) *Runner {
	if cfg.HTTP == nil {
		cfg.HTTP = HTTPFetcher{Options: fetch.DefaultOptions()}
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	base, cancel := context.WithCancelCause(context.Background())
	return &Runner{
		store:     store,
		cfg:       cfg,
		logger:    cfg.Logger,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		base:      base,
		cancelAll: cancel,
		running:   make(map[uuid.UUID]context.CancelCauseFunc),
	}
}

// Start launches the crawl described by req. The job row must already exist in pending state.
func (r *Runner) Start(req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.base.Err() != nil {
		return errShutdown
	}
	if _, ok := r.running[req.Website.ID]; ok {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancelCause(r.base)
	r.running[req.Website.ID] = cancel
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, req.Website.ID)
			r.mu.Unlock()
			cancel(nil)
		}()
		r.run(ctx, req)
	}()
	return nil
}

// Stop cancels the website's crawl. The job ends as paused. It reports whether a crawl was running.
func (r *Runner) Stop(websiteID uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.running[websiteID]
	r.mu.Unlock()
	if ok {
		cancel(errStopped)
	}
	return ok
}

// Running reports whether the website has a crawl in flight.
func (r *Runner) Running(websiteID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[websiteID]
	return ok
}

// Wait blocks until every started crawl has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels all crawls and waits for them to record their final state.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancelAll(errShutdown)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type crawlStats struct {
	stored  int
	failed  int
	lastErr error
}

func (r *Runner) run(ctx context.Context, req Request) {
	logger := r.logger.With("job_id", req.JobID, "website_id", req.Website.ID)
	// Final bookkeeping must survive cancellation.
	bg := context.WithoutCancel(ctx)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.finish(bg, req, logger, types.JobPaused, context.Cause(ctx).Error())
		return
	}
	defer r.sem.Release(1)

	if err := r.store.StartJob(ctx, req.JobID); err != nil {
		r.finish(bg, req, logger, types.JobFailed, err.Error())
		return
	}
	if err := r.store.SetWebsiteStatus(ctx, req.Website.ID, types.WebsiteRunning); err != nil {
		logger.Warn("failed to mark website running", "error", err)
	}
	metrics.ScrapeActiveJobs.Inc()
	defer metrics.ScrapeActiveJobs.Dec()

	logger.Info("crawl started", "url", startURL(req), "use_browser", req.UseBrowser)
	stats, err := r.crawl(ctx, req, logger)

	switch {
	case ctx.Err() != nil:
		r.finish(bg, req, logger, types.JobPaused, context.Cause(ctx).Error())
	case err != nil:
		r.finish(bg, req, logger, types.JobFailed, err.Error())
	case stats.stored == 0 && stats.failed > 0:
		r.finish(bg, req, logger, types.JobFailed, fmt.Sprintf("no pages could be fetched: %v", stats.lastErr))
	default:
		if err := r.store.UpdateJobProgress(bg, req.JobID, stats.stored, stats.stored); err != nil {
			logger.Warn("failed to record final progress", "error", err)
		}
		r.finish(bg, req, logger, types.JobCompleted, "")
	}
	logger.Info("crawl finished", "pages", stats.stored, "failed", stats.failed)
}

func (r *Runner) finish(ctx context.Context, req Request, logger *slog.Logger, status, msg string) {
	if err := r.store.FinishJob(ctx, req.JobID, status, msg); err != nil {
		logger.Error("failed to finish scraping job", "status", status, "error", err)
	}
	websiteStatus := types.WebsiteActive
	switch status {
	case types.JobFailed:
		websiteStatus = types.WebsiteError
	case types.JobPaused:
		websiteStatus = types.WebsitePaused
	}
	if err := r.store.MarkWebsiteScraped(ctx, req.Website.ID, websiteStatus); err != nil {
		logger.Error("failed to update website after crawl", "error", err)
	}
	metrics.ScrapeJobsTotal.WithLabelValues(status).Inc()
}

type target struct {
	url   string
	depth int
}

func (r *Runner) crawl(ctx context.Context, req Request, logger *slog.Logger) (crawlStats, error) {
	var stats crawlStats
	w := req.Website
	start := startURL(req)

	maxPages, maxDepth := req.MaxPages, w.CrawlDepth
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if req.SinglePage {
		maxPages, maxDepth = 1, 0
	}

	fetcher, method := r.cfg.HTTP, "http"
	if req.UseBrowser && r.cfg.Browser != nil {
		fetcher, method = r.cfg.Browser, "browser"
	}

	var robots *fetch.Robots
	if w.RespectRobotsTxt {
		robots = fetch.FetchRobots(ctx, start, r.cfg.RobotsOptions)
	}
	delay := seconds(w.RateLimitDelay)
	if robots != nil && robots.CrawlDelay > delay {
		delay = robots.CrawlDelay
	}

	var rules []types.ExtractionRule
	if req.ExtractContent {
		var err error
		if rules, err = r.store.ListRules(ctx, w.ProjectID, true); err != nil {
			return stats, err
		}
	}

	queue := []target{{url: start}}
	seen := map[string]bool{fetch.Normalize(start): true}
	attempted := 0

	for len(queue) > 0 && stats.stored < maxPages {
		if ctx.Err() != nil {
			return stats, nil
		}
		t := queue[0]
		queue = queue[1:]

		if !robots.Allowed(t.url) {
			logger.Debug("blocked by robots.txt", "url", t.url)
			continue
		}
		if attempted > 0 {
			if err := r.cfg.Sleep(ctx, delay); err != nil {
				return stats, nil
			}
		}
		attempted++

		links, err := r.scrapePage(ctx, fetcher, method, req, t, rules, logger)
		if err != nil {
			if ctx.Err() != nil {
				return stats, nil
			}
			var fe *fetch.Error
			if !errors.As(err, &fe) && !errors.Is(err, errNotHTML) {
				return stats, err
			}
			stats.failed++
			stats.lastErr = err
			metrics.ScrapePagesTotal.WithLabelValues("error").Inc()
			logger.Warn("page fetch failed", "url", t.url, "error", err)
			continue
		}
		stats.stored++
		metrics.ScrapePagesTotal.WithLabelValues("ok").Inc()

		if t.depth < maxDepth {
			for _, link := range links {
				if !w.FollowExternalLinks && !fetch.SameSite(start, link) {
					continue
				}
				key := fetch.Normalize(link)
				if seen[key] {
					continue
				}
				seen[key] = true
				queue = append(queue, target{url: link, depth: t.depth + 1})
			}
		}

		total := min(stats.stored+len(queue), maxPages)
		if err := r.store.UpdateJobProgress(ctx, req.JobID, stats.stored, total); err != nil && ctx.Err() == nil {
			return stats, err
		}
	}
	return stats, nil
}

// scrapePage fetches, stores and extracts one page, returning its outbound links.
// Fetch and content-type failures come back as *fetch.Error or errNotHTML;
// anything else is a storage failure.
func (r *Runner) scrapePage(ctx context.Context, fetcher Fetcher, method string, req Request, t target, rules []types.ExtractionRule, logger *slog.Logger) ([]string, error) {
	res, err := fetcher.Fetch(ctx, t.url)
	if err != nil {
		return nil, err
	}
	if !fetch.IsHTML(res.ContentType) {
		return nil, fmt.Errorf("%s: %w (%s)", t.url, errNotHTML, res.ContentType)
	}
	pageURL := res.FinalURL
	if pageURL == "" {
		pageURL = t.url
	}
	doc, err := fetch.Parse(pageURL, res.HTML)
	if err != nil {
		return nil, &fetch.Error{URL: t.url, Message: "unparseable HTML", Cause: err}
	}
	text := doc.MainText()

	page := &db.Page{
		WebsiteID:     req.Website.ID,
		URL:           pageURL,
		Title:         truncate(doc.Title(), maxTitleRunes),
		StatusCode:    res.StatusCode,
		ContentLength: len(res.HTML),
		LoadTime:      math.Round(res.LoadTime.Seconds()*1000) / 1000,
		ExtractedText: text,
		RawHTML:       res.HTML,
	}
	if err := r.store.InsertPage(ctx, page); err != nil {
		return nil, err
	}

	if len(rules) > 0 {
		for _, ex := range Extract(doc, text, rules, logger) {
			meta, _ := json.Marshal(map[string]any{
				"rule":   ex.RuleName,
				"depth":  t.depth,
				"method": method,
			})
			ruleID := ex.RuleID
			_, err := r.store.CreateSnippet(ctx, &db.SnippetInput{
				PageID:           page.ID,
				ExtractionRuleID: &ruleID,
				Content:          ex.Content,
				Context:          ex.Context,
				ConfidenceScore:  ex.Confidence,
				SourceURL:        pageURL,
				Metadata:         meta,
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return doc.Links(), nil
}

func startURL(req Request) string {
	if req.StartURL != "" {
		return req.StartURL
	}
	return req.Website.URL
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
