// Package poller keeps a list of scraping jobs fresh by re-fetching it on a
// fixed interval while a view is open.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/client"
	"github.com/jonathan/blitz/internal/types"
)

// DefaultInterval is the time between refreshes.
const DefaultInterval = 10 * time.Second

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("poller already started")

// ScrapingAPI is the subset of the scraping endpoints the poller drives.
type ScrapingAPI interface {
	Jobs(ctx context.Context, params client.JobListParams) (*types.JobListResponse, error)
	Run(ctx context.Context, req *types.RunScrapingRequest) (*types.JobResponse, error)
	Stop(ctx context.Context, websiteID uuid.UUID) (*types.MessageResponse, error)
}

// Options configures a Poller.
type Options struct {
	API      ScrapingAPI
	Clock    Clock
	Interval time.Duration
	// Params filters the job list, e.g. to one project.
	Params client.JobListParams
	// OnUpdate receives every newly published snapshot, in publish order.
	OnUpdate func(jobs []types.ScrapingJob)
	Logger   *slog.Logger
}

// Poller re-fetches the job list once on Start and then once per tick until Stop.
type Poller struct {
	api      ScrapingAPI
	clock    Clock
	interval time.Duration
	params   client.JobListParams
	onUpdate func([]types.ScrapingJob)
	logger   *slog.Logger

	seq atomic.Uint64

	mu        sync.Mutex
	published uint64
	jobs      []types.ScrapingJob
	// notifyMu keeps OnUpdate calls in publish order without holding mu.
	notifyMu sync.Mutex

	lifeMu  sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Poller. It does nothing until Start.
func New(opts Options) *Poller {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock{}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		api:      opts.API,
		clock:    clock,
		interval: interval,
		params:   opts.Params,
		onUpdate: opts.OnUpdate,
		logger:   logger,
	}
}

// Start fetches immediately and then on every tick, until Stop or ctx is done.
// The ticker is created before Start returns.
func (p *Poller) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, cancel := context.WithCancel(ctx)
	ticker := p.clock.NewTicker(p.interval)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, ticker, p.done)
	return nil
}

func (p *Poller) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	_ = p.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			_ = p.Refresh(ctx)
		}
	}
}

// Stop cancels polling and waits for the loop to exit. Safe to call more than once.
func (p *Poller) Stop() {
	p.lifeMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Jobs returns the latest published snapshot.
func (p *Poller) Jobs() []types.ScrapingJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.ScrapingJob(nil), p.jobs...)
}

// Refresh fetches the job list once. A failed fetch leaves the snapshot unchanged.
func (p *Poller) Refresh(ctx context.Context) (err error) {
	seq := p.seq.Add(1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job fetch panicked: %v", r)
			p.logger.Error("job fetch panicked", "panic", r, "seq", seq)
		}
	}()

	resp, err := p.api.Jobs(ctx, p.params)
	if err != nil {
		p.logger.Warn("failed to fetch scraping jobs", "error", err)
		return err
	}
	p.publish(seq, resp.Jobs)
	return nil
}

// StartJob asks the server to crawl a website and refreshes immediately on success.
func (p *Poller) StartJob(ctx context.Context, req *types.RunScrapingRequest) (*types.JobResponse, error) {
	resp, err := p.api.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	_ = p.Refresh(ctx)
	return resp, nil
}

// StopJob asks the server to stop a website's crawl and refreshes immediately on success.
func (p *Poller) StopJob(ctx context.Context, websiteID uuid.UUID) (*types.MessageResponse, error) {
	resp, err := p.api.Stop(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	_ = p.Refresh(ctx)
	return resp, nil
}

// publish installs jobs unless a newer fetch has already been published.
func (p *Poller) publish(seq uint64, jobs []types.ScrapingJob) {
	p.mu.Lock()
	if seq <= p.published {
		p.mu.Unlock()
		p.logger.Debug("discarding stale job list", "seq", seq)
		return
	}
	p.published = seq
	p.jobs = append([]types.ScrapingJob(nil), jobs...)
	snapshot := append([]types.ScrapingJob(nil), jobs...)

	p.notifyMu.Lock()
	p.mu.Unlock()
	defer p.notifyMu.Unlock()
	if p.onUpdate != nil {
		p.onUpdate(snapshot)
	}
}
