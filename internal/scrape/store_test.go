package scrape

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/types"
)

type finished struct {
	status string
	msg    string
}

// memStore records everything the runner writes.
type memStore struct {
	mu            sync.Mutex
	rules         []types.ExtractionRule
	pages         []db.Page
	snippets      []db.SnippetInput
	started       bool
	progress      [][2]int
	finished      *finished
	websiteStatus []string
}

func (s *memStore) StartJob(_ context.Context, _ uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *memStore) UpdateJobProgress(_ context.Context, _ uuid.UUID, scraped, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, [2]int{scraped, total})
	return nil
}

func (s *memStore) FinishJob(_ context.Context, _ uuid.UUID, status, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished == nil {
		s.finished = &finished{status: status, msg: msg}
	}
	return nil
}

func (s *memStore) InsertPage(_ context.Context, p *db.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.New()
	s.pages = append(s.pages, *p)
	return nil
}

func (s *memStore) ListRules(_ context.Context, _ uuid.UUID, _ bool) ([]types.ExtractionRule, error) {
	return s.rules, nil
}

func (s *memStore) CreateSnippet(_ context.Context, in *db.SnippetInput) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snippets = append(s.snippets, *in)
	return uuid.New(), nil
}

func (s *memStore) SetWebsiteStatus(_ context.Context, _ uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.websiteStatus = append(s.websiteStatus, status)
	return nil
}

func (s *memStore) MarkWebsiteScraped(_ context.Context, _ uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.websiteStatus = append(s.websiteStatus, status)
	return nil
}

func (s *memStore) pageURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := make([]string, 0, len(s.pages))
	for _, p := range s.pages {
		urls = append(urls, p.URL)
	}
	return urls
}
