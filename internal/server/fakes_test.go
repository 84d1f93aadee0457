package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/config"
	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/scrape"
	"github.com/jonathan/blitz/internal/server/ratelimit"
	"github.com/jonathan/blitz/internal/types"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{Secret: testSecret, ExpirationHours: 24, RefreshDays: 30}
}

func testPasswordConfig() *config.PasswordConfig {
	return &config.PasswordConfig{BcryptCost: 4}
}

// fakeStore is an in-memory Store. Methods the tests never reach panic through the nil embedded interface.
type fakeStore struct {
	Store

	mu        sync.Mutex
	users     map[uuid.UUID]*db.User
	projects  map[uuid.UUID]*types.Project
	roles     map[uuid.UUID]map[uuid.UUID]string
	websites  map[uuid.UUID]*types.Website
	jobs      map[uuid.UUID]*types.ScrapingJob
	pages     map[uuid.UUID]*db.Page
	rules     map[uuid.UUID]*types.ExtractionRule
	snippets  map[uuid.UUID]*types.Snippet
	exports   map[uuid.UUID]*types.Export
	contents  map[uuid.UUID][]byte
	searches  []db.PageSearch
	results   []types.SearchResult
	audits    []db.AuditEntry
	sqlCalls  []string
	sqlResult *db.SQLResult
	sqlErr    error
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[uuid.UUID]*db.User),
		projects: make(map[uuid.UUID]*types.Project),
		roles:    make(map[uuid.UUID]map[uuid.UUID]string),
		websites: make(map[uuid.UUID]*types.Website),
		jobs:     make(map[uuid.UUID]*types.ScrapingJob),
		pages:    make(map[uuid.UUID]*db.Page),
		rules:    make(map[uuid.UUID]*types.ExtractionRule),
		snippets: make(map[uuid.UUID]*types.Snippet),
		exports:  make(map[uuid.UUID]*types.Export),
		contents: make(map[uuid.UUID][]byte),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, in *db.UserCreateInput) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, in.Email) {
			return nil, db.ErrEmailTaken
		}
	}
	now := time.Now()
	u := &db.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(in.Email),
		PasswordHash: in.PasswordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         in.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUser(_ context.Context, id uuid.UUID) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	u, err := f.GetUserByEmail(ctx, email)
	return u != nil, err
}

func (f *fakeStore) UpdateUserProfile(_ context.Context, id uuid.UUID, upd db.UserProfileUpdate) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return db.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		now := time.Now()
		u.LastLogin = &now
	}
	return nil
}

func (f *fakeStore) AdminUpdateUser(_ context.Context, id uuid.UUID, upd db.AdminUserUpdate) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) CreateProject(_ context.Context, ownerID uuid.UUID, req *types.CreateProjectRequest) (*types.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &types.Project{
		ID:       uuid.New(),
		Name:     req.Name,
		Status:   types.ProjectActive,
		Priority: types.PriorityMedium,
		Tags:     []string{},
		OwnerID:  ownerID,
	}
	f.projects[p.ID] = p
	f.roles[p.ID] = map[uuid.UUID]string{ownerID: types.CollaboratorOwner}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetProject(_ context.Context, id uuid.UUID) (*types.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) DeleteProject(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return db.ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeStore) ListProjects(_ context.Context, filters db.ProjectFilters) ([]types.Project, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []types.Project{}
	for id, p := range f.projects {
		if filters.VisibleTo != nil && f.roles[id][*filters.VisibleTo] == "" {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (f *fakeStore) CollaboratorRole(_ context.Context, projectID, userID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[projectID][userID], nil
}

func (f *fakeStore) AddCollaborator(_ context.Context, projectID, userID uuid.UUID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[projectID][userID] = role
	return nil
}

func (f *fakeStore) ListCollaborators(_ context.Context, projectID uuid.UUID) ([]types.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []types.Collaborator{}
	for userID, role := range f.roles[projectID] {
		if u, ok := f.users[userID]; ok {
			out = append(out, types.Collaborator{User: *u.ToAPI(), Role: role})
		}
	}
	return out, nil
}

func (f *fakeStore) CreateWebsite(_ context.Context, req *types.CreateWebsiteRequest) (*types.Website, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &types.Website{
		ID:               uuid.New(),
		ProjectID:        req.ProjectID,
		URL:              req.URL,
		Name:             req.URL,
		CrawlDepth:       2,
		RateLimitDelay:   1,
		RespectRobotsTxt: true,
		Status:           types.WebsiteActive,
	}
	f.websites[w.ID] = w
	cp := *w
	return &cp, nil
}

func (f *fakeStore) GetWebsite(_ context.Context, id uuid.UUID) (*types.Website, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.websites[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (f *fakeStore) DeleteWebsite(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.websites[id]; !ok {
		return db.ErrNotFound
	}
	delete(f.websites, id)
	return nil
}

func (f *fakeStore) CreateJob(_ context.Context, websiteID uuid.UUID, totalPages int) (*types.ScrapingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := &types.ScrapingJob{
		ID:         uuid.New(),
		WebsiteID:  websiteID,
		ProjectID:  f.websites[websiteID].ProjectID,
		Status:     types.JobPending,
		TotalPages: totalPages,
		CreatedAt:  time.Now(),
	}
	f.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

func (f *fakeStore) GetJob(_ context.Context, id uuid.UUID) (*types.ScrapingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) ActiveJobForWebsite(_ context.Context, websiteID uuid.UUID) (*types.ScrapingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.WebsiteID == websiteID && j.Active() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FinishJob(_ context.Context, id uuid.UUID, status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.Status = status
		j.ErrorMessage = errMsg
	}
	return nil
}

func (f *fakeStore) GetPage(_ context.Context, id uuid.UUID) (*db.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pages[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) SearchPages(_ context.Context, search db.PageSearch) ([]types.SearchResult, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, search)
	return f.results, len(f.results), nil
}

func (f *fakeStore) CreateRule(_ context.Context, req *types.CreateRuleRequest) (*types.ExtractionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &types.ExtractionRule{
		ID:        uuid.New(),
		ProjectID: req.ProjectID,
		Name:      req.Name,
		RuleType:  req.RuleType,
		Selector:  req.Selector,
		Attribute: req.Attribute,
		Multiple:  req.Multiple,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if req.Priority != nil {
		r.Priority = *req.Priority
	}
	f.rules[r.ID] = r
	cp := *r
	return &cp, nil
}

func (f *fakeStore) GetRule(_ context.Context, id uuid.UUID) (*types.ExtractionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rules[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) ListRules(_ context.Context, projectID uuid.UUID, activeOnly bool) ([]types.ExtractionRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.ExtractionRule
	for _, r := range f.rules {
		if r.ProjectID == projectID && (r.IsActive || !activeOnly) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (f *fakeStore) CreateSnippet(_ context.Context, in *db.SnippetInput) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var projectID uuid.UUID
	if p, ok := f.pages[in.PageID]; ok {
		if w, ok := f.websites[p.WebsiteID]; ok {
			projectID = w.ProjectID
		}
	}
	sn := &types.Snippet{
		ID:               uuid.New(),
		PageID:           in.PageID,
		ExtractionRuleID: in.ExtractionRuleID,
		ProjectID:        projectID,
		Content:          in.Content,
		Context:          in.Context,
		ConfidenceScore:  in.ConfidenceScore,
		SourceURL:        in.SourceURL,
		Status:           types.SnippetPending,
		Metadata:         in.Metadata,
		CreatedAt:        time.Now(),
	}
	f.snippets[sn.ID] = sn
	return sn.ID, nil
}

func (f *fakeStore) GetSnippet(_ context.Context, id uuid.UUID) (*types.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sn, ok := f.snippets[id]; ok {
		cp := *sn
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetExport(_ context.Context, id uuid.UUID) (*types.Export, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.exports[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetExportContent(_ context.Context, id uuid.UUID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contents[id], nil
}

func (f *fakeStore) InsertAuditLog(_ context.Context, e *db.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, *e)
	return nil
}

func (f *fakeStore) auditActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.audits))
	for _, a := range f.audits {
		out = append(out, a.Action)
	}
	return out
}

func (f *fakeStore) ExecuteSQL(_ context.Context, query string, _, _ int) (*db.SQLResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sqlCalls = append(f.sqlCalls, query)
	return f.sqlResult, f.sqlErr
}

func (f *fakeStore) DatabaseName() string { return "blitz_test" }

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

// fakeScraper records started crawls without running them.
type fakeScraper struct {
	mu       sync.Mutex
	started  []scrape.Request
	running  map[uuid.UUID]bool
	startErr error
}

func newFakeScraper() *fakeScraper {
	return &fakeScraper{running: make(map[uuid.UUID]bool)}
}

func (f *fakeScraper) Start(req scrape.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.running[req.Website.ID] {
		return scrape.ErrAlreadyRunning
	}
	f.started = append(f.started, req)
	f.running[req.Website.ID] = true
	return nil
}

func (f *fakeScraper) Stop(websiteID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.running[websiteID]
	delete(f.running, websiteID)
	return was
}

func (f *fakeScraper) Running(websiteID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[websiteID]
}

func (f *fakeScraper) Shutdown(context.Context) error { return nil }

// testEnv is a server wired to fakes plus helpers for driving it over HTTP.
type testEnv struct {
	t       *testing.T
	store   *fakeStore
	scraper *fakeScraper
	server  *Server
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithLimits(t, &ratelimit.Config{Enabled: false})
}

func newTestEnvWithLimits(t *testing.T, limits *ratelimit.Config) *testEnv {
	t.Helper()
	store := newFakeStore()
	scraper := newFakeScraper()
	cfg := &config.Config{Port: 5232, AppName: "Blitz", AppVersion: "test", CORSOrigins: []string{"http://localhost:3000"}}
	s := NewWithDeps(cfg, Deps{
		Store:     store,
		JWT:       testJWTConfig(),
		Passwords: testPasswordConfig(),
		Scraper:   scraper,
		RateLimit: limits,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(s.rateLimiter.Stop)
	return &testEnv{t: t, store: store, scraper: scraper, server: s, handler: s.Handler()}
}

// addUser stores an active user with the given role and password.
func (e *testEnv) addUser(email, password, role string) *db.User {
	e.t.Helper()
	hash, err := testPasswordConfig().HashPassword(password)
	require.NoError(e.t, err)
	u, err := e.store.CreateUser(context.Background(), &db.UserCreateInput{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
	})
	require.NoError(e.t, err)
	return u
}

// token signs a token for u without going through login.
func (e *testEnv) token(u *db.User, tokenType string) string {
	e.t.Helper()
	tok, err := e.server.jwtService.GenerateToken(u.ToAPI(), tokenType)
	require.NoError(e.t, err)
	return tok
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
