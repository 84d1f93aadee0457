package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/blitz/internal/config"
	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/export"
	"github.com/jonathan/blitz/internal/fetch"
	"github.com/jonathan/blitz/internal/metrics"
	"github.com/jonathan/blitz/internal/scrape"
	"github.com/jonathan/blitz/internal/server/middleware"
	"github.com/jonathan/blitz/internal/server/ratelimit"
	"github.com/jonathan/blitz/internal/types"
)

// janitorInterval is how often expired exports and revocations are purged.
const janitorInterval = time.Hour

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	cfg         *config.Config
	store       Store
	logger      *slog.Logger
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	revoker     Revoker
	userService *UserService
	authHandler *AuthHandler
	scraper     Scraper
	exporter    Exporter
	validate    *validator.Validate

	requireAccess  func(http.Handler) http.Handler
	requireRefresh func(http.Handler) http.Handler

	redisEnabled bool
	closers      []func()
	now          func() time.Time
}

// Deps are the collaborators of a Server. New builds them from the environment;
// tests supply fakes.
type Deps struct {
	Store     Store
	JWT       *config.JWTConfig
	Passwords *config.PasswordConfig
	Revoker   Revoker
	Scraper   Scraper
	Exporter  Exporter
	RateLimit *ratelimit.Config
	Logger    *slog.Logger
}

// New connects to PostgreSQL (and Redis when configured) and builds a server from the environment.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	logger := slog.Default()

	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	rateLimitConfig, err := ratelimit.LoadConfig()
	if err != nil {
		return nil, err
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	closers := []func(){database.Close}

	var revoker Revoker = NewMemoryRevoker()
	if cfg.RedisURL != "" {
		redisRevoker, err := NewRedisRevoker(ctx, cfg.RedisURL)
		if err != nil {
			database.Close()
			return nil, err
		}
		revoker = redisRevoker
		closers = append(closers, func() { _ = redisRevoker.Close() })
	}

	if n, err := database.FailInterruptedJobs(ctx); err != nil {
		logger.Warn("failed to reset interrupted jobs", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted jobs as failed", "count", n)
	}

	runner := scrape.NewRunner(database, scrape.Config{
		Browser: &fetch.Browser{Logger: logger},
		Logger:  logger,
	})

	s := NewWithDeps(cfg, Deps{
		Store:     database,
		JWT:       jwtConfig,
		Passwords: passwordConfig,
		Revoker:   revoker,
		Scraper:   runner,
		Exporter:  export.NewGenerator(database, logger),
		RateLimit: rateLimitConfig,
		Logger:    logger,
	})
	s.closers = closers
	return s, nil
}

// NewWithDeps assembles a server from explicit collaborators.
func NewWithDeps(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	revoker := deps.Revoker
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}

	s := &Server{
		cfg:          cfg,
		store:        deps.Store,
		logger:       logger,
		rateLimiter:  ratelimit.NewLimiter(deps.RateLimit),
		jwtService:   NewJWTService(deps.JWT),
		revoker:      revoker,
		scraper:      deps.Scraper,
		exporter:     deps.Exporter,
		validate:     newValidator(),
		redisEnabled: cfg.RedisURL != "",
		now:          time.Now,
	}
	s.userService = NewUserService(deps.Store, deps.Passwords)
	s.authHandler = NewAuthHandler(s)

	tokenValidator := s.jwtService.AsTokenValidator(revoker)
	s.requireAccess = middleware.Authenticate(tokenValidator, middleware.TokenAccess)
	s.requireRefresh = middleware.Authenticate(tokenValidator, middleware.TokenRefresh)

	// metrics.Middleware must sit directly on the mux to see the matched pattern.
	var handler http.Handler = metrics.Middleware(s.routes())
	handler = s.withRateLimit(handler)
	handler = s.withCORS(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// Authentication
	mux.HandleFunc("POST /api/auth/register", s.authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", s.authHandler.Login)
	mux.Handle("POST /api/auth/refresh", s.requireRefresh(http.HandlerFunc(s.authHandler.Refresh)))
	mux.Handle("GET /api/auth/profile", s.authed(s.authHandler.Profile))
	mux.Handle("PUT /api/auth/profile", s.authed(s.authHandler.UpdateProfile))
	mux.Handle("POST /api/auth/change-password", s.authed(s.authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", s.authed(s.authHandler.Logout))

	// Projects
	mux.Handle("GET /api/projects", s.authed(s.handleListProjects))
	mux.Handle("POST /api/projects", s.authed(s.handleCreateProject))
	mux.Handle("GET /api/projects/{id}", s.authed(s.handleGetProject))
	mux.Handle("PUT /api/projects/{id}", s.authed(s.handleUpdateProject))
	mux.Handle("DELETE /api/projects/{id}", s.authed(s.handleDeleteProject))
	mux.Handle("GET /api/projects/{id}/statistics", s.authed(s.handleProjectStatistics))
	mux.Handle("GET /api/projects/{id}/websites", s.authed(s.handleListProjectWebsites))
	mux.Handle("GET /api/projects/{id}/collaborators", s.authed(s.handleListCollaborators))
	mux.Handle("POST /api/projects/{id}/collaborators", s.authed(s.handleAddCollaborator))

	// Websites
	mux.Handle("POST /api/websites", s.authed(s.handleCreateWebsite))
	mux.Handle("GET /api/websites/{id}", s.authed(s.handleGetWebsite))
	mux.Handle("PUT /api/websites/{id}", s.authed(s.handleUpdateWebsite))
	mux.Handle("DELETE /api/websites/{id}", s.authed(s.handleDeleteWebsite))

	// Scraping
	mux.Handle("POST /api/scraping/run", s.authed(s.handleRunScraping))
	mux.Handle("POST /api/scraping/stop/{website_id}", s.authed(s.handleStopScraping))
	mux.Handle("GET /api/scraping/jobs", s.authed(s.handleListJobs))
	mux.Handle("GET /api/scraping/jobs/{id}", s.authed(s.handleGetJob))
	mux.Handle("GET /api/scraping/status", s.authed(s.handleScrapingStatus))
	mux.Handle("GET /api/scraping/status/{website_id}", s.authed(s.handleWebsiteScrapingStatus))

	// Content
	mux.Handle("GET /api/content/snippets", s.authed(s.handleListSnippets))
	mux.Handle("GET /api/content/snippets/{id}", s.authed(s.handleGetSnippet))
	mux.Handle("PUT /api/content/snippets/{id}/approve", s.authed(s.handleReviewSnippet))
	mux.Handle("GET /api/content/rules", s.authed(s.handleListRules))
	mux.Handle("POST /api/content/rules", s.authed(s.handleCreateRule))
	mux.Handle("DELETE /api/content/rules/{id}", s.authed(s.handleDeleteRule))
	mux.Handle("POST /api/content/extract", s.authed(s.handleExtractContent))
	mux.Handle("GET /api/content/search", s.authed(s.handleSearchContent))

	// Reports
	mux.Handle("POST /api/reports/export", s.authed(s.handleCreateExport))
	mux.Handle("GET /api/reports/exports", s.authed(s.handleListExports))
	mux.Handle("GET /api/reports/exports/{id}", s.authed(s.handleGetExport))
	mux.Handle("GET /api/reports/downloads/{id}", s.authed(s.handleDownloadExport))

	// Admin
	mux.Handle("GET /api/admin/users", s.admin(s.handleListUsers))
	mux.Handle("PUT /api/admin/users/{id}", s.admin(s.handleAdminUpdateUser))
	mux.Handle("POST /api/admin/sql/execute", s.admin(s.handleExecuteSQL))
	mux.Handle("GET /api/admin/system/status", s.admin(s.handleSystemStatus))
	mux.Handle("GET /api/admin/settings", s.admin(s.handleSettings))
	mux.Handle("GET /api/admin/audit-logs", s.admin(s.handleListAuditLogs))

	return mux
}

// authed requires a valid access token.
func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return s.requireAccess(h)
}

// admin requires a valid access token belonging to an active admin. The role is
// read from the database so demotions take effect before the token expires.
func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.requireAccess(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.currentUser(r)
		if err != nil {
			s.handleError(w, r, err, "Failed to load user")
			return
		}
		if !user.IsAdmin() {
			s.errorResponse(w, http.StatusForbidden, "Admin access required")
			return
		}
		h(w, r)
	}))
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests and blocks until SIGINT or SIGTERM.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	janitorCtx, cancelJanitor := context.WithCancel(context.Background())
	defer cancelJanitor()
	go s.runJanitor(janitorCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr, "rate_limit", s.rateLimiter.Config().String())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		s.close()
		return fmt.Errorf("server error: %w", err)
	}
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops accepting requests, pauses running crawls and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.scraper != nil {
		if serr := s.scraper.Shutdown(ctx); serr != nil {
			s.logger.Warn("crawls did not stop in time", "error", serr)
		}
	}
	s.close()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
}

// runJanitor purges expired exports and stale in-memory revocations.
func (s *Server) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Server) sweep(ctx context.Context) {
	if n, err := s.store.DeleteExpiredExports(ctx); err != nil {
		s.logger.Warn("failed to delete expired exports", "error", err)
	} else if n > 0 {
		s.logger.Info("deleted expired exports", "count", n)
	}
	if m, ok := s.revoker.(*MemoryRevoker); ok {
		m.Prune()
	}
}

// withCORS adds CORS headers for the configured origins.
func (s *Server) withCORS(next http.Handler) http.Handler {
	allowAll := slices.Contains(s.cfg.CORSOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.cfg.CORSOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers",
			"Content-Disposition, X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, clientID, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; forwarded headers are not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

type rateLimitBody struct {
	types.Envelope
	Limit      int    `json:"limit,omitempty"`
	ResetAt    string `json:"reset_at,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, clientID string, info ratelimit.Info) {
	body := rateLimitBody{
		Envelope: types.Fail("Rate limit exceeded. Please try again later."),
		Limit:    info.Limit,
	}
	if !info.ResetTime.IsZero() {
		body.ResetAt = info.ResetTime.UTC().Format(time.RFC3339)
	}
	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Round(time.Second).Seconds())
		if secs < 1 {
			secs = 1
		}
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	s.logger.Warn("rate limit exceeded",
		"client", clientID,
		"tier", info.Tier,
		"path", r.URL.Path,
		"limit", info.Limit,
		"request_id", middleware.RequestIDFromContext(r.Context()),
	)
	s.jsonResponse(w, http.StatusTooManyRequests, body)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}

// settings reports the read-only runtime configuration.
func (s *Server) settings() *types.Settings {
	rl := s.rateLimiter.Config()
	return &types.Settings{
		AppName:         s.cfg.AppName,
		AppVersion:      s.cfg.AppVersion,
		DatabaseName:    s.store.DatabaseName(),
		RedisEnabled:    s.redisEnabled,
		RateLimit:       rl.Enabled,
		RateLimitPolicy: rl.String(),
		CORSOrigins:     strings.Join(s.cfg.CORSOrigins, ","),
	}
}
