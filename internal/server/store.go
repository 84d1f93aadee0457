package server

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/export"
	"github.com/jonathan/blitz/internal/scrape"
	"github.com/jonathan/blitz/internal/types"
)

// Store is the persistence surface the handlers use. *db.DB satisfies it.
type Store interface {
	UserStore

	CreateProject(ctx context.Context, ownerID uuid.UUID, req *types.CreateProjectRequest) (*types.Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error)
	UpdateProject(ctx context.Context, id uuid.UUID, req *types.UpdateProjectRequest) (*types.Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error
	ListProjects(ctx context.Context, filters db.ProjectFilters) ([]types.Project, int, error)
	CollaboratorRole(ctx context.Context, projectID, userID uuid.UUID) (string, error)
	AddCollaborator(ctx context.Context, projectID, userID uuid.UUID, role string) error
	ListCollaborators(ctx context.Context, projectID uuid.UUID) ([]types.Collaborator, error)
	ProjectStatistics(ctx context.Context, projectID uuid.UUID) (*types.ProjectStatistics, error)

	CreateWebsite(ctx context.Context, req *types.CreateWebsiteRequest) (*types.Website, error)
	GetWebsite(ctx context.Context, id uuid.UUID) (*types.Website, error)
	UpdateWebsite(ctx context.Context, id uuid.UUID, req *types.UpdateWebsiteRequest) (*types.Website, error)
	DeleteWebsite(ctx context.Context, id uuid.UUID) error
	ListWebsites(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]types.Website, int, error)

	CreateJob(ctx context.Context, websiteID uuid.UUID, totalPages int) (*types.ScrapingJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*types.ScrapingJob, error)
	LatestJobForWebsite(ctx context.Context, websiteID uuid.UUID) (*types.ScrapingJob, error)
	ActiveJobForWebsite(ctx context.Context, websiteID uuid.UUID) (*types.ScrapingJob, error)
	FinishJob(ctx context.Context, id uuid.UUID, status, errMsg string) error
	ListJobs(ctx context.Context, filters db.JobFilters) ([]types.ScrapingJob, int, error)
	ListActiveJobs(ctx context.Context, visibleTo *uuid.UUID) ([]types.ScrapingJob, error)
	FailInterruptedJobs(ctx context.Context) (int64, error)

	GetPage(ctx context.Context, id uuid.UUID) (*db.Page, error)
	SearchPages(ctx context.Context, search db.PageSearch) ([]types.SearchResult, int, error)

	CreateSnippet(ctx context.Context, in *db.SnippetInput) (uuid.UUID, error)
	GetSnippet(ctx context.Context, id uuid.UUID) (*types.Snippet, error)
	ListSnippets(ctx context.Context, filters db.SnippetFilters) ([]types.Snippet, int, error)
	ReviewSnippet(ctx context.Context, id, reviewer uuid.UUID, status, notes string) (*types.Snippet, error)
	CreateRule(ctx context.Context, req *types.CreateRuleRequest) (*types.ExtractionRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (*types.ExtractionRule, error)
	ListRules(ctx context.Context, projectID uuid.UUID, activeOnly bool) ([]types.ExtractionRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error

	CreateExport(ctx context.Context, in *db.ExportInput) (*types.Export, error)
	GetExport(ctx context.Context, id uuid.UUID) (*types.Export, error)
	GetExportContent(ctx context.Context, id uuid.UUID) ([]byte, error)
	ListExports(ctx context.Context, userID *uuid.UUID, limit, offset int) ([]types.Export, int, error)
	DeleteExpiredExports(ctx context.Context) (int64, error)

	ListUsers(ctx context.Context, filters db.UserFilters) ([]db.User, int, error)
	AdminUpdateUser(ctx context.Context, id uuid.UUID, upd db.AdminUserUpdate) (*db.User, error)
	InsertAuditLog(ctx context.Context, e *db.AuditEntry) error
	ListAuditLogs(ctx context.Context, filters db.AuditFilters) ([]types.AuditLog, int, error)
	SystemStatus(ctx context.Context) (*types.SystemStatus, error)
	ExecuteSQL(ctx context.Context, query string, page, perPage int) (*db.SQLResult, error)
	DatabaseName() string
	Ping(ctx context.Context) error
}

// UserStore is the account subset of Store used by UserService.
type UserStore interface {
	CreateUser(ctx context.Context, in *db.UserCreateInput) (*db.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
	CheckEmailExists(ctx context.Context, email string) (bool, error)
	UpdateUserProfile(ctx context.Context, id uuid.UUID, upd db.UserProfileUpdate) (*db.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
}

// Scraper runs crawls in the background. *scrape.Runner satisfies it.
type Scraper interface {
	Start(req scrape.Request) error
	Stop(websiteID uuid.UUID) bool
	Running(websiteID uuid.UUID) bool
	Shutdown(ctx context.Context) error
}

// Exporter renders export files. *export.Generator satisfies it.
type Exporter interface {
	Generate(ctx context.Context, e *types.Export, filters *types.ExportFilters, visibleTo *uuid.UUID) error
}

var (
	_ Store    = (*db.DB)(nil)
	_ Scraper  = (*scrape.Runner)(nil)
	_ Exporter = (*export.Generator)(nil)
)
