package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/server/middleware"
	"github.com/jonathan/blitz/internal/types"
)

// roleAdmin is the access role reported for administrators on any project.
const roleAdmin = "admin"

// projectAccess is a caller's relationship to one project.
type projectAccess struct {
	project *types.Project
	role    string // admin, owner, collaborator or viewer
}

func (a *projectAccess) canEdit() bool {
	switch a.role {
	case roleAdmin, types.CollaboratorOwner, types.CollaboratorEditor:
		return true
	}
	return false
}

func (a *projectAccess) canDelete() bool {
	return a.role == roleAdmin || a.role == types.CollaboratorOwner
}

// visibleTo restricts list queries to the caller's projects. Admins see everything.
func visibleTo(user *types.User) *uuid.UUID {
	if user.IsAdmin() {
		return nil
	}
	id := user.ID
	return &id
}

// projectFor loads a project and the caller's role on it.
func (s *Server) projectFor(ctx context.Context, user *types.User, projectID uuid.UUID) (*projectAccess, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project == nil {
		return nil, &ErrNotFound{Resource: "Project", ID: projectID}
	}
	if user.IsAdmin() {
		return &projectAccess{project: project, role: roleAdmin}, nil
	}
	role, err := s.store.CollaboratorRole(ctx, projectID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project role: %w", err)
	}
	if role == "" {
		return nil, &ErrForbidden{}
	}
	return &projectAccess{project: project, role: role}, nil
}

// editableProject is projectFor that also requires edit rights.
func (s *Server) editableProject(ctx context.Context, user *types.User, projectID uuid.UUID) (*projectAccess, error) {
	access, err := s.projectFor(ctx, user, projectID)
	if err != nil {
		return nil, err
	}
	if !access.canEdit() {
		return nil, &ErrForbidden{}
	}
	return access, nil
}

// websiteFor loads a website and the caller's access to its project.
func (s *Server) websiteFor(ctx context.Context, user *types.User, websiteID uuid.UUID) (*types.Website, *projectAccess, error) {
	website, err := s.store.GetWebsite(ctx, websiteID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load website: %w", err)
	}
	if website == nil {
		return nil, nil, &ErrNotFound{Resource: "Website", ID: websiteID}
	}
	access, err := s.projectFor(ctx, user, website.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return website, access, nil
}

// callerID returns the authenticated user's ID for audit entries.
func callerID(r *http.Request) (*uuid.UUID, bool) {
	id, err := middleware.GetUserID(r)
	if err != nil {
		return nil, false
	}
	return &id, true
}
