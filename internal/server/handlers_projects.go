package server

import (
	"net/http"
	"strings"

	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/types"
)

// handleListProjects lists the projects visible to the caller.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve projects")
		return
	}
	page := pageParams(r, types.DefaultPerPage, types.MaxPerPage)
	q := r.URL.Query()

	projects, total, err := s.store.ListProjects(r.Context(), db.ProjectFilters{
		VisibleTo: visibleTo(user),
		Search:    strings.TrimSpace(q.Get("search")),
		Status:    q.Get("status"),
		Industry:  q.Get("industry"),
		Limit:     page.Limit(),
		Offset:    page.Offset(),
	})
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve projects")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.ProjectListResponse{
		Envelope:   types.OK(""),
		Projects:   projects,
		Pagination: paginate(page, total),
	})
}

// handleCreateProject creates a project owned by the caller.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to create project")
		return
	}
	var req types.CreateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Failed to create project")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateStruct(&req); err != nil {
		s.handleError(w, r, err, "Failed to create project")
		return
	}

	project, err := s.store.CreateProject(r.Context(), user.ID, &req)
	if err != nil {
		s.handleError(w, r, err, "Failed to create project")
		return
	}
	s.audit(r, &user.ID, "create", "project", project.ID.String(), map[string]any{"name": project.Name})
	s.jsonResponse(w, http.StatusCreated, types.ProjectResponse{
		Envelope: types.OK("Project created successfully"),
		Project:  project,
	})
}

// handleGetProject returns one project.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	access, ok := s.projectFromPath(w, r, false)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, types.ProjectResponse{Envelope: types.OK(""), Project: access.project})
}

// handleUpdateProject applies a partial update. Owners, admins and editors may update.
func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	access, ok := s.projectFromPath(w, r, true)
	if !ok {
		return
	}
	var req types.UpdateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Failed to update project")
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			s.errorResponse(w, http.StatusBadRequest, "Project name cannot be empty")
			return
		}
		req.Name = &name
	}
	if err := s.validateStruct(&req); err != nil {
		s.handleError(w, r, err, "Failed to update project")
		return
	}

	project, err := s.store.UpdateProject(r.Context(), access.project.ID, &req)
	if err != nil {
		s.handleError(w, r, err, "Failed to update project")
		return
	}
	if project == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "Project", ID: access.project.ID}, "Failed to update project")
		return
	}
	userID, _ := callerID(r)
	s.audit(r, userID, "update", "project", project.ID.String(), nil)
	s.jsonResponse(w, http.StatusOK, types.ProjectResponse{
		Envelope: types.OK("Project updated successfully"),
		Project:  project,
	})
}

// handleDeleteProject deletes a project and everything under it. Only owners and admins may delete.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	access, ok := s.projectFromPath(w, r, false)
	if !ok {
		return
	}
	if !access.canDelete() {
		s.errorResponse(w, http.StatusForbidden, "Only the project owner can delete this project")
		return
	}
	if err := s.store.DeleteProject(r.Context(), access.project.ID); err != nil {
		s.handleError(w, r, notFound(err, "Project", access.project.ID), "Failed to delete project")
		return
	}
	userID, _ := callerID(r)
	s.audit(r, userID, "delete", "project", access.project.ID.String(), map[string]any{"name": access.project.Name})
	s.jsonResponse(w, http.StatusOK, types.MessageResponse{Envelope: types.OK("Project deleted successfully")})
}

// handleProjectStatistics summarizes a project's websites, pages and snippets.
func (s *Server) handleProjectStatistics(w http.ResponseWriter, r *http.Request) {
	access, ok := s.projectFromPath(w, r, false)
	if !ok {
		return
	}
	stats, err := s.store.ProjectStatistics(r.Context(), access.project.ID)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve statistics")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.ProjectStatisticsResponse{Envelope: types.OK(""), Statistics: stats})
}

// handleListProjectWebsites lists a project's websites.
func (s *Server) handleListProjectWebsites(w http.ResponseWriter, r *http.Request) {
	access, ok := s.projectFromPath(w, r, false)
	if !ok {
		return
	}
	page := pageParams(r, types.DefaultPerPage, types.MaxPerPage)
	websites, total, err := s.store.ListWebsites(r.Context(), access.project.ID, page.Limit(), page.Offset())
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve websites")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.WebsiteListResponse{
		Envelope:   types.OK(""),
		Websites:   websites,
		Pagination: paginate(page, total),
	})
}

// handleListCollaborators lists the owner and collaborators of a project.
func (s *Server) handleListCollaborators(w http.ResponseWriter, r *http.Request) {
	access, ok := s.projectFromPath(w, r, false)
	if !ok {
		return
	}
	collaborators, err := s.store.ListCollaborators(r.Context(), access.project.ID)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve collaborators")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.CollaboratorListResponse{Envelope: types.OK(""), Collaborators: collaborators})
}

// handleAddCollaborator grants a registered user access to a project. Only owners and admins may share.
func (s *Server) handleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	access, ok := s.projectFromPath(w, r, false)
	if !ok {
		return
	}
	if !access.canDelete() {
		s.errorResponse(w, http.StatusForbidden, "Only the project owner can add collaborators")
		return
	}
	var req types.AddCollaboratorRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Failed to add collaborator")
		return
	}
	if err := s.validateStruct(&req); err != nil {
		s.handleError(w, r, err, "Failed to add collaborator")
		return
	}
	if req.Role == "" {
		req.Role = types.CollaboratorViewer
	}

	invitee, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.handleError(w, r, err, "Failed to add collaborator")
		return
	}
	if invitee == nil {
		s.errorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if invitee.ID == access.project.OwnerID {
		s.errorResponse(w, http.StatusBadRequest, "User already owns this project")
		return
	}
	if err := s.store.AddCollaborator(r.Context(), access.project.ID, invitee.ID, req.Role); err != nil {
		s.handleError(w, r, err, "Failed to add collaborator")
		return
	}

	userID, _ := callerID(r)
	s.audit(r, userID, "add_collaborator", "project", access.project.ID.String(),
		map[string]any{"collaborator_id": invitee.ID.String(), "role": req.Role})

	collaborators, err := s.store.ListCollaborators(r.Context(), access.project.ID)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve collaborators")
		return
	}
	s.jsonResponse(w, http.StatusCreated, types.CollaboratorListResponse{
		Envelope:      types.OK("Collaborator added successfully"),
		Collaborators: collaborators,
	})
}

// projectFromPath resolves {id} to a project the caller can see (or edit, when
// edit is set). On failure the error response has been written.
func (s *Server) projectFromPath(w http.ResponseWriter, r *http.Request, edit bool) (*projectAccess, bool) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to load user")
		return nil, false
	}
	projectID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err, "Invalid project id")
		return nil, false
	}
	var access *projectAccess
	if edit {
		access, err = s.editableProject(r.Context(), user, projectID)
	} else {
		access, err = s.projectFor(r.Context(), user, projectID)
	}
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve project")
		return nil, false
	}
	return access, true
}
