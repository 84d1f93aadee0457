package server

import (
	"net/http"
	"strings"

	"github.com/jonathan/blitz/internal/fetch"
	"github.com/jonathan/blitz/internal/types"
)

// handleCreateWebsite adds a crawl target to a project the caller can edit.
func (s *Server) handleCreateWebsite(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to create website")
		return
	}
	var req types.CreateWebsiteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Failed to create website")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := s.validateStruct(&req); err != nil {
		s.handleError(w, r, err, "Failed to create website")
		return
	}
	if !fetch.ValidURL(req.URL) {
		s.errorResponse(w, http.StatusBadRequest, "URL must be an absolute http or https address")
		return
	}
	if _, err := s.editableProject(r.Context(), user, req.ProjectID); err != nil {
		s.handleError(w, r, err, "Failed to create website")
		return
	}

	website, err := s.store.CreateWebsite(r.Context(), &req)
	if err != nil {
		s.handleError(w, r, err, "Failed to create website")
		return
	}
	s.audit(r, &user.ID, "create", "website", website.ID.String(),
		map[string]any{"url": website.URL, "project_id": website.ProjectID.String()})
	s.jsonResponse(w, http.StatusCreated, types.WebsiteResponse{
		Envelope: types.OK("Website created successfully"),
		Website:  website,
	})
}

// handleGetWebsite returns one website.
func (s *Server) handleGetWebsite(w http.ResponseWriter, r *http.Request) {
	website, _, ok := s.websiteFromPath(w, r, "id")
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, types.WebsiteResponse{Envelope: types.OK(""), Website: website})
}

// handleUpdateWebsite changes a website's crawl settings.
func (s *Server) handleUpdateWebsite(w http.ResponseWriter, r *http.Request) {
	website, access, ok := s.websiteFromPath(w, r, "id")
	if !ok {
		return
	}
	if !access.canEdit() {
		s.handleError(w, r, &ErrForbidden{}, "Failed to update website")
		return
	}
	var req types.UpdateWebsiteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Failed to update website")
		return
	}
	if err := s.validateStruct(&req); err != nil {
		s.handleError(w, r, err, "Failed to update website")
		return
	}
	if req.Status != nil && s.scraper.Running(website.ID) {
		s.errorResponse(w, http.StatusBadRequest, "Cannot change status while scraping is running")
		return
	}

	updated, err := s.store.UpdateWebsite(r.Context(), website.ID, &req)
	if err != nil {
		s.handleError(w, r, err, "Failed to update website")
		return
	}
	if updated == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "Website", ID: website.ID}, "Failed to update website")
		return
	}
	userID, _ := callerID(r)
	s.audit(r, userID, "update", "website", website.ID.String(), nil)
	s.jsonResponse(w, http.StatusOK, types.WebsiteResponse{
		Envelope: types.OK("Website updated successfully"),
		Website:  updated,
	})
}

// handleDeleteWebsite removes a website with its jobs and pages.
func (s *Server) handleDeleteWebsite(w http.ResponseWriter, r *http.Request) {
	website, access, ok := s.websiteFromPath(w, r, "id")
	if !ok {
		return
	}
	if !access.canEdit() {
		s.handleError(w, r, &ErrForbidden{}, "Failed to delete website")
		return
	}
	if s.scraper.Running(website.ID) {
		s.errorResponse(w, http.StatusBadRequest, "Stop scraping before deleting this website")
		return
	}
	if err := s.store.DeleteWebsite(r.Context(), website.ID); err != nil {
		s.handleError(w, r, notFound(err, "Website", website.ID), "Failed to delete website")
		return
	}
	userID, _ := callerID(r)
	s.audit(r, userID, "delete", "website", website.ID.String(), map[string]any{"url": website.URL})
	s.jsonResponse(w, http.StatusOK, types.MessageResponse{Envelope: types.OK("Website deleted successfully")})
}

// websiteFromPath resolves the named path value to a website the caller can see.
// On failure the error response has been written.
func (s *Server) websiteFromPath(w http.ResponseWriter, r *http.Request, name string) (*types.Website, *projectAccess, bool) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to load user")
		return nil, nil, false
	}
	websiteID, err := pathUUID(r, name)
	if err != nil {
		s.handleError(w, r, err, "Invalid website id")
		return nil, nil, false
	}
	website, access, err := s.websiteFor(r.Context(), user, websiteID)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve website")
		return nil, nil, false
	}
	return website, access, true
}
