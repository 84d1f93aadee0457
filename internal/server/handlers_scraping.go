package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/fetch"
	"github.com/jonathan/blitz/internal/scrape"
	"github.com/jonathan/blitz/internal/types"
)

// handleRunScraping records a pending job for the website and starts it in the background.
func (s *Server) handleRunScraping(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to start scraping")
		return
	}
	var req types.RunScrapingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Failed to start scraping")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := s.validateStruct(&req); err != nil {
		s.handleError(w, r, err, "Failed to start scraping")
		return
	}

	website, access, err := s.websiteFor(r.Context(), user, req.WebsiteID)
	if err != nil {
		s.handleError(w, r, err, "Failed to start scraping")
		return
	}
	if !access.canEdit() {
		s.handleError(w, r, &ErrForbidden{}, "Failed to start scraping")
		return
	}

	startURL := website.URL
	if req.URL != "" {
		if !fetch.ValidURL(req.URL) {
			s.errorResponse(w, http.StatusBadRequest, "URL must be an absolute http or https address")
			return
		}
		startURL = req.URL
	}

	if s.scraper.Running(website.ID) {
		s.handleError(w, r, &ErrConflict{Message: "Scraping already running"}, "Failed to start scraping")
		return
	}
	active, err := s.store.ActiveJobForWebsite(r.Context(), website.ID)
	if err != nil {
		s.handleError(w, r, err, "Failed to start scraping")
		return
	}
	if active != nil {
		s.handleError(w, r, &ErrConflict{Message: "Scraping already running"}, "Failed to start scraping")
		return
	}

	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = scrape.DefaultMaxPages
	}
	if req.SinglePage {
		maxPages = 1
	}
	job, err := s.store.CreateJob(r.Context(), website.ID, maxPages)
	if err != nil {
		s.handleError(w, r, err, "Failed to start scraping")
		return
	}

	err = s.scraper.Start(scrape.Request{
		JobID:          job.ID,
		Website:        *website,
		StartURL:       startURL,
		UseBrowser:     req.UseSelenium,
		SinglePage:     req.SinglePage,
		ExtractContent: req.ExtractContent,
		MaxPages:       maxPages,
	})
	if err != nil {
		// The row was never picked up; close it so it does not block the next run.
		if ferr := s.store.FinishJob(context.WithoutCancel(r.Context()), job.ID, types.JobFailed, err.Error()); ferr != nil {
			s.logger.Warn("failed to close unstarted job", "job_id", job.ID, "error", ferr)
		}
		if errors.Is(err, scrape.ErrAlreadyRunning) {
			err = &ErrConflict{Message: "Scraping already running"}
		}
		s.handleError(w, r, err, "Failed to start scraping")
		return
	}

	s.audit(r, &user.ID, "start_scraping", "website", website.ID.String(), map[string]any{
		"job_id":       job.ID.String(),
		"start_url":    startURL,
		"use_selenium": req.UseSelenium,
		"max_pages":    maxPages,
	})
	s.jsonResponse(w, http.StatusOK, types.JobResponse{
		Envelope: types.OK("Scraping started"),
		Job:      job,
	})
}

// handleStopScraping cancels the website's running crawl; the job ends as paused.
func (s *Server) handleStopScraping(w http.ResponseWriter, r *http.Request) {
	website, access, ok := s.websiteFromPath(w, r, "website_id")
	if !ok {
		return
	}
	if !access.canEdit() {
		s.handleError(w, r, &ErrForbidden{}, "Failed to stop scraping")
		return
	}
	if !s.scraper.Stop(website.ID) {
		s.errorResponse(w, http.StatusBadRequest, "No scraping job running")
		return
	}
	userID, _ := callerID(r)
	s.audit(r, userID, "stop_scraping", "website", website.ID.String(), nil)
	s.jsonResponse(w, http.StatusOK, types.MessageResponse{Envelope: types.OK("Scraping stopped")})
}

// handleListJobs lists jobs on the caller's projects.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve jobs")
		return
	}
	projectID, err := queryUUID(r, "project_id")
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve jobs")
		return
	}
	page := pageParams(r, types.DefaultPerPage, types.MaxPerPage)

	jobs, total, err := s.store.ListJobs(r.Context(), db.JobFilters{
		VisibleTo: visibleTo(user),
		ProjectID: projectID,
		Status:    r.URL.Query().Get("status"),
		Limit:     page.Limit(),
		Offset:    page.Offset(),
	})
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve jobs")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.JobListResponse{
		Envelope:   types.OK(""),
		Jobs:       jobs,
		Pagination: paginate(page, total),
	})
}

// handleGetJob returns one job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve job")
		return
	}
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve job")
		return
	}
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve job")
		return
	}
	if job == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "Job", ID: jobID}, "Failed to retrieve job")
		return
	}
	if _, err := s.projectFor(r.Context(), user, job.ProjectID); err != nil {
		s.handleError(w, r, err, "Failed to retrieve job")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.JobResponse{Envelope: types.OK(""), Job: job})
}

// handleScrapingStatus lists the caller's pending and running jobs.
func (s *Server) handleScrapingStatus(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve scraping status")
		return
	}
	jobs, err := s.store.ListActiveJobs(r.Context(), visibleTo(user))
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve scraping status")
		return
	}
	if jobs == nil {
		jobs = []types.ScrapingJob{}
	}
	s.jsonResponse(w, http.StatusOK, types.ScrapingStatusResponse{
		Envelope:    types.OK(""),
		ActiveJobs:  jobs,
		TotalActive: len(jobs),
	})
}

// handleWebsiteScrapingStatus returns the website's most recent job.
func (s *Server) handleWebsiteScrapingStatus(w http.ResponseWriter, r *http.Request) {
	website, _, ok := s.websiteFromPath(w, r, "website_id")
	if !ok {
		return
	}
	job, err := s.store.LatestJobForWebsite(r.Context(), website.ID)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve scraping status")
		return
	}
	if job == nil {
		s.errorResponse(w, http.StatusNotFound, "No scraping jobs found for this website")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.JobResponse{Envelope: types.OK(""), Job: job})
}
