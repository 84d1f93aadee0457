package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jonathan/blitz/internal/db"
	"github.com/jonathan/blitz/internal/fetch"
	"github.com/jonathan/blitz/internal/scrape"
	"github.com/jonathan/blitz/internal/types"
)

// Snippet list and search page sizes.
const (
	snippetsPerPage    = 50
	maxSnippetsPerPage = 100
	searchPerPage      = 20
	maxSearchPerPage   = 50
)

// handleListSnippets lists extracted snippets on the caller's projects.
func (s *Server) handleListSnippets(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve snippets")
		return
	}
	projectID, err := queryUUID(r, "project_id")
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve snippets")
		return
	}
	q := r.URL.Query()
	page := pageParams(r, snippetsPerPage, maxSnippetsPerPage)

	snippets, total, err := s.store.ListSnippets(r.Context(), db.SnippetFilters{
		VisibleTo: visibleTo(user),
		ProjectID: projectID,
		Status:    q.Get("status"),
		Search:    strings.TrimSpace(q.Get("search")),
		Limit:     page.Limit(),
		Offset:    page.Offset(),
	})
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve snippets")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.SnippetListResponse{
		Envelope:   types.OK(""),
		Snippets:   snippets,
		Pagination: paginate(page, total),
	})
}

// handleGetSnippet returns one snippet.
func (s *Server) handleGetSnippet(w http.ResponseWriter, r *http.Request) {
	snippet, _, ok := s.snippetFromPath(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, types.SnippetResponse{Envelope: types.OK(""), Snippet: snippet})
}

// handleReviewSnippet approves or rejects a snippet. An empty body approves.
func (s *Server) handleReviewSnippet(w http.ResponseWriter, r *http.Request) {
	snippet, access, ok := s.snippetFromPath(w, r)
	if !ok {
		return
	}
	if !access.canEdit() {
		s.handleError(w, r, &ErrForbidden{}, "Failed to review snippet")
		return
	}
	var req types.ReviewSnippetRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Failed to review snippet")
		return
	}
	if req.Status == "" {
		req.Status = types.SnippetApproved
	}
	if req.Status != types.SnippetApproved && req.Status != types.SnippetRejected {
		s.errorResponse(w, http.StatusBadRequest, "Status must be approved or rejected")
		return
	}

	userID, _ := callerID(r)
	reviewed, err := s.store.ReviewSnippet(r.Context(), snippet.ID, *userID, req.Status, strings.TrimSpace(req.ReviewNotes))
	if err != nil {
		s.handleError(w, r, err, "Failed to review snippet")
		return
	}
	if reviewed == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "Snippet", ID: snippet.ID}, "Failed to review snippet")
		return
	}
	s.audit(r, userID, "review_snippet", "snippet", snippet.ID.String(), map[string]any{"status": req.Status})
	s.jsonResponse(w, http.StatusOK, types.SnippetResponse{
		Envelope: types.OK("Snippet " + req.Status),
		Snippet:  reviewed,
	})
}

// handleListRules lists a project's extraction rules, highest priority first.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve rules")
		return
	}
	projectID, err := queryUUID(r, "project_id")
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve rules")
		return
	}
	if projectID == nil {
		s.errorResponse(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if _, err := s.projectFor(r.Context(), user, *projectID); err != nil {
		s.handleError(w, r, err, "Failed to retrieve rules")
		return
	}
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active_only"))

	rules, err := s.store.ListRules(r.Context(), *projectID, activeOnly)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve rules")
		return
	}
	if rules == nil {
		rules = []types.ExtractionRule{}
	}
	s.jsonResponse(w, http.StatusOK, types.RuleListResponse{Envelope: types.OK(""), Rules: rules})
}

// handleCreateRule adds an extraction rule to a project the caller can edit.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to create rule")
		return
	}
	var req types.CreateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Failed to create rule")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateStruct(&req); err != nil {
		s.handleError(w, r, err, "Failed to create rule")
		return
	}
	if _, err := s.editableProject(r.Context(), user, req.ProjectID); err != nil {
		s.handleError(w, r, err, "Failed to create rule")
		return
	}

	rule, err := s.store.CreateRule(r.Context(), &req)
	if err != nil {
		s.handleError(w, r, err, "Failed to create rule")
		return
	}
	s.audit(r, &user.ID, "create", "extraction_rule", rule.ID.String(),
		map[string]any{"project_id": rule.ProjectID.String(), "rule_type": rule.RuleType})
	s.jsonResponse(w, http.StatusCreated, types.RuleResponse{
		Envelope: types.OK("Extraction rule created successfully"),
		Rule:     rule,
	})
}

// handleDeleteRule removes an extraction rule.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to delete rule")
		return
	}
	ruleID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err, "Failed to delete rule")
		return
	}
	rule, err := s.store.GetRule(r.Context(), ruleID)
	if err != nil {
		s.handleError(w, r, err, "Failed to delete rule")
		return
	}
	if rule == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "Rule", ID: ruleID}, "Failed to delete rule")
		return
	}
	if _, err := s.editableProject(r.Context(), user, rule.ProjectID); err != nil {
		s.handleError(w, r, err, "Failed to delete rule")
		return
	}
	if err := s.store.DeleteRule(r.Context(), ruleID); err != nil {
		s.handleError(w, r, notFound(err, "Rule", ruleID), "Failed to delete rule")
		return
	}
	s.audit(r, &user.ID, "delete", "extraction_rule", ruleID.String(), nil)
	s.jsonResponse(w, http.StatusOK, types.MessageResponse{Envelope: types.OK("Extraction rule deleted successfully")})
}

// handleExtractContent re-runs extraction rules over a stored page and saves
// the results as pending snippets. Without rule_id every active rule of the
// page's project runs; a named rule runs even when inactive.
func (s *Server) handleExtractContent(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Content extraction failed")
		return
	}
	var req types.ExtractRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err, "Content extraction failed")
		return
	}
	if err := s.validateStruct(&req); err != nil {
		s.handleError(w, r, err, "Content extraction failed")
		return
	}

	ctx := r.Context()
	page, err := s.store.GetPage(ctx, req.PageID)
	if err != nil {
		s.handleError(w, r, err, "Content extraction failed")
		return
	}
	if page == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "Page", ID: req.PageID}, "Content extraction failed")
		return
	}
	website, err := s.store.GetWebsite(ctx, page.WebsiteID)
	if err != nil {
		s.handleError(w, r, err, "Content extraction failed")
		return
	}
	if website == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "Page", ID: req.PageID}, "Content extraction failed")
		return
	}
	if _, err := s.editableProject(ctx, user, website.ProjectID); err != nil {
		s.handleError(w, r, err, "Content extraction failed")
		return
	}

	var rules []types.ExtractionRule
	if req.RuleID != nil {
		rule, err := s.store.GetRule(ctx, *req.RuleID)
		if err != nil {
			s.handleError(w, r, err, "Content extraction failed")
			return
		}
		if rule == nil || rule.ProjectID != website.ProjectID {
			s.handleError(w, r, &ErrNotFound{Resource: "Rule", ID: *req.RuleID}, "Content extraction failed")
			return
		}
		rule.IsActive = true
		rules = []types.ExtractionRule{*rule}
	} else if rules, err = s.store.ListRules(ctx, website.ProjectID, true); err != nil {
		s.handleError(w, r, err, "Content extraction failed")
		return
	}
	if len(rules) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "No active extraction rules found")
		return
	}
	if strings.TrimSpace(page.RawHTML) == "" {
		s.errorResponse(w, http.StatusBadRequest, "Page has no stored HTML")
		return
	}
	doc, err := fetch.Parse(page.URL, page.RawHTML)
	if err != nil {
		s.handleError(w, r, err, "Content extraction failed")
		return
	}

	snippets := []types.Snippet{}
	for _, ex := range scrape.Extract(doc, page.ExtractedText, rules, s.logger) {
		meta, _ := json.Marshal(map[string]any{"rule": ex.RuleName, "method": "manual"})
		ruleID := ex.RuleID
		id, err := s.store.CreateSnippet(ctx, &db.SnippetInput{
			PageID:           page.ID,
			ExtractionRuleID: &ruleID,
			Content:          ex.Content,
			Context:          ex.Context,
			ConfidenceScore:  ex.Confidence,
			SourceURL:        page.URL,
			Metadata:         meta,
		})
		if err != nil {
			s.handleError(w, r, err, "Content extraction failed")
			return
		}
		snippet, err := s.store.GetSnippet(ctx, id)
		if err != nil {
			s.handleError(w, r, err, "Content extraction failed")
			return
		}
		if snippet != nil {
			snippets = append(snippets, *snippet)
		}
	}

	s.audit(r, &user.ID, "extract_content", "page", page.ID.String(), map[string]any{"snippets_extracted": len(snippets)})
	s.jsonResponse(w, http.StatusOK, types.ExtractResponse{
		Envelope: types.OK(fmt.Sprintf("Extracted %d snippets", len(snippets))),
		Snippets: snippets,
	})
}

// handleSearchContent runs a full-text search over the pages the caller can see.
func (s *Server) handleSearchContent(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Search failed")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.errorResponse(w, http.StatusBadRequest, "Search query is required")
		return
	}
	projectID, err := queryUUID(r, "project_id")
	if err != nil {
		s.handleError(w, r, err, "Search failed")
		return
	}
	page := pageParams(r, searchPerPage, maxSearchPerPage)

	results, total, err := s.store.SearchPages(r.Context(), db.PageSearch{
		Query:     query,
		VisibleTo: visibleTo(user),
		ProjectID: projectID,
		Limit:     page.Limit(),
		Offset:    page.Offset(),
	})
	if err != nil {
		s.handleError(w, r, err, "Search failed")
		return
	}
	s.jsonResponse(w, http.StatusOK, types.SearchResponse{
		Envelope:   types.OK(""),
		Results:    results,
		Pagination: paginate(page, total),
	})
}

// snippetFromPath resolves {id} to a snippet the caller can see.
func (s *Server) snippetFromPath(w http.ResponseWriter, r *http.Request) (*types.Snippet, *projectAccess, bool) {
	user, err := s.currentUser(r)
	if err != nil {
		s.handleError(w, r, err, "Failed to load user")
		return nil, nil, false
	}
	snippetID, err := pathUUID(r, "id")
	if err != nil {
		s.handleError(w, r, err, "Invalid snippet id")
		return nil, nil, false
	}
	snippet, err := s.store.GetSnippet(r.Context(), snippetID)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve snippet")
		return nil, nil, false
	}
	if snippet == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "Snippet", ID: snippetID}, "Failed to retrieve snippet")
		return nil, nil, false
	}
	access, err := s.projectFor(r.Context(), user, snippet.ProjectID)
	if err != nil {
		s.handleError(w, r, err, "Failed to retrieve snippet")
		return nil, nil, false
	}
	return snippet, access, true
}
