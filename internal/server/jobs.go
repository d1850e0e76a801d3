package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pagebound/pagebound/internal/model"
	"github.com/pagebound/pagebound/internal/pipeline"
)

// handleIngestions accepts an ingestion request from the catalog and kicks the
// pipeline off.
func (s *Server) handleIngestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		DocumentID      string            `json:"documentId"`
		Title           string            `json:"title"`
		Authors         []string          `json:"authors"`
		Categories      []string          `json:"categories"`
		SourceURL       string            `json:"sourceUrl"`
		DirectSourceURL string            `json:"directSourceUrl"`
		Metadata        map[string]string `json:"metadata"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := s.pipeline.StartIngestion(r.Context(), pipeline.IngestRequest{
		DocumentID:      req.DocumentID,
		Title:           req.Title,
		Authors:         req.Authors,
		Categories:      req.Categories,
		SourceURL:       req.SourceURL,
		DirectSourceURL: req.DirectSourceURL,
		Metadata:        req.Metadata,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

// handleJobs lists jobs with status/document filters and pagination, newest
// first. Error messages ride along so failures are diagnosable without logs.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	filter := pipeline.JobFilter{
		Status:     model.JobStatus(q.Get("status")),
		DocumentID: q.Get("documentId"),
	}
	if v := q.Get("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filter.Page = parsed
		}
	}
	if v := q.Get("pageSize"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filter.PageSize = parsed
		}
	}
	jobs, err := s.pipeline.ListJobs(r.Context(), filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*model.ProcessingJob{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleJobRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleJob(w, r, id)
		return
	}
	if parts[1] == "retry" {
		s.handleRetry(w, r, id)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	job, err := s.pipeline.Job(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// handleRetry applies the retry controller and re-dispatches, returning the
// updated job or the structured state-conflict error.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	job, err := s.pipeline.Retry(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}
