package server

import (
	"net/http"
	"strings"

	"github.com/pagebound/pagebound/internal/model"
	"github.com/pagebound/pagebound/internal/pipeline"
)

// handleCallbackRoute dispatches the stage-specific callback endpoints invoked
// by the processing worker. Every payload is validated before any state is
// touched; duplicate completions are absorbed by the pipeline service.
func (s *Server) handleCallbackRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	kind := strings.TrimPrefix(r.URL.Path, "/callbacks/")
	switch kind {
	case "processing":
		s.handleProcessingCallback(w, r)
	case "download":
		s.handleDownloadCallback(w, r)
	case "extraction":
		s.handleExtractionCallback(w, r)
	case "summary":
		s.handleSummaryCallback(w, r)
	case "questions":
		s.handleQuestionsCallback(w, r)
	case "embeddings":
		s.handleEmbeddingsCallback(w, r)
	case "error":
		s.handleErrorCallback(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleProcessingCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string      `json:"documentId"`
		Stage      model.Stage `json:"stage"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DocumentID == "" || req.Stage == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "documentId and stage are required"})
		return
	}
	job, err := s.pipeline.BeginStage(r.Context(), req.DocumentID, req.Stage)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleDownloadCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"documentId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DocumentID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "documentId is required"})
		return
	}
	job, err := s.pipeline.CompleteDownload(r.Context(), req.DocumentID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleExtractionCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"documentId"`
		Content    string `json:"content"`
		Pages      int    `json:"pages"`
		Words      int    `json:"words"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DocumentID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "documentId is required"})
		return
	}
	job, err := s.pipeline.CompleteExtraction(r.Context(), req.DocumentID, req.Content, req.Pages, req.Words)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleSummaryCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"documentId"`
		Summary    string `json:"summary"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DocumentID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "documentId is required"})
		return
	}
	job, err := s.pipeline.CompleteSummary(r.Context(), req.DocumentID, req.Summary)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleQuestionsCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string                   `json:"documentId"`
		Questions  []pipeline.QuestionInput `json:"questions"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DocumentID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "documentId is required"})
		return
	}
	job, err := s.pipeline.CompleteQuestions(r.Context(), req.DocumentID, req.Questions)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleEmbeddingsCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID       string                `json:"documentId"`
		Chunks           []pipeline.ChunkInput `json:"chunks"`
		ProcessingTimeMS int64                 `json:"processingTime"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DocumentID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "documentId is required"})
		return
	}
	job, err := s.pipeline.CompleteEmbeddings(r.Context(), req.DocumentID, req.Chunks, req.ProcessingTimeMS)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleErrorCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string      `json:"documentId"`
		Stage      model.Stage `json:"stage,omitempty"`
		Error      string      `json:"error"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DocumentID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "documentId is required"})
		return
	}
	job, err := s.pipeline.ReportError(r.Context(), req.DocumentID, req.Stage, req.Error)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}
