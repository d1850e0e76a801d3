package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pagebound/pagebound/internal/chat"
	"github.com/pagebound/pagebound/internal/model"
	"github.com/pagebound/pagebound/internal/s3storage"
)

func (s *Server) handleDocumentRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/documents/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	switch parts[1] {
	case "chat":
		s.handleChat(w, r, id)
	case "questions":
		s.handleQuestions(w, r, id)
	case "artifact-url":
		s.handleArtifactURL(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// handleChat answers a conversation about a document. A degraded answer is
// still a 200 with its method field; only total generation failure is an
// error, deliberately distinct from a successful-but-ungrounded response.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	answer, err := s.composer.Answer(r.Context(), id, req.Messages)
	if err != nil {
		s.respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, answer)
}

func (s *Server) respondChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNoUserMessage), errors.Is(err, model.ErrNotFound):
		s.respondError(w, err)
	default:
		s.logger.Error("chat answer failed", "err", err)
		respondJSON(w, http.StatusBadGateway, map[string]string{"error": "unable to answer right now"})
	}
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	questions, err := s.docs.Questions(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if questions == nil {
		questions = []model.SuggestedQuestion{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// handleArtifactURL presigns a short-lived URL for the extracted-text
// artifact.
func (s *Server) handleArtifactURL(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	doc, err := s.docs.Document(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if doc.ExtractionStatus != model.StageCompleted {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "artifact not available yet"})
		return
	}
	url, err := s.store.PresignArtifactURL(r.Context(), s3storage.ExtractedTextKey(id), s.cfg.SignedURLTTL)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}
