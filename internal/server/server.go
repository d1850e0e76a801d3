// Package server exposes the HTTP surface: worker callbacks, operator job
// endpoints, and the document chat interface.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pagebound/pagebound/internal/chat"
	"github.com/pagebound/pagebound/internal/config"
	"github.com/pagebound/pagebound/internal/model"
	"github.com/pagebound/pagebound/internal/pipeline"
	"github.com/pagebound/pagebound/internal/repository"
	"github.com/pagebound/pagebound/internal/s3storage"
)

// Server stitches together configuration, the pipeline service, the answer
// composer, and artifact storage behind HTTP handlers.
type Server struct {
	cfg      *config.Config
	pipeline *pipeline.Service
	composer *chat.Composer
	docs     *repository.DocumentRepository
	store    *s3storage.Storage
	logger   *slog.Logger
	server   *http.Server
	once     sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, pipe *pipeline.Service, composer *chat.Composer, docs *repository.DocumentRepository, store *s3storage.Storage) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: pipe,
		composer: composer,
		docs:     docs,
		store:    store,
		logger:   slog.Default().With("component", "server"),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: corsMiddleware(s.loggingMiddleware(s.Routes())),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", "address", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Routes builds the route table. Exposed for handler tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ingestions", s.handleIngestions)
	mux.HandleFunc("/callbacks/", s.requireCallbackAuth(s.handleCallbackRoute))
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobRoute)
	mux.HandleFunc("/documents/", s.handleDocumentRoute)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondError writes the structured error body. State-conflict responses
// carry enough detail (embedded in the message) for an operator to decide the
// next step without log access.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrValidation), errors.Is(err, chat.ErrNoUserMessage):
		respondJSON(w, http.StatusBadRequest, errorBody(err))
	case errors.Is(err, model.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody(err))
	case errors.Is(err, pipeline.ErrRetryLimitExceeded), errors.Is(err, pipeline.ErrInvalidState):
		respondJSON(w, http.StatusConflict, errorBody(err))
	case errors.Is(err, pipeline.ErrDispatch):
		respondJSON(w, http.StatusBadGateway, errorBody(err))
	default:
		s.logger.Error("request failed", "err", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
