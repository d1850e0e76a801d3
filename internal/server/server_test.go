package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagebound/pagebound/internal/config"
	"github.com/pagebound/pagebound/internal/model"
	"github.com/pagebound/pagebound/internal/pipeline"
)

const testSecret = "test-callback-secret"

type stubJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.ProcessingJob
}

func (s *stubJobStore) CreateJob(_ context.Context, job *model.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *job
	s.jobs[job.ID] = &c
	return nil
}

func (s *stubJobStore) JobByID(_ context.Context, id string) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	c := *job
	return &c, nil
}

func (s *stubJobStore) JobByDocument(_ context.Context, documentID string) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.DocumentID == documentID {
			c := *job
			return &c, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *stubJobStore) ListJobs(_ context.Context, _ pipeline.JobFilter) ([]*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ProcessingJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		c := *job
		out = append(out, &c)
	}
	return out, nil
}

func (s *stubJobStore) UpdateJob(_ context.Context, job *model.ProcessingJob, expectedUpdatedAt time.Time, _ *pipeline.StageArtifacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return model.ErrNotFound
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return model.ErrConflict
	}
	c := *job
	s.jobs[job.ID] = &c
	return nil
}

type stubDocStore struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func (s *stubDocStore) Document(_ context.Context, id string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	c := *doc
	return &c, nil
}

func (s *stubDocStore) EnsureDocument(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *doc
	s.docs[doc.ID] = &c
	return nil
}

type stubDispatcher struct{ err error }

func (d *stubDispatcher) Dispatch(_ context.Context, _ pipeline.DispatchRequest) error {
	return d.err
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	jobs := &stubJobStore{jobs: make(map[string]*model.ProcessingJob)}
	docs := &stubDocStore{docs: make(map[string]*model.Document)}
	pipe := pipeline.NewService(jobs, docs, &stubDispatcher{}, 3)
	cfg := &config.Config{Address: ":0", CallbackSecret: testSecret}
	return New(cfg, pipe, nil, nil, nil).Routes()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func ingest(t *testing.T, handler http.Handler, documentID string) *model.ProcessingJob {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/ingestions", "", map[string]any{
		"documentId": documentID,
		"title":      "Doc",
		"sourceUrl":  "sources/" + documentID + ".pdf",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job model.ProcessingJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	return &job
}

func TestHealth(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCallbackAuth(t *testing.T) {
	handler := newTestHandler(t)
	payload := map[string]any{"documentId": "doc-1"}

	t.Run("missing token", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/callbacks/download", "", payload)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/callbacks/download", "wrong", payload)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown callback kind", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/callbacks/nope", testSecret, payload)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("valid token reaches the handler", func(t *testing.T) {
		ingest(t, handler, "doc-1")
		rec := doJSON(t, handler, http.MethodPost, "/callbacks/download", testSecret, payload)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func TestCallbackValidation(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("missing document id", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/callbacks/extraction", testSecret, map[string]any{
			"content": "text",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown document", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/callbacks/download", testSecret, map[string]any{
			"documentId": "missing",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("empty extraction content", func(t *testing.T) {
		ingest(t, handler, "doc-1")
		rec := doJSON(t, handler, http.MethodPost, "/callbacks/extraction", testSecret, map[string]any{
			"documentId": "doc-1",
			"content":    "  ",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestIngestions(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("rejects missing fields", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/ingestions", "", map[string]any{"title": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("accepts and returns the pending job", func(t *testing.T) {
		job := ingest(t, handler, "doc-1")
		assert.Equal(t, model.JobPending, job.Status)
		assert.Equal(t, "doc-1", job.DocumentID)
	})

	t.Run("conflicts on duplicate document", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/ingestions", "", map[string]any{
			"documentId": "doc-1",
			"sourceUrl":  "sources/doc-1.pdf",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestJobEndpoints(t *testing.T) {
	handler := newTestHandler(t)
	job := ingest(t, handler, "doc-1")

	t.Run("list", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/jobs", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Jobs []model.ProcessingJob `json:"jobs"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Jobs, 1)
	})

	t.Run("get by id", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/jobs/"+job.ID, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/jobs/unknown", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("retry of a non-failed job conflicts", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/jobs/"+job.ID+"/retry", "", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("retry after failure succeeds", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/callbacks/error", testSecret, map[string]any{
			"documentId": "doc-1",
			"stage":      "download",
			"error":      "fetch failed",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = doJSON(t, handler, http.MethodPost, "/jobs/"+job.ID+"/retry", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var retried model.ProcessingJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &retried))
		assert.Equal(t, model.JobPending, retried.Status)
		assert.Equal(t, 1, retried.RetryCount)
	})
}
