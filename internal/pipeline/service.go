package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagebound/pagebound/internal/model"
)

// updateAttempts bounds the optimistic re-read loop under racing callbacks.
const updateAttempts = 5

// Service applies stage callbacks and retry decisions to processing jobs. All
// job mutations flow through here; handlers stay thin.
type Service struct {
	jobs       JobStore
	docs       DocumentStore
	dispatcher Dispatcher
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the pipeline service. maxRetries caps job retries and
// is stamped onto every job at creation.
func NewService(jobs JobStore, docs DocumentStore, dispatcher Dispatcher, maxRetries int, opts ...Option) *Service {
	if maxRetries < 0 {
		maxRetries = 0
	}
	s := &Service{
		jobs:       jobs,
		docs:       docs,
		dispatcher: dispatcher,
		maxRetries: maxRetries,
		logger:     slog.Default().With("component", "pipeline"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestRequest asks for a document to be put through the pipeline.
type IngestRequest struct {
	DocumentID      string
	Title           string
	Authors         []string
	Categories      []string
	SourceURL       string
	DirectSourceURL string
	Metadata        map[string]string
}

// StartIngestion records the document, creates its PENDING job, and dispatches
// it to the processing worker. A document with an existing job must go through
// Retry instead; ErrInvalidState is returned for it.
func (s *Service) StartIngestion(ctx context.Context, req IngestRequest) (*model.ProcessingJob, error) {
	if req.DocumentID == "" || req.SourceURL == "" {
		return nil, fmt.Errorf("%w: documentId and sourceUrl are required", ErrValidation)
	}
	if _, err := s.jobs.JobByDocument(ctx, req.DocumentID); err == nil {
		return nil, fmt.Errorf("%w: document %s already has a job", ErrInvalidState, req.DocumentID)
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	doc := &model.Document{
		ID:               req.DocumentID,
		Title:            req.Title,
		Authors:          req.Authors,
		Categories:       req.Categories,
		SourceURL:        req.SourceURL,
		DirectSourceURL:  req.DirectSourceURL,
		ExtractionStatus: model.StagePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.docs.EnsureDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("ensure document: %w", err)
	}

	job := &model.ProcessingJob{
		ID:         uuid.NewString(),
		DocumentID: req.DocumentID,
		Status:     model.JobPending,
		RetryCount: 0,
		MaxRetries: s.maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	job.ResetStages()
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	return s.dispatch(ctx, job, DispatchRequest{
		DocumentID:      req.DocumentID,
		SourceURL:       req.SourceURL,
		DirectSourceURL: req.DirectSourceURL,
		Metadata:        req.Metadata,
	})
}

// dispatch hands the job to the worker. On dispatch failure the job is rolled
// back to FAILED so it never sits as a silent PENDING row nobody retries.
func (s *Service) dispatch(ctx context.Context, job *model.ProcessingJob, req DispatchRequest) (*model.ProcessingJob, error) {
	if err := s.dispatcher.Dispatch(ctx, req); err != nil {
		s.logger.Error("dispatch failed", "documentId", job.DocumentID, "jobId", job.ID, "err", err)
		msg := "dispatch failed: " + err.Error()
		rolledBack, rbErr := s.mutateJob(ctx, job.ID, func(j *model.ProcessingJob) error {
			now := s.now().UTC()
			j.SetStageStatus(model.StageDownload, model.StageFailed)
			j.ErrorMessage = &msg
			j.FailedAt = &now
			j.Status = DeriveJobStatus(j.StageStatuses(), false)
			return nil
		}, nil)
		if rbErr != nil {
			s.logger.Error("dispatch rollback failed", "jobId", job.ID, "err", rbErr)
		} else {
			job = rolledBack
		}
		return nil, fmt.Errorf("%w: job %s: %v", ErrDispatch, job.ID, err)
	}
	return s.mutateJob(ctx, job.ID, func(j *model.ProcessingJob) error {
		now := s.now().UTC()
		j.LastAttemptAt = &now
		return nil
	}, nil)
}

// BeginStage marks a stage as in flight. It only moves pending stages; any
// other current status makes it a no-op so late or duplicated notifications
// never regress completed work.
func (s *Service) BeginStage(ctx context.Context, documentID string, stage model.Stage) (*model.ProcessingJob, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrValidation, stage)
	}
	return s.mutateJobByDocument(ctx, documentID, func(j *model.ProcessingJob) error {
		if j.StageStatusOf(stage) != model.StagePending {
			return errNoop
		}
		j.SetStageStatus(stage, model.StageProcessing)
		j.Status = DeriveJobStatus(j.StageStatuses(), false)
		return nil
	}, nil)
}

// CompleteDownload records the download stage callback.
func (s *Service) CompleteDownload(ctx context.Context, documentID string) (*model.ProcessingJob, error) {
	return s.completeStage(ctx, documentID, model.StageDownload, nil, nil)
}

// CompleteExtraction records the extraction stage callback and writes the
// content artifact onto the document in the same transaction.
func (s *Service) CompleteExtraction(ctx context.Context, documentID, content string, pages, words int) (*model.ProcessingJob, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: extraction callback requires content", ErrValidation)
	}
	sum := sha256.Sum256([]byte(content))
	artifacts := &StageArtifacts{Content: &ExtractedContent{
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
		Pages:       pages,
		Words:       words,
	}}
	return s.completeStage(ctx, documentID, model.StageExtraction, artifacts, func(j *model.ProcessingJob) {
		j.PagesExtracted = pages
		j.WordsExtracted = words
	})
}

// CompleteSummary records the summary stage callback.
func (s *Service) CompleteSummary(ctx context.Context, documentID, summary string) (*model.ProcessingJob, error) {
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("%w: summary callback requires summary text", ErrValidation)
	}
	artifacts := &StageArtifacts{Summary: &summary}
	return s.completeStage(ctx, documentID, model.StageSummary, artifacts, func(j *model.ProcessingJob) {
		j.SummaryLength = len(summary)
	})
}

// QuestionInput is one generated question/answer pair from the worker.
type QuestionInput struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CompleteQuestions records the questions stage callback. Generated questions
// replace the previous generated set; manually authored ones are untouched.
func (s *Service) CompleteQuestions(ctx context.Context, documentID string, questions []QuestionInput) (*model.ProcessingJob, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: questions callback requires at least one question", ErrValidation)
	}
	now := s.now().UTC()
	rows := make([]model.SuggestedQuestion, 0, len(questions))
	for _, q := range questions {
		if strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.Answer) == "" {
			return nil, fmt.Errorf("%w: question entries require question and answer", ErrValidation)
		}
		rows = append(rows, model.SuggestedQuestion{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Question:   q.Question,
			Answer:     q.Answer,
			Generated:  true,
			CreatedAt:  now,
		})
	}
	artifacts := &StageArtifacts{Questions: rows}
	return s.completeStage(ctx, documentID, model.StageQuestions, artifacts, func(j *model.ProcessingJob) {
		j.QuestionsGenerated = len(rows)
	})
}

// ChunkInput is one embedded chunk delivered by the worker.
type ChunkInput struct {
	ChunkIndex int       `json:"chunkIndex"`
	ChunkText  string    `json:"chunkText"`
	PageNumber *int      `json:"pageNumber,omitempty"`
	WordCount  int       `json:"wordCount"`
	Embedding  []float32 `json:"embedding"`
}

// CompleteEmbeddings records the embedding stage callback. The chunk set
// becomes a fresh version, replacing the previous one atomically; old rows are
// kept but excluded from default queries.
func (s *Service) CompleteEmbeddings(ctx context.Context, documentID string, chunks []ChunkInput, processingTimeMS int64) (*model.ProcessingJob, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: embeddings callback requires at least one chunk", ErrValidation)
	}
	now := s.now().UTC()
	rows := make([]model.EmbeddingChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != model.EmbeddingDimensions {
			return nil, fmt.Errorf("%w: chunk %d embedding has %d dimensions, want %d",
				ErrValidation, c.ChunkIndex, len(c.Embedding), model.EmbeddingDimensions)
		}
		rows = append(rows, model.EmbeddingChunk{
			DocumentID: documentID,
			ChunkIndex: c.ChunkIndex,
			ChunkText:  c.ChunkText,
			PageNumber: c.PageNumber,
			WordCount:  c.WordCount,
			Embedding:  c.Embedding,
			CreatedAt:  now,
		})
	}
	artifacts := &StageArtifacts{Chunks: rows}
	return s.completeStage(ctx, documentID, model.StageEmbedding, artifacts, func(j *model.ProcessingJob) {
		j.EmbeddingsCreated = len(rows)
		if processingTimeMS > 0 {
			j.ProcessingTimeMS = processingTimeMS
		}
	})
}

// ReportError records a processing-error callback: the stage is marked FAILED,
// the message stored, and the retry decision left to the retry controller.
// When the worker does not say which stage failed, the first unfinished stage
// is the one charged.
func (s *Service) ReportError(ctx context.Context, documentID string, stage model.Stage, message string) (*model.ProcessingJob, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: error callback requires an error message", ErrValidation)
	}
	if stage != "" && !stage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrValidation, stage)
	}
	return s.mutateJobByDocument(ctx, documentID, func(j *model.ProcessingJob) error {
		target := stage
		if target == "" {
			target = firstUnfinishedStage(j)
		}
		if j.StageStatusOf(target) == model.StageFailed {
			return errNoop
		}
		now := s.now().UTC()
		j.SetStageStatus(target, model.StageFailed)
		j.ErrorMessage = &message
		j.FailedAt = &now
		j.Status = DeriveJobStatus(j.StageStatuses(), false)
		return nil
	}, nil)
}

// Retry re-runs a FAILED job, or an explicitly re-run COMPLETED one. It resets
// all five stages, clears failure bookkeeping, and re-dispatches. Exceeding
// the retry cap fails with ErrRetryLimitExceeded; any status outside
// FAILED/COMPLETED fails with ErrInvalidState. Neither mutates the job.
func (s *Service) Retry(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	job, err := s.jobs.JobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.RetryCount >= job.MaxRetries {
		return nil, fmt.Errorf("%w: job %s has used %d of %d retries",
			ErrRetryLimitExceeded, job.ID, job.RetryCount, job.MaxRetries)
	}
	if job.Status != model.JobFailed && job.Status != model.JobCompleted {
		return nil, fmt.Errorf("%w: job %s is %s, retry requires failed or completed",
			ErrInvalidState, job.ID, job.Status)
	}

	// Load the document before touching the job: a missing document aborts the
	// retry with the job still in its original state.
	doc, err := s.docs.Document(ctx, job.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document for retry: %w", err)
	}

	// Scheduled-but-not-dispatched window: the job reads RETRYING until the
	// dispatch below lands.
	job, err = s.mutateJob(ctx, jobID, func(j *model.ProcessingJob) error {
		now := s.now().UTC()
		j.RetryCount++
		j.ResetStages()
		j.Status = model.JobRetrying
		j.ErrorMessage = nil
		j.CompletedAt = nil
		j.FailedAt = nil
		j.NextAttemptAt = &now
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	job, err = s.mutateJob(ctx, jobID, func(j *model.ProcessingJob) error {
		j.Status = model.JobPending
		return nil
	}, nil)
	if err != nil {
		// RETRYING is only ever transient. Anything that strands the job there
		// would make every later Retry fail its state check, so roll back to
		// FAILED the same way a dispatch failure does.
		s.abortRetry(ctx, jobID, err)
		return nil, err
	}
	return s.dispatch(ctx, job, DispatchRequest{
		DocumentID:      doc.ID,
		SourceURL:       doc.SourceURL,
		DirectSourceURL: doc.DirectSourceURL,
		Metadata:        map[string]string{"title": doc.Title},
	})
}

// abortRetry marks a job FAILED after a retry died between the RETRYING write
// and its dispatch, recording the cause. Best effort: the store that just
// failed may refuse this write too, which is logged and left to the next
// operator look.
func (s *Service) abortRetry(ctx context.Context, jobID string, cause error) {
	msg := "retry aborted: " + cause.Error()
	if _, err := s.mutateJob(ctx, jobID, func(j *model.ProcessingJob) error {
		now := s.now().UTC()
		j.SetStageStatus(model.StageDownload, model.StageFailed)
		j.ErrorMessage = &msg
		j.FailedAt = &now
		j.Status = DeriveJobStatus(j.StageStatuses(), false)
		return nil
	}, nil); err != nil {
		s.logger.Error("retry rollback failed", "jobId", jobID, "err", err)
	}
}

// Job returns a job by id.
func (s *Service) Job(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	return s.jobs.JobByID(ctx, jobID)
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Service) ListJobs(ctx context.Context, filter JobFilter) ([]*model.ProcessingJob, error) {
	return s.jobs.ListJobs(ctx, filter)
}

// errNoop signals that a mutation decided the update is unnecessary, e.g. a
// duplicate callback. The current job is returned unchanged, without an error.
var errNoop = errors.New("no-op")

// completeStage applies a stage completion idempotently: a duplicate callback
// for an already-completed stage returns the job untouched and persists no
// artifacts a second time.
func (s *Service) completeStage(ctx context.Context, documentID string, stage model.Stage, artifacts *StageArtifacts, apply func(*model.ProcessingJob)) (*model.ProcessingJob, error) {
	return s.mutateJobByDocument(ctx, documentID, func(j *model.ProcessingJob) error {
		if j.StageStatusOf(stage) == model.StageCompleted {
			return errNoop
		}
		j.SetStageStatus(stage, model.StageCompleted)
		if apply != nil {
			apply(j)
		}
		j.Status = DeriveJobStatus(j.StageStatuses(), false)
		if j.Status == model.JobCompleted {
			now := s.now().UTC()
			j.CompletedAt = &now
		}
		return nil
	}, artifacts)
}

// mutateJobByDocument is mutateJob keyed by document id.
func (s *Service) mutateJobByDocument(ctx context.Context, documentID string, mutate func(*model.ProcessingJob) error, artifacts *StageArtifacts) (*model.ProcessingJob, error) {
	return s.mutateLocked(ctx, func(ctx context.Context) (*model.ProcessingJob, error) {
		return s.jobs.JobByDocument(ctx, documentID)
	}, mutate, artifacts)
}

// mutateJob re-reads, mutates, and conditionally writes a job, retrying on
// optimistic conflicts so racing callbacks for different stages never clobber
// each other.
func (s *Service) mutateJob(ctx context.Context, jobID string, mutate func(*model.ProcessingJob) error, artifacts *StageArtifacts) (*model.ProcessingJob, error) {
	return s.mutateLocked(ctx, func(ctx context.Context) (*model.ProcessingJob, error) {
		return s.jobs.JobByID(ctx, jobID)
	}, mutate, artifacts)
}

func (s *Service) mutateLocked(ctx context.Context, load func(context.Context) (*model.ProcessingJob, error), mutate func(*model.ProcessingJob) error, artifacts *StageArtifacts) (*model.ProcessingJob, error) {
	var lastErr error
	for attempt := 0; attempt < updateAttempts; attempt++ {
		job, err := load(ctx)
		if err != nil {
			return nil, err
		}
		expected := job.UpdatedAt
		if err := mutate(job); err != nil {
			if errors.Is(err, errNoop) {
				return job, nil
			}
			return nil, err
		}
		job.UpdatedAt = s.now().UTC()
		err = s.jobs.UpdateJob(ctx, job, expected, artifacts)
		if errors.Is(err, model.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, fmt.Errorf("update job after %d attempts: %w", updateAttempts, lastErr)
}

func firstUnfinishedStage(j *model.ProcessingJob) model.Stage {
	for _, stage := range model.Stages {
		if st := j.StageStatusOf(stage); st != model.StageCompleted {
			return stage
		}
	}
	return model.StageEmbedding
}
