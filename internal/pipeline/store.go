package pipeline

import (
	"context"
	"time"

	"github.com/pagebound/pagebound/internal/model"
)

// JobFilter narrows and pages a job listing. Zero values mean "no filter".
type JobFilter struct {
	Status     model.JobStatus
	DocumentID string
	Page       int
	PageSize   int
}

// ExtractedContent is the extraction stage's write to the owning document.
type ExtractedContent struct {
	Content     string
	ContentHash string
	Pages       int
	Words       int
}

// StageArtifacts are the downstream writes that must land in the same
// transaction as a stage transition, so consumers never observe a completed
// stage without its artifact (or vice versa).
type StageArtifacts struct {
	Content   *ExtractedContent
	Summary   *string
	Questions []model.SuggestedQuestion
	// Chunks become the next embedding version for the document; the store
	// assigns the version number and inserts the whole set atomically.
	Chunks []model.EmbeddingChunk
}

// JobStore persists processing jobs. UpdateJob is optimistic: it only applies
// when the row's updated_at still equals expectedUpdatedAt, returning
// model.ErrConflict otherwise so the caller can re-read and re-apply.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.ProcessingJob) error
	JobByID(ctx context.Context, id string) (*model.ProcessingJob, error)
	JobByDocument(ctx context.Context, documentID string) (*model.ProcessingJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*model.ProcessingJob, error)
	UpdateJob(ctx context.Context, job *model.ProcessingJob, expectedUpdatedAt time.Time, artifacts *StageArtifacts) error
}

// DocumentStore is the pipeline's view of document records: source identifiers
// for dispatch, upserted when ingestion is requested.
type DocumentStore interface {
	Document(ctx context.Context, id string) (*model.Document, error)
	EnsureDocument(ctx context.Context, doc *model.Document) error
}
