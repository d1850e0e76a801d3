package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagebound/pagebound/internal/model"
	"github.com/pagebound/pagebound/internal/pipeline"
)

// JobRepository wraps all SQL for processing jobs. It implements
// pipeline.JobStore.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository constructs a repository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, document_id, status,
	download_status, extraction_status, summary_status, questions_status, embedding_status,
	retry_count, max_retries,
	last_attempt_at, next_attempt_at, completed_at, failed_at, error_message,
	pages_extracted, words_extracted, summary_length, questions_generated, embeddings_created, processing_time_ms,
	created_at, updated_at`

// CreateJob inserts a pending job row.
func (r *JobRepository) CreateJob(ctx context.Context, job *model.ProcessingJob) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO processing_jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`, jobArgs(job)...)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// JobByID returns a job by its id.
func (r *JobRepository) JobByID(ctx context.Context, id string) (*model.ProcessingJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id=$1`, id)
	return scanJob(row)
}

// JobByDocument returns the job owning the given document.
func (r *JobRepository) JobByDocument(ctx context.Context, documentID string) (*model.ProcessingJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE document_id=$1`, documentID)
	return scanJob(row)
}

// ListJobs returns jobs matching the filter, ordered by creation time
// descending with scheduled next-attempt time as tiebreak.
func (r *JobRepository) ListJobs(ctx context.Context, filter pipeline.JobFilter) ([]*model.ProcessingJob, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, "status=$"+strconv.Itoa(len(args)))
	}
	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		where = append(where, "document_id=$"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + jobColumns + ` FROM processing_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, next_attempt_at ASC NULLS LAST"

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, pageSize)
	query += " LIMIT $" + strconv.Itoa(len(args))
	args = append(args, (page-1)*pageSize)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob persists the job guarded by expectedUpdatedAt (optimistic: the
// write only applies when updated_at is unchanged since the read, otherwise
// model.ErrConflict). Stage artifacts, when present, land in the same
// transaction so a completed stage is never visible without its output.
func (r *JobRepository) UpdateJob(ctx context.Context, job *model.ProcessingJob, expectedUpdatedAt time.Time, artifacts *pipeline.StageArtifacts) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE processing_jobs SET
			status=$1,
			download_status=$2, extraction_status=$3, summary_status=$4, questions_status=$5, embedding_status=$6,
			retry_count=$7, max_retries=$8,
			last_attempt_at=$9, next_attempt_at=$10, completed_at=$11, failed_at=$12, error_message=$13,
			pages_extracted=$14, words_extracted=$15, summary_length=$16, questions_generated=$17,
			embeddings_created=$18, processing_time_ms=$19,
			updated_at=$20
		WHERE id=$21 AND updated_at=$22
	`,
		job.Status,
		job.DownloadStatus, job.ExtractionStatus, job.SummaryStatus, job.QuestionsStatus, job.EmbeddingStatus,
		job.RetryCount, job.MaxRetries,
		job.LastAttemptAt, job.NextAttemptAt, job.CompletedAt, job.FailedAt, job.ErrorMessage,
		job.PagesExtracted, job.WordsExtracted, job.SummaryLength, job.QuestionsGenerated,
		job.EmbeddingsCreated, job.ProcessingTimeMS,
		job.UpdatedAt,
		job.ID, expectedUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrConflict
	}

	if artifacts != nil {
		if err := applyArtifacts(ctx, tx, job, artifacts); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// applyArtifacts writes the downstream consumers of a stage transition within
// the job-update transaction.
func applyArtifacts(ctx context.Context, tx pgx.Tx, job *model.ProcessingJob, artifacts *pipeline.StageArtifacts) error {
	if c := artifacts.Content; c != nil {
		_, err := tx.Exec(ctx, `
			UPDATE documents
			SET content=$1, content_hash=$2, page_count=$3, word_count=$4,
				extraction_status=$5, updated_at=$6
			WHERE id=$7
		`, c.Content, c.ContentHash, c.Pages, c.Words, model.StageCompleted, job.UpdatedAt, job.DocumentID)
		if err != nil {
			return fmt.Errorf("store content artifact: %w", err)
		}
	}
	if artifacts.Summary != nil {
		_, err := tx.Exec(ctx, `
			UPDATE documents SET summary=$1, updated_at=$2 WHERE id=$3
		`, *artifacts.Summary, job.UpdatedAt, job.DocumentID)
		if err != nil {
			return fmt.Errorf("store summary: %w", err)
		}
	}
	if len(artifacts.Questions) > 0 {
		// Generated questions are replaced wholesale; manual ones survive.
		if _, err := tx.Exec(ctx, `
			DELETE FROM suggested_questions WHERE document_id=$1 AND generated
		`, job.DocumentID); err != nil {
			return fmt.Errorf("clear generated questions: %w", err)
		}
		for _, q := range artifacts.Questions {
			if _, err := tx.Exec(ctx, `
				INSERT INTO suggested_questions (id, document_id, question, answer, generated, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, q.ID, q.DocumentID, q.Question, q.Answer, q.Generated, q.CreatedAt); err != nil {
				return fmt.Errorf("insert question: %w", err)
			}
		}
	}
	if len(artifacts.Chunks) > 0 {
		var version int
		err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(version),0)+1 FROM embedding_chunks WHERE document_id=$1
		`, job.DocumentID).Scan(&version)
		if err != nil {
			return fmt.Errorf("next chunk version: %w", err)
		}
		batch := &pgx.Batch{}
		for _, c := range artifacts.Chunks {
			batch.Queue(`
				INSERT INTO embedding_chunks (document_id, version, chunk_index, chunk_text, page_number, word_count, embedding, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, job.DocumentID, version, c.ChunkIndex, c.ChunkText, c.PageNumber, c.WordCount, c.Embedding, c.CreatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunk version %d: %w", version, err)
		}
	}
	return nil
}

func jobArgs(j *model.ProcessingJob) []any {
	return []any{
		j.ID, j.DocumentID, j.Status,
		j.DownloadStatus, j.ExtractionStatus, j.SummaryStatus, j.QuestionsStatus, j.EmbeddingStatus,
		j.RetryCount, j.MaxRetries,
		j.LastAttemptAt, j.NextAttemptAt, j.CompletedAt, j.FailedAt, j.ErrorMessage,
		j.PagesExtracted, j.WordsExtracted, j.SummaryLength, j.QuestionsGenerated, j.EmbeddingsCreated, j.ProcessingTimeMS,
		j.CreatedAt, j.UpdatedAt,
	}
}

func scanJob(row pgx.Row) (*model.ProcessingJob, error) {
	var j model.ProcessingJob
	err := row.Scan(
		&j.ID, &j.DocumentID, &j.Status,
		&j.DownloadStatus, &j.ExtractionStatus, &j.SummaryStatus, &j.QuestionsStatus, &j.EmbeddingStatus,
		&j.RetryCount, &j.MaxRetries,
		&j.LastAttemptAt, &j.NextAttemptAt, &j.CompletedAt, &j.FailedAt, &j.ErrorMessage,
		&j.PagesExtracted, &j.WordsExtracted, &j.SummaryLength, &j.QuestionsGenerated, &j.EmbeddingsCreated, &j.ProcessingTimeMS,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
