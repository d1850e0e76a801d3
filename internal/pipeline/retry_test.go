package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagebound/pagebound/internal/model"
)

func failJob(t *testing.T, svc *Service, documentID string) *model.ProcessingJob {
	t.Helper()
	ctx := context.Background()
	_, err := svc.CompleteDownload(ctx, documentID)
	require.NoError(t, err)
	_, err = svc.CompleteExtraction(ctx, documentID, "text", 1, 1)
	require.NoError(t, err)
	job, err := svc.ReportError(ctx, documentID, model.StageSummary, "model timeout")
	require.NoError(t, err)
	require.Equal(t, model.JobFailed, job.Status)
	return job
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("resets stages and re-dispatches", func(t *testing.T) {
		svc, _, _, dispatcher := newTestService(t)
		_, err := svc.StartIngestion(ctx, IngestRequest{DocumentID: "doc-1", SourceURL: "sources/doc-1.pdf"})
		require.NoError(t, err)
		failed := failJob(t, svc, "doc-1")

		job, err := svc.Retry(ctx, failed.ID)
		require.NoError(t, err)

		assert.Equal(t, model.JobPending, job.Status)
		assert.Equal(t, 1, job.RetryCount)
		for _, stage := range model.Stages {
			assert.Equal(t, model.StagePending, job.StageStatusOf(stage))
		}
		assert.Nil(t, job.ErrorMessage)
		assert.Nil(t, job.FailedAt)
		assert.Nil(t, job.CompletedAt)
		assert.NotNil(t, job.NextAttemptAt)
		assert.Equal(t, 2, dispatcher.count())
		assert.Equal(t, "sources/doc-1.pdf", dispatcher.requests[1].SourceURL)
	})

	t.Run("enforces the retry cap", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.StartIngestion(ctx, IngestRequest{DocumentID: "doc-1", SourceURL: "s"})
		require.NoError(t, err)
		job := failJob(t, svc, "doc-1")

		for i := 0; i < 3; i++ {
			retried, err := svc.Retry(ctx, job.ID)
			require.NoError(t, err)
			_, err = svc.ReportError(ctx, "doc-1", model.StageDownload, "still broken")
			require.NoError(t, err)
			assert.Equal(t, i+1, retried.RetryCount)
		}

		_, err = svc.Retry(ctx, job.ID)
		assert.ErrorIs(t, err, ErrRetryLimitExceeded)
	})

	t.Run("limit errors carry the counts", func(t *testing.T) {
		svc, jobs, _, _ := newTestService(t)
		_, err := svc.StartIngestion(ctx, IngestRequest{DocumentID: "doc-1", SourceURL: "s"})
		require.NoError(t, err)
		job := failJob(t, svc, "doc-1")

		stored, err := jobs.JobByID(ctx, job.ID)
		require.NoError(t, err)
		stored.RetryCount = stored.MaxRetries
		require.NoError(t, jobs.UpdateJob(ctx, stored, stored.UpdatedAt, nil))

		_, err = svc.Retry(ctx, job.ID)
		require.ErrorIs(t, err, ErrRetryLimitExceeded)
		assert.Contains(t, err.Error(), "3 of 3")
	})

	t.Run("rejects retry of a running job", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		started, err := svc.StartIngestion(ctx, IngestRequest{DocumentID: "doc-1", SourceURL: "s"})
		require.NoError(t, err)

		_, err = svc.Retry(ctx, started.ID)
		assert.ErrorIs(t, err, ErrInvalidState)

		_, err = svc.BeginStage(ctx, "doc-1", model.StageDownload)
		require.NoError(t, err)
		_, err = svc.Retry(ctx, started.ID)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("allows re-running a completed job", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		started, err := svc.StartIngestion(ctx, IngestRequest{DocumentID: "doc-1", SourceURL: "s"})
		require.NoError(t, err)

		_, err = svc.CompleteDownload(ctx, "doc-1")
		require.NoError(t, err)
		_, err = svc.CompleteExtraction(ctx, "doc-1", "text", 1, 1)
		require.NoError(t, err)
		_, err = svc.CompleteSummary(ctx, "doc-1", "summary")
		require.NoError(t, err)
		_, err = svc.CompleteQuestions(ctx, "doc-1", []QuestionInput{{Question: "q?", Answer: "a"}})
		require.NoError(t, err)
		done, err := svc.CompleteEmbeddings(ctx, "doc-1", []ChunkInput{
			{ChunkIndex: 0, ChunkText: "text", WordCount: 1, Embedding: embedding(0.1)},
		}, 10)
		require.NoError(t, err)
		require.Equal(t, model.JobCompleted, done.Status)

		job, err := svc.Retry(ctx, started.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobPending, job.Status)
		assert.Nil(t, job.CompletedAt)
	})

	t.Run("document load failure leaves the job untouched and retryable", func(t *testing.T) {
		svc, jobs, docs, _ := newTestService(t)
		_, err := svc.StartIngestion(ctx, IngestRequest{DocumentID: "doc-1", SourceURL: "s"})
		require.NoError(t, err)
		failed := failJob(t, svc, "doc-1")

		docs.getErr = errors.New("database unavailable")
		_, err = svc.Retry(ctx, failed.ID)
		require.Error(t, err)

		job, err := jobs.JobByID(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobFailed, job.Status)
		assert.Equal(t, 0, job.RetryCount)

		docs.getErr = nil
		job, err = svc.Retry(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobPending, job.Status)
		assert.Equal(t, 1, job.RetryCount)
	})

	t.Run("store failure mid-retry rolls back to failed, not retrying", func(t *testing.T) {
		svc, jobs, _, _ := newTestService(t)
		_, err := svc.StartIngestion(ctx, IngestRequest{DocumentID: "doc-1", SourceURL: "s"})
		require.NoError(t, err)
		failed := failJob(t, svc, "doc-1")

		// The retrying write lands, the pending write fails, the rollback
		// write lands again.
		jobs.failOnCall = jobs.updateCalls + 2
		jobs.failErr = errors.New("database unavailable")
		_, err = svc.Retry(ctx, failed.ID)
		require.Error(t, err)

		job, err := jobs.JobByID(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
		assert.Contains(t, *job.ErrorMessage, "retry aborted")

		job, err = svc.Retry(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobPending, job.Status)
	})

	t.Run("dispatch failure on retry marks the job failed again", func(t *testing.T) {
		svc, jobs, _, dispatcher := newTestService(t)
		_, err := svc.StartIngestion(ctx, IngestRequest{DocumentID: "doc-1", SourceURL: "s"})
		require.NoError(t, err)
		failed := failJob(t, svc, "doc-1")

		dispatcher.err = errors.New("queue unavailable")
		_, err = svc.Retry(ctx, failed.ID)
		assert.ErrorIs(t, err, ErrDispatch)

		job, err := jobs.JobByID(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobFailed, job.Status)
		assert.Equal(t, 1, job.RetryCount)
		require.NotNil(t, job.ErrorMessage)
		assert.Contains(t, *job.ErrorMessage, "dispatch failed")
	})
}
