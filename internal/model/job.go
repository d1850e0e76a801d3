// Package model contains the domain types shared across the ingestion pipeline
// and the retrieval layer.
package model

import (
	"time"
)

// Stage identifies one of the five ordered processing steps applied to a
// document. Stages are dispatched together but their callbacks may arrive in
// any order.
type Stage string

const (
	StageDownload   Stage = "download"
	StageExtraction Stage = "extraction"
	StageSummary    Stage = "summary"
	StageQuestions  Stage = "questions"
	StageEmbedding  Stage = "embedding"
)

// Stages lists all pipeline stages in processing order.
var Stages = []Stage{StageDownload, StageExtraction, StageSummary, StageQuestions, StageEmbedding}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageDownload, StageExtraction, StageSummary, StageQuestions, StageEmbedding:
		return true
	}
	return false
}

// StageStatus describes the lifecycle of a single stage.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageProcessing StageStatus = "processing"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// JobStatus is the aggregate status derived from the five stage statuses.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobRetrying   JobStatus = "retrying"
)

// ProcessingJob tracks one document-ingestion lineage, reused across retries of
// the same document. Rows are never deleted; the timestamps form the audit
// trail.
type ProcessingJob struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Status     JobStatus `json:"status"`

	DownloadStatus   StageStatus `json:"downloadStatus"`
	ExtractionStatus StageStatus `json:"extractionStatus"`
	SummaryStatus    StageStatus `json:"summaryStatus"`
	QuestionsStatus  StageStatus `json:"questionsStatus"`
	EmbeddingStatus  StageStatus `json:"embeddingStatus"`

	RetryCount int `json:"retryCount"`
	MaxRetries int `json:"maxRetries"`

	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	FailedAt      *time.Time `json:"failedAt,omitempty"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`

	PagesExtracted     int   `json:"pagesExtracted"`
	WordsExtracted     int   `json:"wordsExtracted"`
	SummaryLength      int   `json:"summaryLength"`
	QuestionsGenerated int   `json:"questionsGenerated"`
	EmbeddingsCreated  int   `json:"embeddingsCreated"`
	ProcessingTimeMS   int64 `json:"processingTime"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StageStatusOf returns the status of the given stage.
func (j *ProcessingJob) StageStatusOf(stage Stage) StageStatus {
	switch stage {
	case StageDownload:
		return j.DownloadStatus
	case StageExtraction:
		return j.ExtractionStatus
	case StageSummary:
		return j.SummaryStatus
	case StageQuestions:
		return j.QuestionsStatus
	case StageEmbedding:
		return j.EmbeddingStatus
	}
	return ""
}

// SetStageStatus sets the status of the given stage.
func (j *ProcessingJob) SetStageStatus(stage Stage, status StageStatus) {
	switch stage {
	case StageDownload:
		j.DownloadStatus = status
	case StageExtraction:
		j.ExtractionStatus = status
	case StageSummary:
		j.SummaryStatus = status
	case StageQuestions:
		j.QuestionsStatus = status
	case StageEmbedding:
		j.EmbeddingStatus = status
	}
}

// StageStatuses returns the five stage statuses in processing order.
func (j *ProcessingJob) StageStatuses() []StageStatus {
	out := make([]StageStatus, 0, len(Stages))
	for _, s := range Stages {
		out = append(out, j.StageStatusOf(s))
	}
	return out
}

// ResetStages puts every stage back to pending for a re-attempt.
func (j *ProcessingJob) ResetStages() {
	for _, s := range Stages {
		j.SetStageStatus(s, StagePending)
	}
}
