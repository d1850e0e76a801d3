package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TaskDocumentProcess is scheduled each time a document ingestion is
	// dispatched (first attempt or retry).
	TaskDocumentProcess = "document:process"
)

// ProcessPayload is serialized into the task so the worker knows which source
// to fetch and which document its callbacks belong to.
type ProcessPayload struct {
	DocumentID      string            `json:"document_id"`
	SourceURL       string            `json:"source_url"`
	DirectSourceURL string            `json:"direct_source_url,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// EnqueueProcess enqueues a document processing task. Delivery retries are the
// queue's concern; job-level retries stay with the retry controller.
func EnqueueProcess(ctx context.Context, client *asynq.Client, payload ProcessPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TaskDocumentProcess, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue process task: %w", err)
	}
	return nil
}
