package pipeline

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/pagebound/pagebound/internal/queue"
)

// DispatchRequest describes one ingestion job to the external processing
// worker. Metadata travels along so the worker can enrich prompts without a
// read path back into the catalog.
type DispatchRequest struct {
	DocumentID      string
	SourceURL       string
	DirectSourceURL string
	Metadata        map[string]string
}

// Dispatcher hands a job off to the external processing worker. The call must
// not block on job completion; completion is observed via callbacks.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}

// QueueDispatcher delivers dispatch requests over the task queue the worker
// consumes. Enqueue failure (broker unreachable) is the dispatch failure the
// retry controller rolls back on.
type QueueDispatcher struct {
	client *asynq.Client
}

// NewQueueDispatcher wraps an asynq client as a Dispatcher.
func NewQueueDispatcher(client *asynq.Client) *QueueDispatcher {
	return &QueueDispatcher{client: client}
}

// Dispatch enqueues a document processing task.
func (d *QueueDispatcher) Dispatch(ctx context.Context, req DispatchRequest) error {
	return queue.EnqueueProcess(ctx, d.client, queue.ProcessPayload{
		DocumentID:      req.DocumentID,
		SourceURL:       req.SourceURL,
		DirectSourceURL: req.DirectSourceURL,
		Metadata:        req.Metadata,
	})
}
