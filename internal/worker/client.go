package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pagebound/pagebound/internal/model"
	"github.com/pagebound/pagebound/internal/pipeline"
)

// CallbackClient delivers stage results back to the API over the authenticated
// callback endpoints.
type CallbackClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewCallbackClient builds a client for the given API base URL and shared
// callback secret.
func NewCallbackClient(baseURL, secret string) *CallbackClient {
	return &CallbackClient{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// BeginStage marks a stage as in-flight before the worker starts it.
func (c *CallbackClient) BeginStage(ctx context.Context, documentID string, stage model.Stage) error {
	return c.post(ctx, "/callbacks/processing", map[string]any{
		"documentId": documentID,
		"stage":      stage,
	})
}

// CompleteDownload reports that the source document was fetched.
func (c *CallbackClient) CompleteDownload(ctx context.Context, documentID string) error {
	return c.post(ctx, "/callbacks/download", map[string]any{
		"documentId": documentID,
	})
}

// CompleteExtraction delivers the extracted text with its page and word counts.
func (c *CallbackClient) CompleteExtraction(ctx context.Context, documentID, content string, pages, words int) error {
	return c.post(ctx, "/callbacks/extraction", map[string]any{
		"documentId": documentID,
		"content":    content,
		"pages":      pages,
		"words":      words,
	})
}

// CompleteSummary delivers the generated summary.
func (c *CallbackClient) CompleteSummary(ctx context.Context, documentID, summary string) error {
	return c.post(ctx, "/callbacks/summary", map[string]any{
		"documentId": documentID,
		"summary":    summary,
	})
}

// CompleteQuestions delivers the generated question set.
func (c *CallbackClient) CompleteQuestions(ctx context.Context, documentID string, questions []pipeline.QuestionInput) error {
	return c.post(ctx, "/callbacks/questions", map[string]any{
		"documentId": documentID,
		"questions":  questions,
	})
}

// CompleteEmbeddings delivers the embedded chunk set and the total processing
// time.
func (c *CallbackClient) CompleteEmbeddings(ctx context.Context, documentID string, chunks []pipeline.ChunkInput, processingTimeMS int64) error {
	return c.post(ctx, "/callbacks/embeddings", map[string]any{
		"documentId":     documentID,
		"chunks":         chunks,
		"processingTime": processingTimeMS,
	})
}

// ReportError reports a stage failure.
func (c *CallbackClient) ReportError(ctx context.Context, documentID string, stage model.Stage, message string) error {
	return c.post(ctx, "/callbacks/error", map[string]any{
		"documentId": documentID,
		"stage":      stage,
		"error":      message,
	})
}

func (c *CallbackClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
