// Package worker implements the reference processing worker. It consumes
// document tasks from the queue, runs the five stages, and reports each result
// to the API through the callback client.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/pagebound/pagebound/internal/ai"
	"github.com/pagebound/pagebound/internal/model"
	pdfutil "github.com/pagebound/pagebound/internal/pdf"
	"github.com/pagebound/pagebound/internal/pipeline"
	"github.com/pagebound/pagebound/internal/queue"
	"github.com/pagebound/pagebound/internal/s3storage"
)

const (
	chunkSize        = 1000
	chunkOverlap     = 200
	maxPromptContent = 12000
	questionCount    = 5
)

// Processor handles document:process tasks.
type Processor struct {
	storage   *s3storage.Storage
	provider  ai.Provider
	callbacks *CallbackClient
	logger    *slog.Logger
	http      *http.Client
}

// NewProcessor constructs a Processor.
func NewProcessor(storage *s3storage.Storage, provider ai.Provider, callbacks *CallbackClient) *Processor {
	return &Processor{
		storage:   storage,
		provider:  provider,
		callbacks: callbacks,
		logger:    slog.Default().With("component", "worker"),
		http:      &http.Client{Timeout: 2 * time.Minute},
	}
}

// Mux returns the asynq handler mux for this processor.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskDocumentProcess, p.HandleProcess)
	return mux
}

// HandleProcess runs the full pipeline for one document. A stage failure is
// reported through the error callback and ends the attempt; re-running is the
// retry controller's call, not the queue's, so the task itself succeeds.
func (p *Processor) HandleProcess(ctx context.Context, task *asynq.Task) error {
	var payload queue.ProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal process payload: %w", err)
	}
	logger := p.logger.With("document_id", payload.DocumentID)
	started := time.Now()

	data, err := p.runDownload(ctx, payload)
	if err != nil {
		return p.fail(ctx, logger, payload.DocumentID, model.StageDownload, err)
	}

	pages, content, err := p.runExtraction(ctx, payload.DocumentID, data)
	if err != nil {
		return p.fail(ctx, logger, payload.DocumentID, model.StageExtraction, err)
	}

	if err := p.runSummary(ctx, payload.DocumentID, content); err != nil {
		return p.fail(ctx, logger, payload.DocumentID, model.StageSummary, err)
	}

	if err := p.runQuestions(ctx, payload.DocumentID, content); err != nil {
		return p.fail(ctx, logger, payload.DocumentID, model.StageQuestions, err)
	}

	elapsed := time.Since(started).Milliseconds()
	if err := p.runEmbedding(ctx, payload.DocumentID, pages, elapsed); err != nil {
		return p.fail(ctx, logger, payload.DocumentID, model.StageEmbedding, err)
	}

	logger.Info("document processed", "duration_ms", time.Since(started).Milliseconds())
	return nil
}

func (p *Processor) fail(ctx context.Context, logger *slog.Logger, documentID string, stage model.Stage, stageErr error) error {
	logger.Error("stage failed", "stage", stage, "err", stageErr)
	if err := p.callbacks.ReportError(ctx, documentID, stage, stageErr.Error()); err != nil {
		return fmt.Errorf("report %s failure: %w", stage, err)
	}
	return nil
}

// runDownload fetches the source bytes. A direct URL is fetched over HTTP;
// otherwise the source URL is treated as an object key in the source bucket.
func (p *Processor) runDownload(ctx context.Context, payload queue.ProcessPayload) ([]byte, error) {
	if err := p.callbacks.BeginStage(ctx, payload.DocumentID, model.StageDownload); err != nil {
		return nil, err
	}
	var (
		data []byte
		err  error
	)
	if payload.DirectSourceURL != "" {
		data, err = p.fetchURL(ctx, payload.DirectSourceURL)
	} else {
		data, err = p.storage.DownloadSource(ctx, payload.SourceURL)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("source document is empty")
	}
	if err := p.callbacks.CompleteDownload(ctx, payload.DocumentID); err != nil {
		return nil, err
	}
	return data, nil
}

func (p *Processor) fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download source: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read source body: %w", err)
	}
	return data, nil
}

// runExtraction turns the raw bytes into per-page plain text and uploads the
// joined text as an artifact. Non-PDF payloads are treated as a single page of
// UTF-8 text.
func (p *Processor) runExtraction(ctx context.Context, documentID string, data []byte) ([]pdfutil.Page, string, error) {
	if err := p.callbacks.BeginStage(ctx, documentID, model.StageExtraction); err != nil {
		return nil, "", err
	}
	var pages []pdfutil.Page
	if isPDF(data) {
		var err error
		pages, err = pdfutil.ExtractPages(data)
		if err != nil {
			return nil, "", err
		}
	} else {
		pages = []pdfutil.Page{{Number: 1, Text: string(data)}}
	}
	var builder strings.Builder
	for _, page := range pages {
		builder.WriteString(page.Text)
		builder.WriteString("\n")
	}
	content := strings.TrimSpace(builder.String())
	if content == "" {
		return nil, "", fmt.Errorf("no extractable text")
	}
	if err := p.storage.UploadArtifact(ctx, s3storage.ExtractedTextKey(documentID), []byte(content)); err != nil {
		return nil, "", err
	}
	words := pdfutil.CountWords(content)
	if err := p.callbacks.CompleteExtraction(ctx, documentID, content, len(pages), words); err != nil {
		return nil, "", err
	}
	return pages, content, nil
}

func isPDF(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "%PDF"
}

func (p *Processor) runSummary(ctx context.Context, documentID, content string) error {
	if err := p.callbacks.BeginStage(ctx, documentID, model.StageSummary); err != nil {
		return err
	}
	system := "You are a precise technical summarizer. Summarize the provided document in 3-5 paragraphs, covering its main arguments and conclusions. Respond in the same language as the document."
	summary, _, err := p.provider.ChatModel().Generate(ctx, system, []model.ChatMessage{
		{Role: model.RoleUser, Content: truncate(content, maxPromptContent)},
	})
	if err != nil {
		return err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Errorf("model returned an empty summary")
	}
	return p.callbacks.CompleteSummary(ctx, documentID, summary)
}

func (p *Processor) runQuestions(ctx context.Context, documentID, content string) error {
	if err := p.callbacks.BeginStage(ctx, documentID, model.StageQuestions); err != nil {
		return err
	}
	system := fmt.Sprintf(
		"Generate %d study questions a reader might ask about the provided document, each with a concise answer grounded in the text. Respond with ONLY a JSON array of objects with \"question\" and \"answer\" string fields.",
		questionCount,
	)
	raw, _, err := p.provider.ChatModel().Generate(ctx, system, []model.ChatMessage{
		{Role: model.RoleUser, Content: truncate(content, maxPromptContent)},
	})
	if err != nil {
		return err
	}
	questions, err := parseQuestions(raw)
	if err != nil {
		return err
	}
	return p.callbacks.CompleteQuestions(ctx, documentID, questions)
}

// parseQuestions decodes the model's JSON output, tolerating markdown code
// fences around the array.
func parseQuestions(raw string) ([]pipeline.QuestionInput, error) {
	trimmed := strings.TrimSpace(raw)
	if start := strings.Index(trimmed, "["); start >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	var questions []pipeline.QuestionInput
	if err := json.Unmarshal([]byte(trimmed), &questions); err != nil {
		return nil, fmt.Errorf("parse questions output: %w", err)
	}
	out := questions[:0]
	for _, q := range questions {
		if strings.TrimSpace(q.Question) != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model returned no usable questions")
	}
	return out, nil
}

// runEmbedding chunks the text page by page so each chunk keeps its page
// number, embeds the batch, and delivers the versioned chunk set.
func (p *Processor) runEmbedding(ctx context.Context, documentID string, pages []pdfutil.Page, elapsedMS int64) error {
	if err := p.callbacks.BeginStage(ctx, documentID, model.StageEmbedding); err != nil {
		return err
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	var (
		chunks []pipeline.ChunkInput
		texts  []string
	)
	for _, page := range pages {
		parts, err := splitter.SplitText(page.Text)
		if err != nil {
			return fmt.Errorf("split page %d: %w", page.Number, err)
		}
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			number := page.Number
			chunks = append(chunks, pipeline.ChunkInput{
				ChunkIndex: len(chunks),
				ChunkText:  part,
				PageNumber: &number,
				WordCount:  pdfutil.CountWords(part),
			})
			texts = append(texts, part)
		}
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to embed")
	}
	vectors, err := p.provider.Embedder().EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return p.callbacks.CompleteEmbeddings(ctx, documentID, chunks, elapsedMS)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
