package model

import "time"

// Document is the pipeline's view of a catalog document: source identifiers
// for dispatch plus the downstream artifacts written back by stage callbacks.
// The extracted content is overwritten, not versioned, on re-extraction.
type Document struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	SourceURL       string   `json:"sourceUrl"`
	DirectSourceURL string   `json:"directSourceUrl,omitempty"`

	Content     string `json:"content,omitempty"`
	ContentHash string `json:"contentHash,omitempty"`
	PageCount   int    `json:"pageCount"`
	WordCount   int    `json:"wordCount"`
	Summary     string `json:"summary,omitempty"`

	ExtractionStatus StageStatus `json:"extractionStatus"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// EmbeddingChunk is one embedded slice of a document's extracted text. A whole
// chunk set shares a version; re-embedding writes a new version and leaves the
// old rows behind for rollback, excluded from default queries.
type EmbeddingChunk struct {
	DocumentID string    `json:"documentId"`
	Version    int       `json:"version"`
	ChunkIndex int       `json:"chunkIndex"`
	ChunkText  string    `json:"chunkText"`
	PageNumber *int      `json:"pageNumber,omitempty"`
	WordCount  int       `json:"wordCount"`
	Embedding  []float32 `json:"embedding"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EmbeddingDimensions is the fixed width of chunk and query vectors.
const EmbeddingDimensions = 768

// SuggestedQuestion is a Q&A pair tied to a document. Generated questions are
// replaced wholesale on regeneration; manually authored ones are preserved.
type SuggestedQuestion struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Generated  bool      `json:"generated"`
	CreatedAt  time.Time `json:"createdAt"`
}
