// Package search answers top-K nearest-neighbor queries over a document's
// embedded chunks. Embeddings are loaded for the requested version and scored
// in process; old versions stay queryable when pinned explicitly.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pagebound/pagebound/internal/model"
)

// ChunkSource reads embedded chunks per (document, version).
type ChunkSource interface {
	// LatestVersion returns the highest embedding version for the document, or
	// 0 when the document has no chunks at all.
	LatestVersion(ctx context.Context, documentID string) (int, error)
	ChunksByVersion(ctx context.Context, documentID string, version int) ([]model.EmbeddingChunk, error)
}

// Query shapes one similarity search. Version 0 resolves to the latest version
// at query time; a query never spans two versions.
type Query struct {
	DocumentID    string
	Vector        []float32
	K             int
	MinSimilarity float64
	Version       int
}

// Match is one scored chunk, ordered descending by similarity with ties broken
// by ascending chunk index.
type Match struct {
	ChunkIndex int     `json:"chunkIndex"`
	ChunkText  string  `json:"chunkText"`
	PageNumber *int    `json:"pageNumber,omitempty"`
	Similarity float64 `json:"similarity"`
}

// Index performs cosine-similarity search over a ChunkSource.
type Index struct {
	source ChunkSource
	logger *slog.Logger
}

// NewIndex constructs an Index.
func NewIndex(source ChunkSource) *Index {
	return &Index{
		source: source,
		logger: slog.Default().With("component", "search"),
	}
}

// HasChunks reports whether the document has any embedded chunks at all.
// Callers use it to skip query embedding for documents that cannot match.
func (i *Index) HasChunks(ctx context.Context, documentID string) (bool, error) {
	latest, err := i.source.LatestVersion(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("resolve latest version: %w", err)
	}
	return latest > 0, nil
}

// Search returns up to q.K chunks most similar to q.Vector. A document with no
// chunks yields an empty result, not an error; the caller owns fallback
// behavior.
func (i *Index) Search(ctx context.Context, q Query) ([]Match, error) {
	if q.DocumentID == "" {
		return nil, fmt.Errorf("search: document id is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("search: k must be positive, got %d", q.K)
	}

	version := q.Version
	if version <= 0 {
		latest, err := i.source.LatestVersion(ctx, q.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("resolve latest version: %w", err)
		}
		if latest == 0 {
			return []Match{}, nil
		}
		version = latest
	}

	chunks, err := i.source.ChunksByVersion(ctx, q.DocumentID, version)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return []Match{}, nil
	}

	matches := make([]Match, 0, len(chunks))
	for _, c := range chunks {
		sim := CosineSimilarity(q.Vector, c.Embedding)
		if sim < q.MinSimilarity {
			continue
		}
		matches = append(matches, Match{
			ChunkIndex: c.ChunkIndex,
			ChunkText:  c.ChunkText,
			PageNumber: c.PageNumber,
			Similarity: sim,
		})
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Similarity != matches[b].Similarity {
			return matches[a].Similarity > matches[b].Similarity
		}
		return matches[a].ChunkIndex < matches[b].ChunkIndex
	})
	if len(matches) > q.K {
		matches = matches[:q.K]
	}
	i.logger.Debug("similarity search",
		"documentId", q.DocumentID, "version", version,
		"candidates", len(chunks), "matches", len(matches))
	return matches, nil
}
