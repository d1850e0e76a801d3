package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagebound/pagebound/internal/model"
)

// ChunkRepository reads embedded chunks. It implements search.ChunkSource.
// Writes happen inside the job-update transaction (see JobRepository), keeping
// a version swap atomic with its stage transition.
type ChunkRepository struct {
	pool *pgxpool.Pool
}

// NewChunkRepository constructs a repository.
func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

// LatestVersion returns the highest embedding version for the document, or 0
// when no chunks exist.
func (r *ChunkRepository) LatestVersion(ctx context.Context, documentID string) (int, error) {
	var version int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version),0) FROM embedding_chunks WHERE document_id=$1
	`, documentID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("latest chunk version: %w", err)
	}
	return version, nil
}

// ChunksByVersion returns one version's chunk set ordered by chunk index.
func (r *ChunkRepository) ChunksByVersion(ctx context.Context, documentID string, version int) ([]model.EmbeddingChunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT document_id, version, chunk_index, chunk_text, page_number, word_count, embedding, created_at
		FROM embedding_chunks
		WHERE document_id=$1 AND version=$2
		ORDER BY chunk_index ASC
	`, documentID, version)
	if err != nil {
		return nil, fmt.Errorf("select chunks: %w", err)
	}
	defer rows.Close()

	var out []model.EmbeddingChunk
	for rows.Next() {
		var c model.EmbeddingChunk
		if err := rows.Scan(&c.DocumentID, &c.Version, &c.ChunkIndex, &c.ChunkText,
			&c.PageNumber, &c.WordCount, &c.Embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
