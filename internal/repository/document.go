// Package repository holds the pgx-backed persistence for documents, jobs,
// chunks, and suggested questions.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagebound/pagebound/internal/model"
)

// DocumentRepository wraps all SQL for document records and their suggested
// questions. It implements pipeline.DocumentStore and chat.DocumentSource.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// Document returns a document with its extracted content.
func (r *DocumentRepository) Document(ctx context.Context, id string) (*model.Document, error) {
	var d model.Document
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, authors, categories, source_url, direct_source_url,
			content, content_hash, page_count, word_count, summary,
			extraction_status, created_at, updated_at
		FROM documents WHERE id=$1
	`, id)
	err := row.Scan(
		&d.ID, &d.Title, &d.Authors, &d.Categories, &d.SourceURL, &d.DirectSourceURL,
		&d.Content, &d.ContentHash, &d.PageCount, &d.WordCount, &d.Summary,
		&d.ExtractionStatus, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	return &d, nil
}

// EnsureDocument inserts the document or refreshes its catalog fields, leaving
// any previously extracted artifacts alone.
func (r *DocumentRepository) EnsureDocument(ctx context.Context, doc *model.Document) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, title, authors, categories, source_url, direct_source_url,
			extraction_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title,
			authors=EXCLUDED.authors,
			categories=EXCLUDED.categories,
			source_url=EXCLUDED.source_url,
			direct_source_url=EXCLUDED.direct_source_url,
			updated_at=EXCLUDED.updated_at
	`, doc.ID, doc.Title, doc.Authors, doc.Categories, doc.SourceURL, doc.DirectSourceURL,
		doc.ExtractionStatus, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Questions returns the document's suggested questions, generated first.
func (r *DocumentRepository) Questions(ctx context.Context, documentID string) ([]model.SuggestedQuestion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, question, answer, generated, created_at
		FROM suggested_questions
		WHERE document_id=$1
		ORDER BY generated DESC, created_at ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []model.SuggestedQuestion
	for rows.Next() {
		var q model.SuggestedQuestion
		if err := rows.Scan(&q.ID, &q.DocumentID, &q.Question, &q.Answer, &q.Generated, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
