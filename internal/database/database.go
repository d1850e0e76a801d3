package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the pipeline tables if needed. Keeping the migration in
// code lets docker-compose bootstrap a full stack with no extra tooling.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	authors TEXT[] NOT NULL DEFAULT '{}',
	categories TEXT[] NOT NULL DEFAULT '{}',
	source_url TEXT NOT NULL,
	direct_source_url TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	page_count INT NOT NULL DEFAULT 0,
	word_count INT NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	extraction_status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_jobs (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL UNIQUE REFERENCES documents(id),
	status TEXT NOT NULL,
	download_status TEXT NOT NULL,
	extraction_status TEXT NOT NULL,
	summary_status TEXT NOT NULL,
	questions_status TEXT NOT NULL,
	embedding_status TEXT NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	max_retries INT NOT NULL DEFAULT 3,
	last_attempt_at TIMESTAMPTZ,
	next_attempt_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	failed_at TIMESTAMPTZ,
	error_message TEXT,
	pages_extracted INT NOT NULL DEFAULT 0,
	words_extracted INT NOT NULL DEFAULT 0,
	summary_length INT NOT NULL DEFAULT 0,
	questions_generated INT NOT NULL DEFAULT 0,
	embeddings_created INT NOT NULL DEFAULT 0,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processing_jobs_status ON processing_jobs(status);
CREATE INDEX IF NOT EXISTS idx_processing_jobs_created ON processing_jobs(created_at DESC);

CREATE TABLE IF NOT EXISTS embedding_chunks (
	document_id TEXT NOT NULL REFERENCES documents(id),
	version INT NOT NULL,
	chunk_index INT NOT NULL,
	chunk_text TEXT NOT NULL,
	page_number INT,
	word_count INT NOT NULL DEFAULT 0,
	embedding REAL[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (document_id, version, chunk_index)
);

CREATE TABLE IF NOT EXISTS suggested_questions (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	generated BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_suggested_questions_document ON suggested_questions(document_id);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
