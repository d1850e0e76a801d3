// Package ai defines the provider interfaces for embeddings and chat
// generation. The pipeline and chat layers depend on these, never on a
// concrete vendor client.
package ai

import (
	"context"

	"github.com/pagebound/pagebound/internal/model"
)

// Embedder generates vector embeddings from text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedText generates an embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for a batch of texts, returned in input
	// order. Batching is cheaper than repeated EmbedText calls.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel generates a reply for a conversation under a system instruction
// and reports the provider's token accounting.
// Implementations must be safe for concurrent use.
type ChatModel interface {
	Generate(ctx context.Context, system string, history []model.ChatMessage) (string, model.TokenUsage, error)
}

// Provider aggregates the AI services for initialization and lifecycle
// management.
type Provider interface {
	Embedder() Embedder
	ChatModel() ChatModel

	// Close releases resources held by the provider and its services.
	Close() error
}
