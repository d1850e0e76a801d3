package ai

import "errors"

// Config holds the endpoints and model names for OpenAI-compatible services.
// Loaded once at startup and injected; never mutated afterwards.
type Config struct {
	// BaseURL of the OpenAI-compatible API.
	BaseURL string
	// Token for the API; "none" works for local services without auth.
	Token string
	// EmbeddingModel must produce model.EmbeddingDimensions-wide vectors.
	EmbeddingModel string
	// ChatModel used for summary, question generation, and chat answers.
	ChatModel string
}

var (
	ErrBaseURLRequired        = errors.New("ai: base url is required")
	ErrEmbeddingModelRequired = errors.New("ai: embedding model is required")
	ErrChatModelRequired      = errors.New("ai: chat model is required")
)

// Validate checks required fields and normalizes the token.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLRequired
	}
	if c.EmbeddingModel == "" {
		return ErrEmbeddingModelRequired
	}
	if c.ChatModel == "" {
		return ErrChatModelRequired
	}
	if c.Token == "" {
		c.Token = "none"
	}
	return nil
}
