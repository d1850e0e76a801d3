package openai

import (
	"log/slog"

	"github.com/pagebound/pagebound/internal/ai"
)

// Provider implements ai.Provider using OpenAI-compatible services.
type Provider struct {
	config   *ai.Config
	embedder *Embedder
	chat     *ChatModel
	logger   *slog.Logger
}

// NewProvider creates a provider with both services sharing one configuration.
// Returns the ai.Provider interface to keep callers off vendor specifics.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}
	chat, err := newChatModel(config)
	if err != nil {
		return nil, err
	}
	return &Provider{
		config:   config,
		embedder: embedder,
		chat:     chat,
		logger:   slog.Default().With("component", "openai-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// ChatModel returns the chat generation service.
func (p *Provider) ChatModel() ai.ChatModel {
	return p.chat
}

// Close releases provider resources. The underlying clients hold none today.
func (p *Provider) Close() error {
	return nil
}
