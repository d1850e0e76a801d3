// Package mock provides deterministic ai implementations for tests and local
// stacks that run without a model server.
package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/pagebound/pagebound/internal/ai"
	"github.com/pagebound/pagebound/internal/model"
)

// Provider implements ai.Provider with deterministic fakes.
type Provider struct {
	embedder *Embedder
	chat     *ChatModel
}

// NewProvider creates a mock provider.
func NewProvider() *Provider {
	return &Provider{
		embedder: &Embedder{},
		chat:     &ChatModel{Response: "mock response"},
	}
}

func (p *Provider) Embedder() ai.Embedder   { return p.embedder }
func (p *Provider) ChatModel() ai.ChatModel { return p.chat }
func (p *Provider) Close() error            { return nil }

// Embedder produces a deterministic unit vector derived from the text's hash,
// so equal texts embed identically across runs.
type Embedder struct{}

// EmbedText returns a deterministic embedding for the text.
func (e *Embedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	return deterministicVector(text), nil
}

// EmbedTexts returns deterministic embeddings in input order.
func (e *Embedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, deterministicVector(t))
	}
	return out, nil
}

// ChatModel replies with a fixed response and zero token usage.
type ChatModel struct {
	Response string
}

// Generate returns the canned response.
func (m *ChatModel) Generate(_ context.Context, _ string, _ []model.ChatMessage) (string, model.TokenUsage, error) {
	return m.Response, model.TokenUsage{}, nil
}

func deterministicVector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, model.EmbeddingDimensions)
	var norm float64
	for i := range vec {
		// xorshift keeps the sequence cheap and reproducible.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float64(int64(seed%2000)-1000) / 1000
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
