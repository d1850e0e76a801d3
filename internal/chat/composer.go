// Package chat composes grounded answers to questions about a document,
// falling through an ordered chain of context strategies when the preferred
// retrieval path is unavailable.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pagebound/pagebound/internal/ai"
	"github.com/pagebound/pagebound/internal/model"
	"github.com/pagebound/pagebound/internal/search"
)

// Method names the degradation tier that served an answer. It is surfaced to
// callers so retrieval health is observable.
type Method string

const (
	MethodEmbedding   Method = "embedding"
	MethodFullContent Method = "full-content"
	MethodFallback    Method = "fallback"
)

// ErrNoUserMessage is returned when the conversation holds no user message to
// answer.
var ErrNoUserMessage = errors.New("no user message in conversation")

const (
	// defaultRetrievalK is the chunk count requested from the index.
	defaultRetrievalK = 10
	// defaultContentBudget bounds the full-content fallback so the prompt fits
	// the downstream model's context window.
	defaultContentBudget = 8000
)

// Retriever is the similarity-search dependency, satisfied by *search.Index.
type Retriever interface {
	HasChunks(ctx context.Context, documentID string) (bool, error)
	Search(ctx context.Context, q search.Query) ([]search.Match, error)
}

// DocumentSource reads document records with their extracted content.
type DocumentSource interface {
	Document(ctx context.Context, id string) (*model.Document, error)
}

// Composer builds grounded answers over a document conversation.
type Composer struct {
	docs          DocumentSource
	retriever     Retriever
	embedder      ai.Embedder
	chat          ai.ChatModel
	logger        *slog.Logger
	k             int
	contentBudget int
	minSimilarity float64
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetrievalK overrides the number of chunks requested per query.
func WithRetrievalK(k int) Option {
	return func(c *Composer) {
		if k > 0 {
			c.k = k
		}
	}
}

// WithContentBudget overrides the full-content truncation budget in characters.
func WithContentBudget(chars int) Option {
	return func(c *Composer) {
		if chars > 0 {
			c.contentBudget = chars
		}
	}
}

// NewComposer constructs a Composer.
func NewComposer(docs DocumentSource, retriever Retriever, embedder ai.Embedder, chat ai.ChatModel, opts ...Option) *Composer {
	c := &Composer{
		docs:          docs,
		retriever:     retriever,
		embedder:      embedder,
		chat:          chat,
		logger:        slog.Default().With("component", "chat"),
		k:             defaultRetrievalK,
		contentBudget: defaultContentBudget,
		// Low-quality matches beat no grounding at all; chunks are not
		// filtered on absolute similarity here.
		minSimilarity: 0,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Answer holds the composed response, the tier that grounded it, and the
// provider's token accounting.
type Answer struct {
	Response string           `json:"response"`
	Method   Method           `json:"method"`
	Usage    model.TokenUsage `json:"tokenUsage"`
}

// contextStrategy is one tier of the degradation chain: it either produces a
// grounding context or defers to the next tier. Adding a tier (say keyword
// search) means appending to the chain, not rewriting branches.
type contextStrategy struct {
	method Method
	build  func(ctx context.Context, doc *model.Document, query string) (string, bool)
}

// Answer composes a reply to the latest user message in the history. The
// chain is embedding retrieval, then full-content truncation, then an explicit
// no-context marker; an answer is always attempted. Only generation failure is
// returned as an error.
func (c *Composer) Answer(ctx context.Context, documentID string, history []model.ChatMessage) (*Answer, error) {
	query, ok := latestUserMessage(history)
	if !ok {
		return nil, ErrNoUserMessage
	}
	doc, err := c.docs.Document(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	var (
		grounding string
		method    Method
	)
	for _, strategy := range c.strategies() {
		if text, ok := strategy.build(ctx, doc, query); ok {
			grounding = text
			method = strategy.method
			break
		}
	}

	system := systemPrompt(doc, grounding, method)
	response, usage, err := c.chat.Generate(ctx, system, history)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	c.logger.Info("answer composed",
		"documentId", documentID, "method", method, "totalTokens", usage.TotalTokens)
	return &Answer{Response: response, Method: method, Usage: usage}, nil
}

func (c *Composer) strategies() []contextStrategy {
	return []contextStrategy{
		{method: MethodEmbedding, build: c.embeddingContext},
		{method: MethodFullContent, build: c.fullContentContext},
		{method: MethodFallback, build: fallbackContext},
	}
}

// embeddingContext retrieves similar chunks for the query. Provider or index
// failures degrade silently to the next tier; the user never sees them.
// Chunk existence is checked first so chunkless documents never cost an
// embedding call.
func (c *Composer) embeddingContext(ctx context.Context, doc *model.Document, query string) (string, bool) {
	hasChunks, err := c.retriever.HasChunks(ctx, doc.ID)
	if err != nil {
		c.logger.Warn("chunk lookup failed, degrading to full content",
			"documentId", doc.ID, "err", err)
		return "", false
	}
	if !hasChunks {
		return "", false
	}
	vector, err := c.embedder.EmbedText(ctx, query)
	if err != nil {
		c.logger.Warn("query embedding failed, degrading to full content",
			"documentId", doc.ID, "err", err)
		return "", false
	}
	matches, err := c.retriever.Search(ctx, search.Query{
		DocumentID:    doc.ID,
		Vector:        vector,
		K:             c.k,
		MinSimilarity: c.minSimilarity,
	})
	if err != nil {
		c.logger.Warn("chunk retrieval failed, degrading to full content",
			"documentId", doc.ID, "err", err)
		return "", false
	}
	if len(matches) == 0 {
		return "", false
	}
	text := formatMatches(matches)
	if strings.TrimSpace(text) == "" {
		// Chunks without source text are a data-quality anomaly; grounding on
		// them would produce an empty prompt.
		c.logger.Warn("retrieved chunks carry no text", "documentId", doc.ID, "matches", len(matches))
		return "", false
	}
	return text, true
}

func (c *Composer) fullContentContext(_ context.Context, doc *model.Document, _ string) (string, bool) {
	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return "", false
	}
	if len(content) > c.contentBudget {
		// Back off to a rune boundary so the cut never leaves a broken
		// multi-byte sequence in the prompt.
		cut := c.contentBudget
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	return content, true
}

func fallbackContext(_ context.Context, _ *model.Document, _ string) (string, bool) {
	return noContextMarker, true
}

func latestUserMessage(history []model.ChatMessage) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser && strings.TrimSpace(history[i].Content) != "" {
			return history[i].Content, true
		}
	}
	return "", false
}

// formatMatches renders retrieved chunks with page references and similarity
// percentages for the prompt.
func formatMatches(matches []search.Match) string {
	var b strings.Builder
	for _, m := range matches {
		text := strings.TrimSpace(m.ChunkText)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if m.PageNumber != nil {
			fmt.Fprintf(&b, "[Page %d | %.0f%% match]\n", *m.PageNumber, m.Similarity*100)
		} else {
			fmt.Fprintf(&b, "[%.0f%% match]\n", m.Similarity*100)
		}
		b.WriteString(text)
	}
	return b.String()
}
