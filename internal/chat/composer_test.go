package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagebound/pagebound/internal/model"
	"github.com/pagebound/pagebound/internal/search"
)

type fakeDocSource struct {
	doc *model.Document
	err error
}

func (f *fakeDocSource) Document(_ context.Context, _ string) (*model.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type fakeRetriever struct {
	matches   []search.Match
	noChunks  bool
	chunksErr error
	err       error
	queries   []search.Query
}

func (f *fakeRetriever) HasChunks(_ context.Context, _ string) (bool, error) {
	if f.chunksErr != nil {
		return false, f.chunksErr
	}
	return !f.noChunks, nil
}

func (f *fakeRetriever) Search(_ context.Context, q search.Query) ([]search.Match, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeChatModel struct {
	response string
	err      error
	systems  []string
}

func (f *fakeChatModel) Generate(_ context.Context, system string, _ []model.ChatMessage) (string, model.TokenUsage, error) {
	f.systems = append(f.systems, system)
	if f.err != nil {
		return "", model.TokenUsage{}, f.err
	}
	return f.response, model.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
}

func page(n int) *int { return &n }

func testDoc() *model.Document {
	return &model.Document{
		ID:      "doc-1",
		Title:   "On Testing",
		Authors: []string{"A. Author"},
		Content: "The full extracted text of the document.",
	}
}

func userAsks(q string) []model.ChatMessage {
	return []model.ChatMessage{
		{Role: model.RoleUser, Content: "earlier question"},
		{Role: model.RoleAssistant, Content: "earlier answer"},
		{Role: model.RoleUser, Content: q},
	}
}

func TestComposerAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("grounds on retrieved chunks", func(t *testing.T) {
		retriever := &fakeRetriever{matches: []search.Match{
			{ChunkIndex: 0, ChunkText: "relevant excerpt", PageNumber: page(4), Similarity: 0.91},
		}}
		chatModel := &fakeChatModel{response: "grounded answer"}
		composer := NewComposer(&fakeDocSource{doc: testDoc()}, retriever, &fakeEmbedder{}, chatModel)

		answer, err := composer.Answer(ctx, "doc-1", userAsks("what is this about?"))
		require.NoError(t, err)

		assert.Equal(t, MethodEmbedding, answer.Method)
		assert.Equal(t, "grounded answer", answer.Response)
		assert.Equal(t, 15, answer.Usage.TotalTokens)

		require.Len(t, chatModel.systems, 1)
		assert.Contains(t, chatModel.systems[0], "relevant excerpt")
		assert.Contains(t, chatModel.systems[0], "[Page 4 | 91% match]")

		require.Len(t, retriever.queries, 1)
		assert.Equal(t, 10, retriever.queries[0].K)
		assert.Zero(t, retriever.queries[0].MinSimilarity)
	})

	t.Run("degrades to full content when embedding fails", func(t *testing.T) {
		chatModel := &fakeChatModel{response: "ok"}
		composer := NewComposer(
			&fakeDocSource{doc: testDoc()},
			&fakeRetriever{},
			&fakeEmbedder{err: errors.New("provider down")},
			chatModel,
		)

		answer, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		require.NoError(t, err)
		assert.Equal(t, MethodFullContent, answer.Method)
		assert.Contains(t, chatModel.systems[0], "The full extracted text")
	})

	t.Run("degrades to full content when retrieval fails", func(t *testing.T) {
		chatModel := &fakeChatModel{response: "ok"}
		composer := NewComposer(
			&fakeDocSource{doc: testDoc()},
			&fakeRetriever{err: errors.New("index down")},
			&fakeEmbedder{},
			chatModel,
		)

		answer, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		require.NoError(t, err)
		assert.Equal(t, MethodFullContent, answer.Method)
	})

	t.Run("degrades to full content when no chunks match", func(t *testing.T) {
		chatModel := &fakeChatModel{response: "ok"}
		composer := NewComposer(&fakeDocSource{doc: testDoc()}, &fakeRetriever{}, &fakeEmbedder{}, chatModel)

		answer, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		require.NoError(t, err)
		assert.Equal(t, MethodFullContent, answer.Method)
	})

	t.Run("chunkless document skips the embedding call", func(t *testing.T) {
		embedder := &fakeEmbedder{}
		chatModel := &fakeChatModel{response: "ok"}
		composer := NewComposer(&fakeDocSource{doc: testDoc()}, &fakeRetriever{noChunks: true}, embedder, chatModel)

		answer, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		require.NoError(t, err)
		assert.Equal(t, MethodFullContent, answer.Method)
		assert.Zero(t, embedder.calls)
	})

	t.Run("degrades to full content when the chunk lookup fails", func(t *testing.T) {
		chatModel := &fakeChatModel{response: "ok"}
		composer := NewComposer(
			&fakeDocSource{doc: testDoc()},
			&fakeRetriever{chunksErr: errors.New("index down")},
			&fakeEmbedder{},
			chatModel,
		)

		answer, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		require.NoError(t, err)
		assert.Equal(t, MethodFullContent, answer.Method)
	})

	t.Run("truncates full content to the budget", func(t *testing.T) {
		doc := testDoc()
		doc.Content = strings.Repeat("x", 500)
		chatModel := &fakeChatModel{response: "ok"}
		composer := NewComposer(
			&fakeDocSource{doc: doc},
			&fakeRetriever{},
			&fakeEmbedder{err: errors.New("down")},
			chatModel,
			WithContentBudget(100),
		)

		_, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		require.NoError(t, err)
		assert.Contains(t, chatModel.systems[0], strings.Repeat("x", 100))
		assert.NotContains(t, chatModel.systems[0], strings.Repeat("x", 101))
	})

	t.Run("truncation never splits a rune", func(t *testing.T) {
		doc := testDoc()
		doc.Content = strings.Repeat("ñ", 60)
		chatModel := &fakeChatModel{response: "ok"}
		composer := NewComposer(
			&fakeDocSource{doc: doc},
			&fakeRetriever{noChunks: true},
			&fakeEmbedder{},
			chatModel,
			WithContentBudget(101),
		)

		_, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		require.NoError(t, err)
		require.True(t, utf8.ValidString(chatModel.systems[0]))
		assert.Contains(t, chatModel.systems[0], strings.Repeat("ñ", 50))
		assert.NotContains(t, chatModel.systems[0], strings.Repeat("ñ", 51))
	})

	t.Run("falls back to metadata when there is no content", func(t *testing.T) {
		doc := testDoc()
		doc.Content = "   "
		chatModel := &fakeChatModel{response: "ok"}
		composer := NewComposer(&fakeDocSource{doc: doc}, &fakeRetriever{}, &fakeEmbedder{}, chatModel)

		answer, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		require.NoError(t, err)
		assert.Equal(t, MethodFallback, answer.Method)
		assert.Contains(t, chatModel.systems[0], noContextMarker)
	})

	t.Run("skips chunks with empty text", func(t *testing.T) {
		retriever := &fakeRetriever{matches: []search.Match{
			{ChunkIndex: 0, ChunkText: "   ", Similarity: 0.9},
		}}
		chatModel := &fakeChatModel{response: "ok"}
		composer := NewComposer(&fakeDocSource{doc: testDoc()}, retriever, &fakeEmbedder{}, chatModel)

		answer, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		require.NoError(t, err)
		assert.Equal(t, MethodFullContent, answer.Method)
	})

	t.Run("answers the latest user message", func(t *testing.T) {
		history := []model.ChatMessage{
			{Role: model.RoleUser, Content: "first"},
			{Role: model.RoleAssistant, Content: "reply"},
			{Role: model.RoleUser, Content: "second"},
			{Role: model.RoleAssistant, Content: "trailing assistant message"},
		}
		query, ok := latestUserMessage(history)
		require.True(t, ok)
		assert.Equal(t, "second", query)
	})

	t.Run("rejects a conversation without user messages", func(t *testing.T) {
		composer := NewComposer(&fakeDocSource{doc: testDoc()}, &fakeRetriever{}, &fakeEmbedder{}, &fakeChatModel{})
		_, err := composer.Answer(ctx, "doc-1", []model.ChatMessage{
			{Role: model.RoleAssistant, Content: "hello"},
		})
		assert.ErrorIs(t, err, ErrNoUserMessage)
	})

	t.Run("propagates missing documents", func(t *testing.T) {
		composer := NewComposer(&fakeDocSource{err: model.ErrNotFound}, &fakeRetriever{}, &fakeEmbedder{}, &fakeChatModel{})
		_, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("generation failure is an error even with grounding", func(t *testing.T) {
		retriever := &fakeRetriever{matches: []search.Match{
			{ChunkIndex: 0, ChunkText: "excerpt", Similarity: 0.9},
		}}
		composer := NewComposer(
			&fakeDocSource{doc: testDoc()},
			retriever,
			&fakeEmbedder{},
			&fakeChatModel{err: errors.New("model overloaded")},
		)
		_, err := composer.Answer(ctx, "doc-1", userAsks("q"))
		assert.Error(t, err)
	})
}
