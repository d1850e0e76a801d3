package openai

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/pagebound/pagebound/internal/ai"
	"github.com/pagebound/pagebound/internal/model"
)

// ChatModel implements ai.ChatModel using OpenAI-compatible chat APIs.
type ChatModel struct {
	client llms.Model
	logger *slog.Logger
}

func newChatModel(config *ai.Config) (*ChatModel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(config.Token),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}
	return &ChatModel{
		client: client,
		logger: slog.Default().With("component", "openai-chat"),
	}, nil
}

// NewChatModel creates a chat model from the configuration.
func NewChatModel(config *ai.Config) (ai.ChatModel, error) {
	return newChatModel(config)
}

// Generate produces a reply for the conversation under the system instruction.
func (m *ChatModel) Generate(ctx context.Context, system string, history []model.ChatMessage) (string, model.TokenUsage, error) {
	content := make([]llms.MessageContent, 0, len(history)+1)
	if system != "" {
		content = append(content, llms.MessageContent{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		})
	}
	for _, msg := range history {
		content = append(content, llms.MessageContent{
			Role:  chatRole(msg.Role),
			Parts: []llms.ContentPart{llms.TextPart(msg.Content)},
		})
	}

	response, err := m.client.GenerateContent(ctx, content, llms.WithTemperature(0.7))
	if err != nil {
		m.logger.Error("failed to generate content", "messages", len(content), "err", err)
		return "", model.TokenUsage{}, err
	}
	if len(response.Choices) == 0 {
		m.logger.Warn("no choices returned from model")
		return "", model.TokenUsage{}, nil
	}
	choice := response.Choices[0]
	return choice.Content, tokenUsage(choice.GenerationInfo), nil
}

func chatRole(role model.ChatRole) schema.ChatMessageType {
	switch role {
	case model.RoleAssistant:
		return schema.ChatMessageTypeAI
	case model.RoleSystem:
		return schema.ChatMessageTypeSystem
	default:
		return schema.ChatMessageTypeHuman
	}
}

// tokenUsage pulls the provider's accounting out of the generation info map.
// Providers that omit it simply report zeros.
func tokenUsage(info map[string]any) model.TokenUsage {
	return model.TokenUsage{
		PromptTokens:     intFrom(info, "PromptTokens"),
		CompletionTokens: intFrom(info, "CompletionTokens"),
		TotalTokens:      intFrom(info, "TotalTokens"),
	}
}

func intFrom(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
