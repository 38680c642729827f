// Package llm adapts hosted language models to repository.LanguageModel.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
)

const (
	DefaultModel     = "gpt-3.5-turbo"
	DefaultMaxTokens = 100
)

var errEmptyCompletion = errors.New("completion has no choices")

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	// BaseURL overrides the API endpoint. Empty means the public API.
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIClient implements repository.LanguageModel with the chat completions API.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

var _ repository.LanguageModel = (*OpenAIClient)(nil)

// NewOpenAIClient creates a chat completions client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// Complete sends the conversation and returns the first choice's text.
func (c *OpenAIClient) Complete(ctx context.Context, req repository.CompletionRequest) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case repository.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(c.model),
		Messages:  messages,
		MaxTokens: openai.Int(c.maxTokens),
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: %w", repository.ErrProviderUnavailable, errEmptyCompletion)
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// classify maps API errors onto repository sentinels and logs the details,
// which are never shown to end users.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		slog.Warn("openai request failed",
			"status", apiErr.StatusCode,
			"error", apiErr.Message,
		)
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: openai: %w", repository.ErrProviderUnauthorized, err)
		}
		return fmt.Errorf("%w: openai status %d: %w", repository.ErrProviderUnavailable, apiErr.StatusCode, err)
	}

	slog.Warn("openai request failed", "error", err)
	return fmt.Errorf("%w: openai: %w", repository.ErrProviderUnavailable, err)
}
