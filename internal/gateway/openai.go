package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/prompt-enhancer/internal/model"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAI calls the chat completions API.
type OpenAI struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

var _ Gateway = (*OpenAI)(nil)

// NewOpenAI constructs the adapter. baseURL may be empty for the public endpoint.
func NewOpenAI(baseURL string, timeout time.Duration, log *zap.Logger) *OpenAI {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAI{baseURL: baseURL, client: &http.Client{Timeout: timeout}, log: log}
}

func (c *OpenAI) Invoke(ctx context.Context, req Request) (Result, error) {
	cfg := openai.DefaultConfig(req.APIKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cfg.HTTPClient = c.client
	client := openai.NewClientWithConfig(cfg)

	m := req.Model
	if m == "" {
		m = model.DefaultOpenAIModel
	}
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxTokens:   openAIMaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return Result{}, c.mapError(err)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if text == "" {
		return Result{}, emptyError(model.ProviderOpenAI)
	}
	return Result{
		Text:         text,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAI) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		c.log.Warn("openai error", zap.Int("status", apiErr.HTTPStatusCode), zap.String("type", apiErr.Type))
		return statusError(model.ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		c.log.Warn("openai error", zap.Int("status", reqErr.HTTPStatusCode))
		return statusError(model.ProviderOpenAI, reqErr.HTTPStatusCode, "")
	}
	c.log.Warn("openai request failed", zap.Error(err))
	return networkError(model.ProviderOpenAI, err)
}
