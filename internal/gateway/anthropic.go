package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/prompt-enhancer/internal/model"
	"go.uber.org/zap"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// Anthropic calls the Messages API.
type Anthropic struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

var _ Gateway = (*Anthropic)(nil)

// NewAnthropic constructs the adapter. baseURL may be empty for the public endpoint.
func NewAnthropic(baseURL string, timeout time.Duration, log *zap.Logger) *Anthropic {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Anthropic{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}, log: log}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorBody struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Anthropic) Invoke(ctx context.Context, req Request) (Result, error) {
	m := req.Model
	if m == "" {
		m = model.DefaultAnthropicModel
	}
	body, err := json.Marshal(anthropicRequest{
		Model:       m,
		MaxTokens:   anthropicMaxTokens,
		Temperature: temperature,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
	})
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", req.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.log.Warn("anthropic request failed", zap.Error(err))
		return Result{}, networkError(model.ProviderAnthropic, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, networkError(model.ProviderAnthropic, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb anthropicErrorBody
		msg := ""
		if json.Unmarshal(raw, &eb) == nil && eb.Error != nil {
			msg = eb.Error.Message
		}
		c.log.Warn("anthropic error", zap.Int("status", resp.StatusCode))
		return Result{}, statusError(model.ProviderAnthropic, resp.StatusCode, msg)
	}

	var out anthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, emptyError(model.ProviderAnthropic)
	}
	var text string
	if len(out.Content) > 0 {
		text = strings.TrimSpace(out.Content[0].Text)
	}
	if text == "" {
		return Result{}, emptyError(model.ProviderAnthropic)
	}
	return Result{
		Text:         text,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}
