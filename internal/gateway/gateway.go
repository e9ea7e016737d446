// Package gateway calls upstream LLM providers and normalizes their replies.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/model"
)

// Request is a single system+user chat completion.
type Request struct {
	Provider model.Provider
	APIKey   string
	Model    string
	System   string
	User     string
}

// Result carries the completion text and the token counts reported by the provider.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Gateway produces a completion. Failures are *errs.UpstreamError.
type Gateway interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

// Shared sampling parameters.
const (
	temperature        = 0.3
	openAIMaxTokens    = 1000
	anthropicMaxTokens = 1024
	defaultTimeout     = 30 * time.Second
)

// Registry dispatches requests to the adapter registered for their provider.
type Registry struct {
	adapters map[model.Provider]Gateway
}

var _ Gateway = (*Registry)(nil)

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters map[model.Provider]Gateway) *Registry {
	m := make(map[model.Provider]Gateway, len(adapters))
	for p, g := range adapters {
		m[p] = g
	}
	return &Registry{adapters: m}
}

// Invoke routes req by its provider.
func (r *Registry) Invoke(ctx context.Context, req Request) (Result, error) {
	g, ok := r.adapters[req.Provider]
	if !ok {
		return Result{}, errs.Validationf("unsupported provider %q", req.Provider)
	}
	return g.Invoke(ctx, req)
}

func displayName(p model.Provider) string {
	switch p {
	case model.ProviderOpenAI:
		return "OpenAI"
	case model.ProviderAnthropic:
		return "Anthropic"
	default:
		return string(p)
	}
}

// statusError maps a non-2xx provider reply to a normalized error.
func statusError(p model.Provider, status int, message string) *errs.UpstreamError {
	name := displayName(p)
	e := &errs.UpstreamError{Provider: string(p), StatusCode: status}
	switch status {
	case http.StatusUnauthorized:
		e.Kind = errs.UpstreamAuth
		e.Message = fmt.Sprintf("Invalid %s API key. Please check your API key in settings.", name)
	case http.StatusForbidden:
		e.Kind = errs.UpstreamForbidden
		e.Message = fmt.Sprintf("%s API access forbidden. Please check your API key permissions.", name)
	case http.StatusTooManyRequests:
		e.Kind = errs.UpstreamRateLimited
		e.Message = fmt.Sprintf("%s API rate limit exceeded. Please try again later.", name)
	case http.StatusBadRequest:
		if message == "" {
			message = "Invalid request"
		}
		e.Kind = errs.UpstreamBadRequest
		e.Message = fmt.Sprintf("%s API error: %s", name, message)
	default:
		e.Kind = errs.UpstreamStatus
		e.Message = fmt.Sprintf("%s API error: %d", name, status)
	}
	return e
}

func emptyError(p model.Provider) *errs.UpstreamError {
	return &errs.UpstreamError{
		Provider: string(p),
		Kind:     errs.UpstreamEmpty,
		Message:  displayName(p) + " returned empty content.",
	}
}

func networkError(p model.Provider, err error) *errs.UpstreamError {
	return &errs.UpstreamError{
		Provider: string(p),
		Kind:     errs.UpstreamNetwork,
		Message:  displayName(p) + " API is unreachable. Please try again later.",
		Err:      err,
	}
}
