// Package llm wraps the chat-completion providers behind one small interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"horobot/internal/config"
)

// ErrEmptyCompletion is returned when the provider answers without text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Request is a single-turn chat completion.
type Request struct {
	Model     string
	System    string
	User      string
	MaxTokens int
}

// Client produces one completion per call. Implementations do not retry.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	timeout, err := config.ParseDurationField("llm.timeout", cfg.Timeout)
	if err != nil {
		return nil, err
	}
	var hc *http.Client
	if timeout > 0 {
		hc = &http.Client{Timeout: timeout}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", config.ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, hc)
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.BaseURL, hc)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}
