package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"starlinks/internal/config"
)

var (
	// ErrEmptyResponse is returned when the upstream call succeeds but
	// carries no usable text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrUnknownProvider is returned by New for an unsupported ai.provider.
	ErrUnknownProvider = errors.New("unknown text generation provider")
	// ErrMissingAPIKey is returned when the selected provider has no key.
	ErrMissingAPIKey = errors.New("text generation API key is required")
)

// Request is one text generation call.
type Request struct {
	System      string  // System prompt
	User        string  // User prompt
	Model       string  // Optional override of the client's default model
	Schema      any     // Optional JSON schema for structured output
	SchemaName  string  // Name reported to providers that require one
	MaxTokens   int32   // Maximum number of tokens to generate
	Temperature float32 // Temperature for randomness (0.0 to 1.0)
}

// Generator is the text generation boundary used by the pipeline.
type Generator interface {
	// Generate returns the raw model text or an error. Providers return an
	// error wrapping ErrEmptyResponse when the reply has no text.
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// New builds the configured provider wrapped in a TracedClient.
func New(ctx context.Context, cfg config.AI) (*TracedClient, error) {
	var (
		gen     Generator
		model   string
		timeout time.Duration
	)
	switch cfg.Provider {
	case "", "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("%w: set GEMINI_API_KEY or ai.gemini.api_key", ErrMissingAPIKey)
		}
		client, err := NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		client.maxTokens = cfg.Gemini.MaxTokens
		client.temperature = cfg.Gemini.Temperature
		gen, model = client, client.modelName
		timeout = config.Duration(cfg.Gemini.Timeout, 90*time.Second)
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("%w: set OPENAI_API_KEY or ai.openai.api_key", ErrMissingAPIKey)
		}
		client := NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
		gen, model = client, client.model
		timeout = config.Duration(cfg.OpenAI.Timeout, 90*time.Second)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	return NewTracedClient(gen, model, timeout), nil
}
