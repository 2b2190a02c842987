package llm

import (
	"cmp"
	"context"
	"time"

	"starlinks/internal/logger"
)

// TracedClient wraps a Generator with a per-call timeout and structured
// logging of model, estimated prompt tokens, latency and outcome.
type TracedClient struct {
	next     Generator
	model    string
	timeout  time.Duration
	estimate func(string) int
}

// NewTracedClient wraps next. A zero timeout disables the per-call deadline.
func NewTracedClient(next Generator, model string, timeout time.Duration) *TracedClient {
	return &TracedClient{next: next, model: model, timeout: timeout, estimate: EstimateTokens}
}

// Model returns the default model of the wrapped provider.
func (tc *TracedClient) Model() string {
	return tc.model
}

// Generate calls the wrapped generator.
func (tc *TracedClient) Generate(ctx context.Context, req Request) (string, error) {
	if tc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tc.timeout)
		defer cancel()
	}

	model := cmp.Or(req.Model, tc.model)
	logger.Debug("text generation started",
		"model", model,
		"prompt_tokens", tc.estimate(req.System+"\n"+req.User),
		"structured", req.Schema != nil,
	)

	start := time.Now()
	text, err := tc.next.Generate(ctx, req)
	latency := time.Since(start)
	if err != nil {
		logger.Error("text generation failed", err, "model", model, "latency_ms", latency.Milliseconds())
		return "", err
	}

	logger.Info("text generation completed",
		"model", model,
		"latency_ms", latency.Milliseconds(),
		"completion_tokens", tc.estimate(text),
	)
	return text, nil
}
