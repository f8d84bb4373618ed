package llmobs

import (
	"context"
	"time"

	"fin-query-agent/internal/llm"
	"fin-query-agent/internal/logger"
	"fin-query-agent/internal/trace"
)

// observableClient wraps an llm.Client with observability (logging & tracing)
type observableClient struct {
	client llm.Client
	model  string
}

// Compile-time interface check
var _ llm.Client = (*observableClient)(nil)

// Wrap wraps a completion client with observability middleware
func Wrap(client llm.Client, model string) llm.Client {
	return &observableClient{
		client: client,
		model:  model,
	}
}

// Complete runs one completion with observability. Prompt text is never logged.
func (oc *observableClient) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Complete")
	defer span.End()

	start := time.Now()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting completion",
		"model", oc.model,
		"system_chars", len(system),
		"user_chars", len(user),
	)

	out, err := oc.client.Complete(ctx, system, user)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Completion failed", err,
			"model", oc.model,
			"rate_limited", llm.Retryable(err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Completion received",
		"model", oc.model,
		"chars", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return out, nil
}
