// Package synth asks the language model for the four-section answer.
package synth

import (
	"context"
	"errors"
	"strings"
	"time"

	"fin-query-agent/internal/api"
	"fin-query-agent/internal/interfaces"
	"fin-query-agent/internal/llm"
	"fin-query-agent/internal/logger"
	"fin-query-agent/internal/types"
)

type Input = types.SynthesisInput

type Options struct {
	// RateLimitRetries is how many extra attempts a rate-limited call gets.
	RateLimitRetries int
	RetryBackoff     time.Duration
}

type Synthesizer struct {
	client llm.Client
	opts   Options
}

var _ interfaces.Synthesizer = (*Synthesizer)(nil)

func New(client llm.Client, opts Options) *Synthesizer {
	if opts.RateLimitRetries < 0 {
		opts.RateLimitRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	return &Synthesizer{client: client, opts: opts}
}

// Synthesize makes one completion call and returns the raw model text. Only
// rate limiting is retried. Any other failure, or empty text, is a
// SynthesisError; there is no fallback answer.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (string, error) {
	user := buildUserPrompt(in)

	var raw string
	err := api.Retry(ctx, &api.RetryConfig{
		MaxAttempts: 1 + s.opts.RateLimitRetries,
		InitialWait: s.opts.RetryBackoff,
		MaxWait:     4 * s.opts.RetryBackoff,
		Retryable:   llm.Retryable,
	}, func(ctx context.Context, attempt int) error {
		out, err := s.client.Complete(ctx, systemPrompt, user)
		if err != nil {
			if errors.Is(err, llm.ErrRateLimited) && attempt <= s.opts.RateLimitRetries {
				logger.Warn(ctx, "Model rate limited, backing off", "attempt", attempt)
			}
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		return "", types.SynthesisError("complete", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", types.SynthesisError("complete", llm.ErrEmptyCompletion)
	}

	logger.Debug(ctx, "Answer synthesized",
		"entity", in.Entity.String(),
		"intent", in.Intent,
		"metrics", len(in.Metrics),
		"evidence", len(in.Evidence),
		"chars", len(raw),
	)
	return raw, nil
}
