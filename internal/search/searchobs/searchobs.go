package searchobs

import (
	"context"
	"time"

	"fin-query-agent/internal/logger"
	"fin-query-agent/internal/search"
	"fin-query-agent/internal/trace"
)

// observableSearcher wraps a Searcher with observability (logging & tracing)
type observableSearcher struct {
	searcher search.Searcher
	provider string
}

// Compile-time interface check
var _ search.Searcher = (*observableSearcher)(nil)

// Wrap wraps a searcher with observability middleware
func Wrap(s search.Searcher, provider string) search.Searcher {
	return &observableSearcher{
		searcher: s,
		provider: provider,
	}
}

// Search runs one provider call with observability. Query text is logged, keys never are.
func (so *observableSearcher) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	ctx, span := trace.StartSpan(ctx, "search.Search")
	defer span.End()

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Searching",
		"provider", so.provider,
		"query", req.Query,
		"topic", req.Topic,
		"recency", req.Recency.String(),
	)

	resp, err := so.searcher.Search(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Search failed", err,
			"provider", so.provider,
			"topic", req.Topic,
			"retryable", search.Retryable(err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Search completed",
		"provider", so.provider,
		"topic", req.Topic,
		"results", len(resp.Results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}
