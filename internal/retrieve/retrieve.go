package retrieve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"fin-query-agent/internal/api"
	"fin-query-agent/internal/interfaces"
	"fin-query-agent/internal/logger"
	"fin-query-agent/internal/search"
	"fin-query-agent/internal/trace"
	"fin-query-agent/internal/types"
)

type Options struct {
	MaxCalls       int
	ResultsPerCall int
	RetryBackoff   time.Duration
	// QPS paces calls within one invocation. Zero disables pacing.
	QPS float64
	// FallbackQuery is searched verbatim when no entity was resolved.
	FallbackQuery string
}

// Enricher fills in thin evidence items. It must return items in the same
// order and absorb its own failures.
type Enricher interface {
	Enrich(ctx context.Context, items []types.EvidenceItem) []types.EvidenceItem
}

// Retriever is built per invocation; it holds no state between calls.
type Retriever struct {
	searcher search.Searcher
	enricher Enricher
	opts     Options
	now      func() time.Time
}

var _ interfaces.Retriever = (*Retriever)(nil)

func New(searcher search.Searcher, opts Options, enricher Enricher) *Retriever {
	if opts.MaxCalls <= 0 {
		opts.MaxCalls = 3
	}
	if opts.ResultsPerCall <= 0 {
		opts.ResultsPerCall = 10
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	return &Retriever{searcher: searcher, enricher: enricher, opts: opts, now: time.Now}
}

type slot struct {
	req     search.Request
	results []search.Result
	at      time.Time
}

// Retrieve runs the query plan concurrently and merges results in plan order,
// so citation numbers do not depend on completion order. Each failed call is
// retried once; a second failure fails the whole retrieval with a
// RetrievalError and cancels the sibling calls.
func (r *Retriever) Retrieve(ctx context.Context, entity *types.Entity, intent types.Intent, w types.TimeWindow) ([]types.EvidenceItem, error) {
	plan := Plan(entity, intent, w, r.opts.FallbackQuery, r.opts.ResultsPerCall)
	if len(plan) > r.opts.MaxCalls {
		plan = plan[:r.opts.MaxCalls]
	}
	if len(plan) == 0 {
		return nil, nil
	}

	var limiter *rate.Limiter
	if r.opts.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.opts.QPS), 1)
	}

	slots := make([]slot, len(plan))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxCalls)
	for i := range plan {
		i := i
		slots[i].req = plan[i]
		g.Go(func() error {
			res, err := r.call(gctx, limiter, &plan[i])
			if err != nil {
				return types.RetrievalError("search", fmt.Errorf("query %q: %w", plan[i].Query, err))
			}
			slots[i].results = res
			slots[i].at = r.now()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := merge(slots)
	logger.Info(ctx, "Evidence retrieved",
		"calls", len(plan),
		"items", len(items),
		"entity", entity.String(),
		"intent", intent,
	)

	if r.enricher != nil && len(items) > 0 {
		items = r.enricher.Enrich(ctx, items)
	}
	return items, nil
}

func (r *Retriever) call(ctx context.Context, limiter *rate.Limiter, req *search.Request) ([]search.Result, error) {
	ctx, span := trace.StartSpan(ctx, "search.call")
	defer span.End()

	var out []search.Result
	err := api.Retry(ctx, &api.RetryConfig{
		MaxAttempts: 2,
		InitialWait: r.opts.RetryBackoff,
		MaxWait:     r.opts.RetryBackoff,
		Retryable:   search.Retryable,
	}, func(ctx context.Context, attempt int) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		resp, err := r.searcher.Search(ctx, req)
		if err != nil {
			if attempt == 1 && search.Retryable(err) && !errors.Is(err, context.Canceled) {
				logger.Warn(ctx, "Search call failed, retrying once", "topic", req.Topic, "error", err)
			}
			return err
		}
		out = resp.Results
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// merge walks slots in plan order and results in provider order, keeping the
// first occurrence of each normalized URL and numbering from 1.
func merge(slots []slot) []types.EvidenceItem {
	seen := map[string]bool{}
	var items []types.EvidenceItem
	for _, s := range slots {
		for _, res := range s.results {
			key := NormalizeURL(res.URL)
			if res.URL == "" {
				key = "text:" + res.Title + "|" + res.Snippet
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, types.EvidenceItem{
				Ref:         len(items) + 1,
				Kind:        res.Kind,
				URL:         res.URL,
				Title:       res.Title,
				Source:      res.Source,
				Snippet:     res.Snippet,
				DateText:    res.PublishedDate,
				Price:       res.Price,
				RetrievedAt: s.at,
				Query:       s.req.Query,
			})
		}
	}
	return items
}
