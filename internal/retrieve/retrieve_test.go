package retrieve

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fin-query-agent/internal/search"
	"fin-query-agent/internal/types"
)

type fakeSearcher struct {
	mu      sync.Mutex
	byQuery map[string][]search.Result
	delay   map[string]time.Duration
	// failures counts down per query; each call while positive returns failErr.
	failures map[string]int
	failErr  error
	calls    atomic.Int32
	seen     []search.Request
}

func (f *fakeSearcher) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, *req)
	d := f.delay[req.Query]
	fail := f.failures[req.Query] > 0
	if fail {
		f.failures[req.Query]--
	}
	f.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, f.failErr
	}
	return &search.Response{Results: f.byQuery[req.Query]}, nil
}

var amazon = &types.Entity{Name: "Amazon.com Inc.", Ticker: "AMZN", Exchange: "NASDAQ", Confidence: 0.9}

var window = types.TimeWindow{Duration: 14 * 24 * time.Hour, Label: "past 2 weeks"}

func momentumResults() map[string][]search.Result {
	return map[string][]search.Result{
		"Amazon.com (AMZN) stock price": {
			{Kind: search.KindOrganic, URL: "https://www.example.com/a?utm_source=x", Title: "A"},
			{Kind: search.KindOrganic, URL: "https://example.com/b", Title: "B"},
		},
		"AMZN stock 52 week high": {
			{Kind: search.KindOrganic, URL: "https://example.com/a/", Title: "A again"},
			{Kind: search.KindOrganic, URL: "https://example.com/c", Title: "C"},
		},
		"Amazon.com stock news": {
			{Kind: search.KindNews, URL: "https://news.example.com/d#top", Title: "D"},
			{Kind: search.KindNews, URL: "https://example.com/b", Title: "B again"},
		},
	}
}

func newRetriever(f *fakeSearcher, opts Options) *Retriever {
	opts.RetryBackoff = time.Millisecond
	r := New(f, opts, nil)
	r.now = func() time.Time { return time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC) }
	return r
}

func TestRetrieveMergesInPlanOrderAndDedups(t *testing.T) {
	f := &fakeSearcher{
		byQuery: momentumResults(),
		// The first planned call finishes last.
		delay: map[string]time.Duration{"Amazon.com (AMZN) stock price": 30 * time.Millisecond},
	}
	r := newRetriever(f, Options{MaxCalls: 3})

	items, err := r.Retrieve(context.Background(), amazon, types.IntentMomentum, window)
	require.NoError(t, err)

	var titles []string
	for i, it := range items {
		assert.Equal(t, i+1, it.Ref)
		titles = append(titles, it.Title)
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, titles)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.Equal(t, "Amazon.com (AMZN) stock price", items[0].Query)
	for _, req := range f.seen {
		assert.Equal(t, window.Duration, req.Recency)
	}
}

func TestRetrieveCapsCalls(t *testing.T) {
	f := &fakeSearcher{byQuery: momentumResults()}
	r := newRetriever(f, Options{MaxCalls: 1})

	items, err := r.Retrieve(context.Background(), amazon, types.IntentMomentum, window)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRetrieveRetriesOnce(t *testing.T) {
	f := &fakeSearcher{
		byQuery:  momentumResults(),
		failures: map[string]int{"AMZN stock 52 week high": 1},
		failErr:  search.ErrRateLimited,
	}
	r := newRetriever(f, Options{MaxCalls: 3})

	items, err := r.Retrieve(context.Background(), amazon, types.IntentMomentum, window)
	require.NoError(t, err)
	assert.Len(t, items, 4)
	assert.Equal(t, int32(4), f.calls.Load())
}

func TestRetrieveFailsAfterSecondFailure(t *testing.T) {
	for _, cause := range []error{search.ErrRateLimited, search.ErrAuth, search.ErrUnavailable} {
		f := &fakeSearcher{
			byQuery:  momentumResults(),
			failures: map[string]int{"AMZN stock 52 week high": 2},
			failErr:  cause,
		}
		r := newRetriever(f, Options{MaxCalls: 3})

		items, err := r.Retrieve(context.Background(), amazon, types.IntentMomentum, window)
		require.Error(t, err)
		assert.Nil(t, items)
		assert.Equal(t, types.KindRetrieval, types.KindOf(err))
		assert.ErrorIs(t, err, cause)
	}
}

func TestRetrieveBadResponseIsNotRetried(t *testing.T) {
	f := &fakeSearcher{
		byQuery:  momentumResults(),
		failures: map[string]int{"Amazon.com (AMZN) stock price": 5},
		failErr:  search.ErrBadResponse,
	}
	r := newRetriever(f, Options{MaxCalls: 1})

	_, err := r.Retrieve(context.Background(), amazon, types.IntentMomentum, window)
	require.Error(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRetrieveEmptyIsNotAnError(t *testing.T) {
	f := &fakeSearcher{byQuery: map[string][]search.Result{}}
	r := newRetriever(f, Options{MaxCalls: 3})

	items, err := r.Retrieve(context.Background(), amazon, types.IntentTrend, window)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRetrieveUnresolvedEntityUsesQueryText(t *testing.T) {
	f := &fakeSearcher{byQuery: map[string][]search.Result{}}
	r := newRetriever(f, Options{MaxCalls: 3, FallbackQuery: "how is that bakery stock doing"})

	_, err := r.Retrieve(context.Background(), nil, types.IntentGeneric, window)
	require.NoError(t, err)
	require.Len(t, f.seen, 2)
	assert.Equal(t, "how is that bakery stock doing", f.seen[0].Query)
}

func TestRetrieveCanceled(t *testing.T) {
	f := &fakeSearcher{
		byQuery: momentumResults(),
		delay:   map[string]time.Duration{"Amazon.com (AMZN) stock price": time.Second},
	}
	r := newRetriever(f, Options{MaxCalls: 1})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.Retrieve(ctx, amazon, types.IntentMomentum, window)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, types.KindCanceled, types.KindOf(err))
}

func TestNormalizeURL(t *testing.T) {
	same := []string{
		"https://www.Example.com/path/?b=2&a=1&utm_source=x#frag",
		"http://example.com/path?a=1&b=2",
		"https://example.com:443/path?a=1&b=2&fbclid=zzz",
	}
	want := NormalizeURL(same[0])
	for _, u := range same[1:] {
		assert.Equal(t, want, NormalizeURL(u), u)
	}
	assert.NotEqual(t, want, NormalizeURL("https://example.com/other"))
}

func TestPlanQueries(t *testing.T) {
	p := Plan(amazon, types.IntentValuation, window, "", 10)
	require.Len(t, p, 2)
	assert.Equal(t, "AMZN P/E ratio market cap", p[0].Query)
	assert.Equal(t, "news", p[1].Topic)
	assert.Equal(t, 10, p[0].Num)

	assert.Nil(t, Plan(nil, types.IntentGeneric, window, "  ", 10))
}
