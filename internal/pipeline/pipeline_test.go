package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fin-query-agent/internal/answer"
	"fin-query-agent/internal/auditlog"
	"fin-query-agent/internal/extract"
	"fin-query-agent/internal/llm"
	"fin-query-agent/internal/search"
	"fin-query-agent/internal/store"
	"fin-query-agent/internal/types"
)

const momentumQuery = "Do a momentum analysis of Amazon for past 2 weeks, has it broken the past high?"

var validCreds = types.Credentials{GroqAPIKey: "gsk-test", SerpAPIKey: "serp-test"}

type countingSearcher struct {
	calls   *atomic.Int32
	results []search.Result
	err     error
}

func (s *countingSearcher) Search(context.Context, *search.Request) (*search.Response, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &search.Response{Results: s.results}, nil
}

type countingCompleter struct {
	calls *atomic.Int32
	reply string
	err   error
}

func (c *countingCompleter) Complete(context.Context, string, string) (string, error) {
	c.calls.Add(1)
	return c.reply, c.err
}

type harness struct {
	searches    atomic.Int32
	completions atomic.Int32
	factories   atomic.Int32
	results     []search.Result
	searchErr   error
	reply       string
	completeErr error
	audit       *auditlog.Log
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg := store.Default()
	off := false
	cfg.Extraction.LLMFallback = &off
	cfg.Search.RetryBackoffMS = 1
	cfg.Search.QPS = 1000
	cfg.LLM.RetryBackoffMS = 1

	dir, err := extract.LoadDirectory("")
	require.NoError(t, err)

	return newPipeline(Deps{
		Config:    cfg,
		Directory: dir,
		NewSearcher: func(key string) search.Searcher {
			h.factories.Add(1)
			assert.Equal(t, validCreds.SerpAPIKey, key)
			return &countingSearcher{calls: &h.searches, results: h.results, err: h.searchErr}
		},
		NewCompleter: func(_ context.Context, key string) (llm.Client, error) {
			h.factories.Add(1)
			assert.Equal(t, validCreds.GroqAPIKey, key)
			return &countingCompleter{calls: &h.completions, reply: h.reply, err: h.completeErr}, nil
		},
		Audit: h.audit,
	})
}

func amazonResults() []search.Result {
	return []search.Result{
		{Kind: search.KindNews, URL: "https://news.example.com/amzn-close", Title: "Amazon shares close lower", Source: "Example News", PublishedDate: "5 days ago", Snippet: "Amazon (AMZN) closed at $220.10 on light volume."},
		{Kind: search.KindOrganic, URL: "https://finance.example.com/quote/AMZN", Title: "AMZN quote and overview", Snippet: "Amazon.com Inc. stock quote, history and news."},
		{Kind: search.KindNews, URL: "https://news.example.com/amzn-high", Title: "Amazon hits new high", Source: "Example Wire", PublishedDate: "1 day ago", Snippet: "AMZN rallied to $231.50, above its recent range."},
		{Kind: search.KindOrganic, URL: "https://example.org/amazon-aws", Title: "AWS growth outlook", Snippet: "Analysts expect cloud growth to accelerate."},
		{Kind: search.KindNews, URL: "https://news.example.com/amzn-retail", Title: "Amazon retail update", Source: "Example News", PublishedDate: "3 days ago", Snippet: "Holiday sales beat expectations."},
	}
}

func TestProcessQueryMomentumEndToEnd(t *testing.T) {
	h := &harness{
		results: amazonResults(),
		reply: answer.Format(
			"Yes. Amazon broke above its prior two-week high [3].",
			"The latest dated price exceeds the earlier dated price [1][3].",
			"[1] Amazon shares close lower - https://news.example.com/amzn-close\n[3] Amazon hits new high - https://news.example.com/amzn-high",
			"Medium",
		),
		audit: auditlog.New(t.TempDir()),
	}
	p := h.pipeline(t)

	res := p.ProcessQuery(context.Background(), momentumQuery, validCreds)
	require.True(t, res.OK(), "failure: %+v", res.Failure)
	require.NotNil(t, res.Entity)
	assert.Equal(t, "AMZN", res.Entity.Ticker)
	assert.Equal(t, types.IntentMomentum, res.Intent)
	assert.NotEmpty(t, res.InvocationID)

	assert.Len(t, res.Evidence, 5)
	assert.Equal(t, int32(3), h.searches.Load())
	assert.Equal(t, int32(1), h.completions.Load())

	byName := map[string]types.Metric{}
	for _, m := range res.Metrics {
		byName[m.Name] = m
	}
	require.Contains(t, byName, "window_high")
	assert.InDelta(t, 231.50, *byName["window_high"].Value, 0.001)
	require.Contains(t, byName, "broke_high")
	assert.True(t, *byName["broke_high"].Flag)
	assert.False(t, types.HasInsufficientData(res.Metrics))

	a := res.Answer
	assert.Equal(t, types.WellFormed, a.State)
	assert.Contains(t, []string{"Low", "Medium", "High"}, a.Confidence)
	assert.Equal(t, "Medium", a.Confidence)
	cited := answer.CitedRefs(a.Citations)
	for _, m := range res.Metrics {
		for _, ref := range m.Evidence {
			assert.True(t, cited[ref], "metric %s ref [%d] not cited", m.Name, ref)
		}
	}

	day := time.Now().UTC().Format("2006-01-02")
	b, err := os.ReadFile(filepath.Join(h.audit.Dir(), day+".jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(b), res.InvocationID)
	assert.Contains(t, string(b), `"ticker":"AMZN"`)
}

func TestProcessQueryRejectsBeforeExternalCalls(t *testing.T) {
	cases := []struct {
		name  string
		query string
		creds types.Credentials
		kind  types.ErrorKind
	}{
		{"empty query", "", validCreds, types.KindInput},
		{"blank query", "   \n\t", validCreds, types.KindInput},
		{"missing groq key", momentumQuery, types.Credentials{SerpAPIKey: "s"}, types.KindCredential},
		{"missing serpapi key", momentumQuery, types.Credentials{GroqAPIKey: "g"}, types.KindCredential},
		{"missing both with empty query", "", types.Credentials{}, types.KindCredential},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &harness{results: amazonResults(), reply: "unused"}
			res := h.pipeline(t).ProcessQuery(context.Background(), tc.query, tc.creds)

			require.False(t, res.OK())
			assert.Equal(t, tc.kind, res.Failure.Kind)
			assert.Equal(t, int32(0), h.searches.Load())
			assert.Equal(t, int32(0), h.completions.Load())
			assert.Equal(t, int32(0), h.factories.Load())
		})
	}
}

func TestProcessQueryMalformedAnswer(t *testing.T) {
	h := &harness{results: amazonResults(), reply: "Amazon looks strong lately."}
	res := h.pipeline(t).ProcessQuery(context.Background(), momentumQuery, validCreds)

	require.True(t, res.OK())
	assert.Equal(t, types.Malformed, res.Answer.State)
	assert.Equal(t, "Amazon looks strong lately.", res.Answer.DirectAnswer)
	assert.Equal(t, types.NotAvailable, res.Answer.Reasoning)
	assert.Equal(t, types.NotAvailable, res.Answer.Citations)
	assert.Equal(t, types.NotAvailable, res.Answer.Confidence)
}

func TestProcessQueryRetrievalFailure(t *testing.T) {
	h := &harness{searchErr: search.ErrUnavailable, reply: "unused"}
	res := h.pipeline(t).ProcessQuery(context.Background(), momentumQuery, validCreds)

	require.False(t, res.OK())
	assert.Equal(t, types.KindRetrieval, res.Failure.Kind)
	assert.Equal(t, "AMZN", res.Entity.Ticker)
	assert.Equal(t, int32(0), h.completions.Load())
}

func TestProcessQuerySynthesisFailure(t *testing.T) {
	h := &harness{results: amazonResults(), completeErr: llm.ErrUpstream}
	res := h.pipeline(t).ProcessQuery(context.Background(), momentumQuery, validCreds)

	require.False(t, res.OK())
	assert.Equal(t, types.KindSynthesis, res.Failure.Kind)
	assert.Equal(t, int32(1), h.completions.Load())
}

func TestProcessQueryRejectedKeyIsCredentialFailure(t *testing.T) {
	t.Run("groq", func(t *testing.T) {
		h := &harness{results: amazonResults(), completeErr: llm.ErrAuth}
		res := h.pipeline(t).ProcessQuery(context.Background(), momentumQuery, validCreds)

		require.False(t, res.OK())
		assert.Equal(t, types.KindCredential, res.Failure.Kind)
		assert.Equal(t, int32(1), h.completions.Load())
	})
	t.Run("serpapi", func(t *testing.T) {
		h := &harness{searchErr: search.ErrAuth, reply: "unused"}
		res := h.pipeline(t).ProcessQuery(context.Background(), momentumQuery, validCreds)

		require.False(t, res.OK())
		assert.Equal(t, types.KindCredential, res.Failure.Kind)
		assert.Equal(t, int32(0), h.completions.Load())
	})
}

func TestProcessQueryUnresolvedCompany(t *testing.T) {
	h := &harness{
		reply: answer.Format("The company could not be identified.", "No company matched the question.", "none", "Low"),
	}
	res := h.pipeline(t).ProcessQuery(context.Background(), "how is that little bakery stock doing lately", validCreds)

	require.True(t, res.OK())
	assert.Nil(t, res.Entity)
	assert.Equal(t, types.IntentGeneric, res.Intent)
	assert.Equal(t, int32(2), h.searches.Load())
	assert.Equal(t, "Low", res.Answer.Confidence)
}

func TestProcessQueryCanceled(t *testing.T) {
	h := &harness{results: amazonResults(), reply: "unused"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.pipeline(t).ProcessQuery(ctx, momentumQuery, validCreds)
	require.False(t, res.OK())
	assert.Equal(t, types.KindCanceled, res.Failure.Kind)
	assert.Equal(t, int32(0), h.completions.Load())
}
