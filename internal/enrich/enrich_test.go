package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fin-query-agent/internal/types"
)

var body = strings.Repeat("Amazon shares rose after quarterly revenue beat analyst estimates and cloud growth accelerated. ", 8)

const articleHTML = `<!doctype html>
<html><head>
<title>Amazon climbs on earnings</title>
<meta property="article:published_time" content="2025-01-08T14:30:00Z">
</head>
<body><article><h1>Amazon climbs on earnings</h1><p>%s</p><p>%s</p></article></body></html>`

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, articleHTML, body, body)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnrichFillsThinItems(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)

	dated := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	items := []types.EvidenceItem{
		{Ref: 1, URL: srv.URL + "/thin", Title: "Amazon climbs", Snippet: "AMZN up"},
		{Ref: 2, URL: srv.URL + "/rich", Title: "Full", Snippet: strings.Repeat("x", 200), PublishedAt: dated},
		{Ref: 3, URL: srv.URL + "/missing", Title: "Gone", Snippet: "short"},
	}

	e := New(Config{MaxPages: 5, Timeout: 2 * time.Second, MinSnippetChars: 80})
	out := e.Enrich(context.Background(), items)

	require.Len(t, out, 3)
	for i := range out {
		assert.Equal(t, i+1, out[i].Ref)
	}

	assert.Contains(t, out[0].Snippet, "quarterly revenue")
	assert.Equal(t, time.Date(2025, 1, 8, 14, 30, 0, 0, time.UTC), out[0].PublishedAt)
	assert.Equal(t, "2025-01-08T14:30:00Z", out[0].DateText)

	// Already rich and dated: not fetched.
	assert.Equal(t, items[1], out[1])
	// Fetch failure leaves the item alone.
	assert.Equal(t, items[2], out[2])
	assert.Equal(t, int32(2), hits.Load())

	// Input slice is not modified.
	assert.Equal(t, "AMZN up", items[0].Snippet)
}

func TestEnrichRespectsMaxPages(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)

	var items []types.EvidenceItem
	for i := 1; i <= 4; i++ {
		items = append(items, types.EvidenceItem{Ref: i, URL: fmt.Sprintf("%s/p%d", srv.URL, i), Snippet: "thin"})
	}

	out := New(Config{MaxPages: 2, Timeout: 2 * time.Second}).Enrich(context.Background(), items)
	assert.Equal(t, int32(2), hits.Load())
	assert.NotEqual(t, "thin", out[0].Snippet)
	assert.NotEqual(t, "thin", out[1].Snippet)
	assert.Equal(t, "thin", out[2].Snippet)
}

func TestEnrichSkipsNonHTTPAndCanceled(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)

	e := New(Config{})
	items := []types.EvidenceItem{{Ref: 1, Snippet: "answer box"}}
	assert.Equal(t, items, e.Enrich(context.Background(), items))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items = []types.EvidenceItem{{Ref: 1, URL: srv.URL + "/a", Snippet: "thin"}}
	assert.Equal(t, items, e.Enrich(ctx, items))
	assert.Equal(t, int32(0), hits.Load())
}

func TestEnrichCancelStopsInFlightFetch(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(5 * time.Second):
		}
		fmt.Fprintf(w, articleHTML, body, body)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	items := []types.EvidenceItem{{Ref: 1, URL: srv.URL + "/slow", Snippet: "thin"}}
	begin := time.Now()
	out := New(Config{Timeout: 10 * time.Second}).Enrich(ctx, items)

	assert.Less(t, time.Since(begin), 3*time.Second)
	assert.Equal(t, items, out)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "one two...", truncate("one two three", 9))
}
