package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fin-query-agent/internal/search"
)

const googleBody = `{
  "answer_box": {"title": "Amazon.com Inc", "price": "$186.40", "link": "https://www.google.com/finance/quote/AMZN:NASDAQ"},
  "organic_results": [
    {"title": "AMZN hits high", "link": "https://example.com/a", "snippet": "Amazon closed at $185.20 on Jan 5, 2025", "date": "3 days ago", "source": "Example"},
    {"title": "AMZN dips", "link": "https://example.com/b", "snippet": "Shares fell to $180.10", "date": "Jan 2, 2025"}
  ]
}`

const newsBody = `{
  "news_results": [
    {"title": "Amazon rallies", "link": "https://news.example.com/1", "snippet": "up 4%", "date": "01/06/2025, 08:00 AM, +0000 UTC", "source": {"name": "Reuters", "icon": "x"}}
  ]
}`

func TestSearchGeneral(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		got = map[string]string{}
		for k := range r.URL.Query() {
			got[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(googleBody))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k1", GL: "us", HL: "en"})
	resp, err := c.Search(context.Background(), &search.Request{Query: "AMZN stock price", Num: 10, Recency: 14 * 24 * time.Hour})
	require.NoError(t, err)

	assert.Equal(t, "google", got["engine"])
	assert.Equal(t, "k1", got["api_key"])
	assert.Equal(t, "qdr:w2", got["tbs"])
	assert.Equal(t, "10", got["num"])
	assert.Equal(t, "us", got["gl"])

	require.Len(t, resp.Results, 3)
	assert.Equal(t, search.KindAnswerBox, resp.Results[0].Kind)
	require.NotNil(t, resp.Results[0].Price)
	assert.InDelta(t, 186.40, *resp.Results[0].Price, 1e-9)
	assert.Equal(t, "https://example.com/a", resp.Results[1].URL)
	assert.Equal(t, "3 days ago", resp.Results[1].PublishedDate)
}

func TestSearchNewsUsesWhenOperator(t *testing.T) {
	var q, engine, tbs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q = r.URL.Query().Get("q")
		engine = r.URL.Query().Get("engine")
		tbs = r.URL.Query().Get("tbs")
		w.Write([]byte(newsBody))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	resp, err := c.Search(context.Background(), &search.Request{Query: "Amazon stock", Topic: "news", Recency: 14 * 24 * time.Hour})
	require.NoError(t, err)

	assert.Equal(t, "google_news", engine)
	assert.Equal(t, "Amazon stock when:14d", q)
	assert.Empty(t, tbs)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Reuters", resp.Results[0].Source)
}

func TestSearchErrorClasses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid API key."}`, search.ErrAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error":"too many"}`, search.ErrRateLimited},
		{"server", http.StatusBadGateway, `oops`, search.ErrUnavailable},
		{"error on 200", http.StatusOK, `{"error":"Unsupported engine"}`, search.ErrBadResponse},
		{"not json", http.StatusOK, `<html>`, search.ErrBadResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL, APIKey: "k"}).Search(context.Background(), &search.Request{Query: "x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.NotContains(t, err.Error(), "api_key=k")
		})
	}
}

func TestSearchNoResultsIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Google hasn't returned any results for this query."}`))
	}))
	defer srv.Close()

	resp, err := New(Config{BaseURL: srv.URL, APIKey: "k"}).Search(context.Background(), &search.Request{Query: "zzz"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearchRequiresKey(t *testing.T) {
	_, err := New(Config{}).Search(context.Background(), &search.Request{Query: "x"})
	assert.ErrorIs(t, err, search.ErrAuth)
}

func TestRecencyRendering(t *testing.T) {
	day := 24 * time.Hour
	assert.Equal(t, "w2", tbsPeriod(14*day))
	assert.Equal(t, "d3", tbsPeriod(3*day))
	assert.Equal(t, "d", tbsPeriod(6*time.Hour))
	assert.Equal(t, "m3", tbsPeriod(90*day))
	assert.Equal(t, "y1", tbsPeriod(365*day))
	assert.Equal(t, "14d", newsWhen(14*day))
	assert.Equal(t, "6h", newsWhen(6*time.Hour))
}
