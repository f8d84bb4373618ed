package enrich

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"fin-query-agent/internal/logger"
	"fin-query-agent/internal/types"
)

const (
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxExcerpt = 600
	refKey     = "ref"
)

// publishedSelectors are tried in order for the article publication time.
var publishedSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[name="article:published_time"]`,
	`meta[itemprop="datePublished"]`,
	`meta[name="pubdate"]`,
	`time[datetime]`,
}

type Config struct {
	MaxPages        int
	Timeout         time.Duration
	MinSnippetChars int
	Parallelism     int
}

// Enricher fetches the source pages of thin evidence items and fills in a
// readable excerpt and the publication time. Fetch and parse failures leave
// the item as it was.
type Enricher struct {
	cfg Config
}

func New(cfg Config) *Enricher {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MinSnippetChars <= 0 {
		cfg.MinSnippetChars = 80
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	return &Enricher{cfg: cfg}
}

// needsPage reports whether an item is thin enough to be worth a fetch.
func (e *Enricher) needsPage(it types.EvidenceItem) bool {
	if !strings.HasPrefix(it.URL, "http://") && !strings.HasPrefix(it.URL, "https://") {
		return false
	}
	undated := !it.HasDate() && strings.TrimSpace(it.DateText) == ""
	return len(strings.TrimSpace(it.Snippet)) < e.cfg.MinSnippetChars || undated
}

// ctxTransport binds every page fetch to the caller's context so cancellation
// also stops requests already in flight.
type ctxTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.ctx.Err(); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// Enrich returns a copy of items with thin entries filled in from their pages.
// Order and refs are never changed.
func (e *Enricher) Enrich(ctx context.Context, items []types.EvidenceItem) []types.EvidenceItem {
	out := make([]types.EvidenceItem, len(items))
	copy(out, items)

	var targets []int
	for i, it := range out {
		if len(targets) >= e.cfg.MaxPages {
			break
		}
		if e.needsPage(it) {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return out
	}

	c := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(1),
		colly.UserAgent(userAgent),
	)
	c.SetRequestTimeout(e.cfg.Timeout)
	c.WithTransport(&ctxTransport{base: http.DefaultTransport, ctx: ctx})
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: e.cfg.Parallelism}); err != nil {
		logger.Warn(ctx, "Enrichment limit rule rejected", "error", err)
	}

	var mu sync.Mutex
	enriched := 0

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		idx, err := strconv.Atoi(r.Ctx.Get(refKey))
		if err != nil || idx < 0 || idx >= len(out) || ctx.Err() != nil {
			return
		}
		page, ok := readPage(r)
		if !ok {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if apply(&out[idx], page, e.cfg.MinSnippetChars) {
			enriched++
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.Debug(ctx, "Enrichment fetch failed", "url", r.Request.URL.String(), "status", r.StatusCode, "error", err)
	})

	for _, i := range targets {
		rctx := colly.NewContext()
		rctx.Put(refKey, strconv.Itoa(i))
		if err := c.Request("GET", out[i].URL, nil, rctx, nil); err != nil {
			logger.Debug(ctx, "Enrichment request not sent", "url", out[i].URL, "error", err)
		}
	}
	c.Wait()

	logger.Debug(ctx, "Evidence enriched", "candidates", len(targets), "enriched", enriched)
	return out
}

type page struct {
	excerpt   string
	published time.Time
	dateText  string
}

func readPage(r *colly.Response) (page, bool) {
	var p page

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return p, false
	}
	for _, sel := range publishedSelectors {
		node := doc.Find(sel).First()
		raw, ok := node.Attr("content")
		if !ok {
			raw, ok = node.Attr("datetime")
		}
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			continue
		}
		if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
			p.published, p.dateText = t.UTC(), raw
			break
		}
	}

	article, err := readability.FromReader(bytes.NewReader(r.Body), r.Request.URL)
	if err == nil {
		text := strings.TrimSpace(article.Excerpt)
		if len(text) < len(strings.TrimSpace(article.TextContent)) && len(text) < maxExcerpt/2 {
			text = strings.TrimSpace(article.TextContent)
		}
		p.excerpt = truncate(collapseSpace(text), maxExcerpt)
	}

	return p, p.excerpt != "" || !p.published.IsZero()
}

// apply merges page data into the item and reports whether anything changed.
func apply(it *types.EvidenceItem, p page, minChars int) bool {
	changed := false
	if len(strings.TrimSpace(it.Snippet)) < minChars && len(p.excerpt) > len(it.Snippet) {
		it.Snippet = p.excerpt
		changed = true
	}
	if !it.HasDate() && !p.published.IsZero() {
		it.PublishedAt = p.published
		if it.DateText == "" {
			it.DateText = p.dateText
		}
		changed = true
	}
	return changed
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndex(s[:n], " ")
	if cut <= 0 {
		cut = n
	}
	return s[:cut] + "..."
}
