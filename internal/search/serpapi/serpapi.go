package serpapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fin-query-agent/internal/api"
	"fin-query-agent/internal/search"
)

const DefaultBaseURL = "https://serpapi.com"

type Config struct {
	BaseURL    string
	APIKey     string
	Engine     string // general topic engine, e.g. google
	NewsEngine string // news topic engine, e.g. google_news
	GL         string
	HL         string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is a SerpAPI searcher bound to one API key.
type Client struct {
	cfg  Config
	http *api.Client
}

var _ search.Searcher = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Engine == "" {
		cfg.Engine = "google"
	}
	if cfg.NewsEngine == "" {
		cfg.NewsEngine = "google_news"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: api.NewClient(
			api.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
			api.WithTimeout(cfg.Timeout),
			api.WithHTTPClient(cfg.HTTPClient),
			api.WithHeader("Accept", "application/json"),
			api.WithLogging(true),
		),
	}
}

type serpResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
		Source  string `json:"source"`
	} `json:"organic_results"`
	NewsResults []struct {
		Title   string     `json:"title"`
		Link    string     `json:"link"`
		Snippet string     `json:"snippet"`
		Date    string     `json:"date"`
		Source  sourceName `json:"source"`
	} `json:"news_results"`
	TopStories []struct {
		Title  string `json:"title"`
		Link   string `json:"link"`
		Source string `json:"source"`
		Date   string `json:"date"`
	} `json:"top_stories"`
	AnswerBox *struct {
		Title   string     `json:"title"`
		Link    string     `json:"link"`
		Snippet string     `json:"snippet"`
		Answer  string     `json:"answer"`
		Price   flexNumber `json:"price"`
		Date    string     `json:"date"`
		Source  string     `json:"source"`
	} `json:"answer_box"`
}

func (c *Client) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: empty api key", search.ErrAuth)
	}
	engine := c.cfg.Engine
	if req.Topic == "news" {
		engine = c.cfg.NewsEngine
	}

	q := url.Values{}
	q.Set("engine", engine)
	q.Set("q", req.Query)
	q.Set("api_key", c.cfg.APIKey)
	if req.Num > 0 && engine != "google_news" {
		q.Set("num", strconv.Itoa(req.Num))
	}
	// google_news has no tbs filter; recency goes into the query via "when:".
	if req.Recency > 0 {
		if engine == "google_news" {
			q.Set("q", req.Query+" when:"+newsWhen(req.Recency))
		} else {
			q.Set("tbs", "qdr:"+tbsPeriod(req.Recency))
		}
	}
	if c.cfg.GL != "" {
		q.Set("gl", c.cfg.GL)
	}
	if c.cfg.HL != "" {
		q.Set("hl", c.cfg.HL)
	}

	resp, err := c.http.GET(ctx, "/search.json", q)
	if err != nil {
		return nil, classify(err)
	}

	var sr serpResponse
	if err := resp.ParseJSON(&sr); err != nil {
		return nil, fmt.Errorf("%w: %v", search.ErrBadResponse, err)
	}
	if sr.Error != "" {
		// SerpAPI reports "no results" as an error string on a 200.
		if strings.Contains(strings.ToLower(sr.Error), "hasn't returned any results") {
			return &search.Response{}, nil
		}
		return nil, fmt.Errorf("%w: %s", search.ErrBadResponse, sr.Error)
	}

	return toResponse(&sr, req.Num), nil
}

func toResponse(sr *serpResponse, limit int) *search.Response {
	out := &search.Response{}
	if ab := sr.AnswerBox; ab != nil && (ab.Link != "" || ab.Answer != "" || ab.Snippet != "") {
		snippet := strings.TrimSpace(strings.Join(nonEmpty(ab.Answer, ab.Snippet), ". "))
		out.Results = append(out.Results, search.Result{
			Kind:          search.KindAnswerBox,
			Title:         ab.Title,
			URL:           ab.Link,
			Snippet:       snippet,
			Source:        ab.Source,
			PublishedDate: ab.Date,
			Price:         ab.Price.ptr(),
		})
	}
	for _, r := range sr.OrganicResults {
		out.Results = append(out.Results, search.Result{
			Kind: search.KindOrganic, Title: r.Title, URL: r.Link, Snippet: r.Snippet,
			Source: r.Source, PublishedDate: r.Date,
		})
	}
	for _, r := range sr.NewsResults {
		out.Results = append(out.Results, search.Result{
			Kind: search.KindNews, Title: r.Title, URL: r.Link, Snippet: r.Snippet,
			Source: string(r.Source), PublishedDate: r.Date,
		})
	}
	for _, r := range sr.TopStories {
		out.Results = append(out.Results, search.Result{
			Kind: search.KindTopStory, Title: r.Title, URL: r.Link, Snippet: r.Title,
			Source: r.Source, PublishedDate: r.Date,
		})
	}
	if limit > 0 && len(out.Results) > limit {
		out.Results = out.Results[:limit]
	}
	return out
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	switch code := api.StatusCodeOf(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %v", search.ErrAuth, err)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", search.ErrRateLimited, err)
	case code == http.StatusBadRequest:
		return fmt.Errorf("%w: %v", search.ErrBadResponse, err)
	default:
		return fmt.Errorf("%w: %v", search.ErrUnavailable, err)
	}
}

// tbsPeriod renders d as a Google qdr period: d3, w2, m6, y1.
func tbsPeriod(d time.Duration) string {
	days := int(math.Ceil(d.Hours() / 24))
	switch {
	case days <= 1:
		return "d"
	case days%365 == 0:
		return "y" + strconv.Itoa(days/365)
	case days%30 == 0:
		return "m" + strconv.Itoa(days/30)
	case days%7 == 0:
		return "w" + strconv.Itoa(days/7)
	default:
		return "d" + strconv.Itoa(days)
	}
}

// newsWhen renders d as a google_news "when:" value, which accepts h, d, m and y.
func newsWhen(d time.Duration) string {
	if d < 24*time.Hour {
		return strconv.Itoa(int(math.Max(1, math.Ceil(d.Hours())))) + "h"
	}
	return strconv.Itoa(int(math.Ceil(d.Hours()/24))) + "d"
}

func nonEmpty(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
