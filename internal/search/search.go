package search

import (
	"context"
	"errors"
	"time"
)

// Searcher is a web-search provider.
type Searcher interface {
	Search(ctx context.Context, req *Request) (*Response, error)
}

// Request is one provider call.
type Request struct {
	Query   string
	Topic   string // "news" or "general"
	Num     int
	Recency time.Duration // only results newer than this; zero means unbounded
}

// Response holds results in provider order.
type Response struct {
	Results []Result
}

// Kind of a search result block.
const (
	KindOrganic   = "organic"
	KindNews      = "news"
	KindTopStory  = "top_story"
	KindAnswerBox = "answer_box"
)

// Result is a single search hit.
type Result struct {
	Kind          string
	Title         string
	URL           string
	Snippet       string
	Source        string
	PublishedDate string // provider text, e.g. "3 days ago" or "Jan 5, 2025"
	Price         *float64
}

var (
	ErrAuth        = errors.New("search: authentication rejected")
	ErrRateLimited = errors.New("search: rate limited")
	ErrUnavailable = errors.New("search: provider unavailable")
	ErrBadResponse = errors.New("search: malformed provider response")
)

// Retryable reports whether a failed call may succeed on a second attempt.
func Retryable(err error) bool {
	return !errors.Is(err, ErrBadResponse) && !errors.Is(err, context.Canceled)
}
