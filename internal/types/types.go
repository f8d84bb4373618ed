package types

import (
	"fmt"
	"strings"
	"time"
)

// Query is the raw user question for one pipeline run.
type Query struct {
	Text       string
	ReceivedAt time.Time
}

func NewQuery(text string) Query {
	return Query{Text: text, ReceivedAt: time.Now()}
}

// Entity is a resolved company identity. A nil *Entity means unresolved.
type Entity struct {
	Name       string  `json:"name"`
	Ticker     string  `json:"ticker"`
	Exchange   string  `json:"exchange"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"` // directory or llm
}

func (e *Entity) String() string {
	if e == nil {
		return "unresolved"
	}
	if e.Exchange != "" {
		return fmt.Sprintf("%s (%s:%s)", e.Name, e.Exchange, e.Ticker)
	}
	return fmt.Sprintf("%s (%s)", e.Name, e.Ticker)
}

// Intent is the requested analysis kind.
type Intent string

const (
	IntentMomentum  Intent = "momentum"
	IntentBreakout  Intent = "breakout"
	IntentTrend     Intent = "trend"
	IntentValuation Intent = "valuation"
	IntentGeneric   Intent = "generic"
)

// Intents lists the closed vocabulary in priority order.
var Intents = []Intent{IntentMomentum, IntentBreakout, IntentTrend, IntentValuation, IntentGeneric}

// ParseIntent maps free text onto the vocabulary, defaulting to generic.
func ParseIntent(s string) Intent {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, in := range Intents {
		if s == string(in) {
			return in
		}
	}
	return IntentGeneric
}

// TimeWindow is the recency window the question refers to.
type TimeWindow struct {
	Duration time.Duration `json:"duration"`
	Label    string        `json:"label"` // e.g. "past 2 weeks"
	Explicit bool          `json:"explicit"`
}

func (w TimeWindow) Days() int {
	return int(w.Duration / (24 * time.Hour))
}

// Start returns the beginning of the window relative to ref.
func (w TimeWindow) Start(ref time.Time) time.Time {
	return ref.Add(-w.Duration)
}

// EvidenceItem is one retrieved, source-attributed fact.
type EvidenceItem struct {
	Ref         int       `json:"ref"` // 1-based citation number, assigned in retrieval order
	Kind        string    `json:"kind,omitempty"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	Snippet     string    `json:"snippet"`
	DateText    string    `json:"date_text,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
	Query       string    `json:"query"`
}

// HasDate reports whether a publication date is known.
func (e EvidenceItem) HasDate() bool {
	return !e.PublishedAt.IsZero()
}

// Metric is a named numeric or boolean analysis result.
type Metric struct {
	Name         string   `json:"name"`
	Value        *float64 `json:"value,omitempty"`
	Flag         *bool    `json:"flag,omitempty"`
	Unit         string   `json:"unit,omitempty"`
	Detail       string   `json:"detail,omitempty"`
	Evidence     []int    `json:"evidence"` // supporting EvidenceItem refs
	Insufficient bool     `json:"insufficient,omitempty"`
}

const MetricInsufficientData = "insufficient_data"

// Format renders the metric for prompts and logs.
func (m Metric) Format() string {
	var val string
	switch {
	case m.Insufficient:
		val = "insufficient data"
	case m.Flag != nil:
		val = fmt.Sprintf("%t", *m.Flag)
	case m.Value != nil:
		val = fmt.Sprintf("%.2f", *m.Value)
		if m.Unit != "" {
			val += " " + m.Unit
		}
	default:
		val = "n/a"
	}
	s := m.Name + " = " + val
	if m.Detail != "" {
		s += " (" + m.Detail + ")"
	}
	if len(m.Evidence) > 0 {
		refs := make([]string, len(m.Evidence))
		for i, r := range m.Evidence {
			refs[i] = fmt.Sprintf("[%d]", r)
		}
		s += " sources " + strings.Join(refs, "")
	}
	return s
}

// HasInsufficientData reports whether any metric is the insufficient-data sentinel.
func HasInsufficientData(metrics []Metric) bool {
	for _, m := range metrics {
		if m.Insufficient {
			return true
		}
	}
	return false
}

func Float(v float64) *float64 { return &v }
func Bool(v bool) *bool        { return &v }

// Credentials are supplied per invocation and never stored process-wide.
type Credentials struct {
	GroqAPIKey string
	SerpAPIKey string
}

// Validate checks both keys are present.
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.GroqAPIKey) == "" {
		missing = append(missing, "groq_api_key")
	}
	if strings.TrimSpace(c.SerpAPIKey) == "" {
		missing = append(missing, "serpapi_key")
	}
	if len(missing) > 0 {
		return CredentialError("validate", fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	return nil
}

// SynthesisInput is everything the synthesizer sees for one invocation.
type SynthesisInput struct {
	Query    Query
	Entity   *Entity
	Intent   Intent
	Window   TimeWindow
	Evidence []EvidenceItem
	Metrics  []Metric
}
