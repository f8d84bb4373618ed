package synth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fin-query-agent/internal/answer"
	"fin-query-agent/internal/llm"
	"fin-query-agent/internal/types"
)

type scriptedClient struct {
	replies []string
	errs    []error
	calls   int
	system  string
	user    string
}

func (c *scriptedClient) Complete(_ context.Context, system, user string) (string, error) {
	i := c.calls
	c.calls++
	c.system, c.user = system, user
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "", nil
}

func sampleInput() Input {
	return Input{
		Query:  types.Query{Text: "Has Amazon broken its 2-week high?"},
		Entity: &types.Entity{Name: "Amazon.com Inc.", Ticker: "AMZN", Exchange: "NASDAQ"},
		Intent: types.IntentBreakout,
		Window: types.TimeWindow{Duration: 14 * 24 * time.Hour, Label: "past 2 weeks"},
		Evidence: []types.EvidenceItem{
			{Ref: 1, Title: "AMZN closes at $220.10", URL: "https://example.com/1", Source: "Example", DateText: "Jan 6, 2025", Snippet: "Amazon closed at $220.10."},
			{Ref: 2, Title: "Amazon hits $231.50", URL: "https://example.com/2", Snippet: "Shares touched $231.50."},
		},
		Metrics: []types.Metric{
			{Name: "window_high", Value: types.Float(231.5), Unit: "USD", Evidence: []int{2}},
			{Name: "broke_high", Flag: types.Bool(true), Evidence: []int{1, 2}},
		},
	}
}

var wellFormed = answer.Format("Yes, it broke the high [2].", "Price rose from 220.10 to 231.50.", "[1] a - u\n[2] b - v", "High")

func TestSynthesizePromptCarriesContract(t *testing.T) {
	c := &scriptedClient{replies: []string{wellFormed}}
	s := New(c, Options{})

	raw, err := s.Synthesize(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, wellFormed, raw)
	assert.Equal(t, 1, c.calls)

	assert.Contains(t, c.system, answer.Delimiter)
	for _, name := range answer.SectionNames() {
		assert.Contains(t, c.system, name)
	}
	assert.Contains(t, c.system, "Every number you state (price, percentage, ratio, date) must come from the supplied metrics.")
	assert.Contains(t, c.system, "Do not state numbers that appear only in the evidence text.")
	assert.NotContains(t, c.system, "metrics or evidence")

	assert.Contains(t, c.user, `"ticker": "AMZN"`)
	assert.Contains(t, c.user, "window_high = 231.50 USD")
	assert.Contains(t, c.user, "broke_high = true")
	assert.Contains(t, c.user, "[1] AMZN closes at $220.10 (Example, Jan 6, 2025) - https://example.com/1")
	assert.Contains(t, c.user, "[2] Amazon hits $231.50 - https://example.com/2")
	assert.NotContains(t, c.user, "could not be identified")
}

func TestSynthesizeUnresolvedEntity(t *testing.T) {
	c := &scriptedClient{replies: []string{wellFormed}}
	in := sampleInput()
	in.Entity = nil
	in.Evidence = nil
	in.Metrics = nil

	_, err := New(c, Options{}).Synthesize(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, c.user, `"company": "unresolved"`)
	assert.Contains(t, c.user, "could not be identified")
	assert.Contains(t, c.user, "(no evidence was retrieved)")
}

func TestSynthesizeRetriesRateLimitOnly(t *testing.T) {
	c := &scriptedClient{
		errs:    []error{llm.ErrRateLimited},
		replies: []string{"", wellFormed},
	}
	raw, err := New(c, Options{RateLimitRetries: 1, RetryBackoff: time.Millisecond}).Synthesize(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, wellFormed, raw)
	assert.Equal(t, 2, c.calls)

	c = &scriptedClient{errs: []error{llm.ErrRateLimited, llm.ErrRateLimited, llm.ErrRateLimited}}
	_, err = New(c, Options{RateLimitRetries: 1, RetryBackoff: time.Millisecond}).Synthesize(context.Background(), sampleInput())
	require.Error(t, err)
	assert.Equal(t, 2, c.calls)
	assert.True(t, errors.Is(err, llm.ErrRateLimited))
	assert.Equal(t, types.KindSynthesis, types.KindOf(err))
}

func TestSynthesizeFailures(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		reply string
		want  error
	}{
		{"auth", llm.ErrAuth, "", llm.ErrAuth},
		{"malformed", llm.ErrMalformedResponse, "", llm.ErrMalformedResponse},
		{"empty", nil, "   \n", llm.ErrEmptyCompletion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &scriptedClient{errs: []error{tc.err}, replies: []string{tc.reply}}
			raw, err := New(c, Options{RateLimitRetries: 3, RetryBackoff: time.Millisecond}).Synthesize(context.Background(), sampleInput())
			require.Error(t, err)
			assert.Empty(t, raw)
			assert.Equal(t, 1, c.calls)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, &types.PipelineError{Kind: types.KindSynthesis})
		})
	}
}

func TestPromptClipsLongSnippets(t *testing.T) {
	in := sampleInput()
	in.Evidence = []types.EvidenceItem{{Ref: 1, Title: "t", Snippet: strings.Repeat("é", 1000)}}
	user := buildUserPrompt(in)
	assert.Contains(t, user, strings.Repeat("é", maxSnippetChars)+"...")
	assert.NotContains(t, user, strings.Repeat("é", maxSnippetChars+1))
}
