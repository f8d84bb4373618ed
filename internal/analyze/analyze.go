// Package analyze derives auditable numeric facts from retrieved evidence.
// Every number comes from structured parsing of snippets and provider
// fields; nothing here calls a language model.
package analyze

import (
	"fmt"
	"math"
	"sort"
	"time"

	"fin-query-agent/internal/interfaces"
	"fin-query-agent/internal/search"
	"fin-query-agent/internal/ta"
	"fin-query-agent/internal/types"
)

type Options struct {
	// BreakoutMarginPct is how far above the prior high the latest price
	// must be to count as a breakout.
	BreakoutMarginPct float64
}

type Analyzer struct {
	opts Options
}

var _ interfaces.Analyzer = (*Analyzer)(nil)

func New(opts Options) *Analyzer {
	return &Analyzer{opts: opts}
}

// point is one dated price observation, merged across sources that agree.
type point struct {
	at    time.Time
	price float64
	refs  []int
}

// Analyze is deterministic in its inputs: the reference time is the latest
// retrieval timestamp in evidence.
func (a *Analyzer) Analyze(intent types.Intent, evidence []types.EvidenceItem, w types.TimeWindow) []types.Metric {
	ref := referenceTime(evidence)
	points := datedPoints(evidence, w, ref)

	var metrics []types.Metric
	switch intent {
	case types.IntentMomentum, types.IntentBreakout:
		metrics = a.momentum(points, w)
	case types.IntentTrend:
		metrics = trend(points, w)
	case types.IntentValuation:
		metrics = valuation(evidence, points)
	default:
		metrics = generic(evidence, points)
	}
	return append(metrics, reportedFacts(intent, evidence)...)
}

func referenceTime(evidence []types.EvidenceItem) time.Time {
	var ref time.Time
	for _, e := range evidence {
		if e.RetrievedAt.After(ref) {
			ref = e.RetrievedAt
		}
	}
	if ref.IsZero() {
		ref = time.Now()
	}
	return ref
}

// observe returns the price and date carried by one item, if any.
func observe(e types.EvidenceItem, ref time.Time) (float64, time.Time, bool) {
	var price float64
	var hasPrice bool
	if e.Price != nil {
		price, hasPrice = *e.Price, true
	} else {
		price, hasPrice = firstPrice(e.Title + " " + e.Snippet)
	}
	if !hasPrice {
		return 0, time.Time{}, false
	}

	if e.HasDate() {
		return price, e.PublishedAt, true
	}
	if t, ok := parseDate(e.DateText, ref); ok {
		return price, t, true
	}
	if t, ok := snippetDate(e.Snippet); ok {
		return price, t, true
	}
	// A live quote box is current as of retrieval.
	if e.Kind == search.KindAnswerBox && e.Price != nil {
		return price, ref, true
	}
	return 0, time.Time{}, false
}

// datedPoints keeps observations inside the window (one day of slack on both
// ends for provider rounding), merged by calendar day and price, oldest first.
func datedPoints(evidence []types.EvidenceItem, w types.TimeWindow, ref time.Time) []point {
	lo := w.Start(ref).Add(-24 * time.Hour)
	hi := ref.Add(24 * time.Hour)

	type key struct {
		day   string
		cents int64
	}
	idx := map[key]int{}
	var pts []point
	for _, e := range evidence {
		price, at, ok := observe(e, ref)
		if !ok || at.Before(lo) || at.After(hi) {
			continue
		}
		k := key{at.UTC().Format("2006-01-02"), int64(math.Round(price * 100))}
		if i, seen := idx[k]; seen {
			pts[i].refs = append(pts[i].refs, e.Ref)
			continue
		}
		idx[k] = len(pts)
		pts = append(pts, point{at: at, price: price, refs: []int{e.Ref}})
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].at.Before(pts[j].at) })
	return pts
}

func insufficient(points []point, w types.TimeWindow) []types.Metric {
	var refs []int
	for _, p := range points {
		refs = append(refs, p.refs...)
	}
	return []types.Metric{{
		Name:         types.MetricInsufficientData,
		Value:        types.Float(float64(len(points))),
		Unit:         "dated points",
		Detail:       fmt.Sprintf("need at least 2 dated price points in the %s, found %d", w.Label, len(points)),
		Evidence:     refs,
		Insufficient: true,
	}}
}

func (a *Analyzer) momentum(points []point, w types.TimeWindow) []types.Metric {
	if len(points) < 2 {
		return insufficient(points, w)
	}

	closes := priceSeries(points)
	hi, hiIdx := ta.Highest(closes)
	lo, loIdx := ta.Lowest(closes)
	first, last := points[0], points[len(points)-1]

	// Prior high excludes the latest point so a new high can be detected.
	priorHigh, priorIdx := ta.Highest(closes[:len(closes)-1])
	margin := ta.PctChange(priorHigh, last.price)
	broke := last.price > priorHigh*(1+a.opts.BreakoutMarginPct/100)

	return []types.Metric{
		metric("window_high", hi, "USD", fmt.Sprintf("highest price over the %s", w.Label), points[hiIdx].refs),
		metric("window_low", lo, "USD", fmt.Sprintf("lowest price over the %s", w.Label), points[loIdx].refs),
		metric("current_price", last.price, "USD", "latest dated price "+last.at.Format("2006-01-02"), last.refs),
		metric("prior_high", priorHigh, "USD", "highest price before the latest point", points[priorIdx].refs),
		{
			Name:     "broke_high",
			Flag:     types.Bool(broke),
			Detail:   fmt.Sprintf("latest %.2f vs prior high %.2f, required margin %.2f%%", last.price, priorHigh, a.opts.BreakoutMarginPct),
			Evidence: union(last.refs, points[priorIdx].refs),
		},
		metric("breakout_margin_pct", margin, "%", "latest price relative to prior high", union(last.refs, points[priorIdx].refs)),
		metric("pct_from_high", ta.PctChange(hi, last.price), "%", "latest price relative to window high", union(last.refs, points[hiIdx].refs)),
		metric("pct_from_low", ta.PctChange(lo, last.price), "%", "latest price relative to window low", union(last.refs, points[loIdx].refs)),
		metric("pct_change", ta.PctChange(first.price, last.price), "%", "first to latest dated price", union(first.refs, last.refs)),
	}
}

func trend(points []point, w types.TimeWindow) []types.Metric {
	if len(points) < 2 {
		return insufficient(points, w)
	}
	closes := priceSeries(points)
	first, last := points[0], points[len(points)-1]
	xs := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.at.Sub(first.at).Hours() / 24
	}
	slope := ta.Slope(xs, closes)
	all := allRefs(points)

	out := []types.Metric{
		metric("pct_change", ta.PctChange(first.price, last.price), "%", "first to latest dated price", union(first.refs, last.refs)),
		metric("average_price", ta.SMA(closes, len(closes)), "USD", fmt.Sprintf("mean of %d dated prices", len(closes)), all),
	}
	if !math.IsNaN(slope) {
		out = append(out,
			metric("slope_per_day", slope, "USD/day", "least-squares slope of dated prices", all),
			types.Metric{Name: "uptrend", Flag: types.Bool(slope > 0), Detail: "sign of the price slope", Evidence: all},
		)
	}
	if len(closes) >= 3 {
		out = append(out, metric("price_stddev", ta.StdDev(closes, len(closes)), "USD", "dispersion of dated prices", all))
	}
	return out
}

func valuation(evidence []types.EvidenceItem, points []point) []types.Metric {
	var out []types.Metric
	for _, e := range evidence {
		if v, ok := peRatio(e.Title + " " + e.Snippet); ok {
			out = append(out, metric("pe_ratio", v, "x", "price to earnings as reported", []int{e.Ref}))
			break
		}
	}
	for _, e := range evidence {
		if v, ok := marketCap(e.Title + " " + e.Snippet); ok {
			out = append(out, metric("market_cap", v, "USD bn", "market capitalization as reported", []int{e.Ref}))
			break
		}
	}
	if len(out) == 0 {
		return []types.Metric{{
			Name:         types.MetricInsufficientData,
			Detail:       "no P/E ratio or market capitalization found in evidence",
			Insufficient: true,
		}}
	}
	if len(points) > 0 {
		last := points[len(points)-1]
		out = append(out, metric("current_price", last.price, "USD", "latest dated price "+last.at.Format("2006-01-02"), last.refs))
	}
	return out
}

func generic(evidence []types.EvidenceItem, points []point) []types.Metric {
	var out []types.Metric
	if len(points) > 0 {
		last := points[len(points)-1]
		out = append(out, metric("current_price", last.price, "USD", "latest dated price "+last.at.Format("2006-01-02"), last.refs))
	}
	for _, e := range evidence {
		if v, ok := firstPercent(e.Snippet); ok {
			out = append(out, metric("reported_change_pct", v, "%", "first percentage move mentioned in sources", []int{e.Ref}))
			break
		}
	}
	return out
}

// reportedFacts surfaces highs quoted verbatim by sources, e.g. "52-week high of $201.20".
func reportedFacts(intent types.Intent, evidence []types.EvidenceItem) []types.Metric {
	if intent == types.IntentGeneric {
		return nil
	}
	for _, e := range evidence {
		if v, kind, ok := reportedHigh(e.Title + " " + e.Snippet); ok {
			return []types.Metric{metric("reported_"+underscore(kind)+"_high", v, "USD", "as quoted by source", []int{e.Ref})}
		}
	}
	return nil
}

func metric(name string, v float64, unit, detail string, refs []int) types.Metric {
	m := types.Metric{Name: name, Unit: unit, Detail: detail, Evidence: refs}
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		m.Value = types.Float(round2(v))
	}
	return m
}

func priceSeries(points []point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.price
	}
	return out
}

func allRefs(points []point) []int {
	var out []int
	for _, p := range points {
		out = union(out, p.refs)
	}
	return out
}

// union merges ref lists, sorted and without duplicates.
func union(a, b []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, r := range append(append([]int(nil), a...), b...) {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Ints(out)
	return out
}

func underscore(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r == ' ' || r == '-' {
			out[i] = '_'
		}
	}
	return string(out)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
