package extract

import (
	"regexp"
	"strings"

	"fin-query-agent/internal/types"
)

var explicitIntentRe = regexp.MustCompile(`(?i)\b(momentum|breakout|break-out|trend|valuation)\s+(analysis|check|study|review)\b`)

var intentKeywords = map[types.Intent][]string{
	types.IntentMomentum: {
		"momentum", "rally", "rallied", "surge", "surged", "run-up", "rsi", "overbought", "oversold", "moving average",
	},
	types.IntentBreakout: {
		"breakout", "break out", "broken", "broke", "break above", "break through", "new high", "past high",
		"previous high", "52-week high", "52 week high", "all-time high", "all time high", "resistance",
	},
	types.IntentTrend: {
		"trend", "trending", "uptrend", "downtrend", "direction", "over time", "trajectory", "heading",
	},
	types.IntentValuation: {
		"valuation", "p/e", "pe ratio", "price to earnings", "price-to-earnings", "market cap", "overvalued",
		"undervalued", "fair value", "price target", "multiple", "worth",
	},
}

// classifyIntent returns the intent and whether the rules were decisive.
// An explicit "<intent> analysis" phrase wins; otherwise the highest keyword
// count wins and a tie or no hit is ambiguous.
func classifyIntent(text string) (types.Intent, []types.Intent, bool) {
	if m := explicitIntentRe.FindStringSubmatch(text); m != nil {
		word := strings.ToLower(strings.ReplaceAll(m[1], "-", ""))
		return types.ParseIntent(word), nil, true
	}

	lower := strings.ToLower(text)
	scores := map[types.Intent]int{}
	top := 0
	for _, in := range types.Intents {
		for _, kw := range intentKeywords[in] {
			if strings.Contains(lower, kw) {
				scores[in]++
			}
		}
		if scores[in] > top {
			top = scores[in]
		}
	}
	if top == 0 {
		return types.IntentGeneric, nil, false
	}

	var tied []types.Intent
	for _, in := range types.Intents {
		if scores[in] == top {
			tied = append(tied, in)
		}
	}
	if len(tied) == 1 {
		return tied[0], nil, true
	}
	return tied[0], tied, false
}
