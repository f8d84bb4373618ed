package retrieve

import (
	"fmt"
	"strings"

	"fin-query-agent/internal/search"
	"fin-query-agent/internal/types"
)

// Plan builds the search calls for one query, most important first. The
// caller truncates it to the per-query call cap.
func Plan(entity *types.Entity, intent types.Intent, w types.TimeWindow, fallback string, num int) []search.Request {
	mk := func(q, topic string) search.Request {
		return search.Request{Query: q, Topic: topic, Num: num, Recency: w.Duration}
	}

	if entity == nil {
		fallback = strings.TrimSpace(fallback)
		if fallback == "" {
			return nil
		}
		return []search.Request{mk(fallback, "general"), mk(fallback, "news")}
	}

	name := displayName(entity)
	t := entity.Ticker
	switch intent {
	case types.IntentMomentum:
		return []search.Request{
			mk(fmt.Sprintf("%s (%s) stock price", name, t), "general"),
			mk(fmt.Sprintf("%s stock 52 week high", t), "general"),
			mk(fmt.Sprintf("%s stock news", name), "news"),
		}
	case types.IntentBreakout:
		return []search.Request{
			mk(fmt.Sprintf("%s stock price", t), "general"),
			mk(fmt.Sprintf("%s 52 week high breakout", t), "general"),
			mk(fmt.Sprintf("%s stock news", name), "news"),
		}
	case types.IntentTrend:
		return []search.Request{
			mk(fmt.Sprintf("%s stock price history", t), "general"),
			mk(fmt.Sprintf("%s stock trend", name), "news"),
		}
	case types.IntentValuation:
		return []search.Request{
			mk(fmt.Sprintf("%s P/E ratio market cap", t), "general"),
			mk(fmt.Sprintf("%s valuation", name), "news"),
		}
	default:
		return []search.Request{
			mk(fmt.Sprintf("%s (%s) stock", name, t), "general"),
			mk(fmt.Sprintf("%s news", name), "news"),
		}
	}
}

// displayName trims corporate suffixes for search: "Amazon.com Inc." -> "Amazon.com".
func displayName(e *types.Entity) string {
	name := strings.TrimSpace(e.Name)
	for _, suffix := range []string{" Inc.", " Inc", " Corporation", " Corp.", " Co.", " plc"} {
		name = strings.TrimSuffix(name, suffix)
	}
	name = strings.TrimSuffix(strings.TrimSpace(name), ",")
	if name == "" {
		return e.Ticker
	}
	return name
}
