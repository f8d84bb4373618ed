package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"fin-query-agent/internal/interfaces"
	"fin-query-agent/internal/logger"
	"fin-query-agent/internal/types"
)

var (
	// $AMZN, NASDAQ:AMZN, NYSE:BRK.B
	dollarTickerRe   = regexp.MustCompile(`\$([A-Za-z]{1,5}(?:\.[A-Za-z])?)\b`)
	exchangeTickerRe = regexp.MustCompile(`\b(NASDAQ|NYSE|AMEX|NYSEARCA|LSE|TSX)\s*:\s*([A-Za-z]{1,5}(?:\.[A-Za-z])?)\b`)
	bareTickerRe     = regexp.MustCompile(`\b[A-Z]{2,5}(?:\.[A-Z])?\b`)
	validTickerRe    = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)
)

type Options struct {
	MinConfidence float64
	LLMFallback   bool
}

// Extractor resolves the entity and intent of one query. The completer is
// optional and only consulted when the lexical rules are not decisive.
type Extractor struct {
	dir  *Directory
	llm  interfaces.Completer
	opts Options
}

var _ interfaces.Extractor = (*Extractor)(nil)

func New(dir *Directory, llm interfaces.Completer, opts Options) *Extractor {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.5
	}
	return &Extractor{dir: dir, llm: llm, opts: opts}
}

// Extract never fails: an unresolved company yields (nil, generic).
func (e *Extractor) Extract(ctx context.Context, q types.Query) (*types.Entity, types.Intent) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, types.IntentGeneric
	}

	entity, entityAmbiguous := e.resolveEntity(text)
	intent, tied, intentDecisive := classifyIntent(text)

	if (entity == nil || entityAmbiguous || !intentDecisive) && e.opts.LLMFallback && e.llm != nil {
		hint, err := e.askModel(ctx, text, tied)
		if err != nil {
			logger.Warn(ctx, "Extraction fallback failed, keeping lexical result", "error", err)
		} else {
			if entity == nil || entityAmbiguous {
				if resolved := e.fromHint(hint); resolved != nil {
					entity = resolved
				}
			}
			if !intentDecisive && hint.Intent != "" {
				intent = pickIntent(types.ParseIntent(hint.Intent), tied, intent)
			}
		}
	}

	if entity == nil {
		logger.Info(ctx, "No company resolved", "query_chars", len(text))
		return nil, types.IntentGeneric
	}
	return entity, intent
}

func (e *Extractor) resolveEntity(text string) (*types.Entity, bool) {
	// Explicit ticker syntax is the strongest signal.
	if m := exchangeTickerRe.FindStringSubmatch(text); m != nil {
		return e.tickerEntity(strings.ToUpper(m[2]), strings.ToUpper(m[1]), 1.0), false
	}
	if m := dollarTickerRe.FindStringSubmatch(text); m != nil {
		return e.tickerEntity(strings.ToUpper(m[1]), "", 0.95), false
	}

	var candidates []Match
	for _, tok := range bareTickerRe.FindAllString(text, -1) {
		if c, ok := e.dir.ByTicker(tok); ok {
			candidates = append(candidates, Match{Company: c, Confidence: 0.85, Via: "ticker"})
		}
	}
	candidates = append(candidates, e.dir.MatchNames(text)...)
	candidates = mergeMatches(candidates)
	if len(candidates) == 0 {
		return nil, false
	}

	best := candidates[0]
	if best.Confidence < e.opts.MinConfidence {
		return nil, true
	}
	ambiguous := len(candidates) > 1 && candidates[1].Confidence >= best.Confidence-0.05
	return toEntity(best.Company, best.Confidence, "directory"), ambiguous
}

// tickerEntity prefers directory data for a known ticker and accepts unknown
// well-formed tickers at face value.
func (e *Extractor) tickerEntity(ticker, exchange string, conf float64) *types.Entity {
	if c, ok := e.dir.ByTicker(ticker); ok {
		ent := toEntity(c, conf, "directory")
		if exchange != "" {
			ent.Exchange = exchange
		}
		return ent
	}
	return &types.Entity{Name: ticker, Ticker: ticker, Exchange: exchange, Confidence: conf * 0.8, Source: "ticker"}
}

func toEntity(c Company, conf float64, source string) *types.Entity {
	return &types.Entity{Name: c.Name, Ticker: c.Ticker, Exchange: c.Exchange, Confidence: conf, Source: source}
}

// mergeMatches keeps the best match per ticker, best first.
func mergeMatches(ms []Match) []Match {
	byTicker := map[string]Match{}
	for _, m := range ms {
		if cur, ok := byTicker[m.Company.Ticker]; !ok || m.Confidence > cur.Confidence {
			byTicker[m.Company.Ticker] = m
		}
	}
	out := make([]Match, 0, len(byTicker))
	for _, m := range byTicker {
		out = append(out, m)
	}
	sortMatches(out)
	return out
}

type modelHint struct {
	Company  string `json:"company"`
	Ticker   string `json:"ticker"`
	Exchange string `json:"exchange"`
	Intent   string `json:"intent"`
}

const extractionSystemPrompt = `You identify the publicly listed company and the analysis type in a financial question.
Reply with one JSON object and nothing else:
{"company": "<company name or empty>", "ticker": "<exchange ticker or empty>", "exchange": "<exchange or empty>", "intent": "<one of momentum, breakout, trend, valuation, generic>"}
Use empty strings when the question does not name a listed company.`

func (e *Extractor) askModel(ctx context.Context, text string, tied []types.Intent) (modelHint, error) {
	user := "Question: " + text
	if len(tied) > 0 {
		names := make([]string, len(tied))
		for i, in := range tied {
			names[i] = string(in)
		}
		user += "\nThe intent is most likely one of: " + strings.Join(names, ", ")
	}

	out, err := e.llm.Complete(ctx, extractionSystemPrompt, user)
	if err != nil {
		return modelHint{}, err
	}
	return parseHint(out)
}

func parseHint(out string) (modelHint, error) {
	out = strings.TrimSpace(out)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	if i, j := strings.Index(out, "{"), strings.LastIndex(out, "}"); i >= 0 && j > i {
		out = out[i : j+1]
	}
	var h modelHint
	if err := json.Unmarshal([]byte(out), &h); err != nil {
		return modelHint{}, err
	}
	return h, nil
}

func (e *Extractor) fromHint(h modelHint) *types.Entity {
	ticker := strings.ToUpper(strings.TrimSpace(h.Ticker))
	if c, ok := e.dir.ByTicker(ticker); ok {
		return toEntity(c, 0.7, "llm")
	}
	if h.Company != "" {
		if ms := e.dir.MatchNames(h.Company); len(ms) > 0 {
			return toEntity(ms[0].Company, 0.7, "llm")
		}
	}
	if validTickerRe.MatchString(ticker) && 0.6 >= e.opts.MinConfidence {
		name := strings.TrimSpace(h.Company)
		if name == "" {
			name = ticker
		}
		return &types.Entity{Name: name, Ticker: ticker, Exchange: strings.ToUpper(h.Exchange), Confidence: 0.6, Source: "llm"}
	}
	return nil
}

// pickIntent accepts the model's choice when it is among the tied candidates
// (or any intent when there were none), else keeps the rule result.
func pickIntent(model types.Intent, tied []types.Intent, fallback types.Intent) types.Intent {
	if len(tied) == 0 {
		return model
	}
	for _, in := range tied {
		if in == model {
			return model
		}
	}
	return fallback
}
