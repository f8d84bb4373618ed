package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"fin-query-agent/internal/analyze"
	"fin-query-agent/internal/answer"
	"fin-query-agent/internal/auditlog"
	"fin-query-agent/internal/extract"
	"fin-query-agent/internal/interfaces"
	"fin-query-agent/internal/llm"
	"fin-query-agent/internal/logger"
	"fin-query-agent/internal/retrieve"
	"fin-query-agent/internal/search"
	"fin-query-agent/internal/store"
	"fin-query-agent/internal/synth"
	"fin-query-agent/internal/types"
)

// SearcherFactory builds a search client bound to one invocation's key.
type SearcherFactory func(apiKey string) search.Searcher

// CompleterFactory builds a model client bound to one invocation's key.
type CompleterFactory func(ctx context.Context, apiKey string) (llm.Client, error)

type Deps struct {
	Config       *store.Config
	Directory    *extract.Directory
	NewSearcher  SearcherFactory
	NewCompleter CompleterFactory
	// Enricher and Audit are optional.
	Enricher retrieve.Enricher
	Audit    *auditlog.Log
}

// Pipeline runs Extractor, Retriever, Analyzer, Synthesizer and Parser for
// one query at a time. It holds only read-only configuration; every
// credential-bound client is created inside ProcessQuery, so concurrent
// invocations with different keys share nothing mutable.
type Pipeline struct {
	cfg          *store.Config
	dir          *extract.Directory
	newSearcher  SearcherFactory
	newCompleter CompleterFactory
	enricher     retrieve.Enricher
	audit        *auditlog.Log
	analyzer     *analyze.Analyzer
}

var _ interfaces.QueryProcessor = (*Pipeline)(nil)

func newPipeline(d Deps) *Pipeline {
	cfg := d.Config
	if cfg == nil {
		cfg = store.Default()
	}
	return &Pipeline{
		cfg:          cfg,
		dir:          d.Directory,
		newSearcher:  d.NewSearcher,
		newCompleter: d.NewCompleter,
		enricher:     d.Enricher,
		audit:        d.Audit,
		analyzer:     analyze.New(analyze.Options{BreakoutMarginPct: cfg.Analysis.BreakoutMarginPct}),
	}
}

// run is one invocation's state. It never outlives ProcessQuery.
type run struct {
	id       string
	query    string
	started  time.Time
	window   types.TimeWindow
	entity   *types.Entity
	intent   types.Intent
	evidence []types.EvidenceItem
	metrics  []types.Metric
}

// ProcessQuery answers one question. Credentials are checked before the
// query text, and both checks happen before any external call.
func (p *Pipeline) ProcessQuery(ctx context.Context, query string, creds types.Credentials) types.Result {
	r := &run{id: uuid.NewString(), query: strings.TrimSpace(query), started: time.Now()}

	if err := creds.Validate(); err != nil {
		return p.finish(ctx, r, types.FailureResult(r.id, err))
	}
	if r.query == "" {
		return p.finish(ctx, r, types.FailureResult(r.id, types.InputError("validate", types.ErrEmptyQuery)))
	}

	a, err := p.answer(ctx, r, creds)
	if err != nil {
		if keyRejected(err) {
			err = types.CredentialError("authenticate", err)
		}
		res := types.FailureResult(r.id, err)
		res.Entity, res.Intent = r.entity, r.intent
		return p.finish(ctx, r, res)
	}

	res := types.Success(r.id, a)
	res.Entity, res.Intent = r.entity, r.intent
	res.Metrics, res.Evidence = r.metrics, r.evidence
	return p.finish(ctx, r, res)
}

func (p *Pipeline) answer(ctx context.Context, r *run, creds types.Credentials) (types.StructuredAnswer, error) {
	completer, err := p.newCompleter(ctx, creds.GroqAPIKey)
	if err != nil {
		return types.StructuredAnswer{}, types.SynthesisError("llm", err)
	}
	searcher := p.newSearcher(creds.SerpAPIKey)

	r.window = extract.ParseWindow(r.query, p.cfg.DefaultWindow())

	op := logger.StartOperation(ctx, "extract")
	var fallback interfaces.Completer
	if p.cfg.LLMFallbackEnabled() {
		fallback = completer
	}
	ex := extract.New(p.dir, fallback, extract.Options{
		MinConfidence: p.cfg.Extraction.MinConfidence,
		LLMFallback:   fallback != nil,
	})
	r.entity, r.intent = ex.Extract(op.GetContext(), types.Query{Text: r.query, ReceivedAt: r.started})
	op.End("entity", r.entity.String(), "intent", r.intent, "window", r.window.Label)
	if err := ctx.Err(); err != nil {
		return types.StructuredAnswer{}, &types.PipelineError{Kind: types.KindCanceled, Op: "extract", Err: err}
	}

	op = logger.StartOperation(ctx, "retrieve")
	rt := retrieve.New(searcher, retrieve.Options{
		MaxCalls:       p.cfg.Search.MaxCalls,
		ResultsPerCall: p.cfg.Search.ResultsPerCall,
		RetryBackoff:   time.Duration(p.cfg.Search.RetryBackoffMS) * time.Millisecond,
		QPS:            p.cfg.Search.QPS,
		FallbackQuery:  r.query,
	}, p.enricher)
	r.evidence, err = rt.Retrieve(op.GetContext(), r.entity, r.intent, r.window)
	if err != nil {
		op.EndWithError(err)
		return types.StructuredAnswer{}, err
	}
	op.End("evidence", len(r.evidence))

	op = logger.StartOperation(ctx, "analyze")
	r.metrics = p.analyzer.Analyze(r.intent, r.evidence, r.window)
	op.End("metrics", len(r.metrics), "insufficient", types.HasInsufficientData(r.metrics))

	op = logger.StartOperation(ctx, "synthesize")
	sy := synth.New(completer, synth.Options{
		RateLimitRetries: p.cfg.LLMRetries(),
		RetryBackoff:     time.Duration(p.cfg.LLM.RetryBackoffMS) * time.Millisecond,
	})
	raw, err := sy.Synthesize(op.GetContext(), synth.Input{
		Query:    types.Query{Text: r.query, ReceivedAt: r.started},
		Entity:   r.entity,
		Intent:   r.intent,
		Window:   r.window,
		Evidence: r.evidence,
		Metrics:  r.metrics,
	})
	if err != nil {
		op.EndWithError(err)
		return types.StructuredAnswer{}, err
	}
	op.End("chars", len(raw))

	op = logger.StartOperation(ctx, "parse")
	a := answer.Parse(raw)
	answer.EnsureCitations(&a, r.metrics, r.evidence)
	answer.CapConfidence(&a, r.metrics)
	op.End("state", a.State, "confidence", a.Confidence)
	return a, nil
}

// keyRejected reports whether a provider refused one of the invocation's keys.
func keyRejected(err error) bool {
	return errors.Is(err, llm.ErrAuth) || errors.Is(err, search.ErrAuth)
}

// finish logs and audits the result. Audit failures are logged, never returned.
func (p *Pipeline) finish(ctx context.Context, r *run, res types.Result) types.Result {
	took := time.Since(r.started)
	if res.OK() {
		ticker := ""
		if r.entity != nil {
			ticker = r.entity.Ticker
		}
		logger.Answer(ctx, r.id, ticker, string(r.intent), string(res.Answer.State), res.Answer.Confidence,
			"window", r.window.Label,
			"evidence", len(r.evidence),
			"metrics", len(r.metrics),
			"duration_ms", took.Milliseconds(),
		)
	} else {
		logger.Warn(ctx, "Query failed",
			"invocation_id", r.id,
			"kind", res.Failure.Kind,
			"error", res.Failure.Message,
			"duration_ms", took.Milliseconds(),
		)
	}

	if p.audit != nil {
		if err := p.audit.Append(auditlog.FromResult(r.query, res, r.window.Label, took)); err != nil {
			logger.ErrorWithErr(ctx, "Failed to append audit entry", err, "invocation_id", r.id)
		}
	}
	return res
}
