package pipeline

import (
	"context"

	"fin-query-agent/internal/interfaces"
	"fin-query-agent/internal/llm"
	"fin-query-agent/internal/llm/groq"
	"fin-query-agent/internal/llm/llmobs"
	"fin-query-agent/internal/search"
	"fin-query-agent/internal/search/searchobs"
	"fin-query-agent/internal/search/serpapi"
	"fin-query-agent/internal/store"
)

func New(d Deps) interfaces.QueryProcessor {
	if d.NewSearcher == nil {
		d.NewSearcher = SerpAPISearchers(d.Config)
	}
	if d.NewCompleter == nil {
		d.NewCompleter = GroqCompleters(d.Config)
	}
	return newPipeline(d)
}

// SerpAPISearchers returns a factory for SerpAPI clients configured from cfg,
// wrapped with tracing and logging.
func SerpAPISearchers(cfg *store.Config) SearcherFactory {
	if cfg == nil {
		cfg = store.Default()
	}
	return func(apiKey string) search.Searcher {
		return searchobs.Wrap(serpapi.New(serpapi.Config{
			BaseURL:    cfg.Search.BaseURL,
			APIKey:     apiKey,
			Engine:     cfg.Search.Engine,
			NewsEngine: cfg.Search.NewsEngine,
			GL:         cfg.Search.GL,
			HL:         cfg.Search.HL,
			Timeout:    cfg.SearchTimeout(),
		}), "serpapi")
	}
}

// GroqCompleters returns a factory for Groq chat clients configured from cfg,
// wrapped with tracing and logging.
func GroqCompleters(cfg *store.Config) CompleterFactory {
	if cfg == nil {
		cfg = store.Default()
	}
	return func(ctx context.Context, apiKey string) (llm.Client, error) {
		c, err := groq.New(ctx, groq.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      apiKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLMTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return llmobs.Wrap(c, cfg.LLM.Model), nil
	}
}
