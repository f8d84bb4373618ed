package pipelineobs

import (
	"context"
	"time"

	"fin-query-agent/internal/interfaces"
	"fin-query-agent/internal/logger"
	"fin-query-agent/internal/trace"
	"fin-query-agent/internal/types"
)

type observableProcessor struct {
	processor interfaces.QueryProcessor
}

var _ interfaces.QueryProcessor = (*observableProcessor)(nil)

func Wrap(p interfaces.QueryProcessor) interfaces.QueryProcessor {
	return &observableProcessor{
		processor: p,
	}
}

// ProcessQuery never logs credentials, only whether each key was supplied.
func (op *observableProcessor) ProcessQuery(ctx context.Context, query string, creds types.Credentials) types.Result {
	ctx, span := trace.StartSpan(ctx, "pipeline.ProcessQuery")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Processing query",
		"query_chars", len(query),
		"groq_key_present", creds.GroqAPIKey != "",
		"serpapi_key_present", creds.SerpAPIKey != "",
	)

	res := op.processor.ProcessQuery(ctx, query, creds)
	if !res.OK() {
		logger.WarnSkip(ctx, 1, "Query processing failed",
			"invocation_id", res.InvocationID,
			"kind", res.Failure.Kind,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return res
	}

	logger.InfoSkip(ctx, 1, "Query processing completed",
		"invocation_id", res.InvocationID,
		"entity", res.Entity.String(),
		"intent", res.Intent,
		"state", res.Answer.State,
		"confidence", res.Answer.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return res
}
