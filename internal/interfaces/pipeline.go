package interfaces

import (
	"context"

	"fin-query-agent/internal/types"
)

type Extractor interface {
	Extract(ctx context.Context, q types.Query) (*types.Entity, types.Intent)
}

type Retriever interface {
	Retrieve(ctx context.Context, entity *types.Entity, intent types.Intent, w types.TimeWindow) ([]types.EvidenceItem, error)
}

type Analyzer interface {
	Analyze(intent types.Intent, evidence []types.EvidenceItem, w types.TimeWindow) []types.Metric
}

type Synthesizer interface {
	Synthesize(ctx context.Context, in types.SynthesisInput) (string, error)
}

// QueryProcessor is what presentation shells call.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, query string, creds types.Credentials) types.Result
}
