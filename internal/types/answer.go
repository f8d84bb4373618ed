package types

// ParseState is the terminal state of parsing the raw model text.
type ParseState string

const (
	WellFormed ParseState = "well_formed"
	Malformed  ParseState = "malformed"
)

// NotAvailable fills sections a malformed answer could not supply.
const NotAvailable = "not available"

// ConfidenceLevel is the bounded confidence scale.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "Low"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceHigh   ConfidenceLevel = "High"
)

// StructuredAnswer is the four-section final artifact.
type StructuredAnswer struct {
	DirectAnswer string     `json:"direct_answer"`
	Reasoning    string     `json:"reasoning"`
	Citations    string     `json:"citations"`
	Confidence   string     `json:"confidence"`
	Raw          string     `json:"raw"`
	State        ParseState `json:"state"`
	Notes        []string   `json:"notes,omitempty"`
}

// ResultKind tags a Result.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultFailure ResultKind = "failure"
)

// Failure describes why an invocation produced no answer.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Result is what crosses the pipeline-to-shell boundary.
type Result struct {
	Kind         ResultKind        `json:"kind"`
	InvocationID string            `json:"invocation_id"`
	Answer       *StructuredAnswer `json:"answer,omitempty"`
	Entity       *Entity           `json:"entity,omitempty"`
	Intent       Intent            `json:"intent,omitempty"`
	Metrics      []Metric          `json:"metrics,omitempty"`
	Evidence     []EvidenceItem    `json:"evidence,omitempty"`
	Failure      *Failure          `json:"failure,omitempty"`
}

func Success(id string, a StructuredAnswer) Result {
	return Result{Kind: ResultSuccess, InvocationID: id, Answer: &a}
}

func FailureResult(id string, err error) Result {
	return Result{
		Kind:         ResultFailure,
		InvocationID: id,
		Failure:      &Failure{Kind: KindOf(err), Message: err.Error()},
	}
}

func (r Result) OK() bool { return r.Kind == ResultSuccess }
