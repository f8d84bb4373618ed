package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures that cross the pipeline boundary.
type ErrorKind string

const (
	KindCredential ErrorKind = "credential"
	KindInput      ErrorKind = "input"
	KindRetrieval  ErrorKind = "retrieval"
	KindSynthesis  ErrorKind = "synthesis"
	KindCanceled   ErrorKind = "canceled"
	KindInternal   ErrorKind = "internal"
)

// PipelineError is the only error type returned to shells.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Is matches another *PipelineError by kind so errors.Is(err, &PipelineError{Kind: KindRetrieval}) works.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

func CredentialError(op string, err error) error {
	return &PipelineError{Kind: KindCredential, Op: op, Err: err}
}

func InputError(op string, err error) error {
	return &PipelineError{Kind: KindInput, Op: op, Err: err}
}

func RetrievalError(op string, err error) error {
	return &PipelineError{Kind: KindRetrieval, Op: op, Err: err}
}

func SynthesisError(op string, err error) error {
	return &PipelineError{Kind: KindSynthesis, Op: op, Err: err}
}

// KindOf returns the kind of err, mapping context cancellation to KindCanceled.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		if errors.Is(pe.Err, context.Canceled) {
			return KindCanceled
		}
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindInternal
}

var ErrEmptyQuery = errors.New("query must be non-empty text")
