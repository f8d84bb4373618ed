// Package llm holds the completion contract shared by language-model
// providers and the provider-neutral error classes callers branch on.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fin-query-agent/internal/interfaces"
)

// Client is the completion contract every provider implements.
type Client = interfaces.Completer

var (
	ErrAuth              = errors.New("llm: authentication rejected")
	ErrRateLimited       = errors.New("llm: rate limited")
	ErrMalformedResponse = errors.New("llm: malformed response")
	ErrEmptyCompletion   = errors.New("llm: empty completion")
	ErrUpstream          = errors.New("llm: upstream failure")
)

// Classify wraps a provider error in one of the sentinel classes. Context
// cancellation is returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	for _, sentinel := range []error{ErrAuth, ErrRateLimited, ErrMalformedResponse, ErrEmptyCompletion, ErrUpstream} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "invalid api key") || strings.Contains(msg, "invalid_api_key") || strings.Contains(msg, "unauthorized"):
		return fmt.Errorf("%w: %v", ErrAuth, err)
	case strings.Contains(msg, "unmarshal") || strings.Contains(msg, "invalid character") || strings.Contains(msg, "unexpected end of json"):
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	default:
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
}

// Retryable reports whether another attempt may help. Only rate limiting qualifies.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
