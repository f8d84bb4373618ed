package interfaces

import "context"

// Completer sends one system+user prompt to a language model and returns the text completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
