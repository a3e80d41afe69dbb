// Package llm holds the language-model collaborators: a completion interface,
// the Ollama client behind it, and a Redis cache in front of it.
package llm

import "context"

// Completer turns a prompt into a completion. Implementations are treated as
// side-effect free; callers do not retry a failed completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
