// Package embed defines the text-to-vector capability used by the retrieval
// pipeline and the providers that implement it.
package embed

import (
	"context"
	"errors"
	"fmt"
)

// Provider turns text into an embedding vector.
type Provider interface {
	// Embed returns the embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Name returns the provider identifier (e.g. "keyword", "openai").
	Name() string
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc struct {
	ID string
	Fn func(ctx context.Context, text string) ([]float32, error)
}

func (p ProviderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.Fn(ctx, text)
}

func (p ProviderFunc) Name() string {
	if p.ID == "" {
		return "func"
	}
	return p.ID
}

// ErrProvider matches any *ProviderError via errors.Is.
var ErrProvider = errors.New("embedding provider error")

// ProviderError is a failure originating in an embedding provider.
type ProviderError struct {
	Provider   string
	StatusCode int // HTTP status, 0 when not applicable
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }
