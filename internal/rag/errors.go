package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbedding matches any *EmbeddingError.
	ErrEmbedding = errors.New("embedding failed")
	// ErrNoProvider is returned for a text query on a pipeline without a provider.
	ErrNoProvider = errors.New("no embedding provider configured")
	// ErrEmptyQuery is returned when a query has neither a vector nor text.
	ErrEmptyQuery = errors.New("empty query")
)

// EmbeddingError wraps a failure raised by the embedding provider.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding with %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }
