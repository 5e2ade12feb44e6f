// Package errs defines the error kinds shared by the ingestion and query paths.
package errs

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned when a session is used before an index is bound.
var ErrNotReady = errors.New("session is not initialized")

// EmbeddingKind tells callers whether an embedding failure is worth retrying.
type EmbeddingKind int

const (
	Fatal EmbeddingKind = iota
	Retryable
)

func (k EmbeddingKind) String() string {
	if k == Retryable {
		return "retryable"
	}
	return "fatal"
}

// EmbeddingError reports a failed call to the embedding provider.
type EmbeddingError struct {
	Kind EmbeddingKind
	Err  error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (%s): %v", e.Kind, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the call.
func (e *EmbeddingError) Retryable() bool { return e.Kind == Retryable }

// IndexNotFoundError reports a missing persisted index or a closed handle.
type IndexNotFoundError struct {
	Path string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index not found at %q", e.Path)
}

// IncompatibleIndexError reports a dimensionality mismatch between the
// persisted index and the one requested.
type IncompatibleIndexError struct {
	Path      string
	Stored    int
	Requested int
}

func (e *IncompatibleIndexError) Error() string {
	return fmt.Sprintf("index at %q has dimension %d, requested %d", e.Path, e.Stored, e.Requested)
}

// InitializationError reports a session bound to an invalid index.
type InitializationError struct {
	Reason string
}

func (e *InitializationError) Error() string {
	return "failed to initialize session: " + e.Reason
}

// LanguageModelError reports a failed generation call.
type LanguageModelError struct {
	Err error
}

func (e *LanguageModelError) Error() string {
	return fmt.Sprintf("language model error: %v", e.Err)
}

func (e *LanguageModelError) Unwrap() error { return e.Err }

// IsRetryable reports whether err carries a retryable embedding failure.
func IsRetryable(err error) bool {
	var ee *EmbeddingError
	return errors.As(err, &ee) && ee.Retryable()
}
