package llm

import (
	"errors"
	"strings"
)

// ErrContextOverflow marks a request rejected because the prompt does not fit
// the model's context window. Retrying the same prompt cannot succeed.
var ErrContextOverflow = errors.New("input exceeds the model's context window; shorten the submission or rubric, or use a model with a larger context")

// overflowMarkers are phrases Ollama, llama.cpp and OpenAI-compatible servers
// use when the prompt does not fit. Each names the context or the prompt so
// that unrelated limits ("quota exceeds", "name too long") are not matched.
var overflowMarkers = []string{
	"context length",
	"context_length_exceeded",
	"context window",
	"context size",
	"maximum context",
	"prompt is too long",
	"input is too long",
}

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// IsContextOverflow reports whether err stems from an oversized prompt.
func IsContextOverflow(err error) bool {
	return errors.Is(err, ErrContextOverflow)
}

func looksLikeOverflow(body string) bool {
	lower := strings.ToLower(body)
	for _, m := range overflowMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
