package answer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider defines the interface for producing an answer to a metered question.
type Provider interface {
	// Answer generates a reply to the question.
	Answer(ctx context.Context, params AnswerParams) (*Result, error)
}

// AnswerParams contains parameters for answer generation
type AnswerParams struct {
	Question string // The user's question, already validated as non-empty
	UserID   int64  // User ID for tracking
}

// Result contains a generated answer
type Result struct {
	Text     string        // The answer text
	Model    string        // Provider model used
	Duration time.Duration // Time spent generating
}

// Error codes for answer provider operations
var (
	// EAnswerTimeout indicates generation did not finish before the context ended
	EAnswerTimeout = errors.New("answer generation timed out")

	// EAnswerUnavailable indicates the provider is temporarily unavailable
	EAnswerUnavailable = errors.New("answer provider temporarily unavailable")
)

// WrapError wraps an error with context about the answer operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("answer %s: %w", operation, err)
}
