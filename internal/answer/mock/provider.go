package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/quotaledger/internal/answer"
)

// Provider is a mock answer provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	AnswerResponse *answer.Result
	AnswerError    error

	// Call tracking for testing
	AnswerCalls int
	Questions   []string
}

// New creates a new mock answer provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Answer returns a canned response built from the first template
func (p *Provider) Answer(ctx context.Context, params answer.AnswerParams) (*answer.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.AnswerCalls++
	p.Questions = append(p.Questions, params.Question)

	if p.AnswerError != nil {
		return nil, p.AnswerError
	}
	if p.AnswerResponse != nil {
		return p.AnswerResponse, nil
	}

	return &answer.Result{
		Text:     answer.Render(0, params.Question),
		Model:    "mock-answer-v1",
		Duration: time.Millisecond,
	}, nil
}

// Calls returns the number of Answer calls so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AnswerCalls
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AnswerCalls = 0
	p.Questions = nil
	p.AnswerResponse = nil
	p.AnswerError = nil
}
