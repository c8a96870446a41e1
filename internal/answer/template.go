package answer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// templates are the canned replies. Each embeds the question once.
var templates = []string{
	`That's an interesting question about "%s". Based on my analysis, here's what I think...`,
	`Let me help you with that. Regarding "%s", the answer is...`,
	`Great question! About "%s", I can tell you that...`,
}

// TemplateModel is reported as the model of template answers.
const TemplateModel = "template-v1"

// TemplateProvider answers with one of a fixed set of templates after an
// optional simulated delay drawn uniformly from [MinDelay, MaxDelay].
type TemplateProvider struct {
	logger   *slog.Logger
	minDelay time.Duration
	maxDelay time.Duration
	pick     func(n int) int
}

// NewTemplateProvider creates a TemplateProvider. Zero delays disable the wait.
func NewTemplateProvider(minDelay, maxDelay time.Duration, logger *slog.Logger) *TemplateProvider {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &TemplateProvider{
		logger:   logger,
		minDelay: minDelay,
		maxDelay: maxDelay,
		pick:     rand.IntN,
	}
}

// Answer waits for the simulated delay and renders a template.
func (p *TemplateProvider) Answer(ctx context.Context, params AnswerParams) (*Result, error) {
	start := time.Now()

	if d := p.delay(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, WrapError("generate", EAnswerTimeout)
		case <-timer.C:
		}
	}

	text := Render(p.pick(len(templates)), params.Question)

	p.logger.Debug("answer generated",
		"user_id", params.UserID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		Text:     text,
		Model:    TemplateModel,
		Duration: time.Since(start),
	}, nil
}

func (p *TemplateProvider) delay() time.Duration {
	if p.maxDelay <= 0 {
		return 0
	}
	spread := p.maxDelay - p.minDelay
	if spread <= 0 {
		return p.minDelay
	}
	return p.minDelay + rand.N(spread)
}

// Render fills template i (modulo the template count) with the question.
func Render(i int, question string) string {
	i %= len(templates)
	if i < 0 {
		i += len(templates)
	}
	return fmt.Sprintf(templates[i], question)
}

// TemplateCount returns the number of canned templates.
func TemplateCount() int {
	return len(templates)
}
