// The chat service gates every question through the quota coordinator
// before an answer is generated and persisted.

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DukeRupert/quotaledger/internal/answer"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/google/uuid"
)

// Chat history page bounds.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// MaxQuestionLength caps the accepted question size in characters (runes).
// The ask request validator enforces the same limit.
const MaxQuestionLength = 4000

// =============================================================================
// Interface Definition
// =============================================================================

// ChatService defines the interface for metered question answering.
type ChatService interface {
	// Ask spends one unit of quota and answers the question.
	// Returns domain.EINVALID for an empty or oversized question.
	// Returns domain.EQUOTA when the user has no quota left.
	Ask(ctx context.Context, userID int64, question string) (*domain.ChatMessage, error)

	// History returns the user's most recent messages, newest first.
	History(ctx context.Context, userID int64, limit int) ([]domain.ChatMessage, error)
}

// =============================================================================
// Implementation
// =============================================================================

type chatService struct {
	quota    *QuotaCoordinator
	answers  answer.Provider
	messages MessageStore
	now      func() time.Time
	logger   *slog.Logger
}

// NewChatService creates a new ChatService.
func NewChatService(
	quota *QuotaCoordinator,
	answers answer.Provider,
	messages MessageStore,
	logger *slog.Logger,
) ChatService {
	return &chatService{
		quota:    quota,
		answers:  answers,
		messages: messages,
		now:      time.Now,
		logger:   logger,
	}
}

// Ask spends quota first so that a denied request has no side effects.
func (s *chatService) Ask(ctx context.Context, userID int64, question string) (*domain.ChatMessage, error) {
	const op = "chat.ask"

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.Invalid(op, "question is required")
	}
	if utf8.RuneCountInString(question) > MaxQuestionLength {
		return nil, domain.Invalid(op, fmt.Sprintf("question must be at most %d characters long", MaxQuestionLength))
	}

	source, err := s.quota.Consume(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Quota is spent at this point and is not refunded if generation fails.
	result, err := s.answers.Answer(ctx, answer.AnswerParams{
		Question: question,
		UserID:   userID,
	})
	if err != nil {
		s.logger.Error("answer generation failed after quota consumed",
			"user_id", userID,
			"quota_source", source.String(),
			"error", err,
		)
		return nil, domain.Internal(err, op, "failed to generate answer")
	}

	msg := domain.ChatMessage{
		ID:          uuid.New(),
		UserID:      userID,
		Question:    question,
		Answer:      result.Text,
		Tokens:      domain.EstimateTokens(question, result.Text),
		QuotaSource: source,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.messages.InsertChatMessage(ctx, msg); err != nil {
		return nil, domain.Internal(err, op, "failed to save chat message")
	}

	metrics.AnswerGenerated()
	s.logger.Info("question answered",
		"user_id", userID,
		"message_id", msg.ID,
		"quota_source", source.String(),
		"tokens", msg.Tokens,
	)

	return &msg, nil
}

// History returns the user's most recent messages.
func (s *chatService) History(ctx context.Context, userID int64, limit int) ([]domain.ChatMessage, error) {
	const op = "chat.history"

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	msgs, err := s.messages.ListChatMessages(ctx, userID, limit)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list chat messages")
	}
	return msgs, nil
}
