// Package postgres implements service.Store on PostgreSQL.
//
// Every quota decision is one conditional UPDATE whose affected row count
// tells the caller whether the unit was granted.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/google/uuid"
)

// Store implements service.Store over the repository queries.
type Store struct {
	queries *repository.Queries
}

var _ service.Store = (*Store)(nil)

// New creates a Store backed by db.
func New(db repository.DBTX) *Store {
	return &Store{queries: repository.New(db)}
}

// =============================================================================
// Monthly usage
// =============================================================================

func (s *Store) GetOrCreateMonthlyUsage(ctx context.Context, userID int64, periodKey string) (domain.MonthlyUsage, error) {
	if err := s.queries.CreateMonthlyUsage(ctx, repository.CreateMonthlyUsageParams{
		UserID:    userID,
		PeriodKey: periodKey,
	}); err != nil {
		return domain.MonthlyUsage{}, fmt.Errorf("create monthly usage: %w", err)
	}

	row, err := s.queries.GetMonthlyUsage(ctx, repository.GetMonthlyUsageParams{
		UserID:    userID,
		PeriodKey: periodKey,
	})
	if err != nil {
		return domain.MonthlyUsage{}, fmt.Errorf("get monthly usage: %w", err)
	}

	return domain.MonthlyUsage{
		UserID:           row.UserID,
		PeriodKey:        row.PeriodKey,
		FreeMessagesUsed: int(row.FreeMessagesUsed),
	}, nil
}

func (s *Store) TryIncrementFreeUsage(ctx context.Context, userID int64, periodKey string, limit int) (bool, error) {
	n, err := s.queries.IncrementFreeUsage(ctx, repository.IncrementFreeUsageParams{
		UserID:           userID,
		PeriodKey:        periodKey,
		FreeMessagesUsed: int32(limit),
	})
	if err != nil {
		return false, fmt.Errorf("increment free usage: %w", err)
	}
	return n == 1, nil
}

// =============================================================================
// Subscriptions
// =============================================================================

func (s *Store) InsertSubscription(ctx context.Context, sub domain.Subscription) (uuid.UUID, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	id, err := s.queries.CreateSubscription(ctx, repository.CreateSubscriptionParams{
		ID:                sub.ID,
		UserID:            sub.UserID,
		Tier:              string(sub.Tier),
		MaxMessages:       int32(sub.MaxMessages),
		RemainingMessages: int32(sub.RemainingMessages),
		PriceCents:        sub.PriceCents,
		BillingCycle:      string(sub.BillingCycle),
		AutoRenew:         sub.AutoRenew,
		IsActive:          sub.IsActive,
		StartDate:         sub.StartDate,
		EndDate:           sub.EndDate,
		RenewalDate:       toNullTime(sub.RenewalDate),
		CreatedAt:         sub.CreatedAt,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create subscription: %w", err)
	}
	return id, nil
}

func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	row, err := s.queries.GetSubscriptionByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Subscription{}, service.ErrNotFound
	}
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return rowToSubscription(row), nil
}

func (s *Store) GetActiveSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	rows, err := s.queries.ListActiveSubscriptionsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	return rowsToSubscriptions(rows), nil
}

func (s *Store) TryDeductSubscription(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.queries.DeductSubscriptionMessage(ctx, id)
	if err != nil {
		return false, fmt.Errorf("deduct subscription message: %w", err)
	}
	return n == 1, nil
}

func (s *Store) SetAutoRenew(ctx context.Context, id uuid.UUID, autoRenew bool) error {
	n, err := s.queries.UpdateSubscriptionAutoRenew(ctx, repository.UpdateSubscriptionAutoRenewParams{
		ID:        id,
		AutoRenew: autoRenew,
	})
	return affectedOne("update subscription auto renew", n, err)
}

func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	n, err := s.queries.UpdateSubscriptionActive(ctx, repository.UpdateSubscriptionActiveParams{
		ID:       id,
		IsActive: active,
	})
	return affectedOne("update subscription active", n, err)
}

func (s *Store) RenewSubscription(ctx context.Context, id uuid.UUID, prevEnd, start, end, renewal time.Time) (bool, error) {
	n, err := s.queries.RenewSubscription(ctx, repository.RenewSubscriptionParams{
		ID:          id,
		StartDate:   start,
		EndDate:     end,
		RenewalDate: sql.NullTime{Time: renewal, Valid: true},
		PrevEndDate: prevEnd,
	})
	if err != nil {
		return false, fmt.Errorf("renew subscription: %w", err)
	}
	return n == 1, nil
}

func (s *Store) ListDueSubscriptions(ctx context.Context, before time.Time, limit int) ([]domain.Subscription, error) {
	rows, err := s.queries.ListDueSubscriptions(ctx, repository.ListDueSubscriptionsParams{
		EndDate: before,
		Limit:   int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	return rowsToSubscriptions(rows), nil
}

// =============================================================================
// Chat messages
// =============================================================================

func (s *Store) InsertChatMessage(ctx context.Context, msg domain.ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	var subID uuid.NullUUID
	if msg.QuotaSource.Kind == domain.QuotaSourceSubscription {
		subID = uuid.NullUUID{UUID: msg.QuotaSource.SubscriptionID, Valid: true}
	}

	err := s.queries.CreateChatMessage(ctx, repository.CreateChatMessageParams{
		ID:             msg.ID,
		UserID:         msg.UserID,
		Question:       msg.Question,
		Answer:         msg.Answer,
		Tokens:         int32(msg.Tokens),
		QuotaSource:    string(msg.QuotaSource.Kind),
		SubscriptionID: subID,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("create chat message: %w", err)
	}
	return nil
}

func (s *Store) ListChatMessages(ctx context.Context, userID int64, limit int) ([]domain.ChatMessage, error) {
	rows, err := s.queries.ListChatMessagesByUserID(ctx, repository.ListChatMessagesByUserIDParams{
		UserID: userID,
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}

	msgs := make([]domain.ChatMessage, 0, len(rows))
	for _, row := range rows {
		source := domain.FreeSource()
		if row.QuotaSource == string(domain.QuotaSourceSubscription) && row.SubscriptionID.Valid {
			source = domain.SubscriptionSource(row.SubscriptionID.UUID)
		}
		msgs = append(msgs, domain.ChatMessage{
			ID:          row.ID,
			UserID:      row.UserID,
			Question:    row.Question,
			Answer:      row.Answer,
			Tokens:      int(row.Tokens),
			QuotaSource: source,
			CreatedAt:   row.CreatedAt,
		})
	}
	return msgs, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

func affectedOne(op string, n int64, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return service.ErrNotFound
	}
	return nil
}

func rowToSubscription(row repository.Subscription) domain.Subscription {
	sub := domain.Subscription{
		ID:                row.ID,
		UserID:            row.UserID,
		Tier:              domain.SubscriptionTier(row.Tier),
		MaxMessages:       int(row.MaxMessages),
		RemainingMessages: int(row.RemainingMessages),
		PriceCents:        row.PriceCents,
		BillingCycle:      domain.BillingCycle(row.BillingCycle),
		AutoRenew:         row.AutoRenew,
		IsActive:          row.IsActive,
		StartDate:         row.StartDate.UTC(),
		EndDate:           row.EndDate.UTC(),
		CreatedAt:         row.CreatedAt.UTC(),
	}
	if row.RenewalDate.Valid {
		t := row.RenewalDate.Time.UTC()
		sub.RenewalDate = &t
	}
	return sub
}

func rowsToSubscriptions(rows []repository.Subscription) []domain.Subscription {
	subs := make([]domain.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, rowToSubscription(row))
	}
	return subs
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
