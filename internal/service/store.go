// This file declares the storage collaborator the quota ledger depends on.
// Every method that decides quota is a single atomic step in the backing store.

package service

import (
	"context"
	"errors"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a referenced row does not exist.
var ErrNotFound = errors.New("record not found")

// UsageStore persists monthly free-tier usage.
type UsageStore interface {
	// GetOrCreateMonthlyUsage returns the usage row for the period, creating
	// it with zero usage if it does not exist yet.
	GetOrCreateMonthlyUsage(ctx context.Context, userID int64, periodKey string) (domain.MonthlyUsage, error)

	// TryIncrementFreeUsage increments the counter by one if it is below limit.
	// Returns whether the increment happened. Check and write are atomic.
	TryIncrementFreeUsage(ctx context.Context, userID int64, periodKey string, limit int) (bool, error)
}

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	InsertSubscription(ctx context.Context, sub domain.Subscription) (uuid.UUID, error)

	// GetSubscription returns ErrNotFound if the subscription does not exist.
	GetSubscription(ctx context.Context, id uuid.UUID) (domain.Subscription, error)

	// GetActiveSubscriptions returns the user's subscriptions with IsActive set, in any order.
	GetActiveSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error)

	// TryDeductSubscription takes one message from an active subscription with
	// quota left. Unlimited subscriptions succeed without changing the counter.
	// Returns false when there was nothing to take.
	TryDeductSubscription(ctx context.Context, id uuid.UUID) (bool, error)

	SetAutoRenew(ctx context.Context, id uuid.UUID, autoRenew bool) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// RenewSubscription moves the subscription to a new period and resets its
	// budget, but only while it is still active, auto-renewing, and ending at
	// prevEnd. Returns false when any of those no longer holds.
	RenewSubscription(ctx context.Context, id uuid.UUID, prevEnd, start, end, renewal time.Time) (bool, error)

	// ListDueSubscriptions returns active subscriptions whose EndDate is at or before the given instant.
	ListDueSubscriptions(ctx context.Context, before time.Time, limit int) ([]domain.Subscription, error)
}

// MessageStore persists answered questions.
type MessageStore interface {
	InsertChatMessage(ctx context.Context, msg domain.ChatMessage) error
	ListChatMessages(ctx context.Context, userID int64, limit int) ([]domain.ChatMessage, error)
}

// Store is the full storage collaborator.
type Store interface {
	UsageStore
	SubscriptionStore
	MessageStore
}
