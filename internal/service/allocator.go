package service

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/google/uuid"
)

// ErrNoQuotaAvailable is returned when none of the candidate subscriptions can pay.
var ErrNoQuotaAvailable = errors.New("no subscription quota available")

// SubscriptionQuotaAllocator picks the subscription that pays for a message.
type SubscriptionQuotaAllocator struct {
	store  SubscriptionStore
	logger *slog.Logger
}

// NewSubscriptionQuotaAllocator creates a new SubscriptionQuotaAllocator.
func NewSubscriptionQuotaAllocator(store SubscriptionStore, logger *slog.Logger) *SubscriptionQuotaAllocator {
	return &SubscriptionQuotaAllocator{
		store:  store,
		logger: logger,
	}
}

// SelectAndDeduct takes one message from the best candidate and returns its ID.
//
// Candidates are tried by tier (Enterprise, Pro, Basic) and then by remaining
// messages, highest first. Unlimited subscriptions always qualify. When the
// atomic deduction finds the counter already drained by a concurrent request,
// the next candidate is tried.
func (a *SubscriptionQuotaAllocator) SelectAndDeduct(ctx context.Context, active []domain.Subscription) (uuid.UUID, error) {
	const op = "allocator.select_and_deduct"

	for _, sub := range prioritize(active) {
		if !sub.IsActive || !sub.HasQuota() {
			continue
		}

		ok, err := a.store.TryDeductSubscription(ctx, sub.ID)
		if err != nil {
			return uuid.Nil, domain.Internal(err, op, "failed to deduct subscription quota")
		}
		if !ok {
			a.logger.Debug("subscription drained concurrently, trying next",
				"subscription_id", sub.ID,
				"user_id", sub.UserID,
			)
			continue
		}

		return sub.ID, nil
	}

	return uuid.Nil, ErrNoQuotaAvailable
}

// prioritize returns a sorted copy of subs in allocation order.
func prioritize(subs []domain.Subscription) []domain.Subscription {
	sorted := slices.Clone(subs)
	slices.SortStableFunc(sorted, func(a, b domain.Subscription) int {
		if c := cmp.Compare(b.Tier.Priority(), a.Tier.Priority()); c != 0 {
			return c
		}
		return cmp.Compare(b.RemainingMessages, a.RemainingMessages)
	})
	return sorted
}
