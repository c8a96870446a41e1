package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
)

// Denial messages returned with EQUOTA.
const (
	msgNoActiveSubscription = "No active subscription found. Please subscribe to continue."
	msgAllQuotasExhausted   = "All subscription quotas exhausted. Please upgrade or renew."
)

// QuotaCoordinator is the single gate every metered request passes before any
// side effect happens.
type QuotaCoordinator struct {
	ledger        QuotaLedger
	allocator     *SubscriptionQuotaAllocator
	subscriptions SubscriptionStore
	logger        *slog.Logger
}

// NewQuotaCoordinator creates a new QuotaCoordinator.
func NewQuotaCoordinator(ledger QuotaLedger, allocator *SubscriptionQuotaAllocator, subscriptions SubscriptionStore, logger *slog.Logger) *QuotaCoordinator {
	return &QuotaCoordinator{
		ledger:        ledger,
		allocator:     allocator,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// Consume spends one unit of quota for the user.
// Free messages are spent first, then subscriptions. A denial carries EQUOTA;
// storage failures carry EINTERNAL. Nothing is retried.
func (c *QuotaCoordinator) Consume(ctx context.Context, userID int64) (domain.QuotaSource, error) {
	const op = "quota.consume"

	err := c.ledger.ConsumeFreeMessage(ctx, userID)
	if err == nil {
		metrics.QuotaConsumed(domain.QuotaSourceFree)
		return domain.FreeSource(), nil
	}
	if !errors.Is(err, ErrFreeAllowanceExhausted) {
		return domain.QuotaSource{}, err
	}

	active, err := c.subscriptions.GetActiveSubscriptions(ctx, userID)
	if err != nil {
		return domain.QuotaSource{}, domain.Internal(err, op, "failed to list active subscriptions")
	}
	if len(active) == 0 {
		c.deny(userID, "no_subscription")
		return domain.QuotaSource{}, domain.QuotaExceeded(op, msgNoActiveSubscription)
	}

	subID, err := c.allocator.SelectAndDeduct(ctx, active)
	if errors.Is(err, ErrNoQuotaAvailable) {
		c.deny(userID, "exhausted")
		return domain.QuotaSource{}, domain.QuotaExceeded(op, msgAllQuotasExhausted)
	}
	if err != nil {
		return domain.QuotaSource{}, err
	}

	metrics.QuotaConsumed(domain.QuotaSourceSubscription)
	return domain.SubscriptionSource(subID), nil
}

func (c *QuotaCoordinator) deny(userID int64, reason string) {
	metrics.QuotaDenied(reason)
	c.logger.Info("quota exceeded",
		"user_id", userID,
		"reason", reason,
	)
}
