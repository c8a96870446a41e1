// Package service contains the business logic layer.
//
// This file implements the free-tier ledger: a per-user, per-month message
// allowance that is spent before any subscription.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

// ErrFreeAllowanceExhausted is returned when the monthly free allowance is used up.
var ErrFreeAllowanceExhausted = errors.New("free allowance exhausted")

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaLedger owns the monthly free-message counter.
type QuotaLedger interface {
	// CanUseFreeMessage reports whether the user has free messages left this period.
	// The usage row is created on first use.
	CanUseFreeMessage(ctx context.Context, userID int64) (bool, error)

	// ConsumeFreeMessage spends one free message.
	// Returns ErrFreeAllowanceExhausted if the cap was already reached.
	ConsumeFreeMessage(ctx context.Context, userID int64) error

	// Usage returns the current period's usage row.
	Usage(ctx context.Context, userID int64) (domain.MonthlyUsage, error)

	// Limit returns the free messages allowed per period.
	Limit() int
}

// =============================================================================
// Implementation
// =============================================================================

type quotaLedger struct {
	store  UsageStore
	limit  int
	now    func() time.Time
	logger *slog.Logger
}

// LedgerOption configures a QuotaLedger.
type LedgerOption func(*quotaLedger)

// WithFreeLimit overrides the free messages allowed per period.
func WithFreeLimit(limit int) LedgerOption {
	return func(l *quotaLedger) {
		if limit >= 0 {
			l.limit = limit
		}
	}
}

// WithLedgerClock sets the clock used to pick the current period.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *quotaLedger) {
		l.now = now
	}
}

// NewQuotaLedger creates a new QuotaLedger.
func NewQuotaLedger(store UsageStore, logger *slog.Logger, opts ...LedgerOption) QuotaLedger {
	l := &quotaLedger{
		store:  store,
		limit:  domain.DefaultFreeMessagesPerMonth,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *quotaLedger) Limit() int {
	return l.limit
}

// CanUseFreeMessage reports whether the user has free messages left this period.
func (l *quotaLedger) CanUseFreeMessage(ctx context.Context, userID int64) (bool, error) {
	usage, err := l.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	return usage.FreeMessagesUsed < l.limit, nil
}

// ConsumeFreeMessage spends one free message in a single conditional update.
func (l *quotaLedger) ConsumeFreeMessage(ctx context.Context, userID int64) error {
	const op = "ledger.consume_free"

	periodKey := domain.CurrentPeriodKey(l.now())

	if _, err := l.store.GetOrCreateMonthlyUsage(ctx, userID, periodKey); err != nil {
		return domain.Internal(err, op, "failed to load monthly usage")
	}

	ok, err := l.store.TryIncrementFreeUsage(ctx, userID, periodKey, l.limit)
	if err != nil {
		return domain.Internal(err, op, "failed to increment free usage")
	}
	if !ok {
		l.logger.Debug("free allowance exhausted",
			"user_id", userID,
			"period", periodKey,
			"limit", l.limit,
		)
		return ErrFreeAllowanceExhausted
	}

	return nil
}

// Usage returns the current period's usage row, creating it if needed.
func (l *quotaLedger) Usage(ctx context.Context, userID int64) (domain.MonthlyUsage, error) {
	const op = "ledger.usage"

	usage, err := l.store.GetOrCreateMonthlyUsage(ctx, userID, domain.CurrentPeriodKey(l.now()))
	if err != nil {
		return domain.MonthlyUsage{}, domain.Internal(err, op, "failed to load monthly usage")
	}
	return usage, nil
}
