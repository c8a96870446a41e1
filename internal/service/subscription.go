package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionService defines subscription lifecycle operations.
type SubscriptionService interface {
	// Create starts a new active subscription with a full message budget.
	// Returns domain.EINVALID for an unknown tier or billing cycle.
	Create(ctx context.Context, params domain.CreateSubscriptionParams) (*domain.Subscription, error)

	// ListActive returns the user's active subscriptions.
	ListActive(ctx context.Context, userID int64) ([]domain.Subscription, error)

	// Cancel turns off auto-renew. The subscription stays usable until its end date.
	// Returns domain.ENOTFOUND if it does not exist and domain.EFORBIDDEN if it
	// belongs to another user.
	Cancel(ctx context.Context, subscriptionID uuid.UUID, userID int64) (*domain.CancelResult, error)

	// SimulatePayment runs one payment trial. A failed trial deactivates the
	// subscription; a successful one renews it when auto-renew is still on at
	// the moment of the write.
	// Returns domain.ENOTFOUND if the subscription does not exist.
	SimulatePayment(ctx context.Context, subscriptionID uuid.UUID) (bool, error)

	// ProcessRenewals settles every active subscription whose period has ended.
	ProcessRenewals(ctx context.Context) (*domain.RenewalSummary, error)
}

// =============================================================================
// Implementation
// =============================================================================

// DefaultRenewalBatchSize bounds how many due subscriptions one renewal run settles.
const DefaultRenewalBatchSize = 100

// SubscriptionServiceConfig holds optional collaborators for the subscription service.
type SubscriptionServiceConfig struct {
	// Payments decides simulated payment outcomes. Defaults to an 80% success rate.
	Payments Chance

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// RenewalBatchSize bounds a single ProcessRenewals run. Defaults to 100.
	RenewalBatchSize int
}

type subscriptionService struct {
	store     SubscriptionStore
	payments  Chance
	now       func() time.Time
	batchSize int
	logger    *slog.Logger
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(store SubscriptionStore, cfg SubscriptionServiceConfig, logger *slog.Logger) SubscriptionService {
	s := &subscriptionService{
		store:     store,
		payments:  cfg.Payments,
		now:       cfg.Now,
		batchSize: cfg.RenewalBatchSize,
		logger:    logger,
	}
	if s.payments == nil {
		s.payments = NewRandomChance(DefaultPaymentSuccessRate, nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultRenewalBatchSize
	}
	return s
}

// =============================================================================
// Create / List
// =============================================================================

// Create starts a new subscription.
func (s *subscriptionService) Create(ctx context.Context, params domain.CreateSubscriptionParams) (*domain.Subscription, error) {
	const op = "subscription.create"

	if !params.Tier.Valid() {
		return nil, domain.Invalid(op, "tier must be Basic, Pro, or Enterprise")
	}
	if !params.BillingCycle.Valid() {
		return nil, domain.Invalid(op, "billingCycle must be monthly or yearly")
	}

	sub := domain.NewSubscription(params.UserID, params.Tier, params.BillingCycle, params.AutoRenew, s.now().UTC())

	id, err := s.store.InsertSubscription(ctx, sub)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create subscription")
	}
	sub.ID = id

	metrics.SubscriptionCreated(sub.Tier, sub.BillingCycle)
	s.logger.Info("subscription created",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"tier", sub.Tier,
		"billing_cycle", sub.BillingCycle,
		"auto_renew", sub.AutoRenew,
	)

	return &sub, nil
}

// ListActive returns the user's active subscriptions.
func (s *subscriptionService) ListActive(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	const op = "subscription.list_active"

	subs, err := s.store.GetActiveSubscriptions(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list subscriptions")
	}
	return prioritize(subs), nil
}

// =============================================================================
// Cancel
// =============================================================================

// Cancel turns off auto-renew without shortening the paid period.
func (s *subscriptionService) Cancel(ctx context.Context, subscriptionID uuid.UUID, userID int64) (*domain.CancelResult, error) {
	const op = "subscription.cancel"

	sub, err := s.get(ctx, op, subscriptionID)
	if err != nil {
		return nil, err
	}

	if sub.UserID != userID {
		s.logger.Warn("subscription cancel by non-owner",
			"subscription_id", subscriptionID,
			"owner_id", sub.UserID,
			"user_id", userID,
		)
		return nil, domain.Forbidden(op, "You do not have permission to cancel this subscription")
	}

	if err := s.store.SetAutoRenew(ctx, subscriptionID, false); err != nil {
		return nil, domain.Internal(err, op, "failed to cancel subscription")
	}

	metrics.SubscriptionCanceled()
	s.logger.Info("subscription canceled",
		"subscription_id", subscriptionID,
		"user_id", userID,
		"end_date", sub.EndDate,
	)

	return &domain.CancelResult{
		Message: "Subscription cancelled. It will remain active until end date.",
		EndDate: sub.EndDate,
	}, nil
}

// =============================================================================
// Payment / Renewal
// =============================================================================

// paymentOutcome is the effect of one charge on a subscription.
type paymentOutcome int

const (
	paymentFailed  paymentOutcome = iota // charge declined, subscription deactivated
	paymentSettled                       // charge accepted, auto-renew off so nothing advances
	paymentRenewed                       // charge accepted, period advanced
	paymentSkipped                       // charge accepted, but the row changed since it was read
)

// SimulatePayment runs one independent payment trial.
func (s *subscriptionService) SimulatePayment(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	const op = "subscription.simulate_payment"

	sub, err := s.get(ctx, op, subscriptionID)
	if err != nil {
		return false, err
	}

	outcome, err := s.charge(ctx, op, sub)
	if err != nil {
		return false, err
	}
	return outcome != paymentFailed, nil
}

// charge runs a payment trial against a snapshot of the subscription. The
// renewal only applies if the stored row still matches the snapshot, so a
// cancel or a concurrent renewal between read and write is never overwritten.
func (s *subscriptionService) charge(ctx context.Context, op string, sub domain.Subscription) (paymentOutcome, error) {
	if !s.payments.Succeed() {
		if err := s.store.SetActive(ctx, sub.ID, false); err != nil {
			return paymentFailed, domain.Internal(err, op, "failed to deactivate subscription")
		}
		metrics.PaymentProcessed(false)
		s.logger.Info("payment failed, subscription deactivated",
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
		)
		return paymentFailed, nil
	}

	metrics.PaymentProcessed(true)

	if !sub.AutoRenew {
		return paymentSettled, nil
	}

	start, end, renewal := sub.NextPeriod()
	renewed, err := s.store.RenewSubscription(ctx, sub.ID, sub.EndDate, start, end, renewal)
	if err != nil {
		return paymentFailed, domain.Internal(err, op, "failed to renew subscription")
	}
	if !renewed {
		s.logger.Warn("subscription changed before renewal, not renewed",
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
			"end_date", sub.EndDate,
		)
		return paymentSkipped, nil
	}

	s.logger.Info("subscription renewed",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"start_date", start,
		"end_date", end,
	)
	return paymentRenewed, nil
}

// ProcessRenewals settles subscriptions whose period has ended: auto-renewing
// ones are charged, cancelled ones expire.
func (s *subscriptionService) ProcessRenewals(ctx context.Context) (*domain.RenewalSummary, error) {
	const op = "subscription.process_renewals"

	due, err := s.store.ListDueSubscriptions(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list due subscriptions")
	}

	summary := &domain.RenewalSummary{}
	for _, sub := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if !sub.AutoRenew {
			if err := s.store.SetActive(ctx, sub.ID, false); err != nil {
				return summary, domain.Internal(err, op, "failed to expire subscription")
			}
			summary.Expired++
			s.logger.Info("subscription expired",
				"subscription_id", sub.ID,
				"user_id", sub.UserID,
				"end_date", sub.EndDate,
			)
			continue
		}

		outcome, err := s.charge(ctx, op, sub)
		if err != nil {
			return summary, err
		}
		switch outcome {
		case paymentRenewed:
			summary.Renewed++
		case paymentFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	return summary, nil
}

// get loads a subscription, mapping a missing row to ENOTFOUND.
func (s *subscriptionService) get(ctx context.Context, op string, id uuid.UUID) (domain.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return domain.Subscription{}, domain.NotFound(op, "subscription", id.String())
	}
	if err != nil {
		return domain.Subscription{}, domain.Internal(err, op, "failed to load subscription")
	}
	return sub, nil
}
