package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier represents the pricing tier of a subscription.
type SubscriptionTier string

const (
	SubscriptionTierBasic      SubscriptionTier = "Basic"
	SubscriptionTierPro        SubscriptionTier = "Pro"
	SubscriptionTierEnterprise SubscriptionTier = "Enterprise"
)

// Valid checks if the tier is known.
func (t SubscriptionTier) Valid() bool {
	_, ok := TierPlans[t]
	return ok
}

// Priority orders tiers for quota allocation. Higher drains first.
func (t SubscriptionTier) Priority() int {
	switch t {
	case SubscriptionTierEnterprise:
		return 3
	case SubscriptionTierPro:
		return 2
	case SubscriptionTierBasic:
		return 1
	default:
		return 0
	}
}

// BillingCycle is the recurrence period of a subscription.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// Valid checks if the billing cycle is known.
func (c BillingCycle) Valid() bool {
	return c == BillingCycleMonthly || c == BillingCycleYearly
}

// UnlimitedMessages is the MaxMessages sentinel for tiers without a message budget.
const UnlimitedMessages = -1

// TierPlan defines the message budget and prices of a tier.
type TierPlan struct {
	MaxMessages       int
	MonthlyPriceCents int64
	YearlyPriceCents  int64
}

// TierPlans is the static tier table.
var TierPlans = map[SubscriptionTier]TierPlan{
	SubscriptionTierBasic: {
		MaxMessages:       10,
		MonthlyPriceCents: 999,
		YearlyPriceCents:  9999,
	},
	SubscriptionTierPro: {
		MaxMessages:       100,
		MonthlyPriceCents: 2999,
		YearlyPriceCents:  29999,
	},
	SubscriptionTierEnterprise: {
		MaxMessages:       UnlimitedMessages,
		MonthlyPriceCents: 9999,
		YearlyPriceCents:  99999,
	},
}

// PriceCents returns the plan price for a billing cycle.
func (p TierPlan) PriceCents(cycle BillingCycle) int64 {
	if cycle == BillingCycleYearly {
		return p.YearlyPriceCents
	}
	return p.MonthlyPriceCents
}

// Subscription is a paid message budget owned by a user.
type Subscription struct {
	ID                uuid.UUID
	UserID            int64
	Tier              SubscriptionTier
	MaxMessages       int
	RemainingMessages int
	PriceCents        int64
	BillingCycle      BillingCycle
	AutoRenew         bool
	IsActive          bool
	StartDate         time.Time
	EndDate           time.Time
	RenewalDate       *time.Time // Set only while AutoRenew is on
	CreatedAt         time.Time
}

// IsUnlimited returns true if the subscription has no message budget.
func (s *Subscription) IsUnlimited() bool {
	return s.MaxMessages == UnlimitedMessages
}

// HasQuota returns true if the subscription can pay for one more message.
func (s *Subscription) HasQuota() bool {
	return s.IsUnlimited() || s.RemainingMessages > 0
}

// NewSubscription builds an active subscription starting at now with a full budget.
func NewSubscription(userID int64, tier SubscriptionTier, cycle BillingCycle, autoRenew bool, now time.Time) Subscription {
	plan := TierPlans[tier]
	end := Advance(now, cycle)

	sub := Subscription{
		ID:                uuid.New(),
		UserID:            userID,
		Tier:              tier,
		MaxMessages:       plan.MaxMessages,
		RemainingMessages: plan.MaxMessages,
		PriceCents:        plan.PriceCents(cycle),
		BillingCycle:      cycle,
		AutoRenew:         autoRenew,
		IsActive:          true,
		StartDate:         now,
		EndDate:           end,
		CreatedAt:         now,
	}
	if sub.IsUnlimited() {
		sub.RemainingMessages = 0
	}
	if autoRenew {
		sub.RenewalDate = &end
	}
	return sub
}

// NextPeriod returns the start, end and renewal dates of the period that
// follows the current one.
func (s *Subscription) NextPeriod() (start, end, renewal time.Time) {
	start = s.EndDate
	end = Advance(start, s.BillingCycle)
	return start, end, end
}

// CreateSubscriptionParams contains the parameters for starting a subscription.
type CreateSubscriptionParams struct {
	UserID       int64
	Tier         SubscriptionTier
	BillingCycle BillingCycle
	AutoRenew    bool
}

// CancelResult is returned when a subscription's auto-renew is turned off.
type CancelResult struct {
	Message string
	EndDate time.Time
}

// RenewalSummary counts the outcomes of one renewal run.
type RenewalSummary struct {
	Renewed int
	Failed  int
	Expired int
	Skipped int // charged, but cancelled or renewed elsewhere before the write
}

// Total returns the number of subscriptions settled.
func (r RenewalSummary) Total() int {
	return r.Renewed + r.Failed + r.Expired + r.Skipped
}
