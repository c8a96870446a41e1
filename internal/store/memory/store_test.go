package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)

func TestStore_FreeUsage(t *testing.T) {
	ctx := context.Background()
	s := New()

	usage, err := s.GetOrCreateMonthlyUsage(ctx, 1, "2025-01")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.FreeMessagesUsed)

	for range 3 {
		ok, err := s.TryIncrementFreeUsage(ctx, 1, "2025-01", 3)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := s.TryIncrementFreeUsage(ctx, 1, "2025-01", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	usage, err = s.GetOrCreateMonthlyUsage(ctx, 1, "2025-01")
	require.NoError(t, err)
	assert.Equal(t, 3, usage.FreeMessagesUsed)

	// A new period starts from zero.
	usage, err = s.GetOrCreateMonthlyUsage(ctx, 1, "2025-02")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.FreeMessagesUsed)
}

func TestStore_TryIncrementFreeUsage_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	var granted atomic.Int32
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.TryIncrementFreeUsage(ctx, 9, "2025-01", 3); ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), granted.Load())
}

func TestStore_TryDeductSubscription(t *testing.T) {
	ctx := context.Background()
	s := New()

	basic := domain.NewSubscription(1, domain.SubscriptionTierBasic, domain.BillingCycleMonthly, true, now)
	basic.RemainingMessages = 1
	enterprise := domain.NewSubscription(1, domain.SubscriptionTierEnterprise, domain.BillingCycleMonthly, true, now)

	_, err := s.InsertSubscription(ctx, basic)
	require.NoError(t, err)
	_, err = s.InsertSubscription(ctx, enterprise)
	require.NoError(t, err)

	ok, err := s.TryDeductSubscription(ctx, basic.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryDeductSubscription(ctx, basic.ID)
	require.NoError(t, err)
	assert.False(t, ok, "drained subscription must not go negative")

	got, err := s.GetSubscription(ctx, basic.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingMessages)

	for range 5 {
		ok, err = s.TryDeductSubscription(ctx, enterprise.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	got, err = s.GetSubscription(ctx, enterprise.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingMessages)

	require.NoError(t, s.SetActive(ctx, enterprise.ID, false))
	ok, err = s.TryDeductSubscription(ctx, enterprise.ID)
	require.NoError(t, err)
	assert.False(t, ok, "inactive subscription must not pay")

	ok, err = s.TryDeductSubscription(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_GetSubscription_NotFound(t *testing.T) {
	_, err := New().GetSubscription(context.Background(), uuid.New())
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestStore_GetActiveSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := New()

	active := domain.NewSubscription(1, domain.SubscriptionTierPro, domain.BillingCycleMonthly, true, now)
	inactive := domain.NewSubscription(1, domain.SubscriptionTierBasic, domain.BillingCycleMonthly, true, now)
	other := domain.NewSubscription(2, domain.SubscriptionTierPro, domain.BillingCycleMonthly, true, now)
	for _, sub := range []domain.Subscription{active, inactive, other} {
		_, err := s.InsertSubscription(ctx, sub)
		require.NoError(t, err)
	}
	require.NoError(t, s.SetActive(ctx, inactive.ID, false))

	subs, err := s.GetActiveSubscriptions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, active.ID, subs[0].ID)

	subs, err = s.GetActiveSubscriptions(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestStore_RenewSubscription(t *testing.T) {
	ctx := context.Background()
	s := New()

	sub := domain.NewSubscription(1, domain.SubscriptionTierBasic, domain.BillingCycleMonthly, true, now)
	sub.RemainingMessages = 2
	_, err := s.InsertSubscription(ctx, sub)
	require.NoError(t, err)

	start, end, renewal := sub.NextPeriod()
	renewed, err := s.RenewSubscription(ctx, sub.ID, sub.EndDate, start, end, renewal)
	require.NoError(t, err)
	assert.True(t, renewed)

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.RemainingMessages)
	assert.Equal(t, start, got.StartDate)
	assert.Equal(t, end, got.EndDate)
	require.NotNil(t, got.RenewalDate)
	assert.Equal(t, renewal, *got.RenewalDate)

	enterprise := domain.NewSubscription(1, domain.SubscriptionTierEnterprise, domain.BillingCycleYearly, true, now)
	_, err = s.InsertSubscription(ctx, enterprise)
	require.NoError(t, err)
	start, end, renewal = enterprise.NextPeriod()
	renewed, err = s.RenewSubscription(ctx, enterprise.ID, enterprise.EndDate, start, end, renewal)
	require.NoError(t, err)
	assert.True(t, renewed)
	got, err = s.GetSubscription(ctx, enterprise.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingMessages, "unlimited subscriptions keep a zero counter")
}

func TestStore_RenewSubscription_Guarded(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(t *testing.T, s *Store, sub domain.Subscription)
		prev   func(sub domain.Subscription) time.Time
	}{
		{
			name:   "cancelled",
			mutate: func(t *testing.T, s *Store, sub domain.Subscription) { require.NoError(t, s.SetAutoRenew(ctx, sub.ID, false)) },
			prev:   func(sub domain.Subscription) time.Time { return sub.EndDate },
		},
		{
			name:   "deactivated",
			mutate: func(t *testing.T, s *Store, sub domain.Subscription) { require.NoError(t, s.SetActive(ctx, sub.ID, false)) },
			prev:   func(sub domain.Subscription) time.Time { return sub.EndDate },
		},
		{
			name:   "period already advanced",
			mutate: func(*testing.T, *Store, domain.Subscription) {},
			prev:   func(sub domain.Subscription) time.Time { return sub.StartDate },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			sub := domain.NewSubscription(1, domain.SubscriptionTierBasic, domain.BillingCycleMonthly, true, now)
			sub.RemainingMessages = 2
			_, err := s.InsertSubscription(ctx, sub)
			require.NoError(t, err)
			tt.mutate(t, s, sub)
			before, err := s.GetSubscription(ctx, sub.ID)
			require.NoError(t, err)

			start, end, renewal := sub.NextPeriod()
			renewed, err := s.RenewSubscription(ctx, sub.ID, tt.prev(sub), start, end, renewal)
			require.NoError(t, err)
			assert.False(t, renewed)

			after, err := s.GetSubscription(ctx, sub.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	renewed, err := New().RenewSubscription(ctx, uuid.New(), now, now, now, now)
	require.NoError(t, err)
	assert.False(t, renewed, "unknown subscriptions are not renewed")
}

func TestStore_SetAutoRenew_ClearsRenewalDate(t *testing.T) {
	ctx := context.Background()
	s := New()

	sub := domain.NewSubscription(1, domain.SubscriptionTierPro, domain.BillingCycleMonthly, true, now)
	_, err := s.InsertSubscription(ctx, sub)
	require.NoError(t, err)

	require.NoError(t, s.SetAutoRenew(ctx, sub.ID, false))
	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, got.AutoRenew)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.RenewalDate)

	assert.ErrorIs(t, s.SetAutoRenew(ctx, uuid.New(), false), service.ErrNotFound)
}

func TestStore_ListDueSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := New()

	due1 := domain.NewSubscription(1, domain.SubscriptionTierBasic, domain.BillingCycleMonthly, true, now.AddDate(0, -2, 0))
	due2 := domain.NewSubscription(2, domain.SubscriptionTierBasic, domain.BillingCycleMonthly, false, now.AddDate(0, -1, 0))
	notDue := domain.NewSubscription(3, domain.SubscriptionTierBasic, domain.BillingCycleMonthly, true, now)
	dueInactive := domain.NewSubscription(4, domain.SubscriptionTierBasic, domain.BillingCycleMonthly, true, now.AddDate(0, -3, 0))
	for _, sub := range []domain.Subscription{due1, due2, notDue, dueInactive} {
		_, err := s.InsertSubscription(ctx, sub)
		require.NoError(t, err)
	}
	require.NoError(t, s.SetActive(ctx, dueInactive.ID, false))

	subs, err := s.ListDueSubscriptions(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, due1.ID, subs[0].ID, "oldest end date first")
	assert.Equal(t, due2.ID, subs[1].ID)

	subs, err = s.ListDueSubscriptions(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestStore_ChatMessages(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, q := range []string{"first", "second", "third"} {
		require.NoError(t, s.InsertChatMessage(ctx, domain.ChatMessage{
			UserID:    1,
			Question:  q,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.InsertChatMessage(ctx, domain.ChatMessage{UserID: 2, Question: "other"}))

	msgs, err := s.ListChatMessages(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "third", msgs[0].Question)
	assert.Equal(t, "second", msgs[1].Question)
	assert.NotEqual(t, uuid.Nil, msgs[0].ID)
}
