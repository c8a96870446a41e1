package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaCoordinator_FreeFirst(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	subID := f.subscribe(1, domain.SubscriptionTierBasic, -1)

	for range 3 {
		source, err := f.coordinator.Consume(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.QuotaSourceFree, source.Kind)
	}
	assert.Equal(t, 10, f.remaining(subID), "subscription untouched while free messages remain")

	source, err := f.coordinator.Consume(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.QuotaSourceSubscription, source.Kind)
	assert.Equal(t, subID, source.SubscriptionID)
	assert.Equal(t, 9, f.remaining(subID))
}

func TestQuotaCoordinator_NoSubscription(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.exhaustFree(1)

	_, err := f.coordinator.Consume(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	assert.Equal(t, "No active subscription found. Please subscribe to continue.", domain.ErrorMessage(err))
}

func TestQuotaCoordinator_BasicDrainsThenDenied(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.exhaustFree(1)
	subID := f.subscribe(1, domain.SubscriptionTierBasic, -1)

	for i := range 10 {
		source, err := f.coordinator.Consume(ctx, 1)
		require.NoError(t, err, "message %d", i+1)
		assert.Equal(t, subID, source.SubscriptionID)
	}
	assert.Equal(t, 0, f.remaining(subID))

	_, err := f.coordinator.Consume(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	assert.Equal(t, "All subscription quotas exhausted. Please upgrade or renew.", domain.ErrorMessage(err))
	assert.Equal(t, 0, f.remaining(subID), "remaining never goes negative")
}

func TestQuotaCoordinator_EnterprisePreferred(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.exhaustFree(1)
	basicID := f.subscribe(1, domain.SubscriptionTierBasic, 0)
	enterpriseID := f.subscribe(1, domain.SubscriptionTierEnterprise, -1)

	for range 25 {
		source, err := f.coordinator.Consume(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, enterpriseID, source.SubscriptionID)
	}
	assert.Equal(t, 0, f.remaining(enterpriseID), "unlimited counter is never decremented")
	assert.Equal(t, 0, f.remaining(basicID))
}

func TestQuotaCoordinator_TierOrder(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.exhaustFree(1)
	basicID := f.subscribe(1, domain.SubscriptionTierBasic, 5)
	proID := f.subscribe(1, domain.SubscriptionTierPro, 1)

	source, err := f.coordinator.Consume(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, proID, source.SubscriptionID, "Pro drains before Basic")

	source, err = f.coordinator.Consume(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, basicID, source.SubscriptionID, "Basic pays once Pro is empty")
	assert.Equal(t, 4, f.remaining(basicID))
}

func TestQuotaCoordinator_EqualTierHigherRemainingFirst(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.exhaustFree(1)
	low := f.subscribe(1, domain.SubscriptionTierBasic, 2)
	high := f.subscribe(1, domain.SubscriptionTierBasic, 7)

	source, err := f.coordinator.Consume(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, high, source.SubscriptionID)
	assert.Equal(t, 6, f.remaining(high))
	assert.Equal(t, 2, f.remaining(low))
}

func TestQuotaCoordinator_InactiveSubscriptionIgnored(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.exhaustFree(1)
	subID := f.subscribe(1, domain.SubscriptionTierPro, -1)
	require.NoError(t, f.store.SetActive(ctx, subID, false))

	_, err := f.coordinator.Consume(ctx, 1)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	assert.Equal(t, 100, f.remaining(subID))
}

func TestQuotaCoordinator_ConcurrentSingleFreeSlot(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	for range 2 {
		require.NoError(t, f.ledger.ConsumeFreeMessage(ctx, 1))
	}

	const n = 20
	var wg sync.WaitGroup
	results := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			source, err := f.coordinator.Consume(ctx, 1)
			if err == nil && source.Kind != domain.QuotaSourceFree {
				t.Errorf("unexpected source %s", source)
			}
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for err := range results {
		if err == nil {
			granted++
			continue
		}
		assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	}
	assert.Equal(t, 1, granted)

	usage, err := f.ledger.Usage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, usage.FreeMessagesUsed)
}

func TestQuotaCoordinator_ConcurrentSubscriptionNeverOverdrawn(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.exhaustFree(1)
	subID := f.subscribe(1, domain.SubscriptionTierBasic, 5)

	const n = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.coordinator.Consume(ctx, 1); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted)
	assert.Equal(t, 0, f.remaining(subID))
}

// racingStore loses the deduction race on one subscription.
type racingStore struct {
	service.SubscriptionStore
	lose uuid.UUID
}

func (s racingStore) TryDeductSubscription(ctx context.Context, id uuid.UUID) (bool, error) {
	if id == s.lose {
		return false, nil
	}
	return s.SubscriptionStore.TryDeductSubscription(ctx, id)
}

func TestSubscriptionQuotaAllocator_FallsThroughOnLostRace(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	proID := f.subscribe(1, domain.SubscriptionTierPro, 3)
	basicID := f.subscribe(1, domain.SubscriptionTierBasic, 3)

	allocator := service.NewSubscriptionQuotaAllocator(racingStore{SubscriptionStore: f.store, lose: proID}, testLogger())
	active, err := f.store.GetActiveSubscriptions(ctx, 1)
	require.NoError(t, err)

	id, err := allocator.SelectAndDeduct(ctx, active)
	require.NoError(t, err)
	assert.Equal(t, basicID, id)
	assert.Equal(t, 2, f.remaining(basicID))
	assert.Equal(t, 3, f.remaining(proID))
}

func TestSubscriptionQuotaAllocator_NothingAvailable(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.subscribe(1, domain.SubscriptionTierBasic, 0)

	active, err := f.store.GetActiveSubscriptions(ctx, 1)
	require.NoError(t, err)

	allocator := service.NewSubscriptionQuotaAllocator(f.store, testLogger())
	_, err = allocator.SelectAndDeduct(ctx, active)
	assert.ErrorIs(t, err, service.ErrNoQuotaAvailable)
}
