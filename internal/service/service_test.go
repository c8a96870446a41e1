package service_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/DukeRupert/quotaledger/internal/answer/mock"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/DukeRupert/quotaledger/internal/store/memory"
	"github.com/google/uuid"
)

var testNow = time.Date(2025, time.January, 31, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires every service over one in-memory store.
type fixture struct {
	store         *memory.Store
	ledger        service.QuotaLedger
	coordinator   *service.QuotaCoordinator
	subscriptions service.SubscriptionService
	chat          service.ChatService
	answers       *mock.Provider
	now           time.Time
}

func newFixture(payments service.Chance) *fixture {
	f := &fixture{
		store:   memory.New(),
		answers: mock.New(testLogger()),
		now:     testNow,
	}
	clock := func() time.Time { return f.now }
	logger := testLogger()

	f.ledger = service.NewQuotaLedger(f.store, logger, service.WithLedgerClock(clock))
	allocator := service.NewSubscriptionQuotaAllocator(f.store, logger)
	f.coordinator = service.NewQuotaCoordinator(f.ledger, allocator, f.store, logger)
	f.subscriptions = service.NewSubscriptionService(f.store, service.SubscriptionServiceConfig{
		Payments: payments,
		Now:      clock,
	}, logger)
	f.chat = service.NewChatService(f.coordinator, f.answers, f.store, logger)
	return f
}

// exhaustFree spends the user's free allowance for the current period.
func (f *fixture) exhaustFree(userID int64) {
	for range domain.DefaultFreeMessagesPerMonth {
		if err := f.ledger.ConsumeFreeMessage(context.Background(), userID); err != nil {
			panic(err)
		}
	}
}

// subscribe creates a subscription and optionally overrides its remaining budget.
func (f *fixture) subscribe(userID int64, tier domain.SubscriptionTier, remaining int) uuid.UUID {
	sub := domain.NewSubscription(userID, tier, domain.BillingCycleMonthly, true, f.now)
	if remaining >= 0 && !sub.IsUnlimited() {
		sub.RemainingMessages = remaining
	}
	id, err := f.store.InsertSubscription(context.Background(), sub)
	if err != nil {
		panic(err)
	}
	return id
}

func (f *fixture) remaining(id uuid.UUID) int {
	sub, err := f.store.GetSubscription(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return sub.RemainingMessages
}
