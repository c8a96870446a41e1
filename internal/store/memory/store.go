// Package memory provides an in-process implementation of service.Store.
// A single mutex serializes every quota decision.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/google/uuid"
)

type usageKey struct {
	userID    int64
	periodKey string
}

type Store struct {
	mu sync.RWMutex

	// Usage storage keyed by user and period
	usage map[usageKey]int

	// Subscription storage
	subscriptions map[uuid.UUID]*domain.Subscription

	// Chat messages in insertion order
	messages []domain.ChatMessage
}

var _ service.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		usage:         make(map[usageKey]int),
		subscriptions: make(map[uuid.UUID]*domain.Subscription),
		messages:      make([]domain.ChatMessage, 0),
	}
}

// Usage Store implementation

func (s *Store) GetOrCreateMonthlyUsage(_ context.Context, userID int64, periodKey string) (domain.MonthlyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := usageKey{userID, periodKey}
	used, ok := s.usage[k]
	if !ok {
		s.usage[k] = 0
	}
	return domain.MonthlyUsage{UserID: userID, PeriodKey: periodKey, FreeMessagesUsed: used}, nil
}

func (s *Store) TryIncrementFreeUsage(_ context.Context, userID int64, periodKey string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := usageKey{userID, periodKey}
	if s.usage[k] >= limit {
		return false, nil
	}
	s.usage[k]++
	return true, nil
}

// Subscription Store implementation

func (s *Store) InsertSubscription(_ context.Context, sub domain.Subscription) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	s.subscriptions[sub.ID] = &sub
	return sub.ID, nil
}

func (s *Store) GetSubscription(_ context.Context, id uuid.UUID) (domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[id]; ok {
		return copySubscription(sub), nil
	}
	return domain.Subscription{}, service.ErrNotFound
}

func (s *Store) GetActiveSubscriptions(_ context.Context, userID int64) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.IsActive {
			result = append(result, copySubscription(sub))
		}
	}
	slices.SortFunc(result, func(a, b domain.Subscription) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) TryDeductSubscription(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok || !sub.IsActive {
		return false, nil
	}
	if sub.IsUnlimited() {
		return true, nil
	}
	if sub.RemainingMessages <= 0 {
		return false, nil
	}
	sub.RemainingMessages--
	return true, nil
}

func (s *Store) SetAutoRenew(_ context.Context, id uuid.UUID, autoRenew bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return service.ErrNotFound
	}
	sub.AutoRenew = autoRenew
	if autoRenew {
		end := sub.EndDate
		sub.RenewalDate = &end
	} else {
		sub.RenewalDate = nil
	}
	return nil
}

func (s *Store) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return service.ErrNotFound
	}
	sub.IsActive = active
	return nil
}

func (s *Store) RenewSubscription(_ context.Context, id uuid.UUID, prevEnd, start, end, renewal time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok || !sub.IsActive || !sub.AutoRenew || !sub.EndDate.Equal(prevEnd) {
		return false, nil
	}
	sub.StartDate = start
	sub.EndDate = end
	sub.RenewalDate = &renewal
	sub.RemainingMessages = max(sub.MaxMessages, 0)
	return true, nil
}

func (s *Store) ListDueSubscriptions(_ context.Context, before time.Time, limit int) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.IsActive && !sub.EndDate.After(before) {
			result = append(result, copySubscription(sub))
		}
	}
	slices.SortFunc(result, func(a, b domain.Subscription) int {
		if c := a.EndDate.Compare(b.EndDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Message Store implementation

func (s *Store) InsertChatMessage(_ context.Context, msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *Store) ListChatMessages(_ context.Context, userID int64, limit int) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ChatMessage, 0)
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].UserID != userID {
			continue
		}
		result = append(result, s.messages[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// copySubscription detaches the returned value from the stored pointer.
func copySubscription(sub *domain.Subscription) domain.Subscription {
	c := *sub
	if sub.RenewalDate != nil {
		r := *sub.RenewalDate
		c.RenewalDate = &r
	}
	return c
}
