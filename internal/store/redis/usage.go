// Package redis implements service.UsageStore on Redis.
//
// Each user's monthly counter is a plain integer key. The cap check and the
// increment run inside one Lua script so concurrent requests cannot overshoot.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "quotaledger:usage"

// DefaultRetention is how long a counter outlives the end of its period.
const DefaultRetention = 31 * 24 * time.Hour

// incrementScript increments KEYS[1] only while it is below ARGV[1].
// ARGV[2] is the TTL in seconds applied when the key is created.
var incrementScript = goredis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
if used >= tonumber(ARGV[1]) then
	return 0
end
if redis.call('INCR', KEYS[1]) == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// UsageStore keeps monthly free usage counters in Redis.
type UsageStore struct {
	client    goredis.UniversalClient
	retention time.Duration
	now       func() time.Time
}

var _ service.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates a UsageStore on client.
func NewUsageStore(client goredis.UniversalClient) *UsageStore {
	return &UsageStore{
		client:    client,
		retention: DefaultRetention,
		now:       time.Now,
	}
}

func (s *UsageStore) GetOrCreateMonthlyUsage(ctx context.Context, userID int64, periodKey string) (domain.MonthlyUsage, error) {
	key := usageKey(userID, periodKey)

	ttl, err := s.ttl(periodKey)
	if err != nil {
		return domain.MonthlyUsage{}, err
	}
	if err := s.client.SetNX(ctx, key, 0, ttl).Err(); err != nil {
		return domain.MonthlyUsage{}, fmt.Errorf("create usage counter: %w", err)
	}

	used, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, goredis.Nil) {
		// Expired between the two calls.
		used = 0
	} else if err != nil {
		return domain.MonthlyUsage{}, fmt.Errorf("get usage counter: %w", err)
	}

	return domain.MonthlyUsage{
		UserID:           userID,
		PeriodKey:        periodKey,
		FreeMessagesUsed: used,
	}, nil
}

func (s *UsageStore) TryIncrementFreeUsage(ctx context.Context, userID int64, periodKey string, limit int) (bool, error) {
	ttl, err := s.ttl(periodKey)
	if err != nil {
		return false, err
	}

	n, err := incrementScript.Run(ctx, s.client,
		[]string{usageKey(userID, periodKey)},
		limit, int64(ttl/time.Second),
	).Int()
	if err != nil {
		return false, fmt.Errorf("increment usage counter: %w", err)
	}
	return n == 1, nil
}

// ttl keeps a counter until retention has passed after its period ends.
func (s *UsageStore) ttl(periodKey string) (time.Duration, error) {
	_, end, err := domain.PeriodBounds(periodKey)
	if err != nil {
		return 0, err
	}
	return max(end.Add(s.retention).Sub(s.now()), time.Minute), nil
}

func usageKey(userID int64, periodKey string) string {
	return fmt.Sprintf("%s:%d:%s", keyPrefix, userID, periodKey)
}
