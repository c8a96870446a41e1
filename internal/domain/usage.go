package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultFreeMessagesPerMonth is the free-tier cap applied when none is configured.
const DefaultFreeMessagesPerMonth = 3

// MonthlyUsage tracks how many free messages a user spent in one period.
type MonthlyUsage struct {
	UserID           int64
	PeriodKey        string
	FreeMessagesUsed int
}

// FreeRemaining returns how many free messages are left under limit.
func (u *MonthlyUsage) FreeRemaining(limit int) int {
	return max(0, limit-u.FreeMessagesUsed)
}

// QuotaSourceKind identifies which allowance paid for a request.
type QuotaSourceKind string

const (
	QuotaSourceFree         QuotaSourceKind = "free"
	QuotaSourceSubscription QuotaSourceKind = "subscription"
)

// QuotaSource is the result of a successful quota consumption.
// SubscriptionID is set only when Kind is QuotaSourceSubscription.
type QuotaSource struct {
	Kind           QuotaSourceKind
	SubscriptionID uuid.UUID
}

// FreeSource returns the free-tier quota source.
func FreeSource() QuotaSource {
	return QuotaSource{Kind: QuotaSourceFree}
}

// SubscriptionSource returns a quota source for the given subscription.
func SubscriptionSource(id uuid.UUID) QuotaSource {
	return QuotaSource{Kind: QuotaSourceSubscription, SubscriptionID: id}
}

func (q QuotaSource) String() string {
	if q.Kind == QuotaSourceSubscription {
		return fmt.Sprintf("subscription(%s)", q.SubscriptionID)
	}
	return string(q.Kind)
}

// ChatMessage is a persisted question and its answer.
type ChatMessage struct {
	ID          uuid.UUID
	UserID      int64
	Question    string
	Answer      string
	Tokens      int
	QuotaSource QuotaSource
	CreatedAt   time.Time
}

// EstimateTokens approximates token usage at four characters per token.
func EstimateTokens(question, answer string) int {
	chars := len(question) + len(answer)
	return (chars + 3) / 4
}
