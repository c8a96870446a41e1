package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	ID             uuid.UUID
	UserID         int64
	Question       string
	Answer         string
	Tokens         int32
	QuotaSource    string
	SubscriptionID uuid.NullUUID
	CreatedAt      time.Time
}

type MonthlyUsage struct {
	UserID           int64
	PeriodKey        string
	FreeMessagesUsed int32
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Subscription struct {
	ID                uuid.UUID
	UserID            int64
	Tier              string
	MaxMessages       int32
	RemainingMessages int32
	PriceCents        int64
	BillingCycle      string
	AutoRenew         bool
	IsActive          bool
	StartDate         time.Time
	EndDate           time.Time
	RenewalDate       sql.NullTime
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
