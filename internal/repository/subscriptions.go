package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const createSubscription = `-- name: CreateSubscription :one
INSERT INTO subscriptions (
    id, user_id, tier, max_messages, remaining_messages, price_cents,
    billing_cycle, auto_renew, is_active, start_date, end_date, renewal_date, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
)
RETURNING id
`

type CreateSubscriptionParams struct {
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
}

func (q *Queries) CreateSubscription(ctx context.Context, arg CreateSubscriptionParams) (uuid.UUID, error) {
	row := q.db.QueryRowContext(ctx, createSubscription,
		arg.ID,
		arg.UserID,
		arg.Tier,
		arg.MaxMessages,
		arg.RemainingMessages,
		arg.PriceCents,
		arg.BillingCycle,
		arg.AutoRenew,
		arg.IsActive,
		arg.StartDate,
		arg.EndDate,
		arg.RenewalDate,
		arg.CreatedAt,
	)
	var id uuid.UUID
	err := row.Scan(&id)
	return id, err
}

const subscriptionColumns = `id, user_id, tier, max_messages, remaining_messages, price_cents, billing_cycle, auto_renew, is_active, start_date, end_date, renewal_date, created_at, updated_at`

const getSubscriptionByID = `-- name: GetSubscriptionByID :one
SELECT ` + subscriptionColumns + ` FROM subscriptions
WHERE id = $1
`

func (q *Queries) GetSubscriptionByID(ctx context.Context, id uuid.UUID) (Subscription, error) {
	row := q.db.QueryRowContext(ctx, getSubscriptionByID, id)
	return scanSubscription(row)
}

const listActiveSubscriptionsByUserID = `-- name: ListActiveSubscriptionsByUserID :many
SELECT ` + subscriptionColumns + ` FROM subscriptions
WHERE user_id = $1 AND is_active
ORDER BY created_at
`

func (q *Queries) ListActiveSubscriptionsByUserID(ctx context.Context, userID int64) ([]Subscription, error) {
	rows, err := q.db.QueryContext(ctx, listActiveSubscriptionsByUserID, userID)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

const deductSubscriptionMessage = `-- name: DeductSubscriptionMessage :execrows
UPDATE subscriptions
SET remaining_messages = CASE
        WHEN max_messages = -1 THEN remaining_messages
        ELSE remaining_messages - 1
    END,
    updated_at = NOW()
WHERE id = $1
  AND is_active
  AND (max_messages = -1 OR remaining_messages > 0)
`

func (q *Queries) DeductSubscriptionMessage(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.ExecContext(ctx, deductSubscriptionMessage, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateSubscriptionAutoRenew = `-- name: UpdateSubscriptionAutoRenew :execrows
UPDATE subscriptions
SET auto_renew = $2,
    renewal_date = CASE WHEN $2::boolean THEN end_date ELSE NULL END,
    updated_at = NOW()
WHERE id = $1
`

type UpdateSubscriptionAutoRenewParams struct {
	ID        uuid.UUID
	AutoRenew bool
}

func (q *Queries) UpdateSubscriptionAutoRenew(ctx context.Context, arg UpdateSubscriptionAutoRenewParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateSubscriptionAutoRenew, arg.ID, arg.AutoRenew)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateSubscriptionActive = `-- name: UpdateSubscriptionActive :execrows
UPDATE subscriptions
SET is_active = $2,
    updated_at = NOW()
WHERE id = $1
`

type UpdateSubscriptionActiveParams struct {
	ID       uuid.UUID
	IsActive bool
}

func (q *Queries) UpdateSubscriptionActive(ctx context.Context, arg UpdateSubscriptionActiveParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateSubscriptionActive, arg.ID, arg.IsActive)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const renewSubscription = `-- name: RenewSubscription :execrows
UPDATE subscriptions
SET start_date = $2,
    end_date = $3,
    renewal_date = $4,
    remaining_messages = GREATEST(max_messages, 0),
    updated_at = NOW()
WHERE id = $1
  AND is_active
  AND auto_renew
  AND end_date = $5
`

type RenewSubscriptionParams struct {
	ID          uuid.UUID
	StartDate   time.Time
	EndDate     time.Time
	RenewalDate sql.NullTime
	PrevEndDate time.Time
}

func (q *Queries) RenewSubscription(ctx context.Context, arg RenewSubscriptionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, renewSubscription,
		arg.ID,
		arg.StartDate,
		arg.EndDate,
		arg.RenewalDate,
		arg.PrevEndDate,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listDueSubscriptions = `-- name: ListDueSubscriptions :many
SELECT ` + subscriptionColumns + ` FROM subscriptions
WHERE is_active AND end_date <= $1
ORDER BY end_date, id
LIMIT $2
`

type ListDueSubscriptionsParams struct {
	EndDate time.Time
	Limit   int32
}

func (q *Queries) ListDueSubscriptions(ctx context.Context, arg ListDueSubscriptionsParams) ([]Subscription, error) {
	rows, err := q.db.QueryContext(ctx, listDueSubscriptions, arg.EndDate, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (Subscription, error) {
	var i Subscription
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Tier,
		&i.MaxMessages,
		&i.RemainingMessages,
		&i.PriceCents,
		&i.BillingCycle,
		&i.AutoRenew,
		&i.IsActive,
		&i.StartDate,
		&i.EndDate,
		&i.RenewalDate,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectSubscriptions(rows *sql.Rows) ([]Subscription, error) {
	defer rows.Close()
	var items []Subscription
	for rows.Next() {
		i, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
