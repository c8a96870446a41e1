package repository

import (
	"context"
)

const createMonthlyUsage = `-- name: CreateMonthlyUsage :exec
INSERT INTO monthly_usage (user_id, period_key)
VALUES ($1, $2)
ON CONFLICT (user_id, period_key) DO NOTHING
`

type CreateMonthlyUsageParams struct {
	UserID    int64
	PeriodKey string
}

func (q *Queries) CreateMonthlyUsage(ctx context.Context, arg CreateMonthlyUsageParams) error {
	_, err := q.db.ExecContext(ctx, createMonthlyUsage, arg.UserID, arg.PeriodKey)
	return err
}

const getMonthlyUsage = `-- name: GetMonthlyUsage :one
SELECT user_id, period_key, free_messages_used, created_at, updated_at
FROM monthly_usage
WHERE user_id = $1 AND period_key = $2
`

type GetMonthlyUsageParams struct {
	UserID    int64
	PeriodKey string
}

func (q *Queries) GetMonthlyUsage(ctx context.Context, arg GetMonthlyUsageParams) (MonthlyUsage, error) {
	row := q.db.QueryRowContext(ctx, getMonthlyUsage, arg.UserID, arg.PeriodKey)
	var i MonthlyUsage
	err := row.Scan(
		&i.UserID,
		&i.PeriodKey,
		&i.FreeMessagesUsed,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const incrementFreeUsage = `-- name: IncrementFreeUsage :execrows
UPDATE monthly_usage
SET free_messages_used = free_messages_used + 1,
    updated_at = NOW()
WHERE user_id = $1
  AND period_key = $2
  AND free_messages_used < $3
`

type IncrementFreeUsageParams struct {
	UserID           int64
	PeriodKey        string
	FreeMessagesUsed int32
}

func (q *Queries) IncrementFreeUsage(ctx context.Context, arg IncrementFreeUsageParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, incrementFreeUsage, arg.UserID, arg.PeriodKey, arg.FreeMessagesUsed)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
