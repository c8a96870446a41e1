package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const createChatMessage = `-- name: CreateChatMessage :exec
INSERT INTO chat_messages (
    id, user_id, question, answer, tokens, quota_source, subscription_id, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8
)
`

type CreateChatMessageParams struct {
	ID             uuid.UUID
	UserID         int64
	Question       string
	Answer         string
	Tokens         int32
	QuotaSource    string
	SubscriptionID uuid.NullUUID
	CreatedAt      time.Time
}

func (q *Queries) CreateChatMessage(ctx context.Context, arg CreateChatMessageParams) error {
	_, err := q.db.ExecContext(ctx, createChatMessage,
		arg.ID,
		arg.UserID,
		arg.Question,
		arg.Answer,
		arg.Tokens,
		arg.QuotaSource,
		arg.SubscriptionID,
		arg.CreatedAt,
	)
	return err
}

const listChatMessagesByUserID = `-- name: ListChatMessagesByUserID :many
SELECT id, user_id, question, answer, tokens, quota_source, subscription_id, created_at
FROM chat_messages
WHERE user_id = $1
ORDER BY created_at DESC, id
LIMIT $2
`

type ListChatMessagesByUserIDParams struct {
	UserID int64
	Limit  int32
}

func (q *Queries) ListChatMessagesByUserID(ctx context.Context, arg ListChatMessagesByUserIDParams) ([]ChatMessage, error) {
	rows, err := q.db.QueryContext(ctx, listChatMessagesByUserID, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ChatMessage
	for rows.Next() {
		var i ChatMessage
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.Question,
			&i.Answer,
			&i.Tokens,
			&i.QuotaSource,
			&i.SubscriptionID,
			&i.CreatedAt,
		); err != nil {
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
