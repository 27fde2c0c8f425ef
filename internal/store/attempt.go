package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryAttempt is one recorded outcome of a webhook delivery try.
// ResponseStatusCode is nil when no HTTP response was received (timeout,
// DNS failure, connection refused). Rows are never mutated after insert.
type DeliveryAttempt struct {
	ID                 string    `json:"id"`
	SubscriptionID     string    `json:"subscription_id"`
	CorrelationID      string    `json:"correlation_id,omitempty"`
	AttemptedAt        time.Time `json:"attempted_at"`
	ResponseStatusCode *int      `json:"response_status_code,omitempty"`
	Success            bool      `json:"success"`
	Payload            string    `json:"payload"`
}

// AttemptLedger is the append-only record of delivery attempts. Each Append
// is its own transaction; concurrent workers never collide because every
// attempt carries a fresh ID.
type AttemptLedger struct {
	pool *pgxpool.Pool
}

func NewAttemptLedger(pool *pgxpool.Pool) *AttemptLedger {
	return &AttemptLedger{pool: pool}
}

// Append inserts one attempt row. No update or delete exists on this table.
func (l *AttemptLedger) Append(ctx context.Context, a DeliveryAttempt) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO hookline.delivery_attempts(
			id, subscription_id, correlation_id, attempted_at,
			response_status_code, success, payload)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
		a.ID, a.SubscriptionID, a.CorrelationID, a.AttemptedAt,
		a.ResponseStatusCode, a.Success, a.Payload,
	)
	if err != nil {
		return fmt.Errorf("append delivery attempt: %w", err)
	}
	return nil
}
