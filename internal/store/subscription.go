package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Subscription maps an event type to a subscriber callback URL. Immutable
// after creation.
type Subscription struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	WebhookURL string    `json:"webhook_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// SubscriptionStore is the pgx-backed subscription directory.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

// Create inserts a new subscription and returns it with its generated ID.
func (s *SubscriptionStore) Create(ctx context.Context, eventType, webhookURL string) (Subscription, error) {
	sub := Subscription{EventType: eventType, WebhookURL: webhookURL}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO hookline.subscriptions(event_type, webhook_url)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		eventType, webhookURL,
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}
	return sub, nil
}

// FindActive returns all subscriptions whose event type equals eventType
// (exact, case-sensitive). An empty result is not an error. Storage errors
// propagate so the caller can treat the lookup as redeliverable.
func (s *SubscriptionStore) FindActive(ctx context.Context, eventType string) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_type, webhook_url, created_at
		FROM hookline.subscriptions
		WHERE event_type = $1`,
		eventType,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.EventType, &sub.WebhookURL, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	return subs, nil
}
