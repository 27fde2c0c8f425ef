package message

import (
	"time"

	"github.com/google/uuid"
)

// WebhookPayload is the HTTP request body sent to a subscriber. The ID is
// fresh per delivery attempt, not per event: a redelivered task produces a
// new payload with a new ID but identical event type, subscription and data.
type WebhookPayload struct {
	ID             string         `json:"id"`
	EventType      string         `json:"event_type"`
	SubscriptionID string         `json:"subscription_id"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           map[string]any `json:"data"`
}

// NewWebhookPayload builds the payload for one attempt of the given task.
func NewWebhookPayload(t DeliveryTask) WebhookPayload {
	return WebhookPayload{
		ID:             uuid.NewString(),
		EventType:      t.EventType,
		SubscriptionID: t.SubscriptionID,
		Timestamp:      time.Now().UTC(),
		Data:           t.Data,
	}
}
