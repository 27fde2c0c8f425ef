package message

// DeliveryTask is the "deliver to subscriber" message. The fan-out stage
// emits one per (event, subscription) pair; a delivery worker consumes each
// exactly once per broker redelivery cycle.
type DeliveryTask struct {
	SubscriptionID string            `json:"subscription_id"`
	EventType      string            `json:"event_type"`
	WebhookURL     string            `json:"webhook_url"`
	Data           map[string]any    `json:"data"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
	TraceHeaders   map[string]string `json:"trace_headers,omitempty"`
	PublishedAt    string            `json:"published_at"` // RFC3339
}
