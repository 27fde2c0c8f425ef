package message

import (
	"time"

	"github.com/google/uuid"
)

// EventEnvelope is the "event occurred" message that travels the dispatch
// queue. It is immutable once built; redelivery hands consumers the same
// bytes again, so duplicates are possible.
type EventEnvelope struct {
	EventType     string            `json:"event_type"`
	Data          map[string]any    `json:"data"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	TraceHeaders  map[string]string `json:"trace_headers,omitempty"`
	PublishedAt   string            `json:"published_at"` // RFC3339
}

// NewEventEnvelope builds an envelope with a fresh correlation ID and the
// given trace headers. traceHeaders may be nil; correlation is best-effort
// and never required downstream.
func NewEventEnvelope(eventType string, data map[string]any, traceHeaders map[string]string) EventEnvelope {
	return EventEnvelope{
		EventType:     eventType,
		Data:          data,
		CorrelationID: uuid.NewString(),
		TraceHeaders:  traceHeaders,
		PublishedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}
