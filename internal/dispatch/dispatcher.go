// Package dispatch announces domain events onto the dispatch queue. It is
// fire-and-forget past the enqueue: callers learn whether the envelope was
// accepted, never how delivery went.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hookline/hookline/internal/message"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/queue"
	"github.com/hookline/hookline/internal/tracing"
)

type Dispatcher struct {
	pub   queue.Publisher
	topic string
}

func New(pub queue.Publisher, topic string) *Dispatcher {
	return &Dispatcher{pub: pub, topic: topic}
}

// Dispatch builds an EventEnvelope for the event and publishes it. The
// envelope carries a fresh correlation ID plus the current trace context so
// fan-out and delivery spans join this one.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, data map[string]any) (message.EventEnvelope, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.event",
		attribute.String("event_type", eventType),
	)
	defer span.End()

	env := message.NewEventEnvelope(eventType, data, tracing.InjectHeaders(ctx))
	span.SetAttributes(attribute.String("correlation_id", env.CorrelationID))

	body, err := json.Marshal(env)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return message.EventEnvelope{}, fmt.Errorf("marshal envelope: %w", err)
	}
	if err := d.pub.Publish(d.topic, body); err != nil {
		tracing.SetSpanError(ctx, err)
		return message.EventEnvelope{}, fmt.Errorf("publish envelope: %w", err)
	}

	metrics.RecordEventPublished(eventType)
	return env, nil
}
