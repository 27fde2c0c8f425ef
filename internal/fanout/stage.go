// Package fanout expands one event envelope into per-subscriber delivery
// tasks.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hookline/hookline/internal/message"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/queue"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
)

// Directory is the read-only subscriber lookup. Implemented by
// store.SubscriptionStore.
type Directory interface {
	FindActive(ctx context.Context, eventType string) ([]store.Subscription, error)
}

// Stage consumes envelopes and publishes one DeliveryTask per matching
// subscription. Stages are stateless; run as many competing consumers as
// needed.
type Stage struct {
	dir   Directory
	pub   queue.Publisher
	topic string
}

func NewStage(dir Directory, pub queue.Publisher, deliveriesTopic string) *Stage {
	return &Stage{dir: dir, pub: pub, topic: deliveriesTopic}
}

// Process resolves the envelope's subscriber set and publishes each task
// independently. It returns the number of tasks published and the first
// error that should trigger envelope redelivery.
//
// A lookup failure means the envelope is not-yet-processed: nothing was
// published, the whole envelope must be redelivered. A publish failure for
// one subscriber does not undo tasks already emitted for its siblings; the
// envelope is redelivered anyway, so already-notified subscribers may
// receive duplicate tasks. That is accepted at-least-once behavior.
func (s *Stage) Process(ctx context.Context, env message.EventEnvelope) (int, error) {
	ctx = tracing.ExtractHeaders(ctx, env.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "fanout.process",
		attribute.String("event_type", env.EventType),
		attribute.String("correlation_id", env.CorrelationID),
	)
	defer span.End()

	tracing.AddSpanEvent(ctx, "db.find_active_subscriptions")
	subs, err := s.dir.FindActive(ctx, env.EventType)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return 0, fmt.Errorf("find active subscriptions: %w", err)
	}
	span.SetAttributes(attribute.Int("subscribers_count", len(subs)))

	// Empty subscriber set is a normal terminal outcome.
	published := 0
	for _, sub := range subs {
		task := message.DeliveryTask{
			SubscriptionID: sub.ID,
			EventType:      env.EventType,
			WebhookURL:     sub.WebhookURL,
			Data:           env.Data,
			CorrelationID:  env.CorrelationID,
			TraceHeaders:   tracing.InjectHeaders(ctx),
			PublishedAt:    env.PublishedAt,
		}
		body, err := json.Marshal(task)
		if err != nil {
			tracing.SetSpanError(ctx, err)
			return published, fmt.Errorf("marshal task for subscription %s: %w", sub.ID, err)
		}
		if err := s.pub.Publish(s.topic, body); err != nil {
			tracing.SetSpanError(ctx, err)
			return published, fmt.Errorf("publish task for subscription %s: %w", sub.ID, err)
		}
		published++
	}

	tracing.AddSpanEvent(ctx, "queue.published_tasks", attribute.Int("task_count", published))
	metrics.RecordFanout(env.EventType, published)
	return published, nil
}
