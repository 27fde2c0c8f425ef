// Package deliver performs the outbound HTTP call for one delivery task and
// records the outcome in the attempt ledger.
package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hookline/hookline/internal/message"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
)

// Ledger is the append-only attempt sink. Implemented by
// store.AttemptLedger.
type Ledger interface {
	Append(ctx context.Context, a store.DeliveryAttempt) error
}

// Worker processes one DeliveryTask at a time: build a fresh payload, POST
// it, classify the outcome, append exactly one ledger row. Workers are
// stateless; each takes its HTTP client and ledger at construction and many
// run concurrently.
type Worker struct {
	client *http.Client
	ledger Ledger
}

func NewWorker(client *http.Client, ledger Ledger) *Worker {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Worker{client: client, ledger: ledger}
}

// Outcome labels for metrics and logs.
const (
	OutcomeDelivered       = "delivered"
	OutcomeFailedHTTP      = "failed_http"
	OutcomeFailedTransport = "failed_transport"
)

// Deliver executes one attempt for the task. The returned attempt reflects
// what was recorded; the returned error is non-nil only when the ledger
// append failed, which is the one condition that must redeliver the task.
// HTTP failures (non-2xx or transport errors) are recorded outcomes, not
// errors: the task is complete once its attempt row is durable.
//
// On redelivery the payload is rebuilt with a new ID, so a duplicate POST
// carries a fresh identifier over identical event data.
func (w *Worker) Deliver(ctx context.Context, task message.DeliveryTask) (store.DeliveryAttempt, error) {
	ctx = tracing.ExtractHeaders(ctx, task.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "worker.delivery",
		attribute.String("subscription_id", task.SubscriptionID),
		attribute.String("event_type", task.EventType),
		attribute.String("webhook_url", task.WebhookURL),
		attribute.String("correlation_id", task.CorrelationID),
	)
	defer span.End()

	payload := message.NewWebhookPayload(task)
	body, err := json.Marshal(payload)
	if err != nil {
		// Data came off the wire as JSON, so this should not happen; record
		// the attempt as a transport-class failure rather than losing it.
		tracing.SetSpanError(ctx, err)
		attempt := w.newAttempt(task, payload, []byte("{}"), nil, false)
		return attempt, w.append(ctx, attempt, OutcomeFailedTransport, 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.WebhookURL, bytes.NewReader(body))
	if err != nil {
		attempt := w.newAttempt(task, payload, body, nil, false)
		return attempt, w.append(ctx, attempt, OutcomeFailedTransport, 0)
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}
	if task.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", task.CorrelationID)
	}

	tracing.AddSpanEvent(ctx, "http.send_webhook")
	start := time.Now()
	resp, doErr := w.client.Do(req)
	latency := time.Since(start)

	var statusCode *int
	success := false
	outcome := OutcomeFailedTransport
	if doErr == nil {
		code := resp.StatusCode
		_ = resp.Body.Close()
		statusCode = &code
		success = code >= 200 && code < 300
		if success {
			outcome = OutcomeDelivered
		} else {
			outcome = OutcomeFailedHTTP
		}
	}

	span.SetAttributes(attribute.Int64("http.latency_ms", latency.Milliseconds()))
	if statusCode != nil {
		span.SetAttributes(attribute.Int("http.status_code", *statusCode))
	}
	if doErr != nil {
		span.SetAttributes(
			attribute.String("http.error", doErr.Error()),
			attribute.String("failure_reason", ClassifyTransportError(doErr)),
		)
	}

	attempt := w.newAttempt(task, payload, body, statusCode, success)
	return attempt, w.append(ctx, attempt, outcome, latency)
}

func (w *Worker) newAttempt(task message.DeliveryTask, payload message.WebhookPayload, body []byte, statusCode *int, success bool) store.DeliveryAttempt {
	return store.DeliveryAttempt{
		ID:                 uuid.NewString(),
		SubscriptionID:     task.SubscriptionID,
		CorrelationID:      task.CorrelationID,
		AttemptedAt:        payload.Timestamp,
		ResponseStatusCode: statusCode,
		Success:            success,
		Payload:            string(body),
	}
}

// append writes the attempt row. The row must be durable before the task
// counts as consumed, so an append failure propagates and forces task
// redelivery (and with it a duplicate POST, a deliberate at-least-once
// trade-off).
func (w *Worker) append(ctx context.Context, attempt store.DeliveryAttempt, outcome string, latency time.Duration) error {
	tracing.AddSpanEvent(ctx, "db.append_delivery_attempt")
	if err := w.ledger.Append(ctx, attempt); err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("ledger append: %w", err)
	}
	metrics.RecordDelivery(outcome, latency)
	return nil
}

// ClassifyTransportError maps a transport-level error to a metrics reason.
func ClassifyTransportError(err error) string {
	if err == nil {
		return "other"
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline exceeded") {
		return "timeout"
	}
	if strings.Contains(errLower, "connection refused") {
		return "connection_refused"
	}
	if strings.Contains(errLower, "no such host") || strings.Contains(errLower, "dns") {
		return "dns_error"
	}
	return "network"
}
