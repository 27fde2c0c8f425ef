package deliver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/message"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/queue"
)

// RetryPolicy bounds task redelivery (ledger write failures only) before
// dead-lettering.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
	JitterPct   float64
	DLQTopic    string
	PublishDLQ  bool
}

// Consumer adapts a Worker to an NSQ handler. The HTTP outcome never
// requeues a task; only a failed ledger append does.
type Consumer struct {
	worker *Worker
	dlq    queue.Publisher
	retry  RetryPolicy
	logger *logging.Logger
}

func NewConsumer(worker *Worker, dlq queue.Publisher, retry RetryPolicy, logger *logging.Logger) *Consumer {
	return &Consumer{worker: worker, dlq: dlq, retry: retry, logger: logger}
}

// HandleMessage implements nsq.Handler.
func (c *Consumer) HandleMessage(m *nsq.Message) error {
	m.DisableAutoResponse() // we manually requeue or finish
	defer func() {
		if !m.HasResponded() {
			c.logger.Plain().Warn("message had no response, finishing")
			m.Finish()
		}
	}()

	ctx := context.Background()

	var task message.DeliveryTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		c.logger.Plain().WithError(err).Error("bad task payload")
		m.Finish() // terminal: don't retry bad payloads
		return nil
	}

	attempt, err := c.worker.Deliver(ctx, task)
	log := c.logger.WithContext(ctx).
		WithCorrelation(task.CorrelationID).
		WithEventType(task.EventType).
		WithSubscription(task.SubscriptionID)

	if err == nil {
		if attempt.Success {
			log.Info("webhook delivered")
		} else {
			log.WithField("status_code", derefStatus(attempt.ResponseStatusCode)).
				Warn("webhook delivery failed, outcome recorded")
		}
		m.Finish()
		return nil
	}

	// Ledger append failed: the attempt is not durable, so the task is not
	// consumed. Redeliver, repeating the HTTP call with a fresh payload ID.
	attempts := int(m.Attempts)
	if attempts >= c.retry.MaxAttempts {
		log.WithError(err).WithField("attempts", attempts).
			Error("ledger append exhausted, dead-lettering task")
		c.deadLetter(task, attempts, err)
		metrics.RecordDLQ("worker")
		m.Finish()
		return nil
	}

	delay := queue.Backoff(attempts, c.retry.Backoff, c.retry.JitterPct)
	log.WithError(err).WithFields(map[string]any{
		"attempts": attempts,
		"delay":    delay.String(),
	}).Warn("ledger append failed, requeueing task")
	metrics.RecordRedelivery("ledger_error")
	m.Requeue(delay)
	return nil
}

func (c *Consumer) deadLetter(task message.DeliveryTask, attempts int, cause error) {
	if !c.retry.PublishDLQ || c.dlq == nil {
		return
	}
	dl := message.NewTaskDeadLetter(task, attempts,
		fmt.Sprintf("max attempts reached (%d), last error: %v", attempts, cause))
	body, err := json.Marshal(dl)
	if err != nil {
		c.logger.Plain().WithError(err).Error("marshal dead letter failed")
		return
	}
	if err := c.dlq.Publish(c.retry.DLQTopic, body); err != nil {
		c.logger.Plain().WithError(err).WithField("topic", c.retry.DLQTopic).Error("dlq publish failed")
	}
}

func derefStatus(code *int) int {
	if code == nil {
		return 0
	}
	return *code
}
