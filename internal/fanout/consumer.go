package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/message"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/queue"
)

// RetryPolicy bounds envelope redelivery before dead-lettering.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
	JitterPct   float64
	DLQTopic    string
	PublishDLQ  bool
}

// Consumer adapts a Stage to an NSQ handler with explicit requeue and
// dead-lettering. Bad payloads and exhausted envelopes are terminal;
// everything else redelivers with backoff.
type Consumer struct {
	stage  *Stage
	dlq    queue.Publisher
	retry  RetryPolicy
	logger *logging.Logger
}

func NewConsumer(stage *Stage, dlq queue.Publisher, retry RetryPolicy, logger *logging.Logger) *Consumer {
	return &Consumer{stage: stage, dlq: dlq, retry: retry, logger: logger}
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

	var env message.EventEnvelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		c.logger.Plain().WithError(err).Error("bad envelope payload")
		m.Finish() // terminal: don't retry bad payloads
		return nil
	}

	published, err := c.stage.Process(ctx, env)
	if err == nil {
		m.Finish()
		return nil
	}

	attempts := int(m.Attempts)
	log := c.logger.WithContext(ctx).
		WithCorrelation(env.CorrelationID).
		WithEventType(env.EventType).
		WithError(err)

	if attempts >= c.retry.MaxAttempts {
		log.WithField("attempts", attempts).Error("fanout exhausted, dead-lettering envelope")
		c.deadLetter(env, attempts, err)
		metrics.RecordDLQ("fanout")
		m.Finish() // drop from main topic
		return nil
	}

	delay := queue.Backoff(attempts, c.retry.Backoff, c.retry.JitterPct)
	log.WithFields(map[string]any{
		"attempts":  attempts,
		"published": published,
		"delay":     delay.String(),
	}).Warn("fanout failed, requeueing envelope")
	metrics.RecordRedelivery(classifyFanoutError(err))
	m.Requeue(delay)
	return nil
}

func (c *Consumer) deadLetter(env message.EventEnvelope, attempts int, cause error) {
	if !c.retry.PublishDLQ || c.dlq == nil {
		return
	}
	dl := message.NewEnvelopeDeadLetter(env, attempts,
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

func classifyFanoutError(err error) string {
	if err == nil {
		return "other"
	}
	if strings.Contains(err.Error(), "find active subscriptions") {
		return "lookup_error"
	}
	return "publish_error"
}
