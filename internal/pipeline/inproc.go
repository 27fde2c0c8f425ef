// Package pipeline runs the fan-out and delivery stages against the
// in-process queue, so the api binary can serve the whole pipeline without a
// broker. Retry here is the Memory queue's redelivery of failed handlers;
// the attempt bound and backoff schedule of the brokered topology do not
// apply, and nothing queued survives a crash.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hookline/hookline/internal/deliver"
	"github.com/hookline/hookline/internal/fanout"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/message"
	"github.com/hookline/hookline/internal/queue"
)

// InProc consumes the events and deliveries topics of a Memory queue and
// drives the same Stage and Worker the brokered binaries use.
type InProc struct {
	queue           *queue.Memory
	stage           *fanout.Stage
	worker          *deliver.Worker
	eventsTopic     string
	deliveriesTopic string
	logger          *logging.Logger

	wg sync.WaitGroup
}

func NewInProc(q *queue.Memory, stage *fanout.Stage, worker *deliver.Worker, eventsTopic, deliveriesTopic string, logger *logging.Logger) *InProc {
	return &InProc{
		queue:           q,
		stage:           stage,
		worker:          worker,
		eventsTopic:     eventsTopic,
		deliveriesTopic: deliveriesTopic,
		logger:          logger,
	}
}

// Start launches the consumer goroutines. They stop when ctx is cancelled;
// call Wait to drain them.
func (p *InProc) Start(ctx context.Context, fanoutWorkers, deliverWorkers int) {
	if fanoutWorkers <= 0 {
		fanoutWorkers = 1
	}
	if deliverWorkers <= 0 {
		deliverWorkers = 1
	}
	for i := 0; i < fanoutWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.queue.Consume(ctx, p.eventsTopic, p.handleEnvelope)
		}()
	}
	for i := 0; i < deliverWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.queue.Consume(ctx, p.deliveriesTopic, p.handleTask)
		}()
	}
	p.logger.Plain().WithFields(map[string]any{
		"fanout_workers":  fanoutWorkers,
		"deliver_workers": deliverWorkers,
	}).Info("in-process pipeline started")
}

// Wait blocks until all consumer goroutines have exited.
func (p *InProc) Wait() {
	p.wg.Wait()
}

func (p *InProc) handleEnvelope(ctx context.Context, body []byte) error {
	var env message.EventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		p.logger.Plain().WithError(err).Error("bad envelope payload")
		return nil // terminal: don't retry bad payloads
	}
	if _, err := p.stage.Process(ctx, env); err != nil {
		p.logger.WithContext(ctx).
			WithCorrelation(env.CorrelationID).
			WithEventType(env.EventType).
			WithError(err).
			Warn("fanout failed, requeueing envelope")
		return err // Memory redelivers
	}
	return nil
}

func (p *InProc) handleTask(ctx context.Context, body []byte) error {
	var task message.DeliveryTask
	if err := json.Unmarshal(body, &task); err != nil {
		p.logger.Plain().WithError(err).Error("bad task payload")
		return nil
	}
	attempt, err := p.worker.Deliver(ctx, task)
	log := p.logger.WithContext(ctx).
		WithCorrelation(task.CorrelationID).
		WithEventType(task.EventType).
		WithSubscription(task.SubscriptionID)
	if err != nil {
		log.WithError(err).Warn("ledger append failed, requeueing task")
		return err
	}
	if attempt.Success {
		log.Info("webhook delivered")
	} else {
		log.Warn("webhook delivery failed, outcome recorded")
	}
	return nil
}
