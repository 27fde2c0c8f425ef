package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrFull is returned by a fail-fast Memory queue when a topic is at
// capacity.
var ErrFull = errors.New("queue: topic at capacity")

// ErrTimeout is returned by a blocking Memory queue when no room opened up
// within the enqueue timeout.
var ErrTimeout = errors.New("queue: enqueue timed out")

// Mode selects the backpressure behavior of a full Memory queue.
type Mode int

const (
	// Block makes Publish wait (up to the enqueue timeout) for room.
	Block Mode = iota
	// FailFast makes Publish return ErrFull immediately.
	FailFast
)

// Memory is a bounded in-process queue keyed by topic. FIFO per publisher
// over a single channel; competing consumers on one topic each receive a
// disjoint subset.
//
// Known gap: items accepted by Publish but not yet handed to a consumer do
// not survive a process crash. Durable runs must use the broker-backed
// queue instead.
type Memory struct {
	capacity       int
	mode           Mode
	enqueueTimeout time.Duration

	mu     sync.Mutex
	topics map[string]chan []byte

	dropped atomic.Int64
}

// NewMemory creates a Memory queue. capacity bounds each topic; an
// enqueueTimeout of zero with Block mode waits indefinitely.
func NewMemory(capacity int, mode Mode, enqueueTimeout time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{
		capacity:       capacity,
		mode:           mode,
		enqueueTimeout: enqueueTimeout,
		topics:         make(map[string]chan []byte),
	}
}

func (q *Memory) topic(name string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.topics[name]
	if !ok {
		ch = make(chan []byte, q.capacity)
		q.topics[name] = ch
	}
	return ch
}

// Publish enqueues one message. Behavior at capacity follows the configured
// mode; the caller is never blocked indefinitely when a timeout is set.
func (q *Memory) Publish(topic string, body []byte) error {
	ch := q.topic(topic)

	if q.mode == FailFast {
		select {
		case ch <- body:
			return nil
		default:
			return ErrFull
		}
	}

	if q.enqueueTimeout <= 0 {
		ch <- body
		return nil
	}

	t := time.NewTimer(q.enqueueTimeout)
	defer t.Stop()
	select {
	case ch <- body:
		return nil
	case <-t.C:
		return ErrTimeout
	}
}

// Consume receives messages from topic and invokes fn for each until ctx is
// cancelled. A failed fn re-enqueues the message, waiting up to the enqueue
// timeout for room, so in-process runs keep the broker's redelivery
// semantics. Run one goroutine per competing consumer.
func (q *Memory) Consume(ctx context.Context, topic string, fn Handler) {
	ch := q.topic(topic)
	for {
		select {
		case <-ctx.Done():
			return
		case body := <-ch:
			if err := fn(ctx, body); err != nil {
				if !q.requeue(ctx, ch, body) {
					q.dropped.Add(1)
				}
			}
		}
	}
}

// requeue puts a failed message back on its topic, blocking up to the
// enqueue timeout when the topic is full.
func (q *Memory) requeue(ctx context.Context, ch chan []byte, body []byte) bool {
	select {
	case ch <- body:
		return true
	default:
	}

	wait := q.enqueueTimeout
	if wait <= 0 {
		wait = time.Second
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case ch <- body:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Depth reports the number of buffered messages on a topic.
func (q *Memory) Depth(topic string) int {
	return len(q.topic(topic))
}

// Dropped reports how many failed-handler redeliveries were lost because
// their topic stayed full past the requeue wait.
func (q *Memory) Dropped() int64 {
	return q.dropped.Load()
}
