// Package queue abstracts the two broker hops of the pipeline. The durable
// default is NSQ (producers publish, consumers requeue with delay for
// redelivery). The in-process Memory queue backs the same interfaces for
// tests and single-binary runs; the two behave identically from the
// pipeline's point of view, except for the durability gap Memory documents.
package queue

import "context"

// Publisher publishes one message body to a named topic. *nsq.Producer
// satisfies this directly.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Handler processes one message body. A nil return acknowledges the
// message; a non-nil return requests redelivery.
type Handler func(ctx context.Context, body []byte) error
