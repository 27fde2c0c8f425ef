package message

import "time"

const (
	EnvelopeDLQType = "event.dlq"
	TaskDLQType     = "delivery.dlq"
)

// DeadLetter wraps a message that exhausted its redelivery attempts. Exactly
// one of Envelope or Task is set, matching Type.
type DeadLetter struct {
	Type     string         `json:"type"`    // "event.dlq" or "delivery.dlq"
	Version  string         `json:"version"` // schema version
	At       string         `json:"at"`      // RFC3339 time the DLQ was emitted
	Reason   string         `json:"reason"`  // human/debug text
	Attempts int            `json:"attempts"`
	Envelope *EventEnvelope `json:"envelope,omitempty"`
	Task     *DeliveryTask  `json:"task,omitempty"`
}

func NewEnvelopeDeadLetter(env EventEnvelope, attempts int, reason string) DeadLetter {
	return DeadLetter{
		Type:     EnvelopeDLQType,
		Version:  "v1",
		At:       time.Now().Format(time.RFC3339Nano),
		Reason:   reason,
		Attempts: attempts,
		Envelope: &env,
	}
}

func NewTaskDeadLetter(t DeliveryTask, attempts int, reason string) DeadLetter {
	return DeadLetter{
		Type:     TaskDLQType,
		Version:  "v1",
		At:       time.Now().Format(time.RFC3339Nano),
		Reason:   reason,
		Attempts: attempts,
		Task:     &t,
	}
}
