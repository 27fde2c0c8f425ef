package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hookline/hookline/internal/message"
	"github.com/hookline/hookline/internal/store"
)

type fakeDirectory struct {
	subs map[string][]store.Subscription
	err  error
}

func (d *fakeDirectory) FindActive(_ context.Context, eventType string) ([]store.Subscription, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.subs[eventType], nil
}

type capturePublisher struct {
	topics   []string
	bodies   [][]byte
	failFrom int // 1-based publish index to start failing at; 0 = never
	calls    int
}

func (p *capturePublisher) Publish(topic string, body []byte) error {
	p.calls++
	if p.failFrom > 0 && p.calls >= p.failFrom {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.bodies = append(p.bodies, body)
	return nil
}

func (p *capturePublisher) tasks(t *testing.T) []message.DeliveryTask {
	t.Helper()
	out := make([]message.DeliveryTask, 0, len(p.bodies))
	for _, b := range p.bodies {
		var task message.DeliveryTask
		if err := json.Unmarshal(b, &task); err != nil {
			t.Fatalf("unmarshal published task: %v", err)
		}
		out = append(out, task)
	}
	return out
}

func TestProcessOneTaskPerSubscription(t *testing.T) {
	dir := &fakeDirectory{subs: map[string][]store.Subscription{
		"order.created": {
			{ID: "sub-1", EventType: "order.created", WebhookURL: "https://a.example.com/hook"},
			{ID: "sub-2", EventType: "order.created", WebhookURL: "https://b.example.com/hook"},
		},
	}}
	pub := &capturePublisher{}
	stage := NewStage(dir, pub, "deliveries")

	env := message.NewEventEnvelope("order.created", map[string]any{"order_id": "o-1"}, nil)
	n, err := stage.Process(context.Background(), env)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 2 {
		t.Fatalf("published = %d, want 2", n)
	}

	tasks := pub.tasks(t)
	byID := map[string]message.DeliveryTask{}
	for i, task := range tasks {
		if pub.topics[i] != "deliveries" {
			t.Errorf("topic = %q, want %q", pub.topics[i], "deliveries")
		}
		byID[task.SubscriptionID] = task
	}
	if len(byID) != 2 {
		t.Fatalf("distinct subscription IDs = %d, want 2", len(byID))
	}
	if byID["sub-1"].WebhookURL != "https://a.example.com/hook" {
		t.Errorf("sub-1 URL = %q", byID["sub-1"].WebhookURL)
	}
	for id, task := range byID {
		if task.EventType != "order.created" {
			t.Errorf("task %s EventType = %q", id, task.EventType)
		}
		if task.CorrelationID != env.CorrelationID {
			t.Errorf("task %s CorrelationID = %q, want %q", id, task.CorrelationID, env.CorrelationID)
		}
		if task.Data["order_id"] != "o-1" {
			t.Errorf("task %s data = %v", id, task.Data)
		}
	}
}

func TestProcessNoSubscribersIsTerminalSuccess(t *testing.T) {
	dir := &fakeDirectory{subs: map[string][]store.Subscription{}}
	pub := &capturePublisher{}
	stage := NewStage(dir, pub, "deliveries")

	n, err := stage.Process(context.Background(), message.NewEventEnvelope("order.created", nil, nil))
	if err != nil {
		t.Fatalf("Process with no subscribers: %v", err)
	}
	if n != 0 {
		t.Errorf("published = %d, want 0", n)
	}
	if len(pub.bodies) != 0 {
		t.Errorf("publisher received %d messages, want 0", len(pub.bodies))
	}
}

func TestProcessLookupFailureIsRedeliverable(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("connection refused")}
	pub := &capturePublisher{}
	stage := NewStage(dir, pub, "deliveries")

	n, err := stage.Process(context.Background(), message.NewEventEnvelope("order.created", nil, nil))
	if err == nil {
		t.Fatal("expected an error from a failed lookup")
	}
	if n != 0 {
		t.Errorf("published = %d, want 0", n)
	}
	if len(pub.bodies) != 0 {
		t.Errorf("no tasks must be published when lookup fails, got %d", len(pub.bodies))
	}
}

func TestProcessPartialPublishKeepsSiblings(t *testing.T) {
	dir := &fakeDirectory{subs: map[string][]store.Subscription{
		"order.created": {
			{ID: "sub-1", WebhookURL: "https://a.example.com/hook"},
			{ID: "sub-2", WebhookURL: "https://b.example.com/hook"},
			{ID: "sub-3", WebhookURL: "https://c.example.com/hook"},
		},
	}}
	pub := &capturePublisher{failFrom: 2} // second publish fails
	stage := NewStage(dir, pub, "deliveries")

	n, err := stage.Process(context.Background(), message.NewEventEnvelope("order.created", nil, nil))
	if err == nil {
		t.Fatal("expected an error from a failed sibling publish")
	}
	if n != 1 {
		t.Errorf("published = %d, want 1 (the task emitted before the failure stays emitted)", n)
	}
	if len(pub.bodies) != 1 {
		t.Errorf("publisher kept %d messages, want 1", len(pub.bodies))
	}
}

func TestClassifyFanoutError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: "other"},
		{name: "lookup", err: errors.New("find active subscriptions: timeout"), want: "lookup_error"},
		{name: "publish", err: errors.New("publish task for subscription x: broker down"), want: "publish_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyFanoutError(tt.err); got != tt.want {
				t.Errorf("classifyFanoutError = %q, want %q", got, tt.want)
			}
		})
	}
}
