package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryFIFO(t *testing.T) {
	q := NewMemory(10, Block, time.Second)

	for _, msg := range []string{"a", "b", "c"} {
		if err := q.Publish("events", []byte(msg)); err != nil {
			t.Fatalf("Publish(%q): %v", msg, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	done := make(chan struct{})
	go q.Consume(ctx, "events", func(_ context.Context, body []byte) error {
		got = append(got, string(body))
		if len(got) == 3 {
			close(done)
		}
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for consumption")
	}
	cancel()

	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMemoryFailFast(t *testing.T) {
	q := NewMemory(2, FailFast, 0)

	if err := q.Publish("events", []byte("1")); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := q.Publish("events", []byte("2")); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if err := q.Publish("events", []byte("3")); !errors.Is(err, ErrFull) {
		t.Errorf("publish at capacity = %v, want ErrFull", err)
	}
	if q.Depth("events") != 2 {
		t.Errorf("Depth = %d, want 2", q.Depth("events"))
	}
}

func TestMemoryBlockTimesOut(t *testing.T) {
	q := NewMemory(1, Block, 50*time.Millisecond)

	if err := q.Publish("events", []byte("1")); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	start := time.Now()
	err := q.Publish("events", []byte("2"))
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("blocked publish = %v, want ErrTimeout", err)
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("publish returned after %v, expected it to wait for the timeout", elapsed)
	}
}

func TestMemoryRequeueWaitsForRoom(t *testing.T) {
	q := NewMemory(1, Block, time.Second)
	if err := q.Publish("events", []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handlerStarted := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan struct{})
	handler := func(_ context.Context, body []byte) error {
		mu.Lock()
		seen[string(body)]++
		firstA := string(body) == "a" && seen["a"] == 1
		total := seen["a"] + seen["b"]
		mu.Unlock()
		if firstA {
			close(handlerStarted)
			<-release
			return errors.New("transient") // "a" must be requeued
		}
		if total == 3 {
			close(done)
		}
		return nil
	}
	go q.Consume(ctx, "events", handler)

	// While the first consumer holds "a", fill the topic so its requeue has
	// to wait for room.
	<-handlerStarted
	if err := q.Publish("events", []byte("b")); err != nil {
		t.Fatalf("publish while topic busy: %v", err)
	}
	close(release)

	// A second competing consumer drains "b", opening room for the waiting
	// requeue of "a".
	go q.Consume(ctx, "events", handler)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("requeued message was not redelivered")
	}
	if q.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0 when the requeue can wait for room", q.Dropped())
	}
	mu.Lock()
	defer mu.Unlock()
	if seen["a"] != 2 || seen["b"] != 1 {
		t.Errorf("deliveries = %v, want a twice (original + redelivery) and b once", seen)
	}
}

func TestMemoryCountsDroppedRedeliveries(t *testing.T) {
	q := NewMemory(1, Block, 30*time.Millisecond)
	if err := q.Publish("events", []byte("a")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handlerStarted := make(chan struct{})
	release := make(chan struct{})
	failing := make(chan struct{})
	go q.Consume(ctx, "events", func(_ context.Context, body []byte) error {
		if string(body) == "a" {
			close(handlerStarted)
			<-release
			return errors.New("transient")
		}
		// Hold "b" so the topic stays full through the requeue wait.
		<-failing
		return nil
	})

	<-handlerStarted
	if err := q.Publish("events", []byte("b")); err != nil {
		t.Fatalf("publish while topic busy: %v", err)
	}
	close(release)

	// The consumer is blocked re-enqueueing "a" into a full topic; after the
	// wait expires the redelivery is dropped and counted.
	deadline := time.After(2 * time.Second)
	for q.Dropped() == 0 {
		select {
		case <-deadline:
			t.Fatal("dropped redelivery was never counted")
		case <-time.After(10 * time.Millisecond):
		}
	}
	close(failing)
	if q.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", q.Dropped())
	}
}

func TestMemoryRedeliversOnHandlerError(t *testing.T) {
	q := NewMemory(10, Block, time.Second)
	if err := q.Publish("events", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})
	go q.Consume(ctx, "events", func(_ context.Context, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		if calls == 2 {
			close(done)
		}
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered after handler error")
	}
}

func TestMemoryCompetingConsumers(t *testing.T) {
	q := NewMemory(100, Block, time.Second)
	const n = 20
	for i := 0; i < n; i++ {
		if err := q.Publish("events", []byte{byte(i)}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := make(map[byte]int)
	var wg sync.WaitGroup
	done := make(chan struct{})
	handler := func(_ context.Context, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		seen[body[0]]++
		if len(seen) == n {
			close(done)
		}
		return nil
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Consume(ctx, "events", handler)
		}()
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for competing consumers")
	}
	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for k, v := range seen {
		if v != 1 {
			t.Errorf("message %d delivered %d times, want exactly once", k, v)
		}
	}
}
