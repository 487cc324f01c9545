package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWorkerPoolProcessesMessages(t *testing.T) {
	q := openTestQueue(t, Config{PollInterval: 10 * time.Millisecond})
	ctx := context.Background()

	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan struct{}, 8)
	handler := func(ctx context.Context, msg *QueuedMessage) error {
		mu.Lock()
		seen[msg.MessageID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	pool := NewWorkerPool(q, handler, PoolOptions{Workers: 2}, nil)
	pool.Start()
	defer pool.Stop()

	for _, id := range []string{"m1", "m2", "m3"} {
		if err := q.Enqueue(ctx, testMessage(id, "p1"), 0); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message %d", i+1)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"m1", "m2", "m3"} {
		if seen[id] == 0 {
			t.Fatalf("message %s never handled (seen=%v)", id, seen)
		}
	}
}

func TestWorkerPoolDeadLettersNonRetryable(t *testing.T) {
	q := openTestQueue(t, Config{PollInterval: 10 * time.Millisecond, MaxRetries: 5})
	ctx := context.Background()

	done := make(chan struct{}, 1)
	handler := func(ctx context.Context, msg *QueuedMessage) error {
		defer func() { done <- struct{}{} }()
		return NonRetryable(errors.New("malformed payload"))
	}

	pool := NewWorkerPool(q, handler, PoolOptions{Workers: 1, Partition: "p1"}, nil)
	pool.Start()
	defer pool.Stop()

	msg := &QueuedMessage{MessageID: "m1", PartitionKey: "p1", Payload: json.RawMessage(`{}`)}
	if err := q.Enqueue(ctx, msg, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never invoked")
	}

	// Fail runs after the handler returns; poll briefly for the dead letter.
	deadline := time.Now().Add(5 * time.Second)
	for {
		dead, err := q.DeadLetters(ctx, "p1")
		if err != nil {
			t.Fatalf("dead letters: %v", err)
		}
		if len(dead) == 1 {
			if dead[0].Message.RetryCount != 0 {
				t.Fatalf("terminal failure retried: %+v", dead[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never dead-lettered: %+v", dead)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
