package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/nasa-jpl/cncctl/queue"
)

func TestFIFOOrder(t *testing.T) {
	q := queue.New(4, 0, 0)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(ctx, queue.Item{ID: 0, Raw: string(rune('a' + i))}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	want := []string{"b", "c", "d"}
	for _, w := range want {
		item, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if item.Raw != w {
			t.Errorf("expected %q, got %q", w, item.Raw)
		}
	}
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	q := queue.New(1, 0, 0)
	ctx := context.Background()
	if err := q.Enqueue(ctx, queue.Item{Raw: "first"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(cctx, queue.Item{Raw: "second"}); err == nil {
		t.Error("expected enqueue on a full queue to block until context cancellation")
	}
}

func TestDequeueRespectsContextCancellation(t *testing.T) {
	q := queue.New(1, 0, 0)
	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(cctx); err == nil {
		t.Error("expected dequeue on an empty queue to report cancellation")
	}
}

func TestDrainReturnsQueuedIDsInOrder(t *testing.T) {
	q := queue.New(4, 0, 0)
	ctx := context.Background()
	q.Enqueue(ctx, queue.Item{ID: 1})
	q.Enqueue(ctx, queue.Item{ID: 2})
	q.Enqueue(ctx, queue.Item{ID: 3})

	ids := q.Drain()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("expected [1 2 3], got %v", ids)
	}
	if q.Len() != 0 {
		t.Errorf("expected drained queue to be empty, got len %d", q.Len())
	}
}

func TestRatePacesDequeue(t *testing.T) {
	q := queue.New(4, 50, 1) // 50/s steady rate, burst 1
	ctx := context.Background()
	q.Enqueue(ctx, queue.Item{ID: 1})
	q.Enqueue(ctx, queue.Item{ID: 2})

	start := time.Now()
	q.Dequeue(ctx)
	q.Dequeue(ctx)
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected pacing to space the second dequeue out, elapsed %v", elapsed)
	}
}
