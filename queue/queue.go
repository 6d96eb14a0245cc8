/*Package queue implements the bounded, backpressured instruction queue a
controller core drains into its transport: submissions block once the
queue is full rather than being dropped or reordered, and dequeues are
paced by a token-bucket rate limiter so a flood of submissions cannot
overrun a device that acks slower than the host can write.
*/
package queue

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/cncctl/errs"
	"github.com/nasa-jpl/cncctl/lifecycle"
)

// Item is one queued instruction awaiting transmission.
type Item struct {
	ID  lifecycle.ID
	Raw string
}

// Queue is a FIFO of Items, bounded in capacity and paced on dequeue. The
// zero value is not usable; use New.
type Queue struct {
	items   chan Item
	limiter *rate.Limiter
}

// New returns a Queue holding at most capacity items, dequeued at no more
// than rps per second (burst allows a short burst above that steady rate).
// A non-positive rps disables pacing: dequeue is then limited only by
// capacity.
func New(capacity int, rps float64, burst int) *Queue {
	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	} else {
		lim = rate.NewLimiter(rate.Inf, 0)
	}
	return &Queue{
		items:   make(chan Item, capacity),
		limiter: lim,
	}
}

// Enqueue appends item to the tail of the queue, blocking until room is
// available or ctx is done. This is the backpressure point: a caller that
// submits faster than the device can drain will block here, never silently
// drop or reorder an instruction.
func (q *Queue) Enqueue(ctx context.Context, item Item) error {
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return errs.New(errs.Cancelled, "enqueue cancelled: %v", ctx.Err())
	}
}

// Dequeue waits for both the rate limiter and the next queued item, and
// returns them in FIFO order.
func (q *Queue) Dequeue(ctx context.Context) (Item, error) {
	if err := q.limiter.Wait(ctx); err != nil {
		return Item{}, errs.New(errs.Cancelled, "dequeue cancelled: %v", err)
	}
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return Item{}, errs.New(errs.Cancelled, "dequeue cancelled: %v", ctx.Err())
	}
}

// Len reports the number of items currently queued, not counting any item
// already handed to a Dequeue caller.
func (q *Queue) Len() int {
	return len(q.items)
}

// Drain removes and discards every currently queued item, returning their
// IDs in FIFO order. It is used by cancel/reset to clear instructions that
// never reached the transport.
func (q *Queue) Drain() []lifecycle.ID {
	var ids []lifecycle.ID
	for {
		select {
		case item := <-q.items:
			ids = append(ids, item.ID)
		default:
			return ids
		}
	}
}
