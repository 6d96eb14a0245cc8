package broadcast_test

import (
	"testing"
	"time"

	"github.com/nasa-jpl/cncctl/broadcast"
	"github.com/nasa-jpl/cncctl/errs"
)

func TestPublishConnectedDeliversToAllSubscribers(t *testing.T) {
	h := broadcast.New()
	a := h.SubscribeConnected()
	b := h.SubscribeConnected()

	h.PublishConnected()

	select {
	case <-a:
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive connected event")
	}
	select {
	case <-b:
	case <-time.After(time.Second):
		t.Fatal("subscriber b did not receive connected event")
	}
}

func TestPublishSentPreservesOrderWithinOneChannel(t *testing.T) {
	h := broadcast.New()
	sub := h.SubscribeSent()

	go func() {
		h.PublishSent("G1 X1")
		// second publish may be dropped (non-blocking, buffer 1); that's fine
		h.PublishSent("G1 X2")
	}()

	select {
	case line := <-sub:
		if line != "G1 X1" {
			t.Errorf("expected the first published line %q first, got %q", "G1 X1", line)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive a sent event")
	}
}

func TestPublishErrorDeliversTheErrorValue(t *testing.T) {
	h := broadcast.New()
	sub := h.SubscribeError()

	e := errs.New(errs.CommError, "link down")
	h.PublishError(e)

	select {
	case got := <-sub:
		if got != e {
			t.Errorf("expected the exact published error, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive error event")
	}
}

func TestPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	h := broadcast.New()
	done := make(chan struct{})
	go func() {
		h.PublishConnected()
		h.PublishReady()
		h.PublishSent("x")
		h.PublishReceived("y")
		h.PublishError(errs.New(errs.CommError, "z"))
		h.PublishStatusUpdate(42)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing with no subscribers blocked")
	}
}

func TestStatusUpdateCoalescesWhenSubscriberIsSlow(t *testing.T) {
	h := broadcast.New()
	sub := h.SubscribeStatusUpdate()

	h.PublishStatusUpdate(1)
	h.PublishStatusUpdate(2)
	h.PublishStatusUpdate(3)

	select {
	case v := <-sub:
		if v != 3 {
			t.Errorf("expected the most recent status update (3), got %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive a status update")
	}

	select {
	case v := <-sub:
		t.Errorf("expected no further buffered update, got %v", v)
	default:
	}
}

func TestStatusUpdateDeliversSingleUpdate(t *testing.T) {
	h := broadcast.New()
	sub := h.SubscribeStatusUpdate()

	h.PublishStatusUpdate("snapshot-1")

	select {
	case v := <-sub:
		if v != "snapshot-1" {
			t.Errorf("got %v, want snapshot-1", v)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the status update")
	}
}
