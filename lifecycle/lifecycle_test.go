package lifecycle_test

import (
	"sync"
	"testing"

	"github.com/nasa-jpl/cncctl/errs"
	"github.com/nasa-jpl/cncctl/gcode"
	"github.com/nasa-jpl/cncctl/lifecycle"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	err    *errs.Error
}

func (r *recorder) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) OnQueued()    { r.record("queued") }
func (r *recorder) OnSent()      { r.record("sent") }
func (r *recorder) OnAck()       { r.record("ack") }
func (r *recorder) OnExecuting() { r.record("executing") }
func (r *recorder) OnExecuted()  { r.record("executed") }
func (r *recorder) OnError(e *errs.Error) {
	r.record("error")
	r.mu.Lock()
	r.err = e
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestBeginFiresOnQueuedSynchronously(t *testing.T) {
	tr := lifecycle.NewTracker()
	r := &recorder{}
	tr.Begin(r)
	if got := r.snapshot(); len(got) != 1 || got[0] != "queued" {
		t.Errorf("expected [queued] immediately after Begin, got %v", got)
	}
}

func TestOrderedProgressionFiresInSequence(t *testing.T) {
	tr := lifecycle.NewTracker()
	r := &recorder{}
	id := tr.Begin(r)

	if err := tr.Sent(id); err != nil {
		t.Fatalf("Sent: %v", err)
	}
	if err := tr.Ack(id); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := tr.Executing(id); err != nil {
		t.Fatalf("Executing: %v", err)
	}
	if err := tr.Executed(id); err != nil {
		t.Fatalf("Executed: %v", err)
	}

	want := []string{"queued", "sent", "ack", "executing", "executed"}
	got := r.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if tr.InFlight() != 0 {
		t.Errorf("expected 0 in flight after Executed, got %d", tr.InFlight())
	}
}

func TestOutOfOrderEventIsRejected(t *testing.T) {
	tr := lifecycle.NewTracker()
	r := &recorder{}
	id := tr.Begin(r)

	err := tr.Ack(id)
	if err == nil {
		t.Fatal("expected an error skipping Sent before Ack")
	}
	if kind, ok := errs.Of(err); !ok || kind != errs.Protocol {
		t.Errorf("expected errs.Protocol, got %v", err)
	}
}

func TestAdvancingUnknownIDErrors(t *testing.T) {
	tr := lifecycle.NewTracker()
	if err := tr.Sent(lifecycle.ID(999)); err == nil {
		t.Fatal("expected an error advancing an unknown id")
	}
}

func TestErrorTerminatesRegardlessOfStage(t *testing.T) {
	tr := lifecycle.NewTracker()
	r := &recorder{}
	id := tr.Begin(r)

	if err := tr.Error(id, errs.New(errs.CommError, "link down")); err != nil {
		t.Fatalf("Error: %v", err)
	}
	got := r.snapshot()
	if len(got) != 2 || got[1] != "error" {
		t.Errorf("expected [queued error], got %v", got)
	}
	if tr.InFlight() != 0 {
		t.Errorf("expected 0 in flight after Error, got %d", tr.InFlight())
	}
}

func TestErrorAfterTerminalIsNoOp(t *testing.T) {
	tr := lifecycle.NewTracker()
	r := &recorder{}
	id := tr.Begin(r)
	if err := tr.Error(id, errs.New(errs.Cancelled, "first")); err != nil {
		t.Fatalf("first Error: %v", err)
	}
	if err := tr.Error(id, errs.New(errs.Cancelled, "second")); err != nil {
		t.Errorf("second Error on an already-terminal id should be a no-op, got %v", err)
	}
	got := r.snapshot()
	count := 0
	for _, e := range got {
		if e == "error" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected OnError to fire exactly once, fired %d times", count)
	}
}

func TestCancelAllFansOutToEveryInFlightInstruction(t *testing.T) {
	tr := lifecycle.NewTracker()
	rs := make([]*recorder, 3)
	for i := range rs {
		rs[i] = &recorder{}
		tr.Begin(rs[i])
	}
	if tr.InFlight() != 3 {
		t.Fatalf("expected 3 in flight, got %d", tr.InFlight())
	}

	tr.CancelAll(errs.Cancelled)

	for i, r := range rs {
		got := r.snapshot()
		if len(got) != 2 || got[1] != "error" {
			t.Errorf("recorder %d: expected [queued error], got %v", i, got)
		}
	}
	if tr.InFlight() != 0 {
		t.Errorf("expected 0 in flight after CancelAll, got %d", tr.InFlight())
	}
}

func TestBeginWithNilHooksStillTracksForCancellation(t *testing.T) {
	tr := lifecycle.NewTracker()
	id := tr.Begin(nil)
	if tr.InFlight() != 1 {
		t.Fatalf("expected 1 in flight, got %d", tr.InFlight())
	}
	if err := tr.Sent(id); err != nil {
		t.Fatalf("Sent with nil hooks: %v", err)
	}
	tr.CancelAll(errs.Cancelled)
	if tr.InFlight() != 0 {
		t.Errorf("expected 0 in flight after CancelAll, got %d", tr.InFlight())
	}
}

var _ gcode.HookBundle = (*recorder)(nil)
