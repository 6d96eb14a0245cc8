/*Package lifecycle implements the per-instruction ordered event bus:
queued -> sent -> ack -> executing -> executed, or a terminal error at
any point before executed. Each event fires at most once per
instruction, and nothing fires after a terminal event.
*/
package lifecycle

import (
	"sync"

	"github.com/nasa-jpl/cncctl/errs"
	"github.com/nasa-jpl/cncctl/gcode"
)

// ID identifies one in-flight instruction.
type ID uint64

// entry tracks one in-flight instruction's progress through the ordered
// event sequence. Entries are removed from the Tracker on their terminal
// event, releasing the hook bundle; a removed id with id <= next is
// therefore known-terminal.
type entry struct {
	hooks gcode.HookBundle
	stage gcode.Event
}

// order is the strict sequence queued events must follow.
var order = []gcode.Event{gcode.Queued, gcode.Sent, gcode.Ack, gcode.Executing, gcode.Executed}

func stageIndex(e gcode.Event) int {
	for i, o := range order {
		if o == e {
			return i
		}
	}
	return -1
}

// Tracker owns the set of in-flight instructions and enforces ordering.
// It is safe for concurrent use. Hook Bundles are invoked while the
// Tracker's lock is held, which is what makes "no event after a terminal
// one" airtight even when a backend's read loop races a cancellation;
// the flip side is that a hook must not call back into the Tracker.
type Tracker struct {
	mu      sync.Mutex
	next    ID
	entries map[ID]*entry
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[ID]*entry)}
}

// Begin registers a newly queued instruction and fires OnQueued
// synchronously with the enqueue. hooks may be nil, in which case Begin
// still tracks the instruction (for cancellation fan-out and WaitSync)
// but never calls back.
func (t *Tracker) Begin(hooks gcode.HookBundle) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	t.entries[id] = &entry{hooks: hooks, stage: gcode.Queued}
	if hooks != nil {
		hooks.OnQueued()
	}
	return id
}

// terminal reports whether id was once tracked and has since reached a
// terminal event. Caller must hold t.mu.
func (t *Tracker) terminal(id ID) bool {
	return id > 0 && id <= t.next
}

// advance moves id to event e if e is the legal next stage, invoking the
// matching hook. Advancing a terminal or unknown id is a no-op that
// returns a Protocol error rather than panicking: an out-of-order report
// is a backend bug, not a reason to crash the caller.
func (t *Tracker) advance(id ID, e gcode.Event, call func(gcode.HookBundle)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ent, ok := t.entries[id]
	if !ok {
		if t.terminal(id) {
			return errs.New(errs.Protocol, "instruction %d already terminal", id)
		}
		return errs.New(errs.Protocol, "unknown instruction id %d", id)
	}
	wantIdx := stageIndex(e)
	haveIdx := stageIndex(ent.stage)
	if wantIdx != haveIdx+1 {
		return errs.New(errs.Protocol, "instruction %d received %s out of order (at %s)", id, e, ent.stage)
	}
	ent.stage = e
	if e == gcode.Executed {
		delete(t.entries, id)
	}
	if call != nil && ent.hooks != nil {
		call(ent.hooks)
	}
	return nil
}

// Sent marks id as transmitted to the device.
func (t *Tracker) Sent(id ID) error {
	return t.advance(id, gcode.Sent, func(h gcode.HookBundle) { h.OnSent() })
}

// Ack marks id as acknowledged by the device.
func (t *Tracker) Ack(id ID) error {
	return t.advance(id, gcode.Ack, func(h gcode.HookBundle) { h.OnAck() })
}

// Executing marks id as actively running on the device.
func (t *Tracker) Executing(id ID) error {
	return t.advance(id, gcode.Executing, func(h gcode.HookBundle) { h.OnExecuting() })
}

// Executed marks id as complete; the instruction and its hook bundle are
// released after this call.
func (t *Tracker) Executed(id ID) error {
	return t.advance(id, gcode.Executed, func(h gcode.HookBundle) { h.OnExecuted() })
}

// Error terminates id with the given error, regardless of its current
// stage, firing OnError at most once. Terminating an already-terminal id
// is a no-op, not an error: error may fire at any point before executed,
// and exactly one terminal event is delivered.
func (t *Tracker) Error(id ID, e *errs.Error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ent, ok := t.entries[id]
	if !ok {
		if t.terminal(id) {
			return nil
		}
		return errs.New(errs.Protocol, "unknown instruction id %d", id)
	}
	delete(t.entries, id)
	if ent.hooks != nil {
		ent.hooks.OnError(e)
	}
	return nil
}

// CancelAll terminates every currently in-flight instruction with a
// terminal error of the given kind. This is the fan-out mechanism behind
// cancel/reset/controller-level-error propagation.
func (t *Tracker) CancelAll(kind errs.Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &errs.Error{Kind: kind}
	for id, ent := range t.entries {
		delete(t.entries, id)
		if ent.hooks != nil {
			ent.hooks.OnError(e)
		}
	}
}

// InFlight reports the number of instructions that have not yet reached a
// terminal state. WaitSync uses this to know when the tracker has
// quiesced.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
