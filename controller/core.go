package controller

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/nasa-jpl/cncctl/broadcast"
	"github.com/nasa-jpl/cncctl/config"
	"github.com/nasa-jpl/cncctl/errs"
	"github.com/nasa-jpl/cncctl/gcode"
	"github.com/nasa-jpl/cncctl/lifecycle"
	"github.com/nasa-jpl/cncctl/queue"
	"github.com/nasa-jpl/cncctl/state"
	"github.com/nasa-jpl/cncctl/stream"
	"github.com/nasa-jpl/cncctl/util"
)

// SendOptions configures a single submission. Hooks is only honored by
// SendGcode: a tagged gcode.Instruction may carry a hook bundle, but a
// raw line submitted via SendLine never does.
type SendOptions struct {
	// Hooks observes this instruction's lifecycle. For SendGcode, an
	// Instruction's own Hooks take precedence if non-nil. Ignored by
	// SendLine.
	Hooks gcode.HookBundle
}

// Core is the composed, non-inherited base a concrete Backend embeds. The
// zero value is not usable; use New.
type Core struct {
	backend Backend
	opts    options
	caps    Capabilities

	mu sync.Mutex
	v  state.Vector

	tracker *lifecycle.Tracker
	hub     *broadcast.Hub
	q       *queue.Queue

	waitMu sync.Mutex

	jogging int32

	dispatchOnce   sync.Once
	dispatchCancel context.CancelFunc
}

// New constructs a Core wrapping backend, seeded with the axis layout in
// cfg (falling back to state's default three linear axes when cfg is
// zero-valued).
func New(backend Backend, cfg config.AxisConfig, opts ...Option) *Core {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	v := state.ResetState(cfg.Labels, cfg.Homable)
	for len(v.CoordSysOffsets) < cfg.CoordSystems {
		v.CoordSysOffsets = append(v.CoordSysOffsets, make([]float64, len(v.AxisLabels)))
	}
	if dump, err := config.DumpYAML(cfg); err == nil {
		o.logger.Printf("controller: constructed with axis config:\n%s", dump)
	}
	return &Core{
		backend: backend,
		opts:    o,
		caps:    DetectCapabilities(backend),
		v:       v,
		tracker: lifecycle.NewTracker(),
		hub:     broadcast.New(),
		q:       queue.New(o.queueCap, o.queueRPS, o.queueBurst),
	}
}

// Capabilities reports which optional verbs the wrapped backend supports.
func (c *Core) Capabilities() Capabilities { return c.caps }

// Events returns the controller-wide event hub.
func (c *Core) Events() *broadcast.Hub { return c.hub }

// mutate applies fn to a copy of the current Vector, commits it only if it
// validates, and publishes a status update on success.
func (c *Core) mutate(fn func(*state.Vector)) error {
	c.mu.Lock()
	nv := c.v
	fn(&nv)
	if err := nv.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.v = nv
	c.mu.Unlock()
	c.hub.PublishStatusUpdate(buildSnapshot(nv))
	return nil
}

// Mutate lets an embedding backend update the mirrored state vector (e.g.
// after parsing a status report) under the same lock and validation path
// Core itself uses.
func (c *Core) Mutate(fn func(*state.Vector)) error {
	return c.mutate(fn)
}

// GetStatus returns a self-consistent snapshot built from one locked
// read of the Vector. It never suspends.
func (c *Core) GetStatus() Snapshot {
	c.mu.Lock()
	v := c.v
	c.mu.Unlock()
	return buildSnapshot(v)
}

// InitConnection opens the transport and drives the backend handshake.
// While retry is true, failures are retried with exponential backoff
// until the handshake lands or ctx is cancelled.
func (c *Core) InitConnection(ctx context.Context, retry bool) error {
	op := func() error {
		if err := c.backend.Open(ctx); err != nil {
			return err
		}
		return c.backend.Handshake(ctx)
	}

	var err error
	if retry {
		// cenkalti/backoff v2's Retry has no context awareness of its own;
		// run it on a goroutine so a cancelled ctx can still abort the
		// caller's wait.
		done := make(chan error, 1)
		go func() { done <- backoff.Retry(op, backoff.NewExponentialBackOff()) }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	} else {
		err = op()
	}
	if err != nil {
		return errs.New(errs.CommError, "initConnection: %v", err)
	}

	c.hub.PublishConnected()
	if merr := c.mutate(func(v *state.Vector) { v.Ready = true }); merr != nil {
		return merr
	}
	c.hub.PublishReady()

	c.dispatchOnce.Do(func() {
		dctx, cancel := context.WithCancel(context.Background())
		c.dispatchCancel = cancel
		go c.dispatchLoop(dctx)
	})
	return nil
}

// dispatchLoop drains the submission queue into the backend one line at
// a time, so instructions reach the device in submission order.
func (c *Core) dispatchLoop(ctx context.Context) {
	for {
		item, err := c.q.Dequeue(ctx)
		if err != nil {
			return
		}
		if err := c.tracker.Sent(item.ID); err != nil {
			c.opts.logger.Printf("controller: %v", err)
		}
		c.hub.PublishSent(item.Raw)
		if err := c.backend.WriteLine(ctx, item.ID, item.Raw); err != nil {
			c.Fail(item.ID, errs.New(errs.CommError, "writeLine: %v", err))
		}
	}
}

// submit assigns line an ID, tracks it, and enqueues it for
// transmission, blocking on queue backpressure.
func (c *Core) submit(ctx context.Context, line string, hooks gcode.HookBundle) error {
	id := c.tracker.Begin(hooks)
	if err := c.q.Enqueue(ctx, queue.Item{ID: id, Raw: line}); err != nil {
		c.tracker.Error(id, errs.New(errs.Cancelled, "enqueue: %v", err))
		return err
	}
	return nil
}

// SendLine submits one raw, untagged line. A raw line carries no
// lifecycle hooks: opts.Hooks is ignored, and the instruction is tracked
// with a nil hook bundle. Only a tagged gcode.Instruction submitted via
// SendGcode may bind one.
func (c *Core) SendLine(ctx context.Context, line string, opts SendOptions) error {
	return c.submit(ctx, line, nil)
}

// SendGcode submits a structured, tagged instruction. The instruction's
// own Hooks take precedence over opts.Hooks if set.
func (c *Core) SendGcode(ctx context.Context, instr gcode.Instruction, opts SendOptions) error {
	hooks := instr.Hooks
	if hooks == nil {
		hooks = opts.Hooks
	}
	return c.submit(ctx, instr.Raw, hooks)
}

// Send dispatches thing to SendLine or SendGcode. A string is always a
// raw line; a gcode.Instruction goes through SendGcode only when its
// IsGcode tag reports actual instruction content. A zero-value
// Instruction degrades to a raw (empty) line with no lifecycle hooks.
func (c *Core) Send(ctx context.Context, thing interface{}, opts SendOptions) error {
	switch v := thing.(type) {
	case string:
		return c.SendLine(ctx, v, opts)
	case gcode.Instruction:
		if !v.IsGcode() {
			return c.SendLine(ctx, v.Raw, opts)
		}
		return c.SendGcode(ctx, v, opts)
	default:
		return errs.New(errs.Invalid, "send: unsupported payload type %T", thing)
	}
}

// SendStream consumes src, feeding each item through Send in order. It
// applies backpressure by way of Send's own blocking Enqueue: it never
// buffers ahead of the device beyond the queue's fixed capacity. On the
// first item's error, every instruction that already reached the queue
// or tracker is cancelled; the item's error is returned, merged with any
// failure from the cancellation itself.
func (c *Core) SendStream(ctx context.Context, src stream.Source) error {
	if err := c.mutate(func(v *state.Vector) { v.ProgramRunning = true }); err != nil {
		return err
	}
	defer c.mutate(func(v *state.Vector) { v.ProgramRunning = false })

	for {
		item, ok, err := src.Next(ctx)
		if err != nil {
			return util.MergeErrors([]error{err, c.Cancel(context.Background())})
		}
		if !ok {
			break
		}
		if err := c.Send(ctx, item, SendOptions{}); err != nil {
			return util.MergeErrors([]error{err, c.Cancel(context.Background())})
		}
	}
	return c.WaitSync(ctx)
}

// SendFile splits path on newlines (stripping a trailing \r) and feeds
// the result through SendStream. An unterminated final line still
// streams; empty lines pass through unchanged.
func (c *Core) SendFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.New(errs.Invalid, "sendFile: %v", err)
	}
	defer f.Close()
	return c.SendStream(ctx, stream.FromLines(f))
}

// WaitSync blocks until the queue is empty, every tracked instruction
// has reached a terminal lifecycle event, and the machine has stopped
// moving. It holds an internal mutex for its duration so a concurrent
// WaitSync cannot race it. Unsent items are never discarded.
func (c *Core) WaitSync(ctx context.Context) error {
	c.waitMu.Lock()
	defer c.waitMu.Unlock()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		moving := c.v.Moving
		c.mu.Unlock()
		if c.q.Len() == 0 && c.tracker.InFlight() == 0 && !moving {
			return nil
		}
		select {
		case <-ctx.Done():
			return errs.New(errs.Cancelled, "waitSync: %v", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Received reports a raw line read back off the wire, fanned out via the
// event hub. A concrete backend's own read loop calls this as it parses
// incoming bytes, independently of whatever Ack/Executing/Executed calls
// it derives from that line.
func (c *Core) Received(raw string) {
	c.hub.PublishReceived(raw)
}

// Ack marks id as acknowledged; called by the embedding backend's own read
// loop as it parses the device's responses.
func (c *Core) Ack(id lifecycle.ID) error {
	return c.tracker.Ack(id)
}

// Executing marks id as actively running and sets moving=true. The tracker
// transition is checked first so a backend reporting Executing for an
// instruction that was cancelled in the meantime cannot flip moving back on.
func (c *Core) Executing(id lifecycle.ID) error {
	if err := c.tracker.Executing(id); err != nil {
		return err
	}
	return c.mutate(func(v *state.Vector) { v.Moving = true })
}

// Executed marks id complete, clearing moving once nothing else is
// in flight.
func (c *Core) Executed(id lifecycle.ID) error {
	if err := c.tracker.Executed(id); err != nil {
		return err
	}
	if c.tracker.InFlight() == 0 {
		return c.mutate(func(v *state.Vector) { v.Moving = false })
	}
	return nil
}

// Fail terminates id with e. Latching kinds escalate to a
// controller-level error, fanning cancellation out to every in-flight
// instruction; non-latching kinds terminate only id.
func (c *Core) Fail(id lifecycle.ID, e *errs.Error) error {
	if errs.Latching(e.Kind) {
		c.latch(e)
		return nil
	}
	return c.tracker.Error(id, e)
}

// latch records a controller-level failure: error latches, ready drops,
// every in-flight instruction is cancelled, and the failure broadcasts.
func (c *Core) latch(e *errs.Error) {
	c.mu.Lock()
	nv := errorSnapshot(c.v, e)
	nv.Moving = false
	nv.Held = false
	c.v = nv
	c.mu.Unlock()

	c.tracker.CancelAll(errs.Cancelled)
	c.q.Drain()
	c.hub.PublishStatusUpdate(buildSnapshot(nv))
	c.hub.PublishError(e)
}

// ClearError is the only recovery path back to error=false short of
// Reset. A device that refuses surfaces machine_error.
func (c *Core) ClearError(ctx context.Context) error {
	if err := c.backend.ClearAlarm(ctx); err != nil {
		return errs.New(errs.MachineError, "clearError: %v", err)
	}
	return c.mutate(func(v *state.Vector) {
		v.Error = false
		v.ErrorData = nil
		v.Ready = true
	})
}

// Reset forcibly re-initializes the device: soft-reset if the backend
// supports it, hard otherwise. Every in-flight instruction is
// invalidated with terminal cancelled, the state vector is
// re-initialized, and the handshake is re-driven.
func (c *Core) Reset(ctx context.Context) error {
	err := c.backend.SoftReset(ctx)
	if kind, ok := errs.Of(err); ok && kind == errs.Unsupported {
		err = c.backend.HardReset(ctx)
	}
	if err != nil {
		return errs.New(errs.CommError, "reset: %v", err)
	}
	c.tracker.CancelAll(errs.Cancelled)
	c.q.Drain()

	c.mu.Lock()
	labels := append([]string(nil), c.v.AxisLabels...)
	homable := append([]bool(nil), c.v.HomableAxes...)
	nsys := len(c.v.CoordSysOffsets)
	nv := state.ResetState(labels, homable)
	for len(nv.CoordSysOffsets) < nsys {
		nv.CoordSysOffsets = append(nv.CoordSysOffsets, make([]float64, len(labels)))
	}
	c.v = nv
	c.mu.Unlock()
	c.hub.PublishStatusUpdate(buildSnapshot(nv))

	if err := c.backend.Handshake(ctx); err != nil {
		return errs.New(errs.CommError, "reset: handshake: %v", err)
	}
	if err := c.mutate(func(v *state.Vector) { v.Ready = true }); err != nil {
		return err
	}
	c.hub.PublishReady()
	return nil
}

// Hold engages a feed hold: motion pauses, the queue is retained.
func (c *Core) Hold(ctx context.Context) error {
	if err := c.backend.FeedHold(ctx); err != nil {
		return err
	}
	return c.mutate(func(v *state.Vector) { v.Held = true })
}

// Resume releases a feed hold; the queue continues.
func (c *Core) Resume(ctx context.Context) error {
	if err := c.backend.FeedResume(ctx); err != nil {
		return err
	}
	return c.mutate(func(v *state.Vector) { v.Held = false })
}

// Cancel aborts current operations, flushes the queue, and releases a
// held feed. Every in-flight instruction terminates with cancelled. A
// second Cancel with nothing outstanding is a no-op.
func (c *Core) Cancel(ctx context.Context) error {
	c.mu.Lock()
	held := c.v.Held
	c.mu.Unlock()
	if !held && c.tracker.InFlight() == 0 && c.q.Len() == 0 {
		return nil
	}
	if err := c.backend.Stop(ctx); err != nil {
		c.opts.logger.Printf("controller: cancel: backend stop: %v", err)
	}
	c.tracker.CancelAll(errs.Cancelled)
	c.q.Drain()
	return c.mutate(func(v *state.Vector) {
		v.Moving = false
		v.Held = false
	})
}

// RealTimeMove nudges one axis by inc outside the normal queue. If a
// prior nudge is still in flight, the call is silently ignored: at most
// one real-time jog is outstanding at a time. When a soft travel limit
// is configured for axis, the jog target is clamped to it, shortening
// (or swallowing) the nudge instead of rejecting it: a jog held down at
// the edge of travel parks at the limit rather than erroring.
func (c *Core) RealTimeMove(ctx context.Context, axis string, inc float64) error {
	if !atomic.CompareAndSwapInt32(&c.jogging, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&c.jogging, 0)

	if lim, ok := c.opts.axisLimits[axis]; ok {
		c.mu.Lock()
		for i, l := range c.v.AxisLabels {
			if l == axis {
				inc = lim.Clamp(c.v.Mpos[i]+inc) - c.v.Mpos[i]
			}
		}
		c.mu.Unlock()
		if inc == 0 {
			return nil
		}
	}
	return c.backend.RealTimeJog(ctx, axis, inc)
}

// syncHooks bridges a queued instruction back to a blocking caller
// (Move/Home), firing done exactly once on its terminal event.
type syncHooks struct {
	gcode.NopHooks
	done chan error
}

func newSyncHooks() *syncHooks { return &syncHooks{done: make(chan error, 1)} }

func (h *syncHooks) OnExecuted()           { h.done <- nil }
func (h *syncHooks) OnError(e *errs.Error) { h.done <- e }

// awaitSubmit submits line and blocks until it reaches a terminal event or
// ctx is done.
func (c *Core) awaitSubmit(ctx context.Context, line string) error {
	hooks := newSyncHooks()
	if err := c.submit(ctx, line, hooks); err != nil {
		return err
	}
	select {
	case err := <-hooks.done:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		return errs.New(errs.Cancelled, "move: %v", ctx.Err())
	}
}

// Move commands a linear move to pos; a nil component means "hold this
// axis". It returns when motion completes. Must not be called
// concurrently with other motion-producing calls on the same controller.
func (c *Core) Move(ctx context.Context, pos []*float64, feed *float64) error {
	c.mu.Lock()
	labels := append([]string(nil), c.v.AxisLabels...)
	c.mu.Unlock()

	if len(pos) != len(labels) {
		return errs.New(errs.Invalid, "move: expected %d axis components, got %d", len(labels), len(pos))
	}

	parts := []string{"G1"}
	for i, p := range pos {
		if p == nil {
			continue
		}
		if lim, ok := c.opts.axisLimits[labels[i]]; ok && !lim.Check(*p) {
			return errs.New(errs.LimitHit, "move: axis %s target %f outside soft limits [%f,%f]", labels[i], *p, lim.Min, lim.Max)
		}
		parts = append(parts, fmt.Sprintf("%s%g", strings.ToUpper(labels[i]), *p))
	}
	if feed != nil {
		parts = append(parts, fmt.Sprintf("F%g", *feed))
	}
	return c.awaitSubmit(ctx, strings.Join(parts, " "))
}

// Home drives the homing sequence for axes (all homable axes if axes is
// empty), then marks each of them homed.
func (c *Core) Home(ctx context.Context, axes []string) error {
	c.mu.Lock()
	labels := append([]string(nil), c.v.AxisLabels...)
	homable := append([]bool(nil), c.v.HomableAxes...)
	c.mu.Unlock()

	if len(axes) == 0 {
		for i, h := range homable {
			if h {
				axes = append(axes, labels[i])
			}
		}
	}

	line := "$H"
	if len(axes) > 0 {
		line = "G28.2 " + strings.Join(axes, " ")
	}
	if err := c.awaitSubmit(ctx, line); err != nil {
		return err
	}

	homed := make(map[string]bool, len(axes))
	for _, a := range axes {
		homed[strings.ToLower(a)] = true
	}
	return c.mutate(func(v *state.Vector) {
		for i, l := range v.AxisLabels {
			if homed[strings.ToLower(l)] {
				v.Homed[i] = true
			}
		}
	})
}

// Probe commands a probing move via the backend's optional Prober
// capability, returning errs.Unsupported if the backend does not
// implement it.
func (c *Core) Probe(ctx context.Context, target []*float64, feed *float64) ([]float64, error) {
	prober, ok := c.backend.(Prober)
	if !ok {
		return nil, unsupported("probe")
	}
	return prober.Probe(ctx, target, feed)
}

// Close stops the dispatch loop. It does not close the underlying
// transport, which remains the embedding backend's responsibility.
func (c *Core) Close() {
	if c.dispatchCancel != nil {
		c.dispatchCancel()
	}
}
