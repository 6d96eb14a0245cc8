/*Package controller defines the contract between callers and a CNC
motion controller: the Backend interface a concrete firmware driver
satisfies, and Core, the composed base a backend embeds to get the state
vector, instruction lifecycle bus, event broadcast hub, and submission
queue for free.

Optional verbs live on small capability interfaces (Prober) rather than
on Backend itself, so a driver that cannot probe simply doesn't
implement the method and callers get a typed unsupported error instead
of a silent no-op.
*/
package controller

import (
	"context"

	"github.com/nasa-jpl/cncctl/errs"
	"github.com/nasa-jpl/cncctl/lifecycle"
)

// Backend is the minimal interface a concrete firmware driver must
// implement. Any of these a driver cannot perform should still be
// implemented, returning an *errs.Error{Kind: errs.Unsupported} rather
// than silently no-op'ing.
type Backend interface {
	// Open establishes the underlying transport (serial port, TCP socket).
	Open(ctx context.Context) error

	// Handshake performs whatever initial exchange the firmware dialect
	// requires before it will accept commands (e.g. a wake line, a banner
	// read) and should leave the embedded Core's state ready to move.
	Handshake(ctx context.Context) error

	// WriteLine transmits one already-framed line to the device, tagged
	// with the lifecycle ID Core assigned it. It does not wait for the
	// device's response; the backend's own read loop correlates incoming
	// responses back to id (most ASCII dialects reply in FIFO order) and
	// drives the embedded Core's Ack/Executing/Executed/Fail methods for
	// it asynchronously.
	WriteLine(ctx context.Context, id lifecycle.ID, line string) error

	// SoftReset asks the device to clear its current motion/program state
	// without a full power-cycle-equivalent reset.
	SoftReset(ctx context.Context) error

	// HardReset performs a full device reset.
	HardReset(ctx context.Context) error

	// ClearAlarm releases a latched alarm/error condition on the device,
	// if the device reports one separately from a soft reset.
	ClearAlarm(ctx context.Context) error

	// FeedHold engages a feed hold: motion pauses but the queue is
	// retained.
	FeedHold(ctx context.Context) error

	// FeedResume releases a feed hold.
	FeedResume(ctx context.Context) error

	// Stop halts any motion in progress out-of-band, without clearing the
	// queue or device state otherwise; Core.Cancel calls this before
	// flushing the queue and fanning out cancellation.
	Stop(ctx context.Context) error

	// RealTimeJog nudges one axis by inc (machine units, signed) outside
	// the normal queue, taking effect immediately.
	RealTimeJog(ctx context.Context, axis string, inc float64) error
}

// Prober is an optional capability: a backend that can perform a probing
// move, stopping early if a probe input trips.
type Prober interface {
	// Probe commands a move toward target (nil components mean "don't
	// move this axis") at the given feed (nil means use the current
	// modal feed), stopping on a probe trip. It returns the position at
	// which the probe tripped, or an *errs.Error with Kind errs.ProbeEnd
	// if the endpoint was reached without tripping.
	Probe(ctx context.Context, target []*float64, feed *float64) ([]float64, error)
}

// Capabilities reports which optional verbs a Backend implements.
type Capabilities struct {
	Probe bool
}

// DetectCapabilities inspects b for the optional Prober interface.
func DetectCapabilities(b Backend) Capabilities {
	_, prober := b.(Prober)
	return Capabilities{Probe: prober}
}

func unsupported(verb string) error {
	return errs.New(errs.Unsupported, "backend does not implement %s", verb)
}
