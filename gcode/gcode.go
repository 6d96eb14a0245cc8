/*Package gcode defines the opaque contract for a parsed G-code instruction
and the per-instruction lifecycle hook bundle.

The parser that produces Instruction values lives outside this module;
Modal is deliberately left as an opaque interface{} carrying whatever
modal effects the parser attaches.
*/
package gcode

import "github.com/nasa-jpl/cncctl/errs"

// Event identifies a point in an instruction's lifecycle.
type Event int

const (
	Queued Event = iota
	Sent
	Ack
	Executing
	Executed
	// ErrorEvent is the terminal failure event; cancellation is delivered
	// as ErrorEvent with Kind == errs.Cancelled.
	ErrorEvent
)

func (e Event) String() string {
	switch e {
	case Queued:
		return "queued"
	case Sent:
		return "sent"
	case Ack:
		return "ack"
	case Executing:
		return "executing"
	case Executed:
		return "executed"
	case ErrorEvent:
		return "error"
	default:
		return "unknown"
	}
}

// HookBundle receives lifecycle events for exactly one instruction, for
// exactly as long as that instruction is in flight. Implementations must
// not block the caller.
type HookBundle interface {
	OnQueued()
	OnSent()
	OnAck()
	OnExecuting()
	OnExecuted()
	OnError(*errs.Error)
}

// NopHooks implements HookBundle with no-ops; embed it to implement only
// the events you care about.
type NopHooks struct{}

func (NopHooks) OnQueued()           {}
func (NopHooks) OnSent()             {}
func (NopHooks) OnAck()              {}
func (NopHooks) OnExecuting()        {}
func (NopHooks) OnExecuted()         {}
func (NopHooks) OnError(*errs.Error) {}

// Instruction is the opaque, tagged value carried through submission.
// A raw line submitted via sendLine never produces one of these; Instruction
// is only ever produced by a parser (or a test) via Tagged or Line.
type Instruction struct {
	// Modal carries whatever modal effects the parser computed for this
	// instruction. Opaque to this module.
	Modal interface{}

	// Raw is the textual form of the instruction, as it will be
	// transmitted to the device.
	Raw string

	// Hooks is optional; nil means the instruction carries no lifecycle
	// observer.
	Hooks HookBundle
}

// Tagged constructs a structured instruction carrying modal effects and an
// optional hook bundle.
func Tagged(raw string, modal interface{}, hooks HookBundle) Instruction {
	return Instruction{Modal: modal, Raw: raw, Hooks: hooks}
}

// Line constructs a structured instruction from raw text alone, with no
// modal effects and no hook bundle. It is the minimal Tagged: useful for a
// test, or a parser stage that hasn't computed modal effects yet but still
// wants sendGcode's dispatch and lifecycle tracking rather than sendLine's.
func Line(raw string) Instruction {
	return Instruction{Raw: raw}
}

// IsGcode reports whether the Instruction carries actual instruction
// content: raw text, modal effects, or a hook bundle. True for any value
// produced by Tagged or Line; false only for the zero value, which a
// submission dispatcher treats as a bare raw line.
func (i Instruction) IsGcode() bool {
	return i.Modal != nil || i.Hooks != nil || i.Raw != ""
}
