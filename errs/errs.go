/*Package errs provides the structured error taxonomy shared by the
controller contract and its backends: an enumerated Kind owned by this
package, with no global registration.
*/
package errs

import "fmt"

// Kind identifies the category of a structured controller error.
type Kind int

// The defined error kinds. CommError through LimitHit are part of the wire
// taxonomy a backend may report; Invalid is local to this module (see
// Vector.Validate) and never appears in a Snapshot's ErrorData.
const (
	// CommError is a transport failure communicating with the device.
	CommError Kind = iota

	// ParseError is a malformed message received from the device.
	ParseError

	// MachineError is a generic error reported by the device.
	MachineError

	// Cancelled marks an operation aborted by cancel/reset/stream-error fan-out.
	Cancelled

	// ProbeEnd is reported when a probe move reaches its endpoint without tripping.
	ProbeEnd

	// ProbeNotTripped is reported when the device refuses a probe operation
	// because tripping did not occur.
	ProbeNotTripped

	// ProbeInitialState is reported when the probe is already tripped on entry.
	ProbeInitialState

	// SafetyInterlock is reported when a safety door/interlock disengages.
	SafetyInterlock

	// LimitHit is reported when a limit switch engages unexpectedly, or a
	// software travel limit would be violated.
	LimitHit

	// Unsupported is reported when a backend does not implement a requested
	// verb, surfaced explicitly rather than silently no-op'd.
	Unsupported

	// Invalid marks a State Vector invariant violation. Local to this
	// module; never placed in a Snapshot's ErrorData.
	Invalid

	// Protocol marks a backend reporting lifecycle events out of order.
	// Local to this module (see lifecycle.Tracker); never placed in a
	// Snapshot's ErrorData.
	Protocol
)

var names = map[Kind]string{
	CommError:         "comm_error",
	ParseError:        "parse_error",
	MachineError:      "machine_error",
	Cancelled:         "cancelled",
	ProbeEnd:          "probe_end",
	ProbeNotTripped:   "probe_not_tripped",
	ProbeInitialState: "probe_initial_state",
	SafetyInterlock:   "safety_interlock",
	LimitHit:          "limit_hit",
	Unsupported:       "unsupported",
	Invalid:           "invalid",
	Protocol:          "protocol",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "unknown"
}

// Error is a structured controller error carrying a Kind and optional
// message/data.
type Error struct {
	Kind    Kind
	Message string
	Data    interface{}
}

// New returns an Error of the given kind with a formatted message.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is allows errors.Is(err, &errs.Error{Kind: errs.Cancelled}) style matching
// against a bare Kind wrapped in an Error by comparing Kinds; errors.As should
// be preferred when the Data payload is needed.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Of reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	if err == nil {
		return 0, false
	}
	if e, ok := err.(*Error); ok {
		return e.Kind, true
	}
	type kinder interface{ Unwrap() error }
	if u, ok := err.(kinder); ok {
		return Of(u.Unwrap())
	}
	return 0, false
}

// Latching reports whether a Kind, when it originates from the device
// rather than a single instruction, latches controller-level
// error=true. CommError, SafetyInterlock, and LimitHit
// always latch; MachineError latches unless the caller has already
// classified it as instruction-local (callers pass MachineError to
// Latching only for device-wide alarms, never for a single rejected
// command).
func Latching(k Kind) bool {
	switch k {
	case CommError, SafetyInterlock, LimitHit, MachineError:
		return true
	default:
		return false
	}
}
