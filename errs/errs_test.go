package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nasa-jpl/cncctl/errs"
)

func TestNewFormatsMessage(t *testing.T) {
	e := errs.New(errs.CommError, "lost link to %s", "axis board")
	if e.Kind != errs.CommError {
		t.Errorf("expected Kind=CommError, got %v", e.Kind)
	}
	want := "comm_error: lost link to axis board"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestErrorWithoutMessageFallsBackToKind(t *testing.T) {
	e := &errs.Error{Kind: errs.LimitHit}
	if e.Error() != "limit_hit" {
		t.Errorf("Error() = %q, want %q", e.Error(), "limit_hit")
	}
}

func TestIsMatchesByKindOnly(t *testing.T) {
	a := errs.New(errs.Cancelled, "first reason")
	b := errs.New(errs.Cancelled, "second reason")
	if !a.Is(b) {
		t.Error("expected two Cancelled errors of different messages to match under Is")
	}
	c := errs.New(errs.ProbeEnd, "")
	if a.Is(c) {
		t.Error("expected different Kinds to not match under Is")
	}
}

func TestIsRejectsNonErrsError(t *testing.T) {
	e := errs.New(errs.CommError, "x")
	if e.Is(errors.New("plain")) {
		t.Error("expected Is to reject a non-*errs.Error target")
	}
}

func TestOfExtractsKind(t *testing.T) {
	e := errs.New(errs.SafetyInterlock, "door open")
	kind, ok := errs.Of(e)
	if !ok || kind != errs.SafetyInterlock {
		t.Errorf("Of() = (%v, %v), want (SafetyInterlock, true)", kind, ok)
	}
}

func TestOfFailsOnPlainError(t *testing.T) {
	if _, ok := errs.Of(fmt.Errorf("plain")); ok {
		t.Error("expected Of to report ok=false for a non-errs error")
	}
}

func TestOfUnwrapsWrappedError(t *testing.T) {
	e := errs.New(errs.ParseError, "bad frame")
	wrapped := fmt.Errorf("reading line: %w", e)
	kind, ok := errs.Of(wrapped)
	if !ok || kind != errs.ParseError {
		t.Errorf("Of(wrapped) = (%v, %v), want (ParseError, true)", kind, ok)
	}
}

func TestOfNilIsFalse(t *testing.T) {
	if _, ok := errs.Of(nil); ok {
		t.Error("expected Of(nil) to report ok=false")
	}
}

func TestLatchingKinds(t *testing.T) {
	cases := map[errs.Kind]bool{
		errs.CommError:       true,
		errs.SafetyInterlock: true,
		errs.LimitHit:        true,
		errs.MachineError:    true,
		errs.Cancelled:       false,
		errs.ProbeEnd:        false,
		errs.Unsupported:     false,
	}
	for k, want := range cases {
		if got := errs.Latching(k); got != want {
			t.Errorf("Latching(%v) = %v, want %v", k, got, want)
		}
	}
}

func TestKindStringUnknown(t *testing.T) {
	var k errs.Kind = 999
	if k.String() != "unknown" {
		t.Errorf("String() = %q, want %q", k.String(), "unknown")
	}
}
