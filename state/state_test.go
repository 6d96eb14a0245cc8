package state_test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nasa-jpl/cncctl/errs"
	"github.com/nasa-jpl/cncctl/state"
)

func TestResetStateDefaults(t *testing.T) {
	v := state.ResetState(nil, nil)
	if v.Ready {
		t.Error("expected ready=false on reset")
	}
	if diff := cmp.Diff(state.DefaultAxisLabels, v.AxisLabels); diff != "" {
		t.Errorf("axis labels mismatch (-want +got):\n%s", diff)
	}
	if len(v.Mpos) != 3 || v.Mpos[0] != 0 || v.Mpos[1] != 0 || v.Mpos[2] != 0 {
		t.Errorf("expected zero mpos, got %v", v.Mpos)
	}
	if v.ActiveCoordSys != 0 {
		t.Errorf("expected activeCoordSys=0, got %d", v.ActiveCoordSys)
	}
	if len(v.CoordSysOffsets) != 1 {
		t.Errorf("expected one coord system offset row, got %d", len(v.CoordSysOffsets))
	}
	if v.Units != state.MM {
		t.Errorf("expected mm units, got %v", v.Units)
	}
	if v.Moving || v.Error {
		t.Error("expected moving=false, error=false on reset")
	}
}

func TestResetStateIsIdempotent(t *testing.T) {
	a := state.ResetState(nil, nil)
	b := state.ResetState(nil, nil)
	if diff := cmp.Diff(a, b, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("two resets should be equal (-first +second):\n%s", diff)
	}
}

func TestResetStateHonorsCustomAxes(t *testing.T) {
	v := state.ResetState([]string{"x", "y", "a"}, []bool{true, true, false})
	if diff := cmp.Diff([]string{"x", "y", "a"}, v.AxisLabels); diff != "" {
		t.Errorf("axis labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true, true, false}, v.HomableAxes); diff != "" {
		t.Errorf("homable mask mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	v := state.ResetState(nil, nil)
	clone := v.Clone()
	clone.Mpos[0] = 99
	clone.AxisLabels[0] = "q"
	if v.Mpos[0] == 99 {
		t.Error("mutating a clone's Mpos slice mutated the original")
	}
	if v.AxisLabels[0] == "q" {
		t.Error("mutating a clone's AxisLabels slice mutated the original")
	}
}

func TestValidateDetectsLengthMismatch(t *testing.T) {
	v := state.ResetState(nil, nil)
	v.Mpos = append(v.Mpos, 0)
	if err := v.Validate(); err == nil {
		t.Error("expected a length-mismatch invariant violation")
	} else if kind, ok := errs.Of(err); !ok || kind != errs.Invalid {
		t.Errorf("expected errs.Invalid, got %v", err)
	}
}

func TestValidateRejectsNonFiniteMpos(t *testing.T) {
	v := state.ResetState(nil, nil)
	v.Mpos[0] = math.NaN()
	if err := v.Validate(); err == nil {
		t.Error("expected NaN mpos component to violate invariants")
	}
}

func TestValidateRequiresReadyFalseWhenErrored(t *testing.T) {
	v := state.ResetState(nil, nil)
	v.Error = true
	v.Ready = true
	v.ErrorData = &errs.Error{Kind: errs.CommError}
	if err := v.Validate(); err == nil {
		t.Error("expected ready=true with error=true to violate invariants")
	}
}

func TestValidateRequiresErrorDataWhenErrored(t *testing.T) {
	v := state.ResetState(nil, nil)
	v.Error = true
	if err := v.Validate(); err == nil {
		t.Error("expected error=true with nil errorData to violate invariants")
	}
}

func TestValidateRejectsOutOfRangeActiveCoordSys(t *testing.T) {
	v := state.ResetState(nil, nil)
	v.ActiveCoordSys = 5
	if err := v.Validate(); err == nil {
		t.Error("expected out-of-range activeCoordSys to violate invariants")
	}
}

func TestValidateAcceptsUnsetActiveCoordSys(t *testing.T) {
	v := state.ResetState(nil, nil)
	v.ActiveCoordSys = state.NoCoordSys
	if err := v.Validate(); err != nil {
		t.Errorf("expected NoCoordSys to be valid, got %v", err)
	}
}
