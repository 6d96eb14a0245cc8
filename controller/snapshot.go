package controller

import (
	"github.com/nasa-jpl/cncctl/coord"
	"github.com/nasa-jpl/cncctl/errs"
	"github.com/nasa-jpl/cncctl/state"
)

// Snapshot is the read-only status schema handed to upstream consumers:
// a state.Vector plus the derived coordinate fields, so that a
// subscriber never has to re-derive Pos/MposOffset itself and risk
// seeing it out of sync with the Vector it was computed from.
type Snapshot struct {
	state.Vector

	// Pos is the work-coordinate position (mpos minus effective offsets).
	Pos []float64

	// MposOffset is the effective offset applied to derive Pos from Mpos.
	MposOffset []float64
}

// buildSnapshot derives a Snapshot from a Vector already known to satisfy
// Validate.
func buildSnapshot(v state.Vector) Snapshot {
	clone := v.Clone()
	return Snapshot{
		Vector:     clone,
		Pos:        coord.WorkPosition(clone),
		MposOffset: coord.EffectiveOffsets(clone),
	}
}

// errorSnapshot is a convenience used by Core when latching a
// controller-wide error: it stamps Ready=false, Error=true, ErrorData=e.
func errorSnapshot(v state.Vector, e *errs.Error) state.Vector {
	v.Ready = false
	v.Error = true
	v.ErrorData = e
	return v
}
