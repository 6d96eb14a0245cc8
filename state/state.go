/*Package state holds the mirrored machine state vector: the single source
of truth for everything the controller knows about the physical device.
It is pure data with invariants; mutation is confined to the owning
controller, and readers receive deep-copied snapshots.
*/
package state

import (
	"math"

	"github.com/nasa-jpl/cncctl/errs"
)

// Units is the commanded unit system.
type Units int

const (
	// MM is metric units.
	MM Units = iota
	// Inch is imperial units.
	Inch
)

func (u Units) String() string {
	if u == Inch {
		return "in"
	}
	return "mm"
}

// Coolant is the coolant state: off, mist, flood, or both.
type Coolant int

const (
	CoolantOff    Coolant = 0
	CoolantMist   Coolant = 1
	CoolantFlood  Coolant = 2
	CoolantBoth   Coolant = 3
)

// SpindleDirection is the commanded spindle rotation direction.
type SpindleDirection int

const (
	Clockwise        SpindleDirection = 1
	CounterClockwise SpindleDirection = -1
)

// Vector is the mirrored machine state. Validate checks its invariants.
type Vector struct {
	Ready bool

	AxisLabels  []string
	UsedAxes    []bool
	HomableAxes []bool

	Mpos []float64

	// ActiveCoordSys is the index of the active work coordinate system, or
	// -1 meaning "unset" (raw machine coordinates).
	ActiveCoordSys  int
	CoordSysOffsets [][]float64

	Offset        []float64
	OffsetEnabled bool

	// StoredPositions holds exactly two stored machine positions (home
	// return slots 0 and 1).
	StoredPositions [2][]float64

	Homed []bool
	Held  bool

	Units Units
	Feed  float64

	Incremental bool
	Moving      bool

	Coolant          Coolant
	Spindle          bool
	SpindleDirection SpindleDirection
	// SpindleSpeedKnown is false when the RPM has never been reported.
	SpindleSpeedKnown bool
	SpindleSpeed      float64

	InverseFeed bool

	Line int

	Error     bool
	ErrorData *errs.Error

	ProgramRunning bool
}

// NoCoordSys is the ActiveCoordSys value meaning "unset".
const NoCoordSys = -1

// DefaultAxisLabels is the default three-axis linear layout.
var DefaultAxisLabels = []string{"x", "y", "z"}

// ResetState returns a freshly initialized Vector: three axes {x,y,z} (or
// the axes named by labels/homable, if non-empty), all zero positions,
// active coordinate system index 0 with one zero offset vector, units mm,
// no motion, no error, not ready.
//
// labels and homable come from a config.AxisConfig; passing nil/nil falls
// back to the spec's default three linear axes, all homable. A homable
// mask shorter than the axis list is padded with true; extra trailing
// entries are ignored.
func ResetState(labels []string, homable []bool) Vector {
	if len(labels) == 0 {
		labels = append([]string(nil), DefaultAxisLabels...)
	}
	n := len(labels)
	if len(homable) != n {
		full := make([]bool, n)
		for i := range full {
			full[i] = i >= len(homable) || homable[i]
		}
		homable = full
	}
	zero := make([]float64, n)
	v := Vector{
		Ready:            false,
		AxisLabels:       append([]string(nil), labels...),
		UsedAxes:         allTrue(n),
		HomableAxes:      append([]bool(nil), homable...),
		Mpos:             append([]float64(nil), zero...),
		ActiveCoordSys:   0,
		CoordSysOffsets:  [][]float64{append([]float64(nil), zero...)},
		Offset:           append([]float64(nil), zero...),
		OffsetEnabled:    false,
		StoredPositions:  [2][]float64{append([]float64(nil), zero...), append([]float64(nil), zero...)},
		Homed:            make([]bool, n),
		Held:             false,
		Units:            MM,
		Feed:             0,
		Incremental:      false,
		Moving:           false,
		Coolant:          CoolantOff,
		Spindle:          false,
		SpindleDirection: Clockwise,
		Line:             0,
		Error:            false,
		ProgramRunning:   false,
	}
	return v
}

func allTrue(n int) []bool {
	b := make([]bool, n)
	for i := range b {
		b[i] = true
	}
	return b
}

// Clone returns a deep copy of the Vector so callers cannot mutate the
// owning controller's backing arrays.
func (v Vector) Clone() Vector {
	out := v
	out.AxisLabels = append([]string(nil), v.AxisLabels...)
	out.UsedAxes = append([]bool(nil), v.UsedAxes...)
	out.HomableAxes = append([]bool(nil), v.HomableAxes...)
	out.Mpos = append([]float64(nil), v.Mpos...)
	out.CoordSysOffsets = make([][]float64, len(v.CoordSysOffsets))
	for i, row := range v.CoordSysOffsets {
		out.CoordSysOffsets[i] = append([]float64(nil), row...)
	}
	out.Offset = append([]float64(nil), v.Offset...)
	out.StoredPositions[0] = append([]float64(nil), v.StoredPositions[0]...)
	out.StoredPositions[1] = append([]float64(nil), v.StoredPositions[1]...)
	out.Homed = append([]bool(nil), v.Homed...)
	if v.ErrorData != nil {
		cp := *v.ErrorData
		out.ErrorData = &cp
	}
	return out
}

// Validate checks the Vector's invariants: slice lengths agree with the
// axis count, positions are finite, enums are in range, and error state
// is internally consistent. It returns an *errs.Error with Kind
// errs.Invalid on the first violation found.
func (v Vector) Validate() error {
	n := len(v.AxisLabels)
	if len(v.UsedAxes) != n {
		return errs.New(errs.Invalid, "usedAxes length %d != axis count %d", len(v.UsedAxes), n)
	}
	if len(v.HomableAxes) != n {
		return errs.New(errs.Invalid, "homableAxes length %d != axis count %d", len(v.HomableAxes), n)
	}
	if len(v.Mpos) != n {
		return errs.New(errs.Invalid, "mpos length %d != axis count %d", len(v.Mpos), n)
	}
	if len(v.Homed) != n {
		return errs.New(errs.Invalid, "homed length %d != axis count %d", len(v.Homed), n)
	}
	seen := make(map[string]struct{}, n)
	for _, l := range v.AxisLabels {
		if _, dup := seen[l]; dup {
			return errs.New(errs.Invalid, "duplicate axis label %q", l)
		}
		seen[l] = struct{}{}
	}
	for i, p := range v.Mpos {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return errs.New(errs.Invalid, "mpos[%d] is not finite", i)
		}
	}
	if v.ActiveCoordSys != NoCoordSys {
		if v.ActiveCoordSys < 0 || v.ActiveCoordSys >= len(v.CoordSysOffsets) {
			return errs.New(errs.Invalid, "activeCoordSys %d out of range [0,%d)", v.ActiveCoordSys, len(v.CoordSysOffsets))
		}
	}
	if len(v.Offset) != 0 && len(v.Offset) != n {
		return errs.New(errs.Invalid, "offset length %d != axis count %d", len(v.Offset), n)
	}
	for i, row := range v.CoordSysOffsets {
		if len(row) > n {
			return errs.New(errs.Invalid, "coordSysOffsets[%d] length %d exceeds axis count %d", i, len(row), n)
		}
	}
	if v.Units != MM && v.Units != Inch {
		return errs.New(errs.Invalid, "units %d is neither mm nor in", v.Units)
	}
	if v.Feed < 0 {
		return errs.New(errs.Invalid, "feed %f is negative", v.Feed)
	}
	if v.Coolant < CoolantOff || v.Coolant > CoolantBoth {
		return errs.New(errs.Invalid, "coolant %d out of range", v.Coolant)
	}
	if v.SpindleDirection != Clockwise && v.SpindleDirection != CounterClockwise {
		return errs.New(errs.Invalid, "spindleDirection %d is neither +1 nor -1", v.SpindleDirection)
	}
	if v.SpindleSpeedKnown && v.SpindleSpeed < 0 {
		return errs.New(errs.Invalid, "spindleSpeed %f is negative", v.SpindleSpeed)
	}
	if v.Error && v.Ready {
		return errs.New(errs.Invalid, "ready must be false while error is latched")
	}
	if v.Error && v.ErrorData == nil {
		return errs.New(errs.Invalid, "errorData must be present while error is latched")
	}
	if !v.Error && v.ErrorData != nil {
		return errs.New(errs.Invalid, "errorData must be absent while error is not latched")
	}
	return nil
}
