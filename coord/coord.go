/*Package coord derives work-coordinate positions from a state.Vector.
None of these functions mutate their input or carry any state of their
own.
*/
package coord

import "github.com/nasa-jpl/cncctl/state"

// EffectiveOffsets returns a vector of length len(v.AxisLabels). It starts
// at zero, adds v.CoordSysOffsets[v.ActiveCoordSys] componentwise (missing
// trailing components treated as zero) when a coordinate system is active,
// then adds v.Offset componentwise when v.OffsetEnabled is true.
func EffectiveOffsets(v state.Vector) []float64 {
	n := len(v.AxisLabels)
	out := make([]float64, n)

	if v.ActiveCoordSys != state.NoCoordSys && v.ActiveCoordSys >= 0 && v.ActiveCoordSys < len(v.CoordSysOffsets) {
		row := v.CoordSysOffsets[v.ActiveCoordSys]
		for i := 0; i < n && i < len(row); i++ {
			out[i] += row[i]
		}
	}

	if v.OffsetEnabled {
		for i := 0; i < n && i < len(v.Offset); i++ {
			out[i] += v.Offset[i]
		}
	}

	return out
}

// WorkPosition returns mpos[i] - effectiveOffsets[i] for every axis. Its
// length equals len(v.Mpos).
func WorkPosition(v state.Vector) []float64 {
	offsets := EffectiveOffsets(v)
	out := make([]float64, len(v.Mpos))
	for i := range v.Mpos {
		var off float64
		if i < len(offsets) {
			off = offsets[i]
		}
		out[i] = v.Mpos[i] - off
	}
	return out
}

// UsedAxisIndices enumerates the indices of axes flagged as used, in axis
// order.
func UsedAxisIndices(v state.Vector) []int {
	var out []int
	for i, used := range v.UsedAxes {
		if used {
			out = append(out, i)
		}
	}
	return out
}

// UsedAxisLabels enumerates the labels of axes flagged as used, in axis
// order.
func UsedAxisLabels(v state.Vector) []string {
	var out []string
	for i, used := range v.UsedAxes {
		if used && i < len(v.AxisLabels) {
			out = append(out, v.AxisLabels[i])
		}
	}
	return out
}
