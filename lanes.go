package repeatq

import (
	"fmt"

	"github.com/unixpickle/anyvec"
)

// laneRange finds the components of a packed vector which
// belong to a given lane.
func laneRange(v anyvec.Vector, lanes, lane int) (start, end int) {
	vecSize := v.Len() / lanes
	start = vecSize * lane
	return start, start + vecSize
}

// repeatLanes repeats every lane of a packed vector k
// times in a row.
func repeatLanes(v anyvec.Vector, lanes, k int) anyvec.Vector {
	if v.Len() == 0 {
		return v.Creator().MakeVector(0)
	}
	var parts []anyvec.Vector
	for i := 0; i < lanes; i++ {
		start, end := laneRange(v, lanes, i)
		row := v.Slice(start, end)
		for j := 0; j < k; j++ {
			parts = append(parts, row)
		}
	}
	return v.Creator().Concat(parts...)
}

// gatherLanes creates a packed vector whose i-th lane is
// lane sources[i] of v.
// The result has len(sources) lanes.
func gatherLanes(v anyvec.Vector, lanes int, sources []int) anyvec.Vector {
	if v.Len() == 0 {
		return v.Creator().MakeVector(0)
	}
	parts := make([]anyvec.Vector, len(sources))
	for i, src := range sources {
		start, end := laneRange(v, lanes, src)
		parts[i] = v.Slice(start, end)
	}
	return v.Creator().Concat(parts...)
}

// selectLanes copies newVec and then restores the lanes
// for which keepOld is true from oldVec.
//
// Restored lanes are bit-identical to the lanes of oldVec.
func selectLanes(newVec, oldVec anyvec.Vector, keepOld []bool) anyvec.Vector {
	if newVec.Len() != oldVec.Len() {
		panic("lane size mismatch")
	}
	res := newVec.Copy()
	if res.Len() == 0 {
		return res
	}
	for i, keep := range keepOld {
		if keep {
			start, end := laneRange(res, len(keepOld), i)
			res.Slice(start, end).Set(oldVec.Slice(start, end))
		}
	}
	return res
}

// Float64s returns the components of a vector as float64
// values.
//
// The vector's creator should use []float32 or []float64
// as its numeric type.
func Float64s(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	default:
		panic(fmt.Sprintf("unsupported anyvec.NumericList: %T", data))
	}
}

// Float64 converts a numeric to a float64.
func Float64(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	default:
		panic(fmt.Sprintf("unsupported anyvec.Numeric: %T", n))
	}
}

// MakeVector creates a vector from float64 values.
func MakeVector(c anyvec.Creator, data []float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(data))
}
