package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// floatEpsilon is the tolerance used when comparing floats in this package.
const floatEpsilon = 1e-8

// ClosestPointOnSegment returns the closest point to pt on the segment from start to end.
// Reference: https://github.com/gszauer/GamePhysicsCookbook/blob/master/Code/Geometry3D.cpp#L228
func ClosestPointOnSegment(start, end, pt r3.Vector) r3.Vector {
	dir := end.Sub(start)
	length2 := dir.Norm2()
	if !(length2 > floatEpsilon*floatEpsilon) {
		return start
	}
	t := pt.Sub(start).Dot(dir) / length2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return start.Add(dir.Mul(t))
}

// VectorIsFinite reports whether every component of v is a finite number.
func VectorIsFinite(v r3.Vector) bool {
	finite := func(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

// axisComponent returns the component of v on the given axis (0 = X, 1 = Y, 2 = Z).
func axisComponent(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
