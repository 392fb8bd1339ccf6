// Package geometry provides the primitive shapes and closed-form intersection math the
// collision core is built on.
package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// AABB is an axis-aligned box described by its minimum and maximum corners.
type AABB struct {
	Min r3.Vector
	Max r3.Vector
}

// NewAABB instantiates a new AABB from its two extreme corners.
func NewAABB(min, max r3.Vector) AABB {
	return AABB{Min: min, Max: max}
}

// EmptyAABB returns an inverted box containing nothing; extending it with the first
// point or box collapses it onto that operand.
func EmptyAABB() AABB {
	return AABB{
		Min: r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
}

// AABBFromPoints returns the smallest box containing all the given points.
func AABBFromPoints(pts ...r3.Vector) AABB {
	box := EmptyAABB()
	for _, pt := range pts {
		box = box.ExtendPoint(pt)
	}
	return box
}

// ExtendPoint returns the box grown to contain pt.
func (b AABB) ExtendPoint(pt r3.Vector) AABB {
	return AABB{
		Min: r3.Vector{X: math.Min(b.Min.X, pt.X), Y: math.Min(b.Min.Y, pt.Y), Z: math.Min(b.Min.Z, pt.Z)},
		Max: r3.Vector{X: math.Max(b.Max.X, pt.X), Y: math.Max(b.Max.Y, pt.Y), Z: math.Max(b.Max.Z, pt.Z)},
	}
}

// Extend returns the union of the two boxes.
func (b AABB) Extend(other AABB) AABB {
	return b.ExtendPoint(other.Min).ExtendPoint(other.Max)
}

// Center returns the center point of the box.
func (b AABB) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the box extent along each axis.
func (b AABB) Size() r3.Vector {
	return b.Max.Sub(b.Min)
}

// LongestAxis returns the axis (0 = X, 1 = Y, 2 = Z) along which the box is largest.
func (b AABB) LongestAxis() int {
	size := b.Size()
	axis := 0
	longest := size.X
	if size.Y > longest {
		axis, longest = 1, size.Y
	}
	if size.Z > longest {
		axis = 2
	}
	return axis
}

// IsFinite reports whether both corners are finite, i.e. the box actually bounds
// something. An empty box and any box touched by NaN or infinite geometry are not
// finite.
func (b AABB) IsFinite() bool {
	return VectorIsFinite(b.Min) && VectorIsFinite(b.Max)
}

// Contains reports whether pt lies inside or on the boundary of the box.
func (b AABB) Contains(pt r3.Vector) bool {
	return pt.X >= b.Min.X && pt.X <= b.Max.X &&
		pt.Y >= b.Min.Y && pt.Y <= b.Max.Y &&
		pt.Z >= b.Min.Z && pt.Z <= b.Max.Z
}

// Overlaps reports whether the two boxes share any space. Boxes touching only at a
// face, edge or corner still overlap.
func (b AABB) Overlaps(other AABB) bool {
	return b.Min.X <= other.Max.X && b.Max.X >= other.Min.X &&
		b.Min.Y <= other.Max.Y && b.Max.Y >= other.Min.Y &&
		b.Min.Z <= other.Max.Z && b.Max.Z >= other.Min.Z
}

// ClosestPoint returns the point on or inside the box closest to pt.
// Reference: https://github.com/gszauer/GamePhysicsCookbook/blob/master/Code/Geometry3D.cpp#L165
func (b AABB) ClosestPoint(pt r3.Vector) r3.Vector {
	return r3.Vector{
		X: clamp(pt.X, b.Min.X, b.Max.X),
		Y: clamp(pt.Y, b.Min.Y, b.Max.Y),
		Z: clamp(pt.Z, b.Min.Z, b.Max.Z),
	}
}

// DistanceToPoint returns the distance from pt to the box, zero for points inside.
func (b AABB) DistanceToPoint(pt r3.Vector) float64 {
	return b.ClosestPoint(pt).Sub(pt).Norm()
}

// OverlapsSphere reports whether the sphere touches the box. A sphere tangent to a
// face counts as touching.
func (b AABB) OverlapsSphere(s Sphere) bool {
	return b.ClosestPoint(s.Center).Sub(s.Center).Norm2() <= s.Radius*s.Radius
}

// IntersectSegment clips seg against the box with the slab method and returns the
// parametric distance in [0, 1] at which the segment enters it. A segment starting
// inside the box enters at 0. The test is conservative: touching a face counts as a
// hit, and NaN coordinates resolve to a hit rather than risking a false miss.
// Reference: https://education.siggraph.org/static/HyperGraph/raytrace/rtinter3.htm
func (b AABB) IntersectSegment(seg Segment) (float64, bool) {
	tmin, tmax := 0.0, 1.0
	dir := seg.End.Sub(seg.Start)

	for axis := 0; axis < 3; axis++ {
		origin := axisComponent(seg.Start, axis)
		delta := axisComponent(dir, axis)
		lo := axisComponent(b.Min, axis)
		hi := axisComponent(b.Max, axis)

		if math.Abs(delta) < floatEpsilon {
			// Parallel to this slab: the segment must already lie within it.
			if !(origin >= lo && origin <= hi) {
				return 0, false
			}
			continue
		}
		t1 := (lo - origin) / delta
		t2 := (hi - origin) / delta
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if !(tmin <= tmax) {
			return 0, false
		}
	}
	return tmin, true
}
