package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Triangle is three vertices wound counterclockwise around the face normal.
type Triangle struct {
	P0 r3.Vector
	P1 r3.Vector
	P2 r3.Vector
}

// NewTriangle instantiates a new Triangle.
func NewTriangle(p0, p1, p2 r3.Vector) Triangle {
	return Triangle{P0: p0, P1: p1, P2: p2}
}

// Points returns the vertices of the triangle.
func (t Triangle) Points() []r3.Vector {
	return []r3.Vector{t.P0, t.P1, t.P2}
}

// Normal returns the unit normal of the triangle's plane following the right-hand rule
// around P0→P1→P2. Degenerate triangles return the zero vector.
func (t Triangle) Normal() r3.Vector {
	n := t.P1.Sub(t.P0).Cross(t.P2.Sub(t.P0))
	norm := n.Norm()
	if !(norm > floatEpsilon) {
		return r3.Vector{}
	}
	return n.Mul(1 / norm)
}

// Centroid returns the mean of the triangle's vertices.
func (t Triangle) Centroid() r3.Vector {
	return t.P0.Add(t.P1).Add(t.P2).Mul(1.0 / 3.0)
}

// Area returns the triangle's area.
func (t Triangle) Area() float64 {
	return t.P1.Sub(t.P0).Cross(t.P2.Sub(t.P0)).Norm() / 2
}

// Bounds returns the smallest box containing the triangle.
func (t Triangle) Bounds() AABB {
	return AABBFromPoints(t.P0, t.P1, t.P2)
}

// ClosestInsidePoint returns the closest point on the triangle to the given point IF
// AND ONLY IF the query point's projection overlaps the triangle; otherwise the
// returned point is not meaningful and the bool is false. To visualize this: if one
// draws a tetrahedron using the triangle and the query point, all angles from the
// triangle to the query point must be <= 90 degrees.
func (t Triangle) ClosestInsidePoint(point r3.Vector) (r3.Vector, bool) {
	eps := 1e-6

	// Parametrize the triangle s.t. a point inside the triangle is
	// Q = P0 + u * e0 + v * e1, when 0 <= u <= 1, 0 <= v <= 1, and
	// 0 <= u + v <= 1. Let e0 = (P1 - P0) and e1 = (P2 - P0).
	// We analytically minimize the distance between the point and Q.
	e0 := t.P1.Sub(t.P0)
	e1 := t.P2.Sub(t.P0)
	a := e0.Norm2()
	b := e0.Dot(e1)
	c := e1.Norm2()
	d := point.Sub(t.P0)
	// The determinant is 0 only if the angle between e1 and e0 is 0
	// (i.e. the triangle has overlapping lines).
	det := (a*c - b*b)
	u := (c*e0.Dot(d) - b*e1.Dot(d)) / det
	v := (-b*e0.Dot(d) + a*e1.Dot(d)) / det
	inside := (0 <= u+eps) && (u <= 1+eps) && (0 <= v+eps) && (v <= 1+eps) && (u+v <= 1+eps)
	return t.P0.Add(e0.Mul(u)).Add(e1.Mul(v)), inside
}

// ClosestPointToPoint returns the closest point on the triangle to the given point.
func (t Triangle) ClosestPointToPoint(point r3.Vector) r3.Vector {
	closestPtInside, inside := t.ClosestInsidePoint(point)
	if inside {
		return closestPtInside
	}

	// If the closest point is outside the triangle, it must be on an edge, so we
	// check each triangle edge for a closest point to the point.
	closestPt := ClosestPointOnSegment(t.P0, t.P1, point)
	bestDist := point.Sub(closestPt).Norm2()

	newPt := ClosestPointOnSegment(t.P1, t.P2, point)
	if newDist := point.Sub(newPt).Norm2(); newDist < bestDist {
		closestPt = newPt
		bestDist = newDist
	}

	newPt = ClosestPointOnSegment(t.P2, t.P0, point)
	if newDist := point.Sub(newPt).Norm2(); newDist < bestDist {
		return newPt
	}
	return closestPt
}

// IntersectSphere returns the closest point of contact and the penetration depth
// (radius minus center distance) when the sphere touches the triangle. Degenerate
// triangles and NaN coordinates report no contact: every acceptance condition is
// written so a NaN comparison fails toward a miss.
func (t Triangle) IntersectSphere(s Sphere) (r3.Vector, float64, bool) {
	cross := t.P1.Sub(t.P0).Cross(t.P2.Sub(t.P0))
	if !(cross.Norm2() > floatEpsilon*floatEpsilon) {
		return r3.Vector{}, 0, false
	}
	pt := t.ClosestPointToPoint(s.Center)
	dist2 := s.Center.Sub(pt).Norm2()
	if !(dist2 <= s.Radius*s.Radius) {
		return r3.Vector{}, 0, false
	}
	return pt, s.Radius - math.Sqrt(dist2), true
}

// IntersectSegment returns the parametric distance in [0, 1] along seg at which it
// crosses the triangle. The test is double-sided (a hit from either face reports) and
// uses the Möller–Trumbore algorithm. Parallel segments, degenerate triangles and NaN
// coordinates report no intersection.
// Reference: https://en.wikipedia.org/wiki/M%C3%B6ller%E2%80%93Trumbore_intersection_algorithm
func (t Triangle) IntersectSegment(seg Segment) (float64, bool) {
	dir := seg.Vector()
	e0 := t.P1.Sub(t.P0)
	e1 := t.P2.Sub(t.P0)

	pvec := dir.Cross(e1)
	det := e0.Dot(pvec)
	if !(math.Abs(det) > floatEpsilon) {
		return 0, false
	}
	invDet := 1 / det

	tvec := seg.Start.Sub(t.P0)
	u := tvec.Dot(pvec) * invDet
	if !(u >= -floatEpsilon && u <= 1+floatEpsilon) {
		return 0, false
	}

	qvec := tvec.Cross(e0)
	v := dir.Dot(qvec) * invDet
	if !(v >= -floatEpsilon && u+v <= 1+floatEpsilon) {
		return 0, false
	}

	tHit := e1.Dot(qvec) * invDet
	if !(tHit >= 0 && tHit <= 1) {
		return 0, false
	}
	return tHit, true
}
