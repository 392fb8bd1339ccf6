package geometry

import "github.com/golang/geo/r3"

// Segment is a finite directed line segment from Start to End.
type Segment struct {
	Start r3.Vector
	End   r3.Vector
}

// NewSegment instantiates a new Segment.
func NewSegment(start, end r3.Vector) Segment {
	return Segment{Start: start, End: end}
}

// Vector returns the displacement from Start to End.
func (s Segment) Vector() r3.Vector {
	return s.End.Sub(s.Start)
}

// At returns the point at parametric distance t along the segment, with t in [0, 1]
// mapping Start to End.
func (s Segment) At(t float64) r3.Vector {
	return s.Start.Add(s.Vector().Mul(t))
}

// Length returns the segment's length.
func (s Segment) Length() float64 {
	return s.Vector().Norm()
}
