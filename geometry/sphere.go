package geometry

import "github.com/golang/geo/r3"

// Sphere is a center point and radius.
type Sphere struct {
	Center r3.Vector
	Radius float64
}

// NewSphere instantiates a new Sphere.
func NewSphere(center r3.Vector, radius float64) Sphere {
	return Sphere{Center: center, Radius: radius}
}

// Contains reports whether pt lies inside or on the sphere.
func (s Sphere) Contains(pt r3.Vector) bool {
	return pt.Sub(s.Center).Norm2() <= s.Radius*s.Radius
}
