package collision

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/apexsim/chicane/geometry"
)

// NoVertex marks the unused fourth slot of a triangular polygon.
const NoVertex = ^uint32(0)

// Polygon is one soup face, a triangle or a quad, plus the surface attributes vehicle
// physics reads off collision hits. Verts index into the soup's vertex block; a
// triangle sets Verts[3] to NoVertex.
type Polygon struct {
	Verts   [4]uint32
	Surface uint16
	Flags   uint16
}

// VertexCount returns how many of the polygon's vertex slots are used, 3 or 4.
func (p Polygon) VertexCount() int {
	if p.Verts[3] == NoVertex {
		return 3
	}
	return 4
}

// PolygonSoup is an unstructured, flat collection of independent polygons with no
// adjacency information: one block of vertex positions and one block of polygon
// records indexing into it. A soup is immutable once constructed, so any number of
// concurrent readers (including several trees over the same soup) may share it.
type PolygonSoup struct {
	vertices []r3.Vector
	polygons []Polygon
	bounds   geometry.AABB
}

// NewPolygonSoup returns a soup owning the given blocks. Every polygon must reference
// a vertex inside the vertex block; geometry that is merely degenerate (repeated or
// non-finite vertices) is accepted here and rejected polygon by polygon at query time.
func NewPolygonSoup(vertices []r3.Vector, polygons []Polygon) (*PolygonSoup, error) {
	if len(vertices) == 0 {
		return nil, errors.New("polygon soup needs at least one vertex")
	}
	if len(polygons) == 0 {
		return nil, errors.New("polygon soup needs at least one polygon")
	}
	for i, poly := range polygons {
		for s := 0; s < poly.VertexCount(); s++ {
			if poly.Verts[s] >= uint32(len(vertices)) {
				return nil, errors.Errorf("polygon %d references vertex %d but the soup has %d vertices",
					i, poly.Verts[s], len(vertices))
			}
		}
	}
	bounds := geometry.EmptyAABB()
	for _, v := range vertices {
		bounds = bounds.ExtendPoint(v)
	}
	return &PolygonSoup{vertices: vertices, polygons: polygons, bounds: bounds}, nil
}

// NumVertices returns the size of the vertex block.
func (ps *PolygonSoup) NumVertices() int {
	return len(ps.vertices)
}

// NumPolygons returns the size of the polygon block.
func (ps *PolygonSoup) NumPolygons() int {
	return len(ps.polygons)
}

// Vertex returns the vertex at index i.
func (ps *PolygonSoup) Vertex(i int) r3.Vector {
	return ps.vertices[i]
}

// Polygon returns the polygon record at index i.
func (ps *PolygonSoup) Polygon(i int) Polygon {
	return ps.polygons[i]
}

// Bounds returns the smallest axis-aligned box containing every vertex.
func (ps *PolygonSoup) Bounds() geometry.AABB {
	return ps.bounds
}

// PolygonVertices returns the corner positions of polygon i and how many are valid,
// 3 or 4.
func (ps *PolygonSoup) PolygonVertices(i int) ([4]r3.Vector, int) {
	poly := ps.polygons[i]
	n := poly.VertexCount()
	var pts [4]r3.Vector
	for s := 0; s < n; s++ {
		pts[s] = ps.vertices[poly.Verts[s]]
	}
	return pts, n
}

// PolygonTriangles decomposes polygon i into triangles, splitting a quad along its
// 0-2 diagonal. Returns the number of valid entries, 1 or 2.
func (ps *PolygonSoup) PolygonTriangles(i int) ([2]geometry.Triangle, int) {
	pts, n := ps.PolygonVertices(i)
	var tris [2]geometry.Triangle
	tris[0] = geometry.NewTriangle(pts[0], pts[1], pts[2])
	if n == 3 {
		return tris, 1
	}
	tris[1] = geometry.NewTriangle(pts[0], pts[2], pts[3])
	return tris, 2
}

// PolygonBounds returns the smallest box containing polygon i.
func (ps *PolygonSoup) PolygonBounds(i int) geometry.AABB {
	pts, n := ps.PolygonVertices(i)
	return geometry.AABBFromPoints(pts[:n]...)
}

// IteratePolygons visits every polygon in index order. If fn returns false,
// iteration stops.
func (ps *PolygonSoup) IteratePolygons(fn func(i int, p Polygon) bool) {
	for i, p := range ps.polygons {
		if !fn(i, p) {
			return
		}
	}
}
