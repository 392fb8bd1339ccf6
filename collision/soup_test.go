package collision

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestNewPolygonSoup(t *testing.T) {
	vertices := []r3.Vector{
		{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0}, {0, 0, 2},
	}

	t.Run("triangles and quads", func(t *testing.T) {
		soup, err := NewPolygonSoup(vertices, []Polygon{
			{Verts: [4]uint32{0, 1, 2, 3}, Surface: 7, Flags: 1},
			{Verts: [4]uint32{0, 1, 4, NoVertex}, Surface: 2},
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, soup.NumVertices(), test.ShouldEqual, 5)
		test.That(t, soup.NumPolygons(), test.ShouldEqual, 2)
		test.That(t, soup.Polygon(0).VertexCount(), test.ShouldEqual, 4)
		test.That(t, soup.Polygon(1).VertexCount(), test.ShouldEqual, 3)
		test.That(t, soup.Polygon(0).Surface, test.ShouldEqual, 7)
		test.That(t, soup.Polygon(0).Flags, test.ShouldEqual, 1)
		test.That(t, soup.Vertex(4), test.ShouldResemble, r3.Vector{0, 0, 2})
	})

	t.Run("no vertices", func(t *testing.T) {
		_, err := NewPolygonSoup(nil, []Polygon{{Verts: [4]uint32{0, 1, 2, NoVertex}}})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "vertex")
	})

	t.Run("no polygons", func(t *testing.T) {
		_, err := NewPolygonSoup(vertices, nil)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "polygon")
	})

	t.Run("vertex index out of range", func(t *testing.T) {
		_, err := NewPolygonSoup(vertices, []Polygon{{Verts: [4]uint32{0, 1, 99, NoVertex}}})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "references vertex 99")
	})

	t.Run("quad slot out of range", func(t *testing.T) {
		_, err := NewPolygonSoup(vertices, []Polygon{{Verts: [4]uint32{0, 1, 2, 42}}})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "references vertex 42")
	})

	t.Run("unused slot marker in a used slot", func(t *testing.T) {
		// NoVertex is only meaningful in the fourth slot; anywhere else it is an
		// ordinary out-of-range index.
		_, err := NewPolygonSoup(vertices, []Polygon{{Verts: [4]uint32{0, NoVertex, 2, NoVertex}}})
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestPolygonSoupGeometry(t *testing.T) {
	soup, err := NewPolygonSoup(
		[]r3.Vector{{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0}, {0, 0, 2}},
		[]Polygon{
			{Verts: [4]uint32{0, 1, 2, 3}},
			{Verts: [4]uint32{0, 1, 4, NoVertex}},
		},
	)
	test.That(t, err, test.ShouldBeNil)

	t.Run("bounds cover every vertex", func(t *testing.T) {
		test.That(t, soup.Bounds().Min, test.ShouldResemble, r3.Vector{-1, -1, 0})
		test.That(t, soup.Bounds().Max, test.ShouldResemble, r3.Vector{1, 1, 2})
	})

	t.Run("polygon vertices", func(t *testing.T) {
		pts, n := soup.PolygonVertices(0)
		test.That(t, n, test.ShouldEqual, 4)
		test.That(t, pts[3], test.ShouldResemble, r3.Vector{-1, 1, 0})

		pts, n = soup.PolygonVertices(1)
		test.That(t, n, test.ShouldEqual, 3)
		test.That(t, pts[2], test.ShouldResemble, r3.Vector{0, 0, 2})
	})

	t.Run("quad splits along its 0-2 diagonal", func(t *testing.T) {
		tris, n := soup.PolygonTriangles(0)
		test.That(t, n, test.ShouldEqual, 2)
		test.That(t, tris[0].P0, test.ShouldResemble, r3.Vector{-1, -1, 0})
		test.That(t, tris[0].P2, test.ShouldResemble, r3.Vector{1, 1, 0})
		test.That(t, tris[1].P0, test.ShouldResemble, r3.Vector{-1, -1, 0})
		test.That(t, tris[1].P1, test.ShouldResemble, r3.Vector{1, 1, 0})
		test.That(t, tris[1].P2, test.ShouldResemble, r3.Vector{-1, 1, 0})

		// Both halves share the quad's plane and winding.
		test.That(t, tris[0].Normal().Z, test.ShouldAlmostEqual, 1, 1e-9)
		test.That(t, tris[1].Normal().Z, test.ShouldAlmostEqual, 1, 1e-9)
	})

	t.Run("triangle decomposes to itself", func(t *testing.T) {
		tris, n := soup.PolygonTriangles(1)
		test.That(t, n, test.ShouldEqual, 1)
		test.That(t, tris[0].P2, test.ShouldResemble, r3.Vector{0, 0, 2})
	})

	t.Run("polygon bounds", func(t *testing.T) {
		box := soup.PolygonBounds(1)
		test.That(t, box.Min, test.ShouldResemble, r3.Vector{-1, -1, 0})
		test.That(t, box.Max, test.ShouldResemble, r3.Vector{1, 0, 2})
	})
}

func TestIteratePolygons(t *testing.T) {
	soup, err := NewPolygonSoup(
		[]r3.Vector{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]Polygon{
			{Verts: [4]uint32{0, 1, 2, NoVertex}, Surface: 0},
			{Verts: [4]uint32{0, 1, 2, NoVertex}, Surface: 1},
			{Verts: [4]uint32{0, 1, 2, NoVertex}, Surface: 2},
		},
	)
	test.That(t, err, test.ShouldBeNil)

	t.Run("visits in index order", func(t *testing.T) {
		var seen []uint16
		soup.IteratePolygons(func(i int, p Polygon) bool {
			test.That(t, int(p.Surface), test.ShouldEqual, i)
			seen = append(seen, p.Surface)
			return true
		})
		test.That(t, seen, test.ShouldResemble, []uint16{0, 1, 2})
	})

	t.Run("stops when told", func(t *testing.T) {
		count := 0
		soup.IteratePolygons(func(int, Polygon) bool {
			count++
			return false
		})
		test.That(t, count, test.ShouldEqual, 1)
	})
}
