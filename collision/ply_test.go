package collision

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

const plyFixture = `ply
format ascii 1.0
comment track mesh fixture
element vertex 5
property float x
property float y
property float z
element face 5
property list uchar int vertex_indices
property int material_index
end_header
-1 -1 0
1 -1 0
1 1 0
-1 1 0
0 0 2
4 0 1 2 3 7
3 0 1 4 2
5 0 1 2 3 4 1
3 0 1 9 0
3 0 -1 2 0
`

func TestNewPolygonSoupFromPLY(t *testing.T) {
	logger := golog.NewTestLogger(t)
	soup, err := NewPolygonSoupFromPLY(strings.NewReader(plyFixture), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, soup.NumVertices(), test.ShouldEqual, 5)
	test.That(t, soup.Vertex(4), test.ShouldResemble, r3.Vector{0, 0, 2})

	// Quad, triangle, and a three-triangle fan survive; the out-of-range and negative
	// reference faces are dropped.
	test.That(t, soup.NumPolygons(), test.ShouldEqual, 5)

	t.Run("quad with material", func(t *testing.T) {
		test.That(t, soup.Polygon(0), test.ShouldResemble,
			Polygon{Verts: [4]uint32{0, 1, 2, 3}, Surface: 7})
	})

	t.Run("triangle with material", func(t *testing.T) {
		test.That(t, soup.Polygon(1), test.ShouldResemble,
			Polygon{Verts: [4]uint32{0, 1, 4, NoVertex}, Surface: 2})
	})

	t.Run("five corner face fan-triangulates", func(t *testing.T) {
		test.That(t, soup.Polygon(2), test.ShouldResemble,
			Polygon{Verts: [4]uint32{0, 1, 2, NoVertex}, Surface: 1})
		test.That(t, soup.Polygon(3), test.ShouldResemble,
			Polygon{Verts: [4]uint32{0, 2, 3, NoVertex}, Surface: 1})
		test.That(t, soup.Polygon(4), test.ShouldResemble,
			Polygon{Verts: [4]uint32{0, 3, 4, NoVertex}, Surface: 1})
	})
}

func TestNewPolygonSoupFromPLYNoGeometry(t *testing.T) {
	logger := golog.NewTestLogger(t)

	vertexOnly := `ply
format ascii 1.0
element vertex 3
property float x
property float y
property float z
end_header
0 0 0
1 0 0
0 1 0
`
	_, err := NewPolygonSoupFromPLY(strings.NewReader(vertexOnly), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "at least one polygon")
}

func TestNewPolygonSoupFromPLYMissingProperty(t *testing.T) {
	logger := golog.NewTestLogger(t)

	flat := `ply
format ascii 1.0
element vertex 1
property float x
property float y
end_header
0 0
`
	_, err := NewPolygonSoupFromPLY(strings.NewReader(flat), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "missing an x, y or z property")
}

func TestNewPolygonSoupFromPLYFile(t *testing.T) {
	logger := golog.NewTestLogger(t)
	fn := filepath.Join(t.TempDir(), "track.ply")
	test.That(t, os.WriteFile(fn, []byte(plyFixture), 0o600), test.ShouldBeNil)

	soup, err := NewPolygonSoupFromPLYFile(fn, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, soup.NumPolygons(), test.ShouldEqual, 5)

	_, err = NewPolygonSoupFromPLYFile(filepath.Join(t.TempDir(), "missing.ply"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}
