package collision

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/apexsim/chicane/geometry"
)

func TestBuildKDTreeValidation(t *testing.T) {
	soup, err := NewPolygonSoup(
		[]r3.Vector{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]Polygon{{Verts: [4]uint32{0, 1, 2, NoVertex}}},
	)
	test.That(t, err, test.ShouldBeNil)

	_, err = BuildKDTree(nil, KDTreeOptions{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "without a polygon soup")

	_, err = BuildKDTree(soup, KDTreeOptions{MaxLeafSize: -1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max leaf size")

	_, err = BuildKDTree(soup, KDTreeOptions{MaxDepth: -2})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max depth")
}

func TestBuildKDTreeShape(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	soup := randomTriangleSoup(t, r, 256)

	t.Run("defaults bound leaf size and depth", func(t *testing.T) {
		tree, err := BuildKDTree(soup, KDTreeOptions{})
		test.That(t, err, test.ShouldBeNil)
		s := tree.Stats()
		test.That(t, s.Polygons, test.ShouldEqual, 256)
		test.That(t, s.Nodes, test.ShouldEqual, tree.NumNodes())
		test.That(t, s.Leaves, test.ShouldBeGreaterThan, 1)
		test.That(t, s.LargestLeaf, test.ShouldBeLessThanOrEqualTo, DefaultMaxLeafSize)
		test.That(t, s.MaxDepth, test.ShouldBeLessThanOrEqualTo, DefaultMaxDepth)
	})

	t.Run("explicit leaf size is respected", func(t *testing.T) {
		tree, err := BuildKDTree(soup, KDTreeOptions{MaxLeafSize: 4})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tree.Stats().LargestLeaf, test.ShouldBeLessThanOrEqualTo, 4)
	})

	t.Run("depth cap wins over leaf size", func(t *testing.T) {
		tree, err := BuildKDTree(soup, KDTreeOptions{MaxDepth: 2})
		test.That(t, err, test.ShouldBeNil)
		s := tree.Stats()
		test.That(t, s.MaxDepth, test.ShouldBeLessThanOrEqualTo, 2)
		test.That(t, s.LargestLeaf, test.ShouldBeGreaterThanOrEqualTo, 64)
	})

	t.Run("every polygon lands in exactly one leaf", func(t *testing.T) {
		tree, err := BuildKDTree(soup, KDTreeOptions{})
		test.That(t, err, test.ShouldBeNil)
		// Decoding re-validates the polygon index: every soup polygon exactly once.
		_, err = DecodeKDTree(EncodeKDTree(tree), soup)
		test.That(t, err, test.ShouldBeNil)
	})
}

func TestBuildKDTreeCoincidentCentroids(t *testing.T) {
	// Ten copies of one triangle: the median cannot separate them, so the build falls
	// back to a single leaf instead of recursing forever.
	polygons := make([]Polygon, 10)
	for i := range polygons {
		polygons[i] = Polygon{Verts: [4]uint32{0, 1, 2, NoVertex}, Surface: uint16(i)}
	}
	soup, err := NewPolygonSoup(
		[]r3.Vector{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		polygons,
	)
	test.That(t, err, test.ShouldBeNil)

	tree, err := BuildKDTree(soup, KDTreeOptions{MaxLeafSize: 1})
	test.That(t, err, test.ShouldBeNil)
	s := tree.Stats()
	test.That(t, s.Nodes, test.ShouldEqual, 1)
	test.That(t, s.Leaves, test.ShouldEqual, 1)
	test.That(t, s.LargestLeaf, test.ShouldEqual, 10)
	test.That(t, s.MaxDepth, test.ShouldEqual, 0)

	// Every copy still reports.
	hits := gatherSphereHits(tree, geometry.NewSphere(r3.Vector{0.2, 0.2, 0}, 0.1))
	test.That(t, hits, test.ShouldResemble, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
}

func TestTreeStats(t *testing.T) {
	// Four stacked plates with leaf size 1 build a full binary tree of known shape.
	var vertices []r3.Vector
	var polygons []Polygon
	for i := 0; i < 4; i++ {
		z := float64(i)
		base := uint32(len(vertices))
		vertices = append(vertices,
			r3.Vector{-1, -1, z}, r3.Vector{1, -1, z}, r3.Vector{1, 1, z}, r3.Vector{-1, 1, z})
		polygons = append(polygons, Polygon{Verts: [4]uint32{base, base + 1, base + 2, base + 3}})
	}
	soup, err := NewPolygonSoup(vertices, polygons)
	test.That(t, err, test.ShouldBeNil)
	tree, err := BuildKDTree(soup, KDTreeOptions{MaxLeafSize: 1})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, tree.Stats(), test.ShouldResemble, TreeStats{
		Nodes:          7,
		Leaves:         4,
		Polygons:       4,
		MaxDepth:       2,
		LargestLeaf:    1,
		MeanLeafSize:   1,
		LeafSizeStdDev: 0,
	})
}
