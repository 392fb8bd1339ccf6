package collision

import (
	"math"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/apexsim/chicane/geometry"
)

// Default build limits. Eight polygons per leaf keeps the per-leaf test loop short
// without exploding the node count; depth 32 is unreachable for any sane track mesh
// and only exists to bound pathological inputs.
const (
	DefaultMaxLeafSize = 8
	DefaultMaxDepth    = 32
)

// KDTreeOptions configures the offline tree build. Zero values take the defaults
// above; a nil Logger disables build logging.
type KDTreeOptions struct {
	// MaxLeafSize is the polygon count at or below which a node becomes a leaf.
	MaxLeafSize int
	// MaxDepth is the most splits allowed along any root-to-leaf path.
	MaxDepth int
	Logger   golog.Logger
}

// BuildKDTree constructs the tree over every polygon of the soup. This is the offline
// half of the system: cook-time tooling builds here and serializes with EncodeKDTree,
// the runtime loads the blob with DecodeKDTree and never builds. The returned tree is
// immutable and ready to query.
//
// Nodes split the longest axis of their polygons' centroid spread at the median
// centroid, so every polygon lands in exactly one leaf and no leaf run ever repeats a
// polygon. Node bounds are grown to the polygons' full extent, which is what keeps
// overhanging geometry reachable from both sides of a split.
func BuildKDTree(soup *PolygonSoup, opts KDTreeOptions) (*KDTree, error) {
	if soup == nil {
		return nil, errors.New("cannot build a collision tree without a polygon soup")
	}
	if opts.MaxLeafSize < 0 {
		return nil, errors.Errorf("invalid max leaf size %d", opts.MaxLeafSize)
	}
	if opts.MaxDepth < 0 {
		return nil, errors.Errorf("invalid max depth %d", opts.MaxDepth)
	}
	if opts.MaxLeafSize == 0 {
		opts.MaxLeafSize = DefaultMaxLeafSize
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	b := &treeBuilder{
		soup:        soup,
		maxLeafSize: opts.MaxLeafSize,
		maxDepth:    opts.MaxDepth,
		polyBounds:  make([]geometry.AABB, soup.NumPolygons()),
		centroids:   make([]r3.Vector, soup.NumPolygons()),
		nodes:       make([]node, 0, 2*soup.NumPolygons()/opts.MaxLeafSize+1),
		index:       make([]uint32, 0, soup.NumPolygons()),
	}
	order := make([]uint32, soup.NumPolygons())
	for i := range order {
		order[i] = uint32(i)
		b.polyBounds[i] = soup.PolygonBounds(i)
		b.centroids[i] = polygonCentroid(soup, i)
	}
	b.build(order, 0)

	tree := &KDTree{soup: soup, nodes: b.nodes, polyIndex: b.index}
	if opts.Logger != nil {
		s := tree.Stats()
		opts.Logger.Debugf("built collision tree over %d polygons: %d nodes, %d leaves, depth %d, mean leaf %.1f",
			s.Polygons, s.Nodes, s.Leaves, s.MaxDepth, s.MeanLeafSize)
	}
	return tree, nil
}

// treeBuilder holds the per-build scratch state. Precomputing every polygon's bounds
// and centroid once keeps the recursion from re-walking vertices at each level.
type treeBuilder struct {
	soup        *PolygonSoup
	maxLeafSize int
	maxDepth    int
	polyBounds  []geometry.AABB
	centroids   []r3.Vector
	nodes       []node
	index       []uint32
}

// build emits the node covering polys into the arena and returns its index. The node
// is reserved before its children are built, so a child's arena index is always
// strictly greater than its parent's; DecodeKDTree relies on that ordering.
func (b *treeBuilder) build(polys []uint32, depth int) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{})

	// Full polygon extent, not centroid extent. Non-finite polygons are carried in
	// the leaf runs (they can never pass an intersection test) but must not poison
	// the bounds their healthy neighbors are found through.
	bounds := geometry.EmptyAABB()
	for _, pi := range polys {
		if pb := b.polyBounds[pi]; pb.IsFinite() {
			bounds = bounds.Extend(pb)
		}
	}

	if len(polys) <= b.maxLeafSize || depth >= b.maxDepth {
		b.makeLeaf(idx, bounds, polys)
		return idx
	}
	axis, split, ok := b.chooseSplit(polys)
	if !ok {
		b.makeLeaf(idx, bounds, polys)
		return idx
	}
	mid := b.partition(polys, axis, split)
	if mid == 0 || mid == len(polys) {
		// The median failed to separate (coincident centroids); splitting further
		// cannot help.
		b.makeLeaf(idx, bounds, polys)
		return idx
	}

	left := b.build(polys[:mid], depth+1)
	right := b.build(polys[mid:], depth+1)
	b.nodes[idx] = node{bounds: bounds, split: split, axis: uint8(axis), left: left, right: right}
	return idx
}

func (b *treeBuilder) makeLeaf(idx int32, bounds geometry.AABB, polys []uint32) {
	start := uint32(len(b.index))
	b.index = append(b.index, polys...)
	b.nodes[idx] = node{bounds: bounds, axis: leafAxis, start: start, count: uint32(len(polys))}
}

// chooseSplit picks the longest axis of the centroid spread and the median centroid
// on it. Polygons with a non-finite centroid are left out of the choice; ok is false
// when no finite centroid remains to split on.
func (b *treeBuilder) chooseSplit(polys []uint32) (int, float64, bool) {
	centroidBounds := geometry.EmptyAABB()
	for _, pi := range polys {
		if c := b.centroids[pi]; geometry.VectorIsFinite(c) {
			centroidBounds = centroidBounds.ExtendPoint(c)
		}
	}
	if !centroidBounds.IsFinite() {
		return 0, 0, false
	}
	axis := centroidBounds.LongestAxis()

	vals := make([]float64, 0, len(polys))
	for _, pi := range polys {
		if v := axisComponent(b.centroids[pi], uint8(axis)); !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	sort.Float64s(vals)
	return axis, stat.Quantile(0.5, stat.Empirical, vals, nil), true
}

// partition reorders polys so centroids at or below the split come first, and returns
// the boundary. NaN centroids compare false and land on the right, so they still
// reach exactly one leaf.
func (b *treeBuilder) partition(polys []uint32, axis int, split float64) int {
	mid := 0
	for i, pi := range polys {
		if axisComponent(b.centroids[pi], uint8(axis)) <= split {
			polys[i], polys[mid] = polys[mid], polys[i]
			mid++
		}
	}
	return mid
}

// polygonCentroid returns the vertex mean of polygon i, the point the builder
// partitions on.
func polygonCentroid(soup *PolygonSoup, i int) r3.Vector {
	pts, n := soup.PolygonVertices(i)
	sum := r3.Vector{}
	for s := 0; s < n; s++ {
		sum = sum.Add(pts[s])
	}
	return sum.Mul(1 / float64(n))
}

// TreeStats summarizes a tree's shape for build logging and inspection tooling.
type TreeStats struct {
	Nodes       int
	Leaves      int
	Polygons    int
	MaxDepth    int
	LargestLeaf int
	// MeanLeafSize and LeafSizeStdDev describe how evenly polygons spread across
	// leaves; a large deviation usually means clumped source geometry.
	MeanLeafSize   float64
	LeafSizeStdDev float64
}

// Stats walks the tree and returns its shape summary.
func (t *KDTree) Stats() TreeStats {
	s := TreeStats{Nodes: len(t.nodes), Polygons: len(t.polyIndex)}
	var leafSizes []float64
	var walk func(idx int32, depth int)
	walk = func(idx int32, depth int) {
		if depth > s.MaxDepth {
			s.MaxDepth = depth
		}
		n := &t.nodes[idx]
		if !n.isLeaf() {
			walk(n.left, depth+1)
			walk(n.right, depth+1)
			return
		}
		s.Leaves++
		leafSizes = append(leafSizes, float64(n.count))
		if int(n.count) > s.LargestLeaf {
			s.LargestLeaf = int(n.count)
		}
	}
	walk(0, 0)
	s.MeanLeafSize, s.LeafSizeStdDev = stat.MeanStdDev(leafSizes, nil)
	return s
}
