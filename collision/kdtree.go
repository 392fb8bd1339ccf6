// Package collision implements the static collision core for track and environment
// geometry: a flat polygon soup container, a serialized axis-aligned KD-tree over it,
// and the sphere and line queries vehicle physics runs every simulation tick.
//
// Both the soup and the tree are loaded from contiguous relocatable blobs whose
// internal references are stored as offsets from the blob base and resolved exactly
// once at decode time. After that everything is immutable: queries never lock, never
// allocate on the traversal path, and may run concurrently from any number of
// goroutines against the same tree/soup pair.
package collision

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/apexsim/chicane/geometry"
)

// leafAxis marks a node with no children; its start/count reference a polygon run.
const leafAxis = 3

// node is one arena entry of a KDTree. Interior nodes split space at a coordinate on
// an axis and reference their children by arena index; leaves reference a run of the
// tree's polygon index array. Every node carries the bounds of the full extent of
// every polygon beneath it, which is what queries prune on: a polygon always overhangs
// the split plane a little less than it overhangs these bounds.
type node struct {
	bounds geometry.AABB
	split  float64
	left   int32
	right  int32
	start  uint32
	count  uint32
	axis   uint8
}

func (n *node) isLeaf() bool {
	return n.axis == leafAxis
}

// Intersection describes one polygon hit produced by a query. Depth is populated by
// sphere queries and T by line queries; the surface attributes are copied from the
// soup's polygon record so most callers never touch the soup at all.
type Intersection struct {
	// PolygonIndex identifies the hit polygon within the soup.
	PolygonIndex int
	// Point is the contact point for sphere queries and the hit point for line queries.
	Point r3.Vector
	// Normal is the unit surface normal following the polygon's winding.
	Normal r3.Vector
	// Depth is how far the sphere sinks past the surface, radius minus center distance.
	Depth float64
	// T is the parametric hit distance along the segment, in [0, 1].
	T       float64
	Surface uint16
	Flags   uint16
}

// KDTree is a read-only axis-aligned binary partition over one PolygonSoup. Trees are
// built offline (BuildKDTree) and loaded at runtime from a relocatable blob
// (DecodeKDTree); either way the result is immutable and safe for unlocked concurrent
// queries. The tree holds a non-owning reference to its soup: the soup must outlive
// the tree and may back any number of trees.
type KDTree struct {
	soup      *PolygonSoup
	nodes     []node
	polyIndex []uint32
}

// Soup returns the soup this tree indexes.
func (t *KDTree) Soup() *PolygonSoup {
	return t.soup
}

// NumNodes returns the size of the node arena.
func (t *KDTree) NumNodes() int {
	return len(t.nodes)
}

// Bounds returns the bounds of every indexed polygon.
func (t *KDTree) Bounds() geometry.AABB {
	return t.nodes[0].bounds
}

// IntersectSphere invokes visit once for every polygon the sphere touches, with the
// contact point, surface normal and penetration depth populated. If visit returns
// false the traversal stops immediately. Zero invocations mean the sphere touches
// nothing; there is no error path. A subtree is skipped only when the sphere provably
// cannot reach its bounds, so a sphere sitting exactly on a partition boundary still
// descends both sides.
func (t *KDTree) IntersectSphere(sphere geometry.Sphere, visit func(Intersection) bool) {
	t.intersectSphereNode(0, sphere, visit)
}

// intersectSphereNode reports false when visit ended the traversal.
func (t *KDTree) intersectSphereNode(idx int32, sphere geometry.Sphere, visit func(Intersection) bool) bool {
	n := &t.nodes[idx]
	if !n.bounds.OverlapsSphere(sphere) {
		return true
	}
	if !n.isLeaf() {
		return t.intersectSphereNode(n.left, sphere, visit) &&
			t.intersectSphereNode(n.right, sphere, visit)
	}
	for _, polyIdx := range t.polyIndex[n.start : n.start+n.count] {
		tris, numTris := t.soup.PolygonTriangles(int(polyIdx))
		for ti := 0; ti < numTris; ti++ {
			point, depth, ok := tris[ti].IntersectSphere(sphere)
			if !ok {
				continue
			}
			poly := t.soup.Polygon(int(polyIdx))
			if !visit(Intersection{
				PolygonIndex: int(polyIdx),
				Point:        point,
				Normal:       tris[ti].Normal(),
				Depth:        depth,
				Surface:      poly.Surface,
				Flags:        poly.Flags,
			}) {
				return false
			}
			// A quad reports at most once even when both halves touch.
			break
		}
	}
	return true
}

// IntersectLine invokes visit once for every polygon the segment crosses, with the
// hit point, surface normal and parametric distance T populated. Hits arrive in
// traversal order — the near child of each split first, not globally sorted by
// distance. If visit returns false the traversal stops immediately.
func (t *KDTree) IntersectLine(seg geometry.Segment, visit func(Intersection) bool) {
	t.intersectLineNode(0, seg, visit)
}

func (t *KDTree) intersectLineNode(idx int32, seg geometry.Segment, visit func(Intersection) bool) bool {
	n := &t.nodes[idx]
	if _, hit := n.bounds.IntersectSegment(seg); !hit {
		return true
	}
	if !n.isLeaf() {
		near, far := n.left, n.right
		if axisComponent(seg.Start, n.axis) > n.split {
			near, far = far, near
		}
		return t.intersectLineNode(near, seg, visit) &&
			t.intersectLineNode(far, seg, visit)
	}
	for _, polyIdx := range t.polyIndex[n.start : n.start+n.count] {
		if hit, ok := t.segmentHitPolygon(int(polyIdx), seg); ok {
			if !visit(hit) {
				return false
			}
		}
	}
	return true
}

// IntersectLineNearest returns the single closest polygon hit along the segment,
// measured by parametric distance from its start. The boolean reports whether
// anything was hit; when it is false the returned Intersection is the zero value and
// must not be used. Unlike the callback queries this one has no mid-flight
// cancellation — it always completes its pruned traversal.
func (t *KDTree) IntersectLineNearest(seg geometry.Segment) (Intersection, bool) {
	best := Intersection{T: math.Inf(1)}
	if !t.intersectLineNearestNode(0, seg, &best) {
		return Intersection{}, false
	}
	return best, true
}

// intersectLineNearestNode reports whether this subtree improved the best hit.
func (t *KDTree) intersectLineNearestNode(idx int32, seg geometry.Segment, best *Intersection) bool {
	n := &t.nodes[idx]
	tmin, hit := n.bounds.IntersectSegment(seg)
	// A subtree entered beyond the best hit so far cannot improve on it.
	if !hit || tmin > best.T {
		return false
	}
	if !n.isLeaf() {
		near, far := n.left, n.right
		if axisComponent(seg.Start, n.axis) > n.split {
			near, far = far, near
		}
		foundNear := t.intersectLineNearestNode(near, seg, best)
		foundFar := t.intersectLineNearestNode(far, seg, best)
		return foundNear || foundFar
	}
	found := false
	for _, polyIdx := range t.polyIndex[n.start : n.start+n.count] {
		if hit, ok := t.segmentHitPolygon(int(polyIdx), seg); ok && hit.T < best.T {
			*best = hit
			found = true
		}
	}
	return found
}

// segmentHitPolygon intersects seg with one soup polygon, taking the nearer triangle
// of a quad so each polygon yields at most one hit.
func (t *KDTree) segmentHitPolygon(polyIdx int, seg geometry.Segment) (Intersection, bool) {
	tris, numTris := t.soup.PolygonTriangles(polyIdx)
	bestT := math.Inf(1)
	bestTri := -1
	for ti := 0; ti < numTris; ti++ {
		if tHit, ok := tris[ti].IntersectSegment(seg); ok && tHit < bestT {
			bestT = tHit
			bestTri = ti
		}
	}
	if bestTri < 0 {
		return Intersection{}, false
	}
	poly := t.soup.Polygon(polyIdx)
	return Intersection{
		PolygonIndex: polyIdx,
		Point:        seg.At(bestT),
		Normal:       tris[bestTri].Normal(),
		T:            bestT,
		Surface:      poly.Surface,
		Flags:        poly.Flags,
	}, true
}

// axisComponent returns the component of v on the given axis (0 = X, 1 = Y, 2 = Z).
func axisComponent(v r3.Vector, axis uint8) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
