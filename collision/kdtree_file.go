package collision

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/apexsim/chicane/geometry"
)

// A tree blob is one contiguous little-endian block: a fixed header followed by a
// node section and a polygon index section, both referenced by offsets from the blob
// base. The header also carries the world bounds of the whole tree so tools can
// report extent without walking nodes; decoding takes the authoritative per-node
// bounds from the node records.
const (
	treeMagic   = 'C'<<24 | 'K'<<16 | 'D'<<8 | 'T'
	treeVersion = 1

	treeHeaderSize  = 52
	nodeRecordSize  = 48 // bounds 6 float32, split float32, 4 uint32, axis + pad
	indexRecordSize = 4
)

// DecodeKDTree reconstructs a tree from its serialized blob and binds it to the soup
// it was built over. Section offsets are resolved against the blob base exactly once,
// here. The node arena is validated structurally before any query can run: children
// must follow their parent, leaf runs must stay inside the index section, and the
// index must reference every soup polygon exactly once.
func DecodeKDTree(blob []byte, soup *PolygonSoup) (*KDTree, error) {
	if soup == nil {
		return nil, errors.New("collision tree requires the polygon soup it was built over")
	}
	if len(blob) < treeHeaderSize {
		return nil, errors.Errorf("collision tree blob too short: %d bytes", len(blob))
	}
	if magic := binary.LittleEndian.Uint32(blob[0:]); magic != treeMagic {
		return nil, errors.Errorf("bad collision tree magic 0x%08x", magic)
	}
	if version := binary.LittleEndian.Uint32(blob[4:]); version != treeVersion {
		return nil, errors.Errorf("unsupported collision tree version %d", version)
	}
	nodeCount := binary.LittleEndian.Uint32(blob[8:])
	indexCount := binary.LittleEndian.Uint32(blob[12:])
	polygonCount := binary.LittleEndian.Uint32(blob[16:])
	nodeOff := binary.LittleEndian.Uint32(blob[44:])
	indexOff := binary.LittleEndian.Uint32(blob[48:])

	if nodeCount == 0 {
		return nil, errors.New("collision tree has no nodes")
	}
	if polygonCount != uint32(soup.NumPolygons()) {
		return nil, errors.Errorf("collision tree indexes %d polygons but the soup holds %d",
			polygonCount, soup.NumPolygons())
	}
	if indexCount != polygonCount {
		return nil, errors.Errorf("collision tree index holds %d entries for %d polygons",
			indexCount, polygonCount)
	}

	nodeBlock, err := resolveSection(blob, nodeOff, nodeCount, nodeRecordSize, "node")
	if err != nil {
		return nil, err
	}
	indexBlock, err := resolveSection(blob, indexOff, indexCount, indexRecordSize, "polygon index")
	if err != nil {
		return nil, err
	}

	nodes := make([]node, nodeCount)
	for i := range nodes {
		rec := nodeBlock[i*nodeRecordSize:]
		nodes[i] = node{
			bounds: geometry.AABB{
				Min: r3.Vector{X: wireFloat(rec[0:]), Y: wireFloat(rec[4:]), Z: wireFloat(rec[8:])},
				Max: r3.Vector{X: wireFloat(rec[12:]), Y: wireFloat(rec[16:]), Z: wireFloat(rec[20:])},
			},
			split: wireFloat(rec[24:]),
			left:  int32(binary.LittleEndian.Uint32(rec[28:])),
			right: int32(binary.LittleEndian.Uint32(rec[32:])),
			start: binary.LittleEndian.Uint32(rec[36:]),
			count: binary.LittleEndian.Uint32(rec[40:]),
			axis:  rec[44],
		}
		n := &nodes[i]
		if n.axis > leafAxis {
			return nil, errors.Errorf("collision tree node %d has invalid axis %d", i, n.axis)
		}
		if n.isLeaf() {
			if uint64(n.start)+uint64(n.count) > uint64(indexCount) {
				return nil, errors.Errorf("collision tree leaf %d polygon run [%d, %d) escapes the index",
					i, n.start, uint64(n.start)+uint64(n.count))
			}
			continue
		}
		// Children living strictly after their parent makes cycles impossible and
		// bounds the traversal by the arena length.
		for _, child := range []int32{n.left, n.right} {
			if child <= int32(i) || child >= int32(nodeCount) {
				return nil, errors.Errorf("collision tree node %d references child %d out of order", i, child)
			}
		}
	}

	polyIndex := make([]uint32, indexCount)
	seen := make([]bool, polygonCount)
	for i := range polyIndex {
		polyIndex[i] = binary.LittleEndian.Uint32(indexBlock[i*indexRecordSize:])
		if polyIndex[i] >= polygonCount {
			return nil, errors.Errorf("collision tree indexes polygon %d of %d", polyIndex[i], polygonCount)
		}
		if seen[polyIndex[i]] {
			return nil, errors.Errorf("collision tree indexes polygon %d twice", polyIndex[i])
		}
		seen[polyIndex[i]] = true
	}

	return &KDTree{soup: soup, nodes: nodes, polyIndex: polyIndex}, nil
}

// EncodeKDTree serializes the tree into the relocatable blob DecodeKDTree consumes.
// Bounds are rounded outward to float32 so a decoded tree never prunes a subtree the
// full-precision tree would have entered.
func EncodeKDTree(t *KDTree) []byte {
	nodeOff := treeHeaderSize
	indexOff := nodeOff + len(t.nodes)*nodeRecordSize
	blob := make([]byte, indexOff+len(t.polyIndex)*indexRecordSize)

	binary.LittleEndian.PutUint32(blob[0:], treeMagic)
	binary.LittleEndian.PutUint32(blob[4:], treeVersion)
	binary.LittleEndian.PutUint32(blob[8:], uint32(len(t.nodes)))
	binary.LittleEndian.PutUint32(blob[12:], uint32(len(t.polyIndex)))
	binary.LittleEndian.PutUint32(blob[16:], uint32(t.soup.NumPolygons()))
	putWireBounds(blob[20:], t.nodes[0].bounds)
	binary.LittleEndian.PutUint32(blob[44:], uint32(nodeOff))
	binary.LittleEndian.PutUint32(blob[48:], uint32(indexOff))

	for i := range t.nodes {
		n := &t.nodes[i]
		rec := blob[nodeOff+i*nodeRecordSize:]
		putWireBounds(rec[0:], n.bounds)
		putWireFloat(rec[24:], n.split)
		binary.LittleEndian.PutUint32(rec[28:], uint32(n.left))
		binary.LittleEndian.PutUint32(rec[32:], uint32(n.right))
		binary.LittleEndian.PutUint32(rec[36:], n.start)
		binary.LittleEndian.PutUint32(rec[40:], n.count)
		rec[44] = n.axis
	}
	for i, polyIdx := range t.polyIndex {
		binary.LittleEndian.PutUint32(blob[indexOff+i*indexRecordSize:], polyIdx)
	}
	return blob
}

// ReadKDTree decodes a tree blob from r and binds it to soup.
func ReadKDTree(r io.Reader, soup *PolygonSoup) (*KDTree, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading collision tree blob")
	}
	return DecodeKDTree(blob, soup)
}

// WriteKDTree writes the tree blob to w.
func WriteKDTree(w io.Writer, t *KDTree) error {
	_, err := w.Write(EncodeKDTree(t))
	return err
}

// KDTreeFromFile loads a tree blob from the given file and binds it to soup.
func KDTreeFromFile(fn string, soup *PolygonSoup, logger golog.Logger) (*KDTree, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	tree, err := ReadKDTree(f, soup)
	if err != nil {
		return nil, errors.Wrapf(err, "loading collision tree from %q", fn)
	}
	logger.Debugf("loaded collision tree from %q: %d nodes over %d polygons",
		fn, tree.NumNodes(), soup.NumPolygons())
	return tree, nil
}

// KDTreeToFile writes the tree blob to the given file.
func KDTreeToFile(fn string, t *KDTree) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		cerr := f.Close()
		err = multierr.Combine(err, cerr)
	}()
	return WriteKDTree(f, t)
}

// putWireBounds stores bounds as six float32, each rounded away from the box center
// so float32 quantization can only grow the box, never shrink it under its polygons.
func putWireBounds(b []byte, bounds geometry.AABB) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(wireFloatDown(bounds.Min.X)))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(wireFloatDown(bounds.Min.Y)))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(wireFloatDown(bounds.Min.Z)))
	binary.LittleEndian.PutUint32(b[12:], math.Float32bits(wireFloatUp(bounds.Max.X)))
	binary.LittleEndian.PutUint32(b[16:], math.Float32bits(wireFloatUp(bounds.Max.Y)))
	binary.LittleEndian.PutUint32(b[20:], math.Float32bits(wireFloatUp(bounds.Max.Z)))
}

func wireFloatDown(v float64) float32 {
	f := float32(v)
	if float64(f) > v {
		f = math.Nextafter32(f, float32(math.Inf(-1)))
	}
	return f
}

func wireFloatUp(v float64) float32 {
	f := float32(v)
	if float64(f) < v {
		f = math.Nextafter32(f, float32(math.Inf(1)))
	}
	return f
}
