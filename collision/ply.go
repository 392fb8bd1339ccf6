package collision

import (
	"io"
	"os"

	"github.com/chenzhekl/goply"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// NewPolygonSoupFromPLY reads polygonal PLY geometry into a soup. Vertices come from
// the x/y/z properties of the vertex element; faces from the vertex_indices (or
// vertex_index) list of the face element, with quads kept as quads and larger faces
// fan-triangulated with a logged warning, matching the OBJ reader. A face's optional
// material_index property becomes its surface id.
func NewPolygonSoupFromPLY(r io.Reader, logger golog.Logger) (*PolygonSoup, error) {
	ply := goply.New(r)

	plyVertices := ply.Elements("vertex")
	vertices := make([]r3.Vector, 0, len(plyVertices))
	for i, vert := range plyVertices {
		x, okX := plyFloat(vert["x"])
		y, okY := plyFloat(vert["y"])
		z, okZ := plyFloat(vert["z"])
		if !okX || !okY || !okZ {
			return nil, errors.Errorf("ply vertex %d is missing an x, y or z property", i)
		}
		vertices = append(vertices, r3.Vector{X: x, Y: y, Z: z})
	}

	var polygons []Polygon
	for i, face := range ply.Elements("face") {
		refs, ok := face["vertex_indices"].([]interface{})
		if !ok {
			refs, ok = face["vertex_index"].([]interface{})
		}
		if !ok {
			logger.Debugf("ply face %d has no vertex index list, skipped", i)
			continue
		}
		idxs := make([]uint32, 0, len(refs))
		usable := true
		for _, ref := range refs {
			idx, ok := plyIndex(ref)
			if !ok || idx >= uint32(len(vertices)) {
				logger.Debugf("ply face %d references vertex %v out of %d, skipped", i, ref, len(vertices))
				usable = false
				break
			}
			idxs = append(idxs, idx)
		}
		if !usable {
			continue
		}
		if len(idxs) < 3 {
			logger.Debugf("ply face %d has %d corners, skipped", i, len(idxs))
			continue
		}

		surface := uint16(0)
		if mat, ok := face["material_index"]; ok {
			if m, ok := plyIndex(mat); ok {
				surface = uint16(m)
			}
		}
		if len(idxs) > 4 {
			logger.Warnf("ply face %d: fan-triangulating a face with %d corners", i, len(idxs))
			for s := 1; s+1 < len(idxs); s++ {
				polygons = append(polygons, Polygon{
					Verts:   [4]uint32{idxs[0], idxs[s], idxs[s+1], NoVertex},
					Surface: surface,
				})
			}
			continue
		}
		poly := Polygon{Verts: [4]uint32{0, 0, 0, NoVertex}, Surface: surface}
		copy(poly.Verts[:], idxs)
		polygons = append(polygons, poly)
	}
	return NewPolygonSoup(vertices, polygons)
}

// NewPolygonSoupFromPLYFile reads PLY geometry from the given file.
func NewPolygonSoupFromPLYFile(fn string, logger golog.Logger) (*PolygonSoup, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return NewPolygonSoupFromPLY(f, logger)
}

// plyFloat coerces one scalar PLY property. The parser hands values back as whatever
// Go type the file's declared property type mapped to, so accept every numeric width.
func plyFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// plyIndex coerces one list entry to a vertex index, rejecting negatives.
func plyIndex(v interface{}) (uint32, bool) {
	f, ok := plyFloat(v)
	if !ok || f < 0 {
		return 0, false
	}
	return uint32(f), true
}
