package collision

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// NewPolygonSoupFromOBJ reads Wavefront OBJ geometry into a soup. It consumes v and f
// records (positive 1-based and negative relative vertex references, with or without
// /vt/vn suffixes) and keeps quads as quads. Faces with more than four corners are
// fan-triangulated, which is reported but is not an error. Each usemtl name maps to
// the next sequential surface id. Records that cannot be parsed are skipped with a
// debug log; the reader only fails when the stream yields no usable geometry.
func NewPolygonSoupFromOBJ(r io.Reader, logger golog.Logger) (*PolygonSoup, error) {
	scanner := bufio.NewScanner(r)

	var vertices []r3.Vector
	var polygons []Polygon
	surfaceIDs := map[string]uint16{}
	surface := uint16(0)

	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				logger.Debugf("obj line %d: vertex with %d coordinates skipped", line, len(fields)-1)
				continue
			}
			var coords [3]float64
			ok := true
			for i := range coords {
				c, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					logger.Debugf("obj line %d: %v", line, err)
					ok = false
					break
				}
				coords[i] = c
			}
			if !ok {
				continue
			}
			vertices = append(vertices, r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})
		case "usemtl":
			if len(fields) < 2 {
				continue
			}
			id, ok := surfaceIDs[fields[1]]
			if !ok {
				id = uint16(len(surfaceIDs))
				surfaceIDs[fields[1]] = id
			}
			surface = id
		case "f":
			refs := fields[1:]
			if len(refs) < 3 {
				logger.Debugf("obj line %d: face with %d corners skipped", line, len(refs))
				continue
			}
			idxs := make([]uint32, 0, len(refs))
			ok := true
			for _, ref := range refs {
				idx, err := objVertexIndex(ref, len(vertices))
				if err != nil {
					logger.Debugf("obj line %d: %v", line, err)
					ok = false
					break
				}
				idxs = append(idxs, idx)
			}
			if !ok {
				continue
			}
			if len(idxs) > 4 {
				logger.Warnf("obj line %d: fan-triangulating a face with %d corners", line, len(idxs))
				for i := 1; i+1 < len(idxs); i++ {
					polygons = append(polygons, Polygon{
						Verts:   [4]uint32{idxs[0], idxs[i], idxs[i+1], NoVertex},
						Surface: surface,
					})
				}
				continue
			}
			poly := Polygon{Verts: [4]uint32{0, 0, 0, NoVertex}, Surface: surface}
			copy(poly.Verts[:], idxs)
			polygons = append(polygons, poly)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading obj")
	}
	return NewPolygonSoup(vertices, polygons)
}

// NewPolygonSoupFromOBJFile reads OBJ geometry from the given file.
func NewPolygonSoupFromOBJFile(fn string, logger golog.Logger) (*PolygonSoup, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return NewPolygonSoupFromOBJ(f, logger)
}

// objVertexIndex resolves one face corner reference ("7", "7/1", "7//3", "-2") into a
// zero-based vertex index. count is the number of vertices parsed so far, which is
// what negative references are relative to.
func objVertexIndex(ref string, count int) (uint32, error) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}
	v, err := strconv.Atoi(ref)
	if err != nil {
		return 0, errors.Wrapf(err, "face corner %q", ref)
	}
	switch {
	case v > 0 && v <= count:
		return uint32(v - 1), nil
	case v < 0 && -v <= count:
		return uint32(count + v), nil
	default:
		return 0, errors.Errorf("face corner %d out of range with %d vertices read", v, count)
	}
}
