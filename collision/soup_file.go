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
)

// A soup blob is one contiguous little-endian block: a fixed header followed by a
// vertex section and a polygon section. The header stores each section's position as
// an offset from the start of the blob, which is what makes the block relocatable —
// it can be staged anywhere and the offsets stay valid until they are resolved.
const (
	soupMagic   = 'P'<<24 | 'S'<<16 | 'U'<<8 | 'P'
	soupVersion = 1

	soupHeaderSize   = 24
	vertexRecordSize = 12 // 3 float32
	polyRecordSize   = 20 // 4 uint32 + 2 uint16
)

// DecodePolygonSoup reconstructs a soup from its serialized blob. The header's
// self-relative section offsets are resolved against the blob base exactly once,
// here, into owned vertex and polygon blocks; a decoded soup never carries raw
// offsets, so there is nothing that could be fixed up twice.
func DecodePolygonSoup(blob []byte) (*PolygonSoup, error) {
	if len(blob) < soupHeaderSize {
		return nil, errors.Errorf("polygon soup blob too short: %d bytes", len(blob))
	}
	if magic := binary.LittleEndian.Uint32(blob[0:]); magic != soupMagic {
		return nil, errors.Errorf("bad polygon soup magic 0x%08x", magic)
	}
	if version := binary.LittleEndian.Uint32(blob[4:]); version != soupVersion {
		return nil, errors.Errorf("unsupported polygon soup version %d", version)
	}
	vertexCount := binary.LittleEndian.Uint32(blob[8:])
	polygonCount := binary.LittleEndian.Uint32(blob[12:])
	vertexOff := binary.LittleEndian.Uint32(blob[16:])
	polygonOff := binary.LittleEndian.Uint32(blob[20:])

	vertexBlock, err := resolveSection(blob, vertexOff, vertexCount, vertexRecordSize, "vertex")
	if err != nil {
		return nil, err
	}
	polygonBlock, err := resolveSection(blob, polygonOff, polygonCount, polyRecordSize, "polygon")
	if err != nil {
		return nil, err
	}

	vertices := make([]r3.Vector, vertexCount)
	for i := range vertices {
		rec := vertexBlock[i*vertexRecordSize:]
		vertices[i] = r3.Vector{
			X: wireFloat(rec[0:]),
			Y: wireFloat(rec[4:]),
			Z: wireFloat(rec[8:]),
		}
	}
	polygons := make([]Polygon, polygonCount)
	for i := range polygons {
		rec := polygonBlock[i*polyRecordSize:]
		for s := 0; s < 4; s++ {
			polygons[i].Verts[s] = binary.LittleEndian.Uint32(rec[s*4:])
		}
		polygons[i].Surface = binary.LittleEndian.Uint16(rec[16:])
		polygons[i].Flags = binary.LittleEndian.Uint16(rec[18:])
	}
	return NewPolygonSoup(vertices, polygons)
}

// EncodePolygonSoup serializes the soup into the relocatable blob DecodePolygonSoup
// consumes.
func EncodePolygonSoup(soup *PolygonSoup) []byte {
	vertexOff := soupHeaderSize
	polygonOff := vertexOff + len(soup.vertices)*vertexRecordSize
	blob := make([]byte, polygonOff+len(soup.polygons)*polyRecordSize)

	binary.LittleEndian.PutUint32(blob[0:], soupMagic)
	binary.LittleEndian.PutUint32(blob[4:], soupVersion)
	binary.LittleEndian.PutUint32(blob[8:], uint32(len(soup.vertices)))
	binary.LittleEndian.PutUint32(blob[12:], uint32(len(soup.polygons)))
	binary.LittleEndian.PutUint32(blob[16:], uint32(vertexOff))
	binary.LittleEndian.PutUint32(blob[20:], uint32(polygonOff))

	for i, v := range soup.vertices {
		rec := blob[vertexOff+i*vertexRecordSize:]
		putWireFloat(rec[0:], v.X)
		putWireFloat(rec[4:], v.Y)
		putWireFloat(rec[8:], v.Z)
	}
	for i, p := range soup.polygons {
		rec := blob[polygonOff+i*polyRecordSize:]
		for s := 0; s < 4; s++ {
			binary.LittleEndian.PutUint32(rec[s*4:], p.Verts[s])
		}
		binary.LittleEndian.PutUint16(rec[16:], p.Surface)
		binary.LittleEndian.PutUint16(rec[18:], p.Flags)
	}
	return blob
}

// ReadPolygonSoup decodes a soup blob from r.
func ReadPolygonSoup(r io.Reader) (*PolygonSoup, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading polygon soup blob")
	}
	return DecodePolygonSoup(blob)
}

// WritePolygonSoup writes the soup blob to w.
func WritePolygonSoup(w io.Writer, soup *PolygonSoup) error {
	_, err := w.Write(EncodePolygonSoup(soup))
	return err
}

// PolygonSoupFromFile loads a soup blob from the given file.
func PolygonSoupFromFile(fn string, logger golog.Logger) (*PolygonSoup, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	soup, err := ReadPolygonSoup(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading polygon soup from %q", fn)
	}
	logger.Debugf("loaded polygon soup from %q: %d vertices, %d polygons",
		fn, soup.NumVertices(), soup.NumPolygons())
	return soup, nil
}

// PolygonSoupToFile writes the soup blob to the given file.
func PolygonSoupToFile(fn string, soup *PolygonSoup) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		cerr := f.Close()
		err = multierr.Combine(err, cerr)
	}()
	return WritePolygonSoup(f, soup)
}

// resolveSection bounds-checks one self-relative section reference and returns the
// referenced bytes. All relocation goes through here: an offset is only ever combined
// with the blob base at decode time, never stored.
func resolveSection(blob []byte, off, count uint32, recordSize int, name string) ([]byte, error) {
	length := uint64(count) * uint64(recordSize)
	if uint64(off)+length > uint64(len(blob)) {
		return nil, errors.Errorf("%s section at offset %d (%d bytes) escapes the %d byte blob",
			name, off, length, len(blob))
	}
	return blob[off : uint64(off)+length], nil
}

// wireFloat reads the float32 stored on the wire into the float64 used in memory.
func wireFloat(b []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}

func putWireFloat(b []byte, v float64) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
}
