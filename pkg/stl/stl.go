// Package stl reads and writes STL files as indexed triangle meshes.
//
// Decoding accepts binary and ASCII STL. A file is treated as binary
// when the little-endian triangle count at offset 80 is consistent with
// the total file size (84 + 50 bytes per triangle); anything else is
// parsed as ASCII. Vertices are deduplicated under a six-decimal
// textual key so that coincident corners share one index. Encoding
// always produces binary STL with computed per-triangle normals.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chisel3d/chisel/pkg/kernel"
)

// ErrInvalidFormat indicates the input is not a readable STL file.
var ErrInvalidFormat = errors.New("stl: invalid format")

// DedupPrecision is the number of decimals in the vertex dedup key.
// Six decimals matches the output precision of common slicers;
// parameterized so tests can exercise near-coincident vertices.
const DedupPrecision = 6

const (
	headerLen    = 80
	triRecordLen = 50 // 12B normal + 3*12B vertices + 2B attributes
)

// encodeHeader is the fixed tag written into the 80-byte binary header.
const encodeHeader = "chisel binary STL"

// Decode reads an entire STL stream and returns the indexed mesh.
func Decode(r io.Reader) (*kernel.Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("stl: read: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes parses STL data, auto-detecting binary vs ASCII.
func DecodeBytes(data []byte) (*kernel.Mesh, error) {
	return decodeBytes(data, DedupPrecision)
}

// DecodeBytesPrecision is DecodeBytes with an explicit dedup precision.
func DecodeBytesPrecision(data []byte, precision int) (*kernel.Mesh, error) {
	return decodeBytes(data, precision)
}

func decodeBytes(data []byte, precision int) (*kernel.Mesh, error) {
	if len(data) >= headerLen+4 {
		count := binary.LittleEndian.Uint32(data[headerLen:])
		if headerLen+4+int64(count)*triRecordLen == int64(len(data)) {
			return decodeBinary(data[headerLen+4:], int(count), precision)
		}
	}
	return decodeASCII(data, precision)
}

// builder accumulates deduplicated vertices, triangle indices, and the
// bounds of accepted vertices.
type builder struct {
	precision int
	index     map[string]uint32
	mesh      *kernel.Mesh
	seen      bool
}

func newBuilder(precision int) *builder {
	return &builder{
		precision: precision,
		index:     make(map[string]uint32),
		mesh:      &kernel.Mesh{},
	}
}

// add deduplicates a vertex and returns its index.
func (b *builder) add(x, y, z float32) uint32 {
	p := b.precision
	key := strconv.FormatFloat(float64(x), 'f', p, 32) + "," +
		strconv.FormatFloat(float64(y), 'f', p, 32) + "," +
		strconv.FormatFloat(float64(z), 'f', p, 32)
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := uint32(len(b.mesh.Vertices) / 3)
	b.mesh.Vertices = append(b.mesh.Vertices, x, y, z)
	b.index[key] = idx

	for c, v := range [3]float64{float64(x), float64(y), float64(z)} {
		if !b.seen || v < b.mesh.Min[c] {
			b.mesh.Min[c] = v
		}
		if !b.seen || v > b.mesh.Max[c] {
			b.mesh.Max[c] = v
		}
	}
	b.seen = true
	return idx
}

func (b *builder) triangle(i0, i1, i2 uint32) {
	b.mesh.Indices = append(b.mesh.Indices, i0, i1, i2)
}

func decodeBinary(body []byte, count, precision int) (*kernel.Mesh, error) {
	b := newBuilder(precision)
	for t := 0; t < count; t++ {
		rec := body[t*triRecordLen:]
		var tri [3]uint32
		for v := 0; v < 3; v++ {
			const start = 12 // skip normal
			off := start + v*12
			x := math.Float32frombits(binary.LittleEndian.Uint32(rec[off:]))
			y := math.Float32frombits(binary.LittleEndian.Uint32(rec[off+4:]))
			z := math.Float32frombits(binary.LittleEndian.Uint32(rec[off+8:]))
			tri[v] = b.add(x, y, z)
		}
		b.triangle(tri[0], tri[1], tri[2])
	}
	return b.mesh, nil
}

func decodeASCII(data []byte, precision int) (*kernel.Mesh, error) {
	b := newBuilder(precision)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var pending []uint32
	sawFacet := false
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		switch {
		case strings.HasPrefix(line, "vertex"):
			fields := strings.Fields(line)
			if len(fields) != 4 {
				return nil, fmt.Errorf("%w: vertex line has %d coordinates", ErrInvalidFormat, len(fields)-1)
			}
			var coord [3]float32
			for i, f := range fields[1:] {
				v, err := strconv.ParseFloat(f, 32)
				if err != nil {
					return nil, fmt.Errorf("%w: bad coordinate %q", ErrInvalidFormat, f)
				}
				coord[i] = float32(v)
			}
			pending = append(pending, b.add(coord[0], coord[1], coord[2]))
		case strings.HasPrefix(line, "endfacet"):
			sawFacet = true
			if len(pending) == 3 {
				b.triangle(pending[0], pending[1], pending[2])
			}
			pending = pending[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("stl: scan: %w", err)
	}
	if !sawFacet || b.mesh.TriangleCount() == 0 {
		return nil, fmt.Errorf("%w: no facets found", ErrInvalidFormat)
	}
	return b.mesh, nil
}

// Encode writes the mesh as binary STL. Normals are the normalized
// cross product of each triangle's edges, zero when degenerate.
func Encode(w io.Writer, m *kernel.Mesh) error {
	bw := bufio.NewWriter(w)

	var header [headerLen]byte
	copy(header[:], encodeHeader)
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("stl: write header: %w", err)
	}

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(m.TriangleCount()))
	if _, err := bw.Write(countBuf[:]); err != nil {
		return fmt.Errorf("stl: write count: %w", err)
	}

	var rec [triRecordLen]byte
	for t := 0; t < m.TriangleCount(); t++ {
		i0 := m.Indices[t*3]
		i1 := m.Indices[t*3+1]
		i2 := m.Indices[t*3+2]

		v0 := vertexAt(m, i0)
		v1 := vertexAt(m, i1)
		v2 := vertexAt(m, i2)

		n := triangleNormal(v0, v1, v2)
		putVec(rec[0:], n)
		putVec(rec[12:], v0)
		putVec(rec[24:], v1)
		putVec(rec[36:], v2)
		rec[48] = 0
		rec[49] = 0

		if _, err := bw.Write(rec[:]); err != nil {
			return fmt.Errorf("stl: write triangle: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("stl: flush: %w", err)
	}
	return nil
}

// EncodeBytes serializes the mesh into a new byte slice.
func EncodeBytes(m *kernel.Mesh) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerLen + 4 + m.TriangleCount()*triRecordLen)
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func vertexAt(m *kernel.Mesh, i uint32) [3]float32 {
	return [3]float32{
		m.Vertices[i*3],
		m.Vertices[i*3+1],
		m.Vertices[i*3+2],
	}
}

func putVec(dst []byte, v [3]float32) {
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(dst[8:], math.Float32bits(v[2]))
}

// triangleNormal computes the normalized (v1-v0)×(v2-v0) in float64 to
// dodge float32 cancellation, returning zeros for degenerate triangles.
func triangleNormal(v0, v1, v2 [3]float32) [3]float32 {
	e1 := [3]float64{float64(v1[0] - v0[0]), float64(v1[1] - v0[1]), float64(v1[2] - v0[2])}
	e2 := [3]float64{float64(v2[0] - v0[0]), float64(v2[1] - v0[1]), float64(v2[2] - v0[2])}

	nx := e1[1]*e2[2] - e1[2]*e2[1]
	ny := e1[2]*e2[0] - e1[0]*e2[2]
	nz := e1[0]*e2[1] - e1[1]*e2[0]

	length := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if length == 0 {
		return [3]float32{}
	}
	return [3]float32{float32(nx / length), float32(ny / length), float32(nz / length)}
}
