package stl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/chisel3d/chisel/pkg/kernel"
	"github.com/chisel3d/chisel/pkg/kernel/kerneltest"
)

const asciiCube = `solid tri
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 10 0 0
      vertex 0 10 0
    endloop
  endfacet
  facet normal 0 0 1
    outer loop
      vertex 10 0 0
      vertex 10 10 0
      vertex 0 10 0
    endloop
  endfacet
endsolid tri
`

func TestDecodeASCII(t *testing.T) {
	m, err := DecodeBytes([]byte(asciiCube))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := m.TriangleCount(); got != 2 {
		t.Errorf("triangle count = %d, want 2", got)
	}
	// Shared vertices are deduplicated: 6 references, 4 unique.
	if got := m.VertexCount(); got != 4 {
		t.Errorf("vertex count = %d, want 4", got)
	}
	if m.Min != [3]float64{0, 0, 0} || m.Max != [3]float64{10, 10, 0} {
		t.Errorf("bounds = %v %v", m.Min, m.Max)
	}
}

func TestDecodeASCIIBadVertex(t *testing.T) {
	src := "solid x\nfacet\nouter loop\nvertex 1 2\nendloop\nendfacet\nendsolid"
	_, err := DecodeBytes([]byte(src))
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("err = %v, want ErrInvalidFormat", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := DecodeBytes([]byte("this is not an stl file at all"))
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("err = %v, want ErrInvalidFormat", err)
	}
}

func TestDecodeBinaryBadCount(t *testing.T) {
	// A header whose triangle count disagrees with the file size must
	// not be parsed as binary; the ASCII fallback then rejects it.
	data := make([]byte, 84+50)
	binary.LittleEndian.PutUint32(data[80:], 9999)
	_, err := DecodeBytes(data)
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("err = %v, want ErrInvalidFormat", err)
	}
}

func TestRoundTripBinary(t *testing.T) {
	orig := kerneltest.BoxMesh([3]float64{0, 0, 0}, [3]float64{100, 50, 25})

	data, err := EncodeBytes(orig)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(data) != 84+50*orig.TriangleCount() {
		t.Fatalf("encoded size = %d", len(data))
	}

	m1, err := DecodeBytes(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if m1.VertexCount() != 8 {
		t.Errorf("vertex count = %d, want 8 after dedup", m1.VertexCount())
	}
	if m1.TriangleCount() != 12 {
		t.Errorf("triangle count = %d, want 12", m1.TriangleCount())
	}
	if m1.Min != orig.Min || m1.Max != orig.Max {
		t.Errorf("bounds = %v %v, want %v %v", m1.Min, m1.Max, orig.Min, orig.Max)
	}

	// Encoding and decoding again must reproduce the mesh exactly.
	data2, err := EncodeBytes(m1)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}
	m2, err := DecodeBytes(data2)
	if err != nil {
		t.Fatalf("re-decode failed: %v", err)
	}
	if !reflect.DeepEqual(m1, m2) {
		t.Error("round trip is not stable")
	}
}

func TestBoundsSoundness(t *testing.T) {
	m, err := DecodeBytes([]byte(asciiCube))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i := 0; i < m.VertexCount(); i++ {
		for c := 0; c < 3; c++ {
			v := float64(m.Vertices[i*3+c])
			if v < m.Min[c] || v > m.Max[c] {
				t.Fatalf("vertex %d component %d = %f outside bounds [%f, %f]",
					i, c, v, m.Min[c], m.Max[c])
			}
		}
	}
}

func TestDedupNearCoincident(t *testing.T) {
	// Differ by one float32 ulp: identical under the 6-decimal key.
	m := &kernel.Mesh{
		Vertices: []float32{
			1.0000000, 0, 0,
			1.0000001, 0, 0,
			0, 1, 0,
			0, 0, 1,
		},
		Indices: []uint32{0, 2, 3, 1, 3, 2},
	}
	m.RecomputeBounds()

	data, err := EncodeBytes(m)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := DecodeBytes(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.VertexCount() != 3 {
		t.Errorf("vertex count = %d, want 3 after dedup", got.VertexCount())
	}

	// At higher precision the two stay distinct.
	got8, err := DecodeBytesPrecision(data, 8)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got8.VertexCount() != 4 {
		t.Errorf("vertex count at precision 8 = %d, want 4", got8.VertexCount())
	}
}

func TestEncodeDegenerateNormal(t *testing.T) {
	// A zero-area triangle writes a zero normal rather than NaN.
	m := &kernel.Mesh{
		Vertices: []float32{0, 0, 0, 0, 0, 0, 0, 0, 0},
		Indices:  []uint32{0, 1, 2},
	}
	data, err := EncodeBytes(m)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	normal := data[84 : 84+12]
	if !bytes.Equal(normal, make([]byte, 12)) {
		t.Errorf("degenerate normal = %v, want zeros", normal)
	}
}

func TestHeaderTag(t *testing.T) {
	m := kerneltest.BoxMesh([3]float64{0, 0, 0}, [3]float64{1, 1, 1})
	data, err := EncodeBytes(m)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte(encodeHeader)) {
		t.Error("missing header tag")
	}
	count := binary.LittleEndian.Uint32(data[80:])
	if count != 12 {
		t.Errorf("triangle count field = %d, want 12", count)
	}
}
