package kernel

// Mesh is an indexed triangle mesh. All arrays are flat: Vertices has
// 3 floats per vertex (x,y,z), Indices has 3 uint32s per triangle.
// Min and Max are the componentwise bounds over referenced vertices.
type Mesh struct {
	Vertices []float32  `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Indices  []uint32   `json:"indices"`  // [i0,i1,i2, ...] triangles
	Min      [3]float64 `json:"min"`
	Max      [3]float64 `json:"max"`
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Extent returns Max - Min per axis.
func (m *Mesh) Extent() [3]float64 {
	return [3]float64{
		m.Max[0] - m.Min[0],
		m.Max[1] - m.Min[1],
		m.Max[2] - m.Min[2],
	}
}

// RecomputeBounds rescans every referenced vertex and resets Min/Max.
// Boolean results re-exported from the kernel carry bounds from the
// kernel's internal representation; callers that need exact bounds from
// the serialized vertices use this.
func (m *Mesh) RecomputeBounds() {
	if len(m.Indices) == 0 {
		m.Min = [3]float64{}
		m.Max = [3]float64{}
		return
	}
	first := true
	for _, idx := range m.Indices {
		for c := 0; c < 3; c++ {
			v := float64(m.Vertices[int(idx)*3+c])
			if first || v < m.Min[c] {
				m.Min[c] = v
			}
			if first || v > m.Max[c] {
				m.Max[c] = v
			}
		}
		if first {
			// First index seeds both bounds; the loop above set Min
			// and Max to the same vertex.
			first = false
		}
	}
}
