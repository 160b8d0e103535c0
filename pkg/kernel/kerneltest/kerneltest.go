// Package kerneltest provides a pure-Go kernel.Kernel implementation
// for tests. Solids are point-membership predicates composed by the
// boolean operations; volume is measured by deterministic grid
// sampling; mesh import ray-casts against the triangle list. The
// kernel counts live (not yet destroyed) solids so tests can assert
// that every handle is released.
//
// ToMesh approximates the exported surface by the occupied region's
// bounding box, which is exact for the axis-aligned box fixtures the
// engine tests use.
package kerneltest

import (
	"math"
	"sync"

	"github.com/chisel3d/chisel/pkg/kernel"
)

// Kernel is an instrumented in-memory kernel for tests.
type Kernel struct {
	// Resolution is the sampling cell size in mm used for volume
	// measurement. Smaller is more accurate and slower.
	Resolution float64

	mu   sync.Mutex
	live int
}

var _ kernel.Kernel = (*Kernel)(nil)

// New returns a test kernel sampling at the given resolution (mm).
func New(resolution float64) *Kernel {
	if resolution <= 0 {
		resolution = 0.5
	}
	return &Kernel{Resolution: resolution}
}

// Live returns the number of solids created and not yet destroyed.
func (k *Kernel) Live() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.live
}

// solid is a membership predicate with a conservative bounding box.
type solid struct {
	min, max  [3]float64
	contains  func(p [3]float64) bool
	destroyed bool
	status    kernel.Status
}

func (s *solid) BoundingBox() (min, max [3]float64) {
	return s.min, s.max
}

func (k *Kernel) track(s *solid) *solid {
	k.mu.Lock()
	k.live++
	k.mu.Unlock()
	return s
}

// Box returns a box with its minimum corner at the origin.
func (k *Kernel) Box(x, y, z float64) kernel.Solid {
	return k.track(&solid{
		min: [3]float64{0, 0, 0},
		max: [3]float64{x, y, z},
		contains: func(p [3]float64) bool {
			return p[0] >= 0 && p[0] <= x &&
				p[1] >= 0 && p[1] <= y &&
				p[2] >= 0 && p[2] <= z
		},
	})
}

// Cylinder returns a Z-axis cylinder centered at the origin. The
// segments parameter is ignored.
func (k *Kernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	h2 := height / 2
	r2 := radius * radius
	return k.track(&solid{
		min: [3]float64{-radius, -radius, -h2},
		max: [3]float64{radius, radius, h2},
		contains: func(p [3]float64) bool {
			return p[2] >= -h2 && p[2] <= h2 &&
				p[0]*p[0]+p[1]*p[1] <= r2
		},
	})
}

// Difference returns a minus b. The result keeps a's bounding box.
func (k *Kernel) Difference(a, b kernel.Solid) kernel.Solid {
	sa, sb := a.(*solid), b.(*solid)
	return k.track(&solid{
		min: sa.min,
		max: sa.max,
		contains: func(p [3]float64) bool {
			return sa.contains(p) && !sb.contains(p)
		},
	})
}

// Intersection returns the intersection of a and b.
func (k *Kernel) Intersection(a, b kernel.Solid) kernel.Solid {
	sa, sb := a.(*solid), b.(*solid)
	var min, max [3]float64
	for c := 0; c < 3; c++ {
		min[c] = math.Max(sa.min[c], sb.min[c])
		max[c] = math.Min(sa.max[c], sb.max[c])
		if max[c] < min[c] {
			max[c] = min[c]
		}
	}
	return k.track(&solid{
		min: min,
		max: max,
		contains: func(p [3]float64) bool {
			return sa.contains(p) && sb.contains(p)
		},
	})
}

// Translate moves a solid by (x, y, z).
func (k *Kernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ss := s.(*solid)
	d := [3]float64{x, y, z}
	return k.track(&solid{
		min: [3]float64{ss.min[0] + x, ss.min[1] + y, ss.min[2] + z},
		max: [3]float64{ss.max[0] + x, ss.max[1] + y, ss.max[2] + z},
		contains: func(p [3]float64) bool {
			return ss.contains([3]float64{p[0] - d[0], p[1] - d[1], p[2] - d[2]})
		},
	})
}

// Rotate rotates a solid by Euler angles in degrees, applied X then Y
// then Z. Membership tests inverse-rotate the query point; the bounding
// box is the rotated box's axis-aligned hull.
func (k *Kernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ss := s.(*solid)
	r := rotationMatrix(x, y, z)
	inv := r.transpose()

	// Hull of the eight rotated corners.
	first := true
	var min, max [3]float64
	for _, cx := range []float64{ss.min[0], ss.max[0]} {
		for _, cy := range []float64{ss.min[1], ss.max[1]} {
			for _, cz := range []float64{ss.min[2], ss.max[2]} {
				q := r.apply([3]float64{cx, cy, cz})
				for c := 0; c < 3; c++ {
					if first || q[c] < min[c] {
						min[c] = q[c]
					}
					if first || q[c] > max[c] {
						max[c] = q[c]
					}
				}
				first = false
			}
		}
	}

	return k.track(&solid{
		min: min,
		max: max,
		contains: func(p [3]float64) bool {
			return ss.contains(inv.apply(p))
		},
	})
}

// FromMesh builds a solid whose membership test ray-casts along +X
// against the mesh triangles (even-odd rule). The mesh must be closed
// for the result to be meaningful.
func (k *Kernel) FromMesh(m *kernel.Mesh) (kernel.Solid, error) {
	if m.IsEmpty() {
		return nil, kernel.ErrMeshImport
	}
	tris := makeTriangles(m)
	min, max := m.Min, m.Max
	return k.track(&solid{
		min: min,
		max: max,
		contains: func(p [3]float64) bool {
			return insideMesh(tris, p)
		},
	}), nil
}

// ToMesh emits a 12-triangle box covering the solid's occupied region,
// measured by sampling. Returns an empty mesh when nothing is inside.
func (k *Kernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	ss := s.(*solid)
	min, max, any := k.occupiedBounds(ss)
	if !any {
		return &kernel.Mesh{}, nil
	}
	return BoxMesh(min, max), nil
}

// Status returns the solid's recorded status (StatusOK unless a test
// injected otherwise via Sabotage). Destroyed or foreign handles report
// StatusInvalid.
func (k *Kernel) Status(s kernel.Solid) kernel.Status {
	ss, ok := s.(*solid)
	if !ok || ss.destroyed {
		return kernel.StatusInvalid
	}
	return ss.status
}

// Sabotage forces the given solid to report the given status. Tests
// use it to exercise the engine's failure paths.
func Sabotage(s kernel.Solid, st kernel.Status) {
	s.(*solid).status = st
}

// Volume samples the solid's bounding box on a regular grid of the
// kernel's resolution (at least one cell per axis) and sums interior
// cell volumes.
func (k *Kernel) Volume(s kernel.Solid) float64 {
	ss := s.(*solid)
	var steps [3]int
	var step [3]float64
	cellVol := 1.0
	for c := 0; c < 3; c++ {
		size := ss.max[c] - ss.min[c]
		if size <= 0 {
			return 0
		}
		steps[c] = int(math.Ceil(size / k.Resolution))
		if steps[c] < 1 {
			steps[c] = 1
		}
		step[c] = size / float64(steps[c])
		cellVol *= step[c]
	}

	inside := 0
	for i := 0; i < steps[0]; i++ {
		x := ss.min[0] + (float64(i)+0.5)*step[0]
		for j := 0; j < steps[1]; j++ {
			y := ss.min[1] + (float64(j)+0.5)*step[1]
			for l := 0; l < steps[2]; l++ {
				z := ss.min[2] + (float64(l)+0.5)*step[2]
				if ss.contains([3]float64{x, y, z}) {
					inside++
				}
			}
		}
	}
	return float64(inside) * cellVol
}

// Destroy marks the solid released. Idempotent.
func (k *Kernel) Destroy(s kernel.Solid) {
	ss, ok := s.(*solid)
	if !ok || ss.destroyed {
		return
	}
	ss.destroyed = true
	k.mu.Lock()
	k.live--
	k.mu.Unlock()
}

// occupiedBounds samples the bounding box and returns the hull of
// interior sample cells.
func (k *Kernel) occupiedBounds(ss *solid) (min, max [3]float64, any bool) {
	var steps [3]int
	var step [3]float64
	for c := 0; c < 3; c++ {
		size := ss.max[c] - ss.min[c]
		if size <= 0 {
			return min, max, false
		}
		steps[c] = int(math.Ceil(size / k.Resolution))
		if steps[c] < 1 {
			steps[c] = 1
		}
		step[c] = size / float64(steps[c])
	}

	for i := 0; i < steps[0]; i++ {
		x := ss.min[0] + (float64(i)+0.5)*step[0]
		for j := 0; j < steps[1]; j++ {
			y := ss.min[1] + (float64(j)+0.5)*step[1]
			for l := 0; l < steps[2]; l++ {
				z := ss.min[2] + (float64(l)+0.5)*step[2]
				if !ss.contains([3]float64{x, y, z}) {
					continue
				}
				lo := [3]float64{x - step[0]/2, y - step[1]/2, z - step[2]/2}
				hi := [3]float64{x + step[0]/2, y + step[1]/2, z + step[2]/2}
				if !any {
					min, max = lo, hi
					any = true
					continue
				}
				for c := 0; c < 3; c++ {
					if lo[c] < min[c] {
						min[c] = lo[c]
					}
					if hi[c] > max[c] {
						max[c] = hi[c]
					}
				}
			}
		}
	}
	return min, max, any
}

// matrix3 is a row-major 3x3 matrix.
type matrix3 [3][3]float64

func (m matrix3) apply(p [3]float64) [3]float64 {
	var out [3]float64
	for r := 0; r < 3; r++ {
		out[r] = m[r][0]*p[0] + m[r][1]*p[1] + m[r][2]*p[2]
	}
	return out
}

func (m matrix3) transpose() matrix3 {
	var t matrix3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			t[c][r] = m[r][c]
		}
	}
	return t
}

func (m matrix3) mul(o matrix3) matrix3 {
	var out matrix3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			for i := 0; i < 3; i++ {
				out[r][c] += m[r][i] * o[i][c]
			}
		}
	}
	return out
}

// rotationMatrix builds Rz·Ry·Rx for Euler angles in degrees.
func rotationMatrix(xDeg, yDeg, zDeg float64) matrix3 {
	x := xDeg * math.Pi / 180
	y := yDeg * math.Pi / 180
	z := zDeg * math.Pi / 180

	rx := matrix3{
		{1, 0, 0},
		{0, math.Cos(x), -math.Sin(x)},
		{0, math.Sin(x), math.Cos(x)},
	}
	ry := matrix3{
		{math.Cos(y), 0, math.Sin(y)},
		{0, 1, 0},
		{-math.Sin(y), 0, math.Cos(y)},
	}
	rz := matrix3{
		{math.Cos(z), -math.Sin(z), 0},
		{math.Sin(z), math.Cos(z), 0},
		{0, 0, 1},
	}
	return rz.mul(ry).mul(rx)
}

type triangle struct {
	a, b, c [3]float64
}

func makeTriangles(m *kernel.Mesh) []triangle {
	tris := make([]triangle, 0, m.TriangleCount())
	at := func(i uint32) [3]float64 {
		return [3]float64{
			float64(m.Vertices[i*3]),
			float64(m.Vertices[i*3+1]),
			float64(m.Vertices[i*3+2]),
		}
	}
	for t := 0; t < m.TriangleCount(); t++ {
		tris = append(tris, triangle{
			a: at(m.Indices[t*3]),
			b: at(m.Indices[t*3+1]),
			c: at(m.Indices[t*3+2]),
		})
	}
	return tris
}

// insideMesh counts +X ray crossings (even-odd rule). The ray origin is
// nudged to dodge exact edge hits from grid-aligned sample points.
func insideMesh(tris []triangle, p [3]float64) bool {
	const eps = 1.3e-7
	origin := [3]float64{p[0], p[1] + eps, p[2] + 2*eps}
	crossings := 0
	for _, t := range tris {
		if rayHitsTriangle(origin, t) {
			crossings++
		}
	}
	return crossings%2 == 1
}

// rayHitsTriangle tests a +X ray against one triangle using the
// Möller–Trumbore intersection with the ray direction fixed at (1,0,0).
func rayHitsTriangle(o [3]float64, t triangle) bool {
	e1 := sub(t.b, t.a)
	e2 := sub(t.c, t.a)
	// h = dir × e2 with dir = (1,0,0)
	h := [3]float64{0, -e2[2], e2[1]}
	a := dot(e1, h)
	if math.Abs(a) < 1e-12 {
		return false
	}
	f := 1 / a
	s := sub(o, t.a)
	u := f * dot(s, h)
	if u < 0 || u > 1 {
		return false
	}
	q := cross(s, e1)
	v := f * q[0] // dot(dir, q) with dir = (1,0,0)
	if v < 0 || u+v > 1 {
		return false
	}
	dist := f * dot(e2, q)
	return dist > 1e-12
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// BoxMesh builds a 12-triangle closed box between min and max with
// outward-facing winding. Tests also use it to fabricate input meshes.
func BoxMesh(min, max [3]float64) *kernel.Mesh {
	x0, y0, z0 := float32(min[0]), float32(min[1]), float32(min[2])
	x1, y1, z1 := float32(max[0]), float32(max[1]), float32(max[2])

	verts := []float32{
		x0, y0, z0, // 0
		x1, y0, z0, // 1
		x1, y1, z0, // 2
		x0, y1, z0, // 3
		x0, y0, z1, // 4
		x1, y0, z1, // 5
		x1, y1, z1, // 6
		x0, y1, z1, // 7
	}
	idx := []uint32{
		0, 2, 1, 0, 3, 2, // bottom (z0)
		4, 5, 6, 4, 6, 7, // top (z1)
		0, 1, 5, 0, 5, 4, // front (y0)
		2, 3, 7, 2, 7, 6, // back (y1)
		0, 4, 7, 0, 7, 3, // left (x0)
		1, 2, 6, 1, 6, 5, // right (x1)
	}
	m := &kernel.Mesh{Vertices: verts, Indices: idx}
	m.RecomputeBounds()
	return m
}
