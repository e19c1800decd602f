package fill

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/inverseflow/internal/flow"
)

// searcher answers nearest-valid-cell queries against an immutable sparse
// field. It is read-only after construction, so workers share one.
type searcher struct {
	field *flow.Field
	valid []bool
	w, h  int
	// dist is the Chebyshev distance from each cell to its nearest valid
	// cell: 0 for valid cells.
	dist []int32
}

func newSearcher(f *flow.Field, m *flow.Mask) *searcher {
	return &searcher{
		field: f,
		valid: m.Valid,
		w:     f.Width,
		h:     f.Height,
		dist:  chebyshevDistance(m),
	}
}

// chebyshevDistance runs one breadth-first flood seeded from every valid
// cell at once. With 8-connected steps the BFS depth equals the Chebyshev
// distance. Cells no seed can reach keep -1.
func chebyshevDistance(m *flow.Mask) []int32 {
	w, h := m.Width, m.Height
	dist := make([]int32, len(m.Valid))
	queue := make([]int32, 0, len(m.Valid))
	for i, ok := range m.Valid {
		if ok {
			queue = append(queue, int32(i))
		} else {
			dist[i] = -1
		}
	}
	for head := 0; head < len(queue); head++ {
		i := int(queue[head])
		x, y := i%w, i/w
		d := dist[i] + 1
		for dy := -1; dy <= 1; dy++ {
			ny := y + dy
			if ny < 0 || ny >= h {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				nx := x + dx
				if (dx == 0 && dy == 0) || nx < 0 || nx >= w {
					continue
				}
				j := ny*w + nx
				if dist[j] < 0 {
					dist[j] = d
					queue = append(queue, int32(j))
				}
			}
		}
	}
	return dist
}

// ring calls fn for every in-bounds cell at Chebyshev distance exactly r
// from (cx, cy), in row-major order.
func (s *searcher) ring(cx, cy, r int, fn func(j, dx, dy int)) {
	if r == 0 {
		fn(cy*s.w+cx, 0, 0)
		return
	}
	for dy := -r; dy <= r; dy++ {
		y := cy + dy
		if y < 0 || y >= s.h {
			continue
		}
		if dy == -r || dy == r {
			for dx := max(-r, -cx); dx <= r && cx+dx < s.w; dx++ {
				fn(y*s.w+cx+dx, dx, dy)
			}
			continue
		}
		if cx-r >= 0 {
			fn(y*s.w+cx-r, -r, dy)
		}
		if cx+r < s.w {
			fn(y*s.w+cx+r, r, dy)
		}
	}
}

// maxRing is the radius beyond which a ring around (cx, cy) is entirely
// outside the grid.
func (s *searcher) maxRing(cx, cy int) int {
	return max(cx, s.w-1-cx, cy, s.h-1-cy)
}

// smallest returns the smallest valid vector on the nearest non-empty ring. Ties
// go to the smaller linear index.
func (s *searcher) smallest(i int) flow.Vec {
	cx, cy := i%s.w, i/s.w
	best := -1
	var bestNorm float64
	s.ring(cx, cy, int(s.dist[i]), func(j, _, _ int) {
		if !s.valid[j] {
			return
		}
		n := s.field.Vecs[j].Norm()
		if best < 0 || n < bestNorm {
			best, bestNorm = j, n
		}
	})
	return s.field.Vecs[best]
}

// average gathers valid cells ring by ring, starting at the nearest non-empty
// ring, until it holds at least minNeighbors cells, the radius reaches
// maxRadius (when positive), or the rings leave the grid. The result is the
// inverse-distance weighted mean of the gathered vectors.
func (s *searcher) average(i, minNeighbors, maxRadius int) flow.Vec {
	cx, cy := i%s.w, i/s.w
	limit := s.maxRing(cx, cy)
	var ws, us, vs []float64
	for r := int(s.dist[i]); ; r++ {
		s.ring(cx, cy, r, func(j, dx, dy int) {
			if !s.valid[j] {
				return
			}
			v := s.field.Vecs[j]
			ws = append(ws, 1/math.Hypot(float64(dx), float64(dy)))
			us = append(us, float64(v.U))
			vs = append(vs, float64(v.V))
		})
		if len(ws) >= minNeighbors || r >= limit || (maxRadius > 0 && r >= maxRadius) {
			break
		}
	}
	return mean(ws, us, vs)
}

// direction is a compass step.
type direction struct{ dx, dy int }

// compass lists the axes first, so compass[:4] is the 4-direction search.
var compass = [8]direction{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {-1, 1}, {1, -1}, {-1, -1},
}

// oriented walks each direction from cell i to the first valid cell and
// combines the hits. It reports false when no direction reaches one.
func (s *searcher) oriented(i int, dirs []direction, reduce Reduce) (flow.Vec, bool) {
	cx, cy := i%s.w, i/s.w
	var ws, us, vs []float64
	best := -1
	var bestNorm float64
	for _, d := range dirs {
		step := math.Hypot(float64(d.dx), float64(d.dy))
		for k := 1; ; k++ {
			x, y := cx+k*d.dx, cy+k*d.dy
			if x < 0 || y < 0 || x >= s.w || y >= s.h {
				break
			}
			j := y*s.w + x
			if !s.valid[j] {
				continue
			}
			v := s.field.Vecs[j]
			ws = append(ws, 1/(float64(k)*step))
			us = append(us, float64(v.U))
			vs = append(vs, float64(v.V))
			if n := v.Norm(); best < 0 || n < bestNorm || (n == bestNorm && j < best) {
				best, bestNorm = j, n
			}
			break
		}
	}
	if best < 0 {
		return flow.Vec{}, false
	}
	if reduce == ReduceMin {
		return s.field.Vecs[best], true
	}
	return mean(ws, us, vs), true
}

func mean(ws, us, vs []float64) flow.Vec {
	total := floats.Sum(ws)
	return flow.Vec{
		U: float32(floats.Dot(ws, us) / total),
		V: float32(floats.Dot(ws, vs) / total),
	}
}
