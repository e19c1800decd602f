// Package splat projects every source pixel of a forward flow field onto the
// target grid and records, per target cell, every candidate backward vector
// that lands there.
//
// Each source pixel (x, y) with forward vector (u, v) lands at the real
// position (x+u, y+v). Its contribution is spread over the bilinear
// footprint around that position: up to four integer cells, each weighted by
// its bilinear coefficient. Footprint cells outside the grid are dropped and
// the remaining weights are NOT renormalised, so border cells see partial
// footprints.
package splat

import (
	"fmt"
	"math"

	"github.com/banshee-data/inverseflow/internal/flow"
)

// Candidate is one proposal for the backward vector of a target cell.
type Candidate struct {
	// Source is the linear index of the originating source pixel. It
	// defines raster order and is unique within one cell's list.
	Source int
	// Flow is the proposed backward vector (the negated forward vector).
	Flow flow.Vec
	// Weight is the bilinear coefficient of this cell in the footprint, > 0.
	Weight float64
	// TargetX and TargetY are the real-valued landing position.
	TargetX float64
	TargetY float64
	// Intensity aliases the source pixel of img1; nil without images.
	Intensity []float32
}

// Grid holds the candidate list of every target cell in row-major order.
type Grid struct {
	Width  int
	Height int
	Cells  [][]Candidate
}

// Candidates returns the list of (x, y).
func (g *Grid) Candidates(x, y int) []Candidate { return g.Cells[y*g.Width+x] }

// Count returns the number of candidates at (x, y).
func (g *Grid) Count(x, y int) int { return len(g.Cells[y*g.Width+x]) }

// Total returns the number of candidates over the whole grid.
func (g *Grid) Total() int {
	n := 0
	for _, c := range g.Cells {
		n += len(c)
	}
	return n
}

// Empty returns the number of cells without any candidate.
func (g *Grid) Empty() int {
	n := 0
	for _, c := range g.Cells {
		if len(c) == 0 {
			n++
		}
	}
	return n
}

// entry is a candidate tagged with its target cell, produced by one worker.
type entry struct {
	target int
	cand   Candidate
}

// Splat scatters forward onto a grid of the same size. img1 is optional;
// when given, every candidate carries its source pixel intensity. workers
// follows flow.Workers; the result does not depend on it.
//
// Vectors that are not finite, or that carry the .flo "unknown" marker,
// produce no candidates.
func Splat(forward *flow.Field, img1 *flow.Image, workers int) (*Grid, error) {
	if err := flow.CheckDims(forward, img1); err != nil {
		return nil, err
	}

	w, h := forward.Width, forward.Height
	parts := flow.Partition(h, workers)
	buffers := make([][]entry, len(parts))

	err := flow.ForRows(h, workers, func(part int, rows flow.RowRange) error {
		buf := make([]entry, 0, (rows.End-rows.Start)*w*2)
		var fp [4]cell
		for y := rows.Start; y < rows.End; y++ {
			for x := 0; x < w; x++ {
				src := y*w + x
				v := forward.Vecs[src]
				if !v.IsKnown() {
					continue
				}
				tx := float64(x) + float64(v.U)
				ty := float64(y) + float64(v.V)
				n := footprint(tx, ty, w, h, &fp)
				if n == 0 {
					continue
				}
				var intensity []float32
				if img1 != nil {
					intensity = img1.At(x, y)
				}
				back := v.Neg()
				for _, c := range fp[:n] {
					buf = append(buf, entry{
						target: c.y*w + c.x,
						cand: Candidate{
							Source:    src,
							Flow:      back,
							Weight:    c.weight,
							TargetX:   tx,
							TargetY:   ty,
							Intensity: intensity,
						},
					})
				}
			}
		}
		buffers[part] = buf
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("splat: %w", err)
	}

	return merge(w, h, buffers), nil
}

// merge concatenates the per-partition buffers in partition order. Because
// partitions are ordered row blocks and each buffer is in source order, every
// cell list ends up in source raster order.
func merge(w, h int, buffers [][]entry) *Grid {
	counts := make([]int, w*h)
	total := 0
	for _, buf := range buffers {
		for _, e := range buf {
			counts[e.target]++
		}
		total += len(buf)
	}

	backing := make([]Candidate, total)
	cells := make([][]Candidate, w*h)
	off := 0
	for i, n := range counts {
		if n == 0 {
			continue
		}
		cells[i] = backing[off : off : off+n]
		off += n
	}
	for _, buf := range buffers {
		for _, e := range buf {
			cells[e.target] = append(cells[e.target], e.cand)
		}
	}
	return &Grid{Width: w, Height: h, Cells: cells}
}

// cell is one member of a bilinear footprint.
type cell struct {
	x, y   int
	weight float64
}

// footprint fills out with the in-bounds cells of the bilinear footprint of
// (tx, ty) that carry a strictly positive weight and returns how many there
// are. An exactly integer position touches a single cell.
func footprint(tx, ty float64, w, h int, out *[4]cell) int {
	// Reject positions whose footprint cannot intersect the grid before
	// converting to int, so huge displacements never overflow.
	if !(tx > -1 && ty > -1 && tx < float64(w) && ty < float64(h)) {
		return 0
	}
	fx0, fy0 := math.Floor(tx), math.Floor(ty)
	ax, ay := tx-fx0, ty-fy0
	x0, y0 := int(fx0), int(fy0)

	n := 0
	add := func(x, y int, weight float64) {
		if weight <= 0 || x < 0 || y < 0 || x >= w || y >= h {
			return
		}
		out[n] = cell{x: x, y: y, weight: weight}
		n++
	}
	add(x0, y0, (1-ax)*(1-ay))
	add(x0+1, y0, ax*(1-ay))
	add(x0, y0+1, (1-ax)*ay)
	add(x0+1, y0+1, ax*ay)
	return n
}
