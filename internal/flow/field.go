package flow

import (
	"fmt"
	"math"
)

// Vec is a single displacement: U along x (columns), V along y (rows).
type Vec struct {
	U float32
	V float32
}

// Neg returns the vector pointing the other way.
func (v Vec) Neg() Vec { return Vec{U: -v.U, V: -v.V} }

// Norm returns the Euclidean magnitude of v.
func (v Vec) Norm() float64 {
	return math.Hypot(float64(v.U), float64(v.V))
}

// IsFinite reports whether both components are finite numbers.
// Middlebury files mark unknown flow with values around 1e9, which are
// finite; callers that care about those use IsKnown.
func (v Vec) IsFinite() bool {
	u, w := float64(v.U), float64(v.V)
	return !math.IsNaN(u) && !math.IsNaN(w) && !math.IsInf(u, 0) && !math.IsInf(w, 0)
}

// UnknownFlowThreshold is the component magnitude above which a vector is
// treated as "unknown" (the .flo convention stores 1e9 for missing flow).
const UnknownFlowThreshold = 1e9

// IsKnown reports whether v is finite and below UnknownFlowThreshold.
func (v Vec) IsKnown() bool {
	if !v.IsFinite() {
		return false
	}
	return math.Abs(float64(v.U)) < UnknownFlowThreshold && math.Abs(float64(v.V)) < UnknownFlowThreshold
}

// Field is a dense Width x Height grid of displacement vectors stored in
// row-major order. The dimensions never change after construction.
type Field struct {
	Width  int
	Height int
	Vecs   []Vec
}

// NewField allocates a zero field. Negative dimensions panic.
func NewField(width, height int) *Field {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("flow: negative field size %dx%d", width, height))
	}
	return &Field{
		Width:  width,
		Height: height,
		Vecs:   make([]Vec, width*height),
	}
}

// NewConstantField returns a field with every cell set to v.
func NewConstantField(width, height int, v Vec) *Field {
	f := NewField(width, height)
	for i := range f.Vecs {
		f.Vecs[i] = v
	}
	return f
}

// Len returns the number of cells.
func (f *Field) Len() int { return f.Width * f.Height }

// Index returns the linear index of (x, y).
func (f *Field) Index(x, y int) int { return y*f.Width + x }

// Coords is the inverse of Index.
func (f *Field) Coords(i int) (x, y int) { return i % f.Width, i / f.Width }

// InBounds reports whether (x, y) addresses a cell.
func (f *Field) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.Width && y < f.Height
}

// At returns the vector at (x, y).
func (f *Field) At(x, y int) Vec { return f.Vecs[y*f.Width+x] }

// Set stores v at (x, y).
func (f *Field) Set(x, y int, v Vec) { f.Vecs[y*f.Width+x] = v }

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	out := &Field{Width: f.Width, Height: f.Height, Vecs: make([]Vec, len(f.Vecs))}
	copy(out.Vecs, f.Vecs)
	return out
}

// SameSize reports whether f is width x height.
func (f *Field) SameSize(width, height int) bool {
	return f.Width == width && f.Height == height
}

// Equal reports exact equality of dimensions and values.
func (f *Field) Equal(g *Field) bool {
	if f == nil || g == nil {
		return f == g
	}
	if f.Width != g.Width || f.Height != g.Height {
		return false
	}
	for i, v := range f.Vecs {
		if v != g.Vecs[i] {
			return false
		}
	}
	return true
}

// MaxNorm returns the largest known vector magnitude in the field.
func (f *Field) MaxNorm() float64 {
	var m float64
	for _, v := range f.Vecs {
		if !v.IsKnown() {
			continue
		}
		if n := v.Norm(); n > m {
			m = n
		}
	}
	return m
}

// Components splits the field into separate U and V planes as float64,
// which is the layout gonum's floats and stat packages expect.
func (f *Field) Components() (u, v []float64) {
	u = make([]float64, len(f.Vecs))
	v = make([]float64, len(f.Vecs))
	for i, vec := range f.Vecs {
		u[i] = float64(vec.U)
		v[i] = float64(vec.V)
	}
	return u, v
}

// Sample returns the bilinearly interpolated vector at the real position
// (x, y), clamped to the field border.
func (f *Field) Sample(x, y float64) Vec {
	if f.Width == 0 || f.Height == 0 {
		return Vec{}
	}
	x = clamp(x, 0, float64(f.Width-1))
	y = clamp(y, 0, float64(f.Height-1))
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, f.Width-1), min(y0+1, f.Height-1)
	fx, fy := float32(x-float64(x0)), float32(y-float64(y0))

	v00, v10 := f.At(x0, y0), f.At(x1, y0)
	v01, v11 := f.At(x0, y1), f.At(x1, y1)
	lerp := func(a, b, c, d, t, s float32) float32 {
		return (a*(1-t)+b*t)*(1-s) + (c*(1-t)+d*t)*s
	}
	return Vec{
		U: lerp(v00.U, v10.U, v01.U, v11.U, fx, fy),
		V: lerp(v00.V, v10.V, v01.V, v11.V, fx, fy),
	}
}
