package flow

import (
	"fmt"
	"math"
)

// Image holds float32 intensities in [0, 1] with an arbitrary channel
// count, interleaved per pixel in row-major order. It is used only as an
// auxiliary signal for the photometric strategies.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []float32
}

// NewImage allocates a black image.
func NewImage(width, height, channels int) *Image {
	if width < 0 || height < 0 || channels <= 0 {
		panic(fmt.Sprintf("flow: invalid image shape %dx%dx%d", width, height, channels))
	}
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}
}

// PixOffset returns the offset of the first channel of (x, y) in Pix.
func (m *Image) PixOffset(x, y int) int {
	return (y*m.Width + x) * m.Channels
}

// At returns the channel values at (x, y). The slice aliases Pix.
func (m *Image) At(x, y int) []float32 {
	i := m.PixOffset(x, y)
	return m.Pix[i : i+m.Channels : i+m.Channels]
}

// Set stores channel c of (x, y).
func (m *Image) Set(x, y, c int, val float32) {
	m.Pix[m.PixOffset(x, y)+c] = val
}

// Sample writes the bilinearly interpolated value at the real position
// (x, y) into dst and returns it. Positions outside the image are clamped to
// the nearest border pixel. dst is grown when it is shorter than Channels.
func (m *Image) Sample(x, y float64, dst []float32) []float32 {
	if cap(dst) < m.Channels {
		dst = make([]float32, m.Channels)
	}
	dst = dst[:m.Channels]
	if m.Width == 0 || m.Height == 0 {
		clear(dst)
		return dst
	}

	x = clamp(x, 0, float64(m.Width-1))
	y = clamp(y, 0, float64(m.Height-1))
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, m.Width-1), min(y0+1, m.Height-1)
	fx, fy := float32(x-float64(x0)), float32(y-float64(y0))

	p00, p10 := m.At(x0, y0), m.At(x1, y0)
	p01, p11 := m.At(x0, y1), m.At(x1, y1)
	for c := range dst {
		top := p00[c]*(1-fx) + p10[c]*fx
		bottom := p01[c]*(1-fx) + p11[c]*fx
		dst[c] = top*(1-fy) + bottom*fy
	}
	return dst
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// Distance returns the Euclidean distance between two pixel values of equal
// channel count.
func Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
