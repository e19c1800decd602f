// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the synthetic flow fields and images that the
// pipeline tests build, so fixtures agree across packages.
package testutil

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/inverseflow/internal/flow"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TranslationField returns a width x height field where every vector is (u, v).
func TranslationField(width, height int, u, v float32) *flow.Field {
	return flow.NewConstantField(width, height, flow.Vec{U: u, V: v})
}

// RandomField returns a reproducible field with components uniform in
// [-maxMag, maxMag].
func RandomField(width, height int, seed uint64, maxMag float32) *flow.Field {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	f := flow.NewField(width, height)
	for i := range f.Vecs {
		f.Vecs[i] = flow.Vec{
			U: (rng.Float32()*2 - 1) * maxMag,
			V: (rng.Float32()*2 - 1) * maxMag,
		}
	}
	return f
}

// GradientImage returns a smooth image whose channels vary differently in x
// and y, so that shifted copies are distinguishable.
func GradientImage(width, height, channels int) *flow.Image {
	img := flow.NewImage(width, height, channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				fx := float64(x) / float64(max(width, 1))
				fy := float64(y) / float64(max(height, 1))
				val := 0.5 + 0.25*math.Sin(2*math.Pi*(fx+float64(c)*0.3)) + 0.25*fy
				img.Set(x, y, c, float32(val))
			}
		}
	}
	return img
}

// ShiftedImage returns img translated by (dx, dy): the result at (x+dx, y+dy)
// equals img at (x, y). Uncovered pixels clamp to the nearest source pixel.
func ShiftedImage(img *flow.Image, dx, dy int) *flow.Image {
	out := flow.NewImage(img.Width, img.Height, img.Channels)
	for y := 0; y < img.Height; y++ {
		sy := min(max(y-dy, 0), img.Height-1)
		for x := 0; x < img.Width; x++ {
			sx := min(max(x-dx, 0), img.Width-1)
			copy(out.At(x, y), img.At(sx, sy))
		}
	}
	return out
}

// MaxAbsDiff returns the largest component difference between two fields of
// the same size, or +Inf when the sizes differ.
func MaxAbsDiff(a, b *flow.Field) float64 {
	if a.Width != b.Width || a.Height != b.Height {
		return math.Inf(1)
	}
	var worst float64
	for i := range a.Vecs {
		du := math.Abs(float64(a.Vecs[i].U - b.Vecs[i].U))
		dv := math.Abs(float64(a.Vecs[i].V - b.Vecs[i].V))
		worst = max(worst, du, dv)
	}
	return worst
}
