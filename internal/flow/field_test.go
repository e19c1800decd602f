package flow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVec_Known(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		v      Vec
		finite bool
		known  bool
	}{
		{"zero", Vec{}, true, true},
		{"ordinary", Vec{U: -3.5, V: 2}, true, true},
		{"unknown marker", Vec{U: 1e9, V: 0}, true, false},
		{"just below marker", Vec{U: 0, V: -9.9e8}, true, true},
		{"nan", Vec{U: float32(math.NaN())}, false, false},
		{"inf", Vec{V: float32(math.Inf(-1))}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.finite, tt.v.IsFinite())
			assert.Equal(t, tt.known, tt.v.IsKnown())
		})
	}
}

func TestVec_NormNeg(t *testing.T) {
	t.Parallel()
	v := Vec{U: 3, V: -4}
	assert.Equal(t, 5.0, v.Norm())
	assert.Equal(t, Vec{U: -3, V: 4}, v.Neg())
}

func TestField_Layout(t *testing.T) {
	t.Parallel()

	f := NewField(4, 3)
	require.Equal(t, 12, f.Len())
	f.Set(3, 1, Vec{U: 1, V: 2})
	assert.Equal(t, Vec{U: 1, V: 2}, f.Vecs[7])
	assert.Equal(t, 7, f.Index(3, 1))
	x, y := f.Coords(7)
	assert.Equal(t, []int{3, 1}, []int{x, y})

	assert.True(t, f.InBounds(0, 0))
	assert.False(t, f.InBounds(4, 0))
	assert.False(t, f.InBounds(0, -1))

	assert.Panics(t, func() { NewField(-1, 2) })
}

func TestField_CloneEqual(t *testing.T) {
	t.Parallel()

	f := NewConstantField(3, 2, Vec{U: 1})
	g := f.Clone()
	assert.True(t, f.Equal(g))

	g.Set(0, 0, Vec{})
	assert.False(t, f.Equal(g))
	assert.Equal(t, Vec{U: 1}, f.At(0, 0), "clone does not alias")

	assert.False(t, f.Equal(NewConstantField(2, 3, Vec{U: 1})))
	assert.False(t, f.Equal(nil))
	assert.True(t, (*Field)(nil).Equal(nil))
}

func TestField_MaxNormSkipsUnknown(t *testing.T) {
	t.Parallel()

	f := NewField(3, 1)
	f.Set(0, 0, Vec{U: 3, V: 4})
	f.Set(1, 0, Vec{U: 1e9})
	f.Set(2, 0, Vec{U: float32(math.NaN())})
	assert.Equal(t, 5.0, f.MaxNorm())
}

func TestField_Components(t *testing.T) {
	t.Parallel()

	f := NewField(2, 1)
	f.Set(0, 0, Vec{U: 1, V: 2})
	f.Set(1, 0, Vec{U: -1, V: 0.5})
	u, v := f.Components()
	assert.Equal(t, []float64{1, -1}, u)
	assert.Equal(t, []float64{2, 0.5}, v)
}

func TestField_Sample(t *testing.T) {
	t.Parallel()

	f := NewField(2, 2)
	f.Set(0, 0, Vec{U: 0, V: 0})
	f.Set(1, 0, Vec{U: 2, V: 0})
	f.Set(0, 1, Vec{U: 0, V: 4})
	f.Set(1, 1, Vec{U: 2, V: 4})

	assert.Equal(t, Vec{U: 1, V: 2}, f.Sample(0.5, 0.5))
	assert.Equal(t, Vec{U: 2, V: 0}, f.Sample(1, 0), "grid point")
	assert.Equal(t, Vec{U: 2, V: 4}, f.Sample(7, 9), "clamped")
	assert.Equal(t, Vec{}, f.Sample(-3, -3), "clamped")
	assert.Equal(t, Vec{}, f.Sample(math.NaN(), 0), "nan clamps to origin")
	assert.Equal(t, Vec{}, NewField(0, 0).Sample(0, 0))
}
