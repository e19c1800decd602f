package resolve

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/flow/splat"
)

func mustResolver(t *testing.T, s flow.Strategy, img1, img2 *flow.Image) *Resolver {
	t.Helper()
	r, err := New(Config{Strategy: s, Workers: 1}, img1, img2)
	require.NoError(t, err)
	return r
}

func cand(src int, u, v float32, w float64) splat.Candidate {
	return splat.Candidate{Source: src, Flow: flow.Vec{U: u, V: v}, Weight: w}
}

func TestNew_ImageStrategiesNeedBothImages(t *testing.T) {
	t.Parallel()
	img := flow.NewImage(2, 2, 1)
	for _, s := range []flow.Strategy{flow.StrategyMaxImage, flow.StrategyAvgImage} {
		t.Run(string(s), func(t *testing.T) {
			t.Parallel()
			_, err := New(Config{Strategy: s}, img, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, flow.ErrConfiguration))

			_, err = New(Config{Strategy: s}, nil, img)
			assert.True(t, errors.Is(err, flow.ErrConfiguration))

			_, err = New(Config{Strategy: s}, img, img)
			assert.NoError(t, err)
		})
	}
}

func TestNew_FlowStrategiesIgnoreImages(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Strategy: flow.StrategyMaxFlow}, nil, nil)
	assert.NoError(t, err)
	_, err = New(Config{Strategy: flow.StrategyAvgFlow}, nil, nil)
	assert.NoError(t, err)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Strategy: "median"}, nil, nil)
	assert.True(t, errors.Is(err, flow.ErrConfiguration))

	_, err = New(Config{Strategy: flow.StrategyAvgImage, ImageEpsilon: -1}, nil, nil)
	assert.True(t, errors.Is(err, flow.ErrConfiguration))

	a, b := flow.NewImage(2, 2, 1), flow.NewImage(2, 2, 3)
	_, err = New(Config{Strategy: flow.StrategyMaxImage}, a, b)
	assert.True(t, errors.Is(err, flow.ErrDimensionMismatch))
}

func TestCell_EmptyAndSingle(t *testing.T) {
	t.Parallel()
	for _, s := range []flow.Strategy{flow.StrategyMaxFlow, flow.StrategyAvgFlow} {
		r := mustResolver(t, s, nil, nil)
		_, ok := r.Cell(nil)
		assert.False(t, ok)

		v, ok := r.Cell([]splat.Candidate{cand(3, 1, -2, 0.1)})
		assert.True(t, ok)
		assert.Equal(t, flow.Vec{U: 1, V: -2}, v)
	}
}

func TestMaxFlow_PicksLargestRegardlessOfOrder(t *testing.T) {
	t.Parallel()
	r := mustResolver(t, flow.StrategyMaxFlow, nil, nil)
	big := cand(7, 3, 4, 0.1)   // magnitude 5
	small := cand(2, 1, 1, 0.9) // magnitude ~1.41

	v, _ := r.Cell([]splat.Candidate{big, small})
	assert.Equal(t, big.Flow, v)
	v, _ = r.Cell([]splat.Candidate{small, big})
	assert.Equal(t, big.Flow, v)
}

func TestMaxFlow_TieGoesToFirstInRasterOrder(t *testing.T) {
	t.Parallel()
	r := mustResolver(t, flow.StrategyMaxFlow, nil, nil)
	early := cand(4, 0, 5, 0.5)
	late := cand(9, -5, 0, 0.5)

	v, _ := r.Cell([]splat.Candidate{late, early})
	assert.Equal(t, early.Flow, v)
	v, _ = r.Cell([]splat.Candidate{early, late})
	assert.Equal(t, early.Flow, v)
}

func TestAvgFlow_WeightedAndRenormalised(t *testing.T) {
	t.Parallel()
	r := mustResolver(t, flow.StrategyAvgFlow, nil, nil)
	v, ok := r.Cell([]splat.Candidate{cand(0, 2, 0, 0.25), cand(1, 6, 4, 0.25)})
	require.True(t, ok)
	assert.InDelta(t, 4.0, v.U, 1e-6)
	assert.InDelta(t, 2.0, v.V, 1e-6)

	v, _ = r.Cell([]splat.Candidate{cand(0, 0, 0, 0.3), cand(1, 4, 0, 0.1)})
	assert.InDelta(t, 1.0, v.U, 1e-6)
}

func TestAvgFlow_OrderInvariant(t *testing.T) {
	t.Parallel()
	r := mustResolver(t, flow.StrategyAvgFlow, nil, nil)
	cands := []splat.Candidate{
		cand(0, 0.1, 7.3, 0.13),
		cand(5, -3.7, 1.1, 0.71),
		cand(9, 12.9, -0.4, 0.05),
		cand(11, 1e-3, 2.2, 0.33),
	}
	want, _ := r.Cell(cands)

	perms := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}, {0, 2, 1, 3}}
	for _, p := range perms {
		shuffled := make([]splat.Candidate, len(cands))
		for i, j := range p {
			shuffled[i] = cands[j]
		}
		got, _ := r.Cell(shuffled)
		assert.Equal(t, want, got, "permutation %v", p)
	}
}

func TestMaxImage_PrefersPhotometricMatch(t *testing.T) {
	t.Parallel()
	img1 := flow.NewImage(4, 1, 1)
	img2 := flow.NewImage(4, 1, 1)
	img2.Set(2, 0, 0, 0.8)

	bright := splat.Candidate{Source: 0, Flow: flow.Vec{U: -2}, Weight: 1, TargetX: 2, Intensity: []float32{0.8}}
	dark := splat.Candidate{Source: 3, Flow: flow.Vec{U: 1}, Weight: 1, TargetX: 2, Intensity: []float32{0.1}}

	r := mustResolver(t, flow.StrategyMaxImage, img1, img2)
	v, ok := r.Cell([]splat.Candidate{dark, bright})
	require.True(t, ok)
	assert.Equal(t, bright.Flow, v)
}

func TestAvgImage_WeightsByInverseDifference(t *testing.T) {
	t.Parallel()
	img1 := flow.NewImage(3, 1, 1)
	img2 := flow.NewImage(3, 1, 1)
	img2.Set(1, 0, 0, 0.5)

	// Differences 0.1 and 0.3 give weights 10 and 10/3, i.e. 3:1.
	a := splat.Candidate{Source: 0, Flow: flow.Vec{U: 4}, Weight: 1, TargetX: 1, Intensity: []float32{0.6}}
	b := splat.Candidate{Source: 2, Flow: flow.Vec{U: 0}, Weight: 1, TargetX: 1, Intensity: []float32{0.2}}

	r := mustResolver(t, flow.StrategyAvgImage, img1, img2)
	v, ok := r.Cell([]splat.Candidate{b, a})
	require.True(t, ok)
	assert.InDelta(t, 3.0, v.U, 1e-5)
}

func TestAvgImage_EpsilonFloorsExactMatches(t *testing.T) {
	t.Parallel()
	img := flow.NewImage(2, 1, 1)
	a := splat.Candidate{Source: 0, Flow: flow.Vec{V: 2}, Weight: 1, Intensity: []float32{0}}
	b := splat.Candidate{Source: 1, Flow: flow.Vec{V: 4}, Weight: 1, Intensity: []float32{0}}

	r, err := New(Config{Strategy: flow.StrategyAvgImage, ImageEpsilon: 0.5}, img, img)
	require.NoError(t, err)
	v, _ := r.Cell([]splat.Candidate{a, b})
	assert.InDelta(t, 3.0, v.V, 1e-6)
}

func TestResolve_GridParallelMatchesSequential(t *testing.T) {
	t.Parallel()
	f := flow.NewField(9, 7)
	for i := range f.Vecs {
		f.Vecs[i] = flow.Vec{U: float32(i%5) - 2.5, V: float32(i%3) * 0.7}
	}
	g, err := splat.Splat(f, nil, 1)
	require.NoError(t, err)

	for _, s := range []flow.Strategy{flow.StrategyMaxFlow, flow.StrategyAvgFlow} {
		seq, err := New(Config{Strategy: s, Workers: 1}, nil, nil)
		require.NoError(t, err)
		par, err := New(Config{Strategy: s, Workers: 4}, nil, nil)
		require.NoError(t, err)

		want, err := seq.Resolve(g)
		require.NoError(t, err)
		got, err := par.Resolve(g)
		require.NoError(t, err)
		assert.Equal(t, want, got, string(s))

		for i, o := range want {
			assert.Equal(t, len(g.Cells[i]) > 0, o.Resolved)
		}
	}
}
