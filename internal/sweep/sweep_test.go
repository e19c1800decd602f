package sweep

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/inverseflow/internal/db"
	"github.com/banshee-data/inverseflow/internal/evaluate"
	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/flow/inverse"
	"github.com/banshee-data/inverseflow/internal/testutil"
)

func translationInput() Input {
	img1 := testutil.GradientImage(10, 8, 1)
	return Input{
		Forward:    testutil.TranslationField(10, 8, 2, 1),
		Img1:       img1,
		Img2:       testutil.ShiftedImage(img1, 2, 1),
		Reference:  testutil.TranslationField(10, 8, -2, -1),
		SourcePath: "synthetic",
	}
}

func TestCombinations(t *testing.T) {
	t.Parallel()

	all := Combinations(flow.Strategies, flow.Fills, true)
	assert.Len(t, all, 16)
	assert.Equal(t, Combo{flow.StrategyMaxFlow, flow.FillMin}, all[0])

	noImages := Combinations(flow.Strategies, flow.Fills, false)
	assert.Len(t, noImages, 8)
	for _, c := range noImages {
		assert.False(t, c.Strategy.NeedsImages(), c.String())
	}
}

func TestParseLists(t *testing.T) {
	t.Parallel()

	s, err := ParseStrategies(" max_flow , AVG_IMAGE ")
	require.NoError(t, err)
	assert.Equal(t, []flow.Strategy{flow.StrategyMaxFlow, flow.StrategyAvgImage}, s)

	s, err = ParseStrategies("")
	require.NoError(t, err)
	assert.Equal(t, flow.Strategies, s)

	_, err = ParseStrategies("max_flow,nearest")
	assert.ErrorIs(t, err, flow.ErrConfiguration)

	f, err := ParseFills("none,oriented,")
	require.NoError(t, err)
	assert.Equal(t, []flow.Fill{flow.FillNone, flow.FillOriented}, f)

	_, err = ParseFills("zero")
	assert.ErrorIs(t, err, flow.ErrConfiguration)
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	in := translationInput()
	combos := Combinations(flow.Strategies, flow.Fills, true)
	r := NewRunner(inverse.DefaultOptions())
	r.Concurrency = 4

	results, err := r.Run(context.Background(), in, combos)
	require.NoError(t, err)
	require.Len(t, results, len(combos))

	for i, res := range results {
		require.NoError(t, res.Err, res.Combo.String())
		assert.Equal(t, combos[i], res.Combo, "results keep combo order")
		assert.Nil(t, res.Backward, "outputs dropped unless requested")
		require.NotNil(t, res.Metrics)
		require.NotNil(t, res.Photometric)
		assert.InDelta(t, 0, res.Consistency, 1e-6, res.Combo.String())
		assert.InDelta(t, 56.0/80.0, res.Stats.ValidFraction(), 1e-12)
		if res.Combo.Fill != flow.FillNone {
			assert.InDelta(t, 0, res.Metrics.All.Mean, 1e-6, res.Combo.String())
		}
		assert.InDelta(t, 0, res.Metrics.Valid.Mean, 1e-6, res.Combo.String())
	}

	best := Best(results)
	require.GreaterOrEqual(t, best, 0)
	assert.NotEqual(t, flow.FillNone, results[best].Combo.Fill)
}

func TestRunner_FailedComboIsReported(t *testing.T) {
	t.Parallel()

	in := Input{Forward: testutil.TranslationField(6, 4, 1e4, 0)}
	combos := []Combo{{flow.StrategyMaxFlow, flow.FillAvg}, {flow.StrategyMaxFlow, flow.FillNone}}

	results, err := NewRunner(inverse.DefaultOptions()).Run(context.Background(), in, combos)
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, flow.ErrFill)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, 1, Best(results))

	assert.Equal(t, -1, Best(results[:1]))
}

func TestRunner_InputErrors(t *testing.T) {
	t.Parallel()

	r := NewRunner(inverse.DefaultOptions())
	combos := Combinations(flow.Strategies, flow.Fills, false)

	_, err := r.Run(context.Background(), Input{}, combos)
	assert.ErrorIs(t, err, flow.ErrConfiguration)

	in := translationInput()
	in.Reference = flow.NewField(3, 3)
	_, err = r.Run(context.Background(), in, combos)
	assert.ErrorIs(t, err, flow.ErrDimensionMismatch)
}

func TestRunner_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(inverse.DefaultOptions()).Run(ctx, translationInput(),
		Combinations(flow.Strategies, flow.Fills, true))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunner_RecordsRuns(t *testing.T) {
	t.Parallel()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "sweep.db"))
	require.NoError(t, err)
	defer database.Close()

	r := NewRunner(inverse.DefaultOptions())
	r.Store = database.Runs()
	r.Label = "sweep-test"
	combos := []Combo{{flow.StrategyMaxFlow, flow.FillNone}, {flow.StrategyAvgFlow, flow.FillOriented}}

	results, err := r.Run(context.Background(), translationInput(), combos)
	require.NoError(t, err)

	runs, err := database.Runs().List(db.RunFilter{Label: "sweep-test"})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	for _, res := range results {
		require.NotEmpty(t, res.RunID)
		run, err := database.Runs().Get(res.RunID)
		require.NoError(t, err)
		assert.Equal(t, string(res.Combo.Strategy), run.Strategy)
		assert.Equal(t, "synthetic", run.SourcePath)
		require.NotNil(t, run.MeanEPE)
		require.NotNil(t, run.PhotometricError)
		assert.Contains(t, string(run.ParamsJSON), `"oriented_directions":8`)

		back, err := db.DecodeField(run.FlowBlob)
		require.NoError(t, err)
		assert.Equal(t, 10, back.Width)
	}

	best, err := database.Runs().Best(db.RunFilter{Label: "sweep-test"})
	require.NoError(t, err)
	assert.Equal(t, results[1].RunID, best.RunID)
}

func TestCSVWriter_WriteResults(t *testing.T) {
	t.Parallel()

	photo := 0.125
	results := []Result{
		{
			Combo:       Combo{flow.StrategyMaxFlow, flow.FillAvg},
			Stats:       inverse.Stats{Width: 2, Height: 2, Valid: 3},
			Metrics:     &evaluate.Metrics{All: evaluate.Summary{Mean: 0.5}},
			Photometric: &photo,
			Consistency: 0.25,
		},
		{Combo: Combo{flow.StrategyAvgFlow, flow.FillAvg}, Err: flow.ErrFill},
		{Combo: Combo{flow.StrategyAvgFlow, flow.FillNone}, Stats: inverse.Stats{Width: 1, Height: 1}},
	}

	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(&buf).WriteResults(results))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two successful rows")
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, []string{"max_flow", "avg", "0.750000", "0.500000", "0.125000", "0.250000", "0.000"}, rows[1])
	assert.Equal(t, []string{"avg_flow", "none", "0.000000", "", "", "0.000000", "0.000"}, rows[2])
}

func TestLogSummary(t *testing.T) {
	t.Parallel()

	// Must not panic on empty or failed-only input.
	LogSummary(nil)
	LogSummary([]Result{{Err: flow.ErrFill}})
	LogSummary([]Result{{Stats: inverse.Stats{Width: 1, Height: 1, Valid: 1}}})
}
