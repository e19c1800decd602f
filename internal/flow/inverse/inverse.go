package inverse

import (
	"fmt"
	"time"

	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/flow/fill"
	"github.com/banshee-data/inverseflow/internal/flow/resolve"
	"github.com/banshee-data/inverseflow/internal/flow/splat"
	"github.com/banshee-data/inverseflow/internal/monitoring"
)

// Stats summarises one inversion.
type Stats struct {
	Width      int
	Height     int
	Candidates int // total splatted candidates
	Valid      int // cells with at least one candidate

	SplatTime   time.Duration
	ResolveTime time.Duration
	FillTime    time.Duration
}

// Cells returns the number of grid cells.
func (s Stats) Cells() int { return s.Width * s.Height }

// ValidFraction returns Valid / Cells, or 0 for an empty grid.
func (s Stats) ValidFraction() float64 {
	if s.Cells() == 0 {
		return 0
	}
	return float64(s.Valid) / float64(s.Cells())
}

// Elapsed is the sum of the stage times.
func (s Stats) Elapsed() time.Duration {
	return s.SplatTime + s.ResolveTime + s.FillTime
}

// Result is the output of Run.
type Result struct {
	Backward *flow.Field
	Mask     *flow.Mask
	Stats    Stats
}

// Invert computes the backward flow of forward and the mask of observed
// cells. img1 and img2 are optional unless opts.Strategy is an image
// strategy, in which case both are required.
func Invert(forward *flow.Field, img1, img2 *flow.Image, opts Options) (*flow.Field, *flow.Mask, error) {
	res, err := Run(forward, img1, img2, opts)
	if err != nil {
		return nil, nil, err
	}
	return res.Backward, res.Mask, nil
}

// Run is Invert with per-stage statistics.
func Run(forward *flow.Field, img1, img2 *flow.Image, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Strategy.NeedsImages() && (img1 == nil || img2 == nil) {
		return nil, fmt.Errorf("%w: strategy %s requires both img1 and img2", flow.ErrConfiguration, opts.Strategy)
	}
	if err := flow.CheckDims(forward, img1, img2); err != nil {
		return nil, err
	}
	if !opts.Strategy.NeedsImages() {
		// Intensities are only scored by the image strategies.
		img1, img2 = nil, nil
	}

	stats := Stats{Width: forward.Width, Height: forward.Height}

	resolver, err := resolve.New(opts.resolveConfig(), img1, img2)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	grid, err := splat.Splat(forward, img1, opts.Workers)
	if err != nil {
		return nil, err
	}
	stats.Candidates = grid.Total()
	stats.SplatTime = time.Since(start)

	start = time.Now()
	outcomes, err := resolver.Resolve(grid)
	if err != nil {
		return nil, err
	}
	sparse, mask := buildMask(outcomes, forward.Width, forward.Height)
	stats.Valid = mask.ValidCount()
	stats.ResolveTime = time.Since(start)

	start = time.Now()
	dense, err := fill.Fill(sparse, mask, opts.fillConfig())
	if err != nil {
		return nil, err
	}
	stats.FillTime = time.Since(start)

	monitoring.Debugf("[inverse] %dx%d %s candidates=%d valid=%.1f%% splat=%v resolve=%v fill=%v",
		stats.Width, stats.Height, opts, stats.Candidates, 100*stats.ValidFraction(),
		stats.SplatTime, stats.ResolveTime, stats.FillTime)

	return &Result{Backward: dense, Mask: mask, Stats: stats}, nil
}

// buildMask marks every resolved cell valid and gathers the resolved vectors
// into a sparse field. Unresolved cells hold the zero placeholder.
func buildMask(outcomes []resolve.Outcome, width, height int) (*flow.Field, *flow.Mask) {
	sparse := flow.NewField(width, height)
	mask := flow.NewMask(width, height)
	for i, o := range outcomes {
		if o.Resolved {
			sparse.Vecs[i] = o.Flow
			mask.Valid[i] = true
		}
	}
	return sparse, mask
}
