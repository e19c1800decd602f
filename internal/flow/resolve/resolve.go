// Package resolve reduces each target cell's candidate list to at most one
// backward vector.
//
// The flow strategies look only at the candidates; the image strategies
// also compare each candidate's source intensity (from img1) with img2
// sampled at the candidate's landing position. Every strategy is
// independent of the order candidates are listed in.
package resolve

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/flow/splat"
)

// DefaultImageEpsilon floors photometric differences for avg_image.
const DefaultImageEpsilon = 1e-3

// Config selects the strategy and its parameters.
type Config struct {
	Strategy flow.Strategy
	// ImageEpsilon is the lower bound on the photometric difference used by
	// avg_image, so identical intensities do not divide by zero.
	ImageEpsilon float64
	// Workers follows flow.Workers.
	Workers int
}

// Outcome is the resolution of one cell.
type Outcome struct {
	Flow     flow.Vec
	Resolved bool
}

// Resolver applies one strategy. It is safe for concurrent use.
type Resolver struct {
	strategy flow.Strategy
	epsilon  float64
	img2     *flow.Image
	workers  int
}

// New validates cfg against the supplied images. The image strategies need
// both img1 and img2; img1 is consumed by the splatter, so the resolver only
// keeps img2.
func New(cfg Config, img1, img2 *flow.Image) (*Resolver, error) {
	if !cfg.Strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy %q", flow.ErrConfiguration, cfg.Strategy)
	}
	eps := cfg.ImageEpsilon
	if eps == 0 {
		eps = DefaultImageEpsilon
	}
	if eps < 0 || math.IsNaN(eps) || math.IsInf(eps, 0) {
		return nil, fmt.Errorf("%w: image epsilon must be a positive number, got %v", flow.ErrConfiguration, cfg.ImageEpsilon)
	}
	if cfg.Strategy.NeedsImages() {
		if img1 == nil || img2 == nil {
			return nil, fmt.Errorf("%w: strategy %s requires both img1 and img2", flow.ErrConfiguration, cfg.Strategy)
		}
		if img1.Channels != img2.Channels {
			return nil, fmt.Errorf("%w: img1 has %d channels, img2 has %d",
				flow.ErrDimensionMismatch, img1.Channels, img2.Channels)
		}
	}
	r := &Resolver{strategy: cfg.Strategy, epsilon: eps, workers: cfg.Workers}
	if cfg.Strategy.NeedsImages() {
		r.img2 = img2
	}
	return r, nil
}

// Strategy returns the configured strategy.
func (r *Resolver) Strategy() flow.Strategy { return r.strategy }

// Resolve reduces every cell of g. Cells are independent, so rows are split
// across workers and each worker writes its own rows of the result.
func (r *Resolver) Resolve(g *splat.Grid) ([]Outcome, error) {
	if r.img2 != nil && (r.img2.Width != g.Width || r.img2.Height != g.Height) {
		return nil, fmt.Errorf("%w: img2 is %dx%d, grid is %dx%d",
			flow.ErrDimensionMismatch, r.img2.Width, r.img2.Height, g.Width, g.Height)
	}
	out := make([]Outcome, g.Width*g.Height)
	err := flow.ForRows(g.Height, r.workers, func(_ int, rows flow.RowRange) error {
		var s scratch
		for i := rows.Start * g.Width; i < rows.End*g.Width; i++ {
			if v, ok := r.cell(g.Cells[i], &s); ok {
				out[i] = Outcome{Flow: v, Resolved: true}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cell resolves a single candidate list. It reports false for an empty list.
func (r *Resolver) Cell(cands []splat.Candidate) (flow.Vec, bool) {
	var s scratch
	return r.cell(cands, &s)
}

// scratch holds per-worker buffers reused across cells.
type scratch struct {
	sample  []float32
	order   []splat.Candidate
	weights []float64
	us, vs  []float64
}

func (r *Resolver) cell(cands []splat.Candidate, s *scratch) (flow.Vec, bool) {
	switch len(cands) {
	case 0:
		return flow.Vec{}, false
	case 1:
		return cands[0].Flow, true
	}

	switch r.strategy {
	case flow.StrategyMaxFlow:
		return maxFlow(cands), true
	case flow.StrategyAvgFlow:
		return weightedMean(canonical(cands, s), s, func(c splat.Candidate) float64 {
			return c.Weight
		}), true
	case flow.StrategyMaxImage:
		return r.maxImage(cands, s), true
	case flow.StrategyAvgImage:
		return weightedMean(canonical(cands, s), s, func(c splat.Candidate) float64 {
			return 1 / math.Max(r.photometric(c, s), r.epsilon)
		}), true
	}
	return flow.Vec{}, false
}

// maxFlow returns the candidate of largest magnitude; equal magnitudes go to
// the smaller source index, i.e. the first one in source raster order.
func maxFlow(cands []splat.Candidate) flow.Vec {
	best := 0
	bestNorm := cands[0].Flow.Norm()
	for i := 1; i < len(cands); i++ {
		n := cands[i].Flow.Norm()
		if n > bestNorm || (n == bestNorm && cands[i].Source < cands[best].Source) {
			best, bestNorm = i, n
		}
	}
	return cands[best].Flow
}

// maxImage returns the candidate whose source intensity best matches img2 at
// its landing position; ties go to the smaller source index.
func (r *Resolver) maxImage(cands []splat.Candidate, s *scratch) flow.Vec {
	best := 0
	bestDiff := r.photometric(cands[0], s)
	for i := 1; i < len(cands); i++ {
		d := r.photometric(cands[i], s)
		if d < bestDiff || (d == bestDiff && cands[i].Source < cands[best].Source) {
			best, bestDiff = i, d
		}
	}
	return cands[best].Flow
}

// photometric is the channel-wise Euclidean distance between the candidate's
// source intensity and img2 sampled bilinearly where the candidate landed.
func (r *Resolver) photometric(c splat.Candidate, s *scratch) float64 {
	if c.Intensity == nil {
		return math.Inf(1)
	}
	s.sample = r.img2.Sample(c.TargetX, c.TargetY, s.sample)
	return flow.Distance(c.Intensity, s.sample)
}

// canonical returns cands sorted by source index. Splatting already produces
// that order, in which case the input is returned as is.
func canonical(cands []splat.Candidate, s *scratch) []splat.Candidate {
	bySource := func(a, b splat.Candidate) int { return a.Source - b.Source }
	if slices.IsSortedFunc(cands, bySource) {
		return cands
	}
	s.order = append(s.order[:0], cands...)
	slices.SortFunc(s.order, bySource)
	return s.order
}

// weightedMean averages the candidate vectors with the given weights,
// renormalised to sum to one. The summation order is the order of cands.
func weightedMean(cands []splat.Candidate, s *scratch, weight func(splat.Candidate) float64) flow.Vec {
	s.weights = s.weights[:0]
	s.us = s.us[:0]
	s.vs = s.vs[:0]
	for _, c := range cands {
		s.weights = append(s.weights, weight(c))
		s.us = append(s.us, float64(c.Flow.U))
		s.vs = append(s.vs, float64(c.Flow.V))
	}
	total := floats.Sum(s.weights)
	if total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		// Every weight was zero or unusable; fall back to a plain mean.
		for i := range s.weights {
			s.weights[i] = 1
		}
		total = float64(len(s.weights))
	}
	return flow.Vec{
		U: float32(floats.Dot(s.weights, s.us) / total),
		V: float32(floats.Dot(s.weights, s.vs) / total),
	}
}
