package sweep

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/inverseflow/internal/db"
	"github.com/banshee-data/inverseflow/internal/evaluate"
	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/flow/inverse"
	"github.com/banshee-data/inverseflow/internal/monitoring"
)

// Input is the data every combination of a sweep runs on.
type Input struct {
	Forward    *flow.Field
	Img1       *flow.Image // optional
	Img2       *flow.Image // optional
	Reference  *flow.Field // optional ground-truth backward flow
	SourcePath string
}

// HaveImages reports whether both images are present.
func (in Input) HaveImages() bool { return in.Img1 != nil && in.Img2 != nil }

// Result is the outcome of one combination. Err is set when the inversion
// itself failed, for example with flow.ErrFill on a fully occluded input;
// the other fields are then zero.
type Result struct {
	Combo    Combo
	Backward *flow.Field
	Mask     *flow.Mask
	Stats    inverse.Stats

	Metrics     *evaluate.Metrics // nil without a reference
	Photometric *float64          // nil without images
	Consistency float64

	RunID string // set when recorded
	Err   error
}

// Runner executes sweeps.
type Runner struct {
	// Base supplies every option except Strategy and Fill.
	Base inverse.Options
	// Concurrency bounds how many combinations run at once; 0 means one.
	// Each inversion is itself parallel over Base.Workers.
	Concurrency int
	// Store, when set, receives one row per successful combination.
	Store *db.RunStore
	// Label tags the recorded rows so one sweep can be listed together.
	Label string
	// KeepOutputs retains Backward and Mask on the results.
	KeepOutputs bool
}

// NewRunner returns a Runner using base options.
func NewRunner(base inverse.Options) *Runner {
	return &Runner{Base: base}
}

// Run executes every combination and returns the results in combo order.
// Per-combination inversion failures are reported in Result.Err; Run itself
// fails only on invalid input, ledger errors or cancellation.
func (r *Runner) Run(ctx context.Context, in Input, combos []Combo) ([]Result, error) {
	if in.Forward == nil {
		return nil, fmt.Errorf("%w: sweep needs a forward field", flow.ErrConfiguration)
	}
	if err := flow.CheckDims(in.Forward, in.Img1, in.Img2); err != nil {
		return nil, err
	}
	if in.Reference != nil && !in.Reference.SameSize(in.Forward.Width, in.Forward.Height) {
		return nil, fmt.Errorf("%w: reference is %dx%d, flow is %dx%d", flow.ErrDimensionMismatch,
			in.Reference.Width, in.Reference.Height, in.Forward.Width, in.Forward.Height)
	}

	results := make([]Result, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Concurrency, 1))
	for i, c := range combos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := r.runOne(in, c)
			if res.Err != nil {
				monitoring.Logf("[sweep] %s failed: %v", c, res.Err)
			} else if r.Store != nil {
				id, err := r.record(in, &res)
				if err != nil {
					return fmt.Errorf("record %s: %w", c, err)
				}
				res.RunID = id
			}
			if !r.KeepOutputs {
				res.Backward, res.Mask = nil, nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) runOne(in Input, c Combo) Result {
	opts := r.Base
	opts.Strategy, opts.Fill = c.Strategy, c.Fill

	res := Result{Combo: c}
	out, err := inverse.Run(in.Forward, in.Img1, in.Img2, opts)
	if err != nil {
		res.Err = err
		return res
	}
	res.Backward, res.Mask, res.Stats = out.Backward, out.Mask, out.Stats

	if in.Reference != nil {
		m, err := evaluate.EndpointError(out.Backward, in.Reference, out.Mask)
		if err != nil {
			res.Err = err
			return res
		}
		res.Metrics = &m
	}
	if in.HaveImages() {
		p, err := evaluate.PhotometricError(out.Backward, in.Img1, in.Img2)
		if err != nil {
			res.Err = err
			return res
		}
		res.Photometric = &p
	}
	res.Consistency, err = evaluate.ForwardBackwardConsistency(in.Forward, out.Backward)
	if err != nil {
		res.Err = err
	}

	monitoring.Debugf("[sweep] %s valid=%.3f consistency=%.4f elapsed=%v",
		c, res.Stats.ValidFraction(), res.Consistency, res.Stats.Elapsed())
	return res
}

func (r *Runner) record(in Input, res *Result) (string, error) {
	params, err := json.Marshal(paramsOf(r.Base))
	if err != nil {
		return "", err
	}
	run := &db.Run{
		Label:          r.Label,
		SourcePath:     in.SourcePath,
		Width:          res.Stats.Width,
		Height:         res.Stats.Height,
		Strategy:       string(res.Combo.Strategy),
		Fill:           string(res.Combo.Fill),
		ParamsJSON:     params,
		ValidFraction:  res.Stats.ValidFraction(),
		CandidateTotal: res.Stats.Candidates,
		DurationNs:     res.Stats.Elapsed().Nanoseconds(),
		Consistency:    &res.Consistency,
		FlowBlob:       db.EncodeField(res.Backward),
		MaskBlob:       db.EncodeMask(res.Mask),
	}
	if res.Metrics != nil {
		run.MeanEPE = &res.Metrics.All.Mean
	}
	run.PhotometricError = res.Photometric
	if err := r.Store.Insert(run); err != nil {
		return "", err
	}
	return run.RunID, nil
}

// Params is the JSON form of the options shared by every run of a sweep.
type Params struct {
	ImageEpsilon       float64 `json:"image_epsilon"`
	MinNeighbors       int     `json:"min_neighbors"`
	MaxRadius          int     `json:"max_radius"`
	OrientedDirections int     `json:"oriented_directions"`
	OrientedReduce     string  `json:"oriented_reduce"`
	Workers            int     `json:"workers"`
}

func paramsOf(o inverse.Options) Params {
	return Params{
		ImageEpsilon:       o.ImageEpsilon,
		MinNeighbors:       o.MinNeighbors,
		MaxRadius:          o.MaxRadius,
		OrientedDirections: o.OrientedDirections,
		OrientedReduce:     string(o.OrientedReduce),
		Workers:            o.Workers,
	}
}

// Best returns the index of the best successful result: lowest mean
// endpoint error when scored against a reference, otherwise lowest
// forward-backward inconsistency. Ties keep the earlier combination.
// It returns -1 when every result failed.
func Best(results []Result) int {
	best := -1
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		if best < 0 || score(r) < score(results[best]) {
			best = i
		}
	}
	return best
}

func score(r Result) float64 {
	if r.Metrics != nil {
		return r.Metrics.All.Mean
	}
	return r.Consistency
}
