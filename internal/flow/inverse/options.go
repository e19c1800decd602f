package inverse

import (
	"fmt"

	"github.com/banshee-data/inverseflow/internal/config"
	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/flow/fill"
	"github.com/banshee-data/inverseflow/internal/flow/resolve"
)

// Options configures one inversion.
type Options struct {
	Strategy flow.Strategy
	Fill     flow.Fill

	// ImageEpsilon floors photometric differences for avg_image.
	ImageEpsilon float64

	// MinNeighbors and MaxRadius bound the ring search of the avg fill (and
	// of the oriented fill's fallback).
	MinNeighbors int
	MaxRadius    int

	// OrientedDirections is 4 or 8; OrientedReduce is avg or min.
	OrientedDirections int
	OrientedReduce     fill.Reduce

	// Workers bounds parallelism; 0 means GOMAXPROCS, 1 runs sequentially.
	// Results do not depend on it.
	Workers int
}

// DefaultOptions returns max_flow resolution with oriented filling.
func DefaultOptions() Options {
	return Options{
		Strategy:           flow.StrategyMaxFlow,
		Fill:               flow.FillOriented,
		ImageEpsilon:       resolve.DefaultImageEpsilon,
		MinNeighbors:       fill.DefaultMinNeighbors,
		OrientedDirections: fill.DefaultOrientedDirections,
		OrientedReduce:     fill.ReduceAvg,
	}
}

// OptionsFromConfig builds Options from a loaded InversionConfig.
func OptionsFromConfig(cfg *config.InversionConfig) (Options, error) {
	if cfg == nil {
		return DefaultOptions(), nil
	}
	strategy, err := flow.ParseStrategy(cfg.GetStrategy())
	if err != nil {
		return Options{}, err
	}
	fl, err := flow.ParseFill(cfg.GetFill())
	if err != nil {
		return Options{}, err
	}
	reduce, err := fill.ParseReduce(cfg.GetOrientedReduce())
	if err != nil {
		return Options{}, err
	}
	o := Options{
		Strategy:           strategy,
		Fill:               fl,
		ImageEpsilon:       cfg.GetImageEpsilon(),
		MinNeighbors:       cfg.GetMinNeighbors(),
		MaxRadius:          cfg.GetMaxRadius(),
		OrientedDirections: cfg.GetOrientedDirections(),
		OrientedReduce:     reduce,
		Workers:            cfg.GetWorkers(),
	}
	return o, o.Validate()
}

// Validate checks the options on their own, without inputs.
func (o Options) Validate() error {
	if !o.Strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %q", flow.ErrConfiguration, o.Strategy)
	}
	if o.ImageEpsilon < 0 {
		return fmt.Errorf("%w: image epsilon must not be negative, got %v", flow.ErrConfiguration, o.ImageEpsilon)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", flow.ErrConfiguration, o.Workers)
	}
	return o.fillConfig().Validate()
}

func (o Options) resolveConfig() resolve.Config {
	return resolve.Config{
		Strategy:     o.Strategy,
		ImageEpsilon: o.ImageEpsilon,
		Workers:      o.Workers,
	}
}

func (o Options) fillConfig() fill.Config {
	return fill.Config{
		Fill:               o.Fill,
		MinNeighbors:       o.MinNeighbors,
		MaxRadius:          o.MaxRadius,
		OrientedDirections: o.OrientedDirections,
		OrientedReduce:     o.OrientedReduce,
		Workers:            o.Workers,
	}
}

// String renders the options for logs and the run ledger.
func (o Options) String() string {
	return fmt.Sprintf("strategy=%s fill=%s eps=%g neighbours=%d radius=%d dirs=%d reduce=%s",
		o.Strategy, o.Fill, o.ImageEpsilon, o.MinNeighbors, o.MaxRadius, o.OrientedDirections, o.OrientedReduce)
}
