// Package fill assigns a backward vector to every cell the resolver left
// empty.
//
// Valid cells pass through unchanged and every filled value is computed from
// valid cells only, never from other filled cells, so filling is a single
// pass and refilling its own output with the same mask changes nothing.
//
// The isotropic strategies (min, avg) search square rings of growing
// Chebyshev radius around the hole. A multi-source flood from all valid cells
// first records, for every cell, the radius of the nearest ring that holds a
// valid cell, so each search starts there instead of at radius one. The
// oriented strategy only looks along the compass directions.
package fill

import (
	"fmt"

	"github.com/banshee-data/inverseflow/internal/flow"
)

// Reduce combines the cells found by the oriented search.
type Reduce string

const (
	// ReduceAvg takes the inverse-distance weighted average.
	ReduceAvg Reduce = "avg"
	// ReduceMin takes the vector of smallest magnitude.
	ReduceMin Reduce = "min"
)

// ParseReduce parses a reduce name.
func ParseReduce(name string) (Reduce, error) {
	switch r := Reduce(name); r {
	case ReduceAvg, ReduceMin:
		return r, nil
	case "":
		return ReduceAvg, nil
	}
	return "", fmt.Errorf("%w: unknown oriented reduce %q", flow.ErrConfiguration, name)
}

// Defaults for the search parameters.
const (
	DefaultMinNeighbors       = 4
	DefaultOrientedDirections = 8
)

// Config selects the fill strategy and its search parameters.
type Config struct {
	Fill flow.Fill
	// MinNeighbors is how many valid cells avg gathers before it stops
	// adding rings.
	MinNeighbors int
	// MaxRadius caps the ring radius for avg once at least one valid cell
	// has been found; 0 means the whole grid may be scanned.
	MaxRadius int
	// OrientedDirections is 4 (axes) or 8 (axes and diagonals).
	OrientedDirections int
	// OrientedReduce combines the per-direction hits.
	OrientedReduce Reduce
	// Workers follows flow.Workers.
	Workers int
}

// DefaultConfig returns the oriented fill with default parameters.
func DefaultConfig() Config {
	return Config{
		Fill:               flow.FillOriented,
		MinNeighbors:       DefaultMinNeighbors,
		OrientedDirections: DefaultOrientedDirections,
		OrientedReduce:     ReduceAvg,
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if !c.Fill.Valid() {
		return fmt.Errorf("%w: unknown fill %q", flow.ErrConfiguration, c.Fill)
	}
	if c.MinNeighbors < 0 {
		return fmt.Errorf("%w: min neighbors must be non-negative, got %d", flow.ErrConfiguration, c.MinNeighbors)
	}
	if c.MaxRadius < 0 {
		return fmt.Errorf("%w: max radius must be non-negative, got %d", flow.ErrConfiguration, c.MaxRadius)
	}
	if c.OrientedDirections != 0 && c.OrientedDirections != 4 && c.OrientedDirections != 8 {
		return fmt.Errorf("%w: oriented directions must be 4 or 8, got %d", flow.ErrConfiguration, c.OrientedDirections)
	}
	if _, err := ParseReduce(string(c.OrientedReduce)); err != nil {
		return err
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MinNeighbors == 0 {
		c.MinNeighbors = DefaultMinNeighbors
	}
	if c.OrientedDirections == 0 {
		c.OrientedDirections = DefaultOrientedDirections
	}
	if c.OrientedReduce == "" {
		c.OrientedReduce = ReduceAvg
	}
	return c
}

// Fill returns a dense copy of sparse in which every invalid cell of mask
// has been assigned a value. sparse and mask are not modified.
func Fill(sparse *flow.Field, mask *flow.Mask, cfg Config) (*flow.Field, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sparse == nil || mask == nil {
		return nil, fmt.Errorf("%w: fill needs a field and a mask", flow.ErrConfiguration)
	}
	if mask.Width != sparse.Width || mask.Height != sparse.Height || len(mask.Valid) != len(sparse.Vecs) {
		return nil, fmt.Errorf("%w: mask is %dx%d, field is %dx%d",
			flow.ErrDimensionMismatch, mask.Width, mask.Height, sparse.Width, sparse.Height)
	}
	cfg = cfg.withDefaults()

	out := sparse.Clone()
	if cfg.Fill == flow.FillNone {
		for i, ok := range mask.Valid {
			if !ok {
				out.Vecs[i] = flow.Vec{}
			}
		}
		return out, nil
	}

	valid := mask.ValidCount()
	if valid == len(mask.Valid) {
		return out, nil
	}
	if valid == 0 {
		return nil, fmt.Errorf("%w: %s fill has no valid cell to seed from (%dx%d grid fully occluded)",
			flow.ErrFill, cfg.Fill, sparse.Width, sparse.Height)
	}

	s := newSearcher(sparse, mask)
	var fillCell func(i int) flow.Vec
	switch cfg.Fill {
	case flow.FillMin:
		fillCell = s.smallest
	case flow.FillAvg:
		fillCell = func(i int) flow.Vec { return s.average(i, cfg.MinNeighbors, cfg.MaxRadius) }
	case flow.FillOriented:
		dirs := compass[:cfg.OrientedDirections]
		fillCell = func(i int) flow.Vec {
			if v, ok := s.oriented(i, dirs, cfg.OrientedReduce); ok {
				return v
			}
			return s.average(i, cfg.MinNeighbors, cfg.MaxRadius)
		}
	}

	w := sparse.Width
	err := flow.ForRows(sparse.Height, cfg.Workers, func(_ int, rows flow.RowRange) error {
		for i := rows.Start * w; i < rows.End*w; i++ {
			if !mask.Valid[i] {
				out.Vecs[i] = fillCell(i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
