// Package evaluate scores a backward flow field against a reference field,
// against the image pair, and against the forward field it was derived from.
package evaluate

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/inverseflow/internal/flow"
)

// Summary describes one error distribution.
type Summary struct {
	N      int
	Mean   float64
	Median float64
	P95    float64
	Max    float64
}

// Metrics is the endpoint-error report of an estimate.
type Metrics struct {
	All           Summary // every cell with a known reference vector
	Valid         Summary // cells the mask marks valid
	ValidFraction float64
}

// EndpointError compares est with ref cell by cell. Reference cells holding
// unknown vectors are skipped. mask may be nil, in which case every cell
// counts as valid.
func EndpointError(est, ref *flow.Field, mask *flow.Mask) (Metrics, error) {
	if est == nil || ref == nil {
		return Metrics{}, fmt.Errorf("%w: missing field", flow.ErrConfiguration)
	}
	if !est.SameSize(ref.Width, ref.Height) {
		return Metrics{}, fmt.Errorf("%w: estimate is %dx%d, reference is %dx%d",
			flow.ErrDimensionMismatch, est.Width, est.Height, ref.Width, ref.Height)
	}
	if mask != nil && (mask.Width != ref.Width || mask.Height != ref.Height) {
		return Metrics{}, fmt.Errorf("%w: mask is %dx%d, reference is %dx%d",
			flow.ErrDimensionMismatch, mask.Width, mask.Height, ref.Width, ref.Height)
	}

	all := make([]float64, 0, len(ref.Vecs))
	valid := make([]float64, 0, len(ref.Vecs))
	for i, r := range ref.Vecs {
		if !r.IsKnown() {
			continue
		}
		e := est.Vecs[i]
		epe := math.Hypot(float64(e.U-r.U), float64(e.V-r.V))
		all = append(all, epe)
		if mask == nil || mask.Valid[i] {
			valid = append(valid, epe)
		}
	}

	m := Metrics{All: summarize(all), Valid: summarize(valid), ValidFraction: 1}
	if mask != nil {
		m.ValidFraction = mask.ValidFraction()
	}
	return m, nil
}

func summarize(x []float64) Summary {
	if len(x) == 0 {
		return Summary{}
	}
	slices.Sort(x)
	return Summary{
		N:      len(x),
		Mean:   stat.Mean(x, nil),
		Median: stat.Quantile(0.5, stat.Empirical, x, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, x, nil),
		Max:    x[len(x)-1],
	}
}

// PhotometricError warps img1 into the frame of img2 with the backward field
// and returns the mean absolute intensity difference per channel. Cells with
// unknown backward vectors are skipped; with none left the error is 0.
func PhotometricError(backward *flow.Field, img1, img2 *flow.Image) (float64, error) {
	if img1 == nil || img2 == nil {
		return 0, fmt.Errorf("%w: photometric error needs both images", flow.ErrConfiguration)
	}
	if err := flow.CheckDims(backward, img1, img2); err != nil {
		return 0, err
	}

	diffs := make([]float64, 0, backward.Len())
	sample := make([]float32, img1.Channels)
	for i, b := range backward.Vecs {
		if !b.IsKnown() {
			continue
		}
		x, y := backward.Coords(i)
		sample = img1.Sample(float64(x)+float64(b.U), float64(y)+float64(b.V), sample)
		var sum float64
		for c, v := range img2.At(x, y) {
			sum += math.Abs(float64(v - sample[c]))
		}
		diffs = append(diffs, sum/float64(img1.Channels))
	}
	if len(diffs) == 0 {
		return 0, nil
	}
	return stat.Mean(diffs, nil), nil
}

// ForwardBackwardConsistency returns the mean of |f(x) + b(x + f(x))| over
// every source cell whose forward target lies inside the grid. A perfect
// inverse scores 0. With no such cell the score is 0.
func ForwardBackwardConsistency(forward, backward *flow.Field) (float64, error) {
	if forward == nil || backward == nil {
		return 0, fmt.Errorf("%w: missing field", flow.ErrConfiguration)
	}
	if !forward.SameSize(backward.Width, backward.Height) {
		return 0, fmt.Errorf("%w: forward is %dx%d, backward is %dx%d",
			flow.ErrDimensionMismatch, forward.Width, forward.Height, backward.Width, backward.Height)
	}

	residuals := make([]float64, 0, forward.Len())
	maxX, maxY := float64(forward.Width-1), float64(forward.Height-1)
	for i, f := range forward.Vecs {
		if !f.IsKnown() {
			continue
		}
		x, y := forward.Coords(i)
		tx, ty := float64(x)+float64(f.U), float64(y)+float64(f.V)
		if tx < 0 || ty < 0 || tx > maxX || ty > maxY {
			continue
		}
		b := backward.Sample(tx, ty)
		residuals = append(residuals, math.Hypot(float64(f.U+b.U), float64(f.V+b.V)))
	}
	if len(residuals) == 0 {
		return 0, nil
	}
	return stat.Mean(residuals, nil), nil
}
