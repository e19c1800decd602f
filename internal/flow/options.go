package flow

import (
	"fmt"
	"strings"
)

// Strategy selects how the candidates that land on one target cell are
// reduced to a single backward vector.
type Strategy string

const (
	// StrategyMaxFlow keeps the candidate with the largest magnitude.
	StrategyMaxFlow Strategy = "max_flow"
	// StrategyAvgFlow averages candidates by their bilinear weights.
	StrategyAvgFlow Strategy = "avg_flow"
	// StrategyMaxImage keeps the most photometrically consistent candidate.
	StrategyMaxImage Strategy = "max_image"
	// StrategyAvgImage averages candidates by inverse photometric difference.
	StrategyAvgImage Strategy = "avg_image"
)

// Strategies lists every strategy in a stable order.
var Strategies = []Strategy{StrategyMaxFlow, StrategyAvgFlow, StrategyMaxImage, StrategyAvgImage}

// NeedsImages reports whether s scores candidates against img1 and img2.
func (s Strategy) NeedsImages() bool {
	return s == StrategyMaxImage || s == StrategyAvgImage
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	for _, k := range Strategies {
		if s == k {
			return true
		}
	}
	return false
}

// ParseStrategy parses a strategy name, ignoring case and surrounding space.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown strategy %q", ErrConfiguration, name)
	}
	return s, nil
}

// Fill selects how cells without a candidate are filled.
type Fill string

const (
	// FillNone leaves invalid cells at the zero vector.
	FillNone Fill = "none"
	// FillMin takes the smallest vector of the nearest valid ring.
	FillMin Fill = "min"
	// FillAvg takes a distance-weighted average of nearby valid cells.
	FillAvg Fill = "avg"
	// FillOriented searches along compass directions only.
	FillOriented Fill = "oriented"
)

// Fills lists every fill in a stable order.
var Fills = []Fill{FillMin, FillAvg, FillOriented, FillNone}

// Valid reports whether f is a known fill.
func (f Fill) Valid() bool {
	for _, k := range Fills {
		if f == k {
			return true
		}
	}
	return false
}

// ParseFill parses a fill name, ignoring case and surrounding space.
func ParseFill(name string) (Fill, error) {
	f := Fill(strings.ToLower(strings.TrimSpace(name)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: unknown fill %q", ErrConfiguration, name)
	}
	return f, nil
}
