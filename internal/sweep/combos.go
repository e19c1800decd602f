// Package sweep runs the inversion over a grid of strategy and fill
// combinations, scores each run, and reports the results as CSV and as
// ledger rows.
package sweep

import (
	"fmt"
	"strings"

	"github.com/banshee-data/inverseflow/internal/flow"
)

// Combo is one point of the sweep grid.
type Combo struct {
	Strategy flow.Strategy
	Fill     flow.Fill
}

func (c Combo) String() string { return string(c.Strategy) + "/" + string(c.Fill) }

// Combinations returns the cartesian product of strategies and fills in
// input order. Image strategies are left out when haveImages is false.
func Combinations(strategies []flow.Strategy, fills []flow.Fill, haveImages bool) []Combo {
	combos := make([]Combo, 0, len(strategies)*len(fills))
	for _, s := range strategies {
		if s.NeedsImages() && !haveImages {
			continue
		}
		for _, f := range fills {
			combos = append(combos, Combo{Strategy: s, Fill: f})
		}
	}
	return combos
}

// parseList splits a comma-separated list, trimming blanks.
func parseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseStrategies parses a comma-separated strategy list. An empty list
// selects every strategy.
func ParseStrategies(s string) ([]flow.Strategy, error) {
	names := parseList(s)
	if len(names) == 0 {
		return flow.Strategies, nil
	}
	out := make([]flow.Strategy, 0, len(names))
	for _, n := range names {
		st, err := flow.ParseStrategy(n)
		if err != nil {
			return nil, fmt.Errorf("invalid strategy list %q: %w", s, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// ParseFills parses a comma-separated fill list. An empty list selects
// every fill.
func ParseFills(s string) ([]flow.Fill, error) {
	names := parseList(s)
	if len(names) == 0 {
		return flow.Fills, nil
	}
	out := make([]flow.Fill, 0, len(names))
	for _, n := range names {
		f, err := flow.ParseFill(n)
		if err != nil {
			return nil, fmt.Errorf("invalid fill list %q: %w", s, err)
		}
		out = append(out, f)
	}
	return out, nil
}
