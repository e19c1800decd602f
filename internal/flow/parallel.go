package flow

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RowRange is a contiguous block of rows [Start, End).
type RowRange struct {
	Start int
	End   int
}

// Workers resolves a requested worker count: values <= 0 mean GOMAXPROCS.
func Workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// Partition splits [0, n) into at most workers contiguous, non-empty,
// ordered blocks. It returns nil for n <= 0.
func Partition(n, workers int) []RowRange {
	if n <= 0 {
		return nil
	}
	workers = min(Workers(workers), n)
	chunk := (n + workers - 1) / workers
	parts := make([]RowRange, 0, workers)
	for start := 0; start < n; start += chunk {
		parts = append(parts, RowRange{Start: start, End: min(start+chunk, n)})
	}
	return parts
}

// ForRows runs fn once per partition of [0, n). With a single partition fn
// runs on the calling goroutine. fn receives the partition index, so callers
// can write into privatised per-partition buffers and merge them in order.
func ForRows(n, workers int, fn func(part int, rows RowRange) error) error {
	parts := Partition(n, workers)
	if len(parts) <= 1 {
		for i, r := range parts {
			if err := fn(i, r); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(len(parts))
	for i, r := range parts {
		g.Go(func() error {
			return fn(i, r)
		})
	}
	return g.Wait()
}
