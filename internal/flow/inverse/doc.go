// Package inverse turns a forward optical-flow field into a dense backward
// field plus the mask of cells that were actually observed.
//
// This package is the composition root of the flow stages:
//
//	splat.Splat -> resolve.Resolver -> buildMask -> fill.Fill
//
// Each stage consumes the complete output of the previous one. Inputs are
// read-only; Invert allocates and returns the outputs. The returned mask is
// the pre-fill validity, so it is identical for every fill strategy.
package inverse
