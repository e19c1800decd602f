// Package flow owns the data model shared by every stage of flow inversion.
//
// Responsibilities: dense vector fields, auxiliary float images, validity
// masks, the strategy and fill enumerations, the sentinel error kinds, and
// the row partitioning used by the parallel stages.
// Key types: Field, Vec, Image, Mask, Strategy, Fill.
//
// Dependency rule: flow depends on nothing else in this module. The stage
// packages (splat, resolve, fill) depend on flow; inverse composes them.
//
// Coordinates follow image convention: x is the column in [0, Width),
// y is the row in [0, Height). A Vec holds the horizontal displacement U
// and the vertical displacement V.
package flow
