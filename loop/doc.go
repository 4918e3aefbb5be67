// Package loop provides the loop model for loopforge: natural loop
// detection over the IR's dominator tree, counted-loop recognition
// (induction variable, limit, direction, counted exit), loop-local
// execution frequency, and the fragment duplicator used by the
// transformations in package transform.
//
// Loop facts become stale the instant the control flow of the graph
// changes. Transformations must re-detect rather than cache them across
// mutations; Loop.InvalidateFragmentsAndIVs marks the per-loop caches
// accordingly.
package loop
