package transform

import (
	"github.com/nickng/loopforge/ir"
)

// singleVisitProbability is the body re-entry probability injected when
// the requested exit frequency implies the loop body runs at most once.
const singleVisitProbability = 0.01

// AdjustExitProbability injects a new branch probability for the check
// dominating the given loop exit, based on the local frequency of that
// check. The calculation acts as if the exit were the only exit of the
// loop: an exit check running freq times continues with probability
// 1 - 1/freq. Frequencies of 1 or below mean the body is expected to
// never be re-entered; those get a fixed low re-entry probability
// instead of a nonsensical one.
func AdjustExitProbability(exit *ir.Block, freq float64) {
	ir.Assertf(len(exit.Preds) == 1, "exit b%d with %d predecessors", exit.ID, len(exit.Preds))
	e := exit.Preds[0]
	AdjustTestProbability(e.Block(), e.Index(), freq)
}

// AdjustTestProbability is AdjustExitProbability addressed at the branch
// performing the check, for callers that hold the limit test while the
// exit block itself has grown extra predecessors (peeled copies feed the
// same exit).
func AdjustTestProbability(test *ir.Block, exitIdx int, freq float64) {
	ir.Assertf(test.Kind == ir.BlockIf, "exit check b%d is not an If, got %s", test.ID, test.Kind)
	test.Func.InvalidateFrequencies()

	p := 1 - 1/freq
	if p <= 0 {
		p = singleVisitProbability
	}
	// Likely is the probability of the true successor; p is the
	// probability of staying in the loop.
	if exitIdx == 0 {
		test.Likely = 1 - p
	} else {
		test.Likely = p
	}
}
