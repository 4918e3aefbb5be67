package transform

import (
	"github.com/nickng/loopforge/ir"
	"github.com/nickng/loopforge/loop"
)

// IsUnrollable reports whether the loop qualifies for partial unrolling.
// The check is deliberately conservative: unrolling mutates the exit
// condition in place and doubles the induction stride, so every property
// that could make that unsound rejects the loop.
func IsUnrollable(lp *loop.Loop) bool {
	if !lp.IsCounted() {
		return false
	}
	c := lp.Counted()
	if len(lp.Children) > 0 || lp.BackEdgeCount() != 1 || len(lp.LoopExits()) > 1 || c.Inverted {
		// Inverted loops cannot be unrolled without protecting their
		// first iteration.
		return false
	}
	// Equality-style checks can step over the adjusted limit once the
	// stride doubles; only ordered comparisons bound the overshoot.
	if op := c.LimitTest.Ctrl.Op; op != ir.OpLess && op != ir.OpLeq {
		return false
	}
	if c.ConditionHasMultipleUsages() {
		return false
	}
	if c.StrideAdditionOverflows() {
		return false
	}
	if !lp.CanDuplicate() {
		return false
	}
	h := lp.LoopBegin()
	if h.Role != ir.RoleMain && h.Role != ir.RoleNone {
		return false
	}
	// Flow-less loops only for now: more than an exit check and a body
	// means control flow that unrolling would replicate blindly.
	return len(lp.Blocks()) < 3
}
