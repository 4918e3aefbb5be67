package transform

import (
	"github.com/nickng/loopforge/ir"
	"github.com/nickng/loopforge/loop"
	"github.com/nickng/loopforge/optlog"
)

// PartialUnroll doubles the work done per loop iteration of a main loop:
// the body is duplicated onto the back edge, the copied exit check is
// removed, and the limit of the remaining exit check is pulled in by one
// stride so the doubled induction step cannot overshoot. Iterations that
// no longer fit the doubled stride are picked up by the post loop.
//
// The caller is expected to have established pre/main/post form
// (InsertPrePostLoops) and checked IsUnrollable.
func PartialUnroll(lp *loop.Loop, log *optlog.Log) {
	h := lp.LoopBegin()
	ir.Assertf(h.Role == ir.RoleMain, "partial unroll of non-main loop at b%d (%s)", h.ID, h.Role)
	ir.Assertf(IsUnrollable(lp), "partial unroll of unqualified loop at b%d", h.ID)
	c := lp.Counted()

	AdjustExitProbability(c.Exit, lp.LocalFrequency()/2)

	stride := c.IV.Stride
	// The entry block is where the adjusted limit will live; resolve it
	// before duplication rearranges the header predecessors.
	entry := h.Preds[lp.ForwardPredIndex()].Block()
	frag := lp.InsertIterationAfter()

	// The duplicated exit check always continues: the limit adjustment
	// below guarantees room for both halves of the doubled iteration.
	dupTest := frag.Blocks[c.LimitTest]
	dupTest.CollapseToSucc(1 - c.ExitIdx)

	updateMainLoopLimit(lp, c, entry, stride)

	if h.UnrollFactor == 0 {
		h.UnrollFactor = 2
	} else {
		h.UnrollFactor *= 2
	}
	lp.InvalidateFragmentsAndIVs()
	log.Report(optlog.LoopPartialUnroll, h, optlog.Prop{Name: "unrollFactor", Value: int64(h.UnrollFactor)})
}

// updateMainLoopLimit replaces the limit of the exit check with
// limit - stride, which holds back exactly the iterations the doubled
// stride could overshoot. The signed subtraction covers both directions:
// down-counted loops have a negative stride, moving the limit up. The
// stride operand is shielded in an Opaque so later canonicalization
// rounds cannot merge the adjustment into a constant limit while more
// unrolling may still follow.
func updateMainLoopLimit(lp *loop.Loop, c *loop.Counted, entry *ir.Block, stride int64) {
	f := lp.Func()
	t := c.IV.Phi.Type
	sv := entry.NewValue(ir.OpOpaque, t, f.ConstInt(t, stride))
	newLimit := entry.NewValue(ir.OpSub, t, c.Limit, sv)
	c.LimitTest.Ctrl.ReplaceArg(c.Limit, newLimit)
}
