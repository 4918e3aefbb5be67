// Package transform implements the loop transformations: peeling, full
// and partial unrolling, unswitching and pre/main/post splitting. Each
// transformation takes a detected loop, rewrites the graph in place and
// reports what it did to the optimization log.
package transform

import (
	"github.com/nickng/loopforge/ir"
	"github.com/nickng/loopforge/loop"
	"github.com/nickng/loopforge/optlog"
)

// Peel moves the first iteration of the loop in front of it and returns
// the inserted copy. After peeling the loop runs one iteration less, so
// the exit probability of the main exit is adapted accordingly; for
// non-counted loops with a single If-governed exit the same adjustment
// applies.
func Peel(lp *loop.Loop, log *optlog.Log) *loop.Fragment {
	lp.DetectCounted()
	freqBefore := lp.LocalFrequency()

	// Resolve the exit check before peeling: the peeled copy of the
	// check feeds the same exit block, so afterwards the exit no longer
	// identifies its test.
	limitTest, exitIdx := (*ir.Block)(nil), -1
	if lp.IsCounted() {
		c := lp.Counted()
		limitTest, exitIdx = c.LimitTest, c.ExitIdx
	} else if exits := lp.LoopExits(); len(exits) == 1 && len(exits[0].Preds) == 1 {
		if e := exits[0].Preds[0]; e.Block().Kind == ir.BlockIf {
			limitTest, exitIdx = e.Block(), e.Index()
		}
	}

	inside := lp.InsertIterationBefore()

	h := lp.LoopBegin()
	h.Peelings++
	log.Report(optlog.LoopPeeling, h, optlog.Prop{Name: "peelings", Value: int64(h.Peelings)})

	if limitTest != nil {
		AdjustTestProbability(limitTest, exitIdx, freqBefore-1)
	}
	return inside
}
