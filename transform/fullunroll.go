package transform

import (
	"github.com/pkg/errors"

	"github.com/nickng/loopforge/canon"
	"github.com/nickng/loopforge/ir"
	"github.com/nickng/loopforge/loop"
	"github.com/nickng/loopforge/optlog"
)

// ErrBailout is returned when a transformation gives up because the
// graph grows out of proportion. The graph is left in a consistent (if
// partially transformed) state; callers typically retry without the
// transformation.
var ErrBailout = errors.New("graph seems to grow out of proportion")

// FullUnroll removes the loop entirely by peeling iterations until the
// loop header becomes unreachable: once enough iterations are peeled,
// the copied exit check folds to a constant, the entry path into the
// loop collapses and dead-code removal deletes the loop. Loops whose
// trip count cannot be proven this way hit the node or iteration budget
// and fail with ErrBailout.
func FullUnroll(lp *loop.Loop, cfg Config, log *optlog.Log) error {
	f := lp.Func()
	h := lp.LoopBegin()
	initialNodeCount := f.NumNodes()
	c := canon.New(f)

	peelings := 0
	for !h.Dead() {
		inside := Peel(lp, log)
		// Canonicalize what the peel touched: the copied iteration, the
		// header phis it rewired and the exit proxies it widened. Once
		// enough is peeled the copied exit check folds and the entry
		// path into the loop collapses here.
		seed := make([]*ir.Value, 0, len(inside.Values)+2*len(h.Phis()))
		for _, v := range inside.Values {
			seed = append(seed, v)
		}
		seed = append(seed, h.Phis()...)
		for _, x := range lp.LoopExits() {
			seed = append(seed, x.Phis()...)
		}
		c.ApplyIncremental(seed)
		lp.InvalidateFragmentsAndIVs()
		f.RemoveUnreachable()
		if f.NumNodes() > initialNodeCount+2*cfg.MaximumDesiredSize || peelings > cfg.FullUnrollMaxIterations {
			return errors.Wrapf(ErrBailout, "full unroll of loop at b%d", h.ID)
		}
		peelings++
	}
	log.Report(optlog.LoopFullUnroll, h)
	return nil
}
