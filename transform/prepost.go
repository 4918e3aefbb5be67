package transform

import (
	"github.com/nickng/loopforge/ir"
	"github.com/nickng/loopforge/loop"
	"github.com/nickng/loopforge/optlog"
)

// PreMainPostResult names the three loop headers and the fragments the
// split produced. The pre loop is the original loop in place; main and
// post are the duplicates.
type PreMainPostResult struct {
	Pre  *ir.Block
	Main *ir.Block
	Post *ir.Block

	MainFragment *loop.Fragment
	PostFragment *loop.Fragment
}

// EnsureExitsHaveUniqueStates gives every loop exit its own frame state
// copy. Exit states can be shared with states outside the loop; once the
// split starts duplicating exits, a shared state could no longer tell
// apart what belongs to which loop, so each exit gets a private one
// first.
func EnsureExitsHaveUniqueStates(lp *loop.Loop) {
	f := lp.Func()
	for _, x := range lp.LoopExits() {
		if x.State == nil {
			continue
		}
		old := x.State
		st := x.NewValue(ir.OpFrameState, ir.TypeState, old.Args...)
		x.SetState(st)
		f.KillUnusedFloating(old)
	}
	lp.InvalidateFragmentsAndIVs()
}

// InsertPrePostLoops splits a counted loop into pre, main and post
// loops, dividing the iteration space so that the majority of iterations
// run in the main loop, which later passes (partial unrolling, and
// vectorizers beyond this module) target. Values flow pre -> main ->
// post through proxies at the counted exits; all uses below the original
// loop end up reading the post loop's results. The pre loop is
// constrained to a single iteration by clamping its limit.
func InsertPrePostLoops(lp *loop.Loop, log *optlog.Log) *PreMainPostResult {
	f := lp.Func()
	preHeader := lp.LoopBegin()
	ir.Assertf(lp.IsCounted(), "pre/main/post split of non-counted loop at b%d", preHeader.ID)
	ir.Assertf(lp.CanDuplicate(), "%s cannot be duplicated", lp)

	EnsureExitsHaveUniqueStates(lp)

	preCounted := lp.Counted()
	preExit := preCounted.Exit
	inverted := preCounted.Inverted
	ir.Assertf(preExit.Kind == ir.BlockPlain, "counted exit b%d must forward, got %s", preExit.ID, preExit.Kind)
	bi := lp.BackPredIndex()
	latch := lp.Latches()[0]
	prePhis := preHeader.Phis()

	// Duplicate the loop twice. Each duplication merges the exits of the
	// original with its own; for the counted exit this stacks two merges
	// between the pre exit and the continuation, which the control
	// rewiring below dissolves again. Early-exit merges stay.
	mainFrag := lp.DuplicateWhole()
	mainHeader := mainFrag.Header()
	mainExit := mainFrag.Blocks[preExit]
	_, mainMerge := ir.BlockEndAfter(mainExit)

	postFrag := lp.DuplicateWhole()
	postHeader := postFrag.Header()
	postExit := postFrag.Blocks[preExit]
	_, postMerge := ir.BlockEndAfter(postExit)

	preHeader.Role = ir.RolePre
	mainHeader.Role = ir.RoleMain
	postHeader.Role = ir.RolePost

	// The only path that really leaves the original iteration space is
	// the post loop's counted exit. The merge phis created for the
	// counted exit all collapse to the post loop's proxies, and the
	// merge states go away with them.
	em1 := countedMerge(mainFrag, preExit)
	em2 := countedMerge(postFrag, preExit)
	clearState(f, mainMerge)
	for q, mphi := range em1.PhiFor {
		f.ReplaceUses(mphi, postFrag.Values[q])
		f.KillValue(mphi)
	}
	clearState(f, postMerge)
	for _, mphi := range em2.PhiFor {
		f.KillValue(mphi)
	}

	// Pre and main no longer exit the original loop: control always
	// continues into the next loop. Their exit states must describe the
	// next loop's entry instead: for head-tested loops that is the
	// header state, for tail-tested loops the last body state dominating
	// the tail check (the protected first iteration re-executes from
	// there on deopt).
	createExitState(f, lp.Contains, preHeader, preExit, inverted, preCounted.LimitTest)
	mainContains := containsFn(lp, mainFrag)
	createExitState(f, mainContains, mainHeader, mainExit, inverted, mainFrag.Blocks[preCounted.LimitTest])

	// pre exit -> main loop; main loop phis start from the pre results.
	preExit.ReplaceSucc(0, mainHeader)
	for _, p := range prePhis {
		v := p
		if inverted {
			v = p.Args[bi]
		}
		if !lp.IsOutsideLoop(v) {
			v = loop.PatchProxyAt(preExit, v)
		}
		mainFrag.Values[p].AddArg(v)
	}

	// main exit -> post loop, same wiring one level down.
	mainBack := mainHeader.PredIndex(mainFrag.Blocks[latch])
	mainExit.ReplaceSucc(0, postHeader)
	for _, p := range prePhis {
		mainPhi := mainFrag.Values[p]
		v := mainPhi
		if inverted {
			v = mainPhi.Args[mainBack]
		}
		if v.Block != nil && mainContains(v.Block) {
			v = loop.PatchProxyAt(mainExit, v)
		}
		postFrag.Values[p].AddArg(v)
	}

	// The emptied merges are straight passthroughs now; fold them so the
	// post exit reaches the continuation directly.
	f.RemovePassthrough(postMerge)
	f.RemovePassthrough(mainMerge)

	// Constrain the pre loop to one iteration: its limit becomes
	// init+stride clamped against the original limit, so a short
	// iteration space still terminates correctly.
	lp.ResetCounted()
	updatePreLoopLimit(f, lp, lp.Counted())

	origFrequency := lp.LocalFrequency()
	preHeader.OrigFrequency = origFrequency
	mainHeader.OrigFrequency = origFrequency
	postHeader.OrigFrequency = origFrequency

	// Pre and post bodies run once. Head-tested loops perform their exit
	// check twice per run (enter, re-check), tail-tested once; adapting
	// with that frequency propagates the right probability into the
	// body.
	prePostFrequency := 2.0
	if inverted {
		prePostFrequency = 1.0
	}
	AdjustExitProbability(preExit, prePostFrequency)
	AdjustExitProbability(postExit, prePostFrequency)

	// Single-visit loops do not need safepoint polls.
	f.RemoveSafepoints(lp.Blocks())
	f.RemoveSafepoints(fragmentBlocks(lp, postFrag))

	lp.InvalidateFragmentsAndIVs()
	log.Report(optlog.PreMainPostInsertion, preHeader)
	return &PreMainPostResult{
		Pre:          preHeader,
		Main:         mainHeader,
		Post:         postHeader,
		MainFragment: mainFrag,
		PostFragment: postFrag,
	}
}

func countedMerge(fr *loop.Fragment, exit *ir.Block) *loop.ExitMerge {
	for _, em := range fr.Merges {
		if em.Exit == exit {
			return em
		}
	}
	ir.Fatalf("no merge for counted exit b%d", exit.ID)
	return nil
}

func clearState(f *ir.Func, b *ir.Block) {
	if b.State == nil {
		return
	}
	st := b.State
	b.SetState(nil)
	f.KillUnusedFloating(st)
}

// containsFn reports membership in a duplicated loop body, by mapping
// the original loop's blocks through the fragment.
func containsFn(lp *loop.Loop, fr *loop.Fragment) func(*ir.Block) bool {
	in := make(map[*ir.Block]bool)
	for _, b := range lp.Blocks() {
		in[fr.Blocks[b]] = true
	}
	return func(b *ir.Block) bool { return in[b] }
}

func fragmentBlocks(lp *loop.Loop, fr *loop.Fragment) []*ir.Block {
	var blocks []*ir.Block
	for _, b := range lp.Blocks() {
		blocks = append(blocks, fr.Blocks[b])
	}
	return blocks
}

// createExitState replaces the frame state at a counted exit that no
// longer leaves the iteration space. In-loop values the state mentions
// are routed through proxies at the exit.
func createExitState(f *ir.Func, contains func(*ir.Block) bool, header, exit *ir.Block, inverted bool, tailTest *ir.Block) {
	var src *ir.Value
	if inverted {
		src = findLastState(f, contains, tailTest)
	} else {
		src = header.State
	}
	if src == nil {
		return
	}
	st := exit.NewValue(ir.OpFrameState, ir.TypeState)
	for _, a := range src.Args {
		if a.Block != nil && contains(a.Block) {
			st.AddArg(loop.PatchProxyAt(exit, a))
		} else {
			st.AddArg(a)
		}
	}
	old := exit.State
	exit.SetState(st)
	if old != nil {
		f.KillUnusedFloating(old)
	}
}

// findLastState walks the dominator chain from the tail check towards
// the header and returns the nearest frame state inside the loop.
func findLastState(f *ir.Func, contains func(*ir.Block) bool, from *ir.Block) *ir.Value {
	idom := f.Idom()
	for b := from; b != nil && contains(b); b = idom[b.ID] {
		if b.State != nil {
			return b.State
		}
	}
	return nil
}

// updatePreLoopLimit rewrites the pre loop's exit check so the loop body
// executes exactly once when the iteration space allows it: the limit
// becomes init+stride, clamped against the original limit.
func updatePreLoopLimit(f *ir.Func, lp *loop.Loop, c *loop.Counted) {
	t := c.IV.Phi.Type
	entry := lp.LoopBegin().Preds[lp.ForwardPredIndex()].Block()
	stride := f.ConstInt(t, c.IV.Stride)
	newLimit := entry.NewValue(ir.OpAdd, t, c.BodyIVStart(), stride)
	ub := c.Limit
	var entryCheck *ir.Value
	if c.Direction == loop.Up {
		entryCheck = entry.NewValue(ir.OpLess, ir.TypeBool, newLimit, ub)
	} else {
		entryCheck = entry.NewValue(ir.OpLess, ir.TypeBool, ub, newLimit)
	}
	clamped := entry.NewValue(ir.OpSelect, t, entryCheck, newLimit, ub)
	c.LimitTest.Ctrl.ReplaceArg(ub, clamped)
}
