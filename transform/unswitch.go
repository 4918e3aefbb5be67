package transform

import (
	"sort"

	"github.com/nickng/loopforge/ir"
	"github.com/nickng/loopforge/loop"
	"github.com/nickng/loopforge/optlog"
)

// FindUnswitchable collects the control splits inside the loop whose
// condition is loop-invariant, grouped so that every group can be
// removed by a single unswitch: Ifs sharing the same condition value,
// and Switches testing the same value over the same ordered case
// labels. Groups are ordered by block ID to keep the result
// deterministic.
func FindUnswitchable(lp *loop.Loop) [][]*ir.Block {
	var groups [][]*ir.Block
	index := make(map[*ir.Value]int)
	blocks := append([]*ir.Block(nil), lp.Blocks()...)
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].ID < blocks[j].ID })
	for _, b := range blocks {
		if !b.Kind.IsControlSplit() || len(b.Succs) < 2 {
			continue
		}
		if !lp.IsOutsideLoop(b.Ctrl) {
			continue
		}
		gi, ok := index[b.Ctrl]
		if !ok {
			index[b.Ctrl] = len(groups)
			groups = append(groups, []*ir.Block{b})
			continue
		}
		// Only collect splits which test the same values in the same
		// order; a Switch with reordered cases selects differently.
		if b.StructurallyEqual(groups[gi][0]) {
			groups[gi] = append(groups[gi], b)
		}
	}
	return groups
}

// Unswitch hoists the invariant control split out of the loop: a copy of
// the split is placed in front of the loop, the loop is duplicated once
// per alternative successor, and inside each copy the split collapses to
// the successor that copy was entered for. The original loop serves as
// the first alternative and is collapsed last so the shared condition
// stays alive while the duplicates are built.
//
// All blocks in group must test the same condition with the same
// successor structure, as grouped by FindUnswitchable. Trivial
// unswitches (the split is the only conditional content of the loop,
// so hoisting it cannot be repeated profitably) do not count against
// the per-loop unswitch total.
func Unswitch(lp *loop.Loop, group []*ir.Block, trivial bool, log *optlog.Log) {
	ir.Assertf(len(group) > 0, "unswitch of empty group")
	first := group[0]
	f := lp.Func()
	h := lp.LoopBegin()
	if !trivial {
		h.Unswitches++
	}

	// New control split on the loop entry edge.
	fi := lp.ForwardPredIndex()
	split := f.InsertBefore(h, fi)
	split.Kind = first.Kind
	split.Comment = "unswitch"
	split.Cases = append([]int64(nil), first.Cases...)
	split.Likely = first.Likely
	split.SetCtrl(first.Ctrl)

	// The split enters the original loop for successor 0 and a fresh
	// duplicate for every other successor position.
	nsucc := len(first.Succs)
	for pos := 1; pos < nsucc; pos++ {
		dup := lp.DuplicateWhole()
		dh := dup.Header()
		split.AddEdgeTo(dh)
		for _, p := range h.Phis() {
			dup.Values[p].AddArg(p.Args[fi])
		}
		for _, b := range group {
			db := dup.Blocks[b]
			if db != nil && !db.Dead() {
				db.CollapseToSucc(pos)
			}
		}
	}
	for _, b := range group {
		if !b.Dead() {
			b.CollapseToSucc(0)
		}
	}

	if trivial {
		log.Report(optlog.LoopUnswitching, h)
	} else {
		log.Report(optlog.LoopUnswitching, h, optlog.Prop{Name: "unswitches", Value: int64(h.Unswitches)})
	}
}
