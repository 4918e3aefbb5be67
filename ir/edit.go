package ir

// Structural editing helpers shared by the transformations. All of them
// keep the edge reciprocity and phi-arity invariants intact and
// invalidate cached CFG information.

// CollapseToSucc turns a control split into a plain block that falls
// through to successor keep. The alternatives are dead: their subtrees are
// pruned as far as predecessor counts allow. This is the "the branch
// outcome is now statically known" primitive used by unswitching and by
// branch simplification during full unrolling.
func (b *Block) CollapseToSucc(keep int) {
	Assertf(b.Kind.IsControlSplit(), "collapse of non-split b%d (%s)", b.ID, b.Kind)
	Assertf(keep >= 0 && keep < len(b.Succs), "bad surviving successor %d of b%d", keep, b.ID)
	f := b.Func
	// Remove the dead successor edges from high to low so indices stay
	// valid; remember the targets for pruning.
	var orphans []*Block
	for i := len(b.Succs) - 1; i >= 0; i-- {
		if i == keep {
			continue
		}
		s := b.Succs[i].b
		b.RemoveEdge(i)
		orphans = append(orphans, s)
	}
	b.Kind = BlockPlain
	b.Cases = nil
	b.Likely = 0
	ctrl := b.Ctrl
	b.SetCtrl(nil)
	if ctrl != nil {
		f.KillUnusedFloating(ctrl)
	}
	for _, s := range orphans {
		if len(s.Preds) == 0 && s != f.Entry && !s.dead {
			f.killBlock(s)
		}
	}
	f.compactBlocks()
	f.InvalidateCFG()
}

// InsertBefore creates a fresh plain block in front of b on predecessor
// edge i: pred -> n -> b. Phi arguments of b are untouched (the incoming
// value now flows through n). Returns n. This is the analogue of placing a
// begin node on an edge.
func (f *Func) InsertBefore(b *Block, i int) *Block {
	n := f.NewBlock(BlockPlain)
	p := b.Preds[i]
	// pred's successor slot now targets n
	p.b.Succs[p.i] = Edge{n, 0}
	n.Preds = append(n.Preds, Edge{p.b, p.i})
	n.Succs = append(n.Succs, Edge{b, i})
	b.Preds[i] = Edge{n, 0}
	return n
}

// BlockEndAfter walks forward from b through straight-line code until it
// reaches a control merge (a block with more than one predecessor) and
// returns the block whose successor is that merge, together with the
// merge. Used to find the merge introduced after a duplicated loop exit.
func BlockEndAfter(b *Block) (end, merge *Block) {
	cur := b
	for {
		Assertf(cur.Kind == BlockPlain && len(cur.Succs) == 1,
			"no merge reachable from b%d through straight-line code", b.ID)
		next := cur.Succs[0].b
		if len(next.Preds) > 1 {
			return cur, next
		}
		cur = next
	}
}

// RemovePassthrough deletes an empty plain block with one predecessor,
// reconnecting the predecessor to the successor in place. The successor
// keeps its predecessor slot, so its phi arguments are untouched.
func (f *Func) RemovePassthrough(b *Block) {
	Assertf(b.Kind == BlockPlain && len(b.Preds) == 1 && len(b.Succs) == 1,
		"b%d is not a passthrough block", b.ID)
	Assertf(len(b.Values) == 0 && b.State == nil, "b%d still holds values", b.ID)
	p := b.Preds[0]
	s := b.Succs[0]
	p.b.Succs[p.i] = Edge{s.b, s.i}
	s.b.Preds[s.i] = Edge{p.b, p.i}
	b.Preds = nil
	b.Succs = nil
	b.dead = true
	f.compactBlocks()
	f.InvalidateCFG()
}

// RemoveSafepoints deletes safepoint polls from the given blocks.
func (f *Func) RemoveSafepoints(blocks []*Block) {
	for _, b := range blocks {
		for i := len(b.Values) - 1; i >= 0; i-- {
			v := b.Values[i]
			if v.Op == OpSafepoint {
				b.RemoveValue(v)
				v.resetArgs()
				v.dead = true
				f.numValues--
			}
		}
	}
}
