package ir

// Dominator computation, using the simple iterative algorithm of Cooper,
// Harvey and Kennedy over a reverse postorder numbering. The graphs here
// are small; simplicity beats the sophisticated linear-time algorithms.

// Postorder returns the blocks reachable from the entry in postorder.
func (f *Func) Postorder() []*Block {
	seen := make([]bool, f.NumBlockIDs())
	var order []*Block
	var walk func(b *Block)
	walk = func(b *Block) {
		seen[b.ID] = true
		for _, e := range b.Succs {
			if e.b != nil && !seen[e.b.ID] {
				walk(e.b)
			}
		}
		order = append(order, b)
	}
	walk(f.Entry)
	return order
}

// Idom returns the immediate dominator of every block, indexed by block
// ID. The entry block and unreachable blocks map to nil. The result is
// cached until the next control-flow mutation.
func (f *Func) Idom() []*Block {
	if f.domCache != nil {
		return f.domCache
	}
	po := f.Postorder()
	rponum := make([]int, f.NumBlockIDs())
	for i, b := range po {
		rponum[b.ID] = len(po) - 1 - i
	}
	idom := make([]*Block, f.NumBlockIDs())
	idom[f.Entry.ID] = f.Entry

	intersect := func(a, b *Block) *Block {
		for a != b {
			for rponum[a.ID] > rponum[b.ID] {
				a = idom[a.ID]
			}
			for rponum[b.ID] > rponum[a.ID] {
				b = idom[b.ID]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for i := len(po) - 1; i >= 0; i-- { // reverse postorder
			b := po[i]
			if b == f.Entry {
				continue
			}
			var d *Block
			for _, e := range b.Preds {
				if e.b == nil || idom[e.b.ID] == nil {
					continue
				}
				if d == nil {
					d = e.b
				} else {
					d = intersect(d, e.b)
				}
			}
			if d != nil && idom[b.ID] != d {
				idom[b.ID] = d
				changed = true
			}
		}
	}
	idom[f.Entry.ID] = nil
	f.domCache = idom
	return idom
}

// Dominates reports whether a dominates b (reflexively).
func (f *Func) Dominates(a, b *Block) bool {
	idom := f.Idom()
	for b != nil {
		if a == b {
			return true
		}
		b = idom[b.ID]
	}
	return false
}
