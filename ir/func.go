package ir

// Func owns the control-flow graph of one compiled function. It is
// exclusively owned by the compiling goroutine for the duration of a
// transformation; nothing here synchronizes.
type Func struct {
	Name   string
	Entry  *Block
	Blocks []*Block
	Params []*Value // OpParam values, placed in Entry

	bid, vid  int
	numValues int

	domCache []*Block // idom per block ID, nil when invalid
	freqGen  int      // bumped whenever cached frequencies become stale
}

// NewFunc returns an empty function with an entry block.
func NewFunc(name string) *Func {
	f := &Func{Name: name}
	f.Entry = f.NewBlock(BlockPlain)
	f.Entry.Comment = "entry"
	return f
}

// NewBlock allocates a new block of the given kind.
func (f *Func) NewBlock(kind BlockKind) *Block {
	b := &Block{ID: f.bid, Kind: kind, Func: f}
	f.bid++
	f.Blocks = append(f.Blocks, b)
	f.InvalidateCFG()
	return b
}

func (f *Func) newValue(op Op, t Type) *Value {
	v := &Value{ID: f.vid, Op: op, Type: t}
	f.vid++
	f.numValues++
	return v
}

// NewParam declares a named parameter in the entry block.
func (f *Func) NewParam(name string, t Type) *Value {
	v := f.Entry.NewValue(OpParam, t)
	v.Aux = name
	f.Params = append(f.Params, v)
	return v
}

// ConstInt returns a fresh constant value placed in the entry block.
func (f *Func) ConstInt(t Type, c int64) *Value {
	v := f.Entry.NewValue(OpConst, t)
	v.AuxInt = c
	return v
}

// NumBlockIDs returns one past the highest block ID ever allocated.
func (f *Func) NumBlockIDs() int { return f.bid }

// NumValueIDs returns one past the highest value ID ever allocated.
func (f *Func) NumValueIDs() int { return f.vid }

// NumNodes returns the number of live blocks and values; the full-unroll
// budget is expressed in these units.
func (f *Func) NumNodes() int { return len(f.Blocks) + f.numValues }

// InvalidateCFG discards cached dominator and frequency information.
// Every control-flow mutation must go through a helper that calls this.
func (f *Func) InvalidateCFG() {
	f.domCache = nil
	f.InvalidateFrequencies()
}

// InvalidateFrequencies discards any aggregate execution-frequency data
// derived from branch probabilities. Consumers that cache a frequency
// stamp it with FreqGen and recompute on mismatch.
func (f *Func) InvalidateFrequencies() { f.freqGen++ }

// FreqGen returns the current frequency generation.
func (f *Func) FreqGen() int { return f.freqGen }

// KillValue removes v from its block and releases its arguments. Values
// still in use cannot be killed.
func (f *Func) KillValue(v *Value) {
	Assertf(v.Uses == 0, "cannot kill v%d, still %d uses", v.ID, v.Uses)
	if v.Block != nil {
		v.Block.RemoveValue(v)
	}
	v.resetArgs()
	v.dead = true
	f.numValues--
}

// KillUnusedFloating kills v if nothing uses it, recursively releasing
// argument chains that become unused. Side-effecting values are kept.
func (f *Func) KillUnusedFloating(v *Value) {
	if v == nil || v.dead || v.Uses > 0 || v.Op.HasSideEffects() {
		return
	}
	args := make([]*Value, len(v.Args))
	copy(args, v.Args)
	f.KillValue(v)
	for _, a := range args {
		f.KillUnusedFloating(a)
	}
}

// ReplaceUses rewrites every use of old (arguments, block controls and
// block states) to point at v instead. Uses inside v itself are
// rewritten too: when a degenerate phi reduces to its own increment the
// increment becomes self-referential and old drops to zero uses, rather
// than old and v keeping each other alive.
func (f *Func) ReplaceUses(old, v *Value) {
	for _, b := range f.Blocks {
		for _, w := range b.Values {
			w.ReplaceArg(old, v)
		}
		if b.Ctrl == old {
			b.SetCtrl(v)
		}
		if b.State == old {
			b.SetState(v)
		}
	}
}

// killBlock marks b dead, drops its outgoing edges (shrinking successor
// phis) and releases its values. Successors that lose their last
// predecessor are killed recursively.
func (f *Func) killBlock(b *Block) {
	if b.dead {
		return
	}
	b.dead = true
	for len(b.Succs) > 0 {
		s := b.Succs[len(b.Succs)-1]
		b.removeSuccEdge(len(b.Succs) - 1)
		s.b.RemovePred(s.i)
		if len(s.b.Preds) == 0 && s.b != f.Entry && !s.b.dead {
			f.killBlock(s.b)
		}
	}
	b.SetCtrl(nil)
	b.SetState(nil)
	for len(b.Values) > 0 {
		v := b.Values[len(b.Values)-1]
		b.Values = b.Values[:len(b.Values)-1]
		v.Block = nil
		v.resetArgs()
		v.dead = true
		f.numValues--
	}
	f.InvalidateCFG()
}

// RemoveUnreachable kills every block not reachable from the entry and
// compacts the block list. Returns the number of blocks removed.
func (f *Func) RemoveUnreachable() int {
	reachable := f.ReachableBlocks()
	removed := 0
	for _, b := range f.Blocks {
		if b.dead || reachable[b.ID] {
			continue
		}
		// Drop edges into reachable blocks first so their phis shrink.
		f.killBlock(b)
		removed++
	}
	if removed == 0 {
		return 0
	}
	f.compactBlocks()
	return removed
}

// ReachableBlocks returns a bitmap (by block ID) of blocks reachable from
// the entry.
func (f *Func) ReachableBlocks() []bool {
	reachable := make([]bool, f.NumBlockIDs())
	work := []*Block{f.Entry}
	reachable[f.Entry.ID] = true
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, e := range b.Succs {
			if e.b != nil && !reachable[e.b.ID] {
				reachable[e.b.ID] = true
				work = append(work, e.b)
			}
		}
	}
	return reachable
}

func (f *Func) compactBlocks() {
	i := 0
	for _, b := range f.Blocks {
		if !b.dead {
			f.Blocks[i] = b
			i++
		}
	}
	for j := i; j < len(f.Blocks); j++ {
		f.Blocks[j] = nil
	}
	f.Blocks = f.Blocks[:i]
}
