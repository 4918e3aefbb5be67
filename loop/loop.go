package loop

import (
	"fmt"

	"github.com/nickng/loopforge/ir"
)

// Loop is one natural loop of a function. A Loop is a snapshot: any
// control-flow mutation invalidates it and callers must re-detect.
type Loop struct {
	f      *ir.Func
	header *ir.Block
	blocks []*ir.Block
	in     map[*ir.Block]bool

	latches []*ir.Block // sources of back edges into the header
	exits   []*ir.Block // blocks outside the loop reached from inside

	Parent   *Loop
	Children []*Loop

	counted     *Counted
	countedDone bool

	freq    float64
	freqGen int
	freqOK  bool
}

// Nest is the set of loops of one function.
type Nest struct {
	Func        *ir.Func
	Loops       []*Loop
	Irreducible bool

	b2l map[*ir.Block]*Loop // innermost loop per block
}

// Detect computes the loop nest of f from scratch.
func Detect(f *ir.Func) *Nest {
	n := &Nest{Func: f, b2l: make(map[*ir.Block]*Loop)}
	byHeader := make(map[*ir.Block]*Loop)
	retreating := retreatingEdges(f)
	for _, b := range f.Blocks {
		for _, e := range b.Succs {
			h := e.Block()
			if !f.Dominates(h, b) {
				if retreating[[2]int{b.ID, h.ID}] {
					n.Irreducible = true
				}
				continue
			}
			// back edge b -> h
			lp := byHeader[h]
			if lp == nil {
				lp = &Loop{f: f, header: h, in: make(map[*ir.Block]bool)}
				lp.in[h] = true
				lp.blocks = append(lp.blocks, h)
				byHeader[h] = lp
				n.Loops = append(n.Loops, lp)
			}
			lp.latches = append(lp.latches, b)
			lp.grow(b)
		}
	}
	for _, lp := range n.Loops {
		lp.findExits()
	}
	n.link()
	return n
}

// retreatingEdges classifies the CFG by depth-first search from the
// entry: an edge whose target is still on the DFS stack closes a cycle.
// A retreating edge whose target does not dominate its source has a
// second entry into the cycle, which makes the graph irreducible;
// forward and cross edges never do, no matter what cycles the loop body
// contains.
func retreatingEdges(f *ir.Func) map[[2]int]bool {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]uint8, f.NumBlockIDs())
	edges := make(map[[2]int]bool)
	var walk func(b *ir.Block)
	walk = func(b *ir.Block) {
		state[b.ID] = onStack
		for _, e := range b.Succs {
			s := e.Block()
			switch state[s.ID] {
			case unvisited:
				walk(s)
			case onStack:
				edges[[2]int{b.ID, s.ID}] = true
			}
		}
		state[b.ID] = done
	}
	walk(f.Entry)
	return edges
}

// grow walks backwards from latch, adding every block that reaches the
// back edge without passing the header.
func (lp *Loop) grow(latch *ir.Block) {
	work := []*ir.Block{latch}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if lp.in[b] {
			continue
		}
		lp.in[b] = true
		lp.blocks = append(lp.blocks, b)
		for _, e := range b.Preds {
			work = append(work, e.Block())
		}
	}
}

func (lp *Loop) findExits() {
	lp.exits = lp.exits[:0]
	seen := make(map[*ir.Block]bool)
	for _, b := range lp.blocks {
		for _, e := range b.Succs {
			s := e.Block()
			if !lp.in[s] && !seen[s] {
				seen[s] = true
				lp.exits = append(lp.exits, s)
			}
		}
	}
}

// link computes the nesting relation: a loop is a child of the innermost
// other loop containing its header.
func (n *Nest) link() {
	for _, lp := range n.Loops {
		var best *Loop
		for _, other := range n.Loops {
			if other == lp || !other.in[lp.header] {
				continue
			}
			if best == nil || best.in[other.header] {
				best = other
			}
		}
		lp.Parent = best
		if best != nil {
			best.Children = append(best.Children, lp)
		}
	}
	for _, lp := range n.Loops {
		for _, b := range lp.blocks {
			if cur := n.b2l[b]; cur == nil || cur.in[lp.header] {
				n.b2l[b] = lp
			}
		}
	}
}

// LoopFor returns the innermost loop containing b, if any.
func (n *Nest) LoopFor(b *ir.Block) *Loop { return n.b2l[b] }

// Func returns the function this loop belongs to.
func (lp *Loop) Func() *ir.Func { return lp.f }

// LoopBegin returns the loop header block.
func (lp *Loop) LoopBegin() *ir.Block { return lp.header }

// Blocks returns the blocks of the loop, header first.
func (lp *Loop) Blocks() []*ir.Block { return lp.blocks }

// Latches returns the sources of the loop's back edges.
func (lp *Loop) Latches() []*ir.Block { return lp.latches }

// BackEdgeCount returns the number of back edges into the header.
func (lp *Loop) BackEdgeCount() int { return len(lp.latches) }

// LoopExits returns the loop-exit blocks (outside the loop, reached from
// inside).
func (lp *Loop) LoopExits() []*ir.Block { return lp.exits }

// Contains reports whether b belongs to the loop.
func (lp *Loop) Contains(b *ir.Block) bool { return lp.in[b] }

// IsOutsideLoop reports whether v is computed outside the loop. Nil and
// unplaced values (dangling constants) count as outside.
func (lp *Loop) IsOutsideLoop(v *ir.Value) bool {
	if v == nil || v.Block == nil {
		return true
	}
	return !lp.in[v.Block]
}

// CanDuplicate reports whether the loop's blocks are all of duplicable
// kinds. Returns in the middle of a loop (from inlined bodies) cannot be
// duplicated safely here.
func (lp *Loop) CanDuplicate() bool {
	for _, b := range lp.blocks {
		if b.Kind == ir.BlockReturn || b.Kind == ir.BlockInvalid {
			return false
		}
	}
	return true
}

// ForwardPredIndex returns the index of the header predecessor edge that
// does not come from a latch. A natural loop header has exactly one.
func (lp *Loop) ForwardPredIndex() int {
	fwd := -1
	for i, e := range lp.header.Preds {
		if !lp.in[e.Block()] {
			ir.Assertf(fwd < 0, "loop header b%d has multiple forward entries", lp.header.ID)
			fwd = i
		}
	}
	ir.Assertf(fwd >= 0, "loop header b%d has no forward entry", lp.header.ID)
	return fwd
}

// BackPredIndex returns the index of the single back edge into the
// header; the loop must have exactly one latch.
func (lp *Loop) BackPredIndex() int {
	ir.Assertf(len(lp.latches) == 1, "loop at b%d has %d back edges", lp.header.ID, len(lp.latches))
	for i, e := range lp.header.Preds {
		if e.Block() == lp.latches[0] {
			return i
		}
	}
	ir.Fatalf("latch b%d not a predecessor of header b%d", lp.latches[0].ID, lp.header.ID)
	return -1
}

// LocalFrequency returns the expected number of header visits per loop
// entry, derived from the exit-check branch probability. The result is
// cached until the function's frequencies are invalidated.
func (lp *Loop) LocalFrequency() float64 {
	if lp.freqOK && lp.freqGen == lp.f.FreqGen() {
		return lp.freq
	}
	exitProb := 0.5
	if c := lp.tryCounted(); c != nil {
		exitProb = branchProbability(c.LimitTest, c.ExitIdx)
	} else if len(lp.exits) == 1 {
		exit := lp.exits[0]
		for _, e := range exit.Preds {
			if p := e.Block(); lp.in[p] && p.Kind == ir.BlockIf {
				exitProb = branchProbability(p, p.SuccIndex(exit))
				break
			}
		}
	}
	if exitProb <= 0 {
		exitProb = 0.5
	}
	lp.freq = 1 / exitProb
	lp.freqGen = lp.f.FreqGen()
	lp.freqOK = true
	return lp.freq
}

// branchProbability returns the probability that branch b takes successor
// succIdx, defaulting to an even split when no profile is attached.
func branchProbability(b *ir.Block, succIdx int) float64 {
	if b.Kind != ir.BlockIf || b.Likely == 0 {
		return 0.5
	}
	if succIdx == 0 {
		return b.Likely
	}
	return 1 - b.Likely
}

// InvalidateFragmentsAndIVs drops the cached counted-loop info and
// frequency. Called after any mutation that leaves the loop's block set
// intact but changes values (e.g. peeling rewires phi inputs).
func (lp *Loop) InvalidateFragmentsAndIVs() {
	lp.ResetCounted()
	lp.freqOK = false
}

func (lp *Loop) String() string {
	return fmt.Sprintf("loop at b%d (%d blocks, %d exits)", lp.header.ID, len(lp.blocks), len(lp.exits))
}
