package loop

import (
	"math"

	"github.com/nickng/loopforge/ir"
)

// Direction is the iteration direction of a counted loop.
type Direction uint8

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// IndVar is a value that is an affine function of the iteration count.
type IndVar struct {
	Phi    *ir.Value // the induction phi at the loop header
	Init   *ir.Value // value on the forward entry edge
	Next   *ir.Value // value on the back edge, a chain of constant updates of Phi
	Stride int64     // total constant stride per back edge (negative for down)
}

// Counted describes a loop whose trip count is governed by a single
// linear induction variable.
type Counted struct {
	Loop      *Loop
	IV        IndVar
	Limit     *ir.Value // limit operand of the exit check, possibly dynamic
	Cmp       ir.Op     // comparison op of the limit test
	Reversed  bool      // condition is written Cmp(Limit, IV) rather than Cmp(IV, Limit)
	Direction Direction
	Inverted  bool      // tail-tested: the exit check runs at the end of the body
	LimitTest *ir.Block // the If block performing the exit check
	Exit      *ir.Block // the counted exit block (normal termination)
	ExitIdx   int       // successor index of LimitTest leading to Exit
}

// DetectCounted recognizes counted-loop structure, caching the result
// until ResetCounted. Returns false for loops that are not counted.
func (lp *Loop) DetectCounted() bool {
	if !lp.countedDone {
		lp.counted = lp.findCounted()
		lp.countedDone = true
	}
	return lp.counted != nil
}

// IsCounted reports whether the loop was recognized as counted.
func (lp *Loop) IsCounted() bool { return lp.DetectCounted() }

// Counted returns the counted-loop facts; the loop must be counted.
func (lp *Loop) Counted() *Counted {
	ir.Assertf(lp.DetectCounted(), "loop at b%d is not counted", lp.header.ID)
	return lp.counted
}

// ResetCounted drops the cached counted-loop info so the next query
// recomputes it from the (possibly mutated) graph.
func (lp *Loop) ResetCounted() {
	lp.counted = nil
	lp.countedDone = false
}

func (lp *Loop) tryCounted() *Counted {
	if lp.countedDone {
		return lp.counted
	}
	return lp.findCounted()
}

// findCounted matches the two supported shapes:
//
// head-tested:       inverted (tail-tested):
//
//	header: If cmp(iv, limit) -> body, exit     header: ... (plain)
//	...                                         ...
//	latch:  Plain -> header                     latch: If cmp(iv, limit) -> header, exit
//
// The comparison may also be written limit-first; argument order is
// normalized during matching.
func (lp *Loop) findCounted() *Counted {
	if len(lp.latches) != 1 {
		return nil
	}
	latch := lp.latches[0]

	var test *ir.Block
	inverted := false
	if lp.header.Kind == ir.BlockIf && lp.exitSuccIndex(lp.header) >= 0 {
		test = lp.header
	} else if latch.Kind == ir.BlockIf && lp.exitSuccIndex(latch) >= 0 {
		test = latch
		inverted = true
	} else {
		return nil
	}

	cond := test.Ctrl
	if cond == nil || !cond.Op.IsCompare() {
		return nil
	}

	iv, limit, reversed, ok := lp.parseIVCompare(cond)
	if !ok {
		return nil
	}

	exitIdx := lp.exitSuccIndex(test)
	c := &Counted{
		Loop:      lp,
		IV:        iv,
		Limit:     limit,
		Cmp:       cond.Op,
		Reversed:  reversed,
		Inverted:  inverted,
		LimitTest: test,
		Exit:      test.Succs[exitIdx].Block(),
		ExitIdx:   exitIdx,
	}
	if iv.Stride > 0 {
		c.Direction = Up
	} else {
		c.Direction = Down
	}
	// The increment must move the variable towards failing the continue
	// condition; a loop counting away from its limit terminates only by
	// wrap-around and is not modelled as counted.
	if !directionMatches(c) {
		return nil
	}
	return c
}

// directionMatches checks the stride sign against the continue predicate
// of the limit test. The continue side of the branch is the non-exit
// successor; the predicate is the condition or its negation accordingly.
func directionMatches(c *Counted) bool {
	continueOnTrue := c.ExitIdx != 0
	switch c.Cmp {
	case ir.OpLess, ir.OpLeq:
		if continueOnTrue {
			// continue while iv < limit (or limit < iv when reversed)
			if c.Reversed {
				return c.Direction == Down
			}
			return c.Direction == Up
		}
		// continue while !(iv < limit), i.e. iv >= limit
		if c.Reversed {
			return c.Direction == Up
		}
		return c.Direction == Down
	case ir.OpNeq:
		return continueOnTrue
	case ir.OpEq:
		return !continueOnTrue
	}
	return false
}

// exitSuccIndex returns which successor of b leaves the loop, or -1.
func (lp *Loop) exitSuccIndex(b *ir.Block) int {
	for i, e := range b.Succs {
		if !lp.in[e.Block()] {
			return i
		}
	}
	return -1
}

// parseIVCompare matches cond against cmp(iv, limit) or cmp(limit, iv)
// where iv is an induction phi of this loop's header and the limit is
// loop-invariant.
func (lp *Loop) parseIVCompare(cond *ir.Value) (iv IndVar, limit *ir.Value, reversed, ok bool) {
	if iv, ok := lp.parseIndVar(cond.Args[0]); ok && lp.IsOutsideLoop(cond.Args[1]) {
		return iv, cond.Args[1], false, true
	}
	if iv, ok := lp.parseIndVar(cond.Args[1]); ok && lp.IsOutsideLoop(cond.Args[0]) {
		return iv, cond.Args[0], true, true
	}
	return IndVar{}, nil, false, false
}

// parseIndVar checks whether v is an induction phi of this loop:
// v = Phi(init, next) where next updates v by a compile-time constant.
// The back-edge value may be a whole chain of Add/Sub with constant
// operands (partial unrolling stacks one update per unrolled copy); the
// chain is folded into a single total stride.
func (lp *Loop) parseIndVar(v *ir.Value) (IndVar, bool) {
	if v.Op != ir.OpPhi || v.Block != lp.header || len(lp.latches) != 1 {
		return IndVar{}, false
	}
	fwd := lp.ForwardPredIndex()
	back := lp.BackPredIndex()
	init, next := v.Args[fwd], v.Args[back]
	total := int64(0)
	for x := next; x != v; {
		if x == nil || (x.Op != ir.OpAdd && x.Op != ir.OpSub) {
			return IndVar{}, false
		}
		if c, ok := x.Args[1].ConstValue(); ok {
			if x.Op == ir.OpSub {
				c = -c
			}
			total += c
			x = x.Args[0]
			continue
		}
		// Add is commutative; Sub is not.
		if c, ok := x.Args[0].ConstValue(); ok && x.Op == ir.OpAdd {
			total += c
			x = x.Args[1]
			continue
		}
		return IndVar{}, false
	}
	if total == 0 {
		return IndVar{}, false
	}
	return IndVar{Phi: v, Init: init, Next: next, Stride: total}, true
}

// BodyIVStart returns the value of the induction variable at the first
// body execution: the init value for head-tested loops.
func (c *Counted) BodyIVStart() *ir.Value { return c.IV.Init }

// StrideAdditionOverflows reports whether stride+stride overflows the
// induction variable's bit width. Doubling the stride is exactly what
// partial unrolling does, so overflow here blocks the transform.
func (c *Counted) StrideAdditionOverflows() bool {
	bits := c.IV.Phi.Type.Bits()
	if bits == 0 {
		return true
	}
	s := c.IV.Stride
	max := int64(math.MaxInt64)
	min := int64(math.MinInt64)
	if bits < 64 {
		max = 1<<(bits-1) - 1
		min = -1 << (bits - 1)
	}
	if s > 0 {
		return s > max-s
	}
	return s < min-s
}

// ConditionHasMultipleUsages reports whether the exit-check condition is
// shared with another consumer. Partial unrolling mutates the condition
// in place, so sharing blocks the transform.
func (c *Counted) ConditionHasMultipleUsages() bool {
	return c.LimitTest.Ctrl.Uses > 1
}
