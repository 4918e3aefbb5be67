// Package canon is the incremental canonicalizer: constant folding,
// algebraic identities and branch simplification over the IR. The loop
// transformations run it after every rewrite so that duplicated exit
// checks with known outcomes collapse and dead loop bodies disappear.
package canon

import (
	"github.com/nickng/loopforge/ir"
	"github.com/nickng/loopforge/optlog"
)

// Canon folds one function to a fixed point.
type Canon struct {
	f      *ir.Func
	Logger *optlog.Logger
}

// New returns a canonicalizer for f with a no-op logger.
func New(f *ir.Func) *Canon {
	return &Canon{f: f, Logger: optlog.Nop()}
}

// SetLogger sets the debug logger.
func (c *Canon) SetLogger(l *optlog.Logger) { c.Logger = l }

// Apply folds values and simplifies branches until nothing changes.
// Reports whether the graph was modified.
func (c *Canon) Apply() bool {
	changed := false
	for {
		round := c.foldValues()
		if c.simplifyBranches() {
			round = true
		}
		if !round {
			return changed
		}
		changed = true
	}
}

// ApplyIncremental folds only the given values, following each rewrite
// through the value it produces, and collapses branches the folding
// decides. The rest of the function is left untouched; transformations
// call this with the values a rewrite created or changed instead of
// rescanning the whole graph.
func (c *Canon) ApplyIncremental(seed []*ir.Value) bool {
	vals := append([]*ir.Value(nil), seed...)
	changed := c.foldSet(vals)
	for c.simplifyBranches() {
		changed = true
		// Collapsed edges shrank phis somewhere; those are the only
		// values made newly foldable.
		vals = vals[:0]
		for _, b := range c.f.Blocks {
			vals = append(vals, b.Phis()...)
		}
		if !c.foldSet(vals) {
			break
		}
	}
	return changed
}

// foldValues makes one pass over every value, rewriting uses of foldable
// values and releasing the husks.
func (c *Canon) foldValues() bool {
	var vals []*ir.Value
	for _, b := range c.f.Blocks {
		if !b.Dead() {
			vals = append(vals, b.Values...)
		}
	}
	return c.foldSet(vals)
}

// foldSet folds the given values to a fixed point. A folded slot keeps
// tracking its replacement, so chains like Add(Const,Const) feeding a
// compare resolve within one call whatever the slice order.
func (c *Canon) foldSet(vals []*ir.Value) bool {
	changed := false
	for {
		progress := false
		for i, v := range vals {
			if v == nil || v.Dead() {
				continue
			}
			w := c.fold(v)
			if w == nil || w == v {
				continue
			}
			c.Logger.Debugf("%s fold v%d (%s) -> v%d", c.Logger.Module(), v.ID, v.Op, w.ID)
			c.f.ReplaceUses(v, w)
			c.f.KillUnusedFloating(v)
			vals[i] = w
			progress = true
		}
		if !progress {
			return changed
		}
		changed = true
	}
}

// fold returns the simpler value v reduces to, or nil.
func (c *Canon) fold(v *ir.Value) *ir.Value {
	switch v.Op {
	case ir.OpAdd, ir.OpSub, ir.OpMul:
		return c.foldArith(v)
	case ir.OpLess, ir.OpLeq, ir.OpEq, ir.OpNeq:
		return c.foldCompare(v)
	case ir.OpSelect:
		if cond, ok := constOf(v.Args[0]); ok {
			if cond != 0 {
				return v.Args[1]
			}
			return v.Args[2]
		}
		if v.Args[1] == v.Args[2] {
			return v.Args[1]
		}
	case ir.OpPhi:
		// Proxies keep their loop-exit pinning and are never folded here.
		return foldPhi(v)
	}
	return nil
}

// constOf is the folding view of a constant: unlike ConstValue it does
// not look through Opaque, which exists precisely to keep folding away.
func constOf(v *ir.Value) (int64, bool) {
	if v != nil && v.Op == ir.OpConst {
		return v.AuxInt, true
	}
	return 0, false
}

func (c *Canon) foldArith(v *ir.Value) *ir.Value {
	x, xok := constOf(v.Args[0])
	y, yok := constOf(v.Args[1])
	if xok && yok {
		var r int64
		switch v.Op {
		case ir.OpAdd:
			r = x + y
		case ir.OpSub:
			r = x - y
		case ir.OpMul:
			r = x * y
		}
		return c.f.ConstInt(v.Type, ir.TruncateTo(r, v.Type))
	}
	if yok {
		switch {
		case y == 0 && (v.Op == ir.OpAdd || v.Op == ir.OpSub):
			return v.Args[0]
		case y == 1 && v.Op == ir.OpMul:
			return v.Args[0]
		case y == 0 && v.Op == ir.OpMul:
			return c.f.ConstInt(v.Type, 0)
		}
	}
	if xok && v.Op == ir.OpAdd && x == 0 {
		return v.Args[1]
	}
	if xok && v.Op == ir.OpMul {
		if x == 1 {
			return v.Args[1]
		}
		if x == 0 {
			return c.f.ConstInt(v.Type, 0)
		}
	}
	return nil
}

func (c *Canon) foldCompare(v *ir.Value) *ir.Value {
	x, xok := constOf(v.Args[0])
	y, yok := constOf(v.Args[1])
	if !xok || !yok {
		// x == x and x != x fold even without constants, but only for
		// value identity that cannot be disturbed by overflow.
		if v.Args[0] == v.Args[1] {
			switch v.Op {
			case ir.OpEq, ir.OpLeq:
				return c.f.ConstInt(ir.TypeBool, 1)
			case ir.OpNeq, ir.OpLess:
				return c.f.ConstInt(ir.TypeBool, 0)
			}
		}
		return nil
	}
	var r bool
	switch v.Op {
	case ir.OpLess:
		r = x < y
	case ir.OpLeq:
		r = x <= y
	case ir.OpEq:
		r = x == y
	case ir.OpNeq:
		r = x != y
	}
	if r {
		return c.f.ConstInt(ir.TypeBool, 1)
	}
	return c.f.ConstInt(ir.TypeBool, 0)
}

// foldPhi reduces a phi whose arguments all agree (self references
// excluded) to that argument.
func foldPhi(v *ir.Value) *ir.Value {
	var w *ir.Value
	for _, a := range v.Args {
		if a == v {
			continue
		}
		if w != nil && a != w {
			return nil
		}
		w = a
	}
	return w
}

// simplifyBranches collapses control splits whose outcome is a compile
// time constant.
func (c *Canon) simplifyBranches() bool {
	changed := false
	blocks := append([]*ir.Block(nil), c.f.Blocks...)
	for _, b := range blocks {
		if b.Dead() || !b.Kind.IsControlSplit() {
			continue
		}
		x, ok := b.Ctrl.ConstValue()
		if !ok {
			continue
		}
		keep := -1
		switch b.Kind {
		case ir.BlockIf:
			if x != 0 {
				keep = 0
			} else {
				keep = 1
			}
		case ir.BlockSwitch:
			keep = len(b.Succs) - 1 // default
			for i, label := range b.Cases {
				if x == label {
					keep = i
					break
				}
			}
		}
		c.Logger.Debugf("%s collapse b%d (%s) to successor %d", c.Logger.Module(), b.ID, b.Kind, keep)
		b.CollapseToSucc(keep)
		changed = true
	}
	return changed
}
