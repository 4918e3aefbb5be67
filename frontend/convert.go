package frontend

import (
	"go/constant"
	"go/token"
	"go/types"

	"github.com/pkg/errors"
	gossa "golang.org/x/tools/go/ssa"

	"github.com/nickng/loopforge/ir"
	"github.com/nickng/loopforge/loop"
)

// ErrUnsupported is returned when a function uses constructs outside the
// convertible subset (integer arithmetic, comparisons, calls, phis and
// structured control flow).
var ErrUnsupported = errors.New("unsupported construct")

// Convert translates one function into loop IR. After translation the
// graph is normalized for the loop transformations: in-loop values used
// outside their loop are routed through proxies at the loop exits, loop
// headers and exits get frame states, and loop latches get safepoint
// polls.
func Convert(fn *gossa.Function) (*ir.Func, error) {
	if len(fn.Blocks) == 0 {
		return nil, errors.Wrapf(ErrUnsupported, "%s has no body", fn)
	}
	c := &converter{
		f:      ir.NewFunc(fn.String()),
		blocks: make(map[*gossa.BasicBlock]*ir.Block),
		vals:   make(map[gossa.Value]*ir.Value),
	}
	for _, p := range fn.Params {
		t, err := c.typeOf(p.Type())
		if err != nil {
			return nil, err
		}
		c.vals[p] = c.f.NewParam(p.Name(), t)
	}
	if err := c.makeBlocks(fn); err != nil {
		return nil, err
	}
	if err := c.fillValues(fn); err != nil {
		return nil, err
	}
	normalize(c.f)
	return c.f, nil
}

type converter struct {
	f      *ir.Func
	blocks map[*gossa.BasicBlock]*ir.Block
	vals   map[gossa.Value]*ir.Value
}

func (c *converter) typeOf(t types.Type) (ir.Type, error) {
	basic, ok := t.Underlying().(*types.Basic)
	if !ok {
		return ir.TypeInvalid, errors.Wrapf(ErrUnsupported, "type %s", t)
	}
	switch basic.Kind() {
	case types.Bool, types.UntypedBool:
		return ir.TypeBool, nil
	case types.Int8:
		return ir.TypeInt8, nil
	case types.Int16:
		return ir.TypeInt16, nil
	case types.Int32:
		return ir.TypeInt32, nil
	case types.Int, types.Int64, types.UntypedInt:
		return ir.TypeInt64, nil
	}
	return ir.TypeInvalid, errors.Wrapf(ErrUnsupported, "type %s", t)
}

// makeBlocks creates the block skeleton and value shells, so that phi
// cycles can be resolved in a second pass.
func (c *converter) makeBlocks(fn *gossa.Function) error {
	for _, b := range fn.Blocks {
		kind := ir.BlockPlain
		if len(b.Instrs) > 0 {
			switch b.Instrs[len(b.Instrs)-1].(type) {
			case *gossa.If:
				kind = ir.BlockIf
			case *gossa.Return:
				kind = ir.BlockReturn
			}
		}
		nb := c.f.NewBlock(kind)
		nb.Comment = b.Comment
		c.blocks[b] = nb
	}
	c.f.Entry.AddEdgeTo(c.blocks[fn.Blocks[0]])
	for _, b := range fn.Blocks {
		seen := make(map[*gossa.BasicBlock]bool)
		for _, p := range b.Preds {
			if seen[p] {
				return errors.Wrapf(ErrUnsupported, "duplicate edge %s -> %s in %s", p, b, fn)
			}
			seen[p] = true
		}
		for _, s := range b.Succs {
			c.blocks[b].AddEdgeTo(c.blocks[s])
		}
	}
	for _, b := range fn.Blocks {
		nb := c.blocks[b]
		for _, instr := range b.Instrs {
			op, t, err := c.shellFor(instr)
			if err != nil {
				return err
			}
			if op == ir.OpInvalid {
				continue
			}
			v := nb.NewValue(op, t)
			if call, ok := instr.(*gossa.Call); ok {
				v.Aux = call.Common().StaticCallee().String()
			}
			c.vals[instr.(gossa.Value)] = v
		}
	}
	return nil
}

// shellFor classifies an instruction, returning OpInvalid for
// instructions that produce no value and need no shell.
func (c *converter) shellFor(instr gossa.Instruction) (ir.Op, ir.Type, error) {
	switch it := instr.(type) {
	case *gossa.Phi:
		t, err := c.typeOf(it.Type())
		return ir.OpPhi, t, err
	case *gossa.BinOp:
		op, err := binOp(it.Op)
		if err != nil {
			return ir.OpInvalid, ir.TypeInvalid, errors.Wrapf(err, "in %s", instr.Parent())
		}
		t, terr := c.typeOf(it.Type())
		return op, t, terr
	case *gossa.Call:
		callee := it.Common().StaticCallee()
		if callee == nil {
			return ir.OpInvalid, ir.TypeInvalid, errors.Wrapf(ErrUnsupported, "dynamic call in %s", instr.Parent())
		}
		t := ir.TypeInt64
		if res := it.Common().Signature().Results(); res.Len() > 1 {
			return ir.OpInvalid, ir.TypeInvalid, errors.Wrapf(ErrUnsupported, "multi-result call in %s", instr.Parent())
		} else if res.Len() == 1 {
			var err error
			if t, err = c.typeOf(res.At(0).Type()); err != nil {
				return ir.OpInvalid, ir.TypeInvalid, err
			}
		}
		return ir.OpCall, t, nil
	case *gossa.If, *gossa.Jump, *gossa.Return, *gossa.DebugRef:
		return ir.OpInvalid, ir.TypeInvalid, nil
	}
	return ir.OpInvalid, ir.TypeInvalid, errors.Wrapf(ErrUnsupported, "%T in %s", instr, instr.Parent())
}

// binOp maps a Go token to an IR op. Greater-than comparisons have no
// direct op; their operands are swapped during argument fill.
func binOp(tok token.Token) (ir.Op, error) {
	switch tok {
	case token.ADD:
		return ir.OpAdd, nil
	case token.SUB:
		return ir.OpSub, nil
	case token.MUL:
		return ir.OpMul, nil
	case token.LSS, token.GTR:
		return ir.OpLess, nil
	case token.LEQ, token.GEQ:
		return ir.OpLeq, nil
	case token.EQL:
		return ir.OpEq, nil
	case token.NEQ:
		return ir.OpNeq, nil
	}
	return ir.OpInvalid, errors.Wrapf(ErrUnsupported, "operator %s", tok)
}

func (c *converter) fillValues(fn *gossa.Function) error {
	for _, b := range fn.Blocks {
		nb := c.blocks[b]
		for _, instr := range b.Instrs {
			switch it := instr.(type) {
			case *gossa.Phi:
				v := c.vals[it]
				args := make([]*ir.Value, len(nb.Preds))
				for i, e := range it.Edges {
					a, err := c.resolve(e)
					if err != nil {
						return err
					}
					args[nb.PredIndex(c.blocks[b.Preds[i]])] = a
				}
				v.AddArgs(args...)
			case *gossa.BinOp:
				x, err := c.resolve(it.X)
				if err != nil {
					return err
				}
				y, err := c.resolve(it.Y)
				if err != nil {
					return err
				}
				if it.Op == token.GTR || it.Op == token.GEQ {
					x, y = y, x
				}
				c.vals[it].AddArgs(x, y)
			case *gossa.Call:
				for _, a := range it.Common().Args {
					arg, err := c.resolve(a)
					if err != nil {
						return err
					}
					c.vals[it].AddArg(arg)
				}
			case *gossa.If:
				cond, err := c.resolve(it.Cond)
				if err != nil {
					return err
				}
				nb.SetCtrl(cond)
			case *gossa.Return:
				if len(it.Results) > 1 {
					return errors.Wrapf(ErrUnsupported, "multiple results in %s", fn)
				}
				if len(it.Results) == 1 {
					r, err := c.resolve(it.Results[0])
					if err != nil {
						return err
					}
					nb.SetCtrl(r)
				}
			}
		}
	}
	return nil
}

func (c *converter) resolve(v gossa.Value) (*ir.Value, error) {
	if cv, ok := v.(*gossa.Const); ok {
		t, err := c.typeOf(cv.Type())
		if err != nil {
			return nil, err
		}
		var x int64
		switch t {
		case ir.TypeBool:
			if constant.BoolVal(cv.Value) {
				x = 1
			}
		default:
			x = cv.Int64()
		}
		return c.f.ConstInt(t, x), nil
	}
	if w := c.vals[v]; w != nil {
		return w, nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "value %s", v)
}

// normalize prepares a freshly converted function for the loop
// transformations: exits in canonical form, proxies at single-exit
// loops, frame states on loop headers and exits, safepoints on latches.
func normalize(f *ir.Func) {
	nest := loop.Detect(f)
	if nest.Irreducible {
		return
	}
	// go/ssa puts the return (or a shared join) directly behind the
	// loop; the transformations want a dedicated plain block per exit
	// edge to hang proxies and states on.
	split := false
	for _, lp := range nest.Loops {
		for _, x := range lp.LoopExits() {
			if x.Kind == ir.BlockPlain && len(x.Preds) == 1 {
				continue
			}
			for i := 0; i < len(x.Preds); i++ {
				if lp.Contains(x.Preds[i].Block()) {
					f.InsertBefore(x, i)
					split = true
				}
			}
		}
	}
	if split {
		f.InvalidateCFG()
		nest = loop.Detect(f)
	}
	for _, lp := range nest.Loops {
		exits := lp.LoopExits()
		if len(exits) == 1 && len(exits[0].Preds) == 1 {
			insertProxies(f, lp, exits[0])
		}
		h := lp.LoopBegin()
		if phis := h.Phis(); len(phis) > 0 && h.State == nil {
			st := h.NewValue(ir.OpFrameState, ir.TypeState)
			for _, p := range phis {
				st.AddArg(p)
			}
			h.SetState(st)
		}
		for _, latch := range lp.Latches() {
			latch.NewValue(ir.OpSafepoint, ir.TypeInvalid)
		}
	}
	for _, lp := range nest.Loops {
		for _, x := range lp.LoopExits() {
			if x.State != nil {
				continue
			}
			if qs := x.Phis(); len(qs) > 0 {
				st := x.NewValue(ir.OpFrameState, ir.TypeState)
				for _, q := range qs {
					st.AddArg(q)
				}
				x.SetState(st)
			}
		}
	}
}

// insertProxies routes every outside use of an in-loop value through a
// proxy at the loop's sole exit.
func insertProxies(f *ir.Func, lp *loop.Loop, exit *ir.Block) {
	for _, b := range lp.Blocks() {
		for _, v := range b.Values {
			if v.Op == ir.OpFrameState {
				continue
			}
			var proxy *ir.Value
			for _, ob := range f.Blocks {
				if lp.Contains(ob) || ob == exit {
					continue
				}
				for _, w := range ob.Values {
					for i, a := range w.Args {
						if a == v {
							if proxy == nil {
								proxy = loop.PatchProxyAt(exit, v)
							}
							w.SetArg(i, proxy)
						}
					}
				}
				if ob.Ctrl == v {
					if proxy == nil {
						proxy = loop.PatchProxyAt(exit, v)
					}
					ob.SetCtrl(proxy)
				}
			}
		}
	}
}
