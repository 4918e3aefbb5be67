package ir

import "github.com/pkg/errors"

// Reference interpreter. It executes a Func directly on the CFG and is
// used by tests and by the lfview tool to check that a transformation
// preserved program behaviour (e.g. that the total number of body calls
// of a split loop still equals the trip count).

// RunResult collects the observable behaviour of one execution.
type RunResult struct {
	Calls    map[string]int // number of executions per callee name
	CallArgs map[string][]int64
	Return   int64
	HasRet   bool
}

// ErrRunBudget is returned when an execution exceeds its step budget,
// usually meaning a transformation broke loop termination.
var ErrRunBudget = errors.New("execution budget exceeded")

type interp struct {
	f      *Func
	env    map[*Value]int64 // phis, proxies, params; stable across a block execution
	res    *RunResult
	onCall func(name string, args []int64) int64
}

// Run executes f with the given parameter bindings for at most maxSteps
// block transfers. Calls return 0 unless onCall is non-nil.
func Run(f *Func, params map[string]int64, maxSteps int, onCall func(string, []int64) int64) (*RunResult, error) {
	in := &interp{
		f:      f,
		env:    make(map[*Value]int64),
		res:    &RunResult{Calls: make(map[string]int), CallArgs: make(map[string][]int64)},
		onCall: onCall,
	}
	for _, p := range f.Params {
		in.env[p] = params[p.Aux]
	}

	b := f.Entry
	predIdx := -1
	for steps := 0; ; steps++ {
		if steps >= maxSteps {
			return nil, errors.Wrapf(ErrRunBudget, "in %s at b%d", f.Name, b.ID)
		}
		in.enter(b, predIdx)
		local := make(map[*Value]int64)
		for _, v := range b.Values {
			if v.Op == OpCall {
				in.call(v, local)
			}
		}
		switch b.Kind {
		case BlockPlain:
			next := b.Succs[0]
			predIdx, b = next.i, next.b
		case BlockIf:
			var next Edge
			if in.eval(b.Ctrl, local) != 0 {
				next = b.Succs[0]
			} else {
				next = b.Succs[1]
			}
			predIdx, b = next.i, next.b
		case BlockSwitch:
			c := in.eval(b.Ctrl, local)
			next := b.Succs[len(b.Succs)-1] // default
			for i, label := range b.Cases {
				if c == label {
					next = b.Succs[i]
					break
				}
			}
			predIdx, b = next.i, next.b
		case BlockReturn:
			if b.Ctrl != nil {
				in.res.Return = in.eval(b.Ctrl, local)
				in.res.HasRet = true
			}
			return in.res, nil
		default:
			return nil, errors.Errorf("cannot execute b%d of kind %s", b.ID, b.Kind)
		}
	}
}

// enter resolves the phi-like values of b for an entry through predecessor
// edge predIdx. All reads use the pre-transfer environment; writes are
// committed together.
func (in *interp) enter(b *Block, predIdx int) {
	var vals []int64
	var phis []*Value
	local := make(map[*Value]int64)
	for _, v := range b.Values {
		if v.Op.IsPhiLike() {
			Assertf(predIdx >= 0 && predIdx < len(v.Args), "entering b%d through bad edge %d", b.ID, predIdx)
			phis = append(phis, v)
			vals = append(vals, in.eval(v.Args[predIdx], local))
		}
	}
	for i, v := range phis {
		in.env[v] = vals[i]
	}
}

func (in *interp) call(v *Value, local map[*Value]int64) {
	args := make([]int64, len(v.Args))
	for i, a := range v.Args {
		args[i] = in.eval(a, local)
	}
	in.res.Calls[v.Aux]++
	in.res.CallArgs[v.Aux] = append(in.res.CallArgs[v.Aux], args...)
	var r int64
	if in.onCall != nil {
		r = in.onCall(v.Aux, args)
	}
	in.env[v] = r
}

// eval computes a value in the current environment. Phis, proxies and
// params come from env; everything else is recomputed on demand, with
// results memoized for the current block execution in local.
func (in *interp) eval(v *Value, local map[*Value]int64) int64 {
	if x, ok := local[v]; ok {
		return x
	}
	switch v.Op {
	case OpPhi, OpProxy, OpParam:
		x, ok := in.env[v]
		Assertf(ok, "v%d (%s) read before defined", v.ID, v.Op)
		return x
	case OpConst:
		return v.AuxInt
	case OpCall:
		// calls are executed once per block execution by the driver and
		// their results persist in env
		x, ok := in.env[v]
		Assertf(ok, "call v%d evaluated before it ran", v.ID)
		return x
	}
	var x int64
	switch v.Op {
	case OpAdd:
		x = TruncateTo(in.eval(v.Args[0], local)+in.eval(v.Args[1], local), v.Type)
	case OpSub:
		x = TruncateTo(in.eval(v.Args[0], local)-in.eval(v.Args[1], local), v.Type)
	case OpMul:
		x = TruncateTo(in.eval(v.Args[0], local)*in.eval(v.Args[1], local), v.Type)
	case OpLess:
		x = b2i(in.eval(v.Args[0], local) < in.eval(v.Args[1], local))
	case OpLeq:
		x = b2i(in.eval(v.Args[0], local) <= in.eval(v.Args[1], local))
	case OpEq:
		x = b2i(in.eval(v.Args[0], local) == in.eval(v.Args[1], local))
	case OpNeq:
		x = b2i(in.eval(v.Args[0], local) != in.eval(v.Args[1], local))
	case OpSelect:
		if in.eval(v.Args[0], local) != 0 {
			x = in.eval(v.Args[1], local)
		} else {
			x = in.eval(v.Args[2], local)
		}
	case OpOpaque:
		x = in.eval(v.Args[0], local)
	case OpSafepoint, OpFrameState:
		x = 0
	default:
		Fatalf("cannot evaluate v%d (%s)", v.ID, v.Op)
	}
	local[v] = x
	return x
}

// TruncateTo wraps x to the bit width of t, the overflow behaviour of
// every arithmetic op in this IR.
func TruncateTo(x int64, t Type) int64 {
	switch t {
	case TypeInt8:
		return int64(int8(x))
	case TypeInt16:
		return int64(int16(x))
	case TypeInt32:
		return int64(int32(x))
	}
	return x
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
