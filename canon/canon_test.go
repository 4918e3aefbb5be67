package canon

import (
	"testing"

	"github.com/nickng/loopforge/ir"
)

// retFunc builds entry -> ret and returns both the function and the
// return block, ready to take a control value.
func retFunc() (*ir.Func, *ir.Block) {
	f := ir.NewFunc("test")
	ret := f.NewBlock(ir.BlockReturn)
	f.Entry.AddEdgeTo(ret)
	return f, ret
}

func TestFoldArith(t *testing.T) {
	cases := []struct {
		name string
		op   ir.Op
		x, y int64
		want int64
	}{
		{"add", ir.OpAdd, 2, 3, 5},
		{"sub", ir.OpSub, 2, 3, -1},
		{"mul", ir.OpMul, 4, 5, 20},
	}
	for _, c := range cases {
		f, ret := retFunc()
		v := ret.NewValue(c.op, ir.TypeInt64, f.ConstInt(ir.TypeInt64, c.x), f.ConstInt(ir.TypeInt64, c.y))
		ret.SetCtrl(v)
		if !New(f).Apply() {
			t.Errorf("%s: no change reported", c.name)
		}
		got, ok := ret.Ctrl.ConstValue()
		if !ok || got != c.want {
			t.Errorf("%s: want constant %d, got %s", c.name, c.want, ret.Ctrl.LongString())
		}
	}
}

func TestFoldArithTruncates(t *testing.T) {
	f, ret := retFunc()
	v := ret.NewValue(ir.OpAdd, ir.TypeInt8, f.ConstInt(ir.TypeInt8, 127), f.ConstInt(ir.TypeInt8, 1))
	ret.SetCtrl(v)
	New(f).Apply()
	if got, _ := ret.Ctrl.ConstValue(); got != -128 {
		t.Errorf("8-bit constant fold: want -128, got %d", got)
	}
}

func TestFoldArithIdentities(t *testing.T) {
	f, ret := retFunc()
	x := f.NewParam("x", ir.TypeInt64)
	zero := f.ConstInt(ir.TypeInt64, 0)
	one := f.ConstInt(ir.TypeInt64, 1)

	addZero := ret.NewValue(ir.OpAdd, ir.TypeInt64, x, zero)
	mulOne := ret.NewValue(ir.OpMul, ir.TypeInt64, addZero, one)
	ret.SetCtrl(mulOne)
	New(f).Apply()
	if ret.Ctrl != x {
		t.Errorf("x+0*1 chain: want the parameter back, got %s", ret.Ctrl.LongString())
	}

	f2, ret2 := retFunc()
	y := f2.NewParam("y", ir.TypeInt64)
	mulZero := ret2.NewValue(ir.OpMul, ir.TypeInt64, y, f2.ConstInt(ir.TypeInt64, 0))
	ret2.SetCtrl(mulZero)
	New(f2).Apply()
	if got, ok := ret2.Ctrl.ConstValue(); !ok || got != 0 {
		t.Errorf("y*0: want constant 0, got %s", ret2.Ctrl.LongString())
	}
}

func TestFoldCompare(t *testing.T) {
	cases := []struct {
		op   ir.Op
		x, y int64
		want int64
	}{
		{ir.OpLess, 1, 2, 1},
		{ir.OpLess, 2, 2, 0},
		{ir.OpLeq, 2, 2, 1},
		{ir.OpEq, 3, 3, 1},
		{ir.OpNeq, 3, 3, 0},
	}
	for _, c := range cases {
		f, ret := retFunc()
		v := ret.NewValue(c.op, ir.TypeBool, f.ConstInt(ir.TypeInt64, c.x), f.ConstInt(ir.TypeInt64, c.y))
		ret.SetCtrl(v)
		New(f).Apply()
		if got, _ := ret.Ctrl.ConstValue(); got != c.want {
			t.Errorf("%s(%d,%d): want %d, got %d", c.op, c.x, c.y, c.want, got)
		}
	}
}

func TestFoldCompareIdentity(t *testing.T) {
	f, ret := retFunc()
	x := f.NewParam("x", ir.TypeInt64)
	leq := ret.NewValue(ir.OpLeq, ir.TypeBool, x, x)
	ret.SetCtrl(leq)
	New(f).Apply()
	if got, ok := ret.Ctrl.ConstValue(); !ok || got != 1 {
		t.Errorf("x<=x: want constant 1, got %s", ret.Ctrl.LongString())
	}

	f2, ret2 := retFunc()
	y := f2.NewParam("y", ir.TypeInt64)
	less := ret2.NewValue(ir.OpLess, ir.TypeBool, y, y)
	ret2.SetCtrl(less)
	New(f2).Apply()
	if got, ok := ret2.Ctrl.ConstValue(); !ok || got != 0 {
		t.Errorf("y<y: want constant 0, got %s", ret2.Ctrl.LongString())
	}
}

func TestFoldSelect(t *testing.T) {
	f, ret := retFunc()
	sel := ret.NewValue(ir.OpSelect, ir.TypeInt64, f.ConstInt(ir.TypeBool, 1),
		f.ConstInt(ir.TypeInt64, 10), f.ConstInt(ir.TypeInt64, 20))
	ret.SetCtrl(sel)
	New(f).Apply()
	if got, _ := ret.Ctrl.ConstValue(); got != 10 {
		t.Errorf("select(true): want 10, got %d", got)
	}

	f2, ret2 := retFunc()
	x := f2.NewParam("x", ir.TypeInt64)
	same := ret2.NewValue(ir.OpSelect, ir.TypeInt64, f2.NewParam("c", ir.TypeBool), x, x)
	ret2.SetCtrl(same)
	New(f2).Apply()
	if ret2.Ctrl != x {
		t.Errorf("select with equal arms: want the arm, got %s", ret2.Ctrl.LongString())
	}
}

func TestOpaqueShieldsConstant(t *testing.T) {
	f, ret := retFunc()
	shielded := ret.NewValue(ir.OpOpaque, ir.TypeInt64, f.ConstInt(ir.TypeInt64, 3))
	v := ret.NewValue(ir.OpAdd, ir.TypeInt64, shielded, f.ConstInt(ir.TypeInt64, 0))
	ret.SetCtrl(v)
	New(f).Apply()
	// x+0 still simplifies, but the opaque wrapper itself survives.
	if ret.Ctrl != shielded {
		t.Errorf("want the opaque value, got %s", ret.Ctrl.LongString())
	}
}

func TestSimplifyBranchesAndPhis(t *testing.T) {
	f := ir.NewFunc("branchy")
	check := f.NewBlock(ir.BlockIf)
	then := f.NewBlock(ir.BlockPlain)
	els := f.NewBlock(ir.BlockPlain)
	merge := f.NewBlock(ir.BlockPlain)
	ret := f.NewBlock(ir.BlockReturn)

	f.Entry.AddEdgeTo(check)
	check.SetCtrl(f.ConstInt(ir.TypeBool, 1))
	check.AddEdgeTo(then)
	check.AddEdgeTo(els)
	then.AddEdgeTo(merge)
	els.AddEdgeTo(merge)
	phi := merge.NewValue(ir.OpPhi, ir.TypeInt64, f.ConstInt(ir.TypeInt64, 7), f.ConstInt(ir.TypeInt64, 8))
	merge.AddEdgeTo(ret)
	ret.SetCtrl(phi)

	if !New(f).Apply() {
		t.Fatal("no change reported")
	}
	if check.Kind != ir.BlockPlain {
		t.Errorf("constant branch not collapsed, kind %s", check.Kind)
	}
	if got, ok := ret.Ctrl.ConstValue(); !ok || got != 7 {
		t.Errorf("single-input phi not folded: got %s", ret.Ctrl.LongString())
	}
	if err := f.Verify(); err != nil {
		t.Error("verify:", err)
	}
	res, err := ir.Run(f, nil, 100, nil)
	if err != nil {
		t.Fatal("run:", err)
	}
	if res.Return != 7 {
		t.Errorf("execution after folding: want 7, got %d", res.Return)
	}
}

func TestFoldSwitch(t *testing.T) {
	f := ir.NewFunc("switchy")
	sw := f.NewBlock(ir.BlockSwitch)
	a := f.NewBlock(ir.BlockPlain)
	b := f.NewBlock(ir.BlockPlain)
	dflt := f.NewBlock(ir.BlockPlain)
	ret := f.NewBlock(ir.BlockReturn)

	f.Entry.AddEdgeTo(sw)
	sw.Cases = []int64{10, 20}
	sw.SetCtrl(f.ConstInt(ir.TypeInt64, 20))
	sw.AddEdgeTo(a)
	sw.AddEdgeTo(b)
	sw.AddEdgeTo(dflt)
	a.AddEdgeTo(ret)
	b.AddEdgeTo(ret)
	dflt.AddEdgeTo(ret)

	New(f).Apply()
	if sw.Kind != ir.BlockPlain || sw.Succs[0].Block() != b {
		t.Errorf("constant switch must collapse to the matching case, got %s", sw.LongString())
	}
	if err := f.Verify(); err != nil {
		t.Error("verify:", err)
	}
}

// A phi whose only input is its own increment must fold away: the
// increment becomes self-referential, drops the phi to zero uses and
// dies with its block once the loop remnant is unreachable. If the phi
// survived, folding it again every round would never reach a fixed
// point.
func TestFoldPhiIntoOwnIncrement(t *testing.T) {
	f := ir.NewFunc("remnant")
	b := f.NewBlock(ir.BlockPlain)
	ret := f.NewBlock(ir.BlockReturn)
	f.Entry.AddEdgeTo(b)
	b.AddEdgeTo(ret)

	phi := b.NewValue(ir.OpPhi, ir.TypeInt64)
	inext := b.NewValue(ir.OpAdd, ir.TypeInt64, phi, f.ConstInt(ir.TypeInt64, 1))
	phi.AddArg(inext)
	ret.SetCtrl(inext)

	if !New(f).Apply() {
		t.Fatal("no change reported")
	}
	if !phi.Dead() {
		t.Error("degenerate phi must be released")
	}
	if inext.Args[0] != inext {
		t.Errorf("increment input: want self reference, got %s", inext.Args[0].LongString())
	}
	if New(f).Apply() {
		t.Error("second pass must find nothing to do")
	}
}

// ApplyIncremental follows only the seeded values; the rest of the
// graph stays as it was.
func TestApplyIncremental(t *testing.T) {
	f, ret := retFunc()
	seeded := ret.NewValue(ir.OpAdd, ir.TypeInt64, f.ConstInt(ir.TypeInt64, 2), f.ConstInt(ir.TypeInt64, 3))
	other := ret.NewValue(ir.OpAdd, ir.TypeInt64, f.ConstInt(ir.TypeInt64, 1), f.ConstInt(ir.TypeInt64, 1))
	sum := ret.NewValue(ir.OpAdd, ir.TypeInt64, seeded, other)
	ret.SetCtrl(sum)

	if !New(f).ApplyIncremental([]*ir.Value{seeded}) {
		t.Fatal("no change reported")
	}
	if x, ok := sum.Args[0].ConstValue(); !ok || x != 5 {
		t.Errorf("seeded operand: want constant 5, got %s", sum.Args[0].LongString())
	}
	if other.Dead() || len(other.Args) != 2 {
		t.Error("unseeded value must be left alone")
	}
}

// When a seeded fold turns a branch condition constant, the branch
// collapses and the phis the collapse strands fold too.
func TestApplyIncrementalCollapsesBranches(t *testing.T) {
	f := ir.NewFunc("pick")
	check := f.NewBlock(ir.BlockIf)
	then := f.NewBlock(ir.BlockPlain)
	els := f.NewBlock(ir.BlockPlain)
	merge := f.NewBlock(ir.BlockPlain)
	ret := f.NewBlock(ir.BlockReturn)

	f.Entry.AddEdgeTo(check)
	cond := check.NewValue(ir.OpLess, ir.TypeBool, f.ConstInt(ir.TypeInt64, 1), f.ConstInt(ir.TypeInt64, 2))
	check.SetCtrl(cond)
	check.AddEdgeTo(then)
	check.AddEdgeTo(els)
	then.AddEdgeTo(merge)
	els.AddEdgeTo(merge)
	phi := merge.NewValue(ir.OpPhi, ir.TypeInt64, f.ConstInt(ir.TypeInt64, 7), f.ConstInt(ir.TypeInt64, 9))
	merge.AddEdgeTo(ret)
	ret.SetCtrl(phi)

	if !New(f).ApplyIncremental([]*ir.Value{cond}) {
		t.Fatal("no change reported")
	}
	if err := f.Verify(); err != nil {
		t.Fatal("verify:", err)
	}
	if x, ok := ret.Ctrl.ConstValue(); !ok || x != 7 {
		t.Errorf("want return 7, got %s", ret.Ctrl.LongString())
	}
	if !els.Dead() {
		t.Error("dead branch arm survived")
	}
}
