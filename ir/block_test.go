package ir

import "testing"

// diamond builds entry -> check -> {then, else} -> merge -> ret with a
// phi over two constants at the merge.
func diamond(cond int64) (f *Func, check, then, els, merge, ret *Block, phi *Value) {
	f = NewFunc("diamond")
	check = f.NewBlock(BlockIf)
	then = f.NewBlock(BlockPlain)
	els = f.NewBlock(BlockPlain)
	merge = f.NewBlock(BlockPlain)
	ret = f.NewBlock(BlockReturn)

	f.Entry.AddEdgeTo(check)
	check.SetCtrl(f.ConstInt(TypeBool, cond))
	check.AddEdgeTo(then)
	check.AddEdgeTo(els)
	then.AddEdgeTo(merge)
	els.AddEdgeTo(merge)
	phi = merge.NewValue(OpPhi, TypeInt64, f.ConstInt(TypeInt64, 1), f.ConstInt(TypeInt64, 2))
	merge.AddEdgeTo(ret)
	ret.SetCtrl(phi)
	return f, check, then, els, merge, ret, phi
}

func TestEdgeReciprocity(t *testing.T) {
	f, check, then, els, merge, _, _ := diamond(1)
	if err := f.Verify(); err != nil {
		t.Fatal("verify:", err)
	}
	if expect, got := 0, merge.PredIndex(then); expect != got {
		t.Errorf("merge.PredIndex(then): want %d, got %d", expect, got)
	}
	if expect, got := 1, check.SuccIndex(els); expect != got {
		t.Errorf("check.SuccIndex(else): want %d, got %d", expect, got)
	}
}

func TestReplaceSuccShrinksPhi(t *testing.T) {
	f, _, _, els, merge, _, phi := diamond(1)
	// Redirect else away from the merge; the phi must lose its slot.
	d := f.NewBlock(BlockPlain)
	r2 := f.NewBlock(BlockReturn)
	d.AddEdgeTo(r2)
	els.ReplaceSucc(0, d)

	if expect, got := 1, len(merge.Preds); expect != got {
		t.Fatalf("merge predecessors: want %d, got %d", expect, got)
	}
	if expect, got := 1, len(phi.Args); expect != got {
		t.Fatalf("phi arguments: want %d, got %d", expect, got)
	}
	if x, _ := phi.Args[0].ConstValue(); x != 1 {
		t.Errorf("surviving phi argument: want 1, got %d", x)
	}
	if err := f.Verify(); err != nil {
		t.Error("verify:", err)
	}
}

func TestCollapseToSucc(t *testing.T) {
	f, check, then, els, merge, ret, phi := diamond(1)
	ctrl := check.Ctrl
	check.CollapseToSucc(0)

	if check.Kind != BlockPlain {
		t.Errorf("collapsed block kind: want Plain, got %s", check.Kind)
	}
	if check.Succs[0].Block() != then {
		t.Errorf("collapsed block successor: want b%d, got b%d", then.ID, check.Succs[0].Block().ID)
	}
	if !els.Dead() {
		t.Error("orphaned else branch not pruned")
	}
	if !ctrl.Dead() {
		t.Error("released control value not killed")
	}
	if expect, got := 1, len(phi.Args); expect != got {
		t.Fatalf("phi arguments after prune: want %d, got %d", expect, got)
	}
	if x, _ := phi.Args[0].ConstValue(); x != 1 {
		t.Errorf("surviving phi argument: want 1, got %d", x)
	}
	_ = merge
	_ = ret
	if err := f.Verify(); err != nil {
		t.Error("verify:", err)
	}
}

func TestInsertBefore(t *testing.T) {
	f, _, _, els, merge, _, phi := diamond(1)
	n := f.InsertBefore(merge, 1)

	if n.Preds[0].Block() != els || n.Succs[0].Block() != merge {
		t.Errorf("inserted block not on the edge: %s", n.LongString())
	}
	if expect, got := 2, len(phi.Args); expect != got {
		t.Errorf("phi arguments must be untouched: want %d, got %d", expect, got)
	}
	if err := f.Verify(); err != nil {
		t.Error("verify:", err)
	}
}

func TestRemovePassthrough(t *testing.T) {
	f, _, _, els, merge, _, phi := diamond(1)
	n := f.InsertBefore(merge, 1)
	f.RemovePassthrough(n)

	if merge.Preds[1].Block() != els {
		t.Errorf("merge predecessor 1: want b%d, got b%d", els.ID, merge.Preds[1].Block().ID)
	}
	if expect, got := 2, len(phi.Args); expect != got {
		t.Errorf("phi arguments: want %d, got %d", expect, got)
	}
	if err := f.Verify(); err != nil {
		t.Error("verify:", err)
	}
}

func TestRemoveUnreachable(t *testing.T) {
	f, check, _, els, _, _, phi := diamond(1)
	// Statically take the then side; the else branch becomes unreachable
	// but still wired.
	check.Kind = BlockPlain
	ctrl := check.Ctrl
	check.SetCtrl(nil)
	f.KillUnusedFloating(ctrl)
	check.RemoveEdge(1)

	if removed := f.RemoveUnreachable(); removed != 1 {
		t.Errorf("blocks removed: want 1, got %d", removed)
	}
	if !els.Dead() {
		t.Error("unreachable else branch survived")
	}
	if expect, got := 1, len(phi.Args); expect != got {
		t.Errorf("phi arguments: want %d, got %d", expect, got)
	}
	if err := f.Verify(); err != nil {
		t.Error("verify:", err)
	}
}

func TestReplaceUses(t *testing.T) {
	f, check, _, _, _, ret, phi := diamond(1)
	c := f.ConstInt(TypeInt64, 42)
	f.ReplaceUses(phi, c)
	if ret.Ctrl != c {
		t.Errorf("return control not rewritten: got %s", ret.Ctrl.LongString())
	}
	if phi.Uses != 0 {
		t.Errorf("replaced value still has %d uses", phi.Uses)
	}
	_ = check
}

func TestStructurallyEqual(t *testing.T) {
	f := NewFunc("switches")
	cond := f.ConstInt(TypeInt64, 0)
	a := f.NewBlock(BlockSwitch)
	a.Cases = []int64{1, 2}
	a.SetCtrl(cond)
	b := f.NewBlock(BlockSwitch)
	b.Cases = []int64{1, 2}
	b.SetCtrl(cond)
	c := f.NewBlock(BlockSwitch)
	c.Cases = []int64{2, 1}
	c.SetCtrl(cond)

	if !a.StructurallyEqual(b) {
		t.Error("switches with equal cases not equal")
	}
	if a.StructurallyEqual(c) {
		t.Error("switches with reordered cases must not be equal")
	}
}
