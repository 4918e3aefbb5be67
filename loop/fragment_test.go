package loop

import (
	"testing"

	"github.com/nickng/loopforge/ir"
)

func runCount(t *testing.T, f *ir.Func, n int64) *ir.RunResult {
	t.Helper()
	res, err := ir.Run(f, map[string]int64{"N": n}, 100000, nil)
	if err != nil {
		t.Fatalf("run with N=%d: %v", n, err)
	}
	return res
}

func TestInsertIterationBefore(t *testing.T) {
	lf := makeLoop()
	lp := oneLoop(t, lf.f)
	frag := lp.InsertIterationBefore()

	if err := lf.f.Verify(); err != nil {
		t.Fatal("verify:", err)
	}
	ch := frag.Blocks[lf.header]
	if ch == nil {
		t.Fatal("header copy missing from fragment")
	}
	if lf.f.Entry.Succs[0].Block() != ch {
		t.Error("loop entry must run through the copied header")
	}
	// The copy computes the first iteration from the phi's entry value.
	for n := int64(0); n <= 6; n++ {
		res := runCount(t, lf.f, n)
		if int64(res.Calls["body"]) != n || res.Return != n {
			t.Errorf("N=%d: want %d calls and return %d, got %d and %d",
				n, n, n, res.Calls["body"], res.Return)
		}
	}
}

func TestInsertIterationAfter(t *testing.T) {
	lf := makeLoop()
	lp := oneLoop(t, lf.f)
	frag := lp.InsertIterationAfter()

	if err := lf.f.Verify(); err != nil {
		t.Fatal("verify:", err)
	}
	if lf.body.Succs[0].Block() != frag.Blocks[lf.header] {
		t.Error("latch must continue into the copied header")
	}
	// The copied exit check is still in place, so behaviour is unchanged.
	for n := int64(0); n <= 6; n++ {
		res := runCount(t, lf.f, n)
		if int64(res.Calls["body"]) != n || res.Return != n {
			t.Errorf("N=%d: want %d calls and return %d, got %d and %d",
				n, n, n, res.Calls["body"], res.Return)
		}
	}
}

func TestDuplicateWhole(t *testing.T) {
	lf := makeLoop()
	lp := oneLoop(t, lf.f)
	proxy := lf.exit.Phis()[0]
	frag := lp.DuplicateWhole()

	if len(frag.Merges) != 1 {
		t.Fatalf("want 1 exit merge, got %d", len(frag.Merges))
	}
	em := frag.Merges[0]
	if em.Exit != lf.exit || em.DupExit != frag.Blocks[lf.exit] {
		t.Error("merge does not join the exit with its copy")
	}
	if len(em.Merge.Preds) != 2 {
		t.Errorf("merge predecessors: want 2, got %d", len(em.Merge.Preds))
	}
	phi := em.PhiFor[proxy]
	if phi == nil || len(phi.Args) != 2 || phi.Args[0] != proxy {
		t.Fatal("merge phi over the exit proxies missing or malformed")
	}
	if lf.ret.Ctrl != phi {
		t.Error("users below the exit must read the merge phi")
	}
	if em.Merge.State == nil {
		t.Error("merge must take over the exit state")
	}

	// The copied header has only its back edge; the entry slot is the
	// caller's to wire.
	ch := frag.Header()
	if len(ch.Preds) != 1 {
		t.Errorf("copied header predecessors: want 1, got %d", len(ch.Preds))
	}
	for _, p := range ch.Phis() {
		if len(p.Args) != 1 {
			t.Errorf("copied phi v%d arguments: want 1, got %d", p.ID, len(p.Args))
		}
	}
	if err := lf.f.Verify(); err != nil {
		t.Error("verify:", err)
	}
}

func TestDuplicateWholeRunnable(t *testing.T) {
	// Wire the duplicate like unswitching does: a split in front of the
	// loop chooses between original and copy. Either path must behave
	// like the original loop.
	for _, takeCopy := range []int64{0, 1} {
		lf := makeLoop()
		lp := oneLoop(t, lf.f)
		fi := lp.ForwardPredIndex()
		split := lf.f.InsertBefore(lf.header, fi)
		split.Kind = ir.BlockIf
		split.SetCtrl(lf.f.ConstInt(ir.TypeBool, 1-takeCopy))

		frag := lp.DuplicateWhole()
		dh := frag.Header()
		split.AddEdgeTo(dh)
		for _, p := range lf.header.Phis() {
			frag.Values[p].AddArg(p.Args[fi])
		}
		if err := lf.f.Verify(); err != nil {
			t.Fatal("verify:", err)
		}
		res := runCount(t, lf.f, 5)
		if res.Calls["body"] != 5 || res.Return != 5 {
			t.Errorf("takeCopy=%d: want 5 calls and return 5, got %d and %d",
				takeCopy, res.Calls["body"], res.Return)
		}
	}
}

func TestPatchProxyAt(t *testing.T) {
	lf := makeLoop()
	existing := lf.exit.Phis()[0]
	if got := PatchProxyAt(lf.exit, lf.phi); got != existing {
		t.Errorf("existing proxy not reused: got v%d, want v%d", got.ID, existing.ID)
	}
	p := PatchProxyAt(lf.exit, lf.inext)
	if p.Op != ir.OpProxy || p.Args[0] != lf.inext {
		t.Errorf("new proxy malformed: %s", p.LongString())
	}
	if PatchProxyAt(lf.exit, lf.inext) != p {
		t.Error("second request must return the same proxy")
	}
}
