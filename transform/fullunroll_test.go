package transform

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/nickng/loopforge/loop"
	"github.com/nickng/loopforge/optlog"
)

func TestFullUnroll(t *testing.T) {
	for n := int64(0); n <= 6; n++ {
		lf := makeCountedLoopConst(n)
		log := optlog.NewLog(nil)
		lp := oneLoop(t, lf.f)

		if err := FullUnroll(lp, DefaultConfig(), log); err != nil {
			t.Fatalf("N=%d: full unroll: %v", n, err)
		}
		if err := lf.f.Verify(); err != nil {
			t.Fatalf("N=%d: verify: %v", n, err)
		}
		if left := len(loop.Detect(lf.f).Loops); left != 0 {
			t.Errorf("N=%d: %d loops left after full unroll", n, left)
		}
		if log.Count(optlog.LoopFullUnroll) != 1 {
			t.Errorf("N=%d: full unroll not reported", n)
		}

		res := runCount(t, lf.f, 0) // limit is baked in, N unused
		if int64(res.Calls["body"]) != n || res.Return != n {
			t.Errorf("N=%d: want %d calls and return %d, got %d and %d",
				n, n, n, res.Calls["body"], res.Return)
		}
	}
}

func TestFullUnrollBailout(t *testing.T) {
	// A dynamic limit never folds, so the unroll must hit its budget.
	lf := makeCountedLoop()
	log := optlog.NewLog(nil)
	lp := oneLoop(t, lf.f)
	cfg := Config{MaximumDesiredSize: 50, FullUnrollMaxIterations: 4}

	err := FullUnroll(lp, cfg, log)
	if errors.Cause(err) != ErrBailout {
		t.Fatalf("want ErrBailout, got %v", err)
	}
	if log.Count(optlog.LoopFullUnroll) != 0 {
		t.Error("aborted unroll must not be reported")
	}
	// The graph is partially peeled but still consistent and correct.
	if err := lf.f.Verify(); err != nil {
		t.Fatal("verify:", err)
	}
	for n := int64(0); n <= 8; n++ {
		checkTripCount(t, lf.f, n)
	}
}
