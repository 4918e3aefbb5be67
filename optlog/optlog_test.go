package optlog

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nickng/loopforge/ir"
)

func testHeader() *ir.Block {
	f := ir.NewFunc("count")
	h := f.NewBlock(ir.BlockIf)
	f.Entry.AddEdgeTo(h)
	return h
}

func TestReportAndCount(t *testing.T) {
	g := NewLog(Nop())
	h := testHeader()

	g.Report(LoopPeeling, h, Prop{Name: "peelings", Value: 1})
	g.Report(LoopPeeling, h, Prop{Name: "peelings", Value: 2})
	g.Report(LoopUnswitching, h)

	if got := g.Count(LoopPeeling); got != 2 {
		t.Errorf("peeling count: want 2, got %d", got)
	}
	if got := g.Count(LoopFullUnroll); got != 0 {
		t.Errorf("unreported event count: want 0, got %d", got)
	}
	if len(g.Entries) != 3 {
		t.Fatalf("entries: want 3, got %d", len(g.Entries))
	}
	e := g.Entries[0]
	if e.Event != LoopPeeling || e.Func != "count" || e.Header != h.ID {
		t.Errorf("entry malformed: %+v", e)
	}
	if len(e.Props) != 1 || e.Props[0].Name != "peelings" || e.Props[0].Value != 1 {
		t.Errorf("entry properties malformed: %+v", e.Props)
	}
}

func TestReportWritesDebugLog(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := New(zap.New(core).Sugar(), "transform")
	g := NewLog(l)
	g.Report(LoopPartialUnroll, testHeader(), Prop{Name: "unrollFactor", Value: 2})

	entries := logs.FilterMessage(string(LoopPartialUnroll)).All()
	if len(entries) != 1 {
		t.Fatalf("log entries: want 1, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["func"] != "count" {
		t.Errorf("logged func: want count, got %v", ctx["func"])
	}
	if ctx["unrollFactor"] != int64(2) {
		t.Errorf("logged unroll factor: want 2, got %v", ctx["unrollFactor"])
	}
}

func TestNilLoggerLog(t *testing.T) {
	g := NewLog(nil)
	g.Report(LoopFullUnroll, testHeader())
	if g.Count(LoopFullUnroll) != 1 {
		t.Error("nil-logger log must still count events")
	}
}

func TestModule(t *testing.T) {
	l := New(zap.NewNop().Sugar(), "canon")
	if l.Module() != "canon" {
		t.Errorf("module: want canon, got %s", l.Module())
	}
}
