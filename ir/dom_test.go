package ir

import "testing"

func TestIdomDiamond(t *testing.T) {
	f, check, then, els, merge, ret, _ := diamond(1)
	idom := f.Idom()

	cases := []struct {
		b, want *Block
	}{
		{check, f.Entry},
		{then, check},
		{els, check},
		{merge, check},
		{ret, merge},
	}
	for _, c := range cases {
		if got := idom[c.b.ID]; got != c.want {
			t.Errorf("idom(b%d): want b%d, got %v", c.b.ID, c.want.ID, got)
		}
	}
	if idom[f.Entry.ID] != nil {
		t.Error("entry must have no immediate dominator")
	}
}

func TestDominates(t *testing.T) {
	f, check, then, _, merge, _, _ := diamond(1)
	if !f.Dominates(f.Entry, merge) {
		t.Error("entry must dominate the merge")
	}
	if !f.Dominates(check, check) {
		t.Error("dominance must be reflexive")
	}
	if f.Dominates(then, merge) {
		t.Error("a branch arm must not dominate the merge")
	}
}

func TestPostorder(t *testing.T) {
	f, _, _, _, _, ret, _ := diamond(1)
	po := f.Postorder()
	if expect, got := len(f.Blocks), len(po); expect != got {
		t.Fatalf("postorder length: want %d, got %d", expect, got)
	}
	if po[0] != ret {
		t.Errorf("postorder must start at the leaf, got b%d", po[0].ID)
	}
	if po[len(po)-1] != f.Entry {
		t.Errorf("postorder must end at the entry, got b%d", po[len(po)-1].ID)
	}
}
