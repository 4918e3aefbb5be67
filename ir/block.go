package ir

import (
	"bytes"
	"fmt"
)

// BlockKind determines how control leaves a block.
type BlockKind uint8

const (
	BlockInvalid BlockKind = iota
	BlockPlain             // one successor, unconditional
	BlockIf                // two successors, Ctrl is a Bool; Succs[0] is the true side
	BlockSwitch            // n successors, Ctrl matched against Cases; last successor is the default
	BlockReturn            // no successors, Ctrl is the optional return value
)

var blockKindNames = [...]string{
	BlockInvalid: "Invalid",
	BlockPlain:   "Plain",
	BlockIf:      "If",
	BlockSwitch:  "Switch",
	BlockReturn:  "Return",
}

func (k BlockKind) String() string {
	if int(k) < len(blockKindNames) {
		return blockKindNames[k]
	}
	return "Kind?"
}

// IsControlSplit reports whether a block of this kind has more than one
// successor.
func (k BlockKind) IsControlSplit() bool { return k == BlockIf || k == BlockSwitch }

// LoopRole tags a loop header produced by the pre/main/post splitter.
// Later passes (e.g. vectorizers) target only RoleMain headers.
type LoopRole uint8

const (
	RoleNone LoopRole = iota
	RolePre
	RoleMain
	RolePost
)

var loopRoleNames = [...]string{"", "pre", "main", "post"}

func (r LoopRole) String() string { return loopRoleNames[r] }

// Edge is one side of a CFG edge, bundled with the index of the reverse
// edge so that both directions can be updated in constant time.
// The invariant is
//
//	e := b.Succs[i]
//	e.Block().Preds[e.Index()] == Edge{b, i}
//
// and symmetrically for predecessor edges.
type Edge struct {
	b *Block
	i int
}

func (e Edge) Block() *Block { return e.b }
func (e Edge) Index() int    { return e.i }

// Block is a basic block of the CFG.
type Block struct {
	ID      int
	Kind    BlockKind
	Comment string // optional, carried through duplication for debugging

	Preds []Edge
	Succs []Edge

	// Values computed in this block. Phi-like values come first and their
	// argument lists are parallel to Preds.
	Values []*Value

	Ctrl   *Value  // branch condition / switch value / return value
	Cases  []int64 // Switch case labels for Succs[0..len(Cases)-1]
	Likely float64 // probability that Succs[0] is taken; 0 means unknown

	// State is the deoptimization snapshot captured at this point. Only
	// loop headers, loop exits and merges introduced by duplication carry
	// one.
	State *Value

	// Loop bookkeeping. These fields are meaningful only on loop headers
	// and deliberately live on the block, not on the (recomputed per pass)
	// loop model, so they survive control-flow mutation.
	Role          LoopRole
	Peelings      int
	Unswitches    int
	UnrollFactor  int
	OrigFrequency float64

	Func *Func
	dead bool
}

// Dead reports whether the block has been removed from the graph.
func (b *Block) Dead() bool { return b.dead }

// NewValue creates a value of the given op in b.
func (b *Block) NewValue(op Op, t Type, args ...*Value) *Value {
	v := b.Func.newValue(op, t)
	v.Block = b
	v.AddArgs(args...)
	b.Values = append(b.Values, v)
	return v
}

// RemoveValue detaches v from b without touching v's own arguments.
func (b *Block) RemoveValue(v *Value) {
	for i, w := range b.Values {
		if w == v {
			copy(b.Values[i:], b.Values[i+1:])
			b.Values[len(b.Values)-1] = nil
			b.Values = b.Values[:len(b.Values)-1]
			v.Block = nil
			return
		}
	}
	Fatalf("v%d not in b%d", v.ID, b.ID)
}

// SetCtrl sets the control value of b, maintaining use counts.
func (b *Block) SetCtrl(v *Value) {
	if b.Ctrl != nil {
		b.Ctrl.Uses--
	}
	b.Ctrl = v
	if v != nil {
		v.Uses++
	}
}

// SetState sets the deoptimization snapshot of b, maintaining use counts.
func (b *Block) SetState(v *Value) {
	if b.State != nil {
		b.State.Uses--
	}
	b.State = v
	if v != nil {
		v.Uses++
	}
}

// Phis returns the phi-like values of b (phis and proxies).
func (b *Block) Phis() []*Value {
	var phis []*Value
	for _, v := range b.Values {
		if v.Op.IsPhiLike() {
			phis = append(phis, v)
		}
	}
	return phis
}

// AddEdgeTo adds an edge b -> c, appending to both edge lists. Phi-like
// values in c do not gain an argument; the caller must widen them.
func (b *Block) AddEdgeTo(c *Block) {
	i := len(b.Succs)
	j := len(c.Preds)
	b.Succs = append(b.Succs, Edge{c, j})
	c.Preds = append(c.Preds, Edge{b, i})
}

// ReplaceSucc redirects successor edge i of b from its current target to c.
// The old target loses the corresponding predecessor (order preserving,
// phi-like arguments dropped); c gains one. Phi-like values in c must be
// widened by the caller.
func (b *Block) ReplaceSucc(i int, c *Block) {
	old := b.Succs[i]
	j := len(c.Preds)
	b.Succs[i] = Edge{c, j}
	c.Preds = append(c.Preds, Edge{b, i})
	old.b.RemovePred(old.i)
}

// RemovePred removes predecessor edge i of b, shrinking the argument lists
// of phi-like values in tandem. Edge order is preserved so that the
// forward-entry predecessor of a loop header keeps its index.
func (b *Block) RemovePred(i int) {
	for _, v := range b.Values {
		if v.Op.IsPhiLike() && len(v.Args) == len(b.Preds) {
			v.RemoveArg(i)
		}
	}
	b.removePredEdge(i)
}

// removePredEdge removes predecessor edge i without touching phis and
// without touching the former predecessor's successor list; the caller is
// responsible for that side.
func (b *Block) removePredEdge(i int) {
	copy(b.Preds[i:], b.Preds[i+1:])
	b.Preds = b.Preds[:len(b.Preds)-1]
	// fix reverse indices of the shifted edges
	for j := i; j < len(b.Preds); j++ {
		e := b.Preds[j]
		e.b.Succs[e.i] = Edge{b, j}
	}
}

// RemoveEdge removes successor edge i of b, shrinking the target's
// predecessor list and phi-like argument lists in tandem.
func (b *Block) RemoveEdge(i int) {
	s := b.Succs[i]
	b.removeSuccEdge(i)
	s.b.RemovePred(s.i)
}

// removeSuccEdge removes successor edge i of b, preserving order and
// updating reverse indices. The former target's predecessor list is not
// touched; use higher-level helpers for that.
func (b *Block) removeSuccEdge(i int) {
	copy(b.Succs[i:], b.Succs[i+1:])
	b.Succs = b.Succs[:len(b.Succs)-1]
	for j := i; j < len(b.Succs); j++ {
		e := b.Succs[j]
		e.b.Preds[e.i] = Edge{b, j}
	}
}

// PredIndex returns the index of the predecessor edge coming from p.
func (b *Block) PredIndex(p *Block) int {
	for i, e := range b.Preds {
		if e.b == p {
			return i
		}
	}
	return -1
}

// SuccIndex returns the index of the successor edge leading to s.
func (b *Block) SuccIndex(s *Block) int {
	for i, e := range b.Succs {
		if e.b == s {
			return i
		}
	}
	return -1
}

// StructurallyEqual reports whether two control splits test the same value
// over the same ordered successor shape. Used to group multi-way branches
// for unswitching: an If is equal only by condition identity, a Switch
// additionally requires the same ordered case labels.
func (b *Block) StructurallyEqual(c *Block) bool {
	if b.Kind != c.Kind || b.Ctrl != c.Ctrl {
		return false
	}
	if len(b.Succs) != len(c.Succs) || len(b.Cases) != len(c.Cases) {
		return false
	}
	for i, l := range b.Cases {
		if c.Cases[i] != l {
			return false
		}
	}
	return true
}

func (b *Block) String() string { return fmt.Sprintf("b%d", b.ID) }

// LongString returns a verbose one-line form with kind and edges.
func (b *Block) LongString() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "b%d %s", b.ID, b.Kind)
	if b.Comment != "" {
		fmt.Fprintf(&buf, " (%s)", b.Comment)
	}
	if len(b.Succs) > 0 {
		buf.WriteString(" ->")
		for _, e := range b.Succs {
			fmt.Fprintf(&buf, " b%d", e.b.ID)
		}
	}
	return buf.String()
}
