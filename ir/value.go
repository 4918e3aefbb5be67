package ir

import (
	"bytes"
	"fmt"
)

// Value is a single SSA value. Values live in a Block and reference their
// arguments directly; the IR keeps a use count (not a use list) and
// rebuilds def-use information on demand, as the grounding IRs do.
type Value struct {
	ID     int
	Op     Op
	Type   Type
	AuxInt int64  // constant payload for OpConst
	Aux    string // callee name for OpCall, parameter name for OpParam
	Args   []*Value
	Block  *Block
	Uses   int // number of arguments and block controls referencing this value

	dead bool
}

// Dead reports whether the value has been removed from the graph.
func (v *Value) Dead() bool { return v.dead }

// AddArg appends w to v's arguments.
func (v *Value) AddArg(w *Value) {
	v.Args = append(v.Args, w)
	if w != nil {
		w.Uses++
	}
}

// AddArgs appends all ws to v's arguments.
func (v *Value) AddArgs(ws ...*Value) {
	for _, w := range ws {
		v.AddArg(w)
	}
}

// SetArg replaces argument i with w, maintaining use counts.
func (v *Value) SetArg(i int, w *Value) {
	if old := v.Args[i]; old != nil {
		old.Uses--
	}
	v.Args[i] = w
	if w != nil {
		w.Uses++
	}
}

// RemoveArg removes argument i, preserving the order of the remaining
// arguments. Order matters: phi-like argument lists are parallel to block
// predecessor lists.
func (v *Value) RemoveArg(i int) {
	if old := v.Args[i]; old != nil {
		old.Uses--
	}
	copy(v.Args[i:], v.Args[i+1:])
	v.Args[len(v.Args)-1] = nil
	v.Args = v.Args[:len(v.Args)-1]
}

func (v *Value) resetArgs() {
	for _, a := range v.Args {
		if a != nil {
			a.Uses--
		}
	}
	v.Args = v.Args[:0]
}

// ReplaceArg substitutes every occurrence of old in v's arguments with w.
func (v *Value) ReplaceArg(old, w *Value) {
	for i, a := range v.Args {
		if a == old {
			v.SetArg(i, w)
		}
	}
}

// ConstValue returns the compile-time constant behind v, looking through
// Opaque wrappers, and whether there is one.
func (v *Value) ConstValue() (int64, bool) {
	for v != nil && v.Op == OpOpaque {
		v = v.Args[0]
	}
	if v != nil && v.Op == OpConst {
		return v.AuxInt, true
	}
	return 0, false
}

func (v *Value) String() string {
	return fmt.Sprintf("v%d", v.ID)
}

// LongString returns a verbose form like "v7 = Add <i64> v3 v5".
func (v *Value) LongString() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "v%d = %s <%s>", v.ID, v.Op, v.Type)
	switch v.Op {
	case OpConst:
		fmt.Fprintf(&buf, " [%d]", v.AuxInt)
	case OpParam, OpCall:
		fmt.Fprintf(&buf, " {%s}", v.Aux)
	}
	for _, a := range v.Args {
		if a == nil {
			buf.WriteString(" <nil>")
			continue
		}
		fmt.Fprintf(&buf, " v%d", a.ID)
	}
	return buf.String()
}
