package ir

// Op is the operation computed by a Value. The set is closed: every
// transformation in this module dispatches on Op by switch, there is no
// open-ended node hierarchy.
type Op uint8

const (
	OpInvalid Op = iota

	// Phi-like values. Their argument list is parallel to the predecessor
	// list of the block they live in.
	OpPhi   // merge value, one argument per incoming control edge
	OpProxy // loop-boundary value, makes an in-loop value observable outside

	OpFrameState // deoptimization snapshot, arguments are the live values

	OpConst // AuxInt holds the constant
	OpParam // Aux holds the parameter name

	OpAdd
	OpSub
	OpMul

	OpLess // Args[0] < Args[1]
	OpLeq  // Args[0] <= Args[1]
	OpEq
	OpNeq

	OpSelect // Args[0] ? Args[1] : Args[2]

	OpCall      // opaque side-effecting call, Aux holds the callee name
	OpOpaque    // identity, shields Args[0] from canonicalization
	OpSafepoint // poll point inside loop bodies

	opMax
)

var opNames = [...]string{
	OpInvalid:    "Invalid",
	OpPhi:        "Phi",
	OpProxy:      "Proxy",
	OpFrameState: "FrameState",
	OpConst:      "Const",
	OpParam:      "Param",
	OpAdd:        "Add",
	OpSub:        "Sub",
	OpMul:        "Mul",
	OpLess:       "Less",
	OpLeq:        "Leq",
	OpEq:         "Eq",
	OpNeq:        "Neq",
	OpSelect:     "Select",
	OpCall:       "Call",
	OpOpaque:     "Opaque",
	OpSafepoint:  "Safepoint",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "Op?"
}

// IsPhiLike reports whether op keeps one argument per predecessor of its
// block. Proxies start out with a single argument in a single-predecessor
// exit block and widen like phis when the block gains predecessors.
func (op Op) IsPhiLike() bool {
	return op == OpPhi || op == OpProxy
}

// IsCompare reports whether op is a comparison producing a Bool.
func (op Op) IsCompare() bool {
	switch op {
	case OpLess, OpLeq, OpEq, OpNeq:
		return true
	}
	return false
}

// HasSideEffects reports whether a value of this op must not be removed
// even when it has no uses.
func (op Op) HasSideEffects() bool {
	return op == OpCall || op == OpSafepoint
}

// Type is the (tiny) type system of the IR: fixed-width integers, booleans
// and frame states. It carries just enough to reason about induction
// variable overflow.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeState
)

var typeNames = [...]string{
	TypeInvalid: "?",
	TypeBool:    "bool",
	TypeInt8:    "i8",
	TypeInt16:   "i16",
	TypeInt32:   "i32",
	TypeInt64:   "i64",
	TypeState:   "state",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type?"
}

// Bits returns the width of an integer type, or 0 for non-integers.
func (t Type) Bits() int {
	switch t {
	case TypeInt8:
		return 8
	case TypeInt16:
		return 16
	case TypeInt32:
		return 32
	case TypeInt64:
		return 64
	}
	return 0
}

// IsInt reports whether t is a fixed-width integer type.
func (t Type) IsInt() bool { return t.Bits() > 0 }
