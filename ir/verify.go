package ir

import "github.com/pkg/errors"

// Verify checks the structural invariants the transformations rely on:
// edge reciprocity, phi arity, control values matching block kinds. It is
// cheap enough to run from tests after every transformation.
func (f *Func) Verify() error {
	for _, b := range f.Blocks {
		if b.dead {
			return errors.Errorf("dead block b%d still listed", b.ID)
		}
		for i, e := range b.Succs {
			if e.b == nil {
				return errors.Errorf("b%d successor %d is nil", b.ID, i)
			}
			if e.i >= len(e.b.Preds) || e.b.Preds[e.i].b != b || e.b.Preds[e.i].i != i {
				return errors.Errorf("edge b%d->b%d not reciprocal", b.ID, e.b.ID)
			}
		}
		for i, e := range b.Preds {
			if e.b == nil {
				return errors.Errorf("b%d predecessor %d is nil", b.ID, i)
			}
			if e.i >= len(e.b.Succs) || e.b.Succs[e.i].b != b || e.b.Succs[e.i].i != i {
				return errors.Errorf("edge b%d<-b%d not reciprocal", b.ID, e.b.ID)
			}
		}
		switch b.Kind {
		case BlockPlain:
			if len(b.Succs) != 1 {
				return errors.Errorf("plain b%d has %d successors", b.ID, len(b.Succs))
			}
		case BlockIf:
			if len(b.Succs) != 2 {
				return errors.Errorf("if b%d has %d successors", b.ID, len(b.Succs))
			}
			if b.Ctrl == nil || b.Ctrl.Type != TypeBool {
				return errors.Errorf("if b%d control is not a bool", b.ID)
			}
		case BlockSwitch:
			if len(b.Succs) != len(b.Cases)+1 {
				return errors.Errorf("switch b%d has %d successors for %d cases", b.ID, len(b.Succs), len(b.Cases))
			}
			if b.Ctrl == nil {
				return errors.Errorf("switch b%d has no control", b.ID)
			}
		case BlockReturn:
			if len(b.Succs) != 0 {
				return errors.Errorf("return b%d has successors", b.ID)
			}
		default:
			return errors.Errorf("b%d has invalid kind", b.ID)
		}
		for _, v := range b.Values {
			if v.dead {
				return errors.Errorf("dead v%d still placed in b%d", v.ID, b.ID)
			}
			if v.Block != b {
				return errors.Errorf("v%d placed in b%d but claims b%v", v.ID, b.ID, v.Block)
			}
			if v.Op.IsPhiLike() && len(v.Args) != len(b.Preds) {
				return errors.Errorf("%s v%d in b%d has %d args for %d preds",
					v.Op, v.ID, b.ID, len(v.Args), len(b.Preds))
			}
			for _, a := range v.Args {
				if a != nil && a.dead {
					return errors.Errorf("v%d uses dead v%d", v.ID, a.ID)
				}
			}
		}
		if b.State != nil && b.State.Op != OpFrameState {
			return errors.Errorf("b%d state is %s, not a frame state", b.ID, b.State.Op)
		}
	}
	return nil
}
