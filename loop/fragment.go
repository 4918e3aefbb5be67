package loop

import (
	"github.com/nickng/loopforge/ir"
)

// Fragment is the result of duplicating a loop, or one iteration of its
// body. Blocks and Values map originals to their copies; originals that
// were substituted away (header phis of an iteration copy) have no entry.
//
// The three duplication modes differ in how the copy is stitched into
// the graph:
//
//	InsertIterationBefore   one body copy in front of the loop (peeling)
//	InsertIterationAfter    one body copy on the back edge (unrolling)
//	DuplicateWhole          a full second loop, entry left unwired,
//	                        exits joined through fresh merges
type Fragment struct {
	Loop   *Loop
	Blocks map[*ir.Block]*ir.Block
	Values map[*ir.Value]*ir.Value

	// Merges joins the duplicated exits with the originals; only
	// DuplicateWhole fills it.
	Merges []*ExitMerge
}

// ExitMerge is the control merge created below one loop exit by whole
// duplication. Values escaping the loop through Exit now flow through a
// phi in Merge instead of the exit proxy.
type ExitMerge struct {
	Exit    *ir.Block
	DupExit *ir.Block
	Merge   *ir.Block
	PhiFor  map[*ir.Value]*ir.Value // proxy at Exit -> phi at Merge
}

// Header returns the copy of the loop header.
func (fr *Fragment) Header() *ir.Block { return fr.Blocks[fr.Loop.header] }

// Mapped returns the copy of v, or v itself when it was not duplicated.
func (fr *Fragment) Mapped(v *ir.Value) *ir.Value {
	if c := fr.Values[v]; c != nil {
		return c
	}
	return v
}

// MappedBlock returns the copy of b, or b itself when it was not
// duplicated.
func (fr *Fragment) MappedBlock(b *ir.Block) *ir.Block {
	if c := fr.Blocks[b]; c != nil {
		return c
	}
	return b
}

// InsertIterationBefore duplicates the loop body once and splices the
// copy in front of the loop: the loop entry now runs through the copy,
// and the header phis receive the copy's end-of-iteration values on
// their entry slot. References to header phis inside the copy are
// replaced by the phis' entry values, so the copy computes exactly the
// first iteration.
func (lp *Loop) InsertIterationBefore() *Fragment {
	ir.Assertf(lp.CanDuplicate(), "%s cannot be duplicated", lp)
	h := lp.header
	fi := lp.ForwardPredIndex()
	lp.BackPredIndex() // asserts the single latch

	d := newDuper(lp, false)
	for _, p := range h.Phis() {
		d.sub[p] = p.Args[fi]
	}
	d.copyAll(lp.blocks)
	d.wire(lp.blocks)

	// The copy's back edge already widened the header phis; now move the
	// loop entry onto the copied header.
	e := h.Preds[fi]
	e.Block().ReplaceSucc(e.Index(), d.fr.Blocks[h])
	lp.f.InvalidateCFG()
	return d.fr
}

// InsertIterationAfter duplicates the loop body once and splices the
// copy onto the back edge, doubling the work per header visit: the latch
// now continues into the copy, and the copy's latch closes the loop.
// References to header phis inside the copy are replaced by the phis'
// back-edge values, so the copy computes the following iteration.
//
// The copy of the loop's own exit check survives as an If inside the
// body; the caller is expected to collapse it (partial unrolling proves
// it always continues).
func (lp *Loop) InsertIterationAfter() *Fragment {
	ir.Assertf(lp.CanDuplicate(), "%s cannot be duplicated", lp)
	h := lp.header
	bi := lp.BackPredIndex()

	d := newDuper(lp, false)
	for _, p := range h.Phis() {
		d.sub[p] = p.Args[bi]
	}
	d.copyAll(lp.blocks)
	d.wire(lp.blocks)

	// Back edge now runs latch -> copied header ... copied latch -> header.
	e := h.Preds[bi]
	e.Block().ReplaceSucc(e.Index(), d.fr.Blocks[h])
	lp.f.InvalidateCFG()
	return d.fr
}

// DuplicateWhole copies the loop in full, exit blocks included. The
// copy's header keeps its phis (entry slot missing: the caller decides
// where the second loop is entered from and appends the entry arguments)
// and each non-returning exit pair is joined through a fresh merge whose
// phis replace the original exit proxies for all users below.
//
// Exits must be in canonical form: a single predecessor each. Returning
// exits are duplicated as a second return instead of merged.
func (lp *Loop) DuplicateWhole() *Fragment {
	ir.Assertf(lp.CanDuplicate(), "%s cannot be duplicated", lp)
	f := lp.f

	all := append([]*ir.Block(nil), lp.blocks...)
	for _, x := range lp.exits {
		ir.Assertf(len(x.Preds) == 1, "exit b%d of %s is shared; normalize exits first", x.ID, lp)
		all = append(all, x)
	}

	d := newDuper(lp, true)
	d.copyAll(all)
	d.wire(all)

	for _, x := range lp.exits {
		if x.Kind == ir.BlockReturn {
			continue
		}
		ir.Assertf(x.Kind == ir.BlockPlain && len(x.Succs) == 1,
			"exit b%d has kind %s, want a plain forwarding block", x.ID, x.Kind)
		dx := d.fr.Blocks[x]
		m := f.InsertBefore(x.Succs[0].Block(), x.Succs[0].Index())
		m.Comment = "exitmerge"
		dx.AddEdgeTo(m)

		em := &ExitMerge{Exit: x, DupExit: dx, Merge: m, PhiFor: make(map[*ir.Value]*ir.Value)}
		for _, q := range x.Phis() {
			phi := m.NewValue(ir.OpPhi, q.Type)
			phi.AddArgs(q, d.fr.Values[q])
			em.PhiFor[q] = phi
		}
		d.redirectBelow(x, dx, m, em.PhiFor)
		if x.State != nil {
			st := m.NewValue(ir.OpFrameState, ir.TypeState)
			for _, a := range x.State.Args {
				if phi := em.PhiFor[a]; phi != nil {
					st.AddArg(phi)
				} else {
					st.AddArg(a)
				}
			}
			m.SetState(st)
		}
		d.fr.Merges = append(d.fr.Merges, em)
	}
	f.InvalidateCFG()
	return d.fr
}

// PatchProxyAt makes v observable at the given loop exit: it returns an
// existing proxy for v in exit, or creates one.
func PatchProxyAt(exit *ir.Block, v *ir.Value) *ir.Value {
	for _, q := range exit.Values {
		if q.Op == ir.OpProxy && len(q.Args) == 1 && q.Args[0] == v {
			return q
		}
	}
	ir.Assertf(len(exit.Preds) == 1, "proxy at exit b%d with %d predecessors", exit.ID, len(exit.Preds))
	return exit.NewValue(ir.OpProxy, v.Type, v)
}

// duper carries the state of one duplication.
type duper struct {
	lp    *Loop
	whole bool
	sub   map[*ir.Value]*ir.Value // original -> substitute, instead of copying
	fr    *Fragment
}

func newDuper(lp *Loop, whole bool) *duper {
	return &duper{
		lp:    lp,
		whole: whole,
		sub:   make(map[*ir.Value]*ir.Value),
		fr: &Fragment{
			Loop:   lp,
			Blocks: make(map[*ir.Block]*ir.Block),
			Values: make(map[*ir.Value]*ir.Value),
		},
	}
}

// mapped resolves a value reference for use inside the copy.
func (d *duper) mapped(v *ir.Value) *ir.Value {
	if v == nil {
		return nil
	}
	if c := d.fr.Values[v]; c != nil {
		return c
	}
	if s := d.sub[v]; s != nil {
		return s
	}
	return v
}

// copyAll allocates copies of the blocks and their values. Phi-like
// values get their arguments during edge wiring so that the argument
// order stays parallel to the copy's predecessor order; everything else
// is filled in here.
func (d *duper) copyAll(blocks []*ir.Block) {
	f := d.lp.f
	for _, b := range blocks {
		nb := f.NewBlock(b.Kind)
		nb.Comment = b.Comment
		nb.Cases = append([]int64(nil), b.Cases...)
		nb.Likely = b.Likely
		nb.Role = b.Role
		nb.Peelings = b.Peelings
		nb.Unswitches = b.Unswitches
		nb.UnrollFactor = b.UnrollFactor
		nb.OrigFrequency = b.OrigFrequency
		d.fr.Blocks[b] = nb
		for _, v := range b.Values {
			if _, substituted := d.sub[v]; substituted {
				continue
			}
			nv := nb.NewValue(v.Op, v.Type)
			nv.AuxInt = v.AuxInt
			nv.Aux = v.Aux
			d.fr.Values[v] = nv
		}
	}
	for _, b := range blocks {
		nb := d.fr.Blocks[b]
		for _, v := range b.Values {
			nv := d.fr.Values[v]
			if nv == nil || v.Op.IsPhiLike() {
				continue
			}
			for _, a := range v.Args {
				nv.AddArg(d.mapped(a))
			}
		}
		nb.SetCtrl(d.mapped(b.Ctrl))
		nb.SetState(d.mapped(b.State))
	}
}

// wire recreates the edges of the copied blocks in successor order.
// Edges whose target was copied connect copy to copy and feed the target
// copy's phi-likes; edges leaving the fragment reuse the original target
// and widen its phi-likes with the mapped values. For iteration copies
// the back edge counts as leaving the fragment (it targets the original
// header); for whole duplication the exit continuations are skipped and
// joined through merges by the caller.
func (d *duper) wire(blocks []*ir.Block) {
	for _, b := range blocks {
		nb := d.fr.Blocks[b]
		for _, e := range b.Succs {
			t := e.Block()
			if nt := d.fr.Blocks[t]; nt != nil && (d.whole || t != d.lp.header) {
				nb.AddEdgeTo(nt)
				for _, q := range t.Phis() {
					if nq := d.fr.Values[q]; nq != nil {
						nq.AddArg(d.mapped(q.Args[e.Index()]))
					}
				}
				continue
			}
			if d.whole {
				// exit continuation, joined through a merge afterwards
				continue
			}
			nb.AddEdgeTo(t)
			for _, q := range t.Phis() {
				q.AddArg(d.mapped(q.Args[e.Index()]))
			}
		}
	}
}

// redirectBelow rewrites every use of an exit proxy outside the merge
// triangle (exit, duplicated exit, merge) to the merge phi.
func (d *duper) redirectBelow(x, dx, m *ir.Block, phiFor map[*ir.Value]*ir.Value) {
	for _, b := range d.lp.f.Blocks {
		if b == x || b == dx || b == m || b.Dead() {
			continue
		}
		for _, v := range b.Values {
			for i, a := range v.Args {
				if phi := phiFor[a]; phi != nil {
					v.SetArg(i, phi)
				}
			}
		}
		if phi := phiFor[b.Ctrl]; phi != nil {
			b.SetCtrl(phi)
		}
		if phi := phiFor[b.State]; phi != nil {
			b.SetState(phi)
		}
	}
}
