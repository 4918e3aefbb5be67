package ir

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Fprint writes a human readable dump of f to w, one block per paragraph,
// in roughly the style of an SSA listing.
func Fprint(w io.Writer, f *Func) {
	head := color.New(color.FgBlue, color.Bold)
	loops := color.New(color.FgGreen)
	fmt.Fprintf(w, "func %s (%d blocks, %d nodes)\n", f.Name, len(f.Blocks), f.NumNodes())
	for _, b := range f.Blocks {
		head.Fprintf(w, "  %s", b.LongString())
		if b.Role != RoleNone {
			loops.Fprintf(w, " [%s]", b.Role)
		}
		if b.Peelings > 0 {
			loops.Fprintf(w, " peelings=%d", b.Peelings)
		}
		if b.Unswitches > 0 {
			loops.Fprintf(w, " unswitches=%d", b.Unswitches)
		}
		if b.Kind == BlockIf && b.Likely != 0 {
			fmt.Fprintf(w, " likely=%.3f", b.Likely)
		}
		fmt.Fprintln(w)
		for _, v := range b.Values {
			fmt.Fprintf(w, "    %s\n", v.LongString())
		}
		if b.Ctrl != nil {
			fmt.Fprintf(w, "    %s %s\n", b.Kind, b.Ctrl)
		}
		if b.State != nil {
			fmt.Fprintf(w, "    state %s\n", b.State)
		}
	}
}
