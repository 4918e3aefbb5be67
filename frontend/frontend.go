// Package frontend builds the loop IR from Go source code. It wraps the
// SSA construction of golang.org/x/tools and converts a supported
// subset of its instructions (integer arithmetic, comparisons, calls,
// phis and structured control flow) into ir form, ready for the loop
// transformations.
package frontend

import (
	"go/token"
	"io"
	"log"

	"golang.org/x/tools/go/loader"
	gossa "golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Info holds the results of an SSA build for conversion.
// To populate this structure, use FromFiles or FromReader.
type Info struct {
	IgnoredPkgs []string // Record of ignored package during the build process.

	FSet  *token.FileSet  // FileSet for parsed source files.
	Prog  *gossa.Program  // SSA IR for whole program.
	LProg *loader.Program // Loaded program from go/loader.

	BldLog io.Writer // Build log.

	Logger *log.Logger // Build logger.
}

// FindFunc looks up a function by qualified name, e.g. "main.main".
func (info *Info) FindFunc(name string) *gossa.Function {
	for fn := range ssautil.AllFunctions(info.Prog) {
		if fn.String() == name {
			return fn
		}
	}
	return nil
}
