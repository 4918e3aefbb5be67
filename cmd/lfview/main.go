// Command lfview runs loop transformations over a Go function and
// prints the IR before and after.
//
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/nickng/loopforge/canon"
	"github.com/nickng/loopforge/frontend"
	"github.com/nickng/loopforge/ir"
	"github.com/nickng/loopforge/loop"
	"github.com/nickng/loopforge/optlog"
	"github.com/nickng/loopforge/transform"
)

const (
	Usage = `lfview is a tool for viewing loop transformations on Go source code.

Usage:

  lfview [options] file.go [files.go...]

Options:

`
)

var (
	buildlogPath string
	defaultArgs  bool
	outPath      string
	viewFunc     string
	passList     string
	runArgs      string
	runSteps     int

	out io.Writer
)

const mainMain = "main.main"

func init() {
	flag.BoolVar(&defaultArgs, "default", true, "Use default SSA build arguments")
	flag.StringVar(&buildlogPath, "log", "", "Specify build log file (use '-' for stdout)")
	flag.StringVar(&outPath, "out", "", "Specify output file (default: stdout)")
	flag.StringVar(&viewFunc, "func", mainMain, `Specify the function to view (format: (import/path).FuncName`)
	flag.StringVar(&passList, "passes", "", "Comma-separated passes to apply (peel,full-unroll,unswitch,prepost,partial,canon)")
	flag.StringVar(&runArgs, "run", "", "Execute the function with comma-separated integer arguments")
	flag.IntVar(&runSteps, "steps", 100000, "Execution step budget for -run")
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, Usage)
		flag.PrintDefaults()
		os.Exit(0)
	}

	conf := frontend.FromFiles(flag.Args()...)
	if defaultArgs {
		conf = conf.Default()
	}

	switch buildlogPath {
	case "":
	case "-":
		conf = conf.WithBuildLog(os.Stdout, log.LstdFlags)
	default:
		f, err := os.Create(buildlogPath)
		if err != nil {
			log.Fatalf("Cannot create log %s: %v", buildlogPath, err)
		}
		defer f.Close()
		conf = conf.WithBuildLog(f, log.LstdFlags)
	}

	switch outPath {
	case "":
		out = os.Stdout
	default:
		f, err := os.Create(outPath)
		if err != nil {
			log.Fatalf("Cannot create output file %s: %v", outPath, err)
		}
		defer f.Close()
		out = f
	}

	info, err := conf.Build()
	if err != nil {
		log.Fatal("Cannot build SSA from files:", err)
	}
	ssafn := info.FindFunc(viewFunc)
	if ssafn == nil {
		log.Fatalf("Cannot find function %s", viewFunc)
	}
	f, err := frontend.Convert(ssafn)
	if err != nil {
		log.Fatal("Cannot convert function:", err)
	}

	fmt.Fprintf(out, "Before %s:\n", viewFunc)
	ir.Fprint(out, f)

	if passList != "" {
		optLog := optlog.NewLog(optlog.NewDefault("lfview"))
		for _, pass := range strings.Split(passList, ",") {
			if err := applyPass(f, strings.TrimSpace(pass), optLog); err != nil {
				log.Fatalf("Pass %s failed: %v", pass, err)
			}
		}
		canon.New(f).Apply()
		f.RemoveUnreachable()
		fmt.Fprintf(out, "\nAfter %s:\n", passList)
		ir.Fprint(out, f)
	}

	if runArgs != "" {
		result, err := execute(f, runArgs)
		if err != nil {
			log.Fatal("Cannot execute function:", err)
		}
		if result.HasRet {
			fmt.Fprintf(out, "\nResult: %d\n", result.Return)
		}
		for callee, n := range result.Calls {
			fmt.Fprintf(out, "Calls to %s: %d\n", callee, n)
		}
	}
}

// applyPass runs one named transformation over the most deeply nested
// loop it applies to.
func applyPass(f *ir.Func, pass string, optLog *optlog.Log) error {
	if pass == "canon" {
		canon.New(f).Apply()
		return nil
	}
	lp := pickLoop(f, pass)
	if lp == nil {
		return fmt.Errorf("no loop qualifies for %s in %s", pass, f.Name)
	}
	switch pass {
	case "peel":
		transform.Peel(lp, optLog)
	case "full-unroll":
		return transform.FullUnroll(lp, transform.DefaultConfig(), optLog)
	case "unswitch":
		groups := transform.FindUnswitchable(lp)
		if len(groups) == 0 {
			return fmt.Errorf("no invariant branch to unswitch in %s", f.Name)
		}
		transform.Unswitch(lp, groups[0], false, optLog)
	case "prepost":
		transform.InsertPrePostLoops(lp, optLog)
	case "partial":
		if lp.LoopBegin().Role != ir.RoleMain {
			transform.InsertPrePostLoops(lp, optLog)
			lp = pickLoop(f, pass)
			if lp == nil {
				return fmt.Errorf("no main loop to unroll in %s", f.Name)
			}
		}
		if !transform.IsUnrollable(lp) {
			return fmt.Errorf("loop at b%d is not unrollable", lp.LoopBegin().ID)
		}
		transform.PartialUnroll(lp, optLog)
	default:
		return fmt.Errorf("unknown pass %q", pass)
	}
	return nil
}

// pickLoop selects the loop a pass operates on: the main loop for
// partial unrolling, otherwise the first innermost counted loop, with
// any innermost loop as fallback.
func pickLoop(f *ir.Func, pass string) *loop.Loop {
	nest := loop.Detect(f)
	if nest.Irreducible {
		return nil
	}
	var fallback *loop.Loop
	for _, lp := range nest.Loops {
		if len(lp.Children) > 0 {
			continue
		}
		if pass == "partial" {
			if lp.LoopBegin().Role == ir.RoleMain {
				return lp
			}
			if lp.LoopBegin().Role == ir.RoleNone && lp.IsCounted() {
				fallback = lp
			}
			continue
		}
		if lp.IsCounted() {
			return lp
		}
		if fallback == nil {
			fallback = lp
		}
	}
	return fallback
}

func execute(f *ir.Func, args string) (*ir.RunResult, error) {
	params := make(map[string]int64)
	fields := strings.Split(args, ",")
	if len(fields) != len(f.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", f.Name, len(f.Params), len(fields))
	}
	for i, field := range fields {
		x, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			return nil, err
		}
		params[f.Params[i].Aux] = x
	}
	return ir.Run(f, params, runSteps, nil)
}
