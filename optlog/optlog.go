// Package optlog reports optimization decisions. Transformations emit
// one event per applied (or declined) rewrite; the events drive both the
// debug log and the counters tests assert on.
package optlog

import (
	"go.uber.org/zap"

	"github.com/nickng/loopforge/ir"
)

// Logger encapsulates a Logger and module which it belongs to.
// Use this through SetLogger() of the transformations.
type Logger struct {
	*zap.SugaredLogger
	module string
}

type LogSetter interface {
	SetLogger(*Logger)
}

// New wraps an existing zap logger under a (stylised) module name.
func New(l *zap.SugaredLogger, module string) *Logger {
	return &Logger{SugaredLogger: l, module: module}
}

// Nop returns a logger that discards everything, for callers that do not
// care about the log but still want the event counters.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Module returns (stylised) module name.
func (l *Logger) Module() string {
	return l.module
}

// Event names every transformation the log can report.
type Event string

const (
	LoopPeeling          Event = "LoopPeeling"
	LoopFullUnroll       Event = "LoopFullUnroll"
	LoopUnswitching      Event = "LoopUnswitching"
	LoopPartialUnroll    Event = "LoopPartialUnroll"
	PreMainPostInsertion Event = "PreMainPostInsertion"
)

// Entry is one reported optimization.
type Entry struct {
	Event  Event
	Func   string
	Header int // block ID of the loop header at report time
	Props  []Prop
}

// Prop is a named property of a report, e.g. {"peelings", 2}.
type Prop struct {
	Name  string
	Value int64
}

// Log accumulates optimization entries for one compilation.
type Log struct {
	logger  *Logger
	Entries []Entry
}

// NewLog returns an optimization log writing through l.
func NewLog(l *Logger) *Log {
	if l == nil {
		l = Nop()
	}
	return &Log{logger: l}
}

// Report records that event was applied at the loop headed by header.
func (g *Log) Report(event Event, header *ir.Block, props ...Prop) {
	e := Entry{Event: event, Header: header.ID, Props: props}
	if header.Func != nil {
		e.Func = header.Func.Name
	}
	g.Entries = append(g.Entries, e)
	args := []interface{}{"func", e.Func, "loop", header.ID}
	for _, p := range props {
		args = append(args, p.Name, p.Value)
	}
	g.logger.Debugw(string(event), args...)
}

// Count returns how many entries of the given event were reported.
func (g *Log) Count(event Event) int {
	n := 0
	for _, e := range g.Entries {
		if e.Event == event {
			n++
		}
	}
	return n
}
