package ir

import "fmt"

// InternalError is the fatal tier of the error taxonomy: an invariant the
// transformations depend on was violated, which indicates a bug in an
// earlier pass. It is raised by panic and aborts the whole compilation of
// the function; no partial result is usable.
type InternalError struct {
	Msg string
}

func (e InternalError) Error() string { return "loopforge internal error: " + e.Msg }

// Assertf panics with an InternalError if cond does not hold.
func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(InternalError{Msg: fmt.Sprintf(format, args...)})
	}
}

// Fatalf panics with an InternalError unconditionally.
func Fatalf(format string, args ...interface{}) {
	panic(InternalError{Msg: fmt.Sprintf(format, args...)})
}
