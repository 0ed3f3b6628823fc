package asyncsteps

import (
	"reflect"
	"strconv"
)

// maxArgs is the fixed arity of the argument channel between steps. It is
// a contract, not a convenience default: original_source's nextargs.hpp
// models it as a fixed-size array, and callers rely on it being exactly 4
// across languages and transports.
const maxArgs = 4

// NextArgs is the fixed 4-slot, type-erased channel carrying values from
// one step's completion into the next step's invocation. Arity beyond
// maxArgs is a programmer error, reported via the owning root's
// FatalHandler rather than silently truncated or ignored.
type NextArgs struct {
	vals  [maxArgs]any
	n     int
	moved bool
}

func newNextArgs(args []any) (NextArgs, bool) {
	if len(args) > maxArgs {
		return NextArgs{}, false
	}
	var na NextArgs
	na.n = len(args)
	copy(na.vals[:], args)
	return na, true
}

// Len reports how many argument slots are populated.
func (n NextArgs) Len() int { return n.n }

// Arg returns the i-th argument. It panics if i is out of [0, Len()).
func (n NextArgs) Arg(i int) any {
	if i < 0 || i >= n.n {
		panic("asyncsteps: NextArgs index out of range")
	}
	return n.vals[i]
}

// Args returns a fresh slice view of the populated arguments, safe for the
// caller to retain without aliasing n's backing array.
func (n NextArgs) Args() []any {
	out := make([]any, n.n)
	copy(out, n.vals[:n.n])
	return out
}

// Move returns the populated arguments and clears n, matching the
// once-only move semantics a step body normally wants: the step that reads
// its incoming arguments consumes them, rather than leaving a loop body or
// a later reader to see stale state. Loop bodies that need non-destructive
// reads should use Args instead.
func (n *NextArgs) Move() []any {
	out := n.Args()
	n.n = 0
	n.moved = true
	return out
}

// typeMismatch builds a fatal diagnostic string for an argument of the
// wrong Go type, naming both the expected and actual types via reflection
// the way the teacher's own diagnostics favor concrete type names over raw
// values. Nothing in the package calls it: NextArgs has no typed getters.
func typeMismatch(slot int, want reflect.Type, got any) string {
	gotType := "nil"
	if got != nil {
		gotType = reflect.TypeOf(got).String()
	}
	return "asyncsteps: argument " + strconv.Itoa(slot) + " type mismatch: want " + want.String() + ", got " + gotType
}
