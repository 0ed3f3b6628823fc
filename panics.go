package asyncsteps

import (
	"fmt"
	"runtime/debug"
)

// callOutcome is what came out of invoking a step's executor, on-error
// handler, or cancel hook: it finished normally, it raised a structured
// *Error, or it raised a break/continue loopSignal.
type callOutcome struct {
	completed bool
	err       *Error
	loop      *loopSignal
}

// guardedCall invokes f, recovering any panic. *Error and *loopSignal
// panics — the only panic values AsyncSteps.Error/BreakLoop/ContinueLoop
// ever raise — are reported back structurally rather than escaping; any
// other panic value means the user's callback itself panicked, which is
// wrapped into an InternalError for the tree's own error unwind and also
// handed to fatal, so it is never silently swallowed, matching the
// teacher's stance that an unrecovered panic must always surface
// somewhere (doc.go's "Panic Propagation" section).
func guardedCall(fatal FatalHandler, f func()) (outcome callOutcome) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		switch e := v.(type) {
		case *Error:
			outcome.err = e
		case *loopSignal:
			outcome.loop = e
		default:
			stack := debug.Stack()
			outcome.err = &Error{Code: InternalError, Info: fmt.Sprint(e)}
			fatal(fmt.Sprintf("asyncsteps: recovered panic in step callback: %v\n%s", e, stack))
		}
	}()
	f()
	outcome.completed = true
	return
}
