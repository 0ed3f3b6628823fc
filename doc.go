// Package asyncsteps is a library for composing asynchronous work as a tree
// of steps that runs to completion on a single goroutine.
//
// Since Go has already done a great job in bringing green/virtual threads
// into life, this library only implements a single-threaded [Reactor] type,
// which drives one or more [AsyncSteps] trees to completion without ever
// spawning a goroutine of its own. One can create as many reactors as one
// likes, but a given tree only ever runs on the reactor it was rooted on.
//
// While Go excels at forking, async step trees, on the other hand, excel at
// expressing "do this, then that, and if either fails, unwind this way" as
// plain, sequential-looking code.
//
// # Use Case #1: Fan-In Scheduling Callbacks From Goroutines
//
// Wanted to run pieces of code, submitted from many goroutines, in a single
// threaded way? A [Reactor]'s Immediate and Deferred methods are safe to
// call from any goroutine; the callbacks themselves only ever run from
// whichever goroutine is inside Iterate or Run. This comes in handy when one
// wants to serialize access to state that isn't safe for concurrent use, or
// to batch timer-driven work without a goroutine per timer.
//
// Be aware that there is no back pressure. Scheduling a callback isn't
// designed to block. If submission outruns Iterate, a Reactor can easily
// accumulate a large immediate queue. A [Limiter] or [Throttle] at the hot
// spot bounds this.
//
// # Use Case #2: Structured Error Unwinding
//
// An [AsyncSteps] tree is built with Add, one step at a time; a step's
// Executor can itself call Add to append grandchildren, nesting arbitrarily.
// If a step raises an error (as.Error) or one of its descendants does and
// nothing recovers it, the tree unwinds step by step toward the root,
// giving each ancestor's on-error handler, if any, exactly one chance to
// recover by calling as.Success, or to let the error continue outward.
// Cancellation hooks registered with SetCancel fire for steps still active
// on the path when the whole tree is canceled, or when a step's own
// SetTimeout deadline passes.
//
// # Use Case #3: Easy State Machines Across Goroutine Boundaries
//
// A step can suspend itself with WaitExternal and be resumed later from any
// goroutine, via the handle its Executor captured when it suspended. This is
// how a step waits on a callback-based API, a channel read handed off to
// another goroutine, or a timer armed outside the tree. [Promise] and
// [Await] package this pattern for the common case of "resume a blocked
// goroutine once the whole tree finishes": Promise attaches a terminal
// listener to a tree and returns a channel; Await blocks a goroutine that
// does not itself drive any Reactor until that channel delivers a [Future].
//
// # Loops and Parallel Joins
//
// Loop, Repeat, ForEachSlice, and ForEachMap add a loop frame: a step that
// re-invokes its body until the body calls BreakLoop, or the iteration
// source is exhausted. ContinueLoop abandons the rest of the current
// iteration and starts the next one. Both target the nearest enclosing loop
// frame by default, or a specific one named by a matching label, letting a
// nested loop's body break or continue an outer loop directly.
//
// Parallel starts a ParallelAdapter: each Add call on it becomes a branch
// that runs concurrently with its siblings, interleaved step by step through
// the same Reactor rather than run to exhaustion one at a time. The join
// completes once every branch succeeds; the first branch to fail cancels
// the rest and propagates its error, the same as an ordinary step failing.
//
// # Synchronization Primitives
//
// [Mutex], [Throttle], and [Limiter] all implement [Sync] and plug into
// SyncedStep, which wraps a step's body with Lock before and Unlock after,
// including on error. Mutex is a reentrant FIFO lock keyed by a tree's
// RootID. Throttle admits a bounded number of acquisitions per tumbling time
// window, releasing every permit at once when the window rolls over, rather
// than expiring each acquisition individually. Limiter bounds concurrent
// holders with a bounded, optionally time-limited FIFO wait queue, matching
// a connection pool or a rate-limited downstream call.
//
// # Spawning Steps vs. Passing Data Over Go Channels
//
// It's not recommended to block on a channel read inside a step's Executor,
// since a Reactor has only the one goroutine to give: if one step blocks, no
// other work scheduled on that Reactor can run. Arrange instead for the
// producing side to resume the step (via WaitExternal) once data is ready.
//
// One of the advantages of passing data over channels is to avoid
// allocation. Step trees always escape to heap: an Executor closure and any
// variable it captures does too. The engine pools the per-iteration step
// objects Loop/Repeat/ForEach churn through (see [StepPool]); everything
// else is ordinary garbage the runtime reclaims once a tree finishes.
//
// # The Essentiality of Structured Concurrency
//
// A step tree only stops running once every step on it has completed,
// errored out unrecovered, or been explicitly canceled via Cancel. Calling
// Cancel on a root fires every active step's cancel hook, innermost first,
// and stops the tree: no further step of it runs. A canceled tree is not
// settled, so a Promise attached to it delivers no Future. This makes "when did this tree stop" a single,
// answerable question rather than a matter of tracking goroutines by hand.
package asyncsteps
