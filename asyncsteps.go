package asyncsteps

import (
	"strconv"
	"sync/atomic"
	"time"
)

var rootIDCounter atomic.Uint64

// rootState is the per-root bookkeeping shared by every step in one tree:
// the Reactor driving it, its State bag, the active-path stack cancel
// walks, and whether it has already finished or been canceled. Grounded on
// the teacher's root/child coroutine distinction (doc.go's "Root/Child
// Coroutines" section): a root here is what NewRootAsyncSteps creates, and
// every step Add()ed under it shares this rootState.
type rootState struct {
	id      uint64
	reactor *Reactor
	state   *State
	root    *step

	cancelled bool
	finished  bool

	path []*step

	onDone func(err *Error, args NextArgs)
}

func (r *rootState) pushPath(s *step) {
	if s.onPath {
		return
	}
	s.onPath = true
	r.path = append(r.path, s)
}

func (r *rootState) popPath(s *step) {
	if !s.onPath {
		return
	}
	s.onPath = false
	for i := len(r.path) - 1; i >= 0; i-- {
		if r.path[i] == s {
			r.path = append(r.path[:i], r.path[i+1:]...)
			return
		}
	}
}

// AsyncSteps is the handle passed to a step's Executor/ErrorHandler: it
// represents "the step currently executing" and every operation on it
// (Add, Success, Error, SetTimeout, SetCancel, WaitExternal, State, ...)
// applies to that step. Add() appends new children to it, so calling Add
// from inside an executor nests steps under the step being executed,
// exactly as described for IAsyncSteps in original_source.
type AsyncSteps struct {
	cur *step
}

// NewRootAsyncSteps creates a fresh, empty step tree driven by reactor.
// Add steps to the returned handle, then call Execute to begin running
// them.
func NewRootAsyncSteps(reactor *Reactor) *AsyncSteps {
	root := &rootState{reactor: reactor, state: newState(), id: rootIDCounter.Add(1)}
	root.root = newStep(nil, root)
	root.root.state = statePending
	return &AsyncSteps{cur: root.root}
}

// NewInstance creates a brand new, independent root AsyncSteps for
// standalone execution, driven by the same Reactor as as — a fresh tree
// with its own State, its own RootID, and no relation to as.cur's own
// ancestry, matching original_source's IAsyncSteps::newInstance(). Useful
// from inside a step body that needs to kick off unrelated work on the
// same event loop rather than nest it as a child of the current step.
func (as *AsyncSteps) NewInstance() *AsyncSteps {
	return NewRootAsyncSteps(as.cur.root.reactor)
}

// State returns the root's shared key/value bag.
func (as *AsyncSteps) State() *State { return as.cur.root.state }

// RootID returns a stable identity for the step tree as.cur belongs to,
// usable by Sync primitives (e.g. Mutex) to recognize reentrant calls from
// the same root.
func (as *AsyncSteps) RootID() uint64 { return as.cur.root.id }

// Add appends a new step to the current step's child queue: exec runs
// once the new step's turn comes. The arguments the previous sibling
// passed to Success are recorded on the new step, but AsyncSteps has no
// accessor that exposes them to exec, and a first child receives nothing
// from its parent. onError, if given, is tried if exec (or any descendant
// it adds) fails to recover from an error.
func (as *AsyncSteps) Add(exec Executor, onError ...ErrorHandler) *AsyncSteps {
	s := newStep(as.cur, as.cur.root)
	s.exec = exec
	if len(onError) > 0 {
		s.onError = onError[0]
	}
	as.cur.children = append(as.cur.children, s)
	return as
}

// Success completes the current step with args as its result. A step that
// also has queued children completes only after they finish, and then its
// own args replace the last child's result. The result is recorded on the
// next sibling (or becomes the parent's result, if this was the last
// child); the tree's final result is what Promise delivers.
// Calling Success more than once, or after the step has already completed
// or errored, is a fatal usage error.
func (as *AsyncSteps) Success(args ...any) {
	s := as.cur
	na, ok := newNextArgs(args)
	if !ok {
		s.root.fatal("asyncsteps: Success called with more than " + strconv.Itoa(maxArgs) + " arguments")
		return
	}
	switch s.state {
	case stateRunning:
		if s.resultSet {
			s.root.fatal("asyncsteps: Success called more than once on the same step")
			return
		}
		s.resultSet = true
		s.nextArgs = na
	case stateAwaitingExternal:
		root := s.root
		root.reactor.Immediate(func() { root.resumeExternalSuccess(s, na) })
	default:
		s.root.fatal("asyncsteps: Success called on a step that is not running or awaiting completion")
	}
}

// Error aborts the current step with code, optionally attaching info for
// the on-error handler (or the root's final diagnostics) to read from
// State().ErrorInfo. Like a thrown exception, it never returns: the rest
// of the calling executor/on-error body does not run.
func (as *AsyncSteps) Error(code ErrorCode, info ...string) {
	s := as.cur
	msg := ""
	if len(info) > 0 {
		msg = info[0]
	}
	switch s.state {
	case stateRunning:
		panic(&Error{Code: code, Info: msg})
	case stateAwaitingExternal:
		root := s.root
		root.reactor.Immediate(func() { root.resumeExternalError(s, &Error{Code: code, Info: msg}) })
	default:
		s.root.fatal("asyncsteps: Error called on a step that is not running or awaiting completion")
	}
}

// WaitExternal suspends the current step until some external callback
// (e.g. a completed I/O operation on another goroutine) later calls
// Success or Error on this same AsyncSteps handle. The handle remains
// valid to call from any goroutine while the step is suspended; the
// resumption itself is marshaled back onto the Reactor.
func (as *AsyncSteps) WaitExternal() {
	as.cur.waitReq = true
}

// SetTimeout arms a timer that raises Timeout on the current step if it is
// still running or awaiting when d elapses. A step may have at most one
// armed timeout; calling SetTimeout again replaces it.
func (as *AsyncSteps) SetTimeout(d time.Duration) {
	s := as.cur
	if s.timeout.IsValid() {
		s.root.reactor.Cancel(s.timeout)
	}
	s.timeout = s.root.reactor.Deferred(d, func() {
		s.root.fireTimeout(s)
	})
}

// SetCancel arms hook to run at most once if the current step is aborted
// from outside its own completion path: by root cancellation while it is
// on the active path, or by its own timeout firing. Calling SetCancel
// again replaces any previously armed hook for this step.
func (as *AsyncSteps) SetCancel(hook CancelHook) {
	as.cur.cancelHook = hook
}

// reraise re-raises code as this step's own error, used by primitives
// (e.g. SyncedStep) that intercept an on-error call purely to run cleanup
// and must then let the original failure continue propagating unchanged.
func (as *AsyncSteps) reraise(code ErrorCode) {
	as.Error(code, as.cur.root.state.ErrorInfo)
}

// Execute begins running the tree from its first queued step. It is
// valid to call only once, on the handle returned by NewRootAsyncSteps.
func (as *AsyncSteps) Execute() {
	r := as.cur.root
	rs := r.root
	if len(rs.children) == 0 {
		r.finishRoot(nil, NextArgs{})
		return
	}
	first := rs.children[0]
	r.reactor.Immediate(func() { r.dispatch(first) })
}

// Cancel aborts the whole tree: every step currently on the active path
// (from the deepest pending step back to the root) has its cancel hook
// invoked, in leaf-to-root order, exactly once. Canceling an already
// finished or already canceled tree is a no-op. Like WaitExternal's
// resumption, Cancel is safe to call from any goroutine: the actual walk
// is marshaled onto the owning Reactor rather than run inline, so it never
// races the goroutine driving that Reactor's Iterate.
func (as *AsyncSteps) Cancel() {
	r := as.cur.root
	r.reactor.Immediate(func() { r.cancel() })
}

func (r *rootState) cancel() {
	if r.cancelled || r.finished {
		return
	}
	r.cancelled = true
	path := r.path
	r.path = nil
	for i := len(path) - 1; i >= 0; i-- {
		s := path[i]
		s.onPath = false
		if s.timeout.IsValid() {
			r.reactor.Cancel(s.timeout)
			s.timeout = Handle{}
		}
		if s.cancelHook != nil {
			hook := s.cancelHook
			s.cancelHook = nil
			r.invokeCancelHook(s, hook)
		}
	}
}

func (r *rootState) invokeCancelHook(s *step, hook CancelHook) {
	as := &AsyncSteps{cur: s}
	outcome := guardedCall(r.fatal, func() { hook(as) })
	if !outcome.completed {
		r.fatal("asyncsteps: panic escaped a cancel hook")
	}
}

func (r *rootState) fireTimeout(s *step) {
	if s.state != stateRunning && s.state != stateAwaitingChild && s.state != stateAwaitingExternal {
		return
	}
	s.timeout = Handle{}
	if s.cancelHook != nil {
		hook := s.cancelHook
		s.cancelHook = nil
		r.invokeCancelHook(s, hook)
	}
	if s.state == stateAwaitingChild {
		for _, c := range s.children {
			r.abortSubtree(c)
		}
		s.children = nil
	}
	r.handleStepError(s, Timeout, "")
}

// abortSubtree recursively abandons s and everything under it: pending
// callbacks for steps in the subtree become no-ops if they do eventually
// run (the reactor has no O(1) way to revoke an Immediate already
// queued), armed timeouts are canceled, and any armed cancel hook fires,
// leaf-first, the same cleanup a root Cancel performs for the whole tree.
func (r *rootState) abortSubtree(s *step) {
	for _, c := range s.children {
		r.abortSubtree(c)
	}
	s.children = nil
	s.abandoned = true
	r.popPath(s)
	if s.timeout.IsValid() {
		r.reactor.Cancel(s.timeout)
		s.timeout = Handle{}
	}
	if s.cancelHook != nil {
		hook := s.cancelHook
		s.cancelHook = nil
		r.invokeCancelHook(s, hook)
	}
}

func (r *rootState) fatal(msg string) { r.reactor.fatal(msg) }

// dispatch runs one step: a plain step's executor, or a loop frame's next
// iteration. Every call to dispatch happens via Reactor.Immediate, so
// sibling sub-flows under Parallel interleave fairly instead of one
// running to exhaustion before another gets a turn.
func (r *rootState) dispatch(s *step) {
	if r.cancelled || s.abandoned {
		return
	}
	if s.loop != nil {
		r.dispatchLoopFrame(s)
		return
	}
	if s.parallel != nil {
		r.dispatchParallelFrame(s)
		return
	}
	r.pushPath(s)
	s.state = stateRunning
	as := &AsyncSteps{cur: s}
	outcome := guardedCall(r.fatal, func() { s.exec(as) })
	r.settleInvocation(s, as, outcome, false)
}

// settleInvocation interprets what happened during one call into a step's
// exec or onError. isErrorHandler distinguishes the two, since "returned
// normally without calling Success" means implicit success for an
// executor, but means "not recovered" for an on-error handler.
func (r *rootState) settleInvocation(s *step, as *AsyncSteps, outcome callOutcome, isErrorHandler bool) {
	if outcome.loop != nil {
		r.propagateLoopSignal(s, outcome.loop)
		return
	}
	if outcome.err != nil {
		r.state.ErrorInfo = outcome.err.Info
		r.handleStepError(s, outcome.err.Code, outcome.err.Info)
		return
	}

	if len(s.children) > 0 {
		s.state = stateAwaitingChild
		r.scheduleStep(s.children[0])
		return
	}
	if as.cur.waitReq {
		s.state = stateAwaitingExternal
		return
	}
	if as.cur.resultSet {
		r.completeStep(s, as.cur.nextArgs)
		return
	}
	if isErrorHandler {
		// on-error returned without recovering and without children:
		// the original error keeps propagating.
		r.bubbleErrorToParent(s, r.lastCodeFor(s))
		return
	}
	// plain executor returned without calling anything: implicit success.
	r.completeStep(s, NextArgs{})
}

// lastCodeFor recovers the code an on-error handler was invoked with, so a
// handler that returns without recovering re-raises the same code rather
// than a stale or empty one.
func (r *rootState) lastCodeFor(s *step) ErrorCode { return s.lastErrorCode }

func (r *rootState) scheduleStep(s *step) {
	r.reactor.Immediate(func() { r.dispatch(s) })
}

// completeStep finalizes s with args as its result, then advances: the
// next queued sibling runs next (fed args), or if s was the last child,
// its parent's own completion proceeds (or, for a loop frame's iteration
// child, the loop advances to its next iteration instead).
func (r *rootState) completeStep(s *step, args NextArgs) {
	r.popPath(s)
	s.state = stateCompleted
	s.cancelHook = nil
	if s.timeout.IsValid() {
		r.reactor.Cancel(s.timeout)
		s.timeout = Handle{}
	}

	parent := s.parent
	if parent == nil {
		r.finishRoot(nil, args)
		return
	}

	if s.isParallelBranch {
		r.completeParallelBranch(parent, args)
		return
	}

	parent.children = popHead(parent.children, s)
	if len(parent.children) > 0 {
		next := parent.children[0]
		next.args = args
		r.scheduleStep(next)
		return
	}

	if parent.loop != nil {
		releasePooledStep(s)
		r.advanceLoopIteration(parent)
		return
	}

	finalArgs := args
	if parent.resultSet {
		finalArgs = parent.nextArgs
	}
	r.completeStep(parent, finalArgs)
}

func popHead(children []*step, s *step) []*step {
	if len(children) > 0 && children[0] == s {
		return children[1:]
	}
	for i, c := range children {
		if c == s {
			return append(children[:i:i], children[i+1:]...)
		}
	}
	return children
}

func (r *rootState) finishRoot(unhandled *ErrorCode, args NextArgs) {
	r.finished = true
	if unhandled != nil && r.state.UnhandledError != nil {
		r.state.UnhandledError(*unhandled)
	}
	if r.onDone != nil {
		var e *Error
		if unhandled != nil {
			e = &Error{Code: *unhandled, Info: r.state.ErrorInfo}
		}
		r.onDone(e, args)
	}
}

// handleStepError transitions s into the Errored state and, the first
// time this happens for s, tries its on-error handler once. Further
// errors arising while that handler's own cleanup steps run skip straight
// to the parent, since s already had its one chance.
func (r *rootState) handleStepError(s *step, code ErrorCode, info string) {
	r.popPath(s)
	s.state = stateErrored
	s.lastErrorCode = code
	if s.timeout.IsValid() {
		r.reactor.Cancel(s.timeout)
		s.timeout = Handle{}
	}
	s.cancelHook = nil

	if s.onError != nil && !s.onErrorTried {
		s.onErrorTried = true
		s.children = nil
		// the handler runs with s back in the running state so it can
		// recover via as.Success or re-raise via as.Error; flags left over
		// from the failed executor call must not count as the handler's own.
		s.state = stateRunning
		s.resultSet = false
		s.waitReq = false
		r.pushPath(s)
		as := &AsyncSteps{cur: s}
		outcome := guardedCall(r.fatal, func() { s.onError(as, code) })
		r.settleInvocation(s, as, outcome, true)
		return
	}
	r.bubbleErrorToParent(s, code)
}

func (r *rootState) bubbleErrorToParent(s *step, code ErrorCode) {
	parent := s.parent
	if parent == nil {
		uc := code
		r.finishRoot(&uc, NextArgs{})
		return
	}
	if s.isParallelBranch {
		ps := parent.parallel
		if !ps.errored {
			ps.errored = true
			for _, b := range ps.branches {
				if b != s && b.state != stateCompleted && b.state != stateErrored {
					r.abortSubtree(b)
				}
			}
		}
	}
	parent.children = nil
	r.handleStepError(parent, code, r.state.ErrorInfo)
}

// propagateLoopSignal walks from origin toward the root looking for the
// nearest loop frame whose label matches sig.label (or any loop frame, if
// unlabeled), invoking cancel hooks on every plain step it passes through
// along the way, the same cleanup a cancellation would trigger. If no
// enclosing frame matches, nothing is walked: the signal is raised at
// origin as an ordinary LoopBreak/LoopCont error, unwinding through
// on-error handlers like any other code.
func (r *rootState) propagateLoopSignal(origin *step, sig *loopSignal) {
	match := origin
	for match != nil && (match.loop == nil || (sig.label != "" && match.loop.label != sig.label)) {
		match = match.parent
	}
	if match == nil {
		r.state.ErrorLoopLabel = sig.label
		r.handleStepError(origin, sig.code(), "")
		return
	}
	cur := origin
	for cur != nil {
		if cur.loop != nil && (sig.label == "" || cur.loop.label == sig.label) {
			if sig.isBreak {
				cur.children = nil
				r.completeStep(cur, NextArgs{})
			} else {
				cur.children = nil
				r.advanceLoopIteration(cur)
			}
			return
		}
		next := cur.parent
		r.popPath(cur)
		if cur.timeout.IsValid() {
			r.reactor.Cancel(cur.timeout)
			cur.timeout = Handle{}
		}
		if cur.cancelHook != nil {
			hook := cur.cancelHook
			cur.cancelHook = nil
			r.invokeCancelHook(cur, hook)
		}
		cur = next
	}
}

func (r *rootState) dispatchLoopFrame(s *step) {
	r.pushPath(s)
	body, ok := s.loop.next()
	if !ok {
		s.loop = nil // finished: behave like a plain step completing
		r.completeStep(s, NextArgs{})
		return
	}
	child := newPooledStep(s, r)
	child.exec = body
	s.children = []*step{child}
	s.state = stateAwaitingChild
	r.scheduleStep(child)
}

func (r *rootState) advanceLoopIteration(s *step) {
	s.state = statePending
	r.scheduleStep(s)
}

func (r *rootState) resumeExternalSuccess(s *step, na NextArgs) {
	if s.abandoned || r.cancelled {
		return
	}
	if s.state != stateAwaitingExternal {
		r.fatal("asyncsteps: external Success delivered to a step that is no longer awaiting")
		return
	}
	r.completeStep(s, na)
}

func (r *rootState) resumeExternalError(s *step, e *Error) {
	if s.abandoned || r.cancelled {
		return
	}
	if s.state != stateAwaitingExternal {
		r.fatal("asyncsteps: external Error delivered to a step that is no longer awaiting")
		return
	}
	r.state.ErrorInfo = e.Info
	r.handleStepError(s, e.Code, e.Info)
}
