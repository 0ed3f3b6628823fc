package asyncsteps

// Executor is the body of a step: the function supplied to Add, run with a
// fresh *AsyncSteps scoped to that step once its turn comes.
type Executor func(as *AsyncSteps)

// ErrorHandler is a step's on-error callback. code is the error the step
// (or one of its descendants) raised. The handler may call as.Success to
// recover, call as.Error to re-raise (the same or a different code), or
// simply return, which re-raises the original code at the parent.
type ErrorHandler func(as *AsyncSteps, code ErrorCode)

// CancelHook is armed via AsyncSteps.SetCancel. It runs at most once, only
// when its step is aborted from outside its own normal completion path:
// by root cancellation while the step is on the active path, or by the
// step's own armed timeout firing.
type CancelHook func(as *AsyncSteps)

type stepState int32

const (
	statePending stepState = iota
	stateRunning
	stateAwaitingChild
	stateAwaitingExternal
	stateCompleted
	stateErrored
)

// step is one node of an AsyncSteps tree: the StepData record described by
// the data model, generalized from the teacher's Coroutine struct
// (coroutine.go) which played the same "one schedulable unit with a
// parent, pending continuations, and a single armed cleanup" role for a
// flatter Task-transition model.
type step struct {
	exec    Executor
	onError ErrorHandler

	parent   *step
	children []*step
	root     *rootState

	state stepState

	args NextArgs // incoming arguments, set by the previous sibling/parent

	// set during the current invocation of exec or onError, consumed by
	// the dispatcher once the call returns.
	resultSet bool
	nextArgs  NextArgs
	waitReq   bool

	cancelHook CancelHook
	timeout    Handle

	onErrorTried bool
	recovering   bool // not set by the dispatcher; always false
	onPath       bool
	abandoned    bool // subtree was aborted out from under it (timeout on an ancestor)

	lastErrorCode ErrorCode

	loop     *loopState     // non-nil iff this step is a loop frame
	parallel *parallelState // non-nil iff this step is a parallel join frame

	isParallelBranch bool // true iff this step is one of its parent's parallel branches
}

func newStep(parent *step, root *rootState) *step {
	return &step{parent: parent, root: root}
}

// newPooledStep is used for the highest-churn allocation in the engine —
// one fresh wrapper step per loop iteration (dispatchLoopFrame) — routed
// through the Reactor's StepPool instead of a bare allocation, exercising
// the pluggable allocator spec.md describes as an external collaborator.
func newPooledStep(parent *step, root *rootState) *step {
	s := root.reactor.pool.Get().(*step)
	*s = step{parent: parent, root: root}
	return s
}

// releasePooledStep returns s to its Reactor's StepPool. Callers must only
// do this once s has fully completed (completeStep has already run for it)
// and nothing else retains a reference to it — true for a loop-iteration
// wrapper the instant its own completeStep call finishes.
func releasePooledStep(s *step) {
	s.root.reactor.pool.Put(s)
}
