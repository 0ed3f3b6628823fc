package asyncsteps

// parallelState turns a step into a fan-out/fan-in join: instead of one
// child queue run in sequence, it runs every branch concurrently
// (cooperatively interleaved through the shared Reactor, one branch's next
// step at a time rather than one branch run to exhaustion before the
// next's first step even starts) and completes once every branch has
// completed, or cancels the rest the moment any branch fails. Modeled on
// the teacher's Join/Select combinators (coroutine.go: spawn N children,
// await until the done-count reaches zero; the "cancel the rest on first
// completion" shape Select uses for its own early-exit is the direct model
// for "first sub-flow to error cancels the others").
type parallelState struct {
	branches []*step
	remaining int
	errored   bool
}

// ParallelAdapter collects the sub-flows of one Parallel call.
type ParallelAdapter struct {
	parent *step
}

// Parallel adds a step that fans out into concurrently running sub-flows,
// added via the returned adapter's Add method. It completes, with no
// arguments, once every sub-flow has completed; if any sub-flow fails
// unrecovered, every other still-running sub-flow is aborted (its cancel
// hooks run, same as a root Cancel) and the failure propagates as this
// step's own error, tried against onError first if given.
func (as *AsyncSteps) Parallel(onError ...ErrorHandler) *ParallelAdapter {
	s := newStep(as.cur, as.cur.root)
	if len(onError) > 0 {
		s.onError = onError[0]
	}
	s.parallel = &parallelState{}
	as.cur.children = append(as.cur.children, s)
	return &ParallelAdapter{parent: s}
}

// Add registers one more concurrent sub-flow. exec runs with its own,
// independent AsyncSteps handle rooted at this new branch step; it may
// Add further children to build an arbitrarily deep sub-tree of its own.
func (p *ParallelAdapter) Add(exec Executor, onError ...ErrorHandler) *ParallelAdapter {
	b := newStep(p.parent, p.parent.root)
	b.exec = exec
	b.isParallelBranch = true
	if len(onError) > 0 {
		b.onError = onError[0]
	}
	p.parent.parallel.branches = append(p.parent.parallel.branches, b)
	return p
}

func (r *rootState) dispatchParallelFrame(s *step) {
	r.pushPath(s)
	ps := s.parallel
	if len(ps.branches) == 0 {
		r.completeStep(s, NextArgs{})
		return
	}
	ps.remaining = len(ps.branches)
	s.state = stateAwaitingChild
	for _, b := range ps.branches {
		r.scheduleStep(b)
	}
}

func (r *rootState) completeParallelBranch(parent *step, args NextArgs) {
	ps := parent.parallel
	ps.remaining--
	if ps.errored {
		return
	}
	if ps.remaining == 0 {
		r.completeStep(parent, NextArgs{})
	}
}
