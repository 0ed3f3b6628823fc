package asyncsteps

// loopState turns an ordinary step into a loop frame: instead of running
// its body once, the engine re-invokes next until it reports done, or
// until a matching BreakLoop/ContinueLoop intercepts it. Modeled on
// original_source's LoopState plus the teacher's loopController
// (coroutine.go: "case loopController: ... doBreak -> co.End(); doContinue
// -> co.Transition(c.task)"), generalized from a single re-run task to an
// externally driven iteration cursor so Repeat/ForEach can share one
// engine path with the plain unconditional Loop.
type loopState struct {
	label string
	// next reports whether another iteration should run, and returns the
	// Executor to run it with. It returns ok=false once the loop is
	// exhausted (e.g. Repeat's counter reached count, or ForEach's cursor
	// reached the end).
	next func() (body Executor, ok bool)
}

// Loop adds an unconditional loop frame: body runs repeatedly until it
// calls as.BreakLoop() (or as.ContinueLoop() just starts the next
// iteration early). label, if non-empty, lets a nested loop's
// BreakLoop(label)/ContinueLoop(label) target this frame specifically
// instead of the nearest enclosing one.
func (as *AsyncSteps) Loop(body Executor, label ...string) *AsyncSteps {
	return as.addLoop(label, func() (Executor, bool) { return body, true })
}

// Repeat adds a loop frame that runs body exactly count times, passing the
// zero-based iteration index as body's i parameter.
func (as *AsyncSteps) Repeat(count int, body func(as *AsyncSteps, i int), label ...string) *AsyncSteps {
	i := 0
	return as.addLoop(label, func() (Executor, bool) {
		if i >= count {
			return nil, false
		}
		idx := i
		i++
		return func(as *AsyncSteps) { body(as, idx) }, true
	})
}

// ForEachSlice adds a loop frame iterating items in order, passing each
// index and value to body.
func ForEachSlice[T any](as *AsyncSteps, items []T, body func(as *AsyncSteps, i int, v T), label ...string) *AsyncSteps {
	i := 0
	return as.addLoop(label, func() (Executor, bool) {
		if i >= len(items) {
			return nil, false
		}
		idx, v := i, items[i]
		i++
		return func(as *AsyncSteps) { body(as, idx, v) }, true
	})
}

// ForEachMap adds a loop frame iterating a map's entries in an unspecified
// order, passing each key and value to body. The keys are collected when
// ForEachMap is called; each value is read from m when its iteration
// starts. m itself is not copied.
func ForEachMap[K comparable, V any](as *AsyncSteps, m map[K]V, body func(as *AsyncSteps, k K, v V), label ...string) *AsyncSteps {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	i := 0
	return as.addLoop(label, func() (Executor, bool) {
		if i >= len(keys) {
			return nil, false
		}
		k := keys[i]
		i++
		return func(as *AsyncSteps) { body(as, k, m[k]) }, true
	})
}

func (as *AsyncSteps) addLoop(label []string, next func() (Executor, bool)) *AsyncSteps {
	lbl := ""
	if len(label) > 0 {
		lbl = label[0]
	}
	s := newStep(as.cur, as.cur.root)
	s.loop = &loopState{label: lbl, next: next}
	as.cur.children = append(as.cur.children, s)
	return as
}

// BreakLoop ends the nearest enclosing loop frame successfully (or, if
// label is given, the nearest enclosing loop frame with that label). It
// never returns: like Error, it aborts the rest of the calling executor by
// panicking with a value the engine recognizes and strips before it can
// reach an unrelated on-error handler.
func (as *AsyncSteps) BreakLoop(label ...string) {
	lbl := ""
	if len(label) > 0 {
		lbl = label[0]
	}
	panic(&loopSignal{isBreak: true, label: lbl})
}

// ContinueLoop abandons the rest of the current iteration and starts the
// next one immediately, targeting the nearest enclosing loop frame (or the
// one named by label).
func (as *AsyncSteps) ContinueLoop(label ...string) {
	lbl := ""
	if len(label) > 0 {
		lbl = label[0]
	}
	panic(&loopSignal{isBreak: false, label: lbl})
}
