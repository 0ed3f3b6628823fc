package asyncsteps

// State is the dynamic, per-root key/value bag every step in a tree can
// read and write, plus the handful of fields the engine itself populates
// while unwinding an error. It plays the same "mutable value shared across
// a tree of cooperating steps" role the teacher's State[T] played for a
// single Signal-backed value, generalized from one typed slot to an
// open map, matching original_source's asyncsteps::State.
type State struct {
	vals map[string]any

	// ErrorInfo is the Info string of the most recently raised *Error on
	// this root, available to on-error handlers that want detail beyond
	// the code itself.
	ErrorInfo string

	// LastException is never set by the engine: a panic recovered and
	// re-raised as InternalError keeps only its message, in ErrorInfo.
	// It stays nil unless a caller sets it.
	LastException error

	// ErrorLoopLabel is set when a BreakLoop/ContinueLoop signal matches no
	// enclosing loop frame and is raised as a LoopBreak/LoopCont error: the
	// label it was looking for, or "" if unlabeled.
	ErrorLoopLabel string

	// UnhandledError, if set before Execute(), is called once with the
	// final error code if the tree finishes in the Errored state with no
	// remaining on-error handler to try it against. Left nil, an unhandled
	// error is still reported through Promise/Await; this hook is for code
	// driving a tree directly, without a Promise, that still wants to
	// observe an unhandled failure.
	UnhandledError func(ErrorCode)
}

func newState() *State {
	return &State{vals: make(map[string]any)}
}

// Get returns the value stored under key and whether it was present.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.vals[key]
	return v, ok
}

// Set stores value under key, overwriting any previous value.
func (s *State) Set(key string, value any) {
	s.vals[key] = value
}

// Has reports whether key has been Set.
func (s *State) Has(key string) bool {
	_, ok := s.vals[key]
	return ok
}

// Delete removes key, if present.
func (s *State) Delete(key string) {
	delete(s.vals, key)
}
