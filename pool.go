package asyncsteps

import "sync"

// StepPool lets a caller plug in its own allocation strategy for the
// objects the engine churns through fastest: the wrapper step each loop
// iteration runs in. Get returns a zero-value instance
// (or a recycled one); Put returns one to the pool once it can no longer
// be observed by any in-flight step.
type StepPool interface {
	Get() any
	Put(v any)
}

// syncStepPool is the default StepPool, backed by sync.Pool, matching the
// teacher's Executor.pool (executor.go) — a single shared pool per
// Reactor rather than one per tree, since step trees are typically
// short-lived relative to a long-running Reactor.
type syncStepPool struct {
	pool sync.Pool
}

// NewStepPool creates a StepPool whose Get returns new(step) when empty.
func NewStepPool() StepPool {
	return &syncStepPool{pool: sync.Pool{New: func() any { return new(step) }}}
}

func (p *syncStepPool) Get() any  { return p.pool.Get() }
func (p *syncStepPool) Put(v any) { p.pool.Put(v) }
