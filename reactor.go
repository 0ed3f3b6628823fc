package asyncsteps

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// FatalHandler receives diagnostics the Reactor cannot recover from: a
// panic escaping a step's executor or on-error handler, a cancel hook
// panicking, a double-completion of an already-finished step. The default
// handler panics, matching the teacher's own "propagate unrecovered panics
// to the Executor" stance (doc.go).
type FatalHandler func(msg string)

func defaultFatalHandler(msg string) { panic(msg) }

// Handle identifies one pending Immediate or Deferred callback. It carries
// a generation cookie so that a Handle surviving past its callback's
// completion (e.g. held by user code after the fact) can never be mistaken
// for a different, later callback that happens to reuse the same slot.
type Handle struct {
	slot *deferredEntry
	gen  uint64
}

// IsValid reports whether h still identifies a pending (not yet fired, not
// yet canceled) callback.
func (h Handle) IsValid() bool {
	return h.slot != nil && h.slot.gen == h.gen
}

// Reactor is the single-threaded event loop every AsyncSteps root and sync
// primitive schedules work through. It generalizes the teacher's Executor
// (executor.go) from "run spawned Tasks by path priority" to "run immediate
// callbacks FIFO, run deferred callbacks by due time then FIFO" — the two
// queues spec.md's Reactor component needs.
//
// Immediate and Deferred are goroutine-safe: any goroutine may schedule
// work. Iterate, and therefore the actual invocation of every scheduled
// callback, is not: it must always be driven from the same goroutine, the
// same restriction the teacher places on Executor.Run.
type Reactor struct {
	mu        sync.Mutex
	immediate *queue.Queue
	deferred  deferredQueue
	seq       uint64
	fatal     FatalHandler

	driverSet bool
	driverID  string

	pool StepPool
}

// NewReactor creates a Reactor with the given fatal diagnostic handler. A
// nil handler installs a default that panics.
func NewReactor(fatal FatalHandler) *Reactor {
	if fatal == nil {
		fatal = defaultFatalHandler
	}
	return &Reactor{immediate: queue.New(), fatal: fatal, pool: NewStepPool()}
}

// SetStepPool replaces the Reactor's step allocator, letting a caller plug
// in its own pooling/instrumentation strategy in place of the sync.Pool
// default. Must be called before any AsyncSteps tree is rooted on r.
func (r *Reactor) SetStepPool(p StepPool) {
	if p == nil {
		p = NewStepPool()
	}
	r.pool = p
}

// Immediate schedules cb to run on the next Iterate, after every
// already-queued immediate callback (FIFO order).
func (r *Reactor) Immediate(cb func()) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e := &deferredEntry{seq: r.seq, cb: cb, gen: r.seq}
	r.immediate.Add(e)
	return Handle{slot: e, gen: e.gen}
}

// Deferred schedules cb to run once d has elapsed, ordered against other
// deferred callbacks by due time, then FIFO among equal due times.
func (r *Reactor) Deferred(d time.Duration, cb func()) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e := &deferredEntry{due: time.Now().Add(d), seq: r.seq, cb: cb, gen: r.seq}
	r.deferred.Push(e)
	return Handle{slot: e, gen: e.gen}
}

// Cancel prevents h's callback from ever running, if it has not already
// fired. Canceling an already-fired or already-canceled handle is a no-op.
func (r *Reactor) Cancel(h Handle) {
	if !h.IsValid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h.slot.gen != h.gen {
		return
	}
	h.slot.gen = 0 // invalidate any other outstanding copy of this Handle
	r.deferred.Remove(h.slot)
	// Immediate entries are removed lazily in Iterate, by generation check,
	// since eapache/queue has no O(1) random removal.
}

// IsSameGoroutine reports whether the calling goroutine is the one driving
// this Reactor's Iterate loop. Before Iterate has ever run, it reports
// true permissively (no driver goroutine bound yet).
func (r *Reactor) IsSameGoroutine() bool {
	r.mu.Lock()
	bound := r.driverSet
	id := r.driverID
	r.mu.Unlock()
	if !bound {
		return true
	}
	return id == currentGoroutineID()
}

// Iterate runs one batch of due work: every queued immediate callback,
// including any that those callbacks schedule while the batch runs, then
// every deferred callback whose due time has passed. It
// returns the duration to wait before more work is ready: zero if an
// immediate callback is queued (including one a just-run deferred callback
// itself scheduled) or a deferred callback is already due, the time until
// the next deferred callback's due time if neither, or -1 if nothing is
// pending at all. Iterate must always be called from the same goroutine
// over a Reactor's lifetime.
func (r *Reactor) Iterate() time.Duration {
	r.mu.Lock()
	if !r.driverSet {
		r.driverSet = true
		r.driverID = currentGoroutineID()
	}
	r.mu.Unlock()

	for {
		r.mu.Lock()
		if r.immediate.Length() == 0 {
			r.mu.Unlock()
			break
		}
		e := r.immediate.Remove().(*deferredEntry)
		live := e.gen != 0
		e.gen = 0 // fired (or canceled): no Handle to it is valid any more
		r.mu.Unlock()
		if live {
			r.runGuarded(e.cb)
		}
	}

	now := time.Now()
	for {
		r.mu.Lock()
		e := r.deferred.PopReady(now)
		if e != nil {
			e.gen = 0
		}
		r.mu.Unlock()
		if e == nil {
			break
		}
		r.runGuarded(e.cb)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.immediate.Length() > 0 {
		return 0
	}
	if next := r.deferred.Peek(); next != nil {
		if d := next.due.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return -1
}

// Run drives Iterate in a loop, sleeping between batches, until stop
// returns true. It is the Reactor-owned convenience most programs use
// instead of calling Iterate directly, mirroring the teacher's
// Executor.Run/Autorun pair (executor.go).
func (r *Reactor) Run(stop func() bool) {
	for !stop() {
		wait := r.Iterate()
		if wait < 0 {
			wait = time.Millisecond
		}
		time.Sleep(wait)
	}
}

func (r *Reactor) runGuarded(cb func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fatal("asyncsteps: panic escaped reactor callback: " + panicMessage(rec))
		}
	}()
	cb()
}

func panicMessage(rec any) string {
	if err, ok := rec.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(rec)
}

// currentGoroutineID extracts this goroutine's numeric id from its own
// stack trace header ("goroutine 123 [running]:"). There is no supported
// API for this; it is used only for the advisory IsSameGoroutine check,
// never for correctness-critical dispatch.
func currentGoroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if bytes.HasPrefix(b, []byte(prefix)) {
		b = b[len(prefix):]
		if i := bytes.IndexByte(b, ' '); i >= 0 {
			return string(b[:i])
		}
	}
	return strconv.Itoa(0)
}
