package asyncsteps

import "time"

// Sync is implemented by every synchronization primitive AsyncSteps.
// SyncedStep can wrap a step with: Lock suspends the calling step (via
// WaitExternal, resumed later by Success) until access is granted, or
// panics with an *Error (e.g. DefenseRejected) if access is refused
// outright; Unlock releases whatever Lock most recently granted to this
// root. Grounded on the teacher's Semaphore (semaphore.go): FIFO waiters,
// a Cleanup hook for a waiter that gives up before being granted.
type Sync interface {
	Lock(as *AsyncSteps)
	Unlock(as *AsyncSteps)
}

// SyncedStep wraps body with obj's lock/unlock around it: obj.Lock runs
// first (possibly suspending until granted), then body, then obj.Unlock,
// whether body succeeded or failed. A cancel hook releases the lock (or
// the waiter's place in line) if the tree is aborted while this step is
// still on the active path, whether waiting or holding. A body that arms
// its own SetCancel replaces the hook that releases the held lock.
//
// Lock and body/unlock must be three separate sibling steps, not one step
// whose executor calls Lock and then Adds body as a child in the same
// call: a step's queued children always run before its own suspension is
// checked, so folding them into one step would start body immediately
// regardless of whether Lock actually granted.
//
// unlocked guards against a double release: if body fails and onError
// recovers by calling as.Success, the chain falls through to the trailing
// unlock step exactly the way a normal success would, so the error path's
// own obj.Unlock and the trailing step's obj.Unlock must not both fire.
func (as *AsyncSteps) SyncedStep(obj Sync, body Executor, onError ...ErrorHandler) *AsyncSteps {
	var oe ErrorHandler
	if len(onError) > 0 {
		oe = onError[0]
	}
	unlocked := false
	doUnlock := func(as *AsyncSteps) {
		if unlocked {
			return
		}
		unlocked = true
		obj.Unlock(as)
	}
	return as.
		Add(func(as *AsyncSteps) { obj.Lock(as) }).
		Add(func(as *AsyncSteps) {
			as.SetCancel(doUnlock)
			body(as)
		}, func(as *AsyncSteps, code ErrorCode) {
			doUnlock(as)
			if oe != nil {
				oe(as, code)
			} else {
				as.reraise(code)
			}
		}).
		Add(func(as *AsyncSteps) {
			doUnlock(as)
			as.Success()
		})
}

// Mutex is a reentrant lock identified by root: the same root acquiring it
// again while already holding it succeeds immediately and tracks a
// recursion depth, matching a single step-tree never deadlocking itself.
// Waiters are granted strictly FIFO.
type Mutex struct {
	holder  uint64
	held    bool
	depth   int
	waiters []*mutexWaiter
}

type mutexWaiter struct {
	rootID uint64
	grant  func()
	queued bool
}

// NewMutex creates an unheld Mutex.
func NewMutex() *Mutex { return &Mutex{} }

func (m *Mutex) Lock(as *AsyncSteps) {
	rid := as.RootID()
	if m.held && m.holder == rid {
		m.depth++
		as.Success()
		return
	}
	if !m.held {
		m.held = true
		m.holder = rid
		m.depth = 1
		as.Success()
		return
	}
	w := &mutexWaiter{rootID: rid, queued: true}
	w.grant = func() { as.Success() }
	m.waiters = append(m.waiters, w)
	as.SetCancel(func(as *AsyncSteps) {
		if w.queued {
			m.removeWaiter(w)
		} else if m.held && m.holder == rid {
			m.forceRelease()
		}
	})
	as.WaitExternal()
}

func (m *Mutex) Unlock(as *AsyncSteps) {
	rid := as.RootID()
	if !m.held || m.holder != rid {
		return
	}
	m.depth--
	if m.depth > 0 {
		return
	}
	m.forceRelease()
}

func (m *Mutex) forceRelease() {
	m.held = false
	m.depth = 0
	if len(m.waiters) == 0 {
		return
	}
	w := m.waiters[0]
	m.waiters = m.waiters[1:]
	w.queued = false
	m.held = true
	m.holder = w.rootID
	m.depth = 1
	w.grant()
}

func (m *Mutex) removeWaiter(w *mutexWaiter) {
	for i, v := range m.waiters {
		if v == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

// Throttle bounds callers to at most n acquisitions per tumbling window of
// the given duration: every permit taken in a window is released all at
// once at the window boundary, rather than individually expiring on a
// per-acquisition schedule. Unlock is a no-op — a Throttle permit is never
// released early, only by the window itself elapsing.
type Throttle struct {
	n       int
	window  time.Duration
	reactor *Reactor
	used    int
	waiters []*throttleWaiter
	pending bool
}

type throttleWaiter struct {
	grant     func()
	cancelled bool
}

// NewThrottle creates a Throttle allowing n acquisitions per window,
// scheduling its own window-rollover timers on reactor.
func NewThrottle(reactor *Reactor, n int, window time.Duration) *Throttle {
	return &Throttle{n: n, window: window, reactor: reactor}
}

func (t *Throttle) Lock(as *AsyncSteps) {
	if t.used < t.n {
		t.used++
		t.armRollover()
		as.Success()
		return
	}
	w := &throttleWaiter{}
	w.grant = func() { as.Success() }
	t.waiters = append(t.waiters, w)
	as.SetCancel(func(as *AsyncSteps) { w.cancelled = true })
	as.WaitExternal()
}

func (t *Throttle) Unlock(as *AsyncSteps) {}

func (t *Throttle) armRollover() {
	if t.pending {
		return
	}
	t.pending = true
	t.reactor.Deferred(t.window, t.rollover)
}

func (t *Throttle) rollover() {
	t.pending = false
	t.used = 0
	waiters := t.waiters
	t.waiters = nil
	for _, w := range waiters {
		if w.cancelled {
			continue
		}
		if t.used >= t.n {
			t.waiters = append(t.waiters, w)
			continue
		}
		t.used++
		w.grant()
	}
	if t.used > 0 || len(t.waiters) > 0 {
		t.armRollover()
	}
}

// Limiter bounds callers to at most concurrency simultaneous holders, with
// up to queueCap callers allowed to wait for a free slot; a caller that
// would make the queue exceed queueCap is rejected immediately with
// DefenseRejected, and a queued caller still waiting after queueTimeout is
// rejected with Timeout. Grounded on the teacher's Semaphore combined with
// spec.md's description of Limiter's admission-control behavior, which
// Semaphore alone (unbounded waiter queue, no queue timeout) does not
// provide.
type Limiter struct {
	concurrency  int
	queueCap     int
	queueTimeout time.Duration
	reactor      *Reactor

	inUse   int
	waiters []*limiterWaiter
}

type limiterWaiter struct {
	grant   func()
	timeout Handle
}

// NewLimiter creates a Limiter admitting at most concurrency simultaneous
// holders and queueCap additional waiters; queueTimeout bounds how long a
// queued caller waits before being rejected. A zero queueTimeout means a
// queued caller waits indefinitely.
func NewLimiter(reactor *Reactor, concurrency, queueCap int, queueTimeout time.Duration) *Limiter {
	return &Limiter{reactor: reactor, concurrency: concurrency, queueCap: queueCap, queueTimeout: queueTimeout}
}

func (l *Limiter) Lock(as *AsyncSteps) {
	if l.inUse < l.concurrency {
		l.inUse++
		as.Success()
		return
	}
	if len(l.waiters) >= l.queueCap {
		as.Error(DefenseRejected, "limiter queue full")
		return
	}
	w := &limiterWaiter{}
	w.grant = func() { as.Success() }
	l.waiters = append(l.waiters, w)
	if l.queueTimeout > 0 {
		w.timeout = l.reactor.Deferred(l.queueTimeout, func() {
			if l.removeWaiter(w) {
				as.Error(Timeout, "limiter queue wait")
			}
		})
	}
	as.SetCancel(func(as *AsyncSteps) {
		if l.removeWaiter(w) {
			return
		}
		l.release()
	})
	as.WaitExternal()
}

func (l *Limiter) Unlock(as *AsyncSteps) {
	l.release()
}

func (l *Limiter) release() {
	if l.inUse == 0 {
		return
	}
	l.inUse--
	if len(l.waiters) == 0 {
		return
	}
	w := l.waiters[0]
	l.waiters = l.waiters[1:]
	if w.timeout.IsValid() {
		l.reactor.Cancel(w.timeout)
	}
	l.inUse++
	w.grant()
}

func (l *Limiter) removeWaiter(w *limiterWaiter) bool {
	for i, v := range l.waiters {
		if v == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return true
		}
	}
	return false
}
