package asyncsteps_test

import (
	"sync"
	"testing"
	"time"

	"github.com/chainflow/asyncsteps"
	"github.com/stretchr/testify/require"
)

func TestMutexGrantsFIFOAcrossParallelBranches(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)
	mu := asyncsteps.NewMutex()

	var order []int
	var mtx sync.Mutex
	record := func(i int) {
		mtx.Lock()
		order = append(order, i)
		mtx.Unlock()
	}

	p := as.Parallel()
	for i := 0; i < 3; i++ {
		i := i
		p.Add(func(as *asyncsteps.AsyncSteps) {
			as.SyncedStep(mu, func(as *asyncsteps.AsyncSteps) {
				record(i)
				as.Success()
			})
		})
	}

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, order, "branches are scheduled in Add order, so the mutex grants FIFO")
}

func TestMutexIsReentrantWithinOneRoot(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)
	mu := asyncsteps.NewMutex()

	as.Add(func(as *asyncsteps.AsyncSteps) {
		mu.Lock(as) // as.Success() called synchronously inside Lock, granted immediately
	})
	as.Add(func(as *asyncsteps.AsyncSteps) {
		// same root tree already holds mu: must grant immediately, not queue.
		mu.Lock(as)
	})
	as.Add(func(as *asyncsteps.AsyncSteps) {
		mu.Unlock(as)
		mu.Unlock(as)
		as.Success()
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.NoError(t, err)
}

func TestThrottleReleasesAllPermitsAtWindowBoundary(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	th := asyncsteps.NewThrottle(reactor, 1, 20*time.Millisecond)

	as := asyncsteps.NewRootAsyncSteps(reactor)

	var acquired []time.Time
	as.SyncedStep(th, func(as *asyncsteps.AsyncSteps) {
		acquired = append(acquired, time.Now())
		as.Success()
	}).SyncedStep(th, func(as *asyncsteps.AsyncSteps) {
		acquired = append(acquired, time.Now())
		as.Success()
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.NoError(t, err)
	require.Len(t, acquired, 2)
	require.GreaterOrEqual(t, acquired[1].Sub(acquired[0]), 15*time.Millisecond,
		"second acquisition must wait for the window to roll over")
}

func TestLimiterRejectsWhenQueueFull(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	lim := asyncsteps.NewLimiter(reactor, 1, 0, 0)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	// The first branch takes and keeps the only slot (it never unlocks):
	// the Limiter's state lives independently of any one tree, so that is
	// enough to force the second branch's Lock to see the slot taken.
	p := as.Parallel()
	p.Add(func(as *asyncsteps.AsyncSteps) {
		lim.Lock(as)
	})
	p.Add(func(as *asyncsteps.AsyncSteps) {
		lim.Lock(as)
	}, func(as *asyncsteps.AsyncSteps, code asyncsteps.ErrorCode) {
		require.Equal(t, asyncsteps.DefenseRejected, code)
		as.Success()
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.NoError(t, err)
}

func TestLimiterQueueTimeout(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	lim := asyncsteps.NewLimiter(reactor, 1, 1, 10*time.Millisecond)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	p := as.Parallel()
	p.Add(func(as *asyncsteps.AsyncSteps) {
		lim.Lock(as) // holds the only slot for the rest of the tree's run
	})
	p.Add(func(as *asyncsteps.AsyncSteps) {
		lim.Lock(as) // queues, then times out
	}, func(as *asyncsteps.AsyncSteps, code asyncsteps.ErrorCode) {
		require.Equal(t, asyncsteps.Timeout, code)
		as.Success()
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.NoError(t, err)
}
