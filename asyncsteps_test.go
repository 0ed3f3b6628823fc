package asyncsteps_test

import (
	"testing"
	"time"

	"github.com/chainflow/asyncsteps"
	"github.com/stretchr/testify/require"
)

// driveUntilDone runs reactor on a background goroutine until stop is
// closed, mirroring the Promise/Await pattern doc.go describes for code
// outside any Reactor's own driving goroutine.
func driveUntilDone(reactor *asyncsteps.Reactor) (stop func()) {
	done := make(chan struct{})
	go reactor.Run(func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	})
	return func() { close(done) }
}

func TestSequentialStepsPassArgs(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	as.Add(func(as *asyncsteps.AsyncSteps) {
		as.Success(1)
	}).Add(func(as *asyncsteps.AsyncSteps) {
		as.Success(2)
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	args, err := asyncsteps.Await(ch)
	require.NoError(t, err)
	require.Equal(t, []any{2}, args)
}

func TestNestedStepErrorRecoveredByAncestor(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	as.Add(func(as *asyncsteps.AsyncSteps) {
		as.Add(func(as *asyncsteps.AsyncSteps) {
			as.Error(asyncsteps.InternalError, "boom")
		})
	}, func(as *asyncsteps.AsyncSteps, code asyncsteps.ErrorCode) {
		require.Equal(t, asyncsteps.InternalError, code)
		as.Success("recovered")
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	args, err := asyncsteps.Await(ch)
	require.NoError(t, err)
	require.Equal(t, []any{"recovered"}, args)
}

func TestUnhandledErrorSurfacesAtRoot(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	as.Add(func(as *asyncsteps.AsyncSteps) {
		as.Error(asyncsteps.CommError, "down")
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.Error(t, err)
	ae, ok := err.(*asyncsteps.Error)
	require.True(t, ok)
	require.Equal(t, asyncsteps.CommError, ae.Code)
}

func TestSetTimeoutErrorsStep(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	as.Add(func(as *asyncsteps.AsyncSteps) {
		as.SetTimeout(5 * time.Millisecond)
		as.WaitExternal() // never resumed externally: only the timeout settles it
	}, func(as *asyncsteps.AsyncSteps, code asyncsteps.ErrorCode) {
		require.Equal(t, asyncsteps.Timeout, code)
		as.Success("timed out")
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	args, err := asyncsteps.Await(ch)
	require.NoError(t, err)
	require.Equal(t, []any{"timed out"}, args)
}

func TestCancelFiresCancelHook(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	canceled := make(chan struct{}, 1)
	as.Add(func(as *asyncsteps.AsyncSteps) {
		as.SetCancel(func(as *asyncsteps.AsyncSteps) { canceled <- struct{}{} })
		as.WaitExternal()
	})

	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	time.Sleep(5 * time.Millisecond)
	as.Cancel()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("cancel hook never fired")
	}
}
