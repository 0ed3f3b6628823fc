package asyncsteps_test

import (
	"testing"

	"github.com/chainflow/asyncsteps"
	"github.com/stretchr/testify/require"
)

func TestRepeatRunsExactCount(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	var seen []int
	as.Repeat(3, func(as *asyncsteps.AsyncSteps, i int) {
		seen = append(seen, i)
		as.Success()
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, seen)
}

func TestForEachSliceVisitsEveryElement(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	items := []string{"a", "b", "c"}
	var seen []string
	asyncsteps.ForEachSlice(as, items, func(as *asyncsteps.AsyncSteps, i int, v string) {
		seen = append(seen, v)
		as.Success()
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.NoError(t, err)
	require.Equal(t, items, seen)
}

func TestBreakLoopStopsEarly(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	var count int
	as.Repeat(100, func(as *asyncsteps.AsyncSteps, i int) {
		count++
		if i == 2 {
			as.BreakLoop()
		}
		as.Success()
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.NoError(t, err)
	require.Equal(t, 3, count, "BreakLoop should stop after the 3rd iteration (index 2)")
}

func TestContinueLoopSkipsRestOfIteration(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	var touched []int
	as.Repeat(3, func(as *asyncsteps.AsyncSteps, i int) {
		if i == 1 {
			as.ContinueLoop()
		}
		touched = append(touched, i)
		as.Success()
	})

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, touched, "iteration 1 never reaches the append after ContinueLoop")
}

func TestLabeledBreakTargetsOuterLoop(t *testing.T) {
	reactor := asyncsteps.NewReactor(nil)
	as := asyncsteps.NewRootAsyncSteps(reactor)

	var outerRuns int
	as.Loop(func(as *asyncsteps.AsyncSteps) {
		outerRuns++
		as.Repeat(10, func(as *asyncsteps.AsyncSteps, i int) {
			if outerRuns == 2 {
				as.BreakLoop("outer")
			}
			as.Success()
		})
	}, "outer")

	ch := asyncsteps.Promise(as)
	as.Execute()
	stop := driveUntilDone(reactor)
	defer stop()

	_, err := asyncsteps.Await(ch)
	require.NoError(t, err)
	require.Equal(t, 2, outerRuns, "labeled break from the inner loop must end the outer one")
}
