package asyncsteps

// Future is the result delivered to a Promise's waiting goroutine: either
// the arguments the terminal step succeeded with, or the error it failed
// with.
type Future struct {
	Args []any
	Err  *Error
}

// Promise attaches a completion listener to the root of as's tree and
// returns a channel that receives exactly one Future once that tree
// finishes (a tree stopped by Cancel never finishes, and delivers none):
// this is
// the bridge a goroutine blocked on <-ch uses to learn the outcome of a
// step tree driven by a Reactor it does not itself own. Grounded on the
// teacher's doc.go "Use Case #3" (state machines that resume a waiting
// party across a goroutine boundary) and spec.md's note that a promise/
// future bridge belongs at the edge of the engine, not inside it: nothing
// about NextArgs or the step tree depends on channels, only this one
// adapter does.
func Promise(as *AsyncSteps) <-chan Future {
	ch := make(chan Future, 1)
	root := as.cur.root
	root.onDone = func(err *Error, args NextArgs) {
		if err != nil {
			ch <- Future{Err: err}
			return
		}
		ch <- Future{Args: args.Args()}
	}
	return ch
}

// Await blocks the calling goroutine until ch delivers its Future,
// returning the arguments on success or the error on failure. It is meant
// for code outside any Reactor's own driving goroutine; calling it from
// inside a step's Executor would deadlock the Reactor that is supposed to
// resolve ch.
func Await(ch <-chan Future) ([]any, error) {
	f := <-ch
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Args, nil
}
