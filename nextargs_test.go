package asyncsteps

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextArgsBasic(t *testing.T) {
	na, ok := newNextArgs([]any{1, "two", 3.0})
	require.True(t, ok)
	require.Equal(t, 3, na.Len())
	require.Equal(t, 1, na.Arg(0))
	require.Equal(t, "two", na.Arg(1))
	require.Equal(t, []any{1, "two", 3.0}, na.Args())
}

func TestNextArgsArityOverflowIsRejected(t *testing.T) {
	_, ok := newNextArgs([]any{1, 2, 3, 4, 5})
	require.False(t, ok, "more than maxArgs must not silently truncate")
}

func TestNextArgsMoveIsOnceOnly(t *testing.T) {
	na, ok := newNextArgs([]any{"a", "b"})
	require.True(t, ok)

	out := na.Move()
	require.Equal(t, []any{"a", "b"}, out)
	require.Equal(t, 0, na.Len(), "Move clears the slots")
	require.Equal(t, []any{}, na.Move(), "a second Move returns nothing")
}

func TestNextArgsArgPanicsOutOfRange(t *testing.T) {
	na, ok := newNextArgs([]any{"only"})
	require.True(t, ok)
	require.Panics(t, func() { na.Arg(1) })
}
