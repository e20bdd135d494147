package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDedupObserve(t *testing.T) {
	t.Parallel()

	d := newDedupSet(time.Minute)
	now := time.Now()

	require.False(t, d.observe("a", now))
	require.True(t, d.observe("a", now.Add(time.Second)))
	require.False(t, d.observe("b", now))
	require.Equal(t, 2, d.size())
}

func TestDedupEviction(t *testing.T) {
	t.Parallel()

	d := newDedupSet(time.Minute)
	now := time.Now()

	require.False(t, d.observe("a", now))
	require.False(t, d.observe("b", now.Add(30*time.Second)))

	// "a" ages out, "b" is still inside the window.
	require.False(t, d.observe("a", now.Add(90*time.Second)))
	require.True(t, d.observe("b", now.Add(80*time.Second)))
}

func TestDedupZeroWindowUsesDefault(t *testing.T) {
	t.Parallel()

	d := newDedupSet(0)
	require.Equal(t, defaultDedupWindow, d.window)
}
