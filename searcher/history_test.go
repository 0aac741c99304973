package searcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryExtend(t *testing.T) {
	t.Run("leaving shared prefixes untouched", func(t *testing.T) {
		base := make(History, 0, 8).Extend(1, 2)
		left := base.Extend(0, 3)
		right := base.Extend(2, 1)

		require.Equal(t, History{1, 2}, base)
		require.Equal(t, History{1, 2, 0, 3}, left)
		require.Equal(t, History{1, 2, 2, 1}, right)
	})

	t.Run("ending action histories with the action", func(t *testing.T) {
		h := History{1, 2}.WithAction(3)
		a, ok := h.LastAction()
		require.True(t, ok)
		require.EqualValues(t, 3, a)
		require.Equal(t, 1, h.Steps())
	})

	t.Run("reporting no action for the empty history", func(t *testing.T) {
		_, ok := History(nil).LastAction()
		require.False(t, ok)
	})
}

func TestHistoryKey(t *testing.T) {
	require.Equal(t, "", History(nil).Key())
	require.Equal(t, "1.12", History{1, 12}.Key())
	require.NotEqual(t, History{1, 12}.Key(), History{11, 2}.Key())
	require.Equal(t, "[a1 z12 a0]", History{1, 12, 0}.String())
}

func TestHistoryHasPrefix(t *testing.T) {
	h := History{0, 1, 2, 3}
	require.True(t, h.HasPrefix(nil))
	require.True(t, h.HasPrefix(History{0, 1}))
	require.False(t, h.HasPrefix(History{0, 2}))
	require.False(t, History{0}.HasPrefix(h))
}
