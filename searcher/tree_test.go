package searcher

import (
	"errors"
	"math"
	"sync"
	"testing"

	"pomcp/pomdp"

	"github.com/stretchr/testify/require"
)

var threeActions = []pomdp.Action{0, 1, 2}

func TestTreeFind(t *testing.T) {
	tree := NewTree(nil)

	t.Run("finding the root by its history", func(t *testing.T) {
		id, ok := tree.Find(nil)
		require.True(t, ok)
		require.Equal(t, tree.Root(), id)
	})

	t.Run("missing unvisited histories without error", func(t *testing.T) {
		_, ok := tree.Find(History{0, 1})
		require.False(t, ok)
	})
}

func TestTreeExpand(t *testing.T) {
	t.Run("attaching a child for an untried action", func(t *testing.T) {
		tree := NewTree(nil)

		id, err := tree.Expand(tree.Root(), 1, History{1})

		require.NoError(t, err)
		child, ok := tree.Node(id)
		require.True(t, ok)
		require.Equal(t, ActionNode, child.Kind)
		require.EqualValues(t, 1, child.Action)
		require.Equal(t, tree.Root(), child.Parent)
		root, _ := tree.Node(tree.Root())
		require.Equal(t, []NodeID{id}, root.Children)
	})

	t.Run("failing on an action that already has a child", func(t *testing.T) {
		tree := NewTree(nil)
		_, err := tree.Expand(tree.Root(), 1, History{1})
		require.NoError(t, err)

		_, err = tree.Expand(tree.Root(), 1, History{1})

		var invariant *InvariantError
		require.True(t, errors.As(err, &invariant), "Duplicate expansion should be an invariant violation")
		require.Equal(t, 2, tree.Size(), "Tree should not change")
	})

	t.Run("refusing to expand action nodes", func(t *testing.T) {
		tree := NewTree(nil)
		id, err := tree.Expand(tree.Root(), 0, History{0})
		require.NoError(t, err)

		_, err = tree.Expand(id, 1, History{0, 1})

		var invariant *InvariantError
		require.True(t, errors.As(err, &invariant))
	})
}

func TestTreeExpandAll(t *testing.T) {
	t.Run("creating one child per action in order", func(t *testing.T) {
		tree := NewTree(nil)

		expanded, err := tree.ExpandAll(tree.Root(), threeActions)

		require.NoError(t, err)
		require.True(t, expanded)
		root, _ := tree.Node(tree.Root())
		require.Len(t, root.Children, 3)
		for i, id := range root.Children {
			child, _ := tree.Node(id)
			require.EqualValues(t, i, child.Action)
			require.Equal(t, History{i}, child.History)
		}
	})

	t.Run("expanding only once", func(t *testing.T) {
		tree := NewTree(nil)
		_, err := tree.ExpandAll(tree.Root(), threeActions)
		require.NoError(t, err)

		expanded, err := tree.ExpandAll(tree.Root(), threeActions)

		require.NoError(t, err)
		require.False(t, expanded)
		require.Equal(t, 4, tree.Size())
	})

	t.Run("letting exactly one concurrent expander win", func(t *testing.T) {
		tree := NewTree(nil)
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				expanded, err := tree.ExpandAll(tree.Root(), threeActions)
				require.NoError(t, err)
				if expanded {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, wins)
		require.Equal(t, 4, tree.Size(), "Each action should have exactly one child")
	})
}

func TestTreeInsert(t *testing.T) {
	tree := NewTree(nil)
	_, err := tree.ExpandAll(tree.Root(), threeActions)
	require.NoError(t, err)

	t.Run("branching an action node on an observation", func(t *testing.T) {
		id, err := tree.Insert(History{2, 5})

		require.NoError(t, err)
		n, _ := tree.Node(id)
		require.Equal(t, BeliefNode, n.Kind)
		require.EqualValues(t, 2, n.Action, "Belief nodes remember the action leading into them")
		parent, _ := tree.Node(n.Parent)
		require.Equal(t, History{2}, parent.History)
		require.Contains(t, parent.Children, id)
	})

	t.Run("returning the existing node", func(t *testing.T) {
		first, err := tree.Insert(History{1, 0})
		require.NoError(t, err)
		size := tree.Size()

		second, err := tree.Insert(History{1, 0})

		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, size, tree.Size())
	})

	t.Run("failing without an action node", func(t *testing.T) {
		_, err := tree.Insert(History{2, 5, 1, 1})
		var invariant *InvariantError
		require.True(t, errors.As(err, &invariant))
	})
}

func TestTreeSelect(t *testing.T) {
	setup := func(t *testing.T) (*Tree, []NodeID) {
		tree := NewTree(nil)
		_, err := tree.ExpandAll(tree.Root(), threeActions)
		require.NoError(t, err)
		root, _ := tree.Node(tree.Root())
		return tree, root.Children
	}

	t.Run("trying unvisited children first", func(t *testing.T) {
		tree, children := setup(t)
		tree.Update(tree.Root(), children[0], 100)

		got, action := tree.Select(tree.Root(), 0)

		require.Equal(t, children[1], got, "First unvisited child should win over any score")
		require.EqualValues(t, 1, action)
	})

	t.Run("picking the first child when none is visited", func(t *testing.T) {
		tree, children := setup(t)

		got, _ := tree.Select(tree.Root(), 1)

		require.Equal(t, children[0], got)
	})

	t.Run("ranking visited children by UCB1", func(t *testing.T) {
		tree, children := setup(t)
		tree.Update(tree.Root(), children[0], 1)
		tree.Update(tree.Root(), children[0], 1)
		tree.Update(tree.Root(), children[1], 0)
		tree.Update(tree.Root(), children[2], 0.5)

		exploit, _ := tree.Select(tree.Root(), 0)
		explore, _ := tree.Select(tree.Root(), 2)

		require.Equal(t, children[0], exploit, "Without exploration the best mean should win")
		require.Equal(t, children[2], explore, "Exploration should favor the less visited child")
	})

	t.Run("panicking on a childless node", func(t *testing.T) {
		tree := NewTree(nil)
		require.Panics(t, func() { tree.Select(tree.Root(), 1) })
	})
}

func TestTreeUpdate(t *testing.T) {
	tree := NewTree(nil)
	child, err := tree.Expand(tree.Root(), 0, History{0})
	require.NoError(t, err)

	for _, ret := range []float64{2, 4, 9} {
		tree.Update(tree.Root(), child, ret)
	}

	root, _ := tree.Node(tree.Root())
	got, _ := tree.Node(child)
	require.Equal(t, 3, root.Visits)
	require.Equal(t, 3, got.Visits)
	require.InDelta(t, 5.0, got.Value, 1e-12, "Value should be the running mean of returns")
}

func TestTreePrune(t *testing.T) {
	tree := NewTree(nil)
	_, err := tree.ExpandAll(tree.Root(), []pomdp.Action{0, 1})
	require.NoError(t, err)
	keep, err := tree.Insert(History{0, 5})
	require.NoError(t, err)
	_, err = tree.Insert(History{0, 6})
	require.NoError(t, err)
	_, err = tree.Insert(History{1, 3})
	require.NoError(t, err)
	_, err = tree.ExpandAll(keep, []pomdp.Action{0, 1})
	require.NoError(t, err)
	deep, err := tree.Insert(History{0, 5, 1, 2})
	require.NoError(t, err)
	deepNode, _ := tree.Node(deep)
	tree.Update(keep, deepNode.Parent, -3)
	before := tree.Size()

	require.NoError(t, tree.Prune(keep))

	root, _ := tree.Node(tree.Root())
	require.Equal(t, History{0, 5}, root.History)
	require.Equal(t, NoNode, root.Parent)
	require.Equal(t, 1, root.Visits, "Statistics should survive re-rooting")
	require.Less(t, tree.Size(), before)
	require.Equal(t, 4, tree.Size())
	for id := 0; id < tree.Size(); id++ {
		n, ok := tree.Node(NodeID(id))
		require.True(t, ok)
		require.True(t, n.History.HasPrefix(root.History), "Node %v should be below the new root", n.History)
		if n.Parent != NoNode {
			parent, _ := tree.Node(n.Parent)
			require.Contains(t, parent.Children, NodeID(id))
		}
	}
	_, ok := tree.Find(History{1, 3})
	require.False(t, ok)
	_, ok = tree.Find(History{0, 6})
	require.False(t, ok)
	id, ok := tree.Find(History{0, 5, 1, 2})
	require.True(t, ok)
	n, _ := tree.Node(id)
	require.Equal(t, History{0, 5, 1, 2}, n.History)
}

func TestUCB1(t *testing.T) {
	require.True(t, math.IsInf(ucb1(0, 0, 1, math.Log(10)), 1))
	require.InDelta(t, 0.5+2*math.Sqrt(math.Log(16)/4), ucb1(0.5, 4, 2, math.Log(16)), 1e-12)
}
