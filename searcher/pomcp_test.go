package searcher

import (
	"context"
	"testing"

	"pomcp/belief"
	"pomcp/experiments/metrics"
	"pomcp/pomdp"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// banditModel has three fully observed states that never change. Action 0
// pays 1 and action 1 pays nothing.
func banditModel(t *testing.T) pomdp.Generator {
	t.Helper()
	tables, err := pomdp.NewTables(3, 2, 3)
	require.NoError(t, err)
	for s := 0; s < 3; s++ {
		for a := 0; a < 2; a++ {
			require.NoError(t, tables.SetTransition(pomdp.State(s), pomdp.Action(a), pomdp.State(s), 1))
			require.NoError(t, tables.SetObservation(pomdp.Action(a), pomdp.State(s), pomdp.Observation(s), 1))
		}
		require.NoError(t, tables.SetReward(pomdp.State(s), 0, 1))
	}
	require.NoError(t, tables.Validate())
	return pomdp.NewGenerator(tables)
}

// terminalModel moves from state 0 into the terminal state 1 under either
// action. Action 0 costs 1 and action 1 costs 2.
func terminalModel(t *testing.T) pomdp.Generator {
	t.Helper()
	tables, err := pomdp.NewTables(2, 2, 1)
	require.NoError(t, err)
	for s := 0; s < 2; s++ {
		for a := 0; a < 2; a++ {
			require.NoError(t, tables.SetTransition(pomdp.State(s), pomdp.Action(a), 1, 1))
			require.NoError(t, tables.SetObservation(pomdp.Action(a), pomdp.State(s), 0, 1))
		}
	}
	require.NoError(t, tables.SetReward(0, 0, -1))
	require.NoError(t, tables.SetReward(0, 1, -2))
	require.NoError(t, tables.SetTerminal(1, true))
	require.NoError(t, tables.Validate())
	return pomdp.NewGenerator(tables)
}

// firstAction makes rollouts deterministic.
var firstAction = RolloutPolicyFunc(func(_ belief.Belief, actions []pomdp.Action, _ *rand.Rand) pomdp.Action {
	return actions[0]
})

type stubEnv struct {
	gen     pomdp.Generator
	state   pomdp.State
	rng     *rand.Rand
	observe func(z pomdp.Observation) pomdp.Observation
}

func newStubEnv(gen pomdp.Generator, state pomdp.State, seed uint64) *stubEnv {
	return &stubEnv{gen: gen, state: state, rng: rand.New(rand.NewSource(seed))}
}

func (e *stubEnv) Step(a pomdp.Action) (float64, pomdp.Observation, bool, error) {
	next, z, reward, err := e.gen.Sample(e.state, a, e.rng)
	if err != nil {
		return 0, 0, false, err
	}
	e.state = next
	if e.observe != nil {
		z = e.observe(z)
	}
	return reward, z, e.gen.IsTerminal(next), nil
}

func rootVisits(t *testing.T, p *POMCP) (int, int) {
	t.Helper()
	root, ok := p.Tree().Node(p.Tree().Root())
	require.True(t, ok)
	children := 0
	for _, stat := range p.Policy() {
		children += stat.Visits
	}
	return root.Visits, children
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("running at least one simulation with no budget", func(t *testing.T) {
		model := banditModel(t)
		p, err := NewPOMCP(model, newStubEnv(model, 0, 1), WithDuration(0), WithMetrics(nil), WithSeed(1))
		require.NoError(t, err)

		action, metric, err := p.Search(ctx)

		require.NoError(t, err)
		require.GreaterOrEqual(t, metric.Episodes, 1)
		require.Contains(t, []pomdp.Action{0, 1}, action)
		require.Greater(t, p.Tree().Size(), 1, "The root should have been expanded")
	})

	t.Run("preferring the rewarding action", func(t *testing.T) {
		model := banditModel(t)
		p, err := NewPOMCP(model, newStubEnv(model, 0, 1), WithEpisodes(500), WithMetrics(nil),
			WithRolloutPolicy(firstAction), WithSeed(2))
		require.NoError(t, err)

		action, metric, err := p.Search(ctx)

		require.NoError(t, err)
		require.EqualValues(t, 0, action)
		require.Equal(t, 500, metric.Episodes)
		require.True(t, metric.IsTreeReset)
		root, children := rootVisits(t, p)
		require.Equal(t, 499, root, "The expanding simulation backs up nothing")
		require.Equal(t, root, children)
		stats := p.Policy()
		require.Greater(t, stats[0].Value, stats[1].Value)
	})

	t.Run("repeating itself under the same seed", func(t *testing.T) {
		model := banditModel(t)
		run := func() (pomdp.Action, []ActionStat, int) {
			p, err := NewPOMCP(model, newStubEnv(model, 0, 1), WithEpisodes(200), WithSeed(7), WithExploration(4))
			require.NoError(t, err)
			action, _, err := p.Search(ctx)
			require.NoError(t, err)
			return action, p.Policy(), p.Tree().Size()
		}

		a1, stats1, size1 := run()
		a2, stats2, size2 := run()

		require.Equal(t, a1, a2)
		require.Equal(t, stats1, stats2)
		require.Equal(t, size1, size2)
	})

	t.Run("sharing one tree across goroutines", func(t *testing.T) {
		model := banditModel(t)
		p, err := NewPOMCP(model, newStubEnv(model, 0, 1), WithEpisodes(400), WithGoroutines(4), WithMetrics(nil),
			WithRolloutPolicy(firstAction), WithSeed(3))
		require.NoError(t, err)

		action, metric, err := p.Search(ctx)

		require.NoError(t, err)
		require.EqualValues(t, 0, action)
		require.Equal(t, 400, metric.Episodes)
		require.Equal(t, 4, metric.Goroutines)
		root, children := rootVisits(t, p)
		require.Equal(t, 399, root)
		require.Equal(t, root, children)
	})

	t.Run("counting rollouts that end in a terminal state", func(t *testing.T) {
		model := terminalModel(t)
		p, err := NewPOMCP(model, newStubEnv(model, 0, 1), WithEpisodes(10), WithMetrics(nil),
			WithInitialBelief(belief.Belief{1, 0}), WithSeed(4))
		require.NoError(t, err)

		_, metric, err := p.Search(ctx)

		require.NoError(t, err)
		require.GreaterOrEqual(t, metric.FullPlayouts, 1)
	})

	t.Run("handing the frontier belief to the rollout policy", func(t *testing.T) {
		model := banditModel(t)
		var seen []belief.Belief
		policy := RolloutPolicyFunc(func(b belief.Belief, actions []pomdp.Action, _ *rand.Rand) pomdp.Action {
			seen = append(seen, b.Clone())
			return actions[0]
		})
		p, err := NewPOMCP(model, newStubEnv(model, 0, 1), WithEpisodes(1), WithMaxDepth(3), WithDiscount(1),
			WithRolloutPolicy(policy), WithInitialBelief(belief.Belief{0, 1, 0}), WithSeed(5))
		require.NoError(t, err)

		_, _, err = p.Search(ctx)

		require.NoError(t, err)
		require.Len(t, seen, 3)
		require.Equal(t, belief.Belief{0, 1, 0}, seen[0])
	})

	t.Run("stopping on a cancelled context", func(t *testing.T) {
		model := banditModel(t)
		p, err := NewPOMCP(model, newStubEnv(model, 0, 1), WithEpisodes(1000), WithSeed(6))
		require.NoError(t, err)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, _, err = p.Search(cancelled)

		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestBestAction(t *testing.T) {
	model := banditModel(t)
	newPlanner := func(t *testing.T) *POMCP {
		p, err := NewPOMCP(model, newStubEnv(model, 0, 1), WithSeed(1))
		require.NoError(t, err)
		return p
	}

	t.Run("falling back to the first action before any search", func(t *testing.T) {
		p := newPlanner(t)
		require.EqualValues(t, 0, p.BestAction())
		require.Equal(t, []ActionStat{{Action: 0}, {Action: 1}}, p.Policy())
	})

	t.Run("ignoring unvisited actions", func(t *testing.T) {
		p := newPlanner(t)
		_, err := p.Tree().ExpandAll(p.Tree().Root(), pomdp.Actions(model))
		require.NoError(t, err)
		root, _ := p.Tree().Node(p.Tree().Root())
		p.Tree().Update(root.ID, root.Children[1], -1)

		require.EqualValues(t, 1, p.BestAction(), "An unvisited value of 0 must not beat a real estimate")
	})

	t.Run("breaking ties by action order", func(t *testing.T) {
		p := newPlanner(t)
		_, err := p.Tree().ExpandAll(p.Tree().Root(), pomdp.Actions(model))
		require.NoError(t, err)
		root, _ := p.Tree().Node(p.Tree().Root())
		p.Tree().Update(root.ID, root.Children[1], 2)
		p.Tree().Update(root.ID, root.Children[0], 2)

		require.EqualValues(t, 0, p.BestAction())
	})
}

func TestTakeAction(t *testing.T) {
	ctx := context.Background()

	t.Run("advancing the history and re-rooting the tree", func(t *testing.T) {
		model := banditModel(t)
		collector := metrics.NewCollector()
		p, err := NewPOMCP(model, newStubEnv(model, 1, 1), WithEpisodes(300), WithMetrics(collector),
			WithRolloutPolicy(firstAction), WithSeed(8))
		require.NoError(t, err)

		step, err := p.TakeAction(ctx)

		require.NoError(t, err)
		require.EqualValues(t, 0, step.Action)
		require.EqualValues(t, 1, step.Observation)
		require.Equal(t, 1.0, step.Reward)
		require.True(t, step.TreeReused)
		require.Equal(t, History{0, 1}, p.History())
		root, _ := p.Tree().Node(p.Tree().Root())
		require.Equal(t, History{0, 1}, root.History)
		require.Equal(t, belief.Belief{0, 1, 0}, p.Belief())
		for id := 0; id < p.Tree().Size(); id++ {
			n, _ := p.Tree().Node(NodeID(id))
			require.True(t, n.History.HasPrefix(p.History()))
		}

		step, err = p.TakeAction(ctx)

		require.NoError(t, err)
		require.False(t, step.Search.IsTreeReset)
		require.InDelta(t, 1+DefaultDiscount, p.TotalDiscountedReward(), 1e-12)
		require.Equal(t, History{0, 1, 0, 1}, p.History())
	})

	t.Run("refusing to act after a terminal step", func(t *testing.T) {
		model := terminalModel(t)
		p, err := NewPOMCP(model, newStubEnv(model, 0, 1), WithEpisodes(50), WithInitialBelief(belief.Belief{1, 0}), WithSeed(9))
		require.NoError(t, err)

		step, err := p.TakeAction(ctx)
		require.NoError(t, err)
		require.True(t, step.Done)
		require.True(t, p.Done())
		require.EqualValues(t, 0, step.Action, "The cheaper action should win")
		require.Equal(t, -1.0, p.TotalDiscountedReward())

		_, err = p.TakeAction(ctx)
		require.ErrorIs(t, err, ErrEpisodeDone)
		_, _, err = p.Search(ctx)
		require.ErrorIs(t, err, ErrEpisodeDone)
	})

	t.Run("reporting impossible observations", func(t *testing.T) {
		model := banditModel(t)
		env := newStubEnv(model, 0, 1)
		env.observe = func(pomdp.Observation) pomdp.Observation { return 2 }
		p, err := NewPOMCP(model, env, WithEpisodes(50), WithInitialBelief(belief.Belief{1, 0, 0}), WithSeed(10))
		require.NoError(t, err)

		step, err := p.TakeAction(ctx)

		require.ErrorIs(t, err, belief.ErrDegenerateBelief)
		require.EqualValues(t, 2, step.Observation, "The executed step is still reported")
		require.False(t, step.TreeReused, "The observed branch was never simulated")
		require.Equal(t, belief.Belief{1, 0, 0}, p.Belief(), "The prior belief should be kept")

		require.NoError(t, p.ResetBelief())
		require.Equal(t, belief.Belief{1.0 / 3, 1.0 / 3, 1.0 / 3}, p.Belief())
	})
}
