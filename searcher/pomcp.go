package searcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"pomcp/belief"
	"pomcp/experiments/metrics"
	"pomcp/pomdp"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// Environment is the real world the agent acts in.
type Environment interface {
	Step(a pomdp.Action) (reward float64, z pomdp.Observation, done bool, err error)
}

// Step describes one executed real action.
type Step struct {
	Action      pomdp.Action
	Observation pomdp.Observation
	Reward      float64
	Done        bool
	TreeReused  bool // Whether the tree was re-rooted rather than reset after the step
	Search      metrics.SearchMetric
}

// ActionStat is the root's statistics for one action.
type ActionStat struct {
	Action pomdp.Action
	Visits int
	Value  float64
}

// POMCP plans online for one agent: a belief over hidden states, a search
// tree rooted at the real history, and the real history itself.
type POMCP struct {
	model   pomdp.Generative
	env     Environment
	actions []pomdp.Action
	tracker *belief.Tracker
	tree    *Tree
	history History

	goroutines  int
	duration    time.Duration
	episodes    int
	discount    float64
	exploration float64
	epsilon     float64
	maxDepth    int
	horizon     int
	seed        uint64
	policy      RolloutPolicy
	initial     belief.Belief
	metrics     metrics.Collector

	rng       *rand.Rand
	treeReset bool
	steps     int
	scale     float64 // discount^steps
	total     float64
	done      bool
}

// NewPOMCP returns a planner for model acting in env, starting from the
// uniform belief unless WithInitialBelief says otherwise.
func NewPOMCP(model pomdp.Generative, env Environment, options ...Option) (*POMCP, error) {
	p := &POMCP{ // Default values
		model:       model,
		env:         env,
		goroutines:  1,
		duration:    DefaultDuration,
		discount:    DefaultDiscount,
		exploration: DefaultExploration,
		epsilon:     DefaultEpsilon,
		seed:        uint64(time.Now().UnixNano()),
		policy:      UniformPolicy{},
		metrics:     metrics.NewDummyCollector(),
	}
	for _, option := range options {
		option(p)
	}
	if model == nil || env == nil {
		return nil, fmt.Errorf("%w: model and environment are required", ErrInvalidOption)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	p.horizon = p.maxDepth
	if p.horizon == 0 {
		horizon, err := Horizon(p.discount, p.epsilon)
		if err != nil {
			return nil, err
		}
		p.horizon = horizon
	}

	tracker, err := belief.NewTracker(model, p.initial)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	p.tracker = tracker
	p.actions = pomdp.Actions(model)
	p.tree = NewTree(nil)
	p.treeReset = true
	p.rng = rand.New(rand.NewSource(p.seed))
	p.scale = 1
	return p, nil
}

// Horizon is the depth at which simulations stop.
func (p *POMCP) Horizon() int { return p.horizon }

// Exploration is the UCB1 coefficient C.
func (p *POMCP) Exploration() float64 { return p.exploration }

// Belief returns the current belief over hidden states.
func (p *POMCP) Belief() belief.Belief { return p.tracker.Belief() }

// History returns the real action/observation history of the episode.
func (p *POMCP) History() History { return p.history }

func (p *POMCP) Tree() *Tree { return p.tree }

// Done reports whether the last real step reached a terminal state.
func (p *POMCP) Done() bool { return p.done }

// TotalDiscountedReward sums the real rewards, each discounted by its step.
func (p *POMCP) TotalDiscountedReward() float64 { return p.total }

// ResetBelief falls back to the uniform belief, e.g. after a degenerate
// update.
func (p *POMCP) ResetBelief() error {
	return p.tracker.Initialize()
}

// Search runs simulations from the current belief until the budget is spent
// and returns the root action with the highest value. At least one simulation
// always runs.
func (p *POMCP) Search(ctx context.Context) (pomdp.Action, metrics.SearchMetric, error) {
	if p.done {
		return 0, metrics.SearchMetric{}, ErrEpisodeDone
	}

	p.metrics.SetTreeReset(p.treeReset)
	p.metrics.Start(p.goroutines, p.horizon)

	// Workers share the tree but get a belief snapshot and their own stream
	snapshot := p.tracker.Belief()
	seeds := make([]uint64, p.goroutines)
	for i := range seeds {
		seeds[i] = p.rng.Uint64()
	}

	var err error
	if p.episodes > 0 {
		err = p.iterate(ctx, snapshot, seeds)
	} else {
		err = p.countdown(ctx, snapshot, seeds)
	}
	metric := p.metrics.Complete(p.tree.Size())
	if err != nil {
		return 0, metric, err
	}

	action := p.BestAction()
	log.Debug().
		Int("episodes", metric.Episodes).
		Dur("duration", metric.Duration).
		Int("tree", metric.TreeSize).
		Int("action", int(action)).
		Msg("search complete")
	return action, metric, nil
}

func (p *POMCP) iterate(ctx context.Context, b belief.Belief, seeds []uint64) error {
	var claimed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for _, seed := range seeds {
		rng := rand.New(rand.NewSource(seed))
		g.Go(func() error {
			for claimed.Add(1) <= int64(p.episodes) {
				if err := p.episode(rng, b); err != nil {
					return err
				}
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *POMCP) countdown(ctx context.Context, b belief.Belief, seeds []uint64) error {
	deadline := time.Now().Add(p.duration)
	g, ctx := errgroup.WithContext(ctx)
	for _, seed := range seeds {
		rng := rand.New(rand.NewSource(seed))
		g.Go(func() error {
			for {
				if err := p.episode(rng, b); err != nil {
					return err
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if !time.Now().Before(deadline) {
					return nil
				}
			}
		})
	}
	return g.Wait()
}

func (p *POMCP) episode(rng *rand.Rand, b belief.Belief) error {
	state, err := b.Sample(rng)
	if err != nil {
		return err
	}
	if _, err := p.simulate(rng, state, p.history, b, 0); err != nil {
		return err
	}
	p.metrics.AddEpisode()
	return nil
}

// simulate descends the tree from h by UCB1, grows it by one belief node and
// finishes the trajectory with a rollout. It returns the discounted return
// from depth.
func (p *POMCP) simulate(rng *rand.Rand, state pomdp.State, h History, b belief.Belief, depth int) (float64, error) {
	if depth >= p.horizon || pomdp.IsTerminal(p.model, state) {
		return 0, nil
	}

	id, ok := p.tree.Find(h)
	if !ok {
		var err error
		if id, err = p.tree.Insert(h); err != nil {
			panic(err)
		}
	}
	expanded, err := p.tree.ExpandAll(id, p.actions)
	if err != nil {
		panic(err)
	}
	if expanded {
		return p.rollout(rng, state, b, depth)
	}

	child, action := p.tree.Select(id, p.exploration)
	next, z, reward, err := p.model.Sample(state, action, rng)
	if err != nil {
		return 0, err
	}
	// Trajectories carry a private belief; the shared snapshot is never touched.
	// A simulated step that underflows keeps the previous belief.
	posterior, err := belief.Posterior(p.model, b, action, z)
	if errors.Is(err, belief.ErrDegenerateBelief) {
		posterior = b
	} else if err != nil {
		return 0, err
	}
	future, err := p.simulate(rng, next, h.Extend(action, z), posterior, depth+1)
	if err != nil {
		return 0, err
	}

	ret := reward + p.discount*future
	p.tree.Update(id, child, ret)
	return ret, nil
}

// rollout estimates the return from depth by following the rollout policy
// without touching the tree.
func (p *POMCP) rollout(rng *rand.Rand, state pomdp.State, b belief.Belief, depth int) (float64, error) {
	ret := 0.0
	scale := 1.0
	for ; depth < p.horizon; depth++ {
		if pomdp.IsTerminal(p.model, state) { // Terminal before the horizon
			p.metrics.AddFullPlayout()
			return ret, nil
		}
		action := p.policy.Choose(b, p.actions, rng)
		next, _, reward, err := p.model.Sample(state, action, rng)
		if err != nil {
			return 0, err
		}
		ret += scale * reward
		scale *= p.discount
		state = next
	}
	return ret, nil
}

// BestAction returns the visited root action with the highest value, the
// first in action order on ties. Before any root action has been visited it
// returns the first action.
func (p *POMCP) BestAction() pomdp.Action {
	best := -1
	stats := p.Policy()
	for i, s := range stats {
		if s.Visits == 0 {
			continue
		}
		if best < 0 || s.Value > stats[best].Value {
			best = i
		}
	}
	if best < 0 {
		return p.actions[0]
	}
	return stats[best].Action
}

// Policy returns the root's per-action statistics in action order.
func (p *POMCP) Policy() []ActionStat {
	root, _ := p.tree.Node(p.tree.Root())
	stats := make([]ActionStat, 0, len(p.actions))
	for _, id := range root.Children {
		child, ok := p.tree.Node(id)
		if !ok {
			continue
		}
		stats = append(stats, ActionStat{Action: child.Action, Visits: child.Visits, Value: child.Value})
	}
	if len(stats) == 0 {
		for _, a := range p.actions {
			stats = append(stats, ActionStat{Action: a})
		}
	}
	return stats
}

// TakeAction searches, executes the best action in the environment, then
// advances the history, re-roots the tree and updates the belief. A belief
// error is returned with the completed step; the previous belief is kept.
func (p *POMCP) TakeAction(ctx context.Context) (Step, error) {
	action, metric, err := p.Search(ctx)
	if err != nil {
		return Step{}, err
	}

	reward, z, done, err := p.env.Step(action)
	if err != nil {
		return Step{}, fmt.Errorf("environment step with action %d: %w", action, err)
	}

	p.total += p.scale * reward
	p.scale *= p.discount
	p.steps++
	p.history = p.history.Extend(action, z)
	p.done = done

	step := Step{
		Action:      action,
		Observation: z,
		Reward:      reward,
		Done:        done,
		TreeReused:  p.reroot(),
		Search:      metric,
	}

	if err := p.tracker.Update(action, z); err != nil {
		return step, fmt.Errorf("update belief after action %d observation %d: %w", action, z, err)
	}
	return step, nil
}

// reroot keeps the subtree for the new real history, or starts a fresh tree
// when the executed branch was never simulated.
func (p *POMCP) reroot() bool {
	id, ok := p.tree.Find(p.history)
	if !ok {
		log.Debug().Msgf("history %v not in tree, resetting", p.history)
		p.tree.Reset(p.history)
		p.treeReset = true
		return false
	}
	if err := p.tree.Prune(id); err != nil {
		panic(err)
	}
	p.treeReset = false
	return true
}
