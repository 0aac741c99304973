package searcher

import (
	"pomcp/belief"
	"pomcp/pomdp"

	"golang.org/x/exp/rand"
)

// RolloutPolicy picks actions beyond the tree frontier. It sees the simulated
// belief at the frontier, never the hidden state.
type RolloutPolicy interface {
	Choose(b belief.Belief, actions []pomdp.Action, rng *rand.Rand) pomdp.Action
}

type RolloutPolicyFunc func(b belief.Belief, actions []pomdp.Action, rng *rand.Rand) pomdp.Action

func (f RolloutPolicyFunc) Choose(b belief.Belief, actions []pomdp.Action, rng *rand.Rand) pomdp.Action {
	return f(b, actions, rng)
}

// UniformPolicy picks uniformly among legal actions.
type UniformPolicy struct{}

func (UniformPolicy) Choose(_ belief.Belief, actions []pomdp.Action, rng *rand.Rand) pomdp.Action {
	return actions[rng.Intn(len(actions))]
}
