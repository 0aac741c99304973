package pomdp

import (
	"errors"

	"golang.org/x/exp/rand"
)

// State, Action and Observation are dense indices in [0, n).
type State int

type Action int

type Observation int

var (
	ErrInvalidIndex        = errors.New("index out of range")
	ErrInvalidDistribution = errors.New("invalid probability distribution")
)

// Model answers queries against known transition, observation and reward
// functions. Implementations must be pure: planning never mutates them.
type Model interface {
	NumStates() int
	NumActions() int
	NumObservations() int
	// TransitionProb returns P(next | s, a)
	TransitionProb(s State, a Action, next State) (float64, error)
	// ObservationProb returns P(z | a, next), the probability of observing z
	// after taking a and landing in next
	ObservationProb(a Action, next State, z Observation) (float64, error)
	Reward(s State, a Action) (float64, error)
}

// Simulator draws one stochastic step consistent with a Model.
type Simulator interface {
	Sample(s State, a Action, rng *rand.Rand) (next State, z Observation, reward float64, err error)
}

// Generative is a model that can also be sampled from. The planner requires
// both views to come from the same underlying tables.
type Generative interface {
	Model
	Simulator
}

// Terminal is implemented by models with absorbing goal states.
type Terminal interface {
	IsTerminal(s State) bool
}

// Actions enumerates every action of m in index order.
func Actions(m Model) []Action {
	actions := make([]Action, m.NumActions())
	for i := range actions {
		actions[i] = Action(i)
	}
	return actions
}

// IsTerminal reports whether s is terminal under m, false when m has no
// terminal states.
func IsTerminal(m Model, s State) bool {
	if t, ok := m.(Terminal); ok {
		return t.IsTerminal(s)
	}
	return false
}
