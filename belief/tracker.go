package belief

import (
	"fmt"

	"pomcp/pomdp"

	"golang.org/x/exp/rand"
)

// Tracker owns the agent's belief and refreshes it after each real step.
type Tracker struct {
	model  pomdp.Model
	belief Belief
}

// NewTracker starts from initial, or from the uniform belief when initial is
// nil.
func NewTracker(m pomdp.Model, initial Belief) (*Tracker, error) {
	t := &Tracker{model: m}
	if initial == nil {
		if err := t.Initialize(); err != nil {
			return nil, err
		}
		return t, nil
	}
	if err := initial.Validate(m.NumStates()); err != nil {
		return nil, fmt.Errorf("initial belief: %w", err)
	}
	t.belief = initial.Clone()
	return t, nil
}

// Initialize resets the belief to uniform over the model's states.
func (t *Tracker) Initialize() error {
	b, err := Uniform(t.model.NumStates())
	if err != nil {
		return err
	}
	t.belief = b
	return nil
}

// Update replaces the belief with its posterior after (a, z). On error the
// previous belief is kept and the caller picks the recovery.
func (t *Tracker) Update(a pomdp.Action, z pomdp.Observation) error {
	posterior, err := Posterior(t.model, t.belief, a, z)
	if err != nil {
		return err
	}
	t.belief = posterior
	return nil
}

func (t *Tracker) Sample(rng *rand.Rand) (pomdp.State, error) {
	return t.belief.Sample(rng)
}

// Belief returns the current belief. The vector is replaced, never mutated,
// on update so it is safe to keep as a snapshot.
func (t *Tracker) Belief() Belief {
	return t.belief
}
