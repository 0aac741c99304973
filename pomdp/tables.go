package pomdp

import (
	"fmt"
	"math"
)

// Tolerance bounds the deviation from 1 accepted for a distribution.
const Tolerance = 1e-9

// Tables is a dense Model backed by three flat tables indexed by
// (state, action, next), (action, next, observation) and (state, action).
type Tables struct {
	states       int
	actions      int
	observations int
	transitions  []float64
	observes     []float64
	rewards      []float64
	terminal     []bool
}

func NewTables(states, actions, observations int) (*Tables, error) {
	if states <= 0 || actions <= 0 || observations <= 0 {
		return nil, fmt.Errorf("%w: tables need positive dimensions, got states=%d actions=%d observations=%d",
			ErrInvalidIndex, states, actions, observations)
	}
	return &Tables{
		states:       states,
		actions:      actions,
		observations: observations,
		transitions:  make([]float64, states*actions*states),
		observes:     make([]float64, actions*states*observations),
		rewards:      make([]float64, states*actions),
		terminal:     make([]bool, states),
	}, nil
}

func (t *Tables) NumStates() int       { return t.states }
func (t *Tables) NumActions() int      { return t.actions }
func (t *Tables) NumObservations() int { return t.observations }

func (t *Tables) checkState(s State) error {
	if s < 0 || int(s) >= t.states {
		return fmt.Errorf("%w: state %d not in [0, %d)", ErrInvalidIndex, s, t.states)
	}
	return nil
}

func (t *Tables) checkAction(a Action) error {
	if a < 0 || int(a) >= t.actions {
		return fmt.Errorf("%w: action %d not in [0, %d)", ErrInvalidIndex, a, t.actions)
	}
	return nil
}

func (t *Tables) checkObservation(z Observation) error {
	if z < 0 || int(z) >= t.observations {
		return fmt.Errorf("%w: observation %d not in [0, %d)", ErrInvalidIndex, z, t.observations)
	}
	return nil
}

func (t *Tables) transitionIndex(s State, a Action, next State) (int, error) {
	if err := t.checkState(s); err != nil {
		return 0, err
	}
	if err := t.checkAction(a); err != nil {
		return 0, err
	}
	if err := t.checkState(next); err != nil {
		return 0, err
	}
	return (int(s)*t.actions+int(a))*t.states + int(next), nil
}

func (t *Tables) observationIndex(a Action, next State, z Observation) (int, error) {
	if err := t.checkAction(a); err != nil {
		return 0, err
	}
	if err := t.checkState(next); err != nil {
		return 0, err
	}
	if err := t.checkObservation(z); err != nil {
		return 0, err
	}
	return (int(a)*t.states+int(next))*t.observations + int(z), nil
}

func (t *Tables) rewardIndex(s State, a Action) (int, error) {
	if err := t.checkState(s); err != nil {
		return 0, err
	}
	if err := t.checkAction(a); err != nil {
		return 0, err
	}
	return int(s)*t.actions + int(a), nil
}

func (t *Tables) SetTransition(s State, a Action, next State, p float64) error {
	i, err := t.transitionIndex(s, a, next)
	if err != nil {
		return err
	}
	t.transitions[i] = p
	return nil
}

func (t *Tables) SetObservation(a Action, next State, z Observation, p float64) error {
	i, err := t.observationIndex(a, next, z)
	if err != nil {
		return err
	}
	t.observes[i] = p
	return nil
}

func (t *Tables) SetReward(s State, a Action, r float64) error {
	i, err := t.rewardIndex(s, a)
	if err != nil {
		return err
	}
	t.rewards[i] = r
	return nil
}

// SetTerminal marks s as an absorbing state that ends an episode.
func (t *Tables) SetTerminal(s State, terminal bool) error {
	if err := t.checkState(s); err != nil {
		return err
	}
	t.terminal[s] = terminal
	return nil
}

func (t *Tables) TransitionProb(s State, a Action, next State) (float64, error) {
	i, err := t.transitionIndex(s, a, next)
	if err != nil {
		return 0, err
	}
	return t.transitions[i], nil
}

func (t *Tables) ObservationProb(a Action, next State, z Observation) (float64, error) {
	i, err := t.observationIndex(a, next, z)
	if err != nil {
		return 0, err
	}
	return t.observes[i], nil
}

func (t *Tables) Reward(s State, a Action) (float64, error) {
	i, err := t.rewardIndex(s, a)
	if err != nil {
		return 0, err
	}
	return t.rewards[i], nil
}

func (t *Tables) IsTerminal(s State) bool {
	return s >= 0 && int(s) < t.states && t.terminal[s]
}

// Validate checks that every transition row P(. | s, a) and every observation
// row P(. | a, next) is a probability distribution.
func (t *Tables) Validate() error {
	for s := 0; s < t.states; s++ {
		for a := 0; a < t.actions; a++ {
			start := (s*t.actions + a) * t.states
			if err := checkRow(t.transitions[start : start+t.states]); err != nil {
				return fmt.Errorf("transition row (state=%d, action=%d): %w", s, a, err)
			}
		}
	}
	for a := 0; a < t.actions; a++ {
		for s := 0; s < t.states; s++ {
			start := (a*t.states + s) * t.observations
			if err := checkRow(t.observes[start : start+t.observations]); err != nil {
				return fmt.Errorf("observation row (action=%d, state=%d): %w", a, s, err)
			}
		}
	}
	return nil
}

func checkRow(row []float64) error {
	sum := 0.0
	for i, p := range row {
		if p < 0 || math.IsNaN(p) {
			return fmt.Errorf("%w: entry %d is %v", ErrInvalidDistribution, i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > Tolerance {
		return fmt.Errorf("%w: sums to %v", ErrInvalidDistribution, sum)
	}
	return nil
}
