package pomdp

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Generator samples steps from a Model by inverse-CDF draws over its tables,
// so the planner's simulator and its belief filter share one model.
type Generator struct {
	Model
}

func NewGenerator(m Model) Generator {
	return Generator{Model: m}
}

// Sample draws next from P(. | s, a), then z from P(. | a, next), and returns
// the reward R(s, a).
func (g Generator) Sample(s State, a Action, rng *rand.Rand) (State, Observation, float64, error) {
	next, err := Draw(rng, g.NumStates(), func(i int) (float64, error) {
		return g.TransitionProb(s, a, State(i))
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("sample next state (state=%d, action=%d): %w", s, a, err)
	}
	z, err := Draw(rng, g.NumObservations(), func(i int) (float64, error) {
		return g.ObservationProb(a, State(next), Observation(i))
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("sample observation (action=%d, state=%d): %w", a, next, err)
	}
	reward, err := g.Reward(s, a)
	if err != nil {
		return 0, 0, 0, err
	}
	return State(next), Observation(z), reward, nil
}

func (g Generator) IsTerminal(s State) bool {
	return IsTerminal(g.Model, s)
}

// Draw picks an index in [0, n) with probability proportional to weight(i).
// Rounding slack at the top of the CDF falls back to the last index with
// positive weight.
func Draw(rng *rand.Rand, n int, weight func(i int) (float64, error)) (int, error) {
	u := rng.Float64()
	cumulative := 0.0
	last := -1
	for i := 0; i < n; i++ {
		w, err := weight(i)
		if err != nil {
			return 0, err
		}
		if w <= 0 {
			continue
		}
		last = i
		cumulative += w
		if u < cumulative {
			return i, nil
		}
	}
	if last < 0 {
		return 0, fmt.Errorf("%w: no positive weight", ErrInvalidDistribution)
	}
	return last, nil
}
