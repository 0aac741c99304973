package belief

import (
	"errors"
	"fmt"
	"math"

	"pomcp/pomdp"

	"golang.org/x/exp/rand"
)

// ErrDegenerateBelief reports an observation that no reachable state could
// have produced under the model.
var ErrDegenerateBelief = errors.New("degenerate belief")

// Belief is a probability vector over states. Values are never mutated once
// built: updates produce a new vector.
type Belief []float64

func Uniform(states int) (Belief, error) {
	if states <= 0 {
		return nil, fmt.Errorf("%w: uniform belief over %d states", pomdp.ErrInvalidIndex, states)
	}
	b := make(Belief, states)
	for i := range b {
		b[i] = 1 / float64(states)
	}
	return b, nil
}

// Validate checks that b has one non-negative entry per state and sums to 1.
func (b Belief) Validate(states int) error {
	if len(b) != states {
		return fmt.Errorf("%w: belief has %d entries for %d states", pomdp.ErrInvalidDistribution, len(b), states)
	}
	sum := 0.0
	for i, p := range b {
		if p < 0 || math.IsNaN(p) {
			return fmt.Errorf("%w: belief entry %d is %v", pomdp.ErrInvalidDistribution, i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > pomdp.Tolerance {
		return fmt.Errorf("%w: belief sums to %v", pomdp.ErrInvalidDistribution, sum)
	}
	return nil
}

func (b Belief) Clone() Belief {
	c := make(Belief, len(b))
	copy(c, b)
	return c
}

// MostLikely returns the state with the highest probability, the lowest index
// on ties.
func (b Belief) MostLikely() (pomdp.State, float64) {
	best := 0
	for i, p := range b {
		if p > b[best] {
			best = i
		}
	}
	return pomdp.State(best), b[best]
}

// Sample draws a state with the belief's probabilities as weights.
func (b Belief) Sample(rng *rand.Rand) (pomdp.State, error) {
	s, err := pomdp.Draw(rng, len(b), func(i int) (float64, error) { return b[i], nil })
	if err != nil {
		return 0, fmt.Errorf("sample belief: %w", err)
	}
	return pomdp.State(s), nil
}

// Posterior applies the discrete Bayes filter to prior after taking a and
// observing z:
//
//	b'(i) ∝ P(z | a, i) · Σ_j P(i | j, a) · b(j)
func Posterior(m pomdp.Model, prior Belief, a pomdp.Action, z pomdp.Observation) (Belief, error) {
	n := m.NumStates()
	if len(prior) != n {
		return nil, fmt.Errorf("%w: prior has %d entries for %d states", pomdp.ErrInvalidIndex, len(prior), n)
	}

	posterior := make(Belief, n)
	normalizer := 0.0
	for i := 0; i < n; i++ {
		likelihood, err := m.ObservationProb(a, pomdp.State(i), z)
		if err != nil {
			return nil, err
		}
		if likelihood == 0 {
			continue
		}
		predicted := 0.0
		for j, p := range prior {
			if p == 0 {
				continue
			}
			tp, err := m.TransitionProb(pomdp.State(j), a, pomdp.State(i))
			if err != nil {
				return nil, err
			}
			predicted += tp * p
		}
		posterior[i] = likelihood * predicted
		normalizer += posterior[i]
	}

	if !(normalizer > 0) || math.IsInf(normalizer, 0) {
		return nil, fmt.Errorf("%w: observation %d after action %d has normalizer %v", ErrDegenerateBelief, z, a, normalizer)
	}
	for i := range posterior {
		posterior[i] /= normalizer
	}
	return posterior, nil
}
