package searcher

import (
	"fmt"
	"math"
	"time"

	"pomcp/belief"
	"pomcp/experiments/metrics"
)

// Hyperparameter defaults
const (
	DefaultDuration    = 100 * time.Millisecond
	DefaultDiscount    = 0.95
	DefaultExploration = 1.0
	DefaultEpsilon     = 0.005
)

type Option func(p *POMCP)

// WithDuration bounds each search by wall-clock time. The budget is checked
// between simulations, so a zero budget still runs one.
func WithDuration(duration time.Duration) Option {
	return func(p *POMCP) {
		p.duration = duration
	}
}

// WithEpisodes runs a fixed number of simulations per search instead of a
// time budget.
func WithEpisodes(episodes int) Option {
	return func(p *POMCP) {
		p.episodes = episodes
	}
}

func WithGoroutines(goroutines int) Option {
	return func(p *POMCP) {
		p.goroutines = goroutines
	}
}

func WithDiscount(discount float64) Option {
	return func(p *POMCP) {
		p.discount = discount
	}
}

// WithExploration sets the UCB1 coefficient C.
func WithExploration(c float64) Option {
	return func(p *POMCP) {
		p.exploration = c
	}
}

// WithEpsilon sets the tolerance of the horizon: trajectories stop once
// discount^depth < epsilon.
func WithEpsilon(epsilon float64) Option {
	return func(p *POMCP) {
		p.epsilon = epsilon
	}
}

// WithMaxDepth fixes the horizon, overriding the one derived from epsilon.
func WithMaxDepth(depth int) Option {
	return func(p *POMCP) {
		p.maxDepth = depth
	}
}

func WithSeed(seed uint64) Option {
	return func(p *POMCP) {
		p.seed = seed
	}
}

func WithRolloutPolicy(policy RolloutPolicy) Option {
	return func(p *POMCP) {
		if policy != nil {
			p.policy = policy
		}
	}
}

func WithInitialBelief(b belief.Belief) Option {
	return func(p *POMCP) {
		p.initial = b
	}
}

func WithMetrics(collector metrics.Collector) Option {
	return func(p *POMCP) {
		if collector == nil {
			collector = metrics.NewCollector()
		}
		p.metrics = collector
	}
}

func (p *POMCP) validate() error {
	switch {
	case p.goroutines < 1:
		return fmt.Errorf("%w: goroutines must be >= 1, got %d", ErrInvalidOption, p.goroutines)
	case p.episodes < 0:
		return fmt.Errorf("%w: episodes must be >= 0, got %d", ErrInvalidOption, p.episodes)
	case p.duration < 0:
		return fmt.Errorf("%w: duration must be >= 0, got %v", ErrInvalidOption, p.duration)
	case !(p.discount > 0 && p.discount <= 1):
		return fmt.Errorf("%w: discount must be in (0, 1], got %v", ErrInvalidOption, p.discount)
	case !(p.exploration >= 0):
		return fmt.Errorf("%w: exploration must be >= 0, got %v", ErrInvalidOption, p.exploration)
	case p.maxDepth < 0:
		return fmt.Errorf("%w: max depth must be >= 0, got %d", ErrInvalidOption, p.maxDepth)
	case p.maxDepth == 0 && !(p.epsilon > 0 && p.epsilon < 1):
		return fmt.Errorf("%w: epsilon must be in (0, 1), got %v", ErrInvalidOption, p.epsilon)
	case p.maxDepth == 0 && p.discount == 1:
		return fmt.Errorf("%w: an undiscounted search needs an explicit max depth", ErrInvalidOption)
	}
	return nil
}

// Horizon returns the number of simulated steps d such that the last step
// kept is the first whose weight drops below epsilon: discount^(d-1) < epsilon
// and discount^(d-2) >= epsilon.
func Horizon(discount, epsilon float64) (int, error) {
	if !(discount > 0 && discount < 1) || !(epsilon > 0 && epsilon < 1) {
		return 0, fmt.Errorf("%w: horizon needs discount in (0, 1) and epsilon in (0, 1), got %v and %v",
			ErrInvalidOption, discount, epsilon)
	}
	k := int(math.Ceil(math.Log(epsilon) / math.Log(discount)))
	for k > 0 && math.Pow(discount, float64(k-1)) < epsilon {
		k--
	}
	for math.Pow(discount, float64(k)) >= epsilon {
		k++
	}
	return k + 1, nil
}
