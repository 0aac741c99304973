package experiments

import (
	"time"

	"pomcp/experiments/metrics"
	"pomcp/searcher"
)

// ThroughputConfigs doubles the goroutines from 1 up to maxGoroutines under
// the same time budget, to measure simulations per search against
// parallelism.
func ThroughputConfigs(maxGoroutines int, duration time.Duration) []metrics.PlannerConfig {
	configs := []metrics.PlannerConfig{}
	for id, goroutines := 1, 1; goroutines <= maxGoroutines; id, goroutines = id+1, goroutines*2 {
		configs = append(configs, metrics.PlannerConfig{
			ID:          id,
			Goroutines:  goroutines,
			Duration:    duration,
			Discount:    searcher.DefaultDiscount,
			Exploration: searcher.DefaultExploration,
		})
	}
	return configs
}

// ExplorationConfigs sweeps the UCB1 coefficient under a fixed simulation
// budget.
func ExplorationConfigs(episodes int, coefficients ...float64) []metrics.PlannerConfig {
	configs := []metrics.PlannerConfig{}
	for i, c := range coefficients {
		configs = append(configs, metrics.PlannerConfig{
			ID:          i + 1,
			Goroutines:  1,
			Episodes:    episodes,
			Discount:    searcher.DefaultDiscount,
			Exploration: c,
		})
	}
	return configs
}
