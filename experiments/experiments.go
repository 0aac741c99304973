package experiments

import (
	"context"
	"fmt"

	"pomcp/engine"
	"pomcp/experiments/metrics"
	"pomcp/grid"
	"pomcp/pomdp"
	"pomcp/searcher"

	"github.com/rs/zerolog/log"
)

// Experiment plays a number of grid episodes with each planner config. Every
// config sees the same grid and the same sequence of start cells.
type Experiment struct {
	Name     string
	Configs  []metrics.PlannerConfig
	Episodes int // Per config
	MaxSteps int
	Grid     grid.Config
	Recovery engine.Recovery
}

type Results struct {
	Configs  []metrics.PlannerConfig
	Episodes []metrics.EpisodeRecord
	Steps    []metrics.StepRecord
}

func (x Experiment) Run(ctx context.Context) (Results, error) {
	results := Results{}
	count := 0

	log.Info().Msgf("starting %s experiment...", x.Name)

	for ci, config := range x.Configs {
		env, err := grid.New(x.Grid)
		if err != nil {
			return results, err
		}
		model, err := env.Model()
		if err != nil {
			return results, err
		}

		log.Info().Msgf("starting config %d of %d: %+v...", ci+1, len(x.Configs), config)

		for i := 0; i < x.Episodes; i++ {
			env.Reset()
			planner, err := searcher.NewPOMCP(pomdp.NewGenerator(model), env, options(config, uint64(i))...)
			if err != nil {
				return results, fmt.Errorf("config %d: %w", config.ID, err)
			}
			if i == 0 {
				config.Horizon = planner.Horizon()
			}

			episode, steps, err := engine.NewLocalEngine(planner, x.MaxSteps, x.Recovery).Run(ctx)
			count++
			results.Episodes = append(results.Episodes, metrics.EpisodeRecord{
				ID:            count,
				Config:        config.ID,
				EpisodeMetric: episode,
			})
			for _, step := range steps {
				results.Steps = append(results.Steps, metrics.StepRecord{
					Episode:    count,
					StepMetric: step,
				})
			}
			if err != nil {
				return results, fmt.Errorf("config %d episode %d: %w", config.ID, i+1, err)
			}

			log.Info().Msgf("completed config %d episode %d of %d in %d steps (reached=%t)",
				config.ID, i+1, x.Episodes, episode.Steps, episode.Reached)
		}
		results.Configs = append(results.Configs, config)
	}

	log.Info().Msgf("completed %s experiment", x.Name)
	return results, nil
}

// Store writes the results as CSV files under the writer's directory.
func Store(writer *metrics.Writer, results Results) error {
	err := writer.WritePlannerConfigs(results.Configs)
	if err != nil {
		return fmt.Errorf("failed to store planner configs: %w", err)
	}
	log.Info().Msg("stored planner configs")

	err = writer.WriteEpisodeRecords(results.Episodes)
	if err != nil {
		return fmt.Errorf("failed to write episode records: %w", err)
	}
	log.Info().Msg("stored episode records")

	err = writer.WriteStepRecords(results.Steps)
	if err != nil {
		return fmt.Errorf("failed to write step records: %w", err)
	}
	log.Info().Msg("stored step records")
	return nil
}

// options maps a config onto searcher options. Exploration is always passed
// since C=0 is a meaningful coefficient; a zero discount is invalid and so
// means the searcher default.
func options(config metrics.PlannerConfig, seed uint64) []searcher.Option {
	options := []searcher.Option{
		searcher.WithGoroutines(config.Goroutines),
		searcher.WithSeed(seed),
		searcher.WithMetrics(nil),
		searcher.WithExploration(config.Exploration),
	}

	if config.Episodes > 0 {
		options = append(options, searcher.WithEpisodes(config.Episodes))
	}
	if config.Duration > 0 {
		options = append(options, searcher.WithDuration(config.Duration))
	}
	if config.Discount > 0 {
		options = append(options, searcher.WithDiscount(config.Discount))
	}
	return options
}
