package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pomcp/belief"
	"pomcp/experiments/metrics"
	"pomcp/searcher"

	"github.com/rs/zerolog/log"
)

// Planner is the part of the POMCP agent the engine drives.
type Planner interface {
	TakeAction(ctx context.Context) (searcher.Step, error)
	ResetBelief() error
	Belief() belief.Belief
	Done() bool
	TotalDiscountedReward() float64
}

type LocalEngine struct {
	planner  Planner
	maxSteps int
	recovery Recovery
	observer func(metrics.StepMetric)
}

var _ Engine = (*LocalEngine)(nil)

func NewLocalEngine(planner Planner, maxSteps int, recovery Recovery) *LocalEngine {
	if maxSteps <= 0 || maxSteps > MaxSteps {
		maxSteps = MaxSteps
	}
	return &LocalEngine{
		planner:  planner,
		maxSteps: maxSteps,
		recovery: recovery,
	}
}

// OnStep registers a callback run after every real step, e.g. to render the
// belief.
func (e *LocalEngine) OnStep(observer func(metrics.StepMetric)) {
	e.observer = observer
}

// Run executes the episode loop until the planner reports a terminal step.
// The partial metrics are returned with any error.
func (e *LocalEngine) Run(ctx context.Context) (metrics.EpisodeMetric, []metrics.StepMetric, error) {
	episode := metrics.EpisodeMetric{StartTime: time.Now()}
	var steps []metrics.StepMetric
	finish := func(err error) (metrics.EpisodeMetric, []metrics.StepMetric, error) {
		episode.EndTime = time.Now()
		episode.Duration = episode.EndTime.Sub(episode.StartTime)
		episode.Steps = len(steps)
		episode.Reached = e.planner.Done()
		episode.Return = e.planner.TotalDiscountedReward()
		return episode, steps, err
	}

	for i := 0; i < e.maxSteps && !e.planner.Done(); i++ {
		step, err := e.planner.TakeAction(ctx)
		if err != nil && !errors.Is(err, belief.ErrDegenerateBelief) {
			return finish(fmt.Errorf("step %d: %w", i, err))
		}
		if err != nil {
			switch e.recovery {
			case RecoverAbort:
				log.Warn().Err(err).Int("step", i).Msg("aborting episode")
				steps = append(steps, e.record(i, step))
				return finish(fmt.Errorf("%w at step %d: %w", ErrAborted, i, err))
			default:
				log.Warn().Err(err).Int("step", i).Msg("resetting belief")
				if err := e.planner.ResetBelief(); err != nil {
					return finish(err)
				}
				episode.Resets++
			}
		}

		metric := e.record(i, step)
		steps = append(steps, metric)
		episode.Simulations += step.Search.Episodes
		log.Info().
			Int("step", i).
			Int("action", metric.Action).
			Int("observation", metric.Observation).
			Float64("reward", metric.Reward).
			Float64("confidence", metric.Confidence).
			Bool("tree_reused", step.TreeReused).
			Msg("step")
		if e.observer != nil {
			e.observer(metric)
		}
	}

	if !e.planner.Done() {
		log.Info().Msgf("stopped after %d steps without reaching a terminal state", len(steps))
	}
	return finish(nil)
}

func (e *LocalEngine) record(i int, step searcher.Step) metrics.StepMetric {
	_, confidence := e.planner.Belief().MostLikely()
	return metrics.StepMetric{
		Step:         i,
		Action:       int(step.Action),
		Observation:  int(step.Observation),
		Reward:       step.Reward,
		Confidence:   confidence,
		SearchMetric: step.Search,
	}
}
