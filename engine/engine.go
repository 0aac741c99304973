package engine

import (
	"context"
	"errors"
	"fmt"

	"pomcp/experiments/metrics"
)

const MaxSteps = 10000

var ErrAborted = errors.New("episode aborted")

type Engine interface {
	// Run plays one episode till the goal is reached or MaxSteps is hit
	Run(ctx context.Context) (metrics.EpisodeMetric, []metrics.StepMetric, error)
}

// Recovery decides what happens after a real observation the belief cannot
// explain.
type Recovery int

const (
	// RecoverReset falls back to the uniform belief and keeps playing.
	RecoverReset Recovery = iota
	// RecoverAbort ends the episode with ErrAborted.
	RecoverAbort
)

func (r Recovery) String() string {
	switch r {
	case RecoverReset:
		return "reset"
	case RecoverAbort:
		return "abort"
	default:
		return fmt.Sprintf("recovery(%d)", int(r))
	}
}

func ParseRecovery(s string) (Recovery, error) {
	switch s {
	case "reset", "":
		return RecoverReset, nil
	case "abort":
		return RecoverAbort, nil
	default:
		return 0, fmt.Errorf("unknown recovery %q, want reset or abort", s)
	}
}
